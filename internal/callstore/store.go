// Package callstore persists summaries of completed calls.
//
// Persistence is optional: when no storage DSN is configured the application
// runs without a store and call history lives only in logs. Records hold
// metadata and textual summaries only — never audio.
package callstore

import (
	"context"
	"time"
)

// CallRecord is the terminal summary of one call.
type CallRecord struct {
	// CallID is the internal call identifier (UUID).
	CallID string

	// CarrierCallID is the carrier-assigned call SID, if known.
	CarrierCallID string

	// PeerNumber is the remote party in E.164 form.
	PeerNumber string

	// Direction is "inbound" or "outbound".
	Direction string

	// Status is the terminal status (completed, failed, busy, no-answer,
	// canceled).
	Status string

	// StartedAt and EndedAt bound the call.
	StartedAt time.Time
	EndedAt   time.Time

	// Commands holds the actionable utterances dispatched during the call.
	Commands []string

	// Summary is the operator-facing one-liner.
	Summary string
}

// Store records terminal calls and lists recent history.
type Store interface {
	// Record persists one terminal call record.
	Record(ctx context.Context, rec CallRecord) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]CallRecord, error)

	// Close releases the underlying connections.
	Close() error
}
