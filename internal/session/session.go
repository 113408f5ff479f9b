// Package session tracks the lifecycle of phone calls: one CallSession per
// call from dial (or inbound webhook) through the media stream to a terminal
// status, managed by a Manager that also wires the per-call audio pipeline.
package session

import (
	"time"
)

// Direction says which side initiated the call.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Status is the lifecycle state of a call.
type Status string

const (
	StatusInitiating Status = "initiating"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBusy       Status = "busy"
	StatusNoAnswer   Status = "no-answer"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether the status ends the call's lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled:
		return true
	}
	return false
}

// StatusFromCarrier maps a carrier webhook status string onto the session
// lifecycle. Unknown values map to the zero Status.
func StatusFromCarrier(s string) Status {
	switch s {
	case "queued", "initiated":
		return StatusInitiating
	case "ringing":
		return StatusRinging
	case "in-progress", "answered":
		return StatusInProgress
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "busy":
		return StatusBusy
	case "no-answer":
		return StatusNoAnswer
	case "canceled":
		return StatusCanceled
	}
	return ""
}

// CallSession is a snapshot of one call's state.
type CallSession struct {
	// CallID is the internally generated identifier.
	CallID string

	// CarrierCallID is the carrier's call SID, known once the call is placed
	// or the inbound webhook arrives.
	CarrierCallID string

	// PeerNumber is the remote party's number.
	PeerNumber string

	// Prompt is the per-call task prompt given to the model.
	Prompt string

	// Metadata is opaque caller-supplied context from the start-call API.
	Metadata map[string]string

	Direction Direction
	StartTime time.Time
	Status    Status
}
