// Package types holds the small set of data structures shared across provider
// packages. Domain types live with their owning package; only cross-cutting
// structures that would otherwise cause circular imports live here.
package types

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}
