package audit

import (
	"context"
	"time"
)

// EntryType classifies audit entries
type EntryType string

const (
	// EntryTypeDecision records an authorization verdict
	EntryTypeDecision EntryType = "decision"

	// EntryTypeAuthentication records the outcome of an interactive
	// authentication
	EntryTypeAuthentication EntryType = "authentication"

	// EntryTypeIncident records a security-relevant violation, e.g. an
	// unprivileged caller probing another identity's authorization state
	EntryTypeIncident EntryType = "incident"
)

// Entry is one audit record. Entries are written as-is; devices must not
// mutate them.
type Entry struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
	Type EntryType `json:"type"`

	ActionID string `json:"action_id,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Caller   string `json:"caller,omitempty"`
	Session  string `json:"session,omitempty"`

	// Outcome is the result in one word: allowed, denied, challenge,
	// gained, failed, rejected
	Outcome string `json:"outcome,omitempty"`

	Message string `json:"message,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Device is a destination for audit entries
type Device interface {
	// Log writes one entry. Devices must be safe for concurrent use.
	Log(ctx context.Context, entry *Entry) error

	// Close releases device resources
	Close() error
}

// Factory constructs a device from an option map
type Factory interface {
	NewDevice(options map[string]any) (Device, error)
}
