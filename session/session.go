/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package session holds the client-side record of the user's current call.
// The Store is a single-slot container: at most one CallSession exists at a
// time, and every mutation flows through its patch function so that the
// polling and push channels can merge backend state idempotently.
package session

// Status represents the lifecycle state of a call.
type Status string

const (
	StatusDialing Status = "dialing"
	StatusRinging Status = "ringing"
	StatusActive  Status = "active"
	StatusHold    Status = "hold"
	StatusEnded   Status = "ended"
	StatusFailed  Status = "failed"
)

// Normalize maps backend status vocabulary onto the client's. Provider
// values meaning "call finished" (completed, hangup) become StatusEnded so
// the UI never observes provider-specific vocabulary. Other recognized
// values pass through unchanged.
func Normalize(raw string) Status {
	switch raw {
	case "completed", "hangup":
		return StatusEnded
	default:
		return Status(raw)
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusEnded || s == StatusFailed
}

// CallSession is the client-side record of the current call and its live
// status and media controls.
type CallSession struct {
	CallID     string `json:"call_id"`
	FromNumber string `json:"from_number"`
	ToNumber   string `json:"to_number"`
	Status     Status `json:"status"`

	// DurationSeconds is driven by the local ticker while the call is
	// active; backend-reported duration is a periodic correction only.
	DurationSeconds int `json:"duration_seconds"`

	// Media control flags. IsMuted, IsOnHold and IsRecording are mirrored
	// by the backend; SpeakerOn is client audio routing and purely local.
	IsMuted     bool `json:"is_muted"`
	SpeakerOn   bool `json:"speaker_on"`
	IsOnHold    bool `json:"is_on_hold"`
	IsRecording bool `json:"is_recording"`

	RecordingURL string `json:"recording_url,omitempty"`

	// ErrorMessage is populated only when Status == failed.
	ErrorMessage string `json:"error_message,omitempty"`
}

// Patch is a partial update to a CallSession. Nil fields are left untouched
// by the merge; CallID is required and must match the current session.
type Patch struct {
	CallID string

	Status          *Status
	DurationSeconds *int
	IsMuted         *bool
	IsOnHold        *bool
	IsRecording     *bool
	RecordingURL    *string
	ErrorMessage    *string
}

// Helpers for building patches without local pointer variables.

// StatusPtr returns a pointer to s.
func StatusPtr(s Status) *Status { return &s }

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
