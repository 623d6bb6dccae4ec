/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package dialer

import (
	"context"
	"time"
)

// InitiateRequest is the body for starting an outbound call.
type InitiateRequest struct {
	ToNumber   string `json:"to_number"`
	FromNumber string `json:"from_number"`
}

// InitiateResponse is the backend's answer to a call initiation.
type InitiateResponse struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// StatusResponse is the backend's view of a call, fetched by the poller.
// Optional fields are pointers so an omitted field is distinguishable from
// a false or zero value.
type StatusResponse struct {
	CallID          string `json:"call_id"`
	Status          string `json:"status"`
	DurationSeconds *int   `json:"duration,omitempty"`
	IsMuted         *bool  `json:"is_muted,omitempty"`
	IsOnHold        *bool  `json:"is_on_hold,omitempty"`
	IsRecording     *bool  `json:"is_recording,omitempty"`
	HasRecording    bool   `json:"has_recording,omitempty"`
	RecordingURL    string `json:"recording_url,omitempty"`
}

// ControlResponse is the generic acknowledgement for mute, hold,
// recording and hangup requests.
type ControlResponse struct {
	CallID string `json:"call_id,omitempty"`
	Status string `json:"status,omitempty"`
}

// DTMFRequest is the body for sending a DTMF digit on the active call.
// The call_control_id field carries the call ID; the backend resolves the
// provider leg from it.
type DTMFRequest struct {
	CallControlID string `json:"call_control_id"`
	Digits        string `json:"digits"`
}

// Notification is a push message from the call events WebSocket. Messages
// the dialer does not recognize are ignored.
type Notification struct {
	Type            string `json:"type"`
	CallID          string `json:"call_id"`
	Status          string `json:"status,omitempty"`
	DurationSeconds *int   `json:"duration,omitempty"`
	RecordingURL    string `json:"recording_url,omitempty"`
}

// Notification types emitted by the backend.
const (
	NotificationCallInitiated    = "call_initiated"
	NotificationCallAnswered     = "call_answered"
	NotificationCallUpdate       = "call_update"
	NotificationCallEnded        = "call_ended"
	NotificationRecordingStarted = "recording_started"
	NotificationRecordingStopped = "recording_stopped"
	NotificationRecordingAdded   = "recording_added"
)

// MediaSession is the audio leg of a call. The dialer owns at most one at
// a time: created when a call starts, closed and dropped on hangup.
type MediaSession interface {
	// Mute stops sending local audio without tearing the track down.
	Mute()
	// Unmute resumes sending local audio.
	Unmute()
	// SendDigit transmits one DTMF digit in-band.
	SendDigit(digit string) error
	// Close tears the media session down. Safe to call more than once.
	Close() error
}

// MediaFactory creates the media session for a newly initiated call.
// A nil factory leaves calls signaling-only.
type MediaFactory func(ctx context.Context, callID string) (MediaSession, error)

// Config holds the configuration for the Dialer plugin.
type Config struct {
	// PollInterval is how often the reconciliation poller fetches the
	// backend's call status.
	PollInterval time.Duration

	// TickInterval is how often the local duration clock advances while
	// the call is active.
	TickInterval time.Duration

	// MediaFactory, when set, opens a media session per call.
	MediaFactory MediaFactory
}

// DefaultConfig returns the default configuration for the Dialer plugin.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 1 * time.Second,
		TickInterval: 1 * time.Second,
	}
}
