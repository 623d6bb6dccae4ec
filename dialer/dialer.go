/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package dialer drives the outbound call lifecycle: it dispatches call
// control actions to the backend and reconciles the local session against
// the backend through a polling loop and pushed WebSocket events. Both
// channels feed the same idempotent session merge, so either one alone is
// enough to converge.
package dialer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dialforge/softphone-go-sdk/dialersdk"
	"github.com/dialforge/softphone-go-sdk/session"
)

var (
	phoneNumberRe = regexp.MustCompile(`^\+\d{10,15}$`)
	dtmfDigitRe   = regexp.MustCompile(`^[0-9*#]$`)
)

// Client is the action dispatcher for a single softphone line.
type Client struct {
	core   *dialersdk.Client
	store  *session.Store
	config *Config

	mu     sync.Mutex
	media  MediaSession
	stopCh chan struct{}
	digits strings.Builder
}

// New creates a new Dialer client bound to a session store.
func New(core *dialersdk.Client, store *session.Store, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultConfig().TickInterval
	}

	return &Client{
		core:   core,
		store:  store,
		config: config,
	}
}

// Store returns the session store the dialer reconciles into.
func (c *Client) Store() *session.Store {
	return c.store
}

// Dial starts an outbound call to toNumber from fromNumber.
//
// Numbers are validated as E.164 before any network traffic, and a dial is
// rejected while another call is in progress. When the backend refuses the
// call the dialer records a terminal failed session carrying the backend's
// message and also returns the error, so callers can surface it directly
// while listeners see the same failure through the store.
func (c *Client) Dial(ctx context.Context, toNumber, fromNumber string) (*session.CallSession, error) {
	if !phoneNumberRe.MatchString(toNumber) {
		return nil, fmt.Errorf("invalid destination number %q: must be E.164 (+ followed by 10-15 digits)", toNumber)
	}
	if !phoneNumberRe.MatchString(fromNumber) {
		return nil, fmt.Errorf("invalid caller number %q: must be E.164 (+ followed by 10-15 digits)", fromNumber)
	}
	if cur, ok := c.store.Current(); ok && !cur.Status.IsTerminal() {
		return nil, session.ErrCallInProgress
	}

	c.mu.Lock()
	c.digits.Reset()
	c.mu.Unlock()

	var result InitiateResponse
	resp, err := c.core.RequestWithRetry(ctx, http.MethodPost, "api/webrtc/initiate", nil, &InitiateRequest{
		ToNumber:   toNumber,
		FromNumber: fromNumber,
	})
	if err == nil {
		err = dialersdk.ParseResponse(resp, &result)
	}
	if err != nil {
		failed := session.CallSession{
			CallID:       "local-" + uuid.New().String(),
			FromNumber:   fromNumber,
			ToNumber:     toNumber,
			Status:       session.StatusFailed,
			ErrorMessage: err.Error(),
		}
		if beginErr := c.store.Begin(failed); beginErr != nil {
			c.core.GetLogger().Printf("dialer: could not record failed call: %v", beginErr)
		}
		return nil, fmt.Errorf("failed to initiate call: %w", err)
	}

	sess := session.CallSession{
		CallID:     result.CallID,
		FromNumber: fromNumber,
		ToNumber:   toNumber,
		Status:     session.Normalize(result.Status),
	}
	if sess.Status == "" || sess.Status.IsTerminal() {
		sess.Status = session.StatusDialing
	}
	if err := c.store.Begin(sess); err != nil {
		return nil, err
	}

	c.startLoops(result.CallID)

	if c.config.MediaFactory != nil {
		media, err := c.config.MediaFactory(ctx, result.CallID)
		if err != nil {
			// Signaling carries the call; a media failure degrades to a
			// control-only session rather than killing the dial.
			c.core.GetLogger().Printf("dialer: media session unavailable for call %s: %v", result.CallID, err)
		} else {
			c.mu.Lock()
			c.media = media
			c.mu.Unlock()
		}
	}

	return &sess, nil
}

// ToggleMute flips the microphone mute state. The flag flips locally
// first so the UI reacts immediately, then the backend is told; if the
// request fails the flag is rolled back.
func (c *Client) ToggleMute(ctx context.Context) error {
	cur, ok := c.store.Current()
	if !ok || cur.Status.IsTerminal() {
		return fmt.Errorf("no call in progress")
	}

	next := !cur.IsMuted
	c.store.Apply(session.Patch{CallID: cur.CallID, IsMuted: session.BoolPtr(next)})
	c.setMediaMuted(next)

	resp, err := c.core.RequestWithContext(ctx, http.MethodPost, "api/webrtc/mute/"+cur.CallID, nil, nil)
	if err == nil {
		err = dialersdk.ParseResponse(resp, nil)
	}
	if err != nil {
		c.store.Apply(session.Patch{CallID: cur.CallID, IsMuted: session.BoolPtr(cur.IsMuted)})
		c.setMediaMuted(cur.IsMuted)
		return fmt.Errorf("failed to toggle mute: %w", err)
	}
	return nil
}

// ToggleSpeaker flips the local speaker routing. This never reaches the
// backend: audio output is a client concern.
func (c *Client) ToggleSpeaker() error {
	if cur, ok := c.store.Current(); !ok || cur.Status.IsTerminal() {
		return fmt.Errorf("no call in progress")
	}
	c.store.ToggleSpeaker()
	return nil
}

// ToggleHold flips the hold state, optimistically with rollback on failure.
func (c *Client) ToggleHold(ctx context.Context) error {
	cur, ok := c.store.Current()
	if !ok || cur.Status.IsTerminal() {
		return fmt.Errorf("no call in progress")
	}

	next := !cur.IsOnHold
	c.store.Apply(session.Patch{CallID: cur.CallID, IsOnHold: session.BoolPtr(next)})

	resp, err := c.core.RequestWithContext(ctx, http.MethodPost, "api/webrtc/hold/"+cur.CallID, nil, nil)
	if err == nil {
		err = dialersdk.ParseResponse(resp, nil)
	}
	if err != nil {
		c.store.Apply(session.Patch{CallID: cur.CallID, IsOnHold: session.BoolPtr(cur.IsOnHold)})
		return fmt.Errorf("failed to toggle hold: %w", err)
	}
	return nil
}

// ToggleRecording starts or stops call recording. Recording is only
// meaningful on an answered call, so anything but an active call is
// rejected before any network traffic.
func (c *Client) ToggleRecording(ctx context.Context) error {
	cur, ok := c.store.Current()
	if !ok || cur.Status != session.StatusActive {
		return fmt.Errorf("recording requires an active call")
	}

	next := !cur.IsRecording
	action := "start"
	if !next {
		action = "stop"
	}
	c.store.Apply(session.Patch{CallID: cur.CallID, IsRecording: session.BoolPtr(next)})

	resp, err := c.core.RequestWithContext(ctx, http.MethodPost, "api/webrtc/recording/"+action+"/"+cur.CallID, nil, nil)
	if err == nil {
		err = dialersdk.ParseResponse(resp, nil)
	}
	if err != nil {
		c.store.Apply(session.Patch{CallID: cur.CallID, IsRecording: session.BoolPtr(cur.IsRecording)})
		return fmt.Errorf("failed to %s recording: %w", action, err)
	}
	return nil
}

// SendDigit transmits a single DTMF digit on the current call. The digit
// goes out in-band through the media session when one exists, and to the
// backend for the provider leg. Digits accumulate in a display buffer and
// never modify the session itself.
func (c *Client) SendDigit(ctx context.Context, digit string) error {
	if !dtmfDigitRe.MatchString(digit) {
		return fmt.Errorf("invalid DTMF digit %q", digit)
	}
	cur, ok := c.store.Current()
	if !ok || cur.Status.IsTerminal() {
		return fmt.Errorf("no call in progress")
	}

	c.mu.Lock()
	media := c.media
	c.mu.Unlock()
	if media != nil {
		if err := media.SendDigit(digit); err != nil {
			c.core.GetLogger().Printf("dialer: in-band DTMF %q failed: %v", digit, err)
		}
	}

	resp, err := c.core.RequestWithContext(ctx, http.MethodPost, "api/outbound/send-dtmf", nil, &DTMFRequest{
		CallControlID: cur.CallID,
		Digits:        digit,
	})
	if err == nil {
		err = dialersdk.ParseResponse(resp, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to send DTMF: %w", err)
	}

	c.mu.Lock()
	c.digits.WriteString(digit)
	c.mu.Unlock()
	return nil
}

// DialedDigits returns the DTMF digits sent so far on the current call.
func (c *Client) DialedDigits() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.digits.String()
}

// Hangup ends the current call. The media session is closed and released
// first, the backend is told best-effort (a hangup must always succeed
// locally, even against a dead backend), and the session goes terminal,
// which also stops the poller and the duration clock.
func (c *Client) Hangup(ctx context.Context) error {
	cur, ok := c.store.Current()
	if !ok {
		return fmt.Errorf("no call in progress")
	}
	if cur.Status.IsTerminal() {
		return nil
	}

	c.closeMedia()

	resp, err := c.core.RequestWithContext(ctx, http.MethodPost, "api/webrtc/hangup/"+cur.CallID, nil, nil)
	if err == nil {
		err = dialersdk.ParseResponse(resp, nil)
	}
	if err != nil && !dialersdk.IsNotFound(err) {
		c.core.GetLogger().Printf("dialer: hangup request for call %s failed: %v", cur.CallID, err)
	}

	c.store.Apply(session.Patch{CallID: cur.CallID, Status: session.StatusPtr(session.StatusEnded)})
	c.stopLoops()
	return nil
}

// HandleNotification merges one pushed WebSocket message into the session.
// It is the push-channel twin of the poller: both produce patches for the
// same merge, so a transition reported twice lands once.
func (c *Client) HandleNotification(n Notification) {
	patch, ok := c.notificationPatch(n)
	if !ok {
		return
	}
	if c.store.Apply(patch) {
		if cur, exists := c.store.Current(); exists && cur.Status.IsTerminal() {
			c.closeMedia()
			c.stopLoops()
		}
	}
}

// HandleNotificationData decodes a raw WebSocket payload and merges it.
// Malformed payloads are logged and dropped.
func (c *Client) HandleNotificationData(data []byte) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		c.core.GetLogger().Printf("dialer: dropping malformed notification: %v", err)
		return
	}
	c.HandleNotification(n)
}

func (c *Client) notificationPatch(n Notification) (session.Patch, bool) {
	p := session.Patch{CallID: n.CallID, DurationSeconds: n.DurationSeconds}

	switch n.Type {
	case NotificationCallInitiated:
		st := session.Normalize(n.Status)
		if st == "" {
			st = session.StatusDialing
		}
		p.Status = session.StatusPtr(st)
	case NotificationCallAnswered:
		p.Status = session.StatusPtr(session.StatusActive)
	case NotificationCallEnded:
		p.Status = session.StatusPtr(session.StatusEnded)
	case NotificationCallUpdate:
		if n.Status != "" {
			p.Status = session.StatusPtr(session.Normalize(n.Status))
		}
	case NotificationRecordingStarted:
		p.IsRecording = session.BoolPtr(true)
	case NotificationRecordingStopped:
		p.IsRecording = session.BoolPtr(false)
	case NotificationRecordingAdded:
		p.IsRecording = session.BoolPtr(false)
		if n.RecordingURL != "" {
			p.RecordingURL = session.StringPtr(n.RecordingURL)
		}
	default:
		return session.Patch{}, false
	}
	return p, true
}

func (c *Client) setMediaMuted(muted bool) {
	c.mu.Lock()
	media := c.media
	c.mu.Unlock()
	if media == nil {
		return
	}
	if muted {
		media.Mute()
	} else {
		media.Unmute()
	}
}

func (c *Client) closeMedia() {
	c.mu.Lock()
	media := c.media
	c.media = nil
	c.mu.Unlock()
	if media != nil {
		if err := media.Close(); err != nil {
			c.core.GetLogger().Printf("dialer: closing media session: %v", err)
		}
	}
}
