/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package dialer

import (
	"context"
	"net/http"
	"time"

	"github.com/dialforge/softphone-go-sdk/dialersdk"
	"github.com/dialforge/softphone-go-sdk/session"
)

// startLoops launches the reconciliation poller and the local duration
// clock for callID. Both run in one goroutine and stop when the session
// goes terminal or stopLoops is called.
//
// The local clock is what a UI should render: it ticks every second while
// the call is active, with no network round-trip. The backend's duration,
// merged by the poller, only ever corrects the clock forward.
func (c *Client) startLoops(callID string) {
	c.mu.Lock()
	if c.stopCh != nil {
		close(c.stopCh)
	}
	stop := make(chan struct{})
	c.stopCh = stop
	c.mu.Unlock()

	go func() {
		poll := time.NewTicker(c.config.PollInterval)
		defer poll.Stop()
		tick := time.NewTicker(c.config.TickInterval)
		defer tick.Stop()

		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				c.store.Tick()
			case <-poll.C:
				if c.pollOnce(callID) {
					return
				}
			}
		}
	}()
}

// stopLoops halts the poller and duration clock, if running.
func (c *Client) stopLoops() {
	c.mu.Lock()
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	c.mu.Unlock()
}

// pollOnce fetches the backend's call status and merges it. It reports
// whether the loop should stop, which happens once the session is gone or
// terminal. A failed poll is logged and retried on the next interval; the
// push channel keeps the session moving in the meantime.
func (c *Client) pollOnce(callID string) bool {
	cur, ok := c.store.Current()
	if !ok || cur.CallID != callID || cur.Status.IsTerminal() {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.PollInterval*3)
	defer cancel()

	var status StatusResponse
	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/webrtc/status/"+callID, nil, nil)
	if err == nil {
		err = dialersdk.ParseResponse(resp, &status)
	}
	if err != nil {
		if dialersdk.IsNotFound(err) {
			// The backend no longer knows the call. Treat as ended rather
			// than polling a dead ID forever.
			c.store.Apply(session.Patch{CallID: callID, Status: session.StatusPtr(session.StatusEnded)})
			c.closeMedia()
			return true
		}
		c.core.GetLogger().Printf("dialer: status poll for call %s failed: %v", callID, err)
		return false
	}

	patch := session.Patch{
		CallID:          callID,
		DurationSeconds: status.DurationSeconds,
		IsMuted:         status.IsMuted,
		IsOnHold:        status.IsOnHold,
		IsRecording:     status.IsRecording,
	}
	if status.Status != "" {
		patch.Status = session.StatusPtr(session.Normalize(status.Status))
	}
	if status.RecordingURL != "" {
		patch.RecordingURL = session.StringPtr(status.RecordingURL)
	}
	c.store.Apply(patch)

	if cur, ok := c.store.Current(); ok && cur.CallID == callID && cur.Status.IsTerminal() {
		c.closeMedia()
		return true
	}
	return false
}
