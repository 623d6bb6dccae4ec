/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package dialer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dialforge/softphone-go-sdk/dialersdk"
	"github.com/dialforge/softphone-go-sdk/session"
)

type fakeMedia struct {
	mu     sync.Mutex
	muted  bool
	digits []string
	closed bool
}

func (m *fakeMedia) Mute() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = true
}

func (m *fakeMedia) Unmute() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = false
}

func (m *fakeMedia) SendDigit(digit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.digits = append(m.digits, digit)
	return nil
}

func (m *fakeMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// fakeBackend is a minimal in-memory stand-in for the call control API.
type fakeBackend struct {
	mu          sync.Mutex
	callID      string
	status      string
	duration    int
	failMute    bool
	failHold    bool
	hangups     int
	mutes       int
	recordings  []string
	dtmfBodies  []DTMFRequest
	statusPolls int
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/webrtc/initiate", func(w http.ResponseWriter, r *http.Request) {
		var req InitiateRequest
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		defer b.mu.Unlock()
		json.NewEncoder(w).Encode(InitiateResponse{
			CallID: b.callID,
			Status: "dialing",
			From:   req.FromNumber,
			To:     req.ToNumber,
		})
	})
	mux.HandleFunc("GET /api/webrtc/status/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.statusPolls++
		json.NewEncoder(w).Encode(StatusResponse{
			CallID:          b.callID,
			Status:          b.status,
			DurationSeconds: &b.duration,
		})
	})
	mux.HandleFunc("POST /api/webrtc/mute/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.failMute {
			http.Error(w, `{"detail":"mute failed"}`, http.StatusInternalServerError)
			return
		}
		b.mutes++
		json.NewEncoder(w).Encode(ControlResponse{CallID: b.callID, Status: "muted"})
	})
	mux.HandleFunc("POST /api/webrtc/hold/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.failHold {
			http.Error(w, `{"detail":"hold failed"}`, http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(ControlResponse{CallID: b.callID, Status: "held"})
	})
	mux.HandleFunc("POST /api/webrtc/recording/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.recordings = append(b.recordings, r.URL.Path)
		json.NewEncoder(w).Encode(ControlResponse{CallID: b.callID, Status: "recording"})
	})
	mux.HandleFunc("POST /api/outbound/send-dtmf", func(w http.ResponseWriter, r *http.Request) {
		var req DTMFRequest
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.dtmfBodies = append(b.dtmfBodies, req)
		json.NewEncoder(w).Encode(ControlResponse{Status: "sent"})
	})
	mux.HandleFunc("POST /api/webrtc/hangup/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.hangups++
		b.status = "ended"
		json.NewEncoder(w).Encode(ControlResponse{CallID: b.callID, Status: "ended"})
	})
	return mux
}

func newTestDialer(t *testing.T, backend *fakeBackend, config *Config) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	core, err := dialersdk.NewClient("test-token", &dialersdk.Config{
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
	})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	if config == nil {
		// Long intervals keep the background loops quiet in tests that
		// do not exercise them.
		config = &Config{PollInterval: time.Hour, TickInterval: time.Hour}
	}
	return New(core, session.NewStore(), config), server
}

func TestDialValidation(t *testing.T) {
	backend := &fakeBackend{callID: "call-1"}
	d, _ := newTestDialer(t, backend, nil)

	cases := []struct{ to, from string }{
		{"5550100", "+14155550101"},
		{"+1abc5550100", "+14155550101"},
		{"+123", "+14155550101"},
		{"+14155550100", "415-555-0101"},
		{"", "+14155550101"},
	}
	for _, tc := range cases {
		if _, err := d.Dial(context.Background(), tc.to, tc.from); err == nil {
			t.Errorf("Dial(%q, %q) succeeded, want validation error", tc.to, tc.from)
		}
	}
	if _, ok := d.Store().Current(); ok {
		t.Error("validation failure created a session")
	}
}

func TestDialRejectsConcurrentCall(t *testing.T) {
	backend := &fakeBackend{callID: "call-1", status: "dialing"}
	d, _ := newTestDialer(t, backend, nil)

	if _, err := d.Dial(context.Background(), "+14155550100", "+14155550101"); err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	_, err := d.Dial(context.Background(), "+14155550102", "+14155550101")
	if err != session.ErrCallInProgress {
		t.Errorf("second Dial() error = %v, want ErrCallInProgress", err)
	}
}

func TestDialFailureRecordsFailedSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"no numbers configured"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	core, err := dialersdk.NewClient("test-token", &dialersdk.Config{BaseURL: server.URL, MaxRetries: 0})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	d := New(core, session.NewStore(), &Config{PollInterval: time.Hour, TickInterval: time.Hour})

	_, err = d.Dial(context.Background(), "+14155550100", "+14155550101")
	if err == nil {
		t.Fatal("Dial() succeeded against failing backend")
	}

	cur, ok := d.Store().Current()
	if !ok {
		t.Fatal("no failed session recorded")
	}
	if cur.Status != session.StatusFailed {
		t.Errorf("Status = %q, want %q", cur.Status, session.StatusFailed)
	}
	if !strings.Contains(cur.ErrorMessage, "no numbers configured") {
		t.Errorf("ErrorMessage = %q, want backend detail", cur.ErrorMessage)
	}
}

func TestDialStartsSessionAndMedia(t *testing.T) {
	backend := &fakeBackend{callID: "call-1", status: "dialing"}
	media := &fakeMedia{}
	d, _ := newTestDialer(t, backend, &Config{
		PollInterval: time.Hour,
		TickInterval: time.Hour,
		MediaFactory: func(ctx context.Context, callID string) (MediaSession, error) {
			return media, nil
		},
	})

	sess, err := d.Dial(context.Background(), "+14155550100", "+14155550101")
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	if sess.CallID != "call-1" || sess.Status != session.StatusDialing {
		t.Errorf("session = %+v, want call-1 dialing", sess)
	}
	cur, ok := d.Store().Current()
	if !ok || cur.CallID != "call-1" {
		t.Errorf("Current() = %+v, want call-1", cur)
	}
	if cur.ToNumber != "+14155550100" || cur.FromNumber != "+14155550101" {
		t.Errorf("numbers = %s -> %s", cur.FromNumber, cur.ToNumber)
	}
}

func TestToggleMuteRollback(t *testing.T) {
	backend := &fakeBackend{callID: "call-1", status: "active", failMute: true}
	media := &fakeMedia{}
	d, _ := newTestDialer(t, backend, &Config{
		PollInterval: time.Hour,
		TickInterval: time.Hour,
		MediaFactory: func(ctx context.Context, callID string) (MediaSession, error) {
			return media, nil
		},
	})
	if _, err := d.Dial(context.Background(), "+14155550100", "+14155550101"); err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	if err := d.ToggleMute(context.Background()); err == nil {
		t.Fatal("ToggleMute() succeeded against failing backend")
	}
	cur, _ := d.Store().Current()
	if cur.IsMuted {
		t.Error("IsMuted still true after failed toggle")
	}
	media.mu.Lock()
	muted := media.muted
	media.mu.Unlock()
	if muted {
		t.Error("media still muted after rollback")
	}

	backend.mu.Lock()
	backend.failMute = false
	backend.mu.Unlock()
	if err := d.ToggleMute(context.Background()); err != nil {
		t.Fatalf("ToggleMute() error: %v", err)
	}
	cur, _ = d.Store().Current()
	if !cur.IsMuted {
		t.Error("IsMuted false after successful toggle")
	}
}

func TestToggleHoldRollback(t *testing.T) {
	backend := &fakeBackend{callID: "call-1", status: "active", failHold: true}
	d, _ := newTestDialer(t, backend, nil)
	if _, err := d.Dial(context.Background(), "+14155550100", "+14155550101"); err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	if err := d.ToggleHold(context.Background()); err == nil {
		t.Fatal("ToggleHold() succeeded against failing backend")
	}
	cur, _ := d.Store().Current()
	if cur.IsOnHold {
		t.Error("IsOnHold still true after failed toggle")
	}
}

func TestToggleRecordingRequiresActiveCall(t *testing.T) {
	backend := &fakeBackend{callID: "call-1", status: "dialing"}
	d, _ := newTestDialer(t, backend, nil)
	if _, err := d.Dial(context.Background(), "+14155550100", "+14155550101"); err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	// The call is still dialing, so recording must be refused without
	// touching the backend.
	if err := d.ToggleRecording(context.Background()); err == nil {
		t.Fatal("ToggleRecording() succeeded while dialing")
	}
	backend.mu.Lock()
	hits := len(backend.recordings)
	backend.mu.Unlock()
	if hits != 0 {
		t.Errorf("recording endpoint hit %d times, want 0", hits)
	}

	d.Store().Apply(session.Patch{CallID: "call-1", Status: session.StatusPtr(session.StatusActive)})
	if err := d.ToggleRecording(context.Background()); err != nil {
		t.Fatalf("ToggleRecording() error: %v", err)
	}
	cur, _ := d.Store().Current()
	if !cur.IsRecording {
		t.Error("IsRecording false after toggle on active call")
	}
	backend.mu.Lock()
	path := backend.recordings[0]
	backend.mu.Unlock()
	if !strings.Contains(path, "/recording/start/") {
		t.Errorf("recording path = %q, want start", path)
	}
}

func TestSendDigit(t *testing.T) {
	backend := &fakeBackend{callID: "call-1", status: "active"}
	media := &fakeMedia{}
	d, _ := newTestDialer(t, backend, &Config{
		PollInterval: time.Hour,
		TickInterval: time.Hour,
		MediaFactory: func(ctx context.Context, callID string) (MediaSession, error) {
			return media, nil
		},
	})
	if _, err := d.Dial(context.Background(), "+14155550100", "+14155550101"); err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	for _, bad := range []string{"A", "12", "", "!"} {
		if err := d.SendDigit(context.Background(), bad); err == nil {
			t.Errorf("SendDigit(%q) succeeded, want validation error", bad)
		}
	}

	for _, digit := range []string{"1", "2", "#"} {
		if err := d.SendDigit(context.Background(), digit); err != nil {
			t.Fatalf("SendDigit(%q) error: %v", digit, err)
		}
	}
	if got := d.DialedDigits(); got != "12#" {
		t.Errorf("DialedDigits() = %q, want %q", got, "12#")
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.dtmfBodies) != 3 {
		t.Fatalf("backend received %d DTMF requests, want 3", len(backend.dtmfBodies))
	}
	if backend.dtmfBodies[0].CallControlID != "call-1" || backend.dtmfBodies[0].Digits != "1" {
		t.Errorf("DTMF body = %+v", backend.dtmfBodies[0])
	}
}

func TestHangup(t *testing.T) {
	backend := &fakeBackend{callID: "call-1", status: "active"}
	media := &fakeMedia{}
	d, _ := newTestDialer(t, backend, &Config{
		PollInterval: time.Hour,
		TickInterval: time.Hour,
		MediaFactory: func(ctx context.Context, callID string) (MediaSession, error) {
			return media, nil
		},
	})
	if _, err := d.Dial(context.Background(), "+14155550100", "+14155550101"); err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	if err := d.Hangup(context.Background()); err != nil {
		t.Fatalf("Hangup() error: %v", err)
	}
	cur, _ := d.Store().Current()
	if cur.Status != session.StatusEnded {
		t.Errorf("Status = %q, want %q", cur.Status, session.StatusEnded)
	}
	media.mu.Lock()
	closed := media.closed
	media.mu.Unlock()
	if !closed {
		t.Error("media session not closed on hangup")
	}
	backend.mu.Lock()
	hangups := backend.hangups
	backend.mu.Unlock()
	if hangups != 1 {
		t.Errorf("hangup endpoint hit %d times, want 1", hangups)
	}

	// Repeated hangup is a no-op.
	if err := d.Hangup(context.Background()); err != nil {
		t.Errorf("second Hangup() error: %v", err)
	}
}

func TestHangupSucceedsAgainstDeadBackend(t *testing.T) {
	backend := &fakeBackend{callID: "call-1", status: "active"}
	d, server := newTestDialer(t, backend, nil)
	if _, err := d.Dial(context.Background(), "+14155550100", "+14155550101"); err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	server.Close()

	if err := d.Hangup(context.Background()); err != nil {
		t.Fatalf("Hangup() error: %v", err)
	}
	cur, _ := d.Store().Current()
	if cur.Status != session.StatusEnded {
		t.Errorf("Status = %q, want %q", cur.Status, session.StatusEnded)
	}
}

func TestHandleNotification(t *testing.T) {
	backend := &fakeBackend{callID: "call-1", status: "dialing"}
	d, _ := newTestDialer(t, backend, nil)
	if _, err := d.Dial(context.Background(), "+14155550100", "+14155550101"); err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	t.Run("AnsweredIsIdempotent", func(t *testing.T) {
		n := Notification{Type: NotificationCallAnswered, CallID: "call-1"}
		d.HandleNotification(n)
		d.HandleNotification(n)
		cur, _ := d.Store().Current()
		if cur.Status != session.StatusActive {
			t.Errorf("Status = %q, want %q", cur.Status, session.StatusActive)
		}
	})

	t.Run("IgnoresOtherCalls", func(t *testing.T) {
		d.HandleNotification(Notification{Type: NotificationCallEnded, CallID: "call-other"})
		cur, _ := d.Store().Current()
		if cur.Status != session.StatusActive {
			t.Errorf("Status = %q after foreign event, want %q", cur.Status, session.StatusActive)
		}
	})

	t.Run("RecordingAdded", func(t *testing.T) {
		d.HandleNotification(Notification{
			Type:         NotificationRecordingAdded,
			CallID:       "call-1",
			RecordingURL: "https://example.com/rec/call-1.mp3",
		})
		cur, _ := d.Store().Current()
		if cur.RecordingURL != "https://example.com/rec/call-1.mp3" {
			t.Errorf("RecordingURL = %q", cur.RecordingURL)
		}
	})

	t.Run("MalformedPayloadDropped", func(t *testing.T) {
		d.HandleNotificationData([]byte("{not json"))
		cur, _ := d.Store().Current()
		if cur.Status != session.StatusActive {
			t.Errorf("Status = %q after malformed payload, want %q", cur.Status, session.StatusActive)
		}
	})

	t.Run("Ended", func(t *testing.T) {
		d.HandleNotificationData([]byte(`{"type":"call_ended","call_id":"call-1"}`))
		cur, _ := d.Store().Current()
		if cur.Status != session.StatusEnded {
			t.Errorf("Status = %q, want %q", cur.Status, session.StatusEnded)
		}
	})
}

// TestCallLifecycle drives a full call: dial, ringing via poll, answer via
// push, local duration ticks, then hangup.
func TestCallLifecycle(t *testing.T) {
	backend := &fakeBackend{callID: "call-1", status: "ringing", duration: 0}
	d, _ := newTestDialer(t, backend, &Config{
		PollInterval: 10 * time.Millisecond,
		TickInterval: 10 * time.Millisecond,
	})

	if _, err := d.Dial(context.Background(), "+14155550100", "+14155550101"); err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	waitFor(t, "ringing via poll", func() bool {
		cur, ok := d.Store().Current()
		return ok && cur.Status == session.StatusRinging
	})

	// The answer arrives over the push channel; the poller catches up on
	// its next cycle and must not regress anything.
	backend.mu.Lock()
	backend.status = "active"
	backend.mu.Unlock()
	d.HandleNotification(Notification{Type: NotificationCallAnswered, CallID: "call-1"})

	waitFor(t, "duration ticking", func() bool {
		cur, ok := d.Store().Current()
		return ok && cur.Status == session.StatusActive && cur.DurationSeconds >= 3
	})

	if err := d.Hangup(context.Background()); err != nil {
		t.Fatalf("Hangup() error: %v", err)
	}
	cur, _ := d.Store().Current()
	if cur.Status != session.StatusEnded {
		t.Fatalf("Status = %q, want %q", cur.Status, session.StatusEnded)
	}
	finalDuration := cur.DurationSeconds

	// Loops are stopped: neither the clock nor a late poll may move the
	// terminal session.
	time.Sleep(50 * time.Millisecond)
	cur, _ = d.Store().Current()
	if cur.DurationSeconds != finalDuration || cur.Status != session.StatusEnded {
		t.Errorf("terminal session moved: %+v", cur)
	}
}

func TestPollerStopsWhenBackendForgetsCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/webrtc/initiate" {
			json.NewEncoder(w).Encode(InitiateResponse{CallID: "call-1", Status: "dialing"})
			return
		}
		http.Error(w, `{"detail":"call not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	core, err := dialersdk.NewClient("test-token", &dialersdk.Config{BaseURL: server.URL, MaxRetries: 0})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	d := New(core, session.NewStore(), &Config{PollInterval: 10 * time.Millisecond, TickInterval: time.Hour})

	if _, err := d.Dial(context.Background(), "+14155550100", "+14155550101"); err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	waitFor(t, "session ended after 404", func() bool {
		cur, ok := d.Store().Current()
		return ok && cur.Status == session.StatusEnded
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
