/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package session

import (
	"errors"
	"sync"
)

// ErrCallInProgress is returned by Begin when a non-terminal session
// already occupies the store.
var ErrCallInProgress = errors.New("a call is already in progress")

// Store is the single-slot holder for the current CallSession.
//
// All mutation goes through Begin, Apply, Tick, ToggleSpeaker and Clear.
// Apply is the shared merge point for the polling and push channels: it is
// idempotent for repeated identical patches, drops patches whose CallID
// does not match the current session, and refuses any change after the
// session reaches a terminal status.
type Store struct {
	mu      sync.RWMutex
	current *CallSession

	// Emitter notifies listeners of session changes for UI re-render.
	Emitter *EventEmitter
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		Emitter: NewEventEmitter(),
	}
}

// Current returns a copy of the current session, and whether one exists.
func (s *Store) Current() (CallSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return CallSession{}, false
	}
	return *s.current, true
}

// Begin installs sess as the current session. It fails with
// ErrCallInProgress when a non-terminal session already exists; a prior
// ended or failed session is replaced implicitly.
func (s *Store) Begin(sess CallSession) error {
	s.mu.Lock()
	if s.current != nil && !s.current.Status.IsTerminal() {
		s.mu.Unlock()
		return ErrCallInProgress
	}
	s.current = &sess
	cp := sess
	s.mu.Unlock()

	s.Emitter.Emit(string(EventStarted), cp)
	return nil
}

// Apply merges a partial update into the current session.
//
// Patches for a CallID other than the current session's are silently
// dropped — this guards against stale timers and late poll responses
// firing after a hangup or a rapid re-dial. Patches arriving after the
// session reached a terminal status are dropped as well. The status
// carried by the patch is normalized before merging, and the duration is
// monotonic: a patch can only move it forward.
//
// Apply reports whether the session changed.
func (s *Store) Apply(p Patch) bool {
	s.mu.Lock()
	cur := s.current
	if cur == nil || p.CallID == "" || p.CallID != cur.CallID {
		s.mu.Unlock()
		return false
	}
	if cur.Status.IsTerminal() {
		s.mu.Unlock()
		return false
	}

	changed := false
	wasTerminal := false

	if p.Status != nil {
		next := Normalize(string(*p.Status))
		if next != cur.Status {
			cur.Status = next
			changed = true
			wasTerminal = next.IsTerminal()
		}
	}
	if p.DurationSeconds != nil && *p.DurationSeconds > cur.DurationSeconds {
		cur.DurationSeconds = *p.DurationSeconds
		changed = true
	}
	if p.IsMuted != nil && *p.IsMuted != cur.IsMuted {
		cur.IsMuted = *p.IsMuted
		changed = true
	}
	if p.IsOnHold != nil && *p.IsOnHold != cur.IsOnHold {
		cur.IsOnHold = *p.IsOnHold
		changed = true
	}
	if p.IsRecording != nil && *p.IsRecording != cur.IsRecording {
		cur.IsRecording = *p.IsRecording
		changed = true
	}
	if p.RecordingURL != nil && *p.RecordingURL != "" && *p.RecordingURL != cur.RecordingURL {
		cur.RecordingURL = *p.RecordingURL
		changed = true
	}
	if p.ErrorMessage != nil && *p.ErrorMessage != cur.ErrorMessage {
		cur.ErrorMessage = *p.ErrorMessage
		changed = true
	}

	cp := *cur
	s.mu.Unlock()

	if !changed {
		return false
	}

	s.Emitter.Emit(string(EventUpdated), cp)
	if wasTerminal {
		if cp.Status == StatusFailed {
			s.Emitter.Emit(string(EventFailed), cp)
		} else {
			s.Emitter.Emit(string(EventEnded), cp)
		}
	}
	return true
}

// Tick advances the duration by one second while the call is active.
// It is a no-op in every other status.
func (s *Store) Tick() {
	s.mu.Lock()
	cur := s.current
	if cur == nil || cur.Status != StatusActive {
		s.mu.Unlock()
		return
	}
	cur.DurationSeconds++
	cp := *cur
	s.mu.Unlock()

	s.Emitter.Emit(string(EventUpdated), cp)
}

// ToggleSpeaker flips the local speaker flag. Speaker routing never
// round-trips to the backend and is never overwritten by reconciliation.
// It returns the new value, or false when no session exists.
func (s *Store) ToggleSpeaker() bool {
	s.mu.Lock()
	cur := s.current
	if cur == nil || cur.Status.IsTerminal() {
		s.mu.Unlock()
		return false
	}
	cur.SpeakerOn = !cur.SpeakerOn
	on := cur.SpeakerOn
	cp := *cur
	s.mu.Unlock()

	s.Emitter.Emit(string(EventUpdated), cp)
	return on
}

// Clear drops the current session, e.g. after post-call notes are archived.
func (s *Store) Clear() {
	s.mu.Lock()
	had := s.current != nil
	s.current = nil
	s.mu.Unlock()

	if had {
		s.Emitter.Emit(string(EventCleared), nil)
	}
}
