/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package media manages the WebRTC audio leg of a call with Pion. Each
// call gets its own Session, created when the call starts and closed on
// hangup; nothing in this package outlives the call that owns it.
package media

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const (
	// telephoneEventPayloadType is the negotiated payload type for
	// RFC 4733 DTMF events.
	telephoneEventPayloadType = 101

	// dtmfSampleInterval is the RTP timestamp step between DTMF packets
	// at an 8kHz clock (20ms frames).
	dtmfSampleInterval = 160
)

// Config holds configuration for a media session.
type Config struct {
	// ICEServers is the list of ICE servers (STUN/TURN) to use.
	ICEServers []webrtc.ICEServer
}

// DefaultConfig returns a Config with a public STUN server. The client
// usually sits behind NAT and the far side needs a srflx candidate to
// reach us.
func DefaultConfig() *Config {
	return &Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// Session is the WebRTC peer connection and audio tracks for one call.
type Session struct {
	mu             sync.Mutex
	peerConnection *webrtc.PeerConnection
	audioTrack     *webrtc.TrackLocalStaticRTP
	dtmfTrack      *webrtc.TrackLocalStaticRTP
	remoteTrack    *webrtc.TrackRemote
	onRemoteTrack  func(track *webrtc.TrackRemote)
	muted          bool
	closed         bool

	audioSeq       uint16
	audioTimestamp uint32
	dtmfSeq        uint16
	dtmfTimestamp  uint32
}

// NewSession creates a peer connection with narrowband telephony codecs.
// Only PCMU and PCMA are registered; media gateways on the PSTN side do
// not negotiate anything wider, and extra codecs just bloat the offer.
func NewSession(config *Config) (*Session, error) {
	if config == nil {
		config = DefaultConfig()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000},
		PayloadType:        0,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register PCMU: %w", err)
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMA, ClockRate: 8000},
		PayloadType:        8,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register PCMA: %w", err)
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: "audio/telephone-event", ClockRate: 8000},
		PayloadType:        telephoneEventPayloadType,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register telephone-event: %w", err)
	}

	// Some gateways send RTP before the SDP answer settles. Accept
	// undeclared SSRCs so OnTrack fires for early media.
	settings := webrtc.SettingEngine{}
	settings.SetHandleUndeclaredSSRCWithoutAnswer(true)

	// A custom MediaEngine needs the default interceptors registered by
	// hand, otherwise incoming SRTP is not processed and OnTrack stays
	// silent.
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithSettingEngine(settings),
		webrtc.WithInterceptorRegistry(i),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: config.ICEServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	s := &Session{peerConnection: pc}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		s.mu.Lock()
		s.remoteTrack = track
		handler := s.onRemoteTrack
		s.mu.Unlock()
		if handler != nil {
			handler(track)
		}
	})

	if err := s.addTracks(); err != nil {
		pc.Close()
		return nil, err
	}

	return s, nil
}

// addTracks attaches the voice and DTMF tracks to the peer connection.
func (s *Session) addTracks() error {
	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000},
		"audio", "softphone",
	)
	if err != nil {
		return fmt.Errorf("failed to create audio track: %w", err)
	}

	// sendrecv so a bidirectional transceiver exists and OnTrack fires
	// when the far side sends RTP back.
	transceiver, err := s.peerConnection.AddTransceiverFromTrack(audio,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv},
	)
	if err != nil {
		return fmt.Errorf("failed to add audio transceiver: %w", err)
	}
	go drainRTCP(transceiver.Sender())

	dtmf, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: "audio/telephone-event", ClockRate: 8000},
		"dtmf", "softphone",
	)
	if err != nil {
		return fmt.Errorf("failed to create DTMF track: %w", err)
	}
	dtmfTransceiver, err := s.peerConnection.AddTransceiverFromTrack(dtmf,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly},
	)
	if err != nil {
		return fmt.Errorf("failed to add DTMF transceiver: %w", err)
	}
	go drainRTCP(dtmfTransceiver.Sender())

	s.audioTrack = audio
	s.dtmfTrack = dtmf
	return nil
}

// drainRTCP reads RTCP from a sender to keep the interceptors fed.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// OnRemoteTrack sets the callback for the remote audio track.
func (s *Session) OnRemoteTrack(handler func(track *webrtc.TrackRemote)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemoteTrack = handler
}

// RemoteTrack returns the remote audio track, if one has arrived.
func (s *Session) RemoteTrack() *webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteTrack
}

// CreateOffer produces a complete SDP offer, blocking until ICE
// gathering finishes so the offer carries its candidates inline.
func (s *Session) CreateOffer() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, err := s.peerConnection.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := s.peerConnection.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	<-webrtc.GatheringCompletePromise(s.peerConnection)

	localDesc := s.peerConnection.LocalDescription()
	if localDesc == nil {
		return "", fmt.Errorf("local description is nil after gathering")
	}
	return sanitizeOffer(localDesc.SDP), nil
}

// SetRemoteAnswer applies the far side's SDP answer. Duplicate answers
// are ignored once signaling is stable.
func (s *Session) SetRemoteAnswer(sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.peerConnection.SignalingState() == webrtc.SignalingStateStable {
		return nil
	}
	return s.peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

// WriteAudio sends one 20ms frame of encoded audio. Frames written while
// muted are dropped, which keeps the track alive without carrying voice.
func (s *Session) WriteAudio(payload []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("media session closed")
	}
	if s.muted {
		s.audioTimestamp += dtmfSampleInterval
		s.mu.Unlock()
		return nil
	}
	track := s.audioTrack
	s.audioSeq++
	seq := s.audioSeq
	s.audioTimestamp += dtmfSampleInterval
	ts := s.audioTimestamp
	s.mu.Unlock()

	return track.WriteRTP(&rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: seq,
			Timestamp:      ts,
		},
		Payload: payload,
	})
}

// Mute drops outgoing audio frames without renegotiating.
func (s *Session) Mute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = true
}

// Unmute resumes outgoing audio.
func (s *Session) Unmute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = false
}

// IsMuted returns whether outgoing audio is muted.
func (s *Session) IsMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// dtmfEvents maps dialable digits to RFC 4733 event codes.
var dtmfEvents = map[string]byte{
	"0": 0, "1": 1, "2": 2, "3": 3, "4": 4,
	"5": 5, "6": 6, "7": 7, "8": 8, "9": 9,
	"*": 10, "#": 11,
}

// SendDigit transmits one DTMF digit in-band as RFC 4733 telephone
// events: three packets marking the press with growing duration, then
// three end packets. Gateways expect the redundant end packets.
func (s *Session) SendDigit(digit string) error {
	event, ok := dtmfEvents[digit]
	if !ok {
		return fmt.Errorf("invalid DTMF digit %q", digit)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("media session closed")
	}
	track := s.dtmfTrack
	s.dtmfTimestamp += dtmfSampleInterval
	ts := s.dtmfTimestamp
	s.mu.Unlock()

	packets := []struct {
		end      bool
		duration uint16
		marker   bool
	}{
		{false, 1 * dtmfSampleInterval, true},
		{false, 2 * dtmfSampleInterval, false},
		{false, 3 * dtmfSampleInterval, false},
		{true, 4 * dtmfSampleInterval, false},
		{true, 4 * dtmfSampleInterval, false},
		{true, 4 * dtmfSampleInterval, false},
	}

	for _, p := range packets {
		payload := dtmfPayload(event, p.end, p.duration)

		s.mu.Lock()
		s.dtmfSeq++
		seq := s.dtmfSeq
		s.mu.Unlock()

		err := track.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         p.marker,
				SequenceNumber: seq,
				Timestamp:      ts,
			},
			Payload: payload,
		})
		if err != nil {
			return fmt.Errorf("failed to write DTMF packet: %w", err)
		}
	}
	return nil
}

// dtmfPayload encodes one RFC 4733 event payload: event code, end bit
// plus volume, then a 16-bit duration in timestamp units.
func dtmfPayload(event byte, end bool, duration uint16) []byte {
	volume := byte(10)
	if end {
		volume |= 0x80
	}
	return []byte{
		event,
		volume,
		byte(duration >> 8),
		byte(duration),
	}
}

// Close tears down the peer connection. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pc := s.peerConnection
	s.mu.Unlock()

	if pc != nil {
		if err := pc.Close(); err != nil {
			return fmt.Errorf("failed to close peer connection: %w", err)
		}
	}
	return nil
}

// sanitizeOffer strips SDP attributes that PSTN media gateways do not
// understand: IPv6 candidates, rtcp-fb, and RTP header extensions.
func sanitizeOffer(sdp string) string {
	lines := strings.Split(sdp, "\r\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, "a=candidate:") {
			parts := strings.Fields(line)
			if len(parts) >= 5 && strings.Contains(parts[4], ":") {
				continue
			}
		}
		if strings.HasPrefix(line, "a=rtcp-fb:") {
			continue
		}
		if strings.HasPrefix(line, "a=extmap:") {
			continue
		}
		if strings.HasPrefix(line, "a=extmap-allow-mixed") {
			continue
		}
		filtered = append(filtered, line)
	}
	return strings.Join(filtered, "\r\n")
}
