package peer

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/rscapture/internal/transport"
)

// ErrNoViewer is returned by Publisher.SendFrame while nobody is watching.
var ErrNoViewer = errors.New("no viewer connected")

// session is the camera side of one viewer connection.
type session struct {
	pc        *webrtc.PeerConnection
	transport *transport.DataChannelTransport
	viewerID  string
}

func newSession(sig Signaler, viewerID string) (*session, error) {
	pc, err := NewPeerConnection()
	if err != nil {
		return nil, err
	}

	// Preview frames are disposable: unordered, never retransmitted.
	ordered := false
	maxRetransmits := uint16(0)
	framesDC, err := pc.CreateDataChannel(transport.FramesLabel, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}

	s := &session{
		pc:        pc,
		transport: transport.NewDataChannelTransport(framesDC),
		viewerID:  viewerID,
	}
	trickle(pc, sig, func() string { return s.viewerID })
	return s, nil
}

// answer applies the viewer's offer and replies with an answer.
func (s *session) answer(sig Signaler, payload json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return err
	}
	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return err
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return err
	}
	answerJSON, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return sig.SendAnswer(s.viewerID, answerJSON)
}

// Publisher serves preview frames to at most one viewer at a time. A new
// offer replaces the current viewer.
type Publisher struct {
	sig Signaler

	mu      sync.Mutex
	current *session
}

// NewPublisher creates a Publisher answering offers through sig.
func NewPublisher(sig Signaler) *Publisher {
	return &Publisher{sig: sig}
}

// HandleOffer processes an incoming offer from a viewer.
func (p *Publisher) HandleOffer(from string, payload json.RawMessage) error {
	s, err := newSession(p.sig, from)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.current
	p.current = s
	p.mu.Unlock()
	if old != nil {
		log.Printf("viewer %s replaced by %s", old.viewerID, from)
		old.pc.Close()
	}

	return s.answer(p.sig, payload)
}

// HandleICECandidate adds a remote ICE candidate from the current viewer.
func (p *Publisher) HandleICECandidate(from string, payload json.RawMessage) error {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s == nil || s.viewerID != from {
		return nil
	}
	return addCandidate(s.pc, payload)
}

// SendFrame sends an encoded frame to the current viewer.
func (p *Publisher) SendFrame(data []byte) error {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s == nil {
		return ErrNoViewer
	}
	return s.transport.SendFrame(data)
}

// Close shuts down the current viewer connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	s := p.current
	p.current = nil
	p.mu.Unlock()
	if s != nil {
		s.pc.Close()
	}
}
