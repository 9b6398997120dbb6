package peer

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/rscapture/internal/transport"
)

// Viewer manages the viewer side of the WebRTC connection.
type Viewer struct {
	pc        *webrtc.PeerConnection
	sig       Signaler
	transport *transport.DataChannelTransport
	cameraID  string

	// Candidates that arrive before the answer are held back; pion rejects
	// them without a remote description.
	mu       sync.Mutex
	answered bool
	pending  []json.RawMessage
}

// NewViewer creates a Viewer peer manager for cameraID.
func NewViewer(sig Signaler, cameraID string) (*Viewer, error) {
	pc, err := NewPeerConnection()
	if err != nil {
		return nil, err
	}

	v := &Viewer{
		pc:        pc,
		sig:       sig,
		transport: transport.NewDataChannelTransport(nil),
		cameraID:  cameraID,
	}

	// The offer needs at least one m-line; the camera answers with its
	// own frames channel.
	if _, err := pc.CreateDataChannel("control", nil); err != nil {
		pc.Close()
		return nil, err
	}

	// Accept data channels from the camera.
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Printf("data channel received: %s", dc.Label())
		if dc.Label() != transport.FramesLabel {
			return
		}
		dc.OnOpen(func() {
			log.Println("frames data channel open")
		})
		v.transport.SetFramesChannel(dc)
	})

	trickle(pc, sig, func() string { return cameraID })
	return v, nil
}

// Transport returns the DataChannelTransport.
func (v *Viewer) Transport() *transport.DataChannelTransport {
	return v.transport
}

// Connect initiates the WebRTC connection by creating and sending an offer.
func (v *Viewer) Connect() error {
	offer, err := v.pc.CreateOffer(nil)
	if err != nil {
		return err
	}

	if err := v.pc.SetLocalDescription(offer); err != nil {
		return err
	}

	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return err
	}

	return v.sig.SendOffer(v.cameraID, offerJSON)
}

// HandleAnswer processes an incoming SDP answer.
func (v *Viewer) HandleAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return err
	}
	if err := v.pc.SetRemoteDescription(answer); err != nil {
		return err
	}

	v.mu.Lock()
	v.answered = true
	pending := v.pending
	v.pending = nil
	v.mu.Unlock()
	for _, c := range pending {
		if err := addCandidate(v.pc, c); err != nil {
			log.Printf("add buffered ICE candidate: %v", err)
		}
	}
	return nil
}

// HandleICECandidate adds a remote ICE candidate.
func (v *Viewer) HandleICECandidate(payload json.RawMessage) error {
	v.mu.Lock()
	if !v.answered {
		v.pending = append(v.pending, payload)
		v.mu.Unlock()
		return nil
	}
	v.mu.Unlock()
	return addCandidate(v.pc, payload)
}

// Close shuts down the peer connection.
func (v *Viewer) Close() {
	if v.pc != nil {
		v.pc.Close()
	}
}
