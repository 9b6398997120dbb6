package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrRejected is returned by Connect when the server refuses the
// registration, for instance because the id is taken.
var ErrRejected = errors.New("signaling: registration rejected")

// ErrClosed is returned when sending on a client that is not connected.
var ErrClosed = errors.New("signaling: connection closed")

const (
	registerTimeout = 10 * time.Second
	writeTimeout    = 10 * time.Second
	keepalivePeriod = 25 * time.Second
)

// Handler receives messages relayed by the server. Callbacks run on the
// client's read goroutine, one at a time. Nil callbacks are skipped.
type Handler struct {
	OnOffer              func(from string, payload json.RawMessage)
	OnAnswer             func(from string, payload json.RawMessage)
	OnICECandidate       func(from string, payload json.RawMessage)
	OnCamerasUpdated     func(cameras []CameraInfo)
	OnCameraDisconnected func(cameraID string)
	OnError              func(msg string)
}

// Client is a camera or viewer registered with the signaling relay.
type Client struct {
	url     string
	reg     Message
	handler Handler

	writeMu sync.Mutex
	conn    *websocket.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient creates a client that registers as id with role
// ClientTypeCamera or ClientTypeViewer.
func NewClient(url, id, role string, handler Handler) *Client {
	return &Client{
		url:     url,
		reg:     Message{Type: TypeRegister, ID: id, ClientType: role},
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Connect dials the server and registers. It returns once the server has
// accepted the id, so callers may send right away. A refused registration
// yields an error wrapping ErrRejected; cancelling ctx aborts the
// handshake but not an established connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("signaling dial %s: %w", c.url, err)
	}

	abort := context.AfterFunc(ctx, func() { conn.Close() })
	err = c.register(conn)
	if !abort() {
		return ctx.Err()
	}
	if err != nil {
		conn.Close()
		return err
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	go c.readLoop(conn)
	go c.keepalive()
	return nil
}

// register performs the handshake on conn. Relayed messages that overtake
// the acknowledgement are dispatched as usual.
func (c *Client) register(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(c.reg); err != nil {
		return fmt.Errorf("signaling register: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(registerTimeout))
	defer conn.SetReadDeadline(time.Time{})
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("signaling register: %w", err)
		}
		switch msg.Type {
		case TypeRegistered:
			return nil
		case TypeError:
			return fmt.Errorf("%w: %s", ErrRejected, msg.Msg)
		default:
			c.dispatch(msg)
		}
	}
}

// Done is closed when the connection ends, either by Close or because the
// server went away.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close ends the connection. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
	})
}

// SendOffer relays an SDP offer to the peer registered as target.
func (c *Client) SendOffer(target string, payload json.RawMessage) error {
	return c.write(Message{Type: TypeOffer, Target: target, Payload: payload})
}

// SendAnswer relays an SDP answer to the peer registered as target.
func (c *Client) SendAnswer(target string, payload json.RawMessage) error {
	return c.write(Message{Type: TypeAnswer, Target: target, Payload: payload})
}

// SendICECandidate relays a trickled ICE candidate to target.
func (c *Client) SendICECandidate(target string, payload json.RawMessage) error {
	return c.write(Message{Type: TypeICECandidate, Target: target, Payload: payload})
}

// RequestCameraList asks for the cameras currently registered. The answer
// arrives through Handler.OnCamerasUpdated.
func (c *Client) RequestCameraList() error {
	return c.write(Message{Type: TypeListCameras})
}

func (c *Client) write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.Close()
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("signaling connection lost: %v", err)
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	h := c.handler
	switch msg.Type {
	case TypeOffer:
		relayed(h.OnOffer, msg)
	case TypeAnswer:
		relayed(h.OnAnswer, msg)
	case TypeICECandidate:
		relayed(h.OnICECandidate, msg)
	case TypeCameras, TypeCamerasUpdated:
		if h.OnCamerasUpdated != nil {
			h.OnCamerasUpdated(msg.List)
		}
	case TypeCameraDisconnected:
		if h.OnCameraDisconnected != nil {
			h.OnCameraDisconnected(msg.CameraID)
		}
	case TypeError:
		if h.OnError != nil {
			h.OnError(msg.Msg)
		}
	}
}

func relayed(fn func(from string, payload json.RawMessage), msg Message) {
	if fn != nil {
		fn(msg.From, msg.Payload)
	}
}

// keepalive pings the server so idle connections survive proxies.
func (c *Client) keepalive() {
	ticker := time.NewTicker(keepalivePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(Message{Type: TypePing}); err != nil {
				return
			}
		}
	}
}
