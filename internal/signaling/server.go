package signaling

import (
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Server relays signaling messages between cameras and viewers. It keeps
// no session state beyond who is connected.
type Server struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*serverConn
}

type serverConn struct {
	id         string
	clientType string

	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *serverConn) write(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(msg)
}

// NewServer creates a relay accepting connections from any origin.
func NewServer() *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*serverConn),
	}
}

// ServeHTTP upgrades the request and serves one client until it leaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("signaling upgrade: %v", err)
		return
	}
	defer conn.Close()

	var reg Message
	if err := conn.ReadJSON(&reg); err != nil || reg.Type != TypeRegister || reg.ID == "" {
		conn.WriteJSON(Message{Type: TypeError, Msg: "first message must be register with an id"})
		return
	}
	client := &serverConn{id: reg.ID, clientType: reg.ClientType, conn: conn}

	s.mu.Lock()
	if _, taken := s.clients[reg.ID]; taken {
		s.mu.Unlock()
		conn.WriteJSON(Message{Type: TypeError, Msg: "id already registered: " + reg.ID})
		return
	}
	s.clients[reg.ID] = client
	s.mu.Unlock()
	log.Printf("signaling: %s %s registered", reg.ClientType, reg.ID)

	defer s.remove(client)

	if err := client.write(Message{Type: TypeRegistered, ID: reg.ID}); err != nil {
		return
	}
	if client.clientType == ClientTypeCamera {
		s.broadcastCameras(TypeCamerasUpdated)
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		s.handle(client, msg)
	}
}

func (s *Server) handle(from *serverConn, msg Message) {
	switch msg.Type {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		s.mu.Lock()
		target, ok := s.clients[msg.Target]
		s.mu.Unlock()
		if !ok {
			from.write(Message{Type: TypeError, Msg: "unknown target: " + msg.Target})
			return
		}
		msg.From = from.id
		msg.Target = ""
		if err := target.write(msg); err != nil {
			log.Printf("signaling: forward %s to %s: %v", msg.Type, target.id, err)
		}
	case TypeListCameras:
		from.write(Message{Type: TypeCameras, List: s.cameras()})
	case TypePing:
		from.write(Message{Type: TypePong, Timestamp: time.Now().UnixMilli()})
	default:
		from.write(Message{Type: TypeError, Msg: "unsupported message type: " + msg.Type})
	}
}

func (s *Server) remove(c *serverConn) {
	s.mu.Lock()
	if s.clients[c.id] == c {
		delete(s.clients, c.id)
	}
	s.mu.Unlock()
	log.Printf("signaling: %s %s left", c.clientType, c.id)

	if c.clientType == ClientTypeCamera {
		for _, v := range s.viewers() {
			v.write(Message{Type: TypeCameraDisconnected, CameraID: c.id})
		}
		s.broadcastCameras(TypeCamerasUpdated)
	}
}

func (s *Server) cameras() []CameraInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []CameraInfo
	for id, c := range s.clients {
		if c.clientType == ClientTypeCamera {
			list = append(list, CameraInfo{ID: id, Online: true})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (s *Server) viewers() []*serverConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*serverConn
	for _, c := range s.clients {
		if c.clientType == ClientTypeViewer {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) broadcastCameras(typ string) {
	list := s.cameras()
	for _, v := range s.viewers() {
		v.write(Message{Type: typ, List: list})
	}
}
