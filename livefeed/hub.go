// Package livefeed streams published widget snapshots to browsers over websockets.
package livefeed

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tsawler/go-mlplayground/logging"
	"github.com/tsawler/go-mlplayground/loop"
)

const (
	broadcastBuffer = 64
	writeWait       = 5 * time.Second
)

// Frame is one message on the feed. Sequence numbers are shared across widgets and grow
// with every broadcast; a client never sees a widget's frames out of order or twice, even
// when it connects while a frame is in flight.
type Frame struct {
	Widget   string      `json:"widget"`
	Sequence uint64      `json:"sequence"`
	Snapshot interface{} `json:"snapshot"`
}

// Command is a control message sent by a client, e.g. {"widget":"kmeans","action":"toggle"}
type Command struct {
	Widget string `json:"widget"`
	Action string `json:"action"`
}

// CommandHandler executes a client command
type CommandHandler func(cmd Command) error

// message is an encoded frame waiting to be written
type message struct {
	widget string
	seq    uint64
	data   []byte
}

// Hub fans frames out to every connected client. A single goroutine owns all connection
// writes; a new client first receives the latest frame of every widget.
type Hub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]map[string]uint64 // last sequence written per widget
	register  chan *websocket.Conn
	remove    chan *websocket.Conn
	broadcast chan message
	done      chan struct{}
	finished  chan struct{}
	closeOnce sync.Once
	log       *logging.Logger

	mu       sync.RWMutex
	latest   map[string]message
	order    []string
	onCmd    CommandHandler
	sequence atomic.Uint64
	count    atomic.Int32
	dropped  atomic.Uint64
}

// NewHub starts a hub
func NewHub(logger *logging.Logger) *Hub {
	hub := newHub(logger)
	go hub.run()
	return hub
}

func newHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]map[string]uint64),
		register:  make(chan *websocket.Conn),
		remove:    make(chan *websocket.Conn),
		broadcast: make(chan message, broadcastBuffer),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		latest:    make(map[string]message),
		log:       logger,
	}
}

// SetCommandHandler installs the handler for client control messages
func (h *Hub) SetCommandHandler(fn CommandHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCmd = fn
}

func (h *Hub) run() {
	defer close(h.finished)

	for {
		select {
		case conn := <-h.register:
			h.add(conn)
		case conn := <-h.remove:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				h.count.Store(int32(len(h.clients)))
				conn.Close()
			}
		case msg := <-h.broadcast:
			h.deliver(msg)
		case <-h.done:
			for conn := range h.clients {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				conn.Close()
				delete(h.clients, conn)
			}
			h.count.Store(0)
			return
		}
	}
}

// add registers conn and replays the latest frame of every widget to it
func (h *Hub) add(conn *websocket.Conn) {
	h.clients[conn] = make(map[string]uint64)
	h.count.Store(int32(len(h.clients)))
	for _, msg := range h.replay() {
		if !h.write(conn, msg) {
			return
		}
	}
}

// deliver writes msg to every client that has not already seen it or a newer frame of
// the same widget
func (h *Hub) deliver(msg message) {
	for conn := range h.clients {
		h.write(conn, msg)
	}
}

// write sends msg to conn and drops the client on failure. Only run calls it.
func (h *Hub) write(conn *websocket.Conn, msg message) bool {
	seen := h.clients[conn]
	if seen == nil {
		return false
	}
	if msg.seq <= seen[msg.widget] {
		return true
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
		h.log.Warnf("livefeed: failed to send frame to client: %v", err)
		delete(h.clients, conn)
		h.count.Store(int32(len(h.clients)))
		conn.Close()
		return false
	}
	seen[msg.widget] = msg.seq
	return true
}

// replay returns the latest frame of every widget in first-seen order
func (h *Hub) replay() []message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]message, 0, len(h.order))
	for _, w := range h.order {
		out = append(out, h.latest[w])
	}
	return out
}

// Broadcast sends snapshot to every client as a frame of widget. It never blocks: when the
// send buffer is full the frame is dropped for live clients but still kept for replay.
func (h *Hub) Broadcast(widget string, snapshot interface{}) error {
	frame := Frame{Widget: widget, Sequence: h.sequence.Add(1), Snapshot: snapshot}
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Errorf("livefeed: failed to marshal %s frame: %v", widget, err)
		return err
	}

	msg := message{widget: widget, seq: frame.Sequence, data: data}

	h.mu.Lock()
	prev, ok := h.latest[widget]
	if !ok {
		h.order = append(h.order, widget)
	}
	if prev.seq < msg.seq {
		h.latest[widget] = msg
	}
	h.mu.Unlock()

	select {
	case <-h.done:
		return nil
	default:
	}

	select {
	case h.broadcast <- msg:
	default:
		if n := h.dropped.Add(1); n == 1 || n%100 == 0 {
			h.log.Warnf("livefeed: broadcast buffer full, %d frames dropped", n)
		}
	}
	return nil
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// ServeHTTP upgrades the request and reads client commands until the connection closes
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "live feed closed", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("livefeed: websocket upgrade failed: %v", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go h.readLoop(conn)
}

func (h *Hub) readLoop(conn *websocket.Conn) {
	defer func() {
		select {
		case h.remove <- conn:
		case <-h.done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warnf("livefeed: websocket error: %v", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			h.log.Debugf("livefeed: ignoring malformed command: %v", err)
			continue
		}
		h.mu.RLock()
		handler := h.onCmd
		h.mu.RUnlock()
		if handler == nil {
			continue
		}
		if err := handler(cmd); err != nil {
			h.log.Warnf("livefeed: command %s/%s failed: %v", cmd.Widget, cmd.Action, err)
		}
	}
}

// Close disconnects every client and stops the hub
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		<-h.finished
	})
}

// Publisher returns a driver publisher that broadcasts every snapshot as a frame of widget
func Publisher[S any](h *Hub, widget string) loop.PublisherFunc[S] {
	return func(snapshot S) {
		h.Broadcast(widget, snapshot)
	}
}
