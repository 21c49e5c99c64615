// Package bridge realizes the in-process event/property bridge of
// spec §6 as a localhost websocket server: broadcasting property
// snapshots and signal events to connected clients, and accepting the
// command surface as JSON messages (spec §6's "Pipeline &
// control-plane API surface").
package bridge

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is a signal broadcast to every connected client, e.g.
// settingsChanged, driftDetected, proposalApproved. inputProcessed is
// intentionally never broadcast here — it fires once per mouse event
// and would swamp the socket.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Command is an inbound client request, e.g. {"command":"start"}.
type Command struct {
	ID      string          `json:"id,omitempty"`
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// CommandResult is the bridge's reply to a Command.
type CommandResult struct {
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// CommandHandler dispatches one Command and returns its result.
// cmd/zereca registers handlers for forceReconcile/acknowledgeRollback/
// clearProbation/snapshot/rollback; any other command name gets an
// "unknown command" reply.
type CommandHandler func(cmd Command) (any, error)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Bridge is the websocket hub plus the live property table it
// broadcasts on every change.
type Bridge struct {
	logger *slog.Logger

	mu       sync.RWMutex
	clients  map[*client]bool
	props    map[string]any
	handlers map[string]CommandHandler

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

// New constructs an empty Bridge. Call Run to start its event loop
// and Handler to obtain the http.Handler to mount at e.g. "/ws".
func New(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		logger:     logger.With("component", "bridge"),
		clients:    make(map[*client]bool),
		props:      make(map[string]any),
		handlers:   make(map[string]CommandHandler),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
	}
}

// RegisterHandler binds a command name to its handler.
func (b *Bridge) RegisterHandler(name string, fn CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = fn
}

// SetProperty updates the live property table and broadcasts the
// change to every connected client.
func (b *Bridge) SetProperty(name string, value any) {
	b.mu.Lock()
	b.props[name] = value
	b.mu.Unlock()
	b.EmitEvent("propertyChanged", map[string]any{"name": name, "value": value})
}

// Properties returns a snapshot of the full property table, sent to a
// client on connect.
func (b *Bridge) Properties() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, len(b.props))
	for k, v := range b.props {
		out[k] = v
	}
	return out
}

// EmitEvent broadcasts a named signal to every connected client.
func (b *Bridge) EmitEvent(name string, payload any) {
	data, err := json.Marshal(Event{Name: name, Payload: payload})
	if err != nil {
		b.logger.Warn("bridge: failed to marshal event", "event", name, "error", err)
		return
	}
	select {
	case b.broadcast <- data:
	default:
		b.logger.Warn("bridge: broadcast channel full, dropping event", "event", name)
	}
}

// Run drives the hub's register/unregister/broadcast loop. Blocks
// until done is closed; call in its own goroutine.
func (b *Bridge) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case c := <-b.register:
			b.mu.Lock()
			b.clients[c] = true
			b.mu.Unlock()
		case c := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[c]; ok {
				delete(b.clients, c)
				close(c.send)
			}
			b.mu.Unlock()
		case msg := <-b.broadcast:
			b.mu.RLock()
			for c := range b.clients {
				select {
				case c.send <- msg:
				default:
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Handler returns the http.Handler to serve the websocket endpoint.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Warn("bridge: upgrade failed", "error", err)
			return
		}
		c := &client{bridge: b, conn: conn, send: make(chan []byte, 64)}

		if snap, err := json.Marshal(Event{Name: "properties", Payload: b.Properties()}); err == nil {
			c.send <- snap
		}

		b.register <- c
		go c.writePump()
		go c.readPump()
	})
}

type client struct {
	bridge *Bridge
	conn   *websocket.Conn
	send   chan []byte
}

func (c *client) readPump() {
	defer func() {
		c.bridge.unregister <- c
		c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.writeResult(CommandResult{Success: false, Error: "invalid command payload"})
			continue
		}
		c.bridge.mu.RLock()
		handler, ok := c.bridge.handlers[cmd.Command]
		c.bridge.mu.RUnlock()
		if !ok {
			c.writeResult(CommandResult{ID: cmd.ID, Success: false, Error: "unknown command: " + cmd.Command})
			continue
		}

		result, err := handler(cmd)
		if err != nil {
			c.writeResult(CommandResult{ID: cmd.ID, Success: false, Error: err.Error()})
			continue
		}
		c.writeResult(CommandResult{ID: cmd.ID, Success: true, Result: result})
	}
}

func (c *client) writeResult(r CommandResult) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
