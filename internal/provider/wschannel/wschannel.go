// Package wschannel implements internal/provider's ChannelSubstrate over
// WebSocket connections, one per entity, server-side: an O process
// listens, a human-facing client dials in to the entity's path.
package wschannel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mutantcacti/o/internal/provider"
	"github.com/mutantcacti/o/internal/world"
)

// inboundBuffer bounds how many unread commands a connection's reader
// goroutine will queue before dropping the oldest (ReadCommand must
// never block the tick).
const inboundBuffer = 32

// inboundMessage is the wire shape a client sends to submit a command.
type inboundMessage struct {
	Command string `json:"command"`
}

// outboundMessage is the wire shape Channel writes back after
// dispatching a command.
type outboundMessage struct {
	Clock   int    `json:"clock"`
	Command string `json:"command"`
	Output  string `json:"output"`
}

// conn wraps one entity's live WebSocket connection and the inbound
// queue its reader goroutine feeds.
type conn struct {
	ws      *websocket.Conn
	inbound chan string
	writeMu sync.Mutex
}

// Channel is a ChannelSubstrate backed by one server-side WebSocket
// connection per entity. It implements http.Handler: mount it at a
// path like "/ws/" and entities dial in at "/ws/<entity-name>".
type Channel struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu    sync.Mutex
	conns map[world.EntityID]*conn
}

// New builds a Channel. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Entity channels are a local operator tool, not a public
			// surface; any origin is accepted the way a CLI would.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:   logger,
		conns: make(map[world.EntityID]*conn),
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers it as
// the live connection for the entity named by the last path segment.
// A prior connection for the same entity is closed and replaced.
func (c *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := lastPathSegment(r.URL.Path)
	if name == "" {
		http.Error(w, "entity name required", http.StatusBadRequest)
		return
	}
	entity := world.NewEntityID(name)

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Warn("wschannel: upgrade failed", "entity", entity, "error", err)
		return
	}

	cn := &conn{ws: ws, inbound: make(chan string, inboundBuffer)}
	c.mu.Lock()
	if old, ok := c.conns[entity]; ok {
		old.ws.Close()
	}
	c.conns[entity] = cn
	c.mu.Unlock()

	go c.readLoop(entity, cn)
}

// readLoop drains inbound JSON command messages from one connection
// until it closes, queuing them without blocking the tick loop.
func (c *Channel) readLoop(entity world.EntityID, cn *conn) {
	defer cn.ws.Close()
	for {
		var msg inboundMessage
		if err := cn.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("wschannel: connection closed", "entity", entity, "error", err)
			}
			c.mu.Lock()
			if c.conns[entity] == cn {
				delete(c.conns, entity)
			}
			c.mu.Unlock()
			return
		}
		select {
		case cn.inbound <- msg.Command:
		default:
			// Drop the oldest queued command to make room — a stalled
			// consumer must never back up into the WebSocket read.
			select {
			case <-cn.inbound:
			default:
			}
			select {
			case cn.inbound <- msg.Command:
			default:
			}
		}
	}
}

// ReadCommand returns a pending command for entity, if one has been
// received since the last call. Never blocks.
func (c *Channel) ReadCommand(_ context.Context, entity world.EntityID) (string, bool, error) {
	c.mu.Lock()
	cn, ok := c.conns[entity]
	c.mu.Unlock()
	if !ok {
		return "", false, nil
	}
	select {
	case cmd := <-cn.inbound:
		return cmd, true, nil
	default:
		return "", false, nil
	}
}

// WriteOutput sends an execution's result back over entity's
// connection, if one is attached. With no attached consumer, it is
// dropped with a debug log rather than erroring.
func (c *Channel) WriteOutput(_ context.Context, entity world.EntityID, record provider.OutputRecord) error {
	c.mu.Lock()
	cn, ok := c.conns[entity]
	c.mu.Unlock()
	if !ok {
		c.log.Debug("wschannel: no connection attached, dropping output", "entity", entity)
		return nil
	}

	cn.writeMu.Lock()
	defer cn.writeMu.Unlock()
	msg := outboundMessage{Clock: record.Clock, Command: record.Command, Output: record.Output}
	if err := cn.ws.WriteJSON(msg); err != nil {
		return errors.New("wschannel: write_output: " + err.Error())
	}
	return nil
}

// EnsureChannels is a no-op: a WebSocket channel exists only once a
// client dials in at ServeHTTP.
func (c *Channel) EnsureChannels(_ context.Context, _ world.EntityID) error {
	return nil
}

func lastPathSegment(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}
