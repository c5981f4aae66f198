// Package wsx is the single websocket surface: one endpoint that multiplexes
// many concurrent live agent sessions over one connection per client.
package wsx

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/huanluu/claude-history-server/internal/authgate"
	. "github.com/huanluu/claude-history-server/internal/logging"
	"github.com/huanluu/claude-history-server/internal/pathguard"
	"github.com/huanluu/claude-history-server/internal/sessionstore"
)

const (
	// sendBufferSize bounds how far a slow client can fall behind before the
	// server disconnects it rather than buffering without limit.
	sendBufferSize = 64

	pingInterval  = 30 * time.Second
	pingTimeout   = 10 * time.Second
	maxMissedPing = 2

	readLimitBytes = 1 << 20
)

// Deps wires the services the /ws handler needs.
type Deps struct {
	Sessions  *sessionstore.Store
	Validator *pathguard.Validator
	Auth      *authgate.Gate
}

// Server owns the websocket upgrade handler.
type Server struct {
	deps Deps
}

// NewServer builds a Server.
func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// HandleUpgrade is registered as the /ws route. It checks the auth gate via
// query parameter, upgrades the connection, and runs the client's
// read/write/ping loops until it disconnects.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Auth.CheckQueryParam(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		L_warn("wsx: upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(readLimitBytes)

	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		deps:   s.deps,
		send:   make(chan outEnvelope, sendBufferSize),
		closed: make(chan struct{}),
	}
	c.run(r.Context())
}

// client is one connected websocket peer and the live sessions it owns.
type client struct {
	id   string
	conn *websocket.Conn
	deps Deps

	send      chan outEnvelope
	closeOnce sync.Once
	closed    chan struct{}
}

func (c *client) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump(ctx)
	}()
	go func() {
		defer wg.Done()
		c.pingLoop(ctx)
	}()

	c.sendOrDrop(outEnvelope{Type: typeAuthResult, Payload: map[string]bool{"success": true}})

	c.readLoop(ctx)

	c.closeClient()
	cancel()
	wg.Wait()

	for _, entry := range c.deps.Sessions.GetAll() {
		if entry.ClientID != c.id || entry.Executor == nil {
			continue
		}
		L_info("wsx: client disconnected, cancelling owned session", "clientId", c.id, "sessionId", entry.SessionID)
		entry.Executor.Cancel()
	}
	c.deps.Sessions.RemoveByClient(c.id)
	c.conn.CloseNow()
}

func (c *client) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		var env inEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		c.dispatch(ctx, env)
	}
}

func (c *client) dispatch(ctx context.Context, env inEnvelope) {
	switch env.Type {
	case typePing:
		c.sendOrDrop(outEnvelope{Type: typePong, ID: env.ID})
	case typeSessionStart:
		c.handleSessionStart(ctx, env, false)
	case typeSessionResume:
		c.handleSessionStart(ctx, env, true)
	case typeSessionCancel:
		c.handleSessionCancel(env)
	default:
		c.sendOrDrop(outEnvelope{Type: typeEcho, ID: env.ID, Payload: map[string]any{"echo": env.Type}})
	}
}

func (c *client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-c.send:
			if !ok {
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err = c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (c *client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				missed++
				if missed >= maxMissedPing {
					L_warn("wsx: client missed liveness pings, disconnecting", "clientId", c.id)
					c.closeClient()
					return
				}
				continue
			}
			missed = 0
		}
	}
}

// sendOrDrop enqueues env without blocking; a client that can't keep up with
// its buffer is disconnected instead of accumulating unbounded memory.
func (c *client) sendOrDrop(env outEnvelope) {
	select {
	case c.send <- env:
	default:
		L_warn("wsx: client send buffer full, disconnecting", "clientId", c.id)
		c.closeClient()
	}
}

// closeClient idempotently tears down the connection so a blocked conn.Read
// in readLoop returns and the client's run loop can unwind and clean up.
func (c *client) closeClient() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close(websocket.StatusPolicyViolation, "disconnected")
	})
}
