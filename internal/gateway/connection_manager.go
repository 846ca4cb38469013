package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jdev09/woodshed/internal/timer/session"
)

// CommandRouter is what the connection manager needs from the session layer
// to apply client actions.
type CommandRouter interface {
	HandleCommand(ctx context.Context, sessionID uuid.UUID, cmd session.Command) error
}

// ConnectionManager manages WebSocket connections grouped by session. One
// session can have several connected devices; every engine event fans out to
// all of them.
type ConnectionManager struct {
	sessionConns map[uuid.UUID]map[*Connection]bool
	mu           sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	router   CommandRouter

	broadcastCh chan WireEvent
}

// Connection is one WebSocket client attached to a session. Send is never
// closed; unregister closes done instead, so a broadcast racing a disconnect
// can never send on a closed channel.
type Connection struct {
	ID        string
	SessionID uuid.UUID
	Conn      *websocket.Conn
	Send      chan []byte
	done      chan struct{}
	Manager   *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds WebSocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production.
			return true
		},
	}
}

// NewConnectionManager creates a connection manager routing client commands
// through router.
func NewConnectionManager(config ConnectionConfig, router CommandRouter) *ConnectionManager {
	return &ConnectionManager{
		sessionConns: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		router:      router,
		broadcastCh: make(chan WireEvent, 1000),
	}
}

// Start processes broadcast events until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case event := <-cm.broadcastCh:
			cm.handleBroadcast(event)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket attached to a
// session and starts its pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		done:        make(chan struct{}),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.register(connection)
	go connection.writePump()
	go connection.readPump(r.Context())

	log.Info().
		Str("connection_id", connection.ID).
		Str("session_id", sessionID.String()).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) register(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.sessionConns[conn.SessionID] == nil {
		cm.sessionConns[conn.SessionID] = make(map[*Connection]bool)
	}
	cm.sessionConns[conn.SessionID][conn] = true
}

func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if conns, ok := cm.sessionConns[conn.SessionID]; ok {
		if _, ok := conns[conn]; ok {
			delete(conns, conn)
			// Map membership guards the close; unregister from both pumps
			// only closes done once.
			close(conn.done)
			if len(conns) == 0 {
				delete(cm.sessionConns, conn.SessionID)
			}
			log.Info().
				Str("connection_id", conn.ID).
				Str("session_id", conn.SessionID.String()).
				Msg("connection unregistered")
		}
	}
}

// Broadcast queues an event for every connection on a session. Non-blocking;
// a full queue drops the event and the client catches up from a later state
// broadcast.
func (cm *ConnectionManager) Broadcast(event WireEvent) {
	select {
	case cm.broadcastCh <- event:
	default:
		log.Warn().Str("session_id", event.SessionID).Msg("broadcast channel full, dropping event")
	}
}

func (cm *ConnectionManager) handleBroadcast(event WireEvent) {
	sessionID, err := uuid.Parse(event.SessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", event.SessionID).Msg("broadcast with bad session id")
		return
	}

	cm.mu.RLock()
	conns, ok := cm.sessionConns[sessionID]
	if !ok {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(conns))
	for conn := range conns {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case <-conn.done:
			// Disconnecting; the write pump is already on its way out.
		case conn.Send <- data:
		default:
			// Slow or dead client; evict it.
			log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, closing connection")
			cm.unregister(conn)
			conn.Conn.Close()
		}
	}
}

// Stats returns counts of active connections and sessions.
func (cm *ConnectionManager) Stats() (totalConnections, activeSessions int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, conns := range cm.sessionConns {
		totalConnections += len(conns)
	}
	return totalConnections, len(cm.sessionConns)
}

// writePump sends queued events and pings until the connection dies.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregister(c)
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump reads client command frames and routes them to the session.
func (c *Connection) readPump(ctx context.Context) {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			break
		}
		c.handleClientMessage(ctx, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage parses a command frame and hands it to the router.
// Command errors go back to the sender only; they never abort the timer.
func (c *Connection) handleClientMessage(ctx context.Context, message []byte) {
	var cmd session.Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("unparseable client message")
		c.sendError("bad command payload")
		return
	}
	if err := c.Manager.router.HandleCommand(ctx, c.SessionID, cmd); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Str("action", cmd.Action).Msg("client command rejected")
		c.sendError(err.Error())
	}
}

func (c *Connection) sendError(msg string) {
	data, err := json.Marshal(map[string]string{"type": "ERROR", "error": msg})
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.Send <- data:
	default:
	}
}
