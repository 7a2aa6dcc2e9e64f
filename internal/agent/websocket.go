package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// Client is a middleman between one operator connection and its session.
type Client struct {
	id      string
	manager *WSManager
	conn    *websocket.Conn
	session *Session
	logger  *zap.Logger

	// Buffered channel of encoded outbound events.
	send chan []byte
	// Tasks waiting for the session. Tasks never run concurrently.
	tasks chan string

	ctx    context.Context
	cancel context.CancelFunc
}

// readPump pumps operator frames from the connection into the task queue.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.manager.deregister(c)
	}()

	srv := c.manager.cfg.Server()
	c.conn.SetReadLimit(srv.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(srv.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(srv.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Websocket client read error", zap.Error(err))
			}
			return
		}

		var msg schemas.OperatorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warn("Ignoring malformed operator frame.", zap.Error(err), zap.ByteString("message", message))
			continue
		}
		if msg.Type != schemas.MessageUserTask {
			c.logger.Debug("Ignoring operator frame of unsupported type.", zap.String("type", string(msg.Type)))
			continue
		}

		select {
		case c.tasks <- msg.Content:
			c.logger.Info("Received task from operator via WebSocket.", zap.String("task", msg.Content))
		default:
			c.logger.Warn("Task queue full; dropping task.", zap.String("task", msg.Content))
			c.emit(schemas.ErrorEvent(msgTaskQueueFull))
		}
	}
}

// taskPump runs queued tasks through the session one after another.
func (c *Client) taskPump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case task := <-c.tasks:
			outcome, err := c.session.Run(c.ctx, task, c.emit)
			if err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Warn("Task ended with error.", zap.String("outcome", string(outcome)), zap.Error(err))
			}
		}
	}
}

// writePump pumps encoded events to the connection, one text frame each.
func (c *Client) writePump() {
	srv := c.manager.cfg.Server()
	ticker := time.NewTicker(srv.PingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(srv.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(srv.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Websocket write failed.", zap.Error(err))
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(srv.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// emit encodes ev and queues it for the writer. Events emitted after the
// connection is gone are dropped.
func (c *Client) emit(ev schemas.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error("Failed to marshal event", zap.Error(err), zap.String("type", string(ev.Type)))
		return
	}
	select {
	case c.send <- payload:
	case <-c.ctx.Done():
	}
}

// WSManager owns the operator connections. Every connection gets its own
// session; sessions share only the dependencies in deps.
type WSManager struct {
	cfg      config.Interface
	deps     SessionDeps
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	mu         sync.RWMutex
	wg         sync.WaitGroup
}

// NewWSManager creates a new WSManager. Run must be started before
// connections are accepted.
func NewWSManager(cfg config.Interface, deps SessionDeps) *WSManager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSManager{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("ws_manager"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The operator UI is served from another origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// Run tracks connections until ctx is cancelled, then closes every client
// and waits for its goroutines to exit.
func (m *WSManager) Run(ctx context.Context) {
	m.logger.Info("WebSocket Manager started.")
	defer m.logger.Info("WebSocket Manager stopped.")

	for {
		select {
		case <-ctx.Done():
			close(m.stopped)
			m.mu.Lock()
			for client := range m.clients {
				client.cancel()
				delete(m.clients, client)
				m.deps.Metrics.SessionClosed()
			}
			m.mu.Unlock()
			m.wg.Wait()
			return
		case client := <-m.register:
			m.mu.Lock()
			m.clients[client] = struct{}{}
			m.mu.Unlock()
			m.deps.Metrics.SessionOpened()
			client.logger.Info("New WebSocket client connected.")
			m.start(client)
		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				m.deps.Metrics.SessionClosed()
				client.logger.Info("WebSocket client disconnected.",
					zap.Int("iterations", client.session.Iterations()))
			}
			m.mu.Unlock()
		}
	}
}

// ActiveClients reports the number of registered connections.
func (m *WSManager) ActiveClients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *WSManager) deregister(c *Client) {
	select {
	case m.unregister <- c:
	case <-m.stopped:
	}
}

// HandleWS upgrades an operator connection and starts its session.
func (m *WSManager) HandleWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-m.stopped:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	srv := m.cfg.Server()
	id := uuid.NewString()
	// Hijacked connections outlive the request, so the client context is
	// not derived from r.Context().
	ctx, cancel := context.WithCancel(context.Background())
	session := NewSession(m.cfg, m.deps)
	client := &Client{
		id:      id,
		manager: m,
		conn:    conn,
		session: session,
		logger:  m.logger.With(zap.String("client_id", id), zap.String("session_id", session.ID())),
		send:    make(chan []byte, srv.SendBuffer),
		tasks:   make(chan string, srv.TaskQueue),
		ctx:     ctx,
		cancel:  cancel,
	}

	select {
	case m.register <- client:
	case <-m.stopped:
		cancel()
		conn.Close()
		return
	}
}

// start launches the client goroutines. It runs on the Run goroutine so the
// wait group never grows while Run is waiting on it.
func (m *WSManager) start(c *Client) {
	m.wg.Add(3)
	go func() { defer m.wg.Done(); c.writePump() }()
	go func() { defer m.wg.Done(); c.readPump() }()
	go func() { defer m.wg.Done(); c.taskPump() }()
}
