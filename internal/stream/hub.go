package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/itrapnauskas/market-simulator/internal/domain"
)

// Options configures a Hub. Zero values select the defaults.
type Options struct {
	// MaxFrameRate caps published frames per second; 0 publishes every round.
	MaxFrameRate float64
	Burst        int
	// SendBuffer is the per-client queue length.
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	// MaxFailures consecutive full queues or failed writes drop a client.
	MaxFailures int
	Logger      *slog.Logger
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	breaker *breaker
	done    chan struct{}
	once    sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// kill also closes the socket so a writer blocked on it returns at once.
func (c *client) kill() {
	c.stop()
	c.conn.Close()
}

// Hub fans market states out to every connected websocket client.
// Each client has its own queue and writer goroutine, so a slow client
// loses frames instead of delaying the simulation.
type Hub struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
	throttle *throttle

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub(opts Options) *Hub {
	if opts.SendBuffer < 1 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.MaxFailures < 1 {
		opts.MaxFailures = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &Hub{
		opts:    opts,
		logger:  opts.Logger,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			// Viewers are local dashboards.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if opts.MaxFrameRate > 0 {
		h.throttle = newThrottle(opts.Burst, opts.MaxFrameRate)
	}
	return h
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WS upgrade failed", slog.Any("error", err))
		return
	}
	c := &client{
		conn:    conn,
		send:    make(chan []byte, h.opts.SendBuffer),
		breaker: newBreaker(h.opts.MaxFailures),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	h.logger.Info("WS client connected", slog.String("remote", r.RemoteAddr), slog.Int("clients", h.Clients()))
	go h.writeLoop(c)
	go h.readLoop(c)
}

// Publish queues s for every client. It never blocks.
func (h *Hub) Publish(s domain.MarketState) {
	if h.throttle != nil && !h.throttle.allow() {
		h.dropped.Add(1)
		return
	}
	msg, err := EncodeState(s)
	if err != nil {
		h.logger.Error("WS encode failed", slog.Int("day", s.Day), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
			h.sent.Add(1)
		default:
			h.dropped.Add(1)
			if c.breaker.failure() {
				c.kill()
			}
		}
	}
}

// Clients returns the number of registered connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns frames queued and frames dropped so far.
func (h *Hub) Stats() (sent, dropped uint64) {
	return h.sent.Load(), h.dropped.Load()
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		c.stop()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		h.logger.Info("WS client disconnected", slog.String("remote", c.conn.RemoteAddr().String()))
	}
}

// writeLoop is the only writer of c.conn.
func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	ping := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ping.Stop()
		h.remove(c)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Warn("WS write error", slog.Any("error", err))
				if c.breaker.failure() {
					return
				}
				continue
			}
			c.breaker.success()
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// readLoop drains control frames and notices when the peer goes away.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer c.stop()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ListenAndServe serves the hub at /ws on addr until ctx is cancelled.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	h.logger.Info("WS hub listening", slog.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		h.Close()
		return err
	}
}
