package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/itrapnauskas/market-simulator/internal/domain"
)

// Subscriber follows a hub, reconnecting with backoff until stopped.
type Subscriber struct {
	url     string
	onState func(domain.MarketState)
	logger  *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup

	Backoff     Backoff
	ReadTimeout time.Duration
}

// NewSubscriber creates a subscriber that calls onState for every state frame.
// onState runs on the read goroutine.
func NewSubscriber(url string, onState func(domain.MarketState), logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		url:         url,
		onState:     onState,
		logger:      logger,
		Backoff:     DefaultBackoff(),
		ReadTimeout: 90 * time.Second,
	}
}

// Start begins the connect loop.
func (s *Subscriber) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.runLoop(ctx)
}

// Stop terminates the subscriber and waits for it to exit.
func (s *Subscriber) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.close()
	s.wg.Wait()
}

func (s *Subscriber) runLoop(ctx context.Context) {
	defer s.wg.Done()
	retry := 0

	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.connect(ctx); err != nil {
			delay := s.Backoff.Delay(retry)
			s.logger.Warn("WS connection failed", slog.String("url", s.url), slog.Any("error", err), slog.Int("retry", retry), slog.Duration("delay", delay))
			retry++
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}
		retry = 0
		s.process(ctx)
	}
}

func (s *Subscriber) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.logger.Info("WS subscribed", slog.String("url", s.url))
	return nil
}

func (s *Subscriber) process(ctx context.Context) {
	for {
		s.mu.RLock()
		c := s.conn
		s.mu.RUnlock()
		if c == nil {
			return
		}

		c.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, websocket.ErrCloseSent) {
				s.logger.Warn("WS read error", slog.Any("error", err))
			}
			s.close()
			return
		}

		f, err := DecodeFrame(msg)
		if err != nil {
			s.logger.Warn("WS malformed frame", slog.Any("error", err))
			continue
		}
		if f.Type == FrameMarketState && s.onState != nil {
			s.onState(f.State)
		}
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
