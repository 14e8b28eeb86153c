package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/itrapnauskas/market-simulator/internal/domain"
)

func httpToWS(url string) string {
	return strings.Replace(url, "http://", "ws://", 1)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestHub(t *testing.T, opts Options) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(opts)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(httpToWS(srv.URL), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastsFrames(t *testing.T) {
	hub, srv := newTestHub(t, Options{})
	a, b := dial(t, srv), dial(t, srv)
	waitFor(t, "two clients", func() bool { return hub.Clients() == 2 })

	hub.Publish(domain.MarketState{Day: 7, Price: 101.5, Volume: 12, Phase: "pump"})

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !strings.HasPrefix(string(msg), `{"type":"market_state","state":{`) {
			t.Errorf("unexpected frame %s", msg)
		}
		f, err := DecodeFrame(msg)
		if err != nil {
			t.Fatal(err)
		}
		if f.State.Day != 7 || f.State.Price != 101.5 || f.State.Phase != "pump" {
			t.Errorf("decoded %+v", f.State)
		}
	}
	if sent, dropped := hub.Stats(); sent != 2 || dropped != 0 {
		t.Errorf("stats sent=%d dropped=%d", sent, dropped)
	}
}

func TestHub_RemovesClosedClients(t *testing.T) {
	hub, srv := newTestHub(t, Options{})
	conn := dial(t, srv)
	waitFor(t, "client", func() bool { return hub.Clients() == 1 })

	conn.Close()
	waitFor(t, "removal", func() bool { return hub.Clients() == 0 })
}

func TestHub_CloseDisconnects(t *testing.T) {
	hub := NewHub(Options{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	waitFor(t, "client", func() bool { return hub.Clients() == 1 })

	hub.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to close")
	}
	if hub.Clients() != 0 {
		t.Errorf("%d clients after Close", hub.Clients())
	}
}

func TestHub_ThrottleDropsFrames(t *testing.T) {
	hub, srv := newTestHub(t, Options{MaxFrameRate: 0.001, Burst: 2})
	dial(t, srv)
	waitFor(t, "client", func() bool { return hub.Clients() == 1 })

	for day := 1; day <= 5; day++ {
		hub.Publish(domain.MarketState{Day: day, Price: 100})
	}
	if sent, dropped := hub.Stats(); sent != 2 || dropped != 3 {
		t.Errorf("stats sent=%d dropped=%d, want 2/3", sent, dropped)
	}
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub, srv := newTestHub(t, Options{SendBuffer: 1, MaxFailures: 2, WriteTimeout: 100 * time.Millisecond})
	dial(t, srv)
	waitFor(t, "client", func() bool { return hub.Clients() == 1 })

	// The client never reads, so the queue fills once the socket buffers do.
	big := domain.MarketState{Phase: strings.Repeat("x", 1<<16)}
	for i := 0; i < 500 && hub.Clients() == 1; i++ {
		hub.Publish(big)
	}
	waitFor(t, "slow client removal", func() bool { return hub.Clients() == 0 })
}

func TestSubscriber_ReceivesStates(t *testing.T) {
	hub, srv := newTestHub(t, Options{})

	got := make(chan domain.MarketState, 4)
	sub := NewSubscriber(httpToWS(srv.URL), func(s domain.MarketState) { got <- s }, nil)
	sub.Start(context.Background())
	defer sub.Stop()

	waitFor(t, "subscriber", func() bool { return hub.Clients() == 1 })
	hub.Publish(domain.MarketState{Day: 3, Price: 99})

	select {
	case s := <-got:
		if s.Day != 3 || s.Price != 99 {
			t.Errorf("received %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no state received")
	}
}

func TestSubscriber_Reconnects(t *testing.T) {
	hub := NewHub(Options{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	sub := NewSubscriber(httpToWS(srv.URL), nil, nil)
	sub.Backoff = Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond}
	sub.Start(context.Background())
	defer sub.Stop()
	waitFor(t, "first connection", func() bool { return hub.Clients() == 1 })

	hub.mu.RLock()
	var first *client
	for c := range hub.clients {
		first = c
	}
	hub.mu.RUnlock()
	first.stop()

	waitFor(t, "reconnection", func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		_, stale := hub.clients[first]
		return !stale && len(hub.clients) == 1
	})
	hub.Close()
}

func TestBackoff_Delay(t *testing.T) {
	b := DefaultBackoff()
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{5, 32 * time.Second},
		{6, time.Minute},
		{100, time.Minute},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.retry); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestThrottle_Refills(t *testing.T) {
	now := time.Unix(0, 0)
	th := newThrottle(1, 2)
	th.now = func() time.Time { return now }
	th.lastRefill = now

	if !th.allow() || th.allow() {
		t.Fatal("burst of one not enforced")
	}
	now = now.Add(500 * time.Millisecond)
	if !th.allow() {
		t.Fatal("token not refilled after 1/rate seconds")
	}
}

func TestBreaker_Trips(t *testing.T) {
	b := newBreaker(2)
	if b.failure() {
		t.Fatal("tripped after one failure")
	}
	b.success()
	if b.failure() {
		t.Fatal("success did not reset the count")
	}
	if !b.failure() || !b.isOpen() {
		t.Fatal("did not trip after two consecutive failures")
	}
}
