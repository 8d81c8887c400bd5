package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxdraft/voxdraft/internal/transport"
)

func TestReconnector_ReconnectsAfterDrop(t *testing.T) {
	t.Parallel()

	var accepted atomic.Int32
	url, upgrades := wsServer(t, func(conn *websocket.Conn) {
		if accepted.Add(1) == 1 {
			conn.Close(websocket.StatusNormalClosure, "drop")
			return
		}
		for {
			if _, _, err := conn.Read(context.Background()); err != nil {
				return
			}
		}
	})

	var reconnected atomic.Bool
	var rec *transport.Reconnector
	ch := transport.New(url, nil, nil, func() { rec.NotifyDisconnect() })
	rec = transport.NewReconnector(transport.ReconnectorConfig{
		Channel:     ch,
		Backoff:     10 * time.Millisecond,
		MaxBackoff:  50 * time.Millisecond,
		OnReconnect: func() { reconnected.Store(true) },
	})
	t.Cleanup(rec.Stop)
	t.Cleanup(func() { ch.Close() })

	ctx := context.Background()
	rec.Monitor(ctx)
	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	waitFor(t, func() bool {
		return upgrades.Load() >= 2 && ch.State() == transport.StateOpen
	}, "channel did not reconnect after server drop")
	waitFor(t, reconnected.Load, "OnReconnect callback did not fire")
}

func TestReconnector_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ch := transport.New(url, nil, nil, nil)
	rec := transport.NewReconnector(transport.ReconnectorConfig{
		Channel:    ch,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
		MaxBackoff: 2 * time.Millisecond,
	})
	t.Cleanup(rec.Stop)

	rec.Monitor(context.Background())
	rec.NotifyDisconnect()

	waitFor(t, func() bool { return dials.Load() == 2 }, "expected two reconnection attempts")
	time.Sleep(25 * time.Millisecond)
	if got := dials.Load(); got != 2 {
		t.Errorf("dials = %d after giving up, want 2", got)
	}
	if st := ch.State(); st != transport.StateClosed {
		t.Errorf("state = %v, want %v", st, transport.StateClosed)
	}
}

func TestReconnector_StopHaltsMonitoring(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ch := transport.New(url, nil, nil, nil)
	rec := transport.NewReconnector(transport.ReconnectorConfig{
		Channel: ch,
		Backoff: time.Millisecond,
	})

	rec.Monitor(context.Background())
	rec.Stop()
	rec.NotifyDisconnect()

	time.Sleep(50 * time.Millisecond)
	if got := dials.Load(); got != 0 {
		t.Errorf("dials = %d after Stop, want 0", got)
	}
}
