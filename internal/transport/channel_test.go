package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxdraft/voxdraft/internal/transport"
	"github.com/voxdraft/voxdraft/pkg/types"
)

// recordingHandler collects dispatched events.
type recordingHandler struct {
	mu     sync.Mutex
	events []types.Event
}

func (h *recordingHandler) HandleEvent(ev types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) snapshot() []types.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.Event(nil), h.events...)
}

// recordingSink collects binary chunks.
type recordingSink struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (s *recordingSink) PlayChunk(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, append([]byte(nil), b...))
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// wsServer runs handler for each accepted websocket and counts upgrades.
func wsServer(t *testing.T, handler func(*websocket.Conn)) (url string, upgrades *atomic.Int32) {
	t.Helper()
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		count.Add(1)
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), &count
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestChannel_ConnectIsIdempotent(t *testing.T) {
	t.Parallel()

	url, upgrades := wsServer(t, func(conn *websocket.Conn) {
		// Hold the connection open until the client goes away.
		_, _, _ = conn.Read(context.Background())
	})

	ch := transport.New(url, nil, nil, nil)
	defer ch.Close()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = ch.Connect(context.Background())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if n := upgrades.Load(); n != 1 {
		t.Errorf("server saw %d connections, want 1", n)
	}
	if ch.State() != transport.StateOpen {
		t.Errorf("state = %v, want open", ch.State())
	}
}

func TestChannel_DemuxesBinaryAndEvents(t *testing.T) {
	t.Parallel()

	url, _ := wsServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		_ = conn.Write(ctx, websocket.MessageBinary, []byte{0x01, 0x02, 0x03, 0x04})
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"llm_stream","token":"hi"}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`not json at all`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"llm_done"}`))
		_, _, _ = conn.Read(ctx)
	})

	handler := &recordingHandler{}
	sink := &recordingSink{}
	ch := transport.New(url, handler, sink, nil)
	defer ch.Close()

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(handler.snapshot()) == 2 }, "events not dispatched")
	waitFor(t, func() bool { return sink.count() == 1 }, "binary chunk not routed")

	events := handler.snapshot()
	if events[0].Type != types.EventLLMStream || events[0].Token != "hi" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Type != types.EventLLMDone {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestChannel_SendWhileClosedDropsSilently(t *testing.T) {
	t.Parallel()

	ch := transport.New("ws://127.0.0.1:1/ws/stream", nil, nil, nil)
	if err := ch.Send(types.TextEvent("hello")); err != nil {
		t.Errorf("Send on closed channel returned error: %v", err)
	}
	if err := ch.SendAudio(make([]byte, 640)); err != nil {
		t.Errorf("SendAudio on closed channel returned error: %v", err)
	}
}

func TestChannel_ConnectFailureRejectsAllWaiters(t *testing.T) {
	t.Parallel()

	// Nothing listens here; dial must fail and every caller must see it.
	ch := transport.New("ws://127.0.0.1:1/ws/stream", nil, nil, nil)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = ch.Connect(context.Background())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			t.Errorf("caller %d: expected dial error, got nil", i)
		}
	}
	if ch.State() != transport.StateClosed {
		t.Errorf("state = %v, want closed", ch.State())
	}
}

func TestChannel_CloseHookFiresExactlyOnce(t *testing.T) {
	t.Parallel()

	url, _ := wsServer(t, func(conn *websocket.Conn) {
		conn.Close(websocket.StatusNormalClosure, "bye")
	})

	var closed atomic.Int32
	ch := transport.New(url, nil, nil, func() { closed.Add(1) })

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return closed.Load() == 1 }, "close hook did not fire")

	// A local close after the remote close must not fire the hook again.
	_ = ch.Close()
	time.Sleep(50 * time.Millisecond)
	if n := closed.Load(); n != 1 {
		t.Errorf("close hook fired %d times, want 1", n)
	}
}

func TestChannel_ReconnectAfterClose(t *testing.T) {
	t.Parallel()

	url, upgrades := wsServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.Read(context.Background())
	})

	var closed atomic.Int32
	ch := transport.New(url, nil, nil, func() { closed.Add(1) })

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = ch.Close()
	waitFor(t, func() bool { return ch.State() == transport.StateClosed }, "channel not closed")

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return upgrades.Load() == 2 }, "second connection not established")

	_ = ch.Close()
	waitFor(t, func() bool { return closed.Load() == 2 }, "each connection instance should fire its own close hook")
}

func TestChannel_JoinerSeesFailureOfJoinedAttempt(t *testing.T) {
	t.Parallel()

	var reqs atomic.Int32
	release := make(chan struct{})
	firstArrived := make(chan struct{})
	hold := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqs.Add(1) == 1 {
			close(firstArrived)
			<-release
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		<-hold
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(hold) })
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ch := transport.New(url, nil, nil, nil)

	dialer := make(chan error, 1)
	go func() { dialer <- ch.Connect(context.Background()) }()
	<-firstArrived

	// Join while the first dial is in flight.
	joiner := make(chan error, 1)
	go func() { joiner <- ch.Connect(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	close(release)
	if err := <-dialer; err == nil {
		t.Fatal("dialer: expected dial error, got nil")
	}

	// Start a newer connect cycle right away; it must not launder the
	// failure of the attempt the joiner was waiting on.
	ctxNext, cancelNext := context.WithCancel(context.Background())
	defer cancelNext()
	go func() { _ = ch.Connect(ctxNext) }()

	if err := <-joiner; err == nil {
		t.Fatal("joiner: expected the joined attempt's dial error, got nil")
	}
}
