// Package transport owns the duplex websocket channel to the conversational
// backend. It demultiplexes inbound frames into binary audio (routed to the
// playback sink) and structured events (routed to the session by type), and
// exposes an outbound send primitive for events and capture frames.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/voxdraft/voxdraft/pkg/types"
)

// State is the lifecycle state of the channel.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrNotConnected is logged (not returned) when Send is called while the
// channel is not open. Exposed so tests can assert against it.
var ErrNotConnected = errors.New("transport: channel is not open")

// EventHandler consumes structured inbound events. The channel calls
// HandleEvent from its read goroutine, one event at a time in arrival order.
type EventHandler interface {
	HandleEvent(ev types.Event)
}

// AudioSink consumes inbound binary audio payloads.
type AudioSink interface {
	PlayChunk(b []byte) error
}

// Channel is a single logical duplex connection. At most one live websocket
// exists per Channel; Connect while CONNECTING or OPEN reuses the in-flight
// attempt rather than opening a duplicate socket.
//
// All methods are safe for concurrent use.
type Channel struct {
	url     string
	handler EventHandler
	sink    AudioSink
	onClose func()

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	attempt *connectAttempt
	// closeOnce guards the close hook for the current connection instance.
	// Replaced on every successful dial so each instance fires exactly once.
	closeOnce *sync.Once
}

// connectAttempt is the readiness future for one dial. err is written under
// the channel mutex before done is closed and never afterwards, so joiners
// may read it lock-free once done is closed. Keeping the resolution on the
// attempt itself means a joiner always sees the outcome of the attempt it
// joined, even when a newer connect cycle has started in the meantime.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// New creates a Channel for the given websocket URL. handler receives
// structured events, sink receives binary audio, and onClose runs exactly
// once per connection instance when the connection ends (locally or
// remotely). Any of the three may be nil.
func New(url string, handler EventHandler, sink AudioSink, onClose func()) *Channel {
	return &Channel{
		url:     url,
		handler: handler,
		sink:    sink,
		onClose: onClose,
	}
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the duplex connection, or joins the in-flight attempt when
// one exists. It blocks until the channel is open, the dial fails, or ctx is
// done. Concurrent callers observe the same resolution.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateConnecting {
		att := c.attempt
		c.mu.Unlock()
		select {
		case <-att.done:
			return att.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	att := &connectAttempt{done: make(chan struct{})}
	c.state = StateConnecting
	c.attempt = att
	c.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, c.url, nil)

	c.mu.Lock()
	if err != nil {
		c.state = StateClosed
		att.err = fmt.Errorf("transport: dial %s: %w", c.url, err)
		close(att.done)
		c.mu.Unlock()
		return att.err
	}

	// Raw binary capability: no payload size cap beyond the backend's own.
	conn.SetReadLimit(-1)

	once := &sync.Once{}
	c.conn = conn
	c.closeOnce = once
	c.state = StateOpen
	close(att.done)
	c.mu.Unlock()

	go c.readLoop(conn, once)

	slog.Info("transport: channel open", "url", c.url)
	return nil
}

// Send marshals ev and writes it as a text frame. When the channel is not
// open the event is dropped with a log entry instead of an error — callers
// are expected to Connect first and await readiness.
func (c *Channel) Send(ev types.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("transport: encode %s event: %w", ev.Type, err)
	}
	return c.write(websocket.MessageText, payload, ev.Type)
}

// SendAudio writes one capture frame as a binary message. Like Send, it drops
// silently (logged) when the channel is not open.
func (c *Channel) SendAudio(frame []byte) error {
	return c.write(websocket.MessageBinary, frame, "audio")
}

func (c *Channel) write(kind websocket.MessageType, payload []byte, what string) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		slog.Warn("transport: dropping outbound message", "kind", what, "err", ErrNotConnected)
		return nil
	}
	if err := conn.Write(context.Background(), kind, payload); err != nil {
		return fmt.Errorf("transport: write %s: %w", what, err)
	}
	return nil
}

// Close shuts the connection down locally. The close hook for the current
// connection instance still fires exactly once. Safe to call when never
// connected.
func (c *Channel) Close() error {
	c.mu.Lock()
	conn := c.conn
	once := c.closeOnce
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	if once != nil {
		c.markClosed(conn, once)
	}
	return nil
}

// readLoop receives messages from the backend until the connection ends.
// Binary payloads route to the playback sink unconditionally; everything else
// is parsed as a tagged event and dispatched by type. Malformed payloads are
// dropped without raising.
func (c *Channel) readLoop(conn *websocket.Conn, once *sync.Once) {
	defer c.markClosed(conn, once)

	for {
		kind, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}

		if kind == websocket.MessageBinary {
			if c.sink != nil {
				if err := c.sink.PlayChunk(data); err != nil {
					slog.Warn("transport: playback sink rejected chunk", "bytes", len(data), "err", err)
				}
			}
			continue
		}

		ev, ok := types.DecodeEvent(data)
		if !ok {
			slog.Debug("transport: dropping malformed message", "bytes", len(data))
			continue
		}
		if c.handler != nil {
			c.handler.HandleEvent(ev)
		}
	}
}

// markClosed transitions to CLOSED and fires the close hook, once per
// connection instance regardless of how many paths race here.
func (c *Channel) markClosed(conn *websocket.Conn, once *sync.Once) {
	once.Do(func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.state = StateClosed
		}
		c.mu.Unlock()

		slog.Info("transport: channel closed", "url", c.url)
		if c.onClose != nil {
			c.onClose()
		}
	})
}
