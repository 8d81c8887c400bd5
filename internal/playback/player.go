// Package playback plays inbound PCM audio as it arrives. One output device
// is created lazily on the first chunk and destroyed by StopAll; outputs are
// never reused across the stop boundary, so a stop is a hard halt of both
// playing and queued audio.
package playback

import (
	"fmt"
	"log/slog"
	"sync"
)

// Output is a platform audio output accepting signed 16-bit little-endian
// mono PCM at the wire rate. Write appends after any currently queued audio
// (the device's own buffering provides gap-free playback). Close halts
// playback immediately, discarding queued audio.
type Output interface {
	Write(pcm []byte) error
	Close() error
}

// OutputFactory creates a fresh Output. Called on the first PlayChunk and
// again after every StopAll.
type OutputFactory func() (Output, error)

// Player schedules inbound audio chunks on a lazily created Output.
// Safe for concurrent use.
type Player struct {
	factory OutputFactory

	mu  sync.Mutex
	out Output
}

// NewPlayer creates a Player. factory must not be nil.
func NewPlayer(factory OutputFactory) *Player {
	return &Player{factory: factory}
}

// PlayChunk decodes chunk as s16le mono PCM and appends it to the output
// queue, creating the output if none exists. A trailing odd byte is trimmed
// to keep the stream sample-aligned; empty chunks are ignored.
func (p *Player) PlayChunk(chunk []byte) error {
	if len(chunk)%2 != 0 {
		slog.Warn("playback: trimming odd trailing byte", "bytes", len(chunk))
		chunk = chunk[:len(chunk)-1]
	}
	if len(chunk) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.out == nil {
		out, err := p.factory()
		if err != nil {
			return fmt.Errorf("playback: open output: %w", err)
		}
		p.out = out
	}
	if err := p.out.Write(chunk); err != nil {
		// A dead output cannot be written to again; drop it so the next
		// chunk recreates.
		_ = p.out.Close()
		p.out = nil
		return fmt.Errorf("playback: write chunk: %w", err)
	}
	return nil
}

// StopAll halts any in-progress or queued playback immediately by destroying
// the output. The next PlayChunk creates a fresh one. Idempotent.
func (p *Player) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.out == nil {
		return
	}
	if err := p.out.Close(); err != nil {
		slog.Warn("playback: output close failed", "err", err)
	}
	p.out = nil
}

// Playing reports whether an output currently exists. Used by tests and the
// session's status rendering; a false result does not mean the device has
// drained, only that no output is held.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out != nil
}
