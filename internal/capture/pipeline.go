// Package capture runs the microphone pipeline: it reads raw PCM from a
// capture device, normalises it to the mono 16kHz wire format, slices it into
// fixed 20ms frames, and forwards each frame to the transport channel.
//
// Framing runs on a dedicated pump goroutine; it communicates with the rest
// of the client only through completed frame payloads, never shared buffers.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/voxdraft/voxdraft/pkg/audio"
)

// ErrPermissionDenied reports that the user (or OS) refused microphone
// access. Surfaced to the caller so the session can render an inline error
// and leave the mic toggle off.
var ErrPermissionDenied = errors.New("capture: microphone access denied")

// Device is an opened microphone stream delivering raw little-endian int16
// PCM at the rate and channel count the pipeline was configured with.
type Device interface {
	io.Reader
	Close() error
}

// DeviceOpener opens the capture device. Implementations map platform
// permission failures to ErrPermissionDenied.
type DeviceOpener func(ctx context.Context) (Device, error)

// FrameWriter receives completed wire-format frames in capture order.
// Satisfied by transport.Channel.
type FrameWriter interface {
	SendAudio(frame []byte) error
}

// Config holds the capture source format. Zero values mean the device
// already delivers mono audio at the wire rate.
type Config struct {
	SourceRate     int
	SourceChannels int
}

// Pipeline captures microphone audio and emits fixed-size frames.
// All methods are safe for concurrent use.
type Pipeline struct {
	opener DeviceOpener
	out    FrameWriter
	cfg    Config

	mu     sync.Mutex
	device Device
	done   chan struct{}
}

// New creates a Pipeline reading from opener and writing frames to out.
func New(opener DeviceOpener, out FrameWriter, cfg Config) *Pipeline {
	if cfg.SourceRate == 0 {
		cfg.SourceRate = audio.WireSampleRate
	}
	if cfg.SourceChannels == 0 {
		cfg.SourceChannels = 1
	}
	return &Pipeline{opener: opener, out: out, cfg: cfg}
}

// Start opens the device and begins pumping frames. A no-op when capture is
// already active. Device failures are returned to the caller; a refused
// microphone surfaces as ErrPermissionDenied.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		return nil
	}

	device, err := p.opener(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("capture: open device: %w", err)
	}

	done := make(chan struct{})
	p.device = device
	p.done = done

	go p.pump(device, done)

	slog.Info("capture: started",
		"sourceRate", p.cfg.SourceRate,
		"sourceChannels", p.cfg.SourceChannels,
	)
	return nil
}

// Stop releases the device and waits for the pump goroutine to drain.
// Idempotent and safe to call when never started.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	device := p.device
	done := p.done
	p.device = nil
	p.done = nil
	p.mu.Unlock()

	if device == nil {
		return
	}
	_ = device.Close()
	<-done
	slog.Info("capture: stopped")
}

// Active reports whether capture is currently running.
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device != nil
}

// pump reads raw chunks from the device and forwards complete frames until
// the device is closed or errors. Leftover samples carry across reads in the
// framer — never dropped, never duplicated.
func (p *Pipeline) pump(device Device, done chan struct{}) {
	defer close(done)

	var norm audio.Normalizer
	framer := audio.NewFramer(audio.FrameSamples)
	buf := make([]byte, 4096)

	for {
		n, err := device.Read(buf)
		if n > 0 {
			pcm := norm.Normalize(buf[:n], p.cfg.SourceRate, p.cfg.SourceChannels)
			for _, frame := range framer.Push(pcm) {
				if sendErr := p.out.SendAudio(frame); sendErr != nil {
					slog.Warn("capture: frame send failed", "err", sendErr)
					p.detach(device)
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("capture: device read failed", "err", err)
			}
			p.detach(device)
			return
		}
	}
}

// detach clears the active device if it is still the one this pump owns, so
// a pump that dies on its own leaves the pipeline restartable.
func (p *Pipeline) detach(device Device) {
	p.mu.Lock()
	if p.device == device {
		p.device = nil
		p.done = nil
	}
	p.mu.Unlock()
	_ = device.Close()
}
