// Package app wires all voxdraft subsystems into a running client.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the interactive loop, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithDeviceOpener,
// WithOutputFactory, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxdraft/voxdraft/internal/capture"
	"github.com/voxdraft/voxdraft/internal/config"
	"github.com/voxdraft/voxdraft/internal/health"
	"github.com/voxdraft/voxdraft/internal/observe"
	"github.com/voxdraft/voxdraft/internal/playback"
	"github.com/voxdraft/voxdraft/internal/render"
	"github.com/voxdraft/voxdraft/internal/resilience"
	"github.com/voxdraft/voxdraft/internal/session"
	"github.com/voxdraft/voxdraft/internal/transport"
	"github.com/voxdraft/voxdraft/internal/wizard"
	"github.com/voxdraft/voxdraft/pkg/types"
)

// App owns all subsystem lifetimes and drives the interactive loop.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	channel     *transport.Channel
	reconnector *transport.Reconnector
	breaker     *resilience.CircuitBreaker
	capture     *capture.Pipeline
	player      *playback.Player
	wizard      session.WizardService
	sess        *session.Session
	sink        render.Sink
	store       *render.Store
	terminal    io.Writer
	input       io.Reader

	opener  capture.DeviceOpener
	factory playback.OutputFactory

	metricsSrv *http.Server

	stopOnce sync.Once
	stopErr  error
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDeviceOpener injects a capture device opener instead of the ffmpeg one.
func WithDeviceOpener(o capture.DeviceOpener) Option {
	return func(a *App) { a.opener = o }
}

// WithOutputFactory injects a playback output factory instead of ffplay.
func WithOutputFactory(f playback.OutputFactory) Option {
	return func(a *App) { a.factory = f }
}

// WithWizardService injects a wizard client instead of building one from
// config.
func WithWizardService(w session.WizardService) Option {
	return func(a *App) { a.wizard = w }
}

// WithSink injects the rendering sink instead of the terminal/store pair.
func WithSink(s render.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithTerminal redirects styled output, used by tests.
func WithTerminal(w io.Writer) Option {
	return func(a *App) { a.terminal = w }
}

// WithInput redirects the interactive command stream, used by tests.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.input = r }
}

// New creates an App by wiring all subsystems together.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		metrics:  observe.DefaultMetrics(),
		terminal: os.Stdout,
		input:    os.Stdin,
	}
	for _, o := range opts {
		o(a)
	}

	if a.sink == nil {
		sinks := render.Multi{render.NewTerminalSink(a.terminal)}
		if cfg.Transcript.Path != "" {
			store, err := render.OpenStore(cfg.Transcript.Path)
			if err != nil {
				return nil, fmt.Errorf("app: %w", err)
			}
			a.store = store
			sinks = append(sinks, store)
		}
		a.sink = sinks
	}

	if a.factory == nil {
		a.factory = playback.NewFFplayOutput
	}
	a.player = playback.NewPlayer(a.factory)

	streamURL, err := cfg.StreamURL()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	// The router and close hook delegate to the session, which is built
	// after the channel; both only fire once Run connects.
	a.channel = transport.New(streamURL,
		&eventRouter{app: a},
		&meteredPlayback{app: a},
		func() {
			a.sess.ChannelClosed()
			a.reconnector.NotifyDisconnect()
		},
	)
	a.reconnector = transport.NewReconnector(transport.ReconnectorConfig{
		Channel: a.channel,
		OnReconnect: func() {
			a.metrics.RecordConnect(context.Background(), "ok")
		},
	})

	if a.opener == nil {
		a.opener = capture.FFmpegOpener(cfg.Audio.InputDevice, cfg.Audio.CaptureRate, cfg.Audio.CaptureChannels)
	}
	a.capture = capture.New(a.opener, &meteredFrames{app: a}, capture.Config{
		SourceRate:     cfg.Audio.CaptureRate,
		SourceChannels: cfg.Audio.CaptureChannels,
	})

	if a.wizard == nil {
		a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "wizard",
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
		})
		client, err := wizard.New(cfg.Wizard.BaseURL,
			wizard.WithTimeouts(cfg.Wizard.RequestTimeout.Std(), cfg.Wizard.FinishTimeout.Std()),
			wizard.WithBreaker(a.breaker),
		)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.wizard = client
	}

	a.sess = session.New(session.Deps{
		Transport: a.channel,
		Capture:   a.capture,
		Playback:  a.player,
		Wizard:    a.wizard,
		Sink:      a.sink,
		ExportDir: cfg.Wizard.ExportDir,
	})

	return a, nil
}

// Session exposes the state machine, used by tests.
func (a *App) Session() *session.Session { return a.sess }

// eventRouter counts inbound events and forwards them to the session.
type eventRouter struct {
	app *App
}

func (r *eventRouter) HandleEvent(ev types.Event) {
	r.app.metrics.RecordEvent(context.Background(), ev.Type)
	r.app.sess.HandleEvent(ev)
}

// meteredPlayback counts playback bytes on their way to the player.
type meteredPlayback struct {
	app *App
}

func (p *meteredPlayback) PlayChunk(chunk []byte) error {
	p.app.metrics.RecordPlayback(context.Background(), len(chunk))
	return p.app.player.PlayChunk(chunk)
}

// meteredFrames counts outbound capture frames on their way to the channel.
type meteredFrames struct {
	app *App
}

func (f *meteredFrames) SendAudio(frame []byte) error {
	f.app.metrics.RecordFrameSent(context.Background())
	return f.app.channel.SendAudio(frame)
}

// Run connects the channel, starts the metrics endpoint, and processes
// interactive commands until ctx is cancelled or the input stream ends.
//
// Commands: /mic toggles capture, /stop interrupts the assistant,
// /questions previews the wizard questionnaire, /quit exits; anything else
// is sent as a chat message.
func (a *App) Run(ctx context.Context) error {
	a.metrics.ActiveSessions.Add(ctx, 1)
	defer a.metrics.ActiveSessions.Add(ctx, -1)

	if err := a.channel.Connect(ctx); err != nil {
		a.metrics.RecordConnect(ctx, "error")
		// Offline start is not fatal; actions reconnect on demand.
		slog.Warn("initial connect failed", "err", err)
	} else {
		a.metrics.RecordConnect(ctx, "ok")
	}

	g, ctx := errgroup.WithContext(ctx)

	a.reconnector.Monitor(ctx)

	if a.cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.healthHandler().Register(mux)
		a.metricsSrv = &http.Server{Addr: a.cfg.Server.MetricsAddr, Handler: mux}
		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", a.cfg.Server.MetricsAddr)
			if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return a.metricsSrv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return a.commandLoop(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// questionPreview formats the default questionnaire so users can see what
// the wizard will ask without a backend round trip.
func questionPreview() string {
	var b strings.Builder
	b.WriteString("GDD wizard questions:")
	for i, q := range wizard.DefaultQuestions {
		fmt.Fprintf(&b, "\n%2d. %s", i+1, q)
	}
	return b.String()
}

// healthHandler builds liveness and readiness probes for the metrics mux.
// Readiness covers the stream channel and, when the built-in wizard client is
// in use, its circuit breaker.
func (a *App) healthHandler() *health.Handler {
	checkers := []health.Checker{
		{Name: "channel", Check: func(context.Context) error {
			if a.channel.State() != transport.StateOpen {
				return errors.New("stream channel not connected")
			}
			return nil
		}},
	}
	if a.breaker != nil {
		checkers = append(checkers, health.Checker{
			Name: "wizard",
			Check: func(context.Context) error {
				if a.breaker.State() == resilience.StateOpen {
					return errors.New("circuit breaker open")
				}
				return nil
			},
		})
	}
	return health.New(checkers...)
}

// commandLoop reads lines from the interactive input until EOF or ctx
// cancellation.
func (a *App) commandLoop(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(a.input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("app: read input: %w", err)
				}
				return nil
			}
			if done := a.handleLine(ctx, line); done {
				return nil
			}
		}
	}
}

func (a *App) handleLine(ctx context.Context, line string) (done bool) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/mic":
		a.sess.ToggleMic(ctx)
		return false
	case "/stop":
		a.sess.StopSpeaking(ctx)
		return false
	case "/questions":
		a.sink.Append(render.RoleSystem, questionPreview())
		return false
	default:
		a.sess.SendText(ctx, line)
		return false
	}
}

// Shutdown tears the client down in order: session (capture, playback,
// channel), then the transcript store. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		var errs []error
		a.reconnector.Stop()
		if err := a.sess.Close(); err != nil {
			errs = append(errs, err)
		}
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.metricsSrv != nil {
			if err := a.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, err)
			}
		}
		a.stopErr = errors.Join(errs...)
	})
	return a.stopErr
}
