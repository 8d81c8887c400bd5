// Package session owns the conversational state machine: one Session per
// connected user, tracking the current interaction mode, the single open
// streaming bubble, and the guided wizard lifecycle. All channel events and
// user actions funnel through the Session, which is the only writer of
// conversation state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/voxdraft/voxdraft/internal/capture"
	"github.com/voxdraft/voxdraft/internal/render"
	"github.com/voxdraft/voxdraft/internal/session/phrase"
	"github.com/voxdraft/voxdraft/internal/transport"
	"github.com/voxdraft/voxdraft/internal/wizard"
	"github.com/voxdraft/voxdraft/pkg/types"
)

// Mode is the exclusive interaction mode of a Session. Former free-floating
// flags (voice active, wizard active, mic on) are derived predicates over
// Mode, which rules out impossible combinations.
type Mode int

const (
	ModeIdle Mode = iota
	ModeTextChat
	ModeVoice
	ModeWizard
)

func (m Mode) String() string {
	switch m {
	case ModeTextChat:
		return "text-chat"
	case ModeVoice:
		return "voice"
	case ModeWizard:
		return "wizard"
	default:
		return "idle"
	}
}

// Transport is the duplex channel surface the Session drives.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ev types.Event) error
	State() transport.State
	Close() error
}

// Capturer is the microphone pipeline surface.
type Capturer interface {
	Start(ctx context.Context) error
	Stop()
	Active() bool
}

// Playback is the audio output surface.
type Playback interface {
	PlayChunk(chunk []byte) error
	StopAll()
}

// WizardService is the guided-questionnaire HTTP client surface.
type WizardService interface {
	Start(ctx context.Context) (wizard.StepResult, error)
	Answer(ctx context.Context, sessionID, answer string) (wizard.StepResult, error)
	Advance(ctx context.Context, sessionID string) (wizard.StepResult, error)
	Finish(ctx context.Context, sessionID string) (wizard.FinishResult, error)
	Export(ctx context.Context, sessionID string) ([]byte, error)
}

// Deps collects the collaborators of a Session. Transport, Capture, Playback,
// Wizard and Sink are required; the rest default sensibly.
type Deps struct {
	Log       *slog.Logger
	Transport Transport
	Capture   Capturer
	Playback  Playback
	Wizard    WizardService
	Sink      render.Sink

	// ExportDir is where exported documents are written. Defaults to the
	// current working directory.
	ExportDir string

	// SaveFile overrides document persistence, used by tests.
	SaveFile func(path string, data []byte) error
}

// Bubble source markers. Fragments from a different source than the open
// bubble finalize the old bubble before rendering.
const (
	srcNone  = ""
	srcText  = "text"
	srcVoice = "voice"
)

const offlineNotice = "Offline: the backend is unreachable. Try again in a moment."

// Session is the state machine instance. All methods are safe for concurrent
// use; a single mutex serializes user actions against inbound channel events
// so conversation state always has exactly one writer at a time. Wizard HTTP
// requests release the mutex for their duration and re-validate session
// state before applying results, so inbound events keep flowing while the
// wizard service is slow.
type Session struct {
	log      *slog.Logger
	channel  Transport
	capture  Capturer
	playback Playback
	service  WizardService
	sink     render.Sink

	exportDir string
	saveFile  func(path string, data []byte) error

	typed  *phrase.Matcher
	spoken *phrase.Matcher

	handlers map[string]func(types.Event)

	mu          sync.Mutex
	mode        Mode
	bubbleSrc   string
	bubbleFull  bool
	wizardSID   string
	exportSID   string
	exportReady bool
}

// New constructs a Session around its collaborators.
func New(d Deps) *Session {
	s := &Session{
		log:       d.Log,
		channel:   d.Transport,
		capture:   d.Capture,
		playback:  d.Playback,
		service:   d.Wizard,
		sink:      d.Sink,
		exportDir: d.ExportDir,
		saveFile:  d.SaveFile,
		typed:     phrase.New(),
		spoken:    phrase.New(phrase.WithPhonetic()),
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.saveFile == nil {
		s.saveFile = writeDocument
	}
	s.handlers = map[string]func(types.Event){
		types.EventFinal:          s.handleFinal,
		types.EventLLMStream:      s.handleLLMStream,
		types.EventLLMDone:        s.handleLLMDone,
		types.EventSentenceStart:  s.handleSentenceStart,
		types.EventVoiceDone:      s.handleVoiceDone,
		types.EventStopAll:        s.handleStopAll,
		types.EventWizardNotice:   s.handleWizardNotice,
		types.EventWizardQuestion: s.handleWizardQuestion,
		types.EventWizardAnswer:   s.handleWizardAnswer,
		types.EventGDDSessionID:   s.handleGDDSessionID,
		types.EventGDDNext:        s.handleGDDNext,
		types.EventGDDDone:        s.handleGDDDone,
		types.EventGDDExportReady: s.handleGDDExportReady,
		types.EventGDDComplete:    s.handleGDDComplete,
	}
	return s
}

func writeDocument(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("session: create export dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("session: write export: %w", err)
	}
	return nil
}

// Mode returns the current interaction mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// MicActive reports whether the capture pipeline is running.
func (s *Session) MicActive() bool {
	return s.capture.Active()
}

// ExportReady reports whether a generated document is available for export.
func (s *Session) ExportReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exportReady && s.exportSID != ""
}

// HandleEvent dispatches one inbound channel event through the handler table.
// Unknown tags are dropped with a debug log entry.
func (s *Session) HandleEvent(ev types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handlers[ev.Type]
	if !ok {
		s.log.Debug("dropping unhandled event", "type", ev.Type)
		return
	}
	h(ev)
}

// ChannelClosed is the transport close hook. It stops capture and playback
// and resets streaming state; an active wizard survives since it lives over
// HTTP, not the channel.
func (s *Session) ChannelClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capture.Stop()
	s.playback.StopAll()
	s.closeBubble()
	if s.mode == ModeTextChat || s.mode == ModeVoice {
		s.mode = ModeIdle
	}
}

// SendText processes one typed user utterance: command interception first
// (export, then wizard-scoped finish/advance/answer, then activation), plain
// chat otherwise.
func (s *Session) SendText(ctx context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatchUtterance(ctx, text, s.typed, true)
}

// dispatchUtterance runs the shared command pipeline for typed text and
// spoken finals. forward controls whether a plain-chat utterance is sent to
// the backend; spoken finals were already heard by the backend.
func (s *Session) dispatchUtterance(ctx context.Context, text string, m *phrase.Matcher, forward bool) {
	if len(text) == 0 {
		return
	}

	if m.ExportRequested(text) {
		s.exportDocument(ctx)
		return
	}

	if s.mode == ModeWizard {
		switch {
		case m.FinishRequested(text):
			s.finishWizard(ctx)
		case m.AdvanceRequested(text):
			s.advanceWizard(ctx)
		default:
			s.sink.Append(render.RoleUser, text)
			s.answerWizard(ctx, text)
		}
		return
	}

	if m.ActivationRequested(text) {
		s.activateWizard(ctx)
		return
	}

	if !forward {
		s.sink.Append(render.RoleUser, text)
		return
	}

	s.closeBubble()
	s.capture.Stop()
	s.playback.StopAll()
	s.sink.Append(render.RoleUser, text)
	if !s.ensureConnected(ctx) {
		return
	}
	if err := s.channel.Send(types.TextEvent(text)); err != nil {
		s.log.Warn("text send failed", "err", err)
		s.sink.Append(render.RoleSystem, offlineNotice)
		return
	}
	s.mode = ModeTextChat
}

// ToggleMic starts capture when idle and stops it when running.
func (s *Session) ToggleMic(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture.Active() {
		s.capture.Stop()
		if s.mode == ModeVoice {
			s.mode = ModeIdle
		}
		return
	}

	if !s.ensureConnected(ctx) {
		return
	}
	if err := s.capture.Start(ctx); err != nil {
		if errors.Is(err, capture.ErrPermissionDenied) {
			s.sink.Append(render.RoleSystem, "Microphone access was denied.")
		} else {
			s.log.Warn("capture start failed", "err", err)
			s.sink.Append(render.RoleSystem, "Could not start the microphone.")
		}
		return
	}
	s.mode = ModeVoice
}

// StopSpeaking is the explicit barge-in: cancel any in-flight generation on
// the backend, then hard-stop local playback.
func (s *Session) StopSpeaking(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.channel.Send(types.StopLLMEvent()); err != nil {
		s.log.Debug("interrupt send skipped", "err", err)
	}
	s.playback.StopAll()
	s.closeBubble()
	if s.mode == ModeTextChat || s.mode == ModeVoice {
		s.mode = ModeIdle
	}
}

// Close tears the Session down: capture released, playback stopped, channel
// closed. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	s.capture.Stop()
	s.playback.StopAll()
	s.closeBubble()
	s.mode = ModeIdle
	s.mu.Unlock()
	// Closing the channel fires ChannelClosed, which takes the lock itself.
	return s.channel.Close()
}

// ensureConnected performs the connect-then-act step for actions that need
// the channel, rendering a single offline notice on failure.
func (s *Session) ensureConnected(ctx context.Context) bool {
	if s.channel.State() == transport.StateOpen {
		return true
	}
	if err := s.channel.Connect(ctx); err != nil {
		s.log.Warn("connect failed", "err", err)
		s.sink.Append(render.RoleSystem, offlineNotice)
		return false
	}
	return true
}

// --- bubble accumulator ---

// openBubble ensures a streaming bubble of the given source is open,
// finalizing any open bubble from a different source first.
func (s *Session) openBubble(src string) {
	if s.bubbleSrc != srcNone && s.bubbleSrc != src {
		s.closeBubble()
	}
	if s.bubbleSrc == srcNone {
		s.sink.StreamOpen()
		s.bubbleSrc = src
		s.bubbleFull = false
	}
}

func (s *Session) appendBubble(src, fragment string) {
	s.openBubble(src)
	if s.bubbleFull && src == srcVoice {
		fragment = " " + fragment
	}
	s.sink.StreamAppend(fragment)
	s.bubbleFull = true
}

func (s *Session) closeBubble() {
	if s.bubbleSrc == srcNone {
		return
	}
	s.sink.StreamClose()
	s.bubbleSrc = srcNone
	s.bubbleFull = false
}

// --- inbound event handlers ---

// handleFinal renders the recognized user utterance and runs it through the
// spoken command pipeline. The backend already received the audio, so plain
// utterances are not forwarded back.
func (s *Session) handleFinal(ev types.Event) {
	s.closeBubble()
	s.dispatchUtterance(context.Background(), ev.Text, s.spoken, false)
}

func (s *Session) handleLLMStream(ev types.Event) {
	s.appendBubble(srcText, ev.Token)
	if s.mode == ModeIdle {
		s.mode = ModeTextChat
	}
}

func (s *Session) handleLLMDone(types.Event) {
	s.closeBubble()
	if s.mode == ModeTextChat {
		s.mode = ModeIdle
	}
}

func (s *Session) handleSentenceStart(ev types.Event) {
	if ev.Source == types.SourceWizard {
		// Wizard voiceover fragments render as discrete bubbles, never
		// merged into an open stream.
		s.closeBubble()
		s.sink.Append(render.RoleAssistant, ev.Text)
		return
	}
	s.appendBubble(srcVoice, ev.Text)
	if s.mode == ModeIdle || s.mode == ModeTextChat {
		s.mode = ModeVoice
	}
}

func (s *Session) handleVoiceDone(types.Event) {
	s.closeBubble()
	if s.mode == ModeVoice {
		s.mode = ModeIdle
	}
}

func (s *Session) handleStopAll(types.Event) {
	s.playback.StopAll()
	s.closeBubble()
	if s.mode == ModeTextChat || s.mode == ModeVoice {
		s.mode = ModeIdle
	}
}

func (s *Session) handleWizardNotice(ev types.Event) {
	s.sink.Append(render.RoleSystem, ev.Text)
}

func (s *Session) handleWizardQuestion(ev types.Event) {
	s.closeBubble()
	s.sink.Append(render.RoleAssistant, ev.Text)
}

func (s *Session) handleWizardAnswer(ev types.Event) {
	s.sink.Append(render.RoleUser, ev.Text)
}

func (s *Session) handleGDDSessionID(ev types.Event) {
	s.wizardSID = ev.SessionID
	s.mode = ModeWizard
}

func (s *Session) handleGDDNext(ev types.Event) {
	s.closeBubble()
	s.sink.Append(render.RoleAssistant, formatQuestion(ev.Question, ev.Index, ev.Total))
}

func (s *Session) handleGDDDone(types.Event) {
	s.sink.Append(render.RoleSystem, `All questions answered. Say "finish gdd" to generate the document.`)
}

func (s *Session) handleGDDExportReady(ev types.Event) {
	if ev.SessionID != "" {
		s.exportSID = ev.SessionID
	} else if s.exportSID == "" {
		s.exportSID = s.wizardSID
	}
	s.exportReady = true
	s.sink.Append(render.RoleSystem, `Document ready. Say "export gdd" to download it.`)
}

func (s *Session) handleGDDComplete(ev types.Event) {
	s.closeBubble()
	if ev.Markdown != "" {
		s.sink.Append(render.RoleAssistant, ev.Markdown)
	}
	if s.wizardSID != "" {
		s.exportSID = s.wizardSID
	}
	s.wizardSID = ""
	s.exportReady = true
	if s.mode == ModeWizard {
		s.mode = ModeIdle
	}
}

// formatQuestion renders wizard progress. Index is zero-based on the wire.
func formatQuestion(question string, index, total int) string {
	if total <= 0 {
		return question
	}
	return fmt.Sprintf("Question %d/%d: %s", index+1, total, question)
}

// --- wizard operations ---

// unlocked runs fn with the session mutex released so a slow wizard request
// (up to the finish timeout) cannot stall inbound event handling or user
// commands. Callers must re-validate any state they depend on afterwards.
func (s *Session) unlocked(fn func()) {
	s.mu.Unlock()
	defer s.mu.Lock()
	fn()
}

func (s *Session) activateWizard(ctx context.Context) {
	// Activation while speaking must release the mic and flush the open
	// bubble before the first question renders.
	s.capture.Stop()
	s.closeBubble()
	if s.mode == ModeVoice || s.mode == ModeTextChat {
		s.mode = ModeIdle
	}

	var res wizard.StepResult
	var err error
	s.unlocked(func() { res, err = s.service.Start(ctx) })
	if err != nil {
		s.renderWizardError("start", err)
		return
	}
	if s.wizardSID != "" {
		// A wizard session started over the channel while we were waiting;
		// keep it rather than clobbering it with the HTTP one.
		s.log.Debug("discarding wizard start result", "sid", res.SessionID)
		return
	}
	s.wizardSID = res.SessionID
	s.mode = ModeWizard
	s.sink.Append(render.RoleSystem, `GDD wizard activated. Answer each question, say "go next" to skip, or "finish gdd" to wrap up.`)
	if res.Question != "" {
		s.sink.Append(render.RoleAssistant, formatQuestion(res.Question, res.Index, res.Total))
	}
}

func (s *Session) answerWizard(ctx context.Context, text string) {
	sid := s.wizardSID
	var res wizard.StepResult
	var err error
	s.unlocked(func() { res, err = s.service.Answer(ctx, sid, text) })
	if err != nil {
		s.renderWizardError("answer", err)
		return
	}
	if s.wizardSID != sid {
		s.log.Debug("discarding stale wizard step", "op", "answer", "sid", sid)
		return
	}
	s.renderStep(res)
}

func (s *Session) advanceWizard(ctx context.Context) {
	sid := s.wizardSID
	var res wizard.StepResult
	var err error
	s.unlocked(func() { res, err = s.service.Advance(ctx, sid) })
	if err != nil {
		s.renderWizardError("advance", err)
		return
	}
	if s.wizardSID != sid {
		s.log.Debug("discarding stale wizard step", "op", "advance", "sid", sid)
		return
	}
	s.renderStep(res)
}

func (s *Session) renderStep(res wizard.StepResult) {
	if res.Message != "" {
		s.sink.Append(render.RoleSystem, res.Message)
	}
	if res.Done() {
		s.sink.Append(render.RoleSystem, `All questions answered. Say "finish gdd" to generate the document.`)
		return
	}
	if res.Question != "" {
		s.sink.Append(render.RoleAssistant, formatQuestion(res.Question, res.Index, res.Total))
	}
}

func (s *Session) finishWizard(ctx context.Context) {
	sid := s.wizardSID
	var res wizard.FinishResult
	var err error
	s.unlocked(func() { res, err = s.service.Finish(ctx, sid) })
	if err != nil {
		s.renderWizardError("finish", err)
		return
	}
	if s.wizardSID != sid {
		s.log.Debug("discarding stale wizard step", "op", "finish", "sid", sid)
		return
	}
	if res.Markdown != "" {
		s.sink.Append(render.RoleAssistant, res.Markdown)
	}
	s.exportSID = sid
	s.exportReady = res.ExportAvailable
	s.wizardSID = ""
	s.mode = ModeIdle
	if res.ExportAvailable {
		s.sink.Append(render.RoleSystem, `Document generated. Say "export gdd" to download it.`)
	}
}

func (s *Session) exportDocument(ctx context.Context) {
	if s.exportSID == "" || !s.exportReady {
		s.sink.Append(render.RoleSystem, "No document to export yet. Finish the wizard first.")
		return
	}
	sid := s.exportSID
	var data []byte
	var err error
	s.unlocked(func() { data, err = s.service.Export(ctx, sid) })
	if err != nil {
		s.renderWizardError("export", err)
		return
	}
	name := wizard.ExportFilename(sid)
	if err := s.saveFile(filepath.Join(s.exportDir, name), data); err != nil {
		s.log.Warn("export save failed", "err", err)
		s.sink.Append(render.RoleSystem, "Could not save the exported document.")
		return
	}
	s.sink.Append(render.RoleSystem, "Saved "+name+".")
}

// renderWizardError surfaces a wizard-service failure inline. Session state
// is left untouched so the operation can be retried.
func (s *Session) renderWizardError(op string, err error) {
	s.log.Warn("wizard request failed", "op", op, "err", err)
	var svcErr *wizard.ServiceError
	if errors.As(err, &svcErr) {
		s.sink.Append(render.RoleSystem, fmt.Sprintf("Wizard %s failed: %s", op, svcErr.Message))
		return
	}
	s.sink.Append(render.RoleSystem, fmt.Sprintf("Wizard %s failed. Please try again.", op))
}
