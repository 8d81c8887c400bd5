// Package types defines the shared types used across all voxdraft packages.
//
// These types form the lingua franca between the transport channel, the audio
// pipelines, and the session state machine. Each package defines its own
// domain types, but cross-cutting data structures live here to avoid circular
// imports.
package types

import "encoding/json"

// Event type tags for structured messages on the duplex channel.
//
// Outbound tags are sent by the client; inbound tags arrive from the backend.
const (
	// Outbound.
	EventText    = "text"
	EventStopLLM = "stop_llm"

	// Inbound.
	EventFinal          = "final"
	EventLLMStream      = "llm_stream"
	EventLLMDone        = "llm_done"
	EventSentenceStart  = "sentence_start"
	EventVoiceDone      = "voice_done"
	EventStopAll        = "stop_all"
	EventWizardNotice   = "wizard_notice"
	EventWizardQuestion = "wizard_question"
	EventWizardAnswer   = "wizard_answer"
	EventGDDSessionID   = "gdd_session_id"
	EventGDDExportReady = "gdd_export_ready"
	EventGDDNext        = "gdd_next"
	EventGDDDone        = "gdd_done"
	EventGDDComplete    = "gdd_complete"
)

// SourceWizard marks sentence fragments produced by the wizard voiceover
// rather than the free-chat stream. Wizard fragments render as discrete
// bubbles and are never merged into an open streaming bubble.
const SourceWizard = "wizard"

// Event is a structured message on the duplex channel. Type selects which of
// the optional fields carry meaning; unused fields are zero.
type Event struct {
	Type string `json:"type"`

	// Text carries the payload for final, text, sentence_start, and the
	// wizard_* events.
	Text string `json:"text,omitempty"`

	// Token is a single streamed LLM token (llm_stream).
	Token string `json:"token,omitempty"`

	// Source tags the origin channel of a sentence fragment (sentence_start).
	Source string `json:"source,omitempty"`

	// SessionID is the opaque wizard session identifier (gdd_session_id,
	// gdd_export_ready).
	SessionID string `json:"session_id,omitempty"`

	// Question, Index, and Total describe wizard progress (gdd_next).
	Question string `json:"question,omitempty"`
	Index    int    `json:"index,omitempty"`
	Total    int    `json:"total,omitempty"`

	// Markdown is the generated document text (gdd_complete).
	Markdown string `json:"markdown,omitempty"`
}

// DecodeEvent parses a raw structured channel message into an Event.
// Returns (zero, false) if the payload is malformed or carries no type tag;
// such messages are dropped by the transport without raising.
func DecodeEvent(data []byte) (Event, bool) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, false
	}
	if ev.Type == "" {
		return Event{}, false
	}
	return ev, true
}

// TextEvent builds the outbound typed-text event.
func TextEvent(text string) Event {
	return Event{Type: EventText, Text: text}
}

// StopLLMEvent builds the outbound interrupt event that cancels any in-flight
// generation on the backend.
func StopLLMEvent() Event {
	return Event{Type: EventStopLLM}
}
