// Package render is the conversation log: an append-only ordered sequence of
// message bubbles with support for incrementally extending the latest
// assistant bubble while it streams.
//
// Sinks never read back their own prior state to make decisions — the session
// state machine owns the at-most-one-open-bubble invariant and calls sinks in
// a well-ordered fashion.
package render

// Role identifies who a bubble belongs to.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem is used for inline notices: offline messages, wizard
	// activation notes, refusals, and errors.
	RoleSystem Role = "system"
)

// Bubble is one discrete rendered message unit.
type Bubble struct {
	Role Role
	Text string
}

// Sink receives the conversation log. Append adds a complete, finalized
// bubble. StreamOpen/StreamAppend/StreamClose manage the single in-progress
// assistant bubble; the session never opens a second stream before closing
// the first.
type Sink interface {
	Append(role Role, text string)
	StreamOpen()
	StreamAppend(fragment string)
	StreamClose()
}

// Multi fans calls out to several sinks in order.
type Multi []Sink

func (m Multi) Append(role Role, text string) {
	for _, s := range m {
		s.Append(role, text)
	}
}

func (m Multi) StreamOpen() {
	for _, s := range m {
		s.StreamOpen()
	}
}

func (m Multi) StreamAppend(fragment string) {
	for _, s := range m {
		s.StreamAppend(fragment)
	}
}

func (m Multi) StreamClose() {
	for _, s := range m {
		s.StreamClose()
	}
}
