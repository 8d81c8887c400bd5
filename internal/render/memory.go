package render

import "sync"

// MemorySink accumulates bubbles in memory. It backs tests and the transcript
// snapshot shown on exit.
type MemorySink struct {
	mu      sync.Mutex
	bubbles []Bubble
	open    bool
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Append(role Role, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bubbles = append(m.bubbles, Bubble{Role: role, Text: text})
}

func (m *MemorySink) StreamOpen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bubbles = append(m.bubbles, Bubble{Role: RoleAssistant})
	m.open = true
}

func (m *MemorySink) StreamAppend(fragment string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open || len(m.bubbles) == 0 {
		return
	}
	m.bubbles[len(m.bubbles)-1].Text += fragment
}

func (m *MemorySink) StreamClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
}

// Bubbles returns a copy of everything rendered so far.
func (m *MemorySink) Bubbles() []Bubble {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Bubble, len(m.bubbles))
	copy(out, m.bubbles)
	return out
}

// Streaming reports whether an assistant bubble is currently open.
func (m *MemorySink) Streaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}
