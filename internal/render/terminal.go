package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	userLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	assistantLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("10"))

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Italic(true)

	bodyStyle = lipgloss.NewStyle().
			PaddingLeft(2)
)

// TerminalSink writes styled bubbles to a terminal. Streamed fragments are
// written as they arrive so the user sees tokens live; the label is printed
// once on StreamOpen and a trailing newline on StreamClose.
type TerminalSink struct {
	mu  sync.Mutex
	w   io.Writer
	// midLine is true between StreamOpen and StreamClose.
	midLine bool
}

func NewTerminalSink(w io.Writer) *TerminalSink {
	return &TerminalSink{w: w}
}

func (t *TerminalSink) Append(role Role, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.breakLine()
	switch role {
	case RoleUser:
		fmt.Fprintln(t.w, userLabelStyle.Render("you"))
		fmt.Fprintln(t.w, bodyStyle.Render(text))
	case RoleSystem:
		fmt.Fprintln(t.w, systemStyle.Render(text))
	default:
		fmt.Fprintln(t.w, assistantLabelStyle.Render("assistant"))
		fmt.Fprintln(t.w, bodyStyle.Render(text))
	}
}

func (t *TerminalSink) StreamOpen() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.breakLine()
	fmt.Fprintln(t.w, assistantLabelStyle.Render("assistant"))
	fmt.Fprint(t.w, "  ")
	t.midLine = true
}

func (t *TerminalSink) StreamAppend(fragment string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.midLine {
		return
	}
	// Keep the two-space body indent across token-internal newlines.
	fmt.Fprint(t.w, strings.ReplaceAll(fragment, "\n", "\n  "))
}

func (t *TerminalSink) StreamClose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.breakLine()
}

func (t *TerminalSink) breakLine() {
	if t.midLine {
		fmt.Fprintln(t.w)
		t.midLine = false
	}
}
