// Package phrase classifies user utterances into guided-wizard commands.
//
// Typed text is matched literally. Spoken finals additionally go through a
// phonetic pass (Double Metaphone candidate filtering ranked by Jaro-Winkler
// similarity) so that recognizer slips like "activate gee dee dee" still
// land on the intended command.
package phrase

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Command is the recognized wizard command class of an utterance.
type Command int

const (
	// None means the utterance is ordinary conversation or a wizard answer.
	None Command = iota
	// Export requests the finished document download.
	Export
	// Activate starts the guided wizard.
	Activate
	// Finish ends the wizard early and generates the document.
	Finish
	// Advance skips to the next wizard question.
	Advance
)

func (c Command) String() string {
	switch c {
	case Export:
		return "export"
	case Activate:
		return "activate"
	case Finish:
		return "finish"
	case Advance:
		return "advance"
	default:
		return "none"
	}
}

// Trigger phrase sets. Export and activation triggers match anywhere in the
// utterance; finish triggers anchor at the start except for the spoken-style
// "finish the gdd"; advance matches "go next" anywhere or a bare "next".
var (
	exportTriggers = []string{
		"export gdd",
		"download gdd",
		"export document",
		"export doc",
		"download document",
		"download gdd doc",
		"export",
	}

	activateTriggers = []string{
		"activate gdd",
		"gdd wizard",
		"activate g d d",
	}

	finishPrefixes = []string{
		"finish gdd",
		"generate gdd",
	}

	finishContains = []string{
		"finish the gdd",
	}

	advanceContains = []string{
		"go next",
	}
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhonetic enables the phonetic pass. Spoken finals should use a
// phonetic matcher; typed text should not, so that e.g. "nest" never
// advances the wizard.
func WithPhonetic() Option {
	return func(m *Matcher) {
		m.phonetic = true
	}
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically-aligned trigger to be accepted. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score accepted without
// phonetic code overlap. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher classifies utterances. It is read-only after construction and safe
// for concurrent use.
type Matcher struct {
	phonetic          bool
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ExportRequested reports whether text asks for the document export.
func (m *Matcher) ExportRequested(text string) bool {
	norm := normalize(text)
	for _, t := range exportTriggers {
		if strings.Contains(norm, t) {
			return true
		}
	}
	return m.phoneticHit(norm, exportTriggers)
}

// ActivationRequested reports whether text asks to start the wizard.
func (m *Matcher) ActivationRequested(text string) bool {
	norm := normalize(text)
	for _, t := range activateTriggers {
		if strings.Contains(norm, t) {
			return true
		}
	}
	return m.phoneticHit(norm, activateTriggers)
}

// FinishRequested reports whether text asks to end the wizard and generate
// the document.
func (m *Matcher) FinishRequested(text string) bool {
	norm := normalize(text)
	for _, t := range finishPrefixes {
		if strings.HasPrefix(norm, t) {
			return true
		}
	}
	for _, t := range finishContains {
		if strings.Contains(norm, t) {
			return true
		}
	}
	return m.phoneticHit(norm, append(finishPrefixes, finishContains...))
}

// AdvanceRequested reports whether text asks to skip to the next question.
func (m *Matcher) AdvanceRequested(text string) bool {
	norm := normalize(text)
	if norm == "next" {
		return true
	}
	for _, t := range advanceContains {
		if strings.Contains(norm, t) {
			return true
		}
	}
	return m.phoneticHit(norm, advanceContains)
}

// Classify resolves text against every command class with export taking
// priority, then activation, finish and advance. Callers gate the individual
// checks on session state; Classify exists for the common inactive-wizard
// path where only export and activation apply.
func (m *Matcher) Classify(text string) Command {
	switch {
	case m.ExportRequested(text):
		return Export
	case m.ActivationRequested(text):
		return Activate
	case m.FinishRequested(text):
		return Finish
	case m.AdvanceRequested(text):
		return Advance
	default:
		return None
	}
}

func normalize(text string) string {
	norm := strings.ToLower(strings.TrimSpace(text))
	norm = strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?', ';', ':':
			return -1
		}
		return r
	}, norm)
	return strings.Join(strings.Fields(norm), " ")
}

// phoneticHit slides a window of each trigger's token count across the
// utterance and accepts when the window phonetically aligns with the trigger
// and clears the Jaro-Winkler threshold. Without code overlap a stricter
// fuzzy threshold applies.
func (m *Matcher) phoneticHit(norm string, triggers []string) bool {
	if !m.phonetic || norm == "" {
		return false
	}
	tokens := strings.Fields(norm)
	for _, trigger := range triggers {
		trigTokens := strings.Fields(trigger)
		n := len(trigTokens)
		if n == 0 || n > len(tokens) {
			continue
		}
		trigCodes := codesForTokens(trigTokens)
		for i := 0; i+n <= len(tokens); i++ {
			window := tokens[i : i+n]
			score := windowScore(window, trigTokens, strings.Join(window, " "), trigger)
			if codesOverlap(codesForTokens(window), trigCodes) {
				if score >= m.phoneticThreshold {
					return true
				}
			} else if score >= m.fuzzyThreshold {
				return true
			}
		}
	}
	return false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens, excluding empty codes.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// windowScore compares the window and trigger as full strings and as
// space-stripped concatenations, returning the higher Jaro-Winkler
// similarity. No pairwise token scoring: a single shared token must not
// stand in for a whole multi-word trigger.
func windowScore(inputTokens, trigTokens []string, inputFull, trigFull string) float64 {
	score := matchr.JaroWinkler(inputFull, trigFull, false)

	if len(inputTokens) > 1 || len(trigTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(trigTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}
	return score
}
