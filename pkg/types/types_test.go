package types_test

import (
	"encoding/json"
	"testing"

	"github.com/voxdraft/voxdraft/pkg/types"
)

func TestDecodeEvent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		ok   bool
		want types.Event
	}{
		{
			name: "llm stream token",
			raw:  `{"type":"llm_stream","token":"Hel"}`,
			ok:   true,
			want: types.Event{Type: types.EventLLMStream, Token: "Hel"},
		},
		{
			name: "wizard progress",
			raw:  `{"type":"gdd_next","question":"What is the core fantasy?","index":1,"total":14}`,
			ok:   true,
			want: types.Event{Type: types.EventGDDNext, Question: "What is the core fantasy?", Index: 1, Total: 14},
		},
		{
			name: "sentence with source",
			raw:  `{"type":"sentence_start","text":"Hello there.","source":"wizard"}`,
			ok:   true,
			want: types.Event{Type: types.EventSentenceStart, Text: "Hello there.", Source: types.SourceWizard},
		},
		{name: "malformed json", raw: `{"type":`, ok: false},
		{name: "missing type tag", raw: `{"text":"orphan"}`, ok: false},
		{name: "empty payload", raw: ``, ok: false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			got, ok := types.DecodeEvent([]byte(c.raw))
			if ok != c.ok {
				t.Fatalf("ok = %v, want %v", ok, c.ok)
			}
			if ok && got != c.want {
				t.Errorf("event = %+v, want %+v", got, c.want)
			}
		})
	}
}

func TestTextEvent_RoundTrip(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(types.TextEvent("make it a roguelike"))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := types.DecodeEvent(raw)
	if !ok {
		t.Fatal("encoded text event failed to decode")
	}
	if got.Type != types.EventText || got.Text != "make it a roguelike" {
		t.Errorf("decoded %+v", got)
	}
}

func TestStopLLMEvent_OmitsEmptyFields(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(types.StopLLMEvent())
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"type":"stop_llm"}` {
		t.Errorf("encoded stop event = %s", raw)
	}
}
