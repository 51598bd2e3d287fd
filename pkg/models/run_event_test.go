package models

import "testing"

func TestRunEventIsTerminal(t *testing.T) {
	cases := []struct {
		event    RunEvent
		terminal bool
	}{
		{StatusEvent("loading"), false},
		{ThinkingEvent("analyst-1", "bull case", "rates are falling"), false},
		{TokenEvent("AAPL is"), false},
		{KeepAliveEvent(), false},
		{DoneEvent("final answer", nil), true},
		{ErrorEvent("model unreachable"), true},
	}

	for _, tc := range cases {
		if got := tc.event.IsTerminal(); got != tc.terminal {
			t.Errorf("IsTerminal(%s) = %v, want %v", tc.event.Type, got, tc.terminal)
		}
	}
}

func TestKeepAliveEventShape(t *testing.T) {
	e := KeepAliveEvent()
	if e.Type != RunEventStatus {
		t.Errorf("Type = %s, want status", e.Type)
	}
	if !e.KeepAlive {
		t.Error("KeepAlive should be set")
	}
}

func TestThinkingEventAttribution(t *testing.T) {
	e := ThinkingEvent("analyst-2", "bear case", "valuations are stretched")
	if e.Source != "analyst-2" || e.Label != "bear case" {
		t.Errorf("attribution = (%q, %q), want (analyst-2, bear case)", e.Source, e.Label)
	}
	if e.Text == "" {
		t.Error("Text should not be empty")
	}
}
