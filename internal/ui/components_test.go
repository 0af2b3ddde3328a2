package ui

import (
	"strings"
	"testing"
	"time"
)

func TestCountdown(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{-time.Minute, "00:00:00"},
		{90 * time.Second, "00:01:30"},
		{time.Hour + 2*time.Minute + 3400*time.Millisecond, "01:02:03"},
	}
	for _, tt := range tests {
		if got := Countdown(tt.in); got != tt.want {
			t.Errorf("Countdown(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPanelContainsTitleAndContent(t *testing.T) {
	out := Panel("Output", "hello", 30, 0, true)
	if !strings.Contains(out, "Output") || !strings.Contains(out, "hello") {
		t.Fatalf("panel missing text:\n%s", out)
	}
}

func TestStateBadgeUnknownState(t *testing.T) {
	if !strings.Contains(StateBadge("flashing"), "flashing") {
		t.Fatal("unknown state text dropped")
	}
}
