package config

import (
	"testing"
	"time"
)

func TestFlowConfigDurations(t *testing.T) {
	var c FlowConfig
	if c.ReaperInterval() != time.Minute || c.SessionMaxInactive() != 30*time.Minute {
		t.Errorf("zero config defaults = %v / %v", c.ReaperInterval(), c.SessionMaxInactive())
	}

	c.ReaperIntervalSec = 15
	c.SessionMaxInactiveMinutes = 5
	if c.ReaperInterval() != 15*time.Second || c.SessionMaxInactive() != 5*time.Minute {
		t.Errorf("configured = %v / %v", c.ReaperInterval(), c.SessionMaxInactive())
	}
}

func TestDeskEnabled(t *testing.T) {
	tests := []struct {
		name    string
		handoff bool
		url     string
		want    bool
	}{
		{"disabled", false, "https://desk.example.com", false},
		{"no url", true, "", false},
		{"enabled", true, "https://desk.example.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := FlowConfig{HandoffEnabled: tt.handoff, DeskURL: tt.url}
			if got := c.DeskEnabled(); got != tt.want {
				t.Errorf("DeskEnabled = %v, want %v", got, tt.want)
			}
		})
	}
}
