package model

import "testing"

func TestContainerIsLive(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusCreated, true},
		{StatusRunning, true},
		{StatusExited, true},
		{StatusDead, false},
	}
	for _, tt := range tests {
		c := &Container{Status: tt.status}
		if got := c.IsLive(); got != tt.want {
			t.Errorf("IsLive() with status %q = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestNetModeString(t *testing.T) {
	tests := []struct {
		name string
		mode NetMode
		want string
	}{
		{"none", NetMode{Mode: "none"}, "none"},
		{"bridge", NetMode{Mode: "bridge"}, "bridge"},
		{"pod", NetMode{Mode: "pod", PodID: "abc123"}, "pod(abc123)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mode.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
