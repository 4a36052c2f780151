package main

import (
	"reflect"
	"testing"

	"github.com/mini-docker/mini-docker/internal/model"
)

func TestParseMounts(t *testing.T) {
	tests := []struct {
		name    string
		specs   []string
		want    []model.Mount
		wantErr bool
	}{
		{
			name:  "read-write mount",
			specs: []string{"/host/data:/data"},
			want:  []model.Mount{{HostPath: "/host/data", ContainerPath: "/data"}},
		},
		{
			name:  "read-only mount",
			specs: []string{"/host/data:/data:ro"},
			want:  []model.Mount{{HostPath: "/host/data", ContainerPath: "/data", ReadOnly: true}},
		},
		{
			name:  "multiple mounts",
			specs: []string{"/a:/a", "/b:/b:ro"},
			want: []model.Mount{
				{HostPath: "/a", ContainerPath: "/a"},
				{HostPath: "/b", ContainerPath: "/b", ReadOnly: true},
			},
		},
		{
			name:    "missing colon",
			specs:   []string{"/host/data"},
			wantErr: true,
		},
		{
			name:    "too many parts",
			specs:   []string{"/a:/b:ro:extra"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMounts(tt.specs)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseMounts(%v) expected an error", tt.specs)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseMounts(%v) error = %v", tt.specs, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseMounts(%v) = %v, want %v", tt.specs, got, tt.want)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"abcdef0123456789", "abcdef01"},
		{"short", "short"},
	}
	for _, tt := range tests {
		if got := shortID(tt.id); got != tt.want {
			t.Errorf("shortID(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestJoinArgv(t *testing.T) {
	if got := joinArgv([]string{"/bin/sh", "-c", "echo hi"}); got != "/bin/sh -c echo hi" {
		t.Errorf("joinArgv = %q", got)
	}
	if got := joinArgv(nil); got != "" {
		t.Errorf("joinArgv(nil) = %q, want empty string", got)
	}
}
