package manager

import (
	"reflect"
	"testing"
)

func TestParseArgvLiteral(t *testing.T) {
	tests := []struct {
		name    string
		literal string
		want    []string
		wantErr bool
	}{
		{"simple", `["/bin/sh", "-c", "echo hi"]`, []string{"/bin/sh", "-c", "echo hi"}, false},
		{"single entry", `["/bin/true"]`, []string{"/bin/true"}, false},
		{"empty", `[]`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgvLiteral(tt.literal)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseArgvLiteral(%q) expected an error", tt.literal)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseArgvLiteral(%q) error = %v", tt.literal, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseArgvLiteral(%q) = %v, want %v", tt.literal, got, tt.want)
			}
		})
	}
}

func TestSanitizeTag(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"myapp:latest", "myapp_latest"},
		{"registry/myapp:1.0", "registry_myapp_1.0"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := sanitizeTag(tt.tag); got != tt.want {
			t.Errorf("sanitizeTag(%q) = %q, want %q", tt.tag, got, tt.want)
		}
	}
}
