package util

import (
	"reflect"
	"testing"
)

func TestStringSliceContains(t *testing.T) {
	tests := []struct {
		name string
		list []string
		s    string
		want bool
	}{
		{"present", []string{"a", "b", "c"}, "b", true},
		{"absent", []string{"a", "b", "c"}, "d", false},
		{"empty list", nil, "a", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StringSliceContains(tt.list, tt.s); got != tt.want {
				t.Errorf("StringSliceContains(%v, %q) = %v, want %v", tt.list, tt.s, got, tt.want)
			}
		})
	}
}

func TestStringSliceRemove(t *testing.T) {
	tests := []struct {
		name   string
		list   []string
		remove []string
		want   []string
	}{
		{"removes matches", []string{"a", "b", "c"}, []string{"b"}, []string{"a", "c"}},
		{"no-op on empty remove", []string{"a", "b"}, nil, []string{"a", "b"}},
		{"removes all", []string{"a", "a"}, []string{"a"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StringSliceRemove(tt.list, tt.remove)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("StringSliceRemove(%v, %v) = %v, want %v", tt.list, tt.remove, got, tt.want)
			}
		})
	}
}

func TestGetEnvVarInfo(t *testing.T) {
	name, value, err := GetEnvVarInfo("PATH=/usr/bin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "PATH" || value != "/usr/bin" {
		t.Errorf("got (%q, %q), want (\"PATH\", \"/usr/bin\")", name, value)
	}

	if _, _, err := GetEnvVarInfo("malformed"); err == nil {
		t.Error("expected error for entry with no '='")
	}
}
