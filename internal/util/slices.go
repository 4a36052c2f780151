// Package util holds the small slice/env helpers the teacher kept in its
// own internal "sysbox-libs/utils" module (referenced throughout
// libsysbox/syscont/spec.go as utils.StringSliceRemove,
// utils.GetEnvVarInfo, etc). That module is a private Nestybox package we
// do not have source for, so it is reimplemented here rather than left as
// a dependency we could never fetch.
package util

import "strings"

// StringSliceContains reports whether s is present in list.
func StringSliceContains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// StringSliceRemove returns list with every element of remove deleted.
func StringSliceRemove(list []string, remove []string) []string {
	if len(remove) == 0 {
		return list
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if !StringSliceContains(remove, v) {
			out = append(out, v)
		}
	}
	return out
}

// StringSliceRemoveMatch removes every element for which match returns true.
func StringSliceRemoveMatch(list []string, match func(string) bool) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if !match(v) {
			out = append(out, v)
		}
	}
	return out
}

// GetEnvVarInfo splits a "KEY=VALUE" environment entry into its parts.
func GetEnvVarInfo(envVar string) (name, value string, err error) {
	name, value, ok := strings.Cut(envVar, "=")
	if !ok {
		return "", "", &invalidEnvVarError{envVar}
	}
	return name, value, nil
}

type invalidEnvVarError struct{ s string }

func (e *invalidEnvVarError) Error() string {
	return "malformed environment variable: " + e.s
}
