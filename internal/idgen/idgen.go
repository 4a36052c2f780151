// Package idgen generates the 12-hex-character identifiers spec.md §3
// assigns to containers and pods.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns a random 12-hex-character id.
func New() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
