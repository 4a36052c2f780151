// Package launcher implements the two-process launch pipeline of
// spec.md §4.6. It is grounded on the parent/child pipe handshake in the
// teacher's libcontainer/process_linux.go (filePair, syncT messages,
// parseSync/writeSync), generalised from runc's config-bootstrap protocol
// to the simpler barrier this spec requires: one byte parent -> child
// ("continue"), one JSON message child -> parent ("ready" or "error").
package launcher

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mini-docker/mini-docker/internal/ioerr"
)

// syncType is the wire tag of a child -> parent handshake message,
// equivalent in spirit to the teacher's syncT.Type.
type syncType string

const (
	syncReady syncType = "ready"
	syncError syncType = "error"
)

type syncMsg struct {
	Type    syncType `json:"type"`
	Kind    string   `json:"kind,omitempty"`
	Message string   `json:"message,omitempty"`
}

// filePair mirrors the teacher's filePair: the two ends of one pipe, named
// by which process owns which end once both have forked.
type filePair struct {
	parent *os.File
	child  *os.File
}

func newPipe() (filePair, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return filePair{}, err
	}
	return filePair{parent: w, child: r}, nil
}

// writeContinue sends the one-byte "parent has completed (a)-(c)" signal
// of spec.md §4.6 step 4.
func writeContinue(f *os.File) error {
	_, err := f.Write([]byte{1})
	return err
}

// waitContinue blocks until the parent signals readiness, spec.md §4.6
// step 3.
func waitContinue(f *os.File) error {
	buf := make([]byte, 1)
	_, err := f.Read(buf)
	return err
}

// writeReady tells the parent the child reached execve successfully.
func writeReady(f *os.File) error {
	return writeSync(f, syncMsg{Type: syncReady})
}

// writeFailure reports a pre-execve failure kind+message across the pipe,
// per the propagation policy of spec.md §7.
func writeFailure(f *os.File, err error) error {
	kind := "launch.handshake-broken"
	if ioErr, ok := err.(*ioerr.Error); ok {
		kind = string(ioErr.Kind)
	}
	return writeSync(f, syncMsg{Type: syncError, Kind: kind, Message: err.Error()})
}

func writeSync(f *os.File, msg syncMsg) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// readOutcome blocks for the child's final syncMsg, translating a
// syncError into the appropriate *ioerr.Error.
func readOutcome(f *os.File) error {
	var msg syncMsg
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&msg); err != nil {
		return ioerr.Wrap(ioerr.KindLaunchHandshake, err, "child died before signalling readiness")
	}
	if msg.Type == syncReady {
		return nil
	}
	return ioerr.New(ioerr.Kind(msg.Kind), fmt.Sprintf("child setup failed: %s", msg.Message))
}
