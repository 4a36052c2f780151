package launcher

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/containerd/console"

	"github.com/mini-docker/mini-docker/internal/model"
)

// wireStdio attaches the stdio of a container run without --tty (Launch
// calls AttachTTY instead when --tty is set): stdout/stderr
// are each wrapped in a timestampWriter so container.log carries the
// wall-clock instant each line was actually produced, and stdin is attached
// directly when the caller asked for --interactive.
func wireStdio(cmd *exec.Cmd, logFile *os.File, c *model.Container) {
	if c.Interactive {
		cmd.Stdin = os.Stdin
	} else {
		cmd.Stdin = nil
	}
	cmd.Stdout = newTimestampWriter(logFile)
	cmd.Stderr = newTimestampWriter(logFile)
}

// timestampWriter prefixes each newline-terminated line written to w with
// the time it was written, in RFC3339Nano, so a line's recorded timestamp
// reflects when the container produced it rather than when `logs` happens
// to display it. A trailing partial line (no terminating newline yet) is
// buffered and stamped once it completes.
type timestampWriter struct {
	w   io.Writer
	buf []byte
}

func newTimestampWriter(w io.Writer) *timestampWriter {
	return &timestampWriter{w: w}
}

func (t *timestampWriter) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	for {
		i := bytes.IndexByte(t.buf, '\n')
		if i < 0 {
			break
		}
		line := t.buf[:i]
		t.buf = t.buf[i+1:]
		stamped := append(t.stampPrefix(), line...)
		stamped = append(stamped, '\n')
		if _, err := t.w.Write(stamped); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

func (t *timestampWriter) stampPrefix() []byte {
	return []byte(time.Now().Format(time.RFC3339Nano) + " ")
}

// AttachTTY allocates a PTY pair for `run -t` and gives the slave to the
// child via cmd.Stdin/Stdout/Stderr. It copies no bytes and does not use
// logFile; CopyTTY does the forwarding and the log tee. It must be called
// before cmd.Start.
func AttachTTY(cmd *exec.Cmd, logFile *os.File) (console.Console, error) {
	pty, slavePath, err := console.NewPty()
	if err != nil {
		return nil, err
	}
	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		pty.Close()
		return nil, err
	}
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr.Setctty = true
	cmd.SysProcAttr.Setsid = true

	return pty, nil
}

// CopyTTY forwards bytes between the controlling terminal and the
// container's PTY master, tee-ing everything read from the container into
// logFile. It blocks until the master side closes (container exit).
func CopyTTY(pty console.Console, logFile *os.File) {
	go io.Copy(pty, os.Stdin)
	io.Copy(io.MultiWriter(os.Stdout, logFile), pty)
}
