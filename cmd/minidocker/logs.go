package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/manager"
)

var logsCommand = &cli.Command{
	Name:      "logs",
	Usage:     "print a container's stdio log",
	ArgsUsage: "<container>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "follow", Aliases: []string{"f"}},
		&cli.IntFlag{Name: "tail", Aliases: []string{"n"}, Value: 0, Usage: "number of lines from the end; 0 = all"},
		&cli.BoolFlag{Name: "timestamps", Aliases: []string{"t"}},
	},
	Action: logsAction,
}

func logsAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return ioerr.New(ioerr.KindConfigInvalid, "logs requires exactly one container")
	}
	rt, err := runtimeFrom(c)
	if err != nil {
		return err
	}
	m := manager.New(rt)

	path, err := m.LogPath(c.Args().First())
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "opening container log")
	}
	defer f.Close()

	if tail := c.Int("tail"); tail > 0 {
		return printTail(f, tail, c.Bool("timestamps"))
	}
	if err := printAll(f, c.Bool("timestamps")); err != nil {
		return err
	}
	if c.Bool("follow") {
		return followLog(f, c.Bool("timestamps"))
	}
	return nil
}

func printAll(f *os.File, timestamps bool) error {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		writeLine(scanner.Text(), timestamps)
	}
	return scanner.Err()
}

func printTail(f *os.File, n int, timestamps bool) error {
	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	for _, l := range lines {
		writeLine(l, timestamps)
	}
	return scanner.Err()
}

// followLog polls the log file for new content, the same tail -f idiom the
// teacher's log viewers use rather than an inotify watch, since the log is
// append-only and short-lived.
func followLog(f *os.File, timestamps bool) error {
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			writeLine(trimNewline(line), timestamps)
		}
		if err == io.EOF {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		if err != nil {
			return err
		}
	}
}

func trimNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		return s[:len(s)-1]
	}
	return s
}

// writeLine prints one log line, honouring --timestamps against the
// RFC3339Nano prefix wireStdio's timestampWriter stamped onto the line when
// it was written. Lines without a recognizable prefix (raw TTY output,
// which is not line-stamped) fall back to the current time so --timestamps
// still produces a parseable line rather than silently dropping the flag.
func writeLine(line string, timestamps bool) {
	ts, rest, ok := splitTimestamp(line)
	if !timestamps {
		if ok {
			fmt.Println(rest)
			return
		}
		fmt.Println(line)
		return
	}
	if ok {
		fmt.Printf("%s %s\n", ts, rest)
		return
	}
	fmt.Printf("%s %s\n", time.Now().Format(time.RFC3339Nano), line)
}

func splitTimestamp(line string) (ts, rest string, ok bool) {
	head, tail, found := strings.Cut(line, " ")
	if !found {
		return "", line, false
	}
	if _, err := time.Parse(time.RFC3339Nano, head); err != nil {
		return "", line, false
	}
	return head, tail, true
}
