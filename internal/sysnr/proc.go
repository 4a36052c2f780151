package sysnr

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// readStartTime parses field 22 (starttime, in clock ticks since boot) out
// of /proc/<pid>/stat. The comm field (2nd field) is parenthesised and may
// itself contain spaces or parentheses, so we split on the last ')' rather
// than naively splitting on whitespace -- the same trick ps(1) and runc's
// system.Stat use.
func readStartTime(pid int) (uint64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, wrap("read /proc/pid/stat", err)
	}
	s := string(data)
	close := strings.LastIndexByte(s, ')')
	if close == -1 {
		return 0, fmt.Errorf("malformed /proc/%d/stat", pid)
	}
	fields := strings.Fields(s[close+1:])
	// fields[0] is state (field 3); starttime is field 22, i.e. index 19
	// into this suffix (22 - 3 = 19).
	const startTimeIndex = 19
	if len(fields) <= startTimeIndex {
		return 0, fmt.Errorf("short /proc/%d/stat", pid)
	}
	v, err := strconv.ParseUint(fields[startTimeIndex], 10, 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}
