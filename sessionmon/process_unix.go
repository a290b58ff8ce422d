//go:build linux

package sessionmon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/stephnangue/warrant/core"
)

// UnixProcessChecker answers process-liveness questions against the running
// kernel. A pid alone is ambiguous (pids are recycled), so the recorded
// start time must match too.
type UnixProcessChecker struct{}

// NewUnixProcessChecker creates a checker
func NewUnixProcessChecker() *UnixProcessChecker {
	return &UnixProcessChecker{}
}

// ProcessExists implements core.ProcessChecker
func (c *UnixProcessChecker) ProcessExists(subject core.ProcessSubject) bool {
	if err := unix.Kill(int(subject.Pid), 0); err != nil {
		// EPERM means the process exists but is not ours to signal
		if !errors.Is(err, unix.EPERM) {
			return false
		}
	}

	if subject.StartTime == 0 {
		return true
	}

	startTime, err := processStartTime(int(subject.Pid))
	if err != nil {
		return false
	}
	return startTime == subject.StartTime
}

// processStartTime reads the process start time, in clock ticks since boot,
// from /proc/<pid>/stat.
func processStartTime(pid int) (uint64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}

	// The comm field is parenthesized and may contain spaces; fields are
	// counted after the closing paren. starttime is field 22 overall, which
	// is index 19 of the post-comm fields.
	stat := string(data)
	end := strings.LastIndexByte(stat, ')')
	if end < 0 || end+2 >= len(stat) {
		return 0, fmt.Errorf("malformed stat for pid %d", pid)
	}

	fields := strings.Fields(stat[end+2:])
	if len(fields) < 20 {
		return 0, fmt.Errorf("malformed stat for pid %d", pid)
	}
	return strconv.ParseUint(fields[19], 10, 64)
}
