//go:build !linux

package sessionmon

import (
	"os"
	"syscall"

	"github.com/stephnangue/warrant/core"
)

// UnixProcessChecker on non-linux platforms only checks pid liveness; start
// times cannot be verified without procfs.
type UnixProcessChecker struct{}

// NewUnixProcessChecker creates a checker
func NewUnixProcessChecker() *UnixProcessChecker {
	return &UnixProcessChecker{}
}

// ProcessExists implements core.ProcessChecker
func (c *UnixProcessChecker) ProcessExists(subject core.ProcessSubject) bool {
	process, err := os.FindProcess(int(subject.Pid))
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}
