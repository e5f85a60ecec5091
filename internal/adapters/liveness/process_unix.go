//go:build unix

// Package liveness answers whether the process or pane that wrote a pointer
// still exists.
package liveness

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/example/episteme/internal/ports/secondary"
)

// ProcessInspector implements secondary.ProcessInspector with signal 0.
type ProcessInspector struct{}

// NewProcessInspector creates a process inspector.
func NewProcessInspector() *ProcessInspector {
	return &ProcessInspector{}
}

var _ secondary.ProcessInspector = (*ProcessInspector)(nil)

// ProcessAlive sends signal 0. EPERM means the process exists but belongs to
// another user.
func (p *ProcessInspector) ProcessAlive(pid int) bool {
	if pid <= 0 {
		// 0 would signal our own process group
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
