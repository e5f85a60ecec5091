//go:build !unix

// Package liveness answers whether the process or pane that wrote a pointer
// still exists.
package liveness

import (
	"os"

	"github.com/example/episteme/internal/ports/secondary"
)

// ProcessInspector implements secondary.ProcessInspector via os.FindProcess.
type ProcessInspector struct{}

// NewProcessInspector creates a process inspector.
func NewProcessInspector() *ProcessInspector {
	return &ProcessInspector{}
}

var _ secondary.ProcessInspector = (*ProcessInspector)(nil)

// ProcessAlive reports whether the pid can be opened.
func (p *ProcessInspector) ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	proc.Release()
	return true
}
