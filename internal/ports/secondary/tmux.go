package secondary

import "context"

// PaneInspector defines the secondary port for multiplexer pane lookups.
type PaneInspector interface {
	// PaneAlive reports whether a pane id such as "%4" exists and its
	// process has not exited. ok is false when tmux cannot be queried.
	PaneAlive(ctx context.Context, paneID string) (alive bool, ok bool)
}

// ProcessInspector defines the secondary port for process liveness.
type ProcessInspector interface {
	// ProcessAlive reports whether a process with the given pid exists.
	ProcessAlive(pid int) bool
}

// PaneInfo describes where a multiplexer pane lives.
type PaneInfo struct {
	PaneID  string
	Session string
	Window  string
}

// PaneLocator defines the secondary port for describing a pane.
type PaneLocator interface {
	// LocatePane returns the pane's session and window, or nil when tmux
	// cannot be queried or the pane does not exist.
	LocatePane(ctx context.Context, paneID string) *PaneInfo
}
