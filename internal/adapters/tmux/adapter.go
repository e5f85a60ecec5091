// Package tmux contains TMux adapter implementations.
package tmux

import (
	"context"
	"sync"

	"github.com/example/episteme/internal/ports/secondary"
	tmuxpkg "github.com/example/episteme/internal/tmux"
)

// Adapter implements secondary.PaneInspector and secondary.PaneLocator by wrapping the internal/tmux package.
// The tmux client is created on first use; without tmux every answer is "unknown".
type Adapter struct {
	once   sync.Once
	client *tmuxpkg.GotmuxAdapter
}

// NewAdapter creates a new TMux adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

var (
	_ secondary.PaneInspector = (*Adapter)(nil)
	_ secondary.PaneLocator   = (*Adapter)(nil)
)

func (a *Adapter) get() *tmuxpkg.GotmuxAdapter {
	a.once.Do(func() {
		client, err := tmuxpkg.NewGotmuxAdapter()
		if err == nil {
			a.client = client
		}
	})
	return a.client
}

// PaneAlive reports whether the pane exists and is not dead.
func (a *Adapter) PaneAlive(ctx context.Context, paneID string) (bool, bool) {
	client := a.get()
	if client == nil {
		return false, false
	}
	loc, err := client.FindPane(paneID)
	if err != nil {
		return false, false
	}
	if loc == nil {
		return false, true
	}
	return !loc.Dead, true
}

// LocatePane returns the session and window of a pane, or nil.
func (a *Adapter) LocatePane(ctx context.Context, paneID string) *secondary.PaneInfo {
	client := a.get()
	if client == nil {
		return nil
	}
	loc, err := client.FindPane(paneID)
	if err != nil || loc == nil {
		return nil
	}
	return &secondary.PaneInfo{PaneID: loc.PaneID, Session: loc.Session, Window: loc.Window}
}
