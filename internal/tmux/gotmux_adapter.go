package tmux

import (
	"fmt"

	"github.com/GianlucaP106/gotmux/gotmux"
)

// GotmuxAdapter wraps the gotmux library for pane lookups.
type GotmuxAdapter struct {
	tmux *gotmux.Tmux
}

// NewGotmuxAdapter creates a new gotmux adapter
func NewGotmuxAdapter() (*GotmuxAdapter, error) {
	tmux, err := gotmux.DefaultTmux()
	if err != nil {
		return nil, fmt.Errorf("failed to create tmux client: %w", err)
	}
	return &GotmuxAdapter{
		tmux: tmux,
	}, nil
}

// PaneLocation describes where a pane lives.
type PaneLocation struct {
	PaneID  string
	Session string
	Window  string
	Dead    bool
}

// FindPane walks every session and window for a pane id such as "%4".
// Returns nil when no server is running or the pane does not exist.
func (g *GotmuxAdapter) FindPane(paneID string) (*PaneLocation, error) {
	sessions, err := g.tmux.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	for _, s := range sessions {
		windows, err := s.ListWindows()
		if err != nil {
			continue
		}
		for _, w := range windows {
			panes, err := w.ListPanes()
			if err != nil {
				continue
			}
			for _, p := range panes {
				if p.Id == paneID {
					return &PaneLocation{
						PaneID:  p.Id,
						Session: s.Name,
						Window:  w.Name,
						Dead:    p.Dead,
					}, nil
				}
			}
		}
	}
	return nil, nil
}

// SessionExists checks if a tmux session exists
func (g *GotmuxAdapter) SessionExists(name string) bool {
	sessions, err := g.tmux.ListSessions()
	if err != nil {
		return false
	}
	for _, s := range sessions {
		if s.Name == name {
			return true
		}
	}
	return false
}
