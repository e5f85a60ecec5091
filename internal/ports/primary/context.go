package primary

import (
	"context"
	"time"

	"github.com/example/episteme/internal/identity"
)

// ContextService defines the primary port for resolving and binding the
// (project, session) context of an invocation.
type ContextService interface {
	// Resolve walks the priority chain for the invocation's identity.
	// Fails with an unresolvable-context error instead of guessing.
	Resolve(ctx context.Context, req ResolveRequest) (*ResolvedContext, error)

	// StartSession creates a session and points every identity key at it.
	StartSession(ctx context.Context, req StartSessionRequest) (*SessionBinding, error)

	// SwitchProject repoints every identity key at another project, closing
	// the instance's open transaction in the project it leaves.
	SwitchProject(ctx context.Context, req SwitchProjectRequest) (*SwitchProjectResponse, error)

	// Whoami reports the detected identity keys and what each points at.
	Whoami(ctx context.Context, src identity.Source) (*WhoamiReport, error)

	// InitProject writes a project marker in dir.
	InitProject(ctx context.Context, req InitProjectRequest) (*InitProjectResponse, error)
}

// ResolveRequest contains parameters for resolving context.
type ResolveRequest struct {
	Identity identity.Source
	Strict   bool // no working-directory fallback
}

// ResolvedContext is a successful resolution at the port boundary.
type ResolvedContext struct {
	ProjectPath   string           `json:"project_path"`
	SessionID     string           `json:"session_id,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Phase         string           `json:"phase,omitempty"`
	Source        string           `json:"source"`
	Key           string           `json:"key,omitempty"`
	InstanceID    string           `json:"instance_id"`
	Warnings      []StaleWarning   `json:"warnings,omitempty"`
	Attempts      []ResolveAttempt `json:"attempts"`
}

// StaleWarning annotates a resolution that used a stale pointer.
type StaleWarning struct {
	Key       string    `json:"key"`
	UpdatedAt time.Time `json:"updated_at"`
	Reason    string    `json:"reason"`
}

// ResolveAttempt is one step of the resolution trail.
type ResolveAttempt struct {
	Step        string `json:"step"`
	Key         string `json:"key,omitempty"`
	InstanceID  string `json:"instance_id,omitempty"`
	ProjectPath string `json:"project_path,omitempty"`
	Result      string `json:"result"`
	Detail      string `json:"detail,omitempty"`
}

// StartSessionRequest contains parameters for starting a session.
type StartSessionRequest struct {
	Identity   identity.Source
	ProjectDir string // defaults to the project containing the working directory
	SessionID  string // optional, generated when empty
}

// SessionBinding is the result of binding identity keys to a session.
type SessionBinding struct {
	SessionID   string   `json:"session_id"`
	ProjectPath string   `json:"project_path"`
	InstanceID  string   `json:"instance_id"`
	Keys        []string `json:"keys"`
}

// SwitchProjectRequest contains parameters for switching project.
type SwitchProjectRequest struct {
	Identity   identity.Source
	ProjectDir string
}

// SwitchProjectResponse contains the result of a project switch.
type SwitchProjectResponse struct {
	SessionBinding
	PreviousProject     string `json:"previous_project,omitempty"`
	ClosedTransactionID string `json:"closed_transaction_id,omitempty"`
}

// WhoamiReport describes the identity of an invocation.
type WhoamiReport struct {
	InstanceID  string       `json:"instance_id"`
	OwnerPID    int          `json:"owner_pid"`
	Cwd         string       `json:"cwd"`
	ProjectRoot string       `json:"project_root,omitempty"`
	Keys        []KeyBinding `json:"keys"`
	Pane        *Pane        `json:"pane,omitempty"`
}

// KeyBinding is one identity key and its pointer, if any.
type KeyBinding struct {
	Key         string     `json:"key"`
	InstanceID  string     `json:"instance_id"`
	ProjectPath string     `json:"project_path,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	Stale       bool       `json:"stale,omitempty"`
	StaleReason string     `json:"stale_reason,omitempty"`
}

// Pane locates the invocation's tmux pane.
type Pane struct {
	PaneID  string `json:"pane_id"`
	Session string `json:"session"`
	Window  string `json:"window"`
}

// InitProjectRequest contains parameters for marking a project root.
type InitProjectRequest struct {
	Dir  string
	Name string // defaults to the directory name
}

// InitProjectResponse contains the result of marking a project root.
type InitProjectResponse struct {
	ProjectPath string `json:"project_path"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
}
