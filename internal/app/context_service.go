package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/episteme/internal/core/effects"
	"github.com/example/episteme/internal/core/resolution"
	"github.com/example/episteme/internal/ctxutil"
	"github.com/example/episteme/internal/identity"
	"github.com/example/episteme/internal/ports/primary"
	"github.com/example/episteme/internal/ports/secondary"
)

// ReasonProjectSwitch closes the open transaction an instance leaves behind
// when it switches project.
const ReasonProjectSwitch = "superseded by project switch"

// ErrNoIdentity is returned by binding operations when the invocation has no
// identity key to bind.
var ErrNoIdentity = errors.New("no identity key detected; set " + identity.EnvConversationID + " or run inside a terminal or multiplexer pane")

// ContextServiceImpl implements the ContextService interface.
type ContextServiceImpl struct {
	pointers     secondary.PointerStore
	transactions secondary.TransactionStore
	workspace    secondary.WorkspaceAdapter
	panes        secondary.PaneLocator
	executor     EffectExecutor
	now          func() time.Time
	newID        func() string
}

// NewContextService creates a new ContextService with injected dependencies.
// panes may be nil.
func NewContextService(
	pointers secondary.PointerStore,
	transactions secondary.TransactionStore,
	workspace secondary.WorkspaceAdapter,
	panes secondary.PaneLocator,
	executor EffectExecutor,
) *ContextServiceImpl {
	return &ContextServiceImpl{
		pointers:     pointers,
		transactions: transactions,
		workspace:    workspace,
		panes:        panes,
		executor:     executor,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

var _ primary.ContextService = (*ContextServiceImpl)(nil)

// Resolve gathers a snapshot of pointers and open transactions for the
// invocation's identity and runs the resolution chain over it.
func (s *ContextServiceImpl) Resolve(ctx context.Context, req primary.ResolveRequest) (*primary.ResolvedContext, error) {
	src := req.Identity
	mode := resolution.ModeStandard
	if req.Strict {
		mode = resolution.ModeStrict
	}

	candidates, err := s.candidates(ctx, src)
	if err != nil {
		return nil, err
	}

	in := resolution.Input{
		Candidates:        candidates,
		Transactions:      make(map[resolution.TxKey]resolution.OpenTransaction),
		Cwd:               src.Cwd,
		Mode:              mode,
		DefaultInstanceID: identity.DefaultInstanceID,
	}
	// Strict mode still probes the directory's project for open
	// transactions; only the directory fallback itself is skipped.
	if src.Cwd != "" {
		root, err := s.workspace.FindProjectRoot(ctx, src.Cwd)
		if err != nil {
			return nil, fmt.Errorf("failed to find project root: %w", err)
		}
		in.DirectoryProject = root
	}

	for _, probe := range resolution.TransactionProbes(in) {
		rec, err := s.transactions.Read(ctx, probe.ProjectPath, probe.InstanceID)
		if errors.Is(err, secondary.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read transaction for %s (%s): %w", probe.ProjectPath, probe.InstanceID, err)
		}
		if rec.IsOpen() {
			in.Transactions[probe] = resolution.OpenTransaction{
				TransactionID: rec.TransactionID,
				ProjectPath:   rec.ProjectPath,
				InstanceID:    rec.InstanceID,
				SessionID:     rec.SessionID,
				Phase:         rec.State,
			}
		}
	}

	logger := ctxutil.Logger(ctx)
	res, err := resolution.Resolve(in)
	if err != nil {
		logger.Debug("context unresolvable", zap.Strings("keys", src.Strings()), zap.String("mode", string(mode)))
		return nil, err
	}

	for _, w := range res.Warnings {
		logger.Warn("stale pointer",
			zap.String("key", w.Key),
			zap.Time("updated_at", w.UpdatedAt),
			zap.String("reason", w.Reason))
	}
	logger.Debug("context resolved",
		zap.String("project", res.ProjectPath),
		zap.String("source", string(res.Source)),
		zap.String("transaction_id", res.TransactionID))

	return toResolvedContext(res), nil
}

// StartSession points every identity key at a new (or given) session.
func (s *ContextServiceImpl) StartSession(ctx context.Context, req primary.StartSessionRequest) (*primary.SessionBinding, error) {
	root, err := s.projectRoot(ctx, req.ProjectDir, req.Identity.Cwd)
	if err != nil {
		return nil, err
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.newID()
	}
	return s.bind(ctx, req.Identity, root, sessionID)
}

// SwitchProject repoints every identity key at another project. The session
// carries over; the instance's open transaction in the old project is closed.
func (s *ContextServiceImpl) SwitchProject(ctx context.Context, req primary.SwitchProjectRequest) (*primary.SwitchProjectResponse, error) {
	if req.ProjectDir == "" {
		return nil, fmt.Errorf("project directory is required")
	}
	root, err := s.projectRoot(ctx, req.ProjectDir, req.Identity.Cwd)
	if err != nil {
		return nil, err
	}

	src := req.Identity
	resp := &primary.SwitchProjectResponse{}
	sessionID := ""
	for _, k := range src.Keys {
		rec, err := s.pointers.Get(ctx, k.String())
		if errors.Is(err, secondary.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read pointer %s: %w", k, err)
		}
		resp.PreviousProject = rec.ProjectPath
		sessionID = rec.SessionID
		break
	}
	if sessionID == "" {
		sessionID = s.newID()
	}

	var effs []effects.Effect
	if resp.PreviousProject != "" && resp.PreviousProject != root {
		prev, err := s.transactions.Read(ctx, resp.PreviousProject, src.InstanceID())
		if err != nil && !errors.Is(err, secondary.ErrNotFound) {
			return nil, fmt.Errorf("failed to read transaction in %s: %w", resp.PreviousProject, err)
		}
		if prev.IsOpen() {
			resp.ClosedTransactionID = prev.TransactionID
			effs = append(effs, effects.PersistEffect{
				Entity:    effects.EntityTransaction,
				Operation: effects.OpClose,
				Key:       prev.TransactionID,
				Data:      ReasonProjectSwitch,
			})
		}
	}
	if err := s.executor.Execute(ctx, effs); err != nil {
		return nil, err
	}

	binding, err := s.bind(ctx, src, root, sessionID)
	if err != nil {
		return nil, err
	}
	resp.SessionBinding = *binding
	return resp, nil
}

// Whoami reports the detected identity and what each key points at.
func (s *ContextServiceImpl) Whoami(ctx context.Context, src identity.Source) (*primary.WhoamiReport, error) {
	report := &primary.WhoamiReport{
		InstanceID: src.InstanceID(),
		OwnerPID:   src.OwnerPID,
		Cwd:        src.Cwd,
	}
	if src.Cwd != "" {
		root, err := s.workspace.FindProjectRoot(ctx, src.Cwd)
		if err != nil {
			return nil, fmt.Errorf("failed to find project root: %w", err)
		}
		report.ProjectRoot = root
	}

	candidates, err := s.candidates(ctx, src)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		kb := primary.KeyBinding{Key: c.Key, InstanceID: c.InstanceID}
		if c.Pointer != nil {
			updated := c.Pointer.UpdatedAt
			kb.ProjectPath = c.Pointer.ProjectPath
			kb.SessionID = c.Pointer.SessionID
			kb.UpdatedAt = &updated
			kb.Stale = c.Pointer.Stale
			kb.StaleReason = c.Pointer.StaleReason
		}
		report.Keys = append(report.Keys, kb)
	}

	if s.panes != nil {
		for _, k := range src.Keys {
			if k.Kind != identity.KindTmux {
				continue
			}
			if info := s.panes.LocatePane(ctx, k.Value); info != nil {
				report.Pane = &primary.Pane{PaneID: info.PaneID, Session: info.Session, Window: info.Window}
			}
			break
		}
	}
	return report, nil
}

// InitProject writes a project marker in dir.
func (s *ContextServiceImpl) InitProject(ctx context.Context, req primary.InitProjectRequest) (*primary.InitProjectResponse, error) {
	if req.Dir == "" {
		return nil, fmt.Errorf("directory is required")
	}
	root, err := s.workspace.Canonicalize(req.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", req.Dir, err)
	}

	name := req.Name
	if name == "" {
		name = filepath.Base(root)
	}
	marker := &secondary.ProjectMarker{
		ProjectID: s.newID(),
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	if err := s.workspace.WriteMarker(ctx, root, marker); err != nil {
		if errors.Is(err, secondary.ErrExists) {
			return nil, fmt.Errorf("project already initialized at %s: %w", root, err)
		}
		return nil, fmt.Errorf("failed to write project marker: %w", err)
	}

	ctxutil.Logger(ctx).Info("project initialized", zap.String("project", root), zap.String("project_id", marker.ProjectID))
	return &primary.InitProjectResponse{
		ProjectPath: root,
		ProjectID:   marker.ProjectID,
		Name:        marker.Name,
	}, nil
}

// candidates reads the pointer of every identity key in order and evaluates
// its staleness once, against a single clock reading.
func (s *ContextServiceImpl) candidates(ctx context.Context, src identity.Source) ([]resolution.Candidate, error) {
	now := s.now()
	candidates := make([]resolution.Candidate, 0, len(src.Keys))
	for _, k := range src.Keys {
		c := resolution.Candidate{Key: k.String(), InstanceID: src.InstanceFor(k)}

		rec, err := s.pointers.Get(ctx, k.String())
		switch {
		case err == nil:
			staleness := s.pointers.IsStale(ctx, rec, now)
			c.Pointer = &resolution.Pointer{
				ProjectPath: rec.ProjectPath,
				SessionID:   rec.SessionID,
				UpdatedAt:   rec.UpdatedAt,
				Stale:       staleness.Stale,
				StaleReason: staleness.Reason,
			}
		case errors.Is(err, secondary.ErrNotFound):
		default:
			return nil, fmt.Errorf("failed to read pointer %s: %w", k, err)
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// projectRoot resolves dir (or cwd when dir is empty) to the enclosing
// project root, or to dir itself when no marker is found above it.
func (s *ContextServiceImpl) projectRoot(ctx context.Context, dir, cwd string) (string, error) {
	if dir == "" {
		dir = cwd
	}
	if dir == "" {
		return "", fmt.Errorf("project directory is required")
	}
	canonical, err := s.workspace.Canonicalize(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	root, err := s.workspace.FindProjectRoot(ctx, canonical)
	if err != nil {
		return "", fmt.Errorf("failed to find project root: %w", err)
	}
	if root == "" {
		return canonical, nil
	}
	return root, nil
}

func (s *ContextServiceImpl) bind(ctx context.Context, src identity.Source, projectPath, sessionID string) (*primary.SessionBinding, error) {
	if src.Empty() {
		return nil, ErrNoIdentity
	}

	writes := make([]effects.Effect, 0, len(src.Keys))
	for _, k := range src.Keys {
		writes = append(writes, effects.PersistEffect{
			Entity:    effects.EntityPointer,
			Operation: effects.OpWrite,
			Key:       k.String(),
			Data: &secondary.PointerRecord{
				Key:         k.String(),
				ProjectPath: projectPath,
				SessionID:   sessionID,
				InstanceID:  src.InstanceFor(k),
				OwnerPID:    src.LivenessPID(),
			},
		})
	}
	effs := []effects.Effect{
		effects.CompositeEffect{Effects: writes},
		effects.LogEffect{
			Level:   "info",
			Message: "session bound",
			Fields:  map[string]any{"session_id": sessionID, "project": projectPath, "keys": src.Strings()},
		},
	}
	if err := s.executor.Execute(ctx, effs); err != nil {
		return nil, err
	}

	return &primary.SessionBinding{
		SessionID:   sessionID,
		ProjectPath: projectPath,
		InstanceID:  src.InstanceID(),
		Keys:        src.Strings(),
	}, nil
}

func toResolvedContext(res resolution.Resolution) *primary.ResolvedContext {
	out := &primary.ResolvedContext{
		ProjectPath:   res.ProjectPath,
		SessionID:     res.SessionID,
		TransactionID: res.TransactionID,
		Phase:         res.Phase,
		Source:        string(res.Source),
		Key:           res.Key,
		InstanceID:    res.InstanceID,
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, primary.StaleWarning{Key: w.Key, UpdatedAt: w.UpdatedAt, Reason: w.Reason})
	}
	for _, a := range res.Attempts {
		out.Attempts = append(out.Attempts, toResolveAttempt(a))
	}
	return out
}

func toResolveAttempt(a resolution.Attempt) primary.ResolveAttempt {
	return primary.ResolveAttempt{
		Step:        string(a.Step),
		Key:         a.Key,
		InstanceID:  a.InstanceID,
		ProjectPath: a.ProjectPath,
		Result:      string(a.Result),
		Detail:      a.Detail,
	}
}
