package cli

import (
	"context"

	"github.com/example/episteme/internal/identity"
	"github.com/example/episteme/internal/ports/primary"
)

// mockContextService implements primary.ContextService for testing.
type mockContextService struct {
	resolveFn func(ctx context.Context, req primary.ResolveRequest) (*primary.ResolvedContext, error)
	startFn   func(ctx context.Context, req primary.StartSessionRequest) (*primary.SessionBinding, error)
	switchFn  func(ctx context.Context, req primary.SwitchProjectRequest) (*primary.SwitchProjectResponse, error)
	whoamiFn  func(ctx context.Context, src identity.Source) (*primary.WhoamiReport, error)
	initFn    func(ctx context.Context, req primary.InitProjectRequest) (*primary.InitProjectResponse, error)

	lastResolveReq primary.ResolveRequest
	resolveCalls   int
}

func (m *mockContextService) Resolve(ctx context.Context, req primary.ResolveRequest) (*primary.ResolvedContext, error) {
	m.lastResolveReq = req
	m.resolveCalls++
	if m.resolveFn != nil {
		return m.resolveFn(ctx, req)
	}
	return &primary.ResolvedContext{ProjectPath: "/repo/a", InstanceID: "tmux_3", Source: "directory"}, nil
}

func (m *mockContextService) StartSession(ctx context.Context, req primary.StartSessionRequest) (*primary.SessionBinding, error) {
	if m.startFn != nil {
		return m.startFn(ctx, req)
	}
	return &primary.SessionBinding{SessionID: "sess-1", ProjectPath: "/repo/a", InstanceID: "tmux_3", Keys: []string{"tmux:%3"}}, nil
}

func (m *mockContextService) SwitchProject(ctx context.Context, req primary.SwitchProjectRequest) (*primary.SwitchProjectResponse, error) {
	if m.switchFn != nil {
		return m.switchFn(ctx, req)
	}
	return &primary.SwitchProjectResponse{SessionBinding: primary.SessionBinding{SessionID: "sess-1", ProjectPath: req.ProjectDir}}, nil
}

func (m *mockContextService) Whoami(ctx context.Context, src identity.Source) (*primary.WhoamiReport, error) {
	if m.whoamiFn != nil {
		return m.whoamiFn(ctx, src)
	}
	return &primary.WhoamiReport{InstanceID: src.InstanceID(), OwnerPID: src.OwnerPID, Cwd: src.Cwd}, nil
}

func (m *mockContextService) InitProject(ctx context.Context, req primary.InitProjectRequest) (*primary.InitProjectResponse, error) {
	if m.initFn != nil {
		return m.initFn(ctx, req)
	}
	return &primary.InitProjectResponse{ProjectPath: req.Dir, ProjectID: "proj-1", Name: req.Name}, nil
}

// mockWorkflowService implements primary.WorkflowService for testing.
type mockWorkflowService struct {
	beginFn   func(ctx context.Context, req primary.BeginRequest) (*primary.AdvanceResponse, error)
	advanceFn func(ctx context.Context, req primary.AdvanceRequest) (*primary.AdvanceResponse, error)
	closeFn   func(ctx context.Context, req primary.CloseTransactionRequest) (*primary.Transaction, error)
	getFn     func(ctx context.Context, id string) (*primary.Transaction, error)
	currentFn func(ctx context.Context, project, instance string) (*primary.Transaction, error)
	listFn    func(ctx context.Context) ([]*primary.Transaction, error)
	historyFn func(ctx context.Context, id string) ([]*primary.PhaseAssessment, error)

	lastBeginReq   primary.BeginRequest
	lastAdvanceReq primary.AdvanceRequest
	lastCloseReq   primary.CloseTransactionRequest
}

func (m *mockWorkflowService) Open(ctx context.Context, req primary.OpenTransactionRequest) (*primary.OpenTransactionResponse, error) {
	return &primary.OpenTransactionResponse{Transaction: &primary.Transaction{ID: "tx-1", ProjectPath: req.ProjectPath, InstanceID: req.InstanceID, Status: "open"}}, nil
}

func (m *mockWorkflowService) Begin(ctx context.Context, req primary.BeginRequest) (*primary.AdvanceResponse, error) {
	m.lastBeginReq = req
	if m.beginFn != nil {
		return m.beginFn(ctx, req)
	}
	return &primary.AdvanceResponse{
		Transaction: &primary.Transaction{ID: "tx-1", Status: "open", State: "investigate", NextPhase: "INVESTIGATE"},
		Assessment:  &primary.PhaseAssessment{Sequence: 1, Phase: "PREFLIGHT", Decision: "investigate"},
	}, nil
}

func (m *mockWorkflowService) Advance(ctx context.Context, req primary.AdvanceRequest) (*primary.AdvanceResponse, error) {
	m.lastAdvanceReq = req
	if m.advanceFn != nil {
		return m.advanceFn(ctx, req)
	}
	return &primary.AdvanceResponse{
		Transaction: &primary.Transaction{ID: req.TransactionID, Status: "open", State: "check", NextPhase: "CHECK"},
		Assessment:  &primary.PhaseAssessment{Sequence: 2, Phase: req.Phase, Decision: "check"},
	}, nil
}

func (m *mockWorkflowService) Close(ctx context.Context, req primary.CloseTransactionRequest) (*primary.Transaction, error) {
	m.lastCloseReq = req
	if m.closeFn != nil {
		return m.closeFn(ctx, req)
	}
	reason := req.Reason
	if reason == "" {
		reason = "abandoned"
	}
	return &primary.Transaction{ID: req.TransactionID, Status: "closed", CloseReason: reason}, nil
}

func (m *mockWorkflowService) GetTransaction(ctx context.Context, id string) (*primary.Transaction, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &primary.Transaction{ID: id, Status: "open", State: "check", NextPhase: "CHECK"}, nil
}

func (m *mockWorkflowService) CurrentTransaction(ctx context.Context, project, instance string) (*primary.Transaction, error) {
	if m.currentFn != nil {
		return m.currentFn(ctx, project, instance)
	}
	return &primary.Transaction{ID: "tx-latest", ProjectPath: project, InstanceID: instance, Status: "closed"}, nil
}

func (m *mockWorkflowService) ListOpen(ctx context.Context) ([]*primary.Transaction, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockWorkflowService) History(ctx context.Context, id string) ([]*primary.PhaseAssessment, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, id)
	}
	return nil, nil
}
