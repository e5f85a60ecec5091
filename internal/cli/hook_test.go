package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/episteme/internal/identity"
	"github.com/example/episteme/internal/ports/primary"
)

// fakeContextService implements primary.ContextService for hook tests.
type fakeContextService struct {
	resolved   *primary.ResolvedContext
	resolveErr error
	startErr   error

	lastResolve primary.ResolveRequest
	started     []primary.StartSessionRequest
}

func (f *fakeContextService) Resolve(ctx context.Context, req primary.ResolveRequest) (*primary.ResolvedContext, error) {
	f.lastResolve = req
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	r := *f.resolved
	return &r, nil
}

func (f *fakeContextService) StartSession(ctx context.Context, req primary.StartSessionRequest) (*primary.SessionBinding, error) {
	f.started = append(f.started, req)
	if f.startErr != nil {
		return nil, f.startErr
	}
	id := req.SessionID
	if id == "" {
		id = "sess-new"
	}
	return &primary.SessionBinding{SessionID: id, ProjectPath: req.ProjectDir}, nil
}

func (f *fakeContextService) SwitchProject(ctx context.Context, req primary.SwitchProjectRequest) (*primary.SwitchProjectResponse, error) {
	return nil, errors.New("not used")
}

func (f *fakeContextService) Whoami(ctx context.Context, src identity.Source) (*primary.WhoamiReport, error) {
	return nil, errors.New("not used")
}

func (f *fakeContextService) InitProject(ctx context.Context, req primary.InitProjectRequest) (*primary.InitProjectResponse, error) {
	return nil, errors.New("not used")
}

func hookFixture(stdin string) (hookIO, *bytes.Buffer, *bytes.Buffer, *identity.Options) {
	var out, errOut bytes.Buffer
	var seen identity.Options
	h := hookIO{
		event:  "SessionStart",
		in:     strings.NewReader(stdin),
		out:    &out,
		errOut: &errOut,
		detect: func(opts identity.Options) identity.Source {
			seen = opts
			keys := []identity.Key{{Kind: identity.KindTmux, Value: "%3"}}
			if opts.ConversationID != "" {
				keys = append([]identity.Key{{Kind: identity.KindConversation, Value: opts.ConversationID}}, keys...)
			}
			return identity.Source{Keys: keys, OwnerPID: 10, Cwd: "/home/user"}
		},
	}
	return h, &out, &errOut, &seen
}

func TestRunHook_BindsConversationAndResolvesStrict(t *testing.T) {
	svc := &fakeContextService{resolved: &primary.ResolvedContext{
		ProjectPath:   "/repo/a",
		SessionID:     "sess-1",
		TransactionID: "tx-1",
		Phase:         "check",
		Source:        "transaction",
		InstanceID:    "tmux_3",
	}}
	h, out, errOut, seen := hookFixture(`{"session_id":"conv-9","cwd":"/repo/a/src","hook_event_name":"UserPromptSubmit"}`)

	if err := runHook(context.Background(), h, svc); err != nil {
		t.Fatalf("runHook failed: %v", err)
	}

	if seen.ConversationID != "conv-9" {
		t.Errorf("expected conversation id from payload, got %q", seen.ConversationID)
	}
	if !svc.lastResolve.Strict {
		t.Error("hook must resolve in strict mode")
	}
	if svc.lastResolve.Identity.Cwd != "/repo/a/src" {
		t.Errorf("expected payload cwd, got %q", svc.lastResolve.Identity.Cwd)
	}
	if len(svc.started) != 1 {
		t.Fatalf("expected conversation to be bound once, got %d", len(svc.started))
	}
	if svc.started[0].ProjectDir != "/repo/a" || svc.started[0].SessionID != "sess-1" {
		t.Errorf("unexpected binding request: %+v", svc.started[0])
	}
	if !strings.Contains(out.String(), "project /repo/a, transaction tx-1 (check)") {
		t.Errorf("unexpected stdout: %q", out.String())
	}
	if errOut.Len() != 0 {
		t.Errorf("unexpected stderr: %q", errOut.String())
	}
}

func TestRunHook_SkipsBindingWhenConversationResolved(t *testing.T) {
	svc := &fakeContextService{resolved: &primary.ResolvedContext{
		ProjectPath: "/repo/a",
		SessionID:   "sess-1",
		Source:      "pointer",
		Key:         "conversation:conv-9",
	}}
	h, _, _, _ := hookFixture(`{"session_id":"conv-9"}`)

	if err := runHook(context.Background(), h, svc); err != nil {
		t.Fatalf("runHook failed: %v", err)
	}
	if len(svc.started) != 0 {
		t.Errorf("expected no rebinding, got %d", len(svc.started))
	}
}

func TestRunHook_FailsOpen(t *testing.T) {
	tests := []struct {
		name       string
		stdin      string
		resolveErr error
		wantStderr string
	}{
		{
			name:       "unresolvable context",
			stdin:      `{"session_id":"conv-9"}`,
			resolveErr: errors.New("unresolvable context (strict mode): candidates [conversation:conv-9]"),
			wantStderr: "unresolvable context",
		},
		{
			name:       "invalid payload",
			stdin:      `{"session_id":`,
			wantStderr: "ignoring invalid hook payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeContextService{resolveErr: tt.resolveErr}
			h, out, errOut, _ := hookFixture(tt.stdin)

			if err := runHook(context.Background(), h, svc); err != nil {
				t.Fatalf("hook must not fail, got %v", err)
			}
			if out.Len() != 0 {
				t.Errorf("expected no stdout, got %q", out.String())
			}
			if !strings.Contains(errOut.String(), tt.wantStderr) {
				t.Errorf("stderr %q does not contain %q", errOut.String(), tt.wantStderr)
			}
		})
	}
}

func TestRunHook_EmptyPayloadUsesEnvironment(t *testing.T) {
	svc := &fakeContextService{resolved: &primary.ResolvedContext{ProjectPath: "/repo/a", Source: "pointer", Key: "tmux:%3"}}
	h, out, _, seen := hookFixture("")

	if err := runHook(context.Background(), h, svc); err != nil {
		t.Fatalf("runHook failed: %v", err)
	}
	if seen.ConversationID != "" {
		t.Errorf("expected no conversation override, got %q", seen.ConversationID)
	}
	if svc.lastResolve.Identity.Cwd != "/home/user" {
		t.Errorf("expected detected cwd, got %q", svc.lastResolve.Identity.Cwd)
	}
	if !strings.Contains(out.String(), "project /repo/a") {
		t.Errorf("unexpected stdout: %q", out.String())
	}
}
