package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/episteme/internal/adapters/coordination"
	"github.com/example/episteme/internal/core/effects"
	"github.com/example/episteme/internal/core/workflow"
	"github.com/example/episteme/internal/identity"
	"github.com/example/episteme/internal/ports/secondary"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// Ensure mocks implement the interfaces
var (
	_ secondary.KeyValueStore    = (*mockKVStore)(nil)
	_ secondary.WorkspaceAdapter = (*mockWorkspaceAdapter)(nil)
	_ secondary.PaneLocator      = (*mockPaneLocator)(nil)
	_ EffectExecutor             = (*mockEffectExecutor)(nil)
)

// mockKVStore implements secondary.KeyValueStore in memory.
type mockKVStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	putErr  error
	listErr error
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: make(map[string][]byte)}
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, secondary.ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

func (m *mockKVStore) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *mockKVStore) Create(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	if _, ok := m.data[key]; ok {
		return fmt.Errorf("%s: %w", key, secondary.ErrExists)
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *mockKVStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// mockWorkspaceAdapter implements secondary.WorkspaceAdapter for testing.
// Any directory at or below a registered project resolves to it.
type mockWorkspaceAdapter struct {
	projects []string
	markers  map[string]*secondary.ProjectMarker
	findErr  error
}

func newMockWorkspaceAdapter(projects ...string) *mockWorkspaceAdapter {
	return &mockWorkspaceAdapter{
		projects: projects,
		markers:  make(map[string]*secondary.ProjectMarker),
	}
}

func (m *mockWorkspaceAdapter) FindProjectRoot(ctx context.Context, dir string) (string, error) {
	if m.findErr != nil {
		return "", m.findErr
	}
	best := ""
	for _, p := range m.projects {
		if (dir == p || strings.HasPrefix(dir, p+"/")) && len(p) > len(best) {
			best = p
		}
	}
	return best, nil
}

func (m *mockWorkspaceAdapter) ReadMarker(ctx context.Context, root string) (*secondary.ProjectMarker, error) {
	if marker, ok := m.markers[root]; ok {
		return marker, nil
	}
	return nil, secondary.ErrNotFound
}

func (m *mockWorkspaceAdapter) WriteMarker(ctx context.Context, root string, marker *secondary.ProjectMarker) error {
	if _, ok := m.markers[root]; ok {
		return secondary.ErrExists
	}
	m.markers[root] = marker
	m.projects = append(m.projects, root)
	return nil
}

func (m *mockWorkspaceAdapter) Canonicalize(path string) (string, error) {
	return filepath.Clean(path), nil
}

// mockPaneLocator implements secondary.PaneLocator for testing.
type mockPaneLocator struct {
	panes map[string]*secondary.PaneInfo
}

func (m *mockPaneLocator) LocatePane(ctx context.Context, paneID string) *secondary.PaneInfo {
	return m.panes[paneID]
}

// mockEffectExecutor records effects and optionally fails.
type mockEffectExecutor struct {
	executed []effects.Effect
	err      error
}

func (m *mockEffectExecutor) Execute(ctx context.Context, effs []effects.Effect) error {
	if m.err != nil {
		return m.err
	}
	m.executed = append(m.executed, effs...)
	return nil
}

// ============================================================================
// Fixtures
// ============================================================================

// testEnv wires both services over the coordination stores and an in-memory
// key-value store.
type testEnv struct {
	kv           *mockKVStore
	workspace    *mockWorkspaceAdapter
	panes        *mockPaneLocator
	pointers     *coordination.PointerStore
	transactions *coordination.TransactionStore
	history      *coordination.AssessmentLog
	executor     *DefaultEffectExecutor
	workflow     *WorkflowServiceImpl
	context      *ContextServiceImpl
}

func newTestEnv(t *testing.T, projects ...string) *testEnv {
	t.Helper()

	kv := newMockKVStore()
	history := coordination.NewAssessmentLog(kv)
	pointers := coordination.NewPointerStore(kv, coordination.StalenessPolicy{MaxAge: 4 * time.Hour}, nil, nil)
	transactions := coordination.NewTransactionStore(kv, history)
	executor := NewEffectExecutor(pointers, transactions)
	workspace := newMockWorkspaceAdapter(projects...)
	panes := &mockPaneLocator{panes: make(map[string]*secondary.PaneInfo)}

	ids := 0
	nextID := func() string {
		ids++
		return fmt.Sprintf("id-%03d", ids)
	}

	wf := NewWorkflowService(transactions, history, executor, workflow.DefaultPolicy())
	wf.newID = nextID
	cs := NewContextService(pointers, transactions, workspace, panes, executor)
	cs.newID = nextID

	return &testEnv{
		kv:           kv,
		workspace:    workspace,
		panes:        panes,
		pointers:     pointers,
		transactions: transactions,
		history:      history,
		executor:     executor,
		workflow:     wf,
		context:      cs,
	}
}

func tmuxSource(pane, cwd string) identity.Source {
	return identity.Source{
		Keys:     []identity.Key{{Kind: identity.KindTmux, Value: pane}},
		OwnerPID: 4242,
		Cwd:      cwd,
	}
}

func vectors(pairs ...any) map[string]float64 {
	m := make(map[string]float64)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i].(string)] = pairs[i+1].(float64)
	}
	return m
}
