// Package wire provides dependency injection for the episteme application.
// It creates singleton services with lazy initialization.
package wire

import (
	"database/sql"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	cliadapter "github.com/example/episteme/internal/adapters/cli"
	"github.com/example/episteme/internal/adapters/coordination"
	"github.com/example/episteme/internal/adapters/filestore"
	"github.com/example/episteme/internal/adapters/filesystem"
	"github.com/example/episteme/internal/adapters/liveness"
	"github.com/example/episteme/internal/adapters/sqlite"
	tmuxadapter "github.com/example/episteme/internal/adapters/tmux"
	"github.com/example/episteme/internal/app"
	"github.com/example/episteme/internal/config"
	"github.com/example/episteme/internal/core/workflow"
	"github.com/example/episteme/internal/db"
	"github.com/example/episteme/internal/ports/primary"
	"github.com/example/episteme/internal/ports/secondary"
)

var (
	cfg             *config.Config
	logger          = zap.NewNop()
	database        *sql.DB
	contextService  primary.ContextService
	workflowService primary.WorkflowService
	cfgErr          error
	initErr         error
	cfgOnce         sync.Once
	once            sync.Once
)

// SetLogger sets the logger handed to storage adapters. Call it before the
// first service accessor.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}

// Config returns the loaded configuration. It does not open storage.
func Config() (*config.Config, error) {
	cfgOnce.Do(loadConfig)
	return cfg, cfgErr
}

func loadConfig() {
	home, err := config.DefaultHome()
	if err != nil {
		cfgErr = err
		return
	}
	cfg, cfgErr = config.Load(home)
}

// ContextService returns the singleton ContextService instance.
func ContextService() (primary.ContextService, error) {
	once.Do(initServices)
	return contextService, initErr
}

// WorkflowService returns the singleton WorkflowService instance.
func WorkflowService() (primary.WorkflowService, error) {
	once.Do(initServices)
	return workflowService, initErr
}

// Close releases the database handle, if one was opened.
func Close() error {
	if database != nil {
		return database.Close()
	}
	return nil
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	c, err := Config()
	if err != nil {
		initErr = err
		return
	}

	kv, err := openStore(c)
	if err != nil {
		initErr = err
		return
	}

	panes := tmuxadapter.NewAdapter()
	staleness := coordination.StalenessPolicy{
		MaxAge:        c.Staleness.PointerMaxAge,
		CheckLiveness: c.Staleness.CheckLiveness,
	}

	history := coordination.NewAssessmentLog(kv)
	pointers := coordination.NewPointerStore(kv, staleness, liveness.NewProcessInspector(), panes)
	transactions := coordination.NewTransactionStore(kv, history)
	workspace := filesystem.NewWorkspaceAdapter(c.AcceptGitRoot)

	executor := app.NewEffectExecutor(pointers, transactions)

	policy := workflow.Policy{
		EngagementThreshold: c.Gate.EngagementThreshold,
		ActionThreshold:     c.Gate.ActionThreshold,
		MaxRounds:           c.Gate.MaxRounds,
	}

	contextService = app.NewContextService(pointers, transactions, workspace, panes, executor)
	workflowService = app.NewWorkflowService(transactions, history, executor, policy)
}

func openStore(c *config.Config) (secondary.KeyValueStore, error) {
	switch c.Backend {
	case config.BackendSQLite:
		conn, err := db.Open(c.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		database = conn
		return sqlite.NewKVStore(conn), nil
	case config.BackendFile:
		return filestore.NewKVStore(c.StateDir)
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// ContextAdapterWithOutput returns a new ContextAdapter writing to the given output.
// Each call creates a new adapter (adapters are stateless translators).
func ContextAdapterWithOutput(out io.Writer, jsonOutput bool) (*cliadapter.ContextAdapter, error) {
	svc, err := ContextService()
	if err != nil {
		return nil, err
	}
	return cliadapter.NewContextAdapter(svc, out, jsonOutput), nil
}

// WorkflowAdapterWithOutput returns a new WorkflowAdapter writing to the given output.
func WorkflowAdapterWithOutput(out io.Writer, jsonOutput bool) (*cliadapter.WorkflowAdapter, error) {
	ctxSvc, err := ContextService()
	if err != nil {
		return nil, err
	}
	wfSvc, err := WorkflowService()
	if err != nil {
		return nil, err
	}
	return cliadapter.NewWorkflowAdapter(ctxSvc, wfSvc, out, jsonOutput), nil
}
