package mcpserver

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	cliadapter "github.com/example/episteme/internal/adapters/cli"
	"github.com/example/episteme/internal/core/workflow"
	"github.com/example/episteme/internal/identity"
	"github.com/example/episteme/internal/ports/primary"
)

// ResolveTool handles the episteme_resolve MCP tool.
type ResolveTool struct {
	context primary.ContextService
	src     identity.Source
}

// NewResolveTool creates a ResolveTool.
func NewResolveTool(contextSvc primary.ContextService, src identity.Source) *ResolveTool {
	return &ResolveTool{context: contextSvc, src: src}
}

// Definition returns the MCP tool definition for episteme_resolve.
func (t *ResolveTool) Definition() mcp.Tool {
	return mcp.NewTool("episteme_resolve",
		mcp.WithDescription(
			"Resolve the current project, session and open transaction. "+
				"Fails with the list of candidates tried when nothing resolves.",
		),
		mcp.WithBoolean("strict",
			mcp.Description("Disable the working-directory fallback"),
		),
	)
}

// Handle processes the episteme_resolve tool call.
func (t *ResolveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	strict := boolArg(req, "strict", false)

	var out bytes.Buffer
	adapter := cliadapter.NewContextAdapter(t.context, &out, true)
	if _, err := adapter.Resolve(ctx, t.src, strict); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out.String()), nil
}

// AdvanceTool handles the episteme_advance MCP tool.
type AdvanceTool struct {
	context  primary.ContextService
	workflow primary.WorkflowService
	src      identity.Source
}

// NewAdvanceTool creates an AdvanceTool.
func NewAdvanceTool(contextSvc primary.ContextService, workflowSvc primary.WorkflowService, src identity.Source) *AdvanceTool {
	return &AdvanceTool{context: contextSvc, workflow: workflowSvc, src: src}
}

// Definition returns the MCP tool definition for episteme_advance.
func (t *AdvanceTool) Definition() mcp.Tool {
	return mcp.NewTool("episteme_advance",
		mcp.WithDescription(
			"Submit a phase self-assessment. PREFLIGHT opens a transaction; "+
				"later phases go to the open one. Resubmitting the last accepted "+
				"assessment is a no-op.",
		),
		mcp.WithString("phase",
			mcp.Required(),
			mcp.Enum("PREFLIGHT", "INVESTIGATE", "CHECK", "ACT", "POSTFLIGHT"),
			mcp.Description("Phase to submit"),
		),
		mcp.WithObject("vectors",
			mcp.Required(),
			mcp.Description("Scores in [0,1] keyed by vector name: "+strings.Join(workflow.DimensionNames(), ", ")),
		),
		mcp.WithString("rationale",
			mcp.Description("Why the scores are what they are"),
		),
		mcp.WithString("transaction_id",
			mcp.Description("Transaction to advance (default: resolved)"),
		),
		mcp.WithBoolean("supersede",
			mcp.Description("PREFLIGHT only: close this instance's open transaction and start over"),
		),
	)
}

// Handle processes the episteme_advance tool call.
func (t *AdvanceTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phase := req.GetString("phase", "")
	if phase == "" {
		return mcp.NewToolResultError("'phase' is required"), nil
	}
	vectors, err := vectorsArg(req.GetArguments()["vectors"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var out bytes.Buffer
	adapter := cliadapter.NewWorkflowAdapter(t.context, t.workflow, &out, true)
	_, err = adapter.Submit(ctx, cliadapter.SubmitRequest{
		Identity:      t.src,
		Phase:         phase,
		Vectors:       vectors,
		Rationale:     req.GetString("rationale", ""),
		TransactionID: req.GetString("transaction_id", ""),
		Supersede:     boolArg(req, "supersede", false),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out.String()), nil
}

// vectorsArg accepts an object of numbers or a "name=value,..." string.
func vectorsArg(raw any) (map[string]float64, error) {
	switch v := raw.(type) {
	case map[string]any:
		out := make(map[string]float64, len(v))
		for name, score := range v {
			f, ok := score.(float64)
			if !ok {
				return nil, fmt.Errorf("vector %s: expected a number, got %T", name, score)
			}
			out[name] = f
		}
		return out, nil
	case string:
		parsed, err := workflow.ParseVectors(v)
		if err != nil {
			return nil, err
		}
		return parsed.Map(), nil
	case nil:
		return nil, fmt.Errorf("'vectors' is required")
	default:
		return nil, fmt.Errorf("'vectors' must be an object, got %T", raw)
	}
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}
