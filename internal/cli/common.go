// Package cli holds the cobra subcommands of the episteme binary.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/episteme/internal/core/workflow"
	"github.com/example/episteme/internal/ctxutil"
	"github.com/example/episteme/internal/identity"
)

// Persistent flag names registered on the root command.
const (
	FlagJSON         = "json"
	FlagConversation = "conversation"
	FlagVerbose      = "verbose"
)

// detectIdentity reads the invocation's identity, honoring --conversation.
func detectIdentity(cmd *cobra.Command) identity.Source {
	conv, _ := cmd.Flags().GetString(FlagConversation)
	return detectWith(cmd, identity.Options{ConversationID: conv})
}

func detectWith(cmd *cobra.Command, opts identity.Options) identity.Source {
	src := identity.Detect(identity.OSEnvironment{}, opts)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(ctxutil.WithInstanceID(ctx, src.InstanceID()))
	return src
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool(FlagJSON)
	return v
}

// phaseInput is the stdin form of a phase submission: either a bare
// name→score object or {"vectors": {...}, "rationale": "..."}.
type phaseInput struct {
	Vectors   map[string]float64 `json:"vectors"`
	Rationale string             `json:"rationale"`
}

// readPhaseInput parses --vectors, falling back to JSON on stdin when the
// flag is empty or "-". A rationale flag wins over one read from stdin.
func readPhaseInput(flagVectors, flagRationale string, stdin io.Reader) (map[string]float64, string, error) {
	if flagVectors != "" && flagVectors != "-" {
		v, err := workflow.ParseVectors(flagVectors)
		if err != nil {
			return nil, "", err
		}
		return v.Map(), flagRationale, nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, "", fmt.Errorf("no vectors given; pass --vectors name=value,... or a JSON object on stdin")
	}

	in, err := decodePhaseInput(data)
	if err != nil {
		return nil, "", err
	}
	if _, err := workflow.VectorsFromMap(in.Vectors); err != nil {
		return nil, "", err
	}
	rationale := flagRationale
	if rationale == "" {
		rationale = in.Rationale
	}
	return in.Vectors, rationale, nil
}

func decodePhaseInput(data []byte) (phaseInput, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return phaseInput{}, fmt.Errorf("invalid JSON on stdin: %w", err)
	}

	var in phaseInput
	if _, wrapped := raw["vectors"]; wrapped {
		if err := json.Unmarshal(data, &in); err != nil {
			return phaseInput{}, fmt.Errorf("invalid JSON on stdin: %w", err)
		}
		return in, nil
	}
	if err := json.Unmarshal(data, &in.Vectors); err != nil {
		return phaseInput{}, fmt.Errorf("invalid vectors on stdin: %w", err)
	}
	return in, nil
}
