package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cliadapter "github.com/example/episteme/internal/adapters/cli"
	"github.com/example/episteme/internal/core/workflow"
	"github.com/example/episteme/internal/wire"
)

var phaseHelp = map[workflow.Phase]string{
	workflow.PhasePreflight:   "Open a transaction with a baseline self-assessment",
	workflow.PhaseInvestigate: "Record what an investigation round learned",
	workflow.PhaseCheck:       "Ask the gate whether confidence is high enough to act",
	workflow.PhaseAct:         "Record that the work is being done",
	workflow.PhasePostflight:  "Close the transaction with a final self-assessment",
}

// PhaseCmds returns one command per submittable phase.
func PhaseCmds() []*cobra.Command {
	phases := []workflow.Phase{
		workflow.PhasePreflight,
		workflow.PhaseInvestigate,
		workflow.PhaseCheck,
		workflow.PhaseAct,
		workflow.PhasePostflight,
	}
	cmds := make([]*cobra.Command, 0, len(phases))
	for _, p := range phases {
		cmds = append(cmds, phaseCmd(p))
	}
	return cmds
}

func phaseCmd(phase workflow.Phase) *cobra.Command {
	var (
		vectors       string
		rationale     string
		transactionID string
		supersede     bool
		strict        bool
	)

	name := strings.ToLower(string(phase))
	cmd := &cobra.Command{
		Use:   name,
		Short: phaseHelp[phase],
		Long: fmt.Sprintf(`%s.

Vectors are scores in [0,1] for: %s.
Pass them as --vectors name=value,... or as a JSON object on stdin, either
bare or as {"vectors": {...}, "rationale": "..."}.

Examples:
  episteme %s --vectors engagement=0.8,know=0.5,uncertainty=0.4
  echo '{"know":0.7,"uncertainty":0.2}' | episteme %s`,
			phaseHelp[phase], strings.Join(workflow.DimensionNames(), ", "), name, name),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, why, err := readPhaseInput(vectors, rationale, cmd.InOrStdin())
			if err != nil {
				return err
			}
			src := detectIdentity(cmd)
			adapter, err := wire.WorkflowAdapterWithOutput(cmd.OutOrStdout(), jsonOutput(cmd))
			if err != nil {
				return err
			}
			_, err = adapter.Submit(cmd.Context(), cliadapter.SubmitRequest{
				Identity:      src,
				Phase:         string(phase),
				Vectors:       v,
				Rationale:     why,
				TransactionID: transactionID,
				Supersede:     supersede,
				Strict:        strict,
			})
			return err
		},
	}

	cmd.Flags().StringVarP(&vectors, "vectors", "v", "", "Scores as name=value,... (default: JSON on stdin)")
	cmd.Flags().StringVarP(&rationale, "rationale", "r", "", "Why the scores are what they are")
	cmd.Flags().BoolVar(&strict, "strict", false, "Disable the working-directory fallback when resolving")
	if phase == workflow.PhasePreflight {
		cmd.Flags().BoolVar(&supersede, "supersede", false, "Close this instance's open transaction and start over")
	} else {
		cmd.Flags().StringVarP(&transactionID, "transaction", "t", "", "Transaction id (default: resolved)")
	}
	return cmd
}
