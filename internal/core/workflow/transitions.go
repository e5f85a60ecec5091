package workflow

import (
	"fmt"

	"github.com/example/episteme/internal/core/effects"
)

// Close reasons written by the state machine itself.
const (
	CloseReasonClarify  = "clarification required"
	CloseReasonComplete = "postflight complete"
)

// Machine is the persisted state of one transaction's workflow.
type Machine struct {
	TransactionID     string
	State             State
	CheckRounds       int
	InvestigateRounds int
	Closed            bool
	Baseline          *Vectors // PREFLIGHT vectors, nil until PREFLIGHT is accepted
}

// NewMachine returns the machine of a freshly opened transaction.
func NewMachine(transactionID string) Machine {
	return Machine{TransactionID: transactionID, State: InitialState()}
}

// Entry is the immutable record produced by one accepted phase.
type Entry struct {
	Phase         Phase
	Vectors       Vectors
	Rationale     string
	Decision      Decision
	NextState     State
	Round         int
	ForcedProceed bool
	Delta         *Vectors
	Calibration   Calibration
}

// Step is the payload of the persist effect emitted by Transition: the entry
// to append plus the machine it leads to.
type Step struct {
	Entry       Entry
	Machine     Machine
	CloseReason string // non-empty when the transaction closes with this step
}

// Outcome is the result of a pure transition.
type Outcome struct {
	Machine Machine
	Entry   Entry
	Effects []effects.Effect
}

// Transition applies one assessment to the machine. It never performs I/O;
// the returned effects describe the persistence the caller must carry out.
func Transition(m Machine, a Assessment, p Policy) (Outcome, error) {
	if err := p.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("invalid policy: %w", err)
	}
	if err := a.Validate(); err != nil {
		return Outcome{}, err
	}

	guard := CanSubmitPhase(SubmitContext{
		TransactionID: m.TransactionID,
		State:         m.State,
		Phase:         a.Phase,
		Closed:        m.Closed,
	})
	if !guard.Allowed {
		return Outcome{}, &StructuralPhaseViolationError{
			TransactionID: m.TransactionID,
			State:         m.State,
			Phase:         a.Phase,
			Reason:        guard.Reason,
		}
	}

	next := m
	entry := Entry{
		Phase:     a.Phase,
		Vectors:   a.Vectors,
		Rationale: a.Rationale,
	}
	closeReason := ""

	switch a.Phase {
	case PhasePreflight:
		baseline := a.Vectors
		next.Baseline = &baseline
		switch {
		case a.Vectors.Get(Engagement) < p.EngagementThreshold:
			next.State = StateClarify
			entry.Decision = DecisionClarify
			closeReason = CloseReasonClarify
		case a.Vectors.Get(Confidence) >= p.ActionThreshold:
			next.State = StateCheck
			entry.Decision = DecisionCheck
		default:
			next.State = StateInvestigate
			entry.Decision = DecisionInvestigate
		}

	case PhaseInvestigate:
		next.InvestigateRounds++
		next.State = StateCheck
		entry.Decision = DecisionCheck
		entry.Round = next.InvestigateRounds

	case PhaseCheck:
		next.CheckRounds++
		entry.Round = next.CheckRounds
		switch {
		case a.Vectors.Get(Confidence) >= p.ActionThreshold:
			next.State = StateAct
			entry.Decision = DecisionProceed
		case next.CheckRounds < p.MaxRounds:
			next.State = StateInvestigate
			entry.Decision = DecisionInvestigate
		default:
			next.State = StateAct
			entry.Decision = DecisionForced
			entry.ForcedProceed = true
		}

	case PhaseAct:
		next.State = StatePostflight
		entry.Decision = DecisionPostflight

	case PhasePostflight:
		if m.Baseline == nil {
			return Outcome{}, &StructuralPhaseViolationError{
				TransactionID: m.TransactionID,
				State:         m.State,
				Phase:         a.Phase,
				Reason:        "no PREFLIGHT baseline recorded",
			}
		}
		delta := a.Vectors.Sub(*m.Baseline)
		entry.Delta = &delta
		entry.Calibration = Classify(*m.Baseline, a.Vectors)
		next.State = StateComplete
		entry.Decision = DecisionComplete
		closeReason = CloseReasonComplete
	}

	entry.NextState = next.State
	if closeReason != "" {
		next.Closed = true
	}

	effs := []effects.Effect{
		effects.PersistEffect{
			Entity:    effects.EntityTransaction,
			Operation: effects.OpAdvance,
			Key:       m.TransactionID,
			Data:      Step{Entry: entry, Machine: next, CloseReason: closeReason},
		},
		effects.LogEffect{
			Level:   logLevelFor(entry),
			Message: fmt.Sprintf("%s accepted: %s → %s", a.Phase, m.State, next.State),
			Fields: map[string]any{
				"transaction_id": m.TransactionID,
				"decision":       string(entry.Decision),
				"round":          entry.Round,
			},
		},
	}

	return Outcome{Machine: next, Entry: entry, Effects: effs}, nil
}

func logLevelFor(e Entry) string {
	if e.ForcedProceed || e.Decision == DecisionClarify {
		return "warn"
	}
	return "info"
}
