package workflow

import (
	"fmt"
	"strings"
)

// Phase names a submittable step of the workflow.
type Phase string

const (
	PhasePreflight   Phase = "PREFLIGHT"
	PhaseInvestigate Phase = "INVESTIGATE"
	PhaseCheck       Phase = "CHECK"
	PhaseAct         Phase = "ACT"
	PhasePostflight  Phase = "POSTFLIGHT"
)

// ParsePhase accepts a phase name in any case.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PhasePreflight, PhaseInvestigate, PhaseCheck, PhaseAct, PhasePostflight:
		return p, nil
	}
	return "", fmt.Errorf("unknown phase %q (valid: PREFLIGHT, INVESTIGATE, CHECK, ACT, POSTFLIGHT)", s)
}

// State is the tagged state of a transaction's state machine: the phase it
// is waiting for, or one of the two terminal states.
type State string

const (
	StatePreflight   State = "PREFLIGHT"
	StateInvestigate State = "INVESTIGATE"
	StateCheck       State = "CHECK"
	StateAct         State = "ACT"
	StatePostflight  State = "POSTFLIGHT"
	StateClarify     State = "CLARIFY"
	StateComplete    State = "COMPLETE"
)

// IsTerminal reports whether no further phase can be submitted.
func (s State) IsTerminal() bool {
	return s == StateClarify || s == StateComplete
}

// Expects returns the phase accepted in this state, if any.
func (s State) Expects() (Phase, bool) {
	switch s {
	case StatePreflight:
		return PhasePreflight, true
	case StateInvestigate:
		return PhaseInvestigate, true
	case StateCheck:
		return PhaseCheck, true
	case StateAct:
		return PhaseAct, true
	case StatePostflight:
		return PhasePostflight, true
	}
	return "", false
}

// InitialState returns the state of a freshly opened transaction.
func InitialState() State {
	return StatePreflight
}

// Decision records which way a gate went for one accepted phase.
type Decision string

const (
	DecisionClarify     Decision = "clarify"
	DecisionInvestigate Decision = "investigate"
	DecisionCheck       Decision = "check"
	DecisionProceed     Decision = "proceed"
	DecisionForced      Decision = "forced_proceed"
	DecisionPostflight  Decision = "postflight"
	DecisionComplete    Decision = "complete"
)

// Policy holds the gating constants.
type Policy struct {
	EngagementThreshold float64
	ActionThreshold     float64
	MaxRounds           int
}

// DefaultPolicy returns the stock gate values.
func DefaultPolicy() Policy {
	return Policy{
		EngagementThreshold: 0.60,
		ActionThreshold:     0.70,
		MaxRounds:           3,
	}
}

// Validate rejects policies the state machine cannot run with.
func (p Policy) Validate() error {
	if p.EngagementThreshold < 0 || p.EngagementThreshold > 1 {
		return fmt.Errorf("engagement threshold %.2f outside [0,1]", p.EngagementThreshold)
	}
	if p.ActionThreshold < 0 || p.ActionThreshold > 1 {
		return fmt.Errorf("action threshold %.2f outside [0,1]", p.ActionThreshold)
	}
	if p.MaxRounds < 1 {
		return fmt.Errorf("max rounds must be at least 1 (got %d)", p.MaxRounds)
	}
	return nil
}

// Assessment is the externally produced input for one phase.
type Assessment struct {
	Phase     Phase   `json:"phase"`
	Vectors   Vectors `json:"vectors"`
	Rationale string  `json:"rationale,omitempty"`
}

// Validate checks the structure of the assessment, not its content.
func (a Assessment) Validate() error {
	if _, err := ParsePhase(string(a.Phase)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAssessment, err)
	}
	if err := a.Vectors.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAssessment, err)
	}
	return nil
}

// SameAs reports whether two assessments carry identical content.
func (a Assessment) SameAs(other Assessment) bool {
	return a.Phase == other.Phase && a.Vectors == other.Vectors && a.Rationale == other.Rationale
}
