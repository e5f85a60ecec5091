package workflow

import (
	"errors"
	"testing"

	"github.com/example/episteme/internal/core/effects"
)

func vec(pairs map[Dimension]float64) Vectors {
	var v Vectors
	for d, s := range pairs {
		v = v.Set(d, s)
	}
	return v
}

func submit(t *testing.T, m Machine, phase Phase, v Vectors) Outcome {
	t.Helper()
	out, err := Transition(m, Assessment{Phase: phase, Vectors: v}, DefaultPolicy())
	if err != nil {
		t.Fatalf("Transition(%s) failed: %v", phase, err)
	}
	return out
}

func TestTransition_PreflightGate(t *testing.T) {
	tests := []struct {
		name         string
		engagement   float64
		confidence   float64
		wantState    State
		wantDecision Decision
		wantClosed   bool
	}{
		{
			name:         "low engagement goes to clarify",
			engagement:   0.40,
			confidence:   0.95,
			wantState:    StateClarify,
			wantDecision: DecisionClarify,
			wantClosed:   true,
		},
		{
			name:         "engagement just below gate goes to clarify",
			engagement:   0.59,
			confidence:   0.10,
			wantState:    StateClarify,
			wantDecision: DecisionClarify,
			wantClosed:   true,
		},
		{
			name:         "engaged but unsure investigates",
			engagement:   0.80,
			confidence:   0.50,
			wantState:    StateInvestigate,
			wantDecision: DecisionInvestigate,
		},
		{
			name:         "engaged and confident goes straight to check",
			engagement:   0.80,
			confidence:   0.85,
			wantState:    StateCheck,
			wantDecision: DecisionCheck,
		},
		{
			name:         "engagement at gate passes",
			engagement:   0.60,
			confidence:   0.70,
			wantState:    StateCheck,
			wantDecision: DecisionCheck,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := submit(t, NewMachine("tx-1"), PhasePreflight, vec(map[Dimension]float64{
				Engagement: tt.engagement,
				Confidence: tt.confidence,
			}))

			if out.Machine.State != tt.wantState {
				t.Errorf("State = %q, want %q", out.Machine.State, tt.wantState)
			}
			if out.Entry.Decision != tt.wantDecision {
				t.Errorf("Decision = %q, want %q", out.Entry.Decision, tt.wantDecision)
			}
			if out.Machine.Closed != tt.wantClosed {
				t.Errorf("Closed = %v, want %v", out.Machine.Closed, tt.wantClosed)
			}
			if out.Machine.Baseline == nil {
				t.Error("Baseline = nil, want PREFLIGHT vectors")
			}
		})
	}
}

func TestTransition_ClarifyIsAbsorbing(t *testing.T) {
	out := submit(t, NewMachine("tx-1"), PhasePreflight, vec(map[Dimension]float64{Engagement: 0.40}))

	for _, phase := range []Phase{PhasePreflight, PhaseInvestigate, PhaseCheck, PhaseAct, PhasePostflight} {
		_, err := Transition(out.Machine, Assessment{Phase: phase}, DefaultPolicy())
		if !errors.Is(err, ErrStructuralPhaseViolation) {
			t.Errorf("%s after CLARIFY: err = %v, want structural phase violation", phase, err)
		}
	}
}

func TestTransition_RoundLimitForcesAct(t *testing.T) {
	low := vec(map[Dimension]float64{Engagement: 0.9, Confidence: 0.50})
	m := submit(t, NewMachine("tx-1"), PhasePreflight, low).Machine

	var decisions []Decision
	for round := 1; round <= 3; round++ {
		m = submit(t, m, PhaseInvestigate, low).Machine
		out := submit(t, m, PhaseCheck, low)
		decisions = append(decisions, out.Entry.Decision)
		m = out.Machine

		if out.Entry.Round != round {
			t.Errorf("round %d: Entry.Round = %d", round, out.Entry.Round)
		}
		if round < 3 {
			if m.State != StateInvestigate {
				t.Errorf("round %d: State = %q, want INVESTIGATE", round, m.State)
			}
			if out.Entry.ForcedProceed {
				t.Errorf("round %d: ForcedProceed = true, want false", round)
			}
		} else {
			if m.State != StateAct {
				t.Errorf("round %d: State = %q, want ACT", round, m.State)
			}
			if !out.Entry.ForcedProceed {
				t.Errorf("round %d: ForcedProceed = false, want true", round)
			}
		}
	}

	want := []Decision{DecisionInvestigate, DecisionInvestigate, DecisionForced}
	for i := range want {
		if decisions[i] != want[i] {
			t.Errorf("decision[%d] = %q, want %q", i, decisions[i], want[i])
		}
	}
}

func TestTransition_CheckPassesAtThreshold(t *testing.T) {
	m := submit(t, NewMachine("tx-1"), PhasePreflight, vec(map[Dimension]float64{Engagement: 0.9, Confidence: 0.8})).Machine
	out := submit(t, m, PhaseCheck, vec(map[Dimension]float64{Confidence: 0.70}))

	if out.Machine.State != StateAct {
		t.Errorf("State = %q, want ACT", out.Machine.State)
	}
	if out.Entry.ForcedProceed {
		t.Error("ForcedProceed = true, want false for a satisfied gate")
	}
}

func TestTransition_MaxRoundsOne(t *testing.T) {
	p := Policy{EngagementThreshold: 0.6, ActionThreshold: 0.7, MaxRounds: 1}
	m := NewMachine("tx-1")
	m.State = StateCheck

	out, err := Transition(m, Assessment{Phase: PhaseCheck, Vectors: vec(map[Dimension]float64{Confidence: 0.1})}, p)
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if out.Machine.State != StateAct || !out.Entry.ForcedProceed {
		t.Errorf("got state %q forced=%v, want ACT forced", out.Machine.State, out.Entry.ForcedProceed)
	}
}

func TestTransition_OutOfOrderRejected(t *testing.T) {
	tests := []struct {
		name  string
		state State
		phase Phase
	}{
		{"act before any check", StateInvestigate, PhaseAct},
		{"check before investigate", StateInvestigate, PhaseCheck},
		{"act on fresh transaction", StatePreflight, PhaseAct},
		{"postflight before act", StateAct, PhasePostflight},
		{"second preflight", StateCheck, PhasePreflight},
		{"investigate after completion", StateComplete, PhaseInvestigate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine("tx-1")
			m.State = tt.state
			_, err := Transition(m, Assessment{Phase: tt.phase}, DefaultPolicy())

			var violation *StructuralPhaseViolationError
			if !errors.As(err, &violation) {
				t.Fatalf("err = %v, want *StructuralPhaseViolationError", err)
			}
			if violation.State != tt.state || violation.Phase != tt.phase {
				t.Errorf("violation = %+v", violation)
			}
		})
	}
}

func TestTransition_PostflightDeltaAndClose(t *testing.T) {
	pre := vec(map[Dimension]float64{Engagement: 0.8, Know: 0.4, Confidence: 0.75, Uncertainty: 0.5})
	m := submit(t, NewMachine("tx-1"), PhasePreflight, pre).Machine
	m = submit(t, m, PhaseCheck, pre).Machine
	m = submit(t, m, PhaseAct, pre).Machine

	post := vec(map[Dimension]float64{Engagement: 0.8, Know: 0.9, Confidence: 0.9, Uncertainty: 0.2})
	out := submit(t, m, PhasePostflight, post)

	if out.Machine.State != StateComplete {
		t.Errorf("State = %q, want COMPLETE", out.Machine.State)
	}
	if !out.Machine.Closed {
		t.Error("Closed = false, want true after POSTFLIGHT")
	}
	if out.Entry.Delta == nil {
		t.Fatal("Delta = nil")
	}
	if got := out.Entry.Delta.Get(Know); got != 0.5 {
		t.Errorf("delta know = %v, want 0.5", got)
	}
	if got := out.Entry.Delta.Get(Uncertainty); got != -0.3 {
		t.Errorf("delta uncertainty = %v, want -0.3", got)
	}
	if out.Entry.Calibration != WellCalibrated {
		t.Errorf("Calibration = %q, want %q", out.Entry.Calibration, WellCalibrated)
	}

	step := findStep(t, out.Effects)
	if step.CloseReason != CloseReasonComplete {
		t.Errorf("CloseReason = %q, want %q", step.CloseReason, CloseReasonComplete)
	}
}

func TestTransition_PostflightWithoutBaseline(t *testing.T) {
	m := NewMachine("tx-1")
	m.State = StatePostflight

	_, err := Transition(m, Assessment{Phase: PhasePostflight}, DefaultPolicy())
	if !errors.Is(err, ErrStructuralPhaseViolation) {
		t.Errorf("err = %v, want structural phase violation", err)
	}
}

func TestTransition_InvalidAssessment(t *testing.T) {
	_, err := Transition(NewMachine("tx-1"), Assessment{
		Phase:   PhasePreflight,
		Vectors: vec(map[Dimension]float64{Engagement: 1.5}),
	}, DefaultPolicy())
	if !errors.Is(err, ErrInvalidAssessment) {
		t.Errorf("err = %v, want ErrInvalidAssessment", err)
	}
}

func TestTransition_IsPure(t *testing.T) {
	m := NewMachine("tx-1")
	a := Assessment{Phase: PhasePreflight, Vectors: vec(map[Dimension]float64{Engagement: 0.9, Confidence: 0.4})}

	first, err := Transition(m, a, DefaultPolicy())
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	second, _ := Transition(m, a, DefaultPolicy())

	if first.Machine.State != second.Machine.State || first.Entry.Decision != second.Entry.Decision {
		t.Errorf("repeated transition differs: %+v vs %+v", first.Entry, second.Entry)
	}
	if m.State != StatePreflight || m.Baseline != nil {
		t.Errorf("input machine mutated: %+v", m)
	}
}

func findStep(t *testing.T, effs []effects.Effect) Step {
	t.Helper()
	for _, eff := range effs {
		if p, ok := eff.(effects.PersistEffect); ok && p.Operation == effects.OpAdvance {
			step, ok := p.Data.(Step)
			if !ok {
				t.Fatalf("advance effect data is %T, want Step", p.Data)
			}
			return step
		}
	}
	t.Fatal("no advance effect emitted")
	return Step{}
}
