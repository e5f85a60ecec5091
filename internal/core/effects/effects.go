// Package effects describes the writes and log lines a pure transition asks
// for. The core returns them as values; internal/app carries them out after
// the transition has been decided.
package effects

// Effect is one requested side effect.
type Effect interface {
	// EffectType returns a string identifier for the effect type.
	EffectType() string
}

// Entities and operations understood by the effect executor.
const (
	EntityTransaction = "transaction"
	EntityPointer     = "pointer"

	OpAdvance = "advance" // Data: workflow.Step
	OpClose   = "close"   // Data: close reason string
	OpWrite   = "write"   // Data: *secondary.PointerRecord
)

// LogEffect asks for one structured log line.
type LogEffect struct {
	Level   string // debug, info, warn, error
	Message string
	Fields  map[string]any
}

func (e LogEffect) EffectType() string { return "log" }

// PersistEffect asks for one record write.
type PersistEffect struct {
	Entity    string
	Operation string
	Key       string // transaction id or identity key
	Data      any
}

func (e PersistEffect) EffectType() string { return "persist" }

// CompositeEffect groups effects that run in order.
type CompositeEffect struct {
	Effects []Effect
}

func (e CompositeEffect) EffectType() string { return "composite" }

// NoEffect is the empty effect.
type NoEffect struct{}

func (e NoEffect) EffectType() string { return "none" }

// Flatten expands composites depth-first and drops NoEffect, keeping order.
func Flatten(effs []Effect) []Effect {
	var out []Effect
	for _, eff := range effs {
		switch typed := eff.(type) {
		case CompositeEffect:
			out = append(out, Flatten(typed.Effects)...)
		case NoEffect:
		default:
			out = append(out, eff)
		}
	}
	return out
}
