// Package app contains the application layer - service implementations and effect execution.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/episteme/internal/core/effects"
	"github.com/example/episteme/internal/core/workflow"
	"github.com/example/episteme/internal/ctxutil"
	"github.com/example/episteme/internal/ports/secondary"
)

// EffectExecutor interprets and executes effects.
// This is the "Imperative Shell" - the only place I/O happens.
type EffectExecutor interface {
	Execute(ctx context.Context, effs []effects.Effect) error
}

// DefaultEffectExecutor implements EffectExecutor against the coordination stores.
type DefaultEffectExecutor struct {
	pointers     secondary.PointerStore
	transactions secondary.TransactionStore
}

// NewEffectExecutor creates a new DefaultEffectExecutor.
func NewEffectExecutor(pointers secondary.PointerStore, transactions secondary.TransactionStore) *DefaultEffectExecutor {
	return &DefaultEffectExecutor{
		pointers:     pointers,
		transactions: transactions,
	}
}

// Execute processes a slice of effects, executing each in sequence.
// Composites are expanded first; execution stops at the first failure.
func (e *DefaultEffectExecutor) Execute(ctx context.Context, effs []effects.Effect) error {
	for _, eff := range effects.Flatten(effs) {
		if err := e.executeOne(ctx, eff); err != nil {
			return fmt.Errorf("failed to execute %s effect: %w", eff.EffectType(), err)
		}
	}
	return nil
}

func (e *DefaultEffectExecutor) executeOne(ctx context.Context, eff effects.Effect) error {
	switch typed := eff.(type) {
	case effects.PersistEffect:
		return e.executePersist(ctx, typed)
	case effects.LogEffect:
		e.executeLog(ctx, typed)
		return nil
	default:
		return fmt.Errorf("unknown effect type: %T", eff)
	}
}

func (e *DefaultEffectExecutor) executePersist(ctx context.Context, eff effects.PersistEffect) error {
	switch eff.Entity {
	case effects.EntityTransaction:
		return e.executeTransactionOp(ctx, eff)
	case effects.EntityPointer:
		return e.executePointerOp(ctx, eff)
	default:
		return fmt.Errorf("unknown entity: %s", eff.Entity)
	}
}

func (e *DefaultEffectExecutor) executeTransactionOp(ctx context.Context, eff effects.PersistEffect) error {
	switch eff.Operation {
	case effects.OpAdvance:
		step, ok := eff.Data.(workflow.Step)
		if !ok {
			return fmt.Errorf("invalid transaction advance data type: %T", eff.Data)
		}
		_, err := e.transactions.Advance(ctx, eff.Key, phaseRecordFromStep(step))
		return err
	case effects.OpClose:
		reason, ok := eff.Data.(string)
		if !ok {
			return fmt.Errorf("invalid transaction close data type: %T", eff.Data)
		}
		_, err := e.transactions.Close(ctx, eff.Key, reason)
		return err
	default:
		return fmt.Errorf("unknown transaction operation: %s", eff.Operation)
	}
}

func (e *DefaultEffectExecutor) executePointerOp(ctx context.Context, eff effects.PersistEffect) error {
	switch eff.Operation {
	case effects.OpWrite:
		rec, ok := eff.Data.(*secondary.PointerRecord)
		if !ok {
			return fmt.Errorf("invalid pointer write data type: %T", eff.Data)
		}
		return e.pointers.Put(ctx, rec)
	default:
		return fmt.Errorf("unknown pointer operation: %s", eff.Operation)
	}
}

func (e *DefaultEffectExecutor) executeLog(ctx context.Context, eff effects.LogEffect) {
	fields := make([]zap.Field, 0, len(eff.Fields)+1)
	for k, v := range eff.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	if inst := ctxutil.InstanceFromContext(ctx); inst != "" {
		fields = append(fields, zap.String("caller_instance", inst))
	}

	logger := ctxutil.Logger(ctx)
	switch eff.Level {
	case "debug":
		logger.Debug(eff.Message, fields...)
	case "warn":
		logger.Warn(eff.Message, fields...)
	case "error":
		logger.Error(eff.Message, fields...)
	default:
		logger.Info(eff.Message, fields...)
	}
}

func phaseRecordFromStep(step workflow.Step) *secondary.PhaseRecord {
	rec := &secondary.PhaseRecord{
		Phase:             string(step.Entry.Phase),
		Vectors:           step.Entry.Vectors.Map(),
		Rationale:         step.Entry.Rationale,
		Decision:          string(step.Entry.Decision),
		NextState:         string(step.Entry.NextState),
		Round:             step.Entry.Round,
		ForcedProceed:     step.Entry.ForcedProceed,
		Calibration:       string(step.Entry.Calibration),
		CloseReason:       step.CloseReason,
		CheckRounds:       step.Machine.CheckRounds,
		InvestigateRounds: step.Machine.InvestigateRounds,
	}
	if step.Entry.Delta != nil {
		rec.Delta = step.Entry.Delta.Map()
	}
	return rec
}
