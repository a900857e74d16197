package finalize

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/match-setup-backend/internal/engine"
)

const MatchCompleted = "completed"

// PersistenceError means the completed setup was not written. Nothing from
// the attempt is visible in the store.
type PersistenceError struct {
	MatchID int
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting setup for match %d: %v", e.MatchID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type SetupWriter interface {
	CreateSetupSteps(ctx context.Context, matchID int, steps []engine.VetoStep) error
	CreateSeriesMaps(ctx context.Context, matchID int, maps []engine.SeriesMap) error
	SetMatchState(ctx context.Context, matchID int, state string) error
}

// Store runs fn in a single transaction, committing only if fn returns nil.
type Store interface {
	WithinTx(ctx context.Context, fn func(SetupWriter) error) error
}

type Finalizer struct {
	store Store
	log   *zap.Logger
}

func New(store Store, logger *zap.Logger) *Finalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finalizer{store: store, log: logger}
}

func (f *Finalizer) Finalize(ctx context.Context, s engine.State) error {
	if s.Phase != engine.PhaseCompleted {
		return &PersistenceError{MatchID: s.MatchID, Err: engine.ErrWrongPhase}
	}

	err := f.store.WithinTx(ctx, func(w SetupWriter) error {
		if err := w.CreateSetupSteps(ctx, s.MatchID, s.VetoOrder); err != nil {
			return fmt.Errorf("setup steps: %w", err)
		}
		if err := w.CreateSeriesMaps(ctx, s.MatchID, s.Maps); err != nil {
			return fmt.Errorf("series maps: %w", err)
		}
		if err := w.SetMatchState(ctx, s.MatchID, MatchCompleted); err != nil {
			return fmt.Errorf("match state: %w", err)
		}
		return nil
	})
	if err != nil {
		return &PersistenceError{MatchID: s.MatchID, Err: err}
	}
	f.log.Info("setup persisted", zap.Int("match_id", s.MatchID), zap.Int("steps", len(s.VetoOrder)), zap.Int("maps", len(s.Maps)))
	return nil
}
