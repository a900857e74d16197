package finalize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/match-setup-backend/internal/engine"
)

type memRecord struct {
	steps map[int][]engine.VetoStep
	maps  map[int][]engine.SeriesMap
	state map[int]string
}

func newMemRecord() memRecord {
	return memRecord{
		steps: map[int][]engine.VetoStep{},
		maps:  map[int][]engine.SeriesMap{},
		state: map[int]string{},
	}
}

// memStore stages writes and only copies them over when the callback
// succeeds, like a database transaction.
type memStore struct {
	committed memRecord
	failOn    string
}

type memTx struct {
	staged memRecord
	failOn string
}

var errInjected = errors.New("injected failure")

func (t *memTx) CreateSetupSteps(_ context.Context, id int, steps []engine.VetoStep) error {
	if t.failOn == "steps" {
		return errInjected
	}
	t.staged.steps[id] = steps
	return nil
}

func (t *memTx) CreateSeriesMaps(_ context.Context, id int, maps []engine.SeriesMap) error {
	if t.failOn == "maps" {
		return errInjected
	}
	t.staged.maps[id] = maps
	return nil
}

func (t *memTx) SetMatchState(_ context.Context, id int, state string) error {
	if t.failOn == "state" {
		return errInjected
	}
	t.staged.state[id] = state
	return nil
}

func (m *memStore) WithinTx(_ context.Context, fn func(SetupWriter) error) error {
	tx := &memTx{staged: newMemRecord(), failOn: m.failOn}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.staged.steps {
		m.committed.steps[k] = v
	}
	for k, v := range tx.staged.maps {
		m.committed.maps[k] = v
	}
	for k, v := range tx.staged.state {
		m.committed.state[k] = v
	}
	return nil
}

func completedState() engine.State {
	return engine.State{
		MatchID: 12,
		TeamA:   111,
		TeamB:   222,
		Format:  engine.FormatSingle,
		Phase:   engine.PhaseCompleted,
		VetoOrder: []engine.VetoStep{
			{Team: 222, Action: engine.ActionBan, Map: "dust2"},
			{Team: 111, Action: engine.ActionPick, Map: "mirage"},
		},
		Maps: []engine.SeriesMap{{Map: "mirage", PickedBy: 111, StartDefense: 222, StartAttack: 111}},
	}
}

func TestFinalize_WritesEverything(t *testing.T) {
	store := &memStore{committed: newMemRecord()}
	require.NoError(t, New(store, nil).Finalize(context.Background(), completedState()))

	assert.Len(t, store.committed.steps[12], 2)
	assert.Len(t, store.committed.maps[12], 1)
	assert.Equal(t, MatchCompleted, store.committed.state[12])
}

func TestFinalize_AllOrNothing(t *testing.T) {
	for _, failOn := range []string{"steps", "maps", "state"} {
		t.Run(failOn, func(t *testing.T) {
			store := &memStore{committed: newMemRecord(), failOn: failOn}
			err := New(store, nil).Finalize(context.Background(), completedState())

			var perr *PersistenceError
			require.ErrorAs(t, err, &perr)
			require.ErrorIs(t, err, errInjected)
			assert.Equal(t, 12, perr.MatchID)

			assert.Empty(t, store.committed.steps)
			assert.Empty(t, store.committed.maps)
			assert.Empty(t, store.committed.state)
		})
	}
}

func TestFinalize_RejectsIncompleteSetup(t *testing.T) {
	s := completedState()
	s.Phase = engine.PhaseSidePick
	store := &memStore{committed: newMemRecord()}

	err := New(store, nil).Finalize(context.Background(), s)
	require.ErrorIs(t, err, engine.ErrWrongPhase)
	assert.Empty(t, store.committed.state)
}
