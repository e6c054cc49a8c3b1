package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexshd/reliability"
	"github.com/alexshd/reliability/distribution"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// linearStudy is {R - S < 0} with R ~ N(10, 2) and S ~ N(4, 1.5).
func linearStudy(t *testing.T) reliability.Study {
	t.Helper()
	r, err := distribution.NewNormal(10, 2)
	require.NoError(t, err)
	s, err := distribution.NewNormal(4, 1.5)
	require.NoError(t, err)
	joint, err := distribution.NewJoint([]distribution.Marginal{r, s}, nil)
	require.NoError(t, err)
	f, err := reliability.NewSymbolicFunction([]string{"R", "S"}, []string{"g"}, []string{"R - S"})
	require.NoError(t, err)
	event, err := reliability.NewEvent(f, reliability.NewRandomVector(joint.WithDescription("R", "S")), reliability.Less, 0)
	require.NoError(t, err)
	return reliability.Study{Name: "linear", Event: event, Start: []float64{10, 4}, Config: reliability.DefaultConfig()}
}

func TestSaveAndGet(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	results, err := reliability.RunBatch(ctx, []reliability.Study{linearStudy(t)}, reliability.BatchConfig{Workers: 1})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)

	saved, err := s.Save(ctx, FromBatch("SQP", results[0]))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "linear", got.Study)
	assert.Equal(t, "SQP", got.Solver)
	assert.Equal(t, reliability.StateConverged, got.State)
	assert.InDelta(t, 2.4, got.Beta, 1e-5)
	assert.Equal(t, got.Beta, got.Generalised)
	assert.InDelta(t, results[0].Result.EventProbability(), got.Pf, 1e-15)
	assert.False(t, got.OriginFails)
	assert.Equal(t, []string{"R", "S"}, got.Names)
	assert.Equal(t, results[0].Result.DesignPoint(), got.Design)
	assert.Equal(t, results[0].Result.ImportanceFactors(), got.Factors)
	assert.Equal(t, results[0].History, got.History)
	assert.Equal(t, results[0].Duration, got.Duration)
	assert.WithinDuration(t, saved.CreatedAt, got.CreatedAt, time.Microsecond)
}

func TestSaveFailedRun(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	st := linearStudy(t)
	st.Start = []float64{10}
	results, err := reliability.RunBatch(ctx, []reliability.Study{st}, reliability.BatchConfig{Workers: 1})
	require.NoError(t, err)
	require.ErrorIs(t, results[0].Err, reliability.ErrInvalidArgument)

	saved, err := s.Save(ctx, FromBatch("SQP", results[0]))
	require.NoError(t, err)

	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, reliability.StateFailed, got.State)
	assert.Contains(t, got.Error, "invalid argument")
	assert.Zero(t, got.Beta)
	assert.Nil(t, got.Factors)
	assert.Empty(t, got.Names)
}

func TestListAndDelete(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	var ids []string
	for _, study := range []string{"a", "b", "a"} {
		run, err := s.Save(ctx, Run{Study: study, Solver: "SQP", State: reliability.StateFailed, Error: "x"})
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "most recent first")

	onlyA, err := s.List(ctx, "a", 0)
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)

	one, err := s.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	require.NoError(t, s.Delete(ctx, ids[0]))
	_, err = s.Get(ctx, ids[0])
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.ErrorIs(t, s.Delete(ctx, ids[0]), ErrNotFound)
}
