package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silolab/avalanche/internal/aggregate"
	"github.com/silolab/avalanche/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "results", "avalanche.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testBatch(t *testing.T) *storage.BatchRecord {
	t.Helper()
	agg := aggregate.New()
	withKey := aggregate.NewGroupKey(0.2, 3)
	agg.Merge(withKey, aggregate.Run{ID: "a/flow_data.csv", Sizes: []int{3, 7}, Durations: []float64{1, 2}})
	agg.Merge(withKey, aggregate.Run{ID: "b/flow_data.csv", Sizes: []int{3, 3, 9}, Durations: []float64{1, 1, 4}})
	agg.Merge(aggregate.GroupKey{}, aggregate.Run{ID: "c/flow_data.csv"})

	return &storage.BatchRecord{
		Root:            "/data",
		Source:          "flow",
		GapThreshold:    5,
		MinSize:         1,
		CloseFinalBlock: true,
		Runs: []storage.RunRecord{
			{Path: "a/flow_data.csv", Key: withKey, Events: 2},
			{Path: "b/flow_data.csv", Key: withKey, Events: 3},
			{Path: "c/flow_data.csv", Events: 0},
			{Path: "d/flow_data.csv", Skipped: true, Reason: "missing columns"},
		},
		Groups: agg.FinalizeAll(),
	}
}

func TestSaveAndLoadBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := testBatch(t)

	require.NoError(t, s.SaveBatch(ctx, b))
	_, err := uuid.Parse(b.ID)
	require.NoError(t, err, "batch id is a uuid")
	assert.False(t, b.CreatedAt.IsZero())

	latest, err := s.LatestBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, latest.ID)
	assert.Equal(t, "flow", latest.Source)
	assert.Equal(t, 5.0, latest.GapThreshold)
	assert.True(t, latest.CloseFinalBlock)
	assert.WithinDuration(t, b.CreatedAt, latest.CreatedAt, time.Microsecond)
	require.Len(t, latest.Runs, 4)
	assert.Equal(t, b.Runs, latest.Runs)
	assert.Equal(t, 1, latest.SkippedCount())

	assert.Equal(t, storage.StatusHealthy, s.Health().Status)
}

func TestListGroups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := testBatch(t)
	require.NoError(t, s.SaveBatch(ctx, b))

	groups, err := s.ListGroups(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "none", groups[0].Key.String())
	assert.Equal(t, "chi0.2_outlet3.0", groups[1].Key.String())
	assert.Equal(t, b.Groups[1].Summary, groups[1].Summary)
	assert.Equal(t, []string{"a/flow_data.csv", "b/flow_data.csv"}, groups[1].RunIDs)
	assert.Nil(t, groups[1].Sizes)

	none, err := s.ListGroups(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGroupAndSizes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := testBatch(t)
	require.NoError(t, s.SaveBatch(ctx, b))

	key := aggregate.NewGroupKey(0.2, 3)
	g, err := s.Group(ctx, b.ID, key)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7, 3, 3, 9}, g.Sizes)
	assert.Equal(t, []float64{1, 2, 1, 1, 4}, g.Durations)
	assert.Equal(t, 5.0, g.Summary.Mean)

	sizes, err := s.GroupSizes(ctx, b.ID, aggregate.GroupKey{})
	require.NoError(t, err)
	assert.NotNil(t, sizes)
	assert.Empty(t, sizes)

	_, err = s.GroupSizes(ctx, b.ID, aggregate.NewGroupKey(9, 9))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLatestBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.LatestBatch(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	first := testBatch(t)
	first.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveBatch(ctx, first))

	second := testBatch(t)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, s.SaveBatch(ctx, second))

	latest, err := s.LatestBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestSaveBatch_DuplicateID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := testBatch(t)
	require.NoError(t, s.SaveBatch(ctx, b))

	dup := testBatch(t)
	dup.ID = b.ID
	err := s.SaveBatch(ctx, dup)
	require.Error(t, err)
	assert.Equal(t, storage.StatusUnhealthy, s.Health().Status)

	groups, err := s.ListGroups(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, groups, 2, "failed save leaves the earlier batch intact")
	assert.False(t, errors.Is(err, storage.ErrNotFound))
}

func TestCheckHealth(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CheckHealth(context.Background()))

	require.NoError(t, s.Close())
	assert.Error(t, s.CheckHealth(context.Background()))
}

func TestStartHealthMonitor(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.StartHealthMonitor(ctx, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return s.Health().Message == "health check"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, storage.StatusHealthy, s.Health().Status)

	require.NoError(t, s.Close())
	assert.Eventually(t, func() bool {
		return s.Health().Status == storage.StatusUnhealthy
	}, time.Second, 5*time.Millisecond)
}
