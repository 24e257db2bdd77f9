package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom_autopublisher/generator"
	"loom_autopublisher/pipeline"
	"loom_autopublisher/publisher"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// steppingClock returns strictly increasing timestamps.
func steppingClock() func() time.Time {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestBeginCompleteGet(t *testing.T) {
	store := openTestStore(t)
	store.now = steppingClock()
	ctx := context.Background()

	req := pipeline.Request{ShareURL: "https://www.loom.com/share/abc", DryRun: pipeline.AllDryRun()}
	require.NoError(t, store.Begin(ctx, "run-1", req))

	run, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, "https://www.loom.com/share/abc", run.ShareURL)
	assert.Equal(t, pipeline.AllDryRun(), run.DryRun)
	assert.Nil(t, run.Outcome)

	out := &pipeline.Outcome{
		RunID:   "run-1",
		Content: generator.ContentRecord{Title: "T", Slug: "t"},
		Video:   publisher.Result{Sink: publisher.SinkYouTube, Mode: publisher.ModeSimulated, ID: "dry-abc1234"},
		Page:    publisher.Result{Sink: publisher.SinkSite, URL: "https://example.com/t.html"},
		Social:  publisher.Result{Sink: publisher.SinkBuffer, ID: "local-12345678", Fallback: true},
	}
	require.NoError(t, store.Complete(ctx, "run-1", out))

	run, err = store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	require.NotNil(t, run.Outcome)
	assert.Equal(t, *out, *run.Outcome)
	assert.True(t, run.UpdatedAt.After(run.CreatedAt))
}

func TestFail(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Begin(ctx, "run-2", pipeline.Request{}))
	require.NoError(t, store.Fail(ctx, "run-2", pipeline.StageUpload, errors.New("quota exceeded")))

	run, err := store.Get(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, pipeline.StageUpload, run.FailedStage)
	assert.Equal(t, "quota exceeded", run.Error)
	assert.Empty(t, run.ShareURL)
}

func TestUnknownRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.Complete(ctx, "missing", &pipeline.Outcome{}), ErrNotFound)
	require.ErrorIs(t, store.Fail(ctx, "missing", pipeline.StageQueue, nil), ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	store := openTestStore(t)
	store.now = steppingClock()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Begin(ctx, id, pipeline.Request{}))
	}

	runs, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	runs, err = store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
}

func TestListOrdersWithinTheSameSecond(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return base.Add(100 * time.Millisecond) }
	require.NoError(t, store.Begin(ctx, "older", pipeline.Request{}))
	store.now = func() time.Time { return base.Add(120 * time.Millisecond) }
	require.NoError(t, store.Begin(ctx, "newer", pipeline.Request{}))

	runs, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "newer", runs[0].ID)
	assert.Equal(t, "older", runs[1].ID)
	assert.True(t, runs[0].CreatedAt.Equal(base.Add(120*time.Millisecond)))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Begin(context.Background(), "keep", pipeline.Request{}))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()
	run, err := second.Get(context.Background(), "keep")
	require.NoError(t, err)
	assert.Equal(t, "keep", run.ID)
}

func TestDuplicateBegin(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Begin(ctx, "dup", pipeline.Request{}))
	require.Error(t, store.Begin(ctx, "dup", pipeline.Request{}))
}
