package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/model"
)

func newTestHistory(t *testing.T) *SQLiteHistory {
	t.Helper()
	store, err := NewSQLiteHistory(zap.NewNop(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteHistory_RecordAndUpdate(t *testing.T) {
	store := newTestHistory(t)
	ctx := context.Background()

	rec := &InstallRecord{
		ID:        uuid.New().String(),
		Item:      "python",
		Status:    model.StatusDownloading,
		StartedAt: time.Now(),
	}
	require.NoError(t, store.Record(ctx, rec))

	completed := time.Now()
	rec.Status = model.StatusInstalled
	rec.CompletedAt = &completed
	rec.Duration = completed.Sub(rec.StartedAt)
	require.NoError(t, store.Update(ctx, rec))

	records, err := store.List(ctx, "python", 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)
	assert.Equal(t, model.StatusInstalled, records[0].Status)
	assert.NotNil(t, records[0].CompletedAt)
	assert.Empty(t, records[0].Error)
}

func TestSQLiteHistory_FailureKeepsError(t *testing.T) {
	store := newTestHistory(t)
	ctx := context.Background()

	rec := &InstallRecord{
		ID:        uuid.New().String(),
		Item:      "java",
		Status:    model.StatusDownloading,
		StartedAt: time.Now(),
	}
	require.NoError(t, store.Record(ctx, rec))

	completed := time.Now()
	rec.Status = model.StatusDownloadFailed
	rec.Error = "request failed: connection refused"
	rec.CompletedAt = &completed
	require.NoError(t, store.Update(ctx, rec))

	records, err := store.List(ctx, "java", 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.StatusDownloadFailed, records[0].Status)
	assert.Equal(t, "request failed: connection refused", records[0].Error)
}

func TestSQLiteHistory_CountAndFilter(t *testing.T) {
	store := newTestHistory(t)
	ctx := context.Background()

	for i, item := range []string{"python", "python", "java"} {
		require.NoError(t, store.Record(ctx, &InstallRecord{
			ID:        uuid.New().String(),
			Item:      item,
			Status:    model.StatusInstalled,
			StartedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	n, err := store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.Count(ctx, "python")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := store.List(ctx, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	// Newest first.
	assert.Equal(t, "java", records[0].Item)
}

func TestSQLiteHistory_DeleteBefore(t *testing.T) {
	store := newTestHistory(t)
	ctx := context.Background()

	old := &InstallRecord{
		ID:        uuid.New().String(),
		Item:      "python",
		Status:    model.StatusInstalled,
		StartedAt: time.Now().Add(-48 * time.Hour),
	}
	recent := &InstallRecord{
		ID:        uuid.New().String(),
		Item:      "python",
		Status:    model.StatusInstalled,
		StartedAt: time.Now(),
	}
	require.NoError(t, store.Record(ctx, old))
	require.NoError(t, store.Record(ctx, recent))

	require.NoError(t, store.DeleteBefore(ctx, time.Now().Add(-24*time.Hour)))

	records, err := store.List(ctx, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, recent.ID, records[0].ID)
}
