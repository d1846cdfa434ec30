package application

import (
	"context"
	"testing"
	"time"

	"github.com/AzielCF/az-cache/core/config"
	"github.com/AzielCF/az-cache/core/database"
	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistoryService(t *testing.T) *HistoryService {
	t.Helper()
	db, err := database.NewDatabase(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}, false)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewHistoryService(db)
}

func TestHistoryService_RecordAndList(t *testing.T) {
	svc := newTestHistoryService(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, svc.Record(ctx, domainCache.ChangeEvent{
		ID:        "ev-1",
		Type:      domainCache.ChangeUpdate,
		Source:    domainCache.SourceManual,
		Version:   "v1",
		Timestamp: now.Add(-time.Minute),
		Changes: []domainCache.Change{
			{Path: "user.maxSize", OldValue: 1000, NewValue: 2000},
			{Path: "stats.enabled", OldValue: true, NewValue: false},
		},
	}))
	require.NoError(t, svc.Record(ctx, domainCache.ChangeEvent{
		ID:        "ev-2",
		Type:      domainCache.ChangeReset,
		Source:    domainCache.SourceManual,
		Version:   "v2",
		Timestamp: now,
		Changes:   []domainCache.Change{{Path: "user.maxSize", OldValue: 2000, NewValue: 1000}},
	}))
	// empty diffs are not recorded
	require.NoError(t, svc.Record(ctx, domainCache.ChangeEvent{ID: "ev-3"}))

	all, err := svc.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ev-2", all[0].EventID)
	assert.Equal(t, "2000", all[0].OldValue)
	assert.Equal(t, "reset", all[0].Type)

	user, err := svc.List(ctx, "user", 1)
	require.NoError(t, err)
	require.Len(t, user, 1)
	assert.Equal(t, "v2", user[0].Version)

	stats, err := svc.List(ctx, "stats", 0)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "false", stats[0].NewValue)
}

func TestHistoryService_Prune(t *testing.T) {
	svc := newTestHistoryService(t)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, domainCache.ChangeEvent{
		ID:        "old",
		Timestamp: time.Now().Add(-48 * time.Hour),
		Changes:   []domainCache.Change{{Path: "api.maxSize", OldValue: 1, NewValue: 2}},
	}))
	require.NoError(t, svc.Record(ctx, domainCache.ChangeEvent{
		ID:        "new",
		Timestamp: time.Now(),
		Changes:   []domainCache.Change{{Path: "api.maxSize", OldValue: 2, NewValue: 3}},
	}))

	n, err := svc.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, _ := svc.List(ctx, "api", 0)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].EventID)
}
