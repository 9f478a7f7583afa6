package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend/internal/domain"
)

func TestRetentionThreshold(t *testing.T) {
	store := newFakeStore()
	retention := NewRetention(store, testLogger(), 30, 24*time.Hour, time.Hour)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) // 30 days TTL + 1 day safety
	assert.Equal(t, want, retention.Threshold(now))
}

func TestRetentionRunOnce(t *testing.T) {
	store := newFakeStore()
	retention := NewRetention(store, testLogger(), 30, 24*time.Hour, time.Hour)
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	edge := retention.Threshold(now) // exactly at the cutoff: purged
	fresh := now.Add(-10 * 24 * time.Hour)

	require.NoError(t, store.RecordTombstone(ctx, domain.ResourceProducts, "p-old", &old))
	require.NoError(t, store.RecordTombstone(ctx, domain.ResourceProducts, "p-edge", &edge))
	require.NoError(t, store.RecordTombstone(ctx, domain.ResourceProducts, "p-fresh", &fresh))

	purged, err := retention.RunOnce(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	deleted, err := store.IsDeleted(ctx, domain.ResourceProducts, "p-fresh")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, _ = store.IsDeleted(ctx, domain.ResourceProducts, "p-old")
	assert.False(t, deleted)

	// Sweeps are idempotent.
	purged, err = retention.RunOnce(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestRetentionSweepOverrides(t *testing.T) {
	store := newFakeStore()
	retention := NewRetention(store, testLogger(), 30, 24*time.Hour, time.Hour)
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-8 * 24 * time.Hour)
	require.NoError(t, store.RecordTombstone(ctx, domain.ResourceProducts, "p-recent", &recent))

	// The configured 30-day policy keeps an 8-day-old tombstone.
	purged, err := retention.RunOnce(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, purged)

	ttl := 7
	safety := time.Duration(0)
	result, err := retention.Sweep(ctx, now, SweepOptions{TTLDays: &ttl, Safety: &safety})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Deleted)
	assert.Equal(t, now.Add(-7*24*time.Hour), result.Threshold)
}

func TestRetentionSweepPurgesStaleClients(t *testing.T) {
	store := newFakeStore()
	retention := NewRetention(store, testLogger(), 30, 0, time.Hour)
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := store.EnsureClient(ctx, "client-1", "kasir-tablet-1", nil)
	require.NoError(t, err)
	stale := store.clients["kasir-tablet-1"]
	stale.LastSeen = now.Add(-120 * 24 * time.Hour)
	store.clients["kasir-tablet-1"] = stale

	_, err = store.EnsureClient(ctx, "client-2", "kasir-tablet-2", nil)
	require.NoError(t, err)

	days := 90
	result, err := retention.Sweep(ctx, now, SweepOptions{StaleDays: &days})
	require.NoError(t, err)
	require.NotNil(t, result.StaleClients)
	assert.Equal(t, int64(1), *result.StaleClients)

	_, ok := store.clients["kasir-tablet-1"]
	assert.False(t, ok)
	_, ok = store.clients["kasir-tablet-2"]
	assert.True(t, ok)
}

func TestRetentionWritesAuditOnPurge(t *testing.T) {
	store := newFakeStore()
	retention := NewRetention(store, testLogger(), 30, 0, time.Hour)
	ctx := context.Background()

	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	require.NoError(t, store.RecordTombstone(ctx, domain.ResourcePrices, "gone", &old))

	_, err := retention.RunOnce(ctx, time.Now().UTC())
	require.NoError(t, err)

	entries, err := store.ListAudit(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "retention.sweep", entries[0].Action)
}
