package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompatibilityCurrentVersions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.WriteSnapshot(ctx, testSnap("2025-06-30", 1), nil, WriteOptions{})
	require.NoError(t, err)

	res, err := store.CheckVersionCompatibility(ctx, "2025-06-30")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.IsCompatible)
	assert.True(t, res.SchemaCompatible)
	assert.True(t, res.CalculationCompatible)
	assert.True(t, res.RankingCompatible)
	assert.Empty(t, res.Warnings)
}

func TestCompatibilitySchemaMismatchIsHard(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	snap := testSnap("2025-06-30", 1)
	snap.SchemaVersion = "1.0"
	_, err := store.WriteSnapshot(ctx, snap, nil, WriteOptions{})
	require.NoError(t, err)

	res, err := store.CheckVersionCompatibility(ctx, "2025-06-30")
	require.NoError(t, err)
	assert.False(t, res.IsCompatible)
	assert.False(t, res.SchemaCompatible)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "cannot be read safely")
}

func TestCompatibilityCalculationMismatchIsSoft(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	snap := testSnap("2025-06-30", 1)
	snap.CalculationVersion = "1.3"
	snap.RankingVersion = "1.0"
	_, err := store.WriteSnapshot(ctx, snap, nil, WriteOptions{})
	require.NoError(t, err)

	res, err := store.CheckVersionCompatibility(ctx, "2025-06-30")
	require.NoError(t, err)
	assert.True(t, res.IsCompatible)
	assert.False(t, res.CalculationCompatible)
	assert.False(t, res.RankingCompatible)
	assert.Len(t, res.Warnings, 2)
}

func TestCompatibilityEmptyRankingIsCompatible(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	snap := testSnap("2025-06-30", 1)
	snap.RankingVersion = ""
	_, err := store.WriteSnapshot(ctx, snap, nil, WriteOptions{})
	require.NoError(t, err)

	res, err := store.CheckVersionCompatibility(ctx, "2025-06-30")
	require.NoError(t, err)
	assert.True(t, res.RankingCompatible)
}

func TestCompatibilityLegacySnapshot(t *testing.T) {
	store, blobs := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, blobs.Put(ctx, legacyKey("2024-11-30"), []byte(legacyDoc)))

	res, err := store.CheckVersionCompatibility(ctx, "2024-11-30")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.IsCompatible)
	assert.False(t, res.SchemaCompatible)
}

func TestCompatibilityMissingVersion(t *testing.T) {
	store, _ := newTestStore(t)

	res, err := store.CheckVersionCompatibility(context.Background(), "2030-01-31")
	require.NoError(t, err)
	assert.Nil(t, res)
}
