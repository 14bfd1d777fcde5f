package sqlite

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/estatedesk/listingkeeper/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestSlotRepository_GetMissing(t *testing.T) {
	repo := NewSlotRepository(NewTestDB(t))

	_, err := repo.Get(context.Background(), "listings")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSlotRepository_SetGet(t *testing.T) {
	db := NewTestDB(t)
	repo := NewSlotRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "listings", `[{"id":"a"}]`))
	value, err := repo.Get(ctx, "listings")
	require.NoError(t, err)
	require.Equal(t, `[{"id":"a"}]`, value)

	require.NoError(t, repo.Set(ctx, "listings", `[]`))
	value, err = repo.Get(ctx, "listings")
	require.NoError(t, err)
	require.Equal(t, `[]`, value)

	var version int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT version FROM slots WHERE key = ?`, "listings").Scan(&version))
	require.Equal(t, int64(2), version)
}

func TestSlotRepository_QuotaExceeded(t *testing.T) {
	repo := NewSlotRepository(NewTestDB(t), WithQuota(64))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "listings", "small"))

	err := repo.Set(ctx, "listings", strings.Repeat("x", 100))
	require.ErrorIs(t, err, repository.ErrQuotaExceeded)

	// The failed write leaves the previous value in place
	value, err := repo.Get(ctx, "listings")
	require.NoError(t, err)
	require.Equal(t, "small", value)
}

func TestSlotRepository_QuotaCountsOtherSlots(t *testing.T) {
	repo := NewSlotRepository(NewTestDB(t), WithQuota(60))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "listing_old", strings.Repeat("a", 30)))
	require.ErrorIs(t, repo.Set(ctx, "listings", strings.Repeat("b", 30)), repository.ErrQuotaExceeded)

	// Replacing a slot only counts its new size
	require.NoError(t, repo.Set(ctx, "listing_old", strings.Repeat("a", 40)))
}

func TestSlotRepository_RemoveAndKeys(t *testing.T) {
	repo := NewSlotRepository(NewTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "listings", "[]"))
	require.NoError(t, repo.Set(ctx, "listing_archive", "[]"))
	require.NoError(t, repo.Set(ctx, "theme", "dark"))

	keys, err := repo.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"listing_archive", "listings", "theme"}, keys)

	require.NoError(t, repo.Remove(ctx, "theme"))
	require.NoError(t, repo.Remove(ctx, "theme"))

	keys, err = repo.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"listing_archive", "listings"}, keys)
}

func TestSlotRepository_Subscribe(t *testing.T) {
	repo := NewSlotRepository(NewTestDB(t), WithPollInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, repo.Set(ctx, "theme", "dark"))

	changes, err := repo.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Set(ctx, "listings", "[]"))
	select {
	case key := <-changes:
		require.Equal(t, "listings", key)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}

	require.NoError(t, repo.Remove(ctx, "theme"))
	select {
	case key := <-changes:
		require.Equal(t, "theme", key)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for removal notification")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-changes
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDiffVersions(t *testing.T) {
	before := map[string]int64{"a": 1, "b": 2, "c": 1}
	after := map[string]int64{"a": 1, "b": 3, "d": 1}

	require.ElementsMatch(t, []string{"b", "c", "d"}, diffVersions(before, after))
	require.Empty(t, diffVersions(after, after))
}
