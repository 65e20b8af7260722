package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go-calendar-core/core/cache"
	"go-calendar-core/core/database"
	"go-calendar-core/core/errors"
	"go-calendar-core/modules/calendar/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner = entity.Owner{ContextID: 1, UserID: 10}
	base  = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
)

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newAccount(id int, provider string) *entity.CalendarAccount {
	return &entity.CalendarAccount{
		ProviderID:     provider,
		ID:             id,
		ContextID:      owner.ContextID,
		UserID:         owner.UserID,
		InternalConfig: entity.JSONB{"secret": "s"},
		UserConfig:     entity.JSONB{"name": "n"},
		LastModified:   base,
	}
}

func TestAccountRepository_InsertAndLoad(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db, nil, 0)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newAccount(1, "ical"), 0))

	got, err := repo.Load(ctx, owner, 1)
	require.NoError(t, err)
	assert.Equal(t, "ical", got.ProviderID)
	assert.Equal(t, "s", got.InternalConfig.String("secret"))
	assert.Equal(t, "n", got.UserConfig.String("name"))
	assert.True(t, base.Equal(got.LastModified))

	_, err = repo.Load(ctx, owner, 2)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))

	_, err = repo.Load(ctx, entity.Owner{ContextID: 1, UserID: 11}, 1)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}

func TestAccountRepository_InsertDuplicateIsStorageError(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db, nil, 0)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newAccount(1, "ical"), 0))
	err := repo.Insert(ctx, newAccount(1, "google"), 0)
	assert.True(t, errors.HasCode(err, errors.ErrStorage))
}

func TestAccountRepository_InsertQuota(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db, nil, 0)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newAccount(1, "ical"), 1))

	err := repo.Insert(ctx, newAccount(2, "ical"), 1)
	require.Error(t, err)
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrMaxAccountsExceeded, appErr.Code)
	assert.Equal(t, 1, appErr.Details["limit"])
	assert.Equal(t, "ical", appErr.Details["provider"])

	// other providers and unlimited inserts are unaffected
	require.NoError(t, repo.Insert(ctx, newAccount(2, "google"), 1))
	require.NoError(t, repo.Insert(ctx, newAccount(3, "ical"), 0))
	require.NoError(t, repo.Insert(ctx, newAccount(4, "ical"), -1))

	// a different owner has its own quota
	other := newAccount(1, "ical")
	other.UserID = 99
	require.NoError(t, repo.Insert(ctx, other, 1))
}

func TestAccountRepository_NextID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db, nil, 0)
	ctx := context.Background()

	id, err := repo.NextID(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	require.NoError(t, repo.Insert(ctx, newAccount(0, "chronos"), 0))
	id, err = repo.NextID(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	require.NoError(t, repo.Insert(ctx, newAccount(5, "ical"), 0))
	id, err = repo.NextID(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 6, id)
}

func TestAccountRepository_UpdateOptimisticConcurrency(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db, nil, 0)
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, newAccount(1, "ical"), 0))

	stale := newAccount(1, "ical")
	stale.UserConfig = entity.JSONB{"name": "stale"}
	stale.LastModified = base.Add(time.Minute)
	err := repo.Update(ctx, stale, base.Add(-time.Second))
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))

	got, err := repo.Load(ctx, owner, 1)
	require.NoError(t, err)
	assert.Equal(t, "n", got.UserConfig.String("name"))

	fresh := newAccount(1, "ical")
	fresh.UserConfig = entity.JSONB{"name": "fresh"}
	fresh.LastModified = base.Add(time.Minute)
	require.NoError(t, repo.Update(ctx, fresh, base))

	got, err = repo.Load(ctx, owner, 1)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.UserConfig.String("name"))
	assert.True(t, base.Add(time.Minute).Equal(got.LastModified))

	missing := newAccount(9, "ical")
	err = repo.Update(ctx, missing, base)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}

func TestAccountRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db, nil, 0)
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, newAccount(1, "ical"), 0))

	err := repo.Delete(ctx, owner, 1, base.Add(-time.Millisecond))
	assert.True(t, errors.HasCode(err, errors.ErrConcurrentModification))

	require.NoError(t, repo.Delete(ctx, owner, 1, base))

	err = repo.Delete(ctx, owner, 1, base)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}

func TestAccountRepository_LoadAllUsesCache(t *testing.T) {
	db := setupTestDB(t)
	c := cache.NewMemoryCache()
	repo := NewAccountRepository(db, c, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newAccount(2, "ical"), 0))
	require.NoError(t, repo.Insert(ctx, newAccount(1, "google"), 0))

	accounts, err := repo.LoadAll(ctx, owner)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, 1, accounts[0].ID)
	assert.Equal(t, 2, accounts[1].ID)

	// rows written behind the repository's back stay invisible until invalidation
	_, err = db.ExecContext(ctx, db.Rebind(`DELETE FROM calendar_accounts WHERE id = ?`), 1)
	require.NoError(t, err)

	cached, err := repo.LoadAll(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, "s", cached[0].InternalConfig.String("secret"), "internal config survives the cache")

	// inside a transaction the cache is bypassed
	err = db.WithTx(ctx, func(ctx context.Context) error {
		inTx, err := repo.LoadAll(ctx, owner)
		require.NoError(t, err)
		assert.Len(t, inTx, 1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, repo.Invalidate(ctx, owner))
	fresh, err := repo.LoadAll(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, fresh, 1)
}

func TestAccountRepository_LoadByProvider(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db, nil, 0)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newAccount(3, "ical"), 0))
	require.NoError(t, repo.Insert(ctx, newAccount(1, "ical"), 0))
	require.NoError(t, repo.Insert(ctx, newAccount(2, "google"), 0))

	accounts, err := repo.LoadByProvider(ctx, owner, "ical")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, 1, accounts[0].ID)
	assert.Equal(t, 3, accounts[1].ID)

	none, err := repo.LoadByProvider(ctx, owner, "birthdays")
	require.NoError(t, err)
	assert.Empty(t, none)
}
