package service

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go-calendar-core/core/cache"
	"go-calendar-core/core/database"
	"go-calendar-core/core/errors"
	"go-calendar-core/modules/calendar/capability"
	"go-calendar-core/modules/calendar/dto"
	"go-calendar-core/modules/calendar/entity"
	"go-calendar-core/modules/calendar/provider"
	"go-calendar-core/modules/calendar/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = entity.Owner{ContextID: 1, UserID: 10}
	bob   = entity.Owner{ContextID: 1, UserID: 20}
)

type fakeProvider struct {
	mu        sync.Mutex
	id        string
	max       int
	initErr   error
	hookErr   error
	created   []int
	updated   []int
	deleted   []int
	reconfigs int
}

func (p *fakeProvider) ID() string              { return p.id }
func (p *fakeProvider) DisplayName() string     { return p.id }
func (p *fakeProvider) DefaultMaxAccounts() int { return p.max }

func (p *fakeProvider) InitializeAccount(_ context.Context, _ entity.Owner, settings dto.AccountSettings) (provider.AccountConfig, error) {
	if p.initErr != nil {
		return provider.AccountConfig{}, p.initErr
	}
	return provider.AccountConfig{
		UserConfig:     settings.UserConfig.Clone(),
		InternalConfig: entity.JSONB{"provider": p.id},
	}, nil
}

func (p *fakeProvider) ReconfigureAccount(_ context.Context, account *entity.CalendarAccount, settings dto.AccountSettings) (provider.AccountConfig, error) {
	p.mu.Lock()
	p.reconfigs++
	p.mu.Unlock()
	return provider.AccountConfig{
		UserConfig:     settings.UserConfig.Clone(),
		InternalConfig: account.InternalConfig.Clone(),
	}, nil
}

func (p *fakeProvider) OnAccountCreated(_ context.Context, a *entity.CalendarAccount) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, a.ID)
	return p.hookErr
}

func (p *fakeProvider) OnAccountUpdated(_ context.Context, a *entity.CalendarAccount) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, a.ID)
	return p.hookErr
}

func (p *fakeProvider) OnAccountDeleted(_ context.Context, a *entity.CalendarAccount) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, a.ID)
	return p.hookErr
}

type fakeAutoProvider struct {
	fakeProvider
	autoErr error
	autoRun int
}

func (p *fakeAutoProvider) AutoConfigureAccount(context.Context, entity.Owner) (provider.AccountConfig, error) {
	p.autoRun++
	if p.autoErr != nil {
		return provider.AccountConfig{}, p.autoErr
	}
	return provider.AccountConfig{UserConfig: entity.JSONB{"name": p.id}, InternalConfig: entity.JSONB{}}, nil
}

type fixture struct {
	db        *database.Database
	repo      repository.AccountRepository
	svc       AccountService
	feed      *fakeProvider
	chronos   *fakeAutoProvider
	birthdays *fakeAutoProvider
	now       time.Time
	denied    map[string]bool
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(context.Background()))
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		db:        db,
		repo:      repository.NewAccountRepository(db, cache.NewMemoryCache(), time.Minute),
		feed:      &fakeProvider{id: "feed", max: 2},
		chronos:   &fakeAutoProvider{fakeProvider: fakeProvider{id: provider.ChronosProviderID, max: 1}},
		birthdays: &fakeAutoProvider{fakeProvider: fakeProvider{id: provider.BirthdaysProviderID, max: 1}},
		now:       time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
		denied:    map[string]bool{},
	}

	registry := provider.NewRegistry(map[string]int{"feed": 1}, f.chronos, f.feed, f.birthdays)
	checker := capability.CheckerFunc(func(_ context.Context, _ entity.Owner, providerID string) (bool, error) {
		return !f.denied[providerID], nil
	})

	opts = append([]Option{WithClock(func() time.Time { return f.now })}, opts...)
	f.svc = NewAccountService(db, f.repo, registry, checker, opts...)
	return f
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.GetContext(context.Background(), &n, `SELECT COUNT(*) FROM calendar_accounts`))
	return n
}

func settings(name string) dto.AccountSettings {
	return dto.AccountSettings{UserConfig: entity.JSONB{"name": name}}
}

func TestCreateAccount_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acc, err := f.svc.CreateAccount(ctx, alice, "feed", settings("holidays"))
	require.NoError(t, err)
	assert.Equal(t, 1, acc.ID)
	assert.Equal(t, "feed", acc.ProviderID)
	assert.Equal(t, "holidays", acc.UserConfig.String("name"))
	assert.Equal(t, "feed", acc.InternalConfig.String("provider"))
	assert.True(t, f.now.Equal(acc.LastModified))
	assert.Equal(t, []int{1}, f.feed.created)
}

func TestCreateAccount_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown provider", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateAccount(ctx, alice, "caldav", settings("x"))
		assert.True(t, errors.HasCode(err, errors.ErrNotFound))
	})

	t.Run("missing capability", func(t *testing.T) {
		f := newFixture(t)
		f.denied["feed"] = true
		_, err := f.svc.CreateAccount(ctx, alice, "feed", settings("x"))
		assert.True(t, errors.HasCode(err, errors.ErrMissingCapability))
		assert.Equal(t, 0, f.count(t))
	})

	t.Run("auto-provisioning provider", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateAccount(ctx, alice, provider.BirthdaysProviderID, settings("x"))
		assert.True(t, errors.HasCode(err, errors.ErrUnsupportedOperation))
	})

	t.Run("provider rejects settings", func(t *testing.T) {
		f := newFixture(t)
		f.feed.initErr = errors.NewAppError(errors.ErrInvalidInput, "bad uri", nil)
		_, err := f.svc.CreateAccount(ctx, alice, "feed", settings("x"))
		assert.True(t, errors.HasCode(err, errors.ErrInvalidInput))
		assert.Equal(t, 0, f.count(t))
	})
}

func TestCreateAccount_Quota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAccount(ctx, alice, "feed", settings("first"))
	require.NoError(t, err)

	_, err = f.svc.CreateAccount(ctx, alice, "feed", settings("second"))
	assert.True(t, errors.HasCode(err, errors.ErrMaxAccountsExceeded))
	assert.Equal(t, 1, f.count(t))

	_, err = f.svc.CreateAccount(ctx, bob, "feed", settings("bob's"))
	assert.NoError(t, err)
}

func TestCreateAccount_PostHookFailureIsNotReturned(t *testing.T) {
	f := newFixture(t)
	f.feed.hookErr = stderrors.New("remote unavailable")

	acc, err := f.svc.CreateAccount(context.Background(), alice, "feed", settings("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, acc.ID)
}

func TestUpdateAccount_StaleClientTimestamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acc, err := f.svc.CreateAccount(ctx, alice, "feed", settings("orig"))
	require.NoError(t, err)

	_, err = f.svc.UpdateAccount(ctx, alice, acc.ID, settings("changed"), acc.LastModified.Add(-time.Second))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrConcurrentModification))
	assert.True(t, errors.IsRetryable(err))

	stored, err := f.svc.GetAccount(ctx, alice, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "orig", stored.UserConfig.String("name"))
	assert.True(t, acc.LastModified.Equal(stored.LastModified))
	assert.Equal(t, 0, f.feed.reconfigs)
}

func TestUpdateAccount_BumpsLastModified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acc, err := f.svc.CreateAccount(ctx, alice, "feed", settings("orig"))
	require.NoError(t, err)

	// clock has not moved: the stamp still advances
	updated, err := f.svc.UpdateAccount(ctx, alice, acc.ID, settings("v2"), acc.LastModified)
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.UserConfig.String("name"))
	assert.True(t, updated.LastModified.After(acc.LastModified))
	assert.Equal(t, acc.LastModified.Add(time.Millisecond), updated.LastModified)

	f.now = f.now.Add(time.Hour)
	again, err := f.svc.UpdateAccount(ctx, alice, acc.ID, settings("v3"), updated.LastModified.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, f.now.Equal(again.LastModified))
	assert.Equal(t, []int{acc.ID, acc.ID}, f.feed.updated)

	_, err = f.svc.UpdateAccount(ctx, alice, 99, settings("x"), f.now)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}

func TestDeleteAccount(t *testing.T) {
	var (
		seenInTx bool
		listened []int
	)
	var db *database.Database
	listener := DeleteListenerFunc(func(ctx context.Context, a *entity.CalendarAccount) error {
		seenInTx = db.InTx(ctx)
		listened = append(listened, a.ID)
		return nil
	})
	f := newFixture(t, WithDeleteListener(listener))
	db = f.db
	ctx := context.Background()

	acc, err := f.svc.CreateAccount(ctx, alice, "feed", settings("x"))
	require.NoError(t, err)

	err = f.svc.DeleteAccount(ctx, alice, acc.ID, acc.LastModified.Add(-time.Millisecond))
	assert.True(t, errors.HasCode(err, errors.ErrConcurrentModification))
	assert.Equal(t, 1, f.count(t))

	require.NoError(t, f.svc.DeleteAccount(ctx, alice, acc.ID, acc.LastModified))
	assert.Equal(t, 0, f.count(t))
	assert.True(t, seenInTx)
	assert.Equal(t, []int{acc.ID}, listened)
	assert.Equal(t, []int{acc.ID}, f.feed.deleted)

	err = f.svc.DeleteAccount(ctx, alice, acc.ID, acc.LastModified)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}

func TestDeleteAccount_ListenerFailureRollsBack(t *testing.T) {
	f := newFixture(t, WithDeleteListener(DeleteListenerFunc(func(context.Context, *entity.CalendarAccount) error {
		return stderrors.New("trigger cleanup failed")
	})))
	ctx := context.Background()

	acc, err := f.svc.CreateAccount(ctx, alice, "feed", settings("x"))
	require.NoError(t, err)

	err = f.svc.DeleteAccount(ctx, alice, acc.ID, acc.LastModified)
	assert.True(t, errors.HasCode(err, errors.ErrStorage))
	assert.Equal(t, 1, f.count(t))
	assert.Empty(t, f.feed.deleted)
}

func TestDeleteAccount_AutoProvisionedIsNotDeletable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	accounts, err := f.svc.GetAccounts(ctx, alice)
	require.NoError(t, err)
	require.NotEmpty(t, accounts)

	err = f.svc.DeleteAccount(ctx, alice, accounts[0].ID, accounts[0].LastModified)
	assert.True(t, errors.HasCode(err, errors.ErrUnsupportedOperation))
}

func TestDeleteAccount_OrphanedProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orphan := &entity.CalendarAccount{ProviderID: "retired", ID: 5, ContextID: alice.ContextID, UserID: alice.UserID, LastModified: f.now}
	require.NoError(t, f.repo.Insert(ctx, orphan, 0))

	require.NoError(t, f.svc.DeleteAccount(ctx, alice, 5, f.now))
	assert.Equal(t, 0, f.count(t))
}

func TestGetAccounts_ProvisionsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAccount(ctx, alice, "feed", settings("x"))
	require.NoError(t, err)

	first, err := f.svc.GetAccounts(ctx, alice)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, 0, first[0].ID)
	assert.Equal(t, provider.ChronosProviderID, first[0].ProviderID)
	assert.Equal(t, 1, first[1].ID)
	assert.Equal(t, "feed", first[1].ProviderID)
	assert.Equal(t, 2, first[2].ID)
	assert.Equal(t, provider.BirthdaysProviderID, first[2].ProviderID)
	assert.Equal(t, []int{0}, f.chronos.created)
	assert.Equal(t, []int{2}, f.birthdays.created)

	second, err := f.svc.GetAccounts(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, second, 3)
	assert.Equal(t, 3, f.count(t))
	assert.Equal(t, 1, f.chronos.autoRun)
	assert.Equal(t, 1, f.birthdays.autoRun)
}

func TestGetAccounts_SkipsProvidersWithoutCapability(t *testing.T) {
	f := newFixture(t)
	f.denied[provider.BirthdaysProviderID] = true

	accounts, err := f.svc.GetAccounts(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, provider.ChronosProviderID, accounts[0].ProviderID)
}

func TestGetAccounts_ProvisioningFailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	f.birthdays.autoErr = stderrors.New("contacts unavailable")
	ctx := context.Background()

	_, err := f.svc.GetAccounts(ctx, alice)
	require.Error(t, err)
	assert.Equal(t, 0, f.count(t), "the chronos account must not survive the failed pass")

	f.birthdays.autoErr = nil
	accounts, err := f.svc.GetAccounts(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}
