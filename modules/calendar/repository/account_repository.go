package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"go-calendar-core/core/cache"
	"go-calendar-core/core/constants"
	"go-calendar-core/core/database"
	"go-calendar-core/core/errors"
	"go-calendar-core/core/logger"
	"go-calendar-core/modules/calendar/entity"
)

type AccountRepository interface {
	Load(ctx context.Context, owner entity.Owner, id int) (*entity.CalendarAccount, error)
	LoadByProvider(ctx context.Context, owner entity.Owner, providerID string) ([]entity.CalendarAccount, error)
	// LoadAll returns the owner's accounts ordered by id. Outside a
	// transaction the result may come from the cache.
	LoadAll(ctx context.Context, owner entity.Owner) ([]entity.CalendarAccount, error)
	// Insert stores a new account unless the owner already holds
	// maxAccounts accounts of the same provider. maxAccounts <= 0 disables
	// the check.
	Insert(ctx context.Context, account *entity.CalendarAccount, maxAccounts int) error
	// Update stores account if the stored copy was not modified after
	// clientTimestamp.
	Update(ctx context.Context, account *entity.CalendarAccount, clientTimestamp time.Time) error
	Delete(ctx context.Context, owner entity.Owner, id int, clientTimestamp time.Time) error
	// NextID allocates the next free account id. Never returns the default
	// account id.
	NextID(ctx context.Context, owner entity.Owner) (int, error)
	Invalidate(ctx context.Context, owner entity.Owner) error
}

type accountRow struct {
	ContextID      int          `db:"cid"`
	ID             int          `db:"id"`
	UserID         int          `db:"user_id"`
	ProviderID     string       `db:"provider"`
	Modified       int64        `db:"modified"`
	InternalConfig entity.JSONB `db:"internal_config"`
	UserConfig     entity.JSONB `db:"user_config"`
}

func (r accountRow) toEntity() entity.CalendarAccount {
	return entity.CalendarAccount{
		ProviderID:     r.ProviderID,
		ID:             r.ID,
		ContextID:      r.ContextID,
		UserID:         r.UserID,
		InternalConfig: r.InternalConfig,
		UserConfig:     r.UserConfig,
		LastModified:   time.UnixMilli(r.Modified).UTC(),
	}
}

func rowFromEntity(a *entity.CalendarAccount) accountRow {
	return accountRow{
		ContextID:      a.ContextID,
		ID:             a.ID,
		UserID:         a.UserID,
		ProviderID:     a.ProviderID,
		Modified:       a.LastModified.UnixMilli(),
		InternalConfig: a.InternalConfig,
		UserConfig:     a.UserConfig,
	}
}

const accountColumns = `cid, id, user_id, provider, modified, internal_config, user_config`

type accountRepository struct {
	db    *database.Database
	cache cache.Cache
	ttl   time.Duration
}

// NewAccountRepository returns a repository over db. A nil cache disables
// caching of account lists.
func NewAccountRepository(db *database.Database, c cache.Cache, ttl time.Duration) AccountRepository {
	return &accountRepository{db: db, cache: c, ttl: ttl}
}

func (r *accountRepository) Load(ctx context.Context, owner entity.Owner, id int) (*entity.CalendarAccount, error) {
	query := r.db.Rebind(`SELECT ` + accountColumns + ` FROM calendar_accounts WHERE cid = ? AND user_id = ? AND id = ?`)

	var row accountRow
	if err := r.db.GetContext(ctx, &row, query, owner.ContextID, owner.UserID, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("account", id)
		}
		logger.Error("AccountRepository:Load:Error", "error", err, "owner", owner.String(), "account_id", id)
		return nil, errors.WrapStorage("load account", err)
	}
	account := row.toEntity()
	return &account, nil
}

func (r *accountRepository) LoadByProvider(ctx context.Context, owner entity.Owner, providerID string) ([]entity.CalendarAccount, error) {
	query := r.db.Rebind(`SELECT ` + accountColumns + ` FROM calendar_accounts
		WHERE cid = ? AND user_id = ? AND provider = ? ORDER BY id`)

	var rows []accountRow
	if err := r.db.SelectContext(ctx, &rows, query, owner.ContextID, owner.UserID, providerID); err != nil {
		logger.Error("AccountRepository:LoadByProvider:Error", "error", err, "owner", owner.String(), "provider", providerID)
		return nil, errors.WrapStorage("load accounts by provider", err)
	}
	return toEntities(rows), nil
}

func (r *accountRepository) LoadAll(ctx context.Context, owner entity.Owner) ([]entity.CalendarAccount, error) {
	useCache := r.cache != nil && !r.db.InTx(ctx)
	if useCache {
		if accounts, ok := r.fromCache(ctx, owner); ok {
			return accounts, nil
		}
	}

	query := r.db.Rebind(`SELECT ` + accountColumns + ` FROM calendar_accounts
		WHERE cid = ? AND user_id = ? ORDER BY id`)

	var rows []accountRow
	if err := r.db.SelectContext(ctx, &rows, query, owner.ContextID, owner.UserID); err != nil {
		logger.Error("AccountRepository:LoadAll:Error", "error", err, "owner", owner.String())
		return nil, errors.WrapStorage("load accounts", err)
	}
	accounts := toEntities(rows)

	if useCache {
		r.toCache(ctx, owner, rows)
	}
	return accounts, nil
}

func (r *accountRepository) Insert(ctx context.Context, account *entity.CalendarAccount, maxAccounts int) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		if maxAccounts > 0 {
			var count int
			countQuery := r.db.Rebind(`SELECT COUNT(*) FROM calendar_accounts WHERE cid = ? AND user_id = ? AND provider = ?`)
			if err := r.db.GetContext(ctx, &count, countQuery, account.ContextID, account.UserID, account.ProviderID); err != nil {
				logger.Error("AccountRepository:Insert:Count:Error", "error", err, "owner", account.Owner().String())
				return errors.WrapStorage("count accounts", err)
			}
			if count >= maxAccounts {
				return errors.NewMaxAccountsExceededError(account.ProviderID, maxAccounts).
					WithDetail("existing", count)
			}
		}

		row := rowFromEntity(account)
		query := r.db.Rebind(`INSERT INTO calendar_accounts (` + accountColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if _, err := r.db.ExecContext(ctx, query,
			row.ContextID, row.ID, row.UserID, row.ProviderID, row.Modified, row.InternalConfig, row.UserConfig,
		); err != nil {
			logger.Error("AccountRepository:Insert:Error", "error", err, "owner", account.Owner().String(), "account_id", account.ID)
			return errors.WrapStorage("insert account", err)
		}
		return nil
	})
}

func (r *accountRepository) Update(ctx context.Context, account *entity.CalendarAccount, clientTimestamp time.Time) error {
	row := rowFromEntity(account)
	query := r.db.Rebind(`UPDATE calendar_accounts
		SET internal_config = ?, user_config = ?, modified = ?
		WHERE cid = ? AND user_id = ? AND id = ? AND modified <= ?`)

	res, err := r.db.ExecContext(ctx, query,
		row.InternalConfig, row.UserConfig, row.Modified,
		row.ContextID, row.UserID, row.ID, clientTimestamp.UnixMilli(),
	)
	if err != nil {
		logger.Error("AccountRepository:Update:Error", "error", err, "owner", account.Owner().String(), "account_id", account.ID)
		return errors.WrapStorage("update account", err)
	}
	return r.checkAffected(ctx, res, account.Owner(), account.ID, clientTimestamp)
}

func (r *accountRepository) Delete(ctx context.Context, owner entity.Owner, id int, clientTimestamp time.Time) error {
	query := r.db.Rebind(`DELETE FROM calendar_accounts WHERE cid = ? AND user_id = ? AND id = ? AND modified <= ?`)

	res, err := r.db.ExecContext(ctx, query, owner.ContextID, owner.UserID, id, clientTimestamp.UnixMilli())
	if err != nil {
		logger.Error("AccountRepository:Delete:Error", "error", err, "owner", owner.String(), "account_id", id)
		return errors.WrapStorage("delete account", err)
	}
	return r.checkAffected(ctx, res, owner, id, clientTimestamp)
}

// checkAffected turns a guarded write that matched no row into NOT_FOUND or
// CONCURRENT_MODIFICATION.
func (r *accountRepository) checkAffected(ctx context.Context, res sql.Result, owner entity.Owner, id int, clientTimestamp time.Time) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapStorage("rows affected", err)
	}
	if n > 0 {
		return nil
	}
	current, err := r.Load(ctx, owner, id)
	if err != nil {
		return err
	}
	return errors.NewConcurrentModificationError(id, current.LastModified, clientTimestamp)
}

func (r *accountRepository) NextID(ctx context.Context, owner entity.Owner) (int, error) {
	query := r.db.Rebind(`SELECT COALESCE(MAX(id), 0) FROM calendar_accounts WHERE cid = ? AND user_id = ?`)

	var maxID int
	if err := r.db.GetContext(ctx, &maxID, query, owner.ContextID, owner.UserID); err != nil {
		logger.Error("AccountRepository:NextID:Error", "error", err, "owner", owner.String())
		return 0, errors.WrapStorage("allocate account id", err)
	}
	return maxID + 1, nil
}

func (r *accountRepository) Invalidate(ctx context.Context, owner entity.Owner) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.Del(ctx, cacheKey(owner)); err != nil {
		logger.Warn("AccountRepository:Invalidate:Error", "error", err, "owner", owner.String())
		return err
	}
	return nil
}

// cachedAccount mirrors accountRow; CalendarAccount hides the internal
// config from JSON and cannot be cached as-is.
type cachedAccount struct {
	ContextID      int          `json:"cid"`
	ID             int          `json:"id"`
	UserID         int          `json:"user_id"`
	ProviderID     string       `json:"provider"`
	Modified       int64        `json:"modified"`
	InternalConfig entity.JSONB `json:"internal_config"`
	UserConfig     entity.JSONB `json:"user_config"`
}

func cacheKey(owner entity.Owner) string {
	return fmt.Sprintf("%s:%d:%d", constants.CacheKeyAccountsPrefix, owner.ContextID, owner.UserID)
}

func (r *accountRepository) fromCache(ctx context.Context, owner entity.Owner) ([]entity.CalendarAccount, bool) {
	data, err := r.cache.Get(ctx, cacheKey(owner))
	if err != nil {
		if !stderrors.Is(err, cache.ErrCacheMiss) {
			logger.Warn("AccountRepository:Cache:Get:Error", "error", err, "owner", owner.String())
		}
		return nil, false
	}

	var cached []cachedAccount
	if err := json.Unmarshal(data, &cached); err != nil {
		logger.Warn("AccountRepository:Cache:Decode:Error", "error", err, "owner", owner.String())
		return nil, false
	}
	rows := make([]accountRow, len(cached))
	for i, c := range cached {
		rows[i] = accountRow(c)
	}
	return toEntities(rows), true
}

func (r *accountRepository) toCache(ctx context.Context, owner entity.Owner, rows []accountRow) {
	cached := make([]cachedAccount, len(rows))
	for i, row := range rows {
		cached[i] = cachedAccount(row)
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(owner), data, r.ttl); err != nil {
		logger.Warn("AccountRepository:Cache:Set:Error", "error", err, "owner", owner.String())
	}
}

func toEntities(rows []accountRow) []entity.CalendarAccount {
	accounts := make([]entity.CalendarAccount, len(rows))
	for i, row := range rows {
		accounts[i] = row.toEntity()
	}
	return accounts
}
