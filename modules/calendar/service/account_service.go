package service

import (
	"context"
	"sort"
	"time"

	"go-calendar-core/core/database"
	"go-calendar-core/core/errors"
	"go-calendar-core/core/logger"
	"go-calendar-core/modules/calendar/capability"
	"go-calendar-core/modules/calendar/dto"
	"go-calendar-core/modules/calendar/entity"
	"go-calendar-core/modules/calendar/provider"
	"go-calendar-core/modules/calendar/repository"
)

type AccountService interface {
	CreateAccount(ctx context.Context, owner entity.Owner, providerID string, settings dto.AccountSettings) (*entity.CalendarAccount, error)
	UpdateAccount(ctx context.Context, owner entity.Owner, accountID int, settings dto.AccountSettings, clientTimestamp time.Time) (*entity.CalendarAccount, error)
	DeleteAccount(ctx context.Context, owner entity.Owner, accountID int, clientTimestamp time.Time) error
	GetAccount(ctx context.Context, owner entity.Owner, accountID int) (*entity.CalendarAccount, error)
	// GetAccounts lists the owner's accounts sorted by id, provisioning
	// missing accounts of auto-provisioning providers first.
	GetAccounts(ctx context.Context, owner entity.Owner) ([]entity.CalendarAccount, error)
}

// DeleteListener is notified inside the transaction that deletes an
// account. Returning an error aborts the deletion.
type DeleteListener interface {
	OnAccountDeleted(ctx context.Context, account *entity.CalendarAccount) error
}

type DeleteListenerFunc func(ctx context.Context, account *entity.CalendarAccount) error

func (f DeleteListenerFunc) OnAccountDeleted(ctx context.Context, account *entity.CalendarAccount) error {
	return f(ctx, account)
}

type Option func(*accountService)

func WithClock(now func() time.Time) Option {
	return func(s *accountService) { s.now = now }
}

func WithDeleteListener(l DeleteListener) Option {
	return func(s *accountService) { s.listeners = append(s.listeners, l) }
}

// WithDefaultProvider names the provider whose account takes the reserved
// default account id.
func WithDefaultProvider(providerID string) Option {
	return func(s *accountService) { s.defaultProvider = providerID }
}

type accountService struct {
	tx              database.Transactor
	repo            repository.AccountRepository
	registry        provider.Registry
	checker         capability.Checker
	listeners       []DeleteListener
	defaultProvider string
	now             func() time.Time
}

func NewAccountService(
	tx database.Transactor,
	repo repository.AccountRepository,
	registry provider.Registry,
	checker capability.Checker,
	opts ...Option,
) AccountService {
	s := &accountService{
		tx:              tx,
		repo:            repo,
		registry:        registry,
		checker:         checker,
		defaultProvider: provider.ChronosProviderID,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *accountService) CreateAccount(ctx context.Context, owner entity.Owner, providerID string, settings dto.AccountSettings) (*entity.CalendarAccount, error) {
	p, ok := s.registry.Resolve(providerID)
	if !ok {
		return nil, errors.NewNotFoundError("provider", providerID)
	}
	if err := s.requireCapability(ctx, owner, providerID); err != nil {
		return nil, err
	}
	if provider.IsAutoProvisioning(p) {
		return nil, errors.NewUnsupportedOperationError("create account", providerID)
	}

	cfg, err := p.InitializeAccount(ctx, owner, settings)
	if err != nil {
		logger.Warn("AccountService:CreateAccount:InitializeAccount:Error", "error", err, "owner", owner.String(), "provider", providerID)
		return nil, err
	}

	var accountID int
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		id, err := s.repo.NextID(ctx, owner)
		if err != nil {
			return err
		}
		accountID = id

		account := &entity.CalendarAccount{
			ProviderID:     providerID,
			ID:             id,
			ContextID:      owner.ContextID,
			UserID:         owner.UserID,
			InternalConfig: cfg.InternalConfig,
			UserConfig:     cfg.UserConfig,
			LastModified:   s.timestamp(),
		}
		return s.repo.Insert(ctx, account, s.registry.MaxAccounts(providerID))
	})
	if err != nil {
		logger.Error("AccountService:CreateAccount:Error", "error", err, "owner", owner.String(), "provider", providerID)
		return nil, errors.WrapStorage("create account", err)
	}
	s.invalidate(ctx, owner)

	created, err := s.repo.Load(ctx, owner, accountID)
	if err != nil {
		return nil, err
	}
	if err := p.OnAccountCreated(ctx, created); err != nil {
		logger.Error("AccountService:CreateAccount:OnAccountCreated:Error", "error", err, "owner", owner.String(), "account_id", accountID)
	}

	logger.Info("AccountService:CreateAccount:Success", "owner", owner.String(), "provider", providerID, "account_id", accountID)
	return created, nil
}

func (s *accountService) UpdateAccount(ctx context.Context, owner entity.Owner, accountID int, settings dto.AccountSettings, clientTimestamp time.Time) (*entity.CalendarAccount, error) {
	current, err := s.repo.Load(ctx, owner, accountID)
	if err != nil {
		return nil, err
	}
	if err := checkStale(current, clientTimestamp); err != nil {
		return nil, err
	}

	p, ok := s.registry.Resolve(current.ProviderID)
	if !ok {
		return nil, errors.NewNotFoundError("provider", current.ProviderID)
	}
	cfg, err := p.ReconfigureAccount(ctx, current, settings)
	if err != nil {
		logger.Warn("AccountService:UpdateAccount:ReconfigureAccount:Error", "error", err, "owner", owner.String(), "account_id", accountID)
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		latest, err := s.repo.Load(ctx, owner, accountID)
		if err != nil {
			return err
		}
		if err := checkStale(latest, clientTimestamp); err != nil {
			return err
		}

		updated := *latest
		updated.InternalConfig = cfg.InternalConfig
		updated.UserConfig = cfg.UserConfig
		updated.LastModified = s.nextModified(latest.LastModified)
		return s.repo.Update(ctx, &updated, clientTimestamp)
	})
	if err != nil {
		logger.Warn("AccountService:UpdateAccount:Error", "error", err, "owner", owner.String(), "account_id", accountID)
		return nil, errors.WrapStorage("update account", err)
	}
	s.invalidate(ctx, owner)

	updated, err := s.repo.Load(ctx, owner, accountID)
	if err != nil {
		return nil, err
	}
	if err := p.OnAccountUpdated(ctx, updated); err != nil {
		logger.Error("AccountService:UpdateAccount:OnAccountUpdated:Error", "error", err, "owner", owner.String(), "account_id", accountID)
	}
	return updated, nil
}

func (s *accountService) DeleteAccount(ctx context.Context, owner entity.Owner, accountID int, clientTimestamp time.Time) error {
	current, err := s.repo.Load(ctx, owner, accountID)
	if err != nil {
		return err
	}
	if err := checkStale(current, clientTimestamp); err != nil {
		return err
	}

	p, known := s.registry.Resolve(current.ProviderID)
	if known && provider.IsAutoProvisioning(p) {
		return errors.NewUnsupportedOperationError("delete account", current.ProviderID).
			WithDetail("account_id", accountID)
	}
	if !known {
		logger.Warn("AccountService:DeleteAccount:OrphanedAccount", "owner", owner.String(), "account_id", accountID, "provider", current.ProviderID)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Delete(ctx, owner, accountID, clientTimestamp); err != nil {
			return err
		}
		for _, l := range s.listeners {
			if err := l.OnAccountDeleted(ctx, current); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Warn("AccountService:DeleteAccount:Error", "error", err, "owner", owner.String(), "account_id", accountID)
		return errors.WrapStorage("delete account", err)
	}
	s.invalidate(ctx, owner)

	if known {
		if err := p.OnAccountDeleted(ctx, current); err != nil {
			logger.Error("AccountService:DeleteAccount:OnAccountDeleted:Error", "error", err, "owner", owner.String(), "account_id", accountID)
		}
	}
	logger.Info("AccountService:DeleteAccount:Success", "owner", owner.String(), "account_id", accountID)
	return nil
}

func (s *accountService) GetAccount(ctx context.Context, owner entity.Owner, accountID int) (*entity.CalendarAccount, error) {
	return s.repo.Load(ctx, owner, accountID)
}

func (s *accountService) GetAccounts(ctx context.Context, owner entity.Owner) ([]entity.CalendarAccount, error) {
	accounts, err := s.repo.LoadAll(ctx, owner)
	if err != nil {
		return nil, err
	}

	pending, err := s.pendingProvisioning(ctx, owner, accounts)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		sortByID(accounts)
		return accounts, nil
	}

	var created []int
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		created = created[:0]
		for _, p := range pending {
			id, ok, err := s.provision(ctx, owner, p)
			if err != nil {
				return err
			}
			if ok {
				created = append(created, id)
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("AccountService:GetAccounts:Provision:Error", "error", err, "owner", owner.String())
		return nil, errors.WrapStorage("provision accounts", err)
	}
	s.invalidate(ctx, owner)

	accounts, err = s.repo.LoadAll(ctx, owner)
	if err != nil {
		return nil, err
	}
	sortByID(accounts)

	for i := range accounts {
		if !containsID(created, accounts[i].ID) {
			continue
		}
		p, ok := s.registry.Resolve(accounts[i].ProviderID)
		if !ok {
			continue
		}
		if err := p.OnAccountCreated(ctx, &accounts[i]); err != nil {
			logger.Error("AccountService:GetAccounts:OnAccountCreated:Error", "error", err, "owner", owner.String(), "account_id", accounts[i].ID)
		}
	}
	if len(created) > 0 {
		logger.Info("AccountService:GetAccounts:Provisioned", "owner", owner.String(), "account_ids", created)
	}
	return accounts, nil
}

// pendingProvisioning returns the auto-provisioning providers the owner may
// use but holds no account for.
func (s *accountService) pendingProvisioning(ctx context.Context, owner entity.Owner, accounts []entity.CalendarAccount) ([]provider.AutoProvisioningProvider, error) {
	existing := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		existing[a.ProviderID] = struct{}{}
	}

	var pending []provider.AutoProvisioningProvider
	for _, p := range s.registry.AutoProvisioning() {
		if _, ok := existing[p.ID()]; ok {
			continue
		}
		has, err := s.checker.HasCapability(ctx, owner, p.ID())
		if err != nil {
			return nil, errors.NewAppError(errors.ErrInternalServer, "capability check failed", err).
				WithDetail("provider", p.ID())
		}
		if has {
			pending = append(pending, p)
		}
	}
	return pending, nil
}

// provision creates the account for p unless one appeared since the
// account list was read.
func (s *accountService) provision(ctx context.Context, owner entity.Owner, p provider.AutoProvisioningProvider) (int, bool, error) {
	existing, err := s.repo.LoadByProvider(ctx, owner, p.ID())
	if err != nil {
		return 0, false, err
	}
	if len(existing) > 0 {
		return 0, false, nil
	}

	cfg, err := p.AutoConfigureAccount(ctx, owner)
	if err != nil {
		logger.Error("AccountService:Provision:AutoConfigureAccount:Error", "error", err, "owner", owner.String(), "provider", p.ID())
		return 0, false, err
	}

	id := entity.DefaultAccountID
	if p.ID() != s.defaultProvider {
		if id, err = s.repo.NextID(ctx, owner); err != nil {
			return 0, false, err
		}
	}

	account := &entity.CalendarAccount{
		ProviderID:     p.ID(),
		ID:             id,
		ContextID:      owner.ContextID,
		UserID:         owner.UserID,
		InternalConfig: cfg.InternalConfig,
		UserConfig:     cfg.UserConfig,
		LastModified:   s.timestamp(),
	}
	if err := s.repo.Insert(ctx, account, s.registry.MaxAccounts(p.ID())); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *accountService) requireCapability(ctx context.Context, owner entity.Owner, providerID string) error {
	has, err := s.checker.HasCapability(ctx, owner, providerID)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "capability check failed", err).
			WithDetail("provider", providerID)
	}
	if !has {
		return errors.NewMissingCapabilityError(providerID, owner.ContextID, owner.UserID)
	}
	return nil
}

func (s *accountService) invalidate(ctx context.Context, owner entity.Owner) {
	if err := s.repo.Invalidate(ctx, owner); err != nil {
		logger.Warn("AccountService:Invalidate:Error", "error", err, "owner", owner.String())
	}
}

// timestamp is the current time at storage precision.
func (s *accountService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// nextModified moves the modification stamp strictly forward even when the
// clock has not advanced past the previous stamp.
func (s *accountService) nextModified(previous time.Time) time.Time {
	now := s.timestamp()
	if now.After(previous) {
		return now
	}
	return previous.Add(time.Millisecond)
}

func checkStale(current *entity.CalendarAccount, clientTimestamp time.Time) error {
	if current.LastModified.UnixMilli() > clientTimestamp.UnixMilli() {
		return errors.NewConcurrentModificationError(current.ID, current.LastModified, clientTimestamp)
	}
	return nil
}

func sortByID(accounts []entity.CalendarAccount) {
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
}

func containsID(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
