package provider

import (
	"context"

	"go-calendar-core/core/errors"
	"go-calendar-core/core/logger"
	"go-calendar-core/modules/calendar/dto"
	"go-calendar-core/modules/calendar/entity"
)

const ChronosProviderID = "chronos"

// Chronos is the internal groupware calendar. Every user gets exactly one
// chronos account, always under the default account id.
type Chronos struct{}

func NewChronos() *Chronos {
	return &Chronos{}
}

func (p *Chronos) ID() string              { return ChronosProviderID }
func (p *Chronos) DisplayName() string     { return "Calendar" }
func (p *Chronos) DefaultMaxAccounts() int { return 1 }

func (p *Chronos) AutoConfigureAccount(_ context.Context, owner entity.Owner) (AccountConfig, error) {
	return AccountConfig{
		UserConfig: entity.JSONB{"name": p.DisplayName()},
		InternalConfig: entity.JSONB{
			"context_id": owner.ContextID,
			"user_id":    owner.UserID,
		},
	}, nil
}

func (p *Chronos) InitializeAccount(context.Context, entity.Owner, dto.AccountSettings) (AccountConfig, error) {
	return AccountConfig{}, errors.NewUnsupportedOperationError("create account", p.ID())
}

func (p *Chronos) ReconfigureAccount(_ context.Context, account *entity.CalendarAccount, settings dto.AccountSettings) (AccountConfig, error) {
	return AccountConfig{
		UserConfig:     settings.UserConfig.Clone(),
		InternalConfig: account.InternalConfig.Clone(),
	}, nil
}

func (p *Chronos) OnAccountCreated(_ context.Context, account *entity.CalendarAccount) error {
	logger.Info("ChronosProvider:OnAccountCreated", "owner", account.Owner().String(), "account_id", account.ID)
	return nil
}

func (p *Chronos) OnAccountUpdated(context.Context, *entity.CalendarAccount) error { return nil }

func (p *Chronos) OnAccountDeleted(context.Context, *entity.CalendarAccount) error { return nil }
