package provider

import (
	"context"

	"go-calendar-core/core/errors"
	"go-calendar-core/modules/calendar/dto"
	"go-calendar-core/modules/calendar/entity"

	"github.com/gosimple/slug"
)

const BirthdaysProviderID = "birthdays"

// Birthdays exposes the contacts' birthdays as a read-only calendar.
type Birthdays struct {
	name string
}

func NewBirthdays(name string) *Birthdays {
	if name == "" {
		name = "Birthdays"
	}
	return &Birthdays{name: name}
}

func (p *Birthdays) ID() string              { return BirthdaysProviderID }
func (p *Birthdays) DisplayName() string     { return p.name }
func (p *Birthdays) DefaultMaxAccounts() int { return 1 }

func (p *Birthdays) AutoConfigureAccount(context.Context, entity.Owner) (AccountConfig, error) {
	return AccountConfig{
		UserConfig: entity.JSONB{"name": p.name},
		InternalConfig: entity.JSONB{
			"folder":    slug.Make(p.name),
			"read_only": true,
		},
	}, nil
}

func (p *Birthdays) InitializeAccount(context.Context, entity.Owner, dto.AccountSettings) (AccountConfig, error) {
	return AccountConfig{}, errors.NewUnsupportedOperationError("create account", p.ID())
}

// ReconfigureAccount accepts a new display name and alarm defaults; the
// folder id stays stable.
func (p *Birthdays) ReconfigureAccount(_ context.Context, account *entity.CalendarAccount, settings dto.AccountSettings) (AccountConfig, error) {
	return AccountConfig{
		UserConfig:     settings.UserConfig.Clone(),
		InternalConfig: account.InternalConfig.Clone(),
	}, nil
}

func (p *Birthdays) OnAccountCreated(context.Context, *entity.CalendarAccount) error { return nil }
func (p *Birthdays) OnAccountUpdated(context.Context, *entity.CalendarAccount) error { return nil }
func (p *Birthdays) OnAccountDeleted(context.Context, *entity.CalendarAccount) error { return nil }
