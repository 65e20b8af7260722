package calendar

import (
	"go-calendar-core/core/cache"
	"go-calendar-core/core/config"
	"go-calendar-core/core/database"
	"go-calendar-core/core/logger"
	"go-calendar-core/modules/calendar/capability"
	"go-calendar-core/modules/calendar/idmangling"
	"go-calendar-core/modules/calendar/provider"
	"go-calendar-core/modules/calendar/repository"
	"go-calendar-core/modules/calendar/service"
)

type Module struct {
	Accounts   service.AccountService
	Repository repository.AccountRepository
	Registry   provider.Registry
	Mangler    *idmangling.Mangler
}

// Init wires the account layers. Delete listeners run inside the account
// deletion transaction.
func Init(db *database.Database, c cache.Cache, cfg *config.Config, listeners ...service.DeleteListener) *Module {
	repo := repository.NewAccountRepository(db, c, cfg.Cache.AccountTTL)
	registry := provider.NewRegistry(cfg.MaxAccountsOverrides(), builtinProviders(cfg)...)
	checker := capability.NewStaticChecker(cfg.Capabilities.Granted, cfg.Capabilities.Denied)

	opts := make([]service.Option, 0, len(listeners))
	for _, l := range listeners {
		opts = append(opts, service.WithDeleteListener(l))
	}

	logger.Info("Calendar:Init", "providers", registry.IDs())
	return &Module{
		Accounts:   service.NewAccountService(db, repo, registry, checker, opts...),
		Repository: repo,
		Registry:   registry,
		Mangler:    idmangling.NewMangler(cfg.IDs.ReservedFolders, cfg.IDs.SharedPrefix),
	}
}

func builtinProviders(cfg *config.Config) []provider.Provider {
	all := []provider.Provider{
		provider.NewChronos(),
		provider.NewBirthdays(""),
		provider.NewICalFeed(),
		provider.NewGoogleCalendar(cfg.GoogleAPI.ClientID, cfg.GoogleAPI.ClientSecret, cfg.GoogleAPI.RedirectURI),
	}

	enabled := make([]provider.Provider, 0, len(all))
	for _, p := range all {
		if p.ID() != provider.ChronosProviderID && !cfg.ProviderEnabled(p.ID()) {
			logger.Info("Calendar:Init:ProviderDisabled", "provider", p.ID())
			continue
		}
		enabled = append(enabled, p)
	}
	return enabled
}
