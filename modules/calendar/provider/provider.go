package provider

import (
	"context"
	"sort"

	"go-calendar-core/modules/calendar/dto"
	"go-calendar-core/modules/calendar/entity"
)

// AccountConfig is the pair of config blobs a provider prepares for an
// account. UserConfig may differ from the submitted settings when the
// provider moves secrets into InternalConfig.
type AccountConfig struct {
	UserConfig     entity.JSONB
	InternalConfig entity.JSONB
}

// Provider is the behavior of one kind of calendar source.
type Provider interface {
	ID() string
	DisplayName() string
	// DefaultMaxAccounts is the per-user account limit when no override is
	// configured. Zero or negative means unlimited.
	DefaultMaxAccounts() int

	// InitializeAccount validates settings for a new account and prepares
	// its configs.
	InitializeAccount(ctx context.Context, owner entity.Owner, settings dto.AccountSettings) (AccountConfig, error)
	// ReconfigureAccount reconciles the stored account with new settings.
	ReconfigureAccount(ctx context.Context, account *entity.CalendarAccount, settings dto.AccountSettings) (AccountConfig, error)

	OnAccountCreated(ctx context.Context, account *entity.CalendarAccount) error
	OnAccountUpdated(ctx context.Context, account *entity.CalendarAccount) error
	OnAccountDeleted(ctx context.Context, account *entity.CalendarAccount) error
}

// AutoProvisioningProvider creates its single account on first listing.
// Such accounts can neither be created nor deleted by the user.
type AutoProvisioningProvider interface {
	Provider
	AutoConfigureAccount(ctx context.Context, owner entity.Owner) (AccountConfig, error)
}

func IsAutoProvisioning(p Provider) bool {
	_, ok := p.(AutoProvisioningProvider)
	return ok
}

// Registry resolves provider ids to providers.
type Registry interface {
	Resolve(providerID string) (Provider, bool)
	// AutoProvisioning lists auto-provisioning providers in registration
	// order.
	AutoProvisioning() []AutoProvisioningProvider
	// MaxAccounts returns the effective per-user limit for a provider.
	MaxAccounts(providerID string) int
	IDs() []string
}

type registry struct {
	providers map[string]Provider
	order     []string
	overrides map[string]int
}

// NewRegistry builds a registry. overrides maps provider ids to account
// limits that replace the provider defaults.
func NewRegistry(overrides map[string]int, providers ...Provider) Registry {
	r := &registry{
		providers: make(map[string]Provider, len(providers)),
		overrides: make(map[string]int, len(overrides)),
	}
	for id, max := range overrides {
		r.overrides[id] = max
	}
	for _, p := range providers {
		if _, dup := r.providers[p.ID()]; dup {
			continue
		}
		r.providers[p.ID()] = p
		r.order = append(r.order, p.ID())
	}
	return r
}

func (r *registry) Resolve(providerID string) (Provider, bool) {
	p, ok := r.providers[providerID]
	return p, ok
}

func (r *registry) AutoProvisioning() []AutoProvisioningProvider {
	var out []AutoProvisioningProvider
	for _, id := range r.order {
		if ap, ok := r.providers[id].(AutoProvisioningProvider); ok {
			out = append(out, ap)
		}
	}
	return out
}

func (r *registry) MaxAccounts(providerID string) int {
	if max, ok := r.overrides[providerID]; ok {
		return max
	}
	if p, ok := r.providers[providerID]; ok {
		return p.DefaultMaxAccounts()
	}
	return 0
}

func (r *registry) IDs() []string {
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}
