package capability

import (
	"context"
	"strconv"

	"go-calendar-core/modules/calendar/entity"
)

// Checker decides whether an owner may use a provider.
type Checker interface {
	HasCapability(ctx context.Context, owner entity.Owner, providerID string) (bool, error)
}

// staticChecker grants a configured set of providers to every user, minus
// per-user denials.
type staticChecker struct {
	granted map[string]struct{}
	denied  map[string]map[string]struct{}
}

// NewStaticChecker builds a checker from a granted provider list and
// denials keyed by "contextID:userID".
func NewStaticChecker(granted []string, denied map[string][]string) Checker {
	c := &staticChecker{
		granted: make(map[string]struct{}, len(granted)),
		denied:  make(map[string]map[string]struct{}, len(denied)),
	}
	for _, id := range granted {
		c.granted[id] = struct{}{}
	}
	for owner, ids := range denied {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		c.denied[owner] = set
	}
	return c
}

func (c *staticChecker) HasCapability(_ context.Context, owner entity.Owner, providerID string) (bool, error) {
	if _, ok := c.granted[providerID]; !ok {
		return false, nil
	}
	if set, ok := c.denied[ownerKey(owner)]; ok {
		if _, deny := set[providerID]; deny {
			return false, nil
		}
	}
	return true, nil
}

func ownerKey(owner entity.Owner) string {
	return strconv.Itoa(owner.ContextID) + ":" + strconv.Itoa(owner.UserID)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, owner entity.Owner, providerID string) (bool, error)

func (f CheckerFunc) HasCapability(ctx context.Context, owner entity.Owner, providerID string) (bool, error) {
	return f(ctx, owner, providerID)
}
