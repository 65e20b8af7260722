package provider

import (
	"context"
	"net/url"
	"strings"

	"go-calendar-core/core/errors"
	"go-calendar-core/core/logger"
	"go-calendar-core/core/utils"
	"go-calendar-core/modules/calendar/dto"
	"go-calendar-core/modules/calendar/entity"

	"github.com/gosimple/slug"
)

const (
	ICalProviderID = "ical"

	icalFeedIDLength = 12
)

// ICalFeed subscribes to a remote iCalendar feed. The feed itself is
// fetched elsewhere; this provider only owns the account configuration.
type ICalFeed struct{}

func NewICalFeed() *ICalFeed {
	return &ICalFeed{}
}

func (p *ICalFeed) ID() string              { return ICalProviderID }
func (p *ICalFeed) DisplayName() string     { return "iCal subscription" }
func (p *ICalFeed) DefaultMaxAccounts() int { return 20 }

func (p *ICalFeed) InitializeAccount(_ context.Context, _ entity.Owner, settings dto.AccountSettings) (AccountConfig, error) {
	feedURL, err := parseFeedURI(settings.UserConfig)
	if err != nil {
		return AccountConfig{}, err
	}

	user := settings.UserConfig.Clone()
	if user.String("name") == "" {
		user["name"] = feedURL.Host
	}
	return AccountConfig{
		UserConfig:     user,
		InternalConfig: newFeedState(feedURL, user.String("name")),
	}, nil
}

// ReconfigureAccount keeps the feed state unless the uri changed, in which
// case the feed starts over under a new feed id.
func (p *ICalFeed) ReconfigureAccount(_ context.Context, account *entity.CalendarAccount, settings dto.AccountSettings) (AccountConfig, error) {
	feedURL, err := parseFeedURI(settings.UserConfig)
	if err != nil {
		return AccountConfig{}, err
	}

	user := settings.UserConfig.Clone()
	if user.String("name") == "" {
		user["name"] = feedURL.Host
	}

	if account.InternalConfig.String("uri") == feedURL.String() {
		return AccountConfig{UserConfig: user, InternalConfig: account.InternalConfig.Clone()}, nil
	}

	logger.Info("ICalProvider:ReconfigureAccount:FeedReset", "account_id", account.ID, "owner", account.Owner().String())
	return AccountConfig{UserConfig: user, InternalConfig: newFeedState(feedURL, user.String("name"))}, nil
}

func (p *ICalFeed) OnAccountCreated(_ context.Context, account *entity.CalendarAccount) error {
	logger.Info("ICalProvider:OnAccountCreated", "account_id", account.ID, "feed_id", account.InternalConfig.String("feed_id"))
	return nil
}

func (p *ICalFeed) OnAccountUpdated(context.Context, *entity.CalendarAccount) error { return nil }

func (p *ICalFeed) OnAccountDeleted(_ context.Context, account *entity.CalendarAccount) error {
	logger.Info("ICalProvider:OnAccountDeleted", "account_id", account.ID, "feed_id", account.InternalConfig.String("feed_id"))
	return nil
}

func newFeedState(feedURL *url.URL, name string) entity.JSONB {
	return entity.JSONB{
		"uri":     feedURL.String(),
		"feed_id": utils.GenerateID(icalFeedIDLength),
		"folder":  slug.Make(name),
		"etag":    "",
	}
}

func parseFeedURI(config entity.JSONB) (*url.URL, error) {
	raw := strings.TrimSpace(config.String("uri"))
	if raw == "" {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "uri is required", nil).
			WithDetail("provider", ICalProviderID)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "uri is not a valid url", err).
			WithDetail("provider", ICalProviderID)
	}

	switch strings.ToLower(u.Scheme) {
	case "webcal":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, errors.NewAppError(errors.ErrInvalidInput, "uri scheme must be http, https or webcal", nil).
			WithDetail("provider", ICalProviderID).
			WithDetail("scheme", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "uri has no host", nil).
			WithDetail("provider", ICalProviderID)
	}
	return u, nil
}
