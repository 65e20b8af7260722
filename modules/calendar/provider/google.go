package provider

import (
	"context"
	"encoding/json"
	"strings"

	"go-calendar-core/core/errors"
	"go-calendar-core/core/logger"
	"go-calendar-core/modules/calendar/dto"
	"go-calendar-core/modules/calendar/entity"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	GoogleProviderID = "google"

	googleRefreshTokenKey = "refresh_token"
	googleTokenKey        = "oauth_token"
)

// GoogleCalendar holds OAuth-authorized Google accounts. The refresh token
// arrives in the user settings once and is kept in the internal config only.
type GoogleCalendar struct {
	oauthConfig *oauth2.Config
}

func NewGoogleCalendar(clientID, clientSecret, redirectURI string) *GoogleCalendar {
	return &GoogleCalendar{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"https://www.googleapis.com/auth/calendar.readonly"},
			Endpoint:     google.Endpoint,
		},
	}
}

func (p *GoogleCalendar) ID() string              { return GoogleProviderID }
func (p *GoogleCalendar) DisplayName() string     { return "Google Calendar" }
func (p *GoogleCalendar) DefaultMaxAccounts() int { return 5 }

func (p *GoogleCalendar) InitializeAccount(_ context.Context, _ entity.Owner, settings dto.AccountSettings) (AccountConfig, error) {
	user, token, ok := extractRefreshToken(settings.UserConfig)
	if !ok {
		return AccountConfig{}, errors.NewAppError(errors.ErrInvalidInput, "refresh_token is required", nil).
			WithDetail("provider", GoogleProviderID)
	}
	internal, err := tokenConfig(token)
	if err != nil {
		return AccountConfig{}, err
	}
	return AccountConfig{UserConfig: user, InternalConfig: internal}, nil
}

// ReconfigureAccount replaces the stored token only when a new refresh
// token is submitted.
func (p *GoogleCalendar) ReconfigureAccount(_ context.Context, account *entity.CalendarAccount, settings dto.AccountSettings) (AccountConfig, error) {
	user, token, ok := extractRefreshToken(settings.UserConfig)
	if !ok {
		return AccountConfig{UserConfig: user, InternalConfig: account.InternalConfig.Clone()}, nil
	}
	internal, err := tokenConfig(token)
	if err != nil {
		return AccountConfig{}, err
	}
	return AccountConfig{UserConfig: user, InternalConfig: internal}, nil
}

func (p *GoogleCalendar) OnAccountCreated(_ context.Context, account *entity.CalendarAccount) error {
	logger.Info("GoogleProvider:OnAccountCreated", "account_id", account.ID, "email", account.UserConfig.String("email"))
	return nil
}

func (p *GoogleCalendar) OnAccountUpdated(context.Context, *entity.CalendarAccount) error { return nil }

func (p *GoogleCalendar) OnAccountDeleted(_ context.Context, account *entity.CalendarAccount) error {
	logger.Info("GoogleProvider:OnAccountDeleted", "account_id", account.ID)
	return nil
}

// Token returns the OAuth token stored for account.
func (p *GoogleCalendar) Token(account *entity.CalendarAccount) (*oauth2.Token, error) {
	raw, ok := account.InternalConfig[googleTokenKey]
	if !ok {
		return nil, errors.NewAppError(errors.ErrNotFound, "account has no oauth token", nil).
			WithDetail("account_id", account.ID)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to encode oauth token", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(b, &token); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to decode oauth token", err)
	}
	return &token, nil
}

// TokenSource returns a refreshing token source for account, for use by
// the component that talks to the Google API.
func (p *GoogleCalendar) TokenSource(ctx context.Context, account *entity.CalendarAccount) (oauth2.TokenSource, error) {
	token, err := p.Token(account)
	if err != nil {
		return nil, err
	}
	return p.oauthConfig.TokenSource(ctx, token), nil
}

func extractRefreshToken(config entity.JSONB) (entity.JSONB, string, bool) {
	user := config.Clone()
	token := strings.TrimSpace(user.String(googleRefreshTokenKey))
	delete(user, googleRefreshTokenKey)
	return user, token, token != ""
}

func tokenConfig(refreshToken string) (entity.JSONB, error) {
	token := &oauth2.Token{RefreshToken: refreshToken, TokenType: "Bearer"}
	b, err := json.Marshal(token)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to encode oauth token", err)
	}
	var stored map[string]any
	if err := json.Unmarshal(b, &stored); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to encode oauth token", err)
	}
	return entity.JSONB{googleTokenKey: stored}, nil
}
