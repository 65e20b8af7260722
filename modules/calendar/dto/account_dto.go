package dto

import "go-calendar-core/modules/calendar/entity"

// AccountSettings is the user-editable part of an account.
type AccountSettings struct {
	UserConfig entity.JSONB `json:"user_config"`
}

// AccountResponse is the user-facing view of an account. Internal config is
// never exposed.
type AccountResponse struct {
	ID           int          `json:"id"`
	Provider     string       `json:"provider"`
	UserConfig   entity.JSONB `json:"user_config"`
	LastModified int64        `json:"last_modified"`
}

func ToAccountResponse(account *entity.CalendarAccount) AccountResponse {
	return AccountResponse{
		ID:           account.ID,
		Provider:     account.ProviderID,
		UserConfig:   account.UserConfig,
		LastModified: account.LastModified.UnixMilli(),
	}
}
