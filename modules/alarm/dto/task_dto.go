package dto

import (
	"time"

	"go-calendar-core/core/errors"
)

// EventCreatedPayload carries the iCalendar data of a stored event.
type EventCreatedPayload struct {
	ContextID int    `json:"context_id"`
	UserID    int    `json:"user_id"`
	AccountID int    `json:"account_id"`
	FolderID  string `json:"folder_id"`
	ICS       string `json:"ics"`
}

func (p EventCreatedPayload) Validate() error {
	if p.ContextID <= 0 || p.UserID <= 0 {
		return errors.NewAppError(errors.ErrInvalidInput, "context_id and user_id are required", nil)
	}
	if p.AccountID < 0 {
		return errors.NewAppError(errors.ErrInvalidInput, "account_id must not be negative", nil).
			WithDetail("account_id", p.AccountID)
	}
	if p.FolderID == "" || p.ICS == "" {
		return errors.NewAppError(errors.ErrInvalidInput, "folder_id and ics are required", nil)
	}
	return nil
}

// TimeZoneChangedPayload reports a user's new time zone (IANA name).
type TimeZoneChangedPayload struct {
	ContextID int    `json:"context_id"`
	UserID    int    `json:"user_id"`
	TimeZone  string `json:"time_zone"`
}

func (p TimeZoneChangedPayload) Validate() error {
	if p.ContextID <= 0 || p.UserID <= 0 {
		return errors.NewAppError(errors.ErrInvalidInput, "context_id and user_id are required", nil)
	}
	if p.TimeZone == "" {
		return errors.NewAppError(errors.ErrInvalidInput, "time_zone is required", nil)
	}
	return nil
}

// DeliverPayload is handed to whatever delivers a fired alarm. Ids are the
// composite handles callers see.
type DeliverPayload struct {
	ContextID   int       `json:"context_id"`
	UserID      int       `json:"user_id"`
	EventID     string    `json:"event_id"`
	FolderID    string    `json:"folder_id"`
	AlarmID     int       `json:"alarm_id"`
	Action      string    `json:"action"`
	TriggerTime time.Time `json:"trigger_time"`
}
