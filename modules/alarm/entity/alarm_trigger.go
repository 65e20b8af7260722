package entity

import (
	"fmt"
	"time"

	"go-calendar-core/core/errors"
	"go-calendar-core/core/types"
)

const (
	ActionDisplay = "DISPLAY"
	ActionAudio   = "AUDIO"
	ActionEmail   = "EMAIL"
)

// WallClockLayout stores the start a relative trigger was computed from,
// without zone.
const WallClockLayout = "2006-01-02T15:04:05"

// TriggerSpec is either an absolute instant or a signed RFC 5545 duration
// relative to the event start (or end, when RelatedEnd is set).
type TriggerSpec struct {
	Duration   string    `json:"duration,omitempty"` // e.g. "-PT15M"
	DateTime   time.Time `json:"date_time,omitempty"`
	RelatedEnd bool      `json:"related_end,omitempty"`
}

func (s TriggerSpec) IsAbsolute() bool {
	return s.Duration == ""
}

// Alarm is one VALARM of an event.
type Alarm struct {
	ID      int         `json:"id"`
	Action  string      `json:"action"`
	Trigger TriggerSpec `json:"trigger"`
}

// Event is the scheduler's view of an event occurrence. For floating events
// (empty TimeZone) only the wall clock of Start and End is meaningful.
type Event struct {
	AccountID    int                    `json:"account_id"`
	FolderID     string                 `json:"folder_id"`
	ID           string                 `json:"id"`
	RecurrenceID types.Optional[string] `json:"recurrence_id"`
	Start        time.Time              `json:"start"`
	End          time.Time              `json:"end"`
	TimeZone     string                 `json:"time_zone"`
	Alarms       []Alarm                `json:"alarms"`
}

func (e Event) IsFloating() bool {
	return e.TimeZone == ""
}

// AlarmTrigger is one scheduled firing of an alarm. Every field carries its
// own presence bit, so a value doubles as a partial update.
type AlarmTrigger struct {
	ContextID   types.Optional[int]
	UserID      types.Optional[int]
	AccountID   types.Optional[int]
	AlarmID     types.Optional[int]
	EventID     types.Optional[string]
	FolderID    types.Optional[string]
	Action      types.Optional[string]
	Recurrence  types.Optional[string]
	TriggerTime types.Optional[time.Time]
	Processed   types.Optional[bool]

	// RelatedTime is the wall clock the relative duration was applied to.
	RelatedTime types.Optional[string]
	// Duration is the relative trigger; unset for absolute triggers.
	Duration types.Optional[string]
	// FloatingTimeZone is the zone the trigger of a floating event was
	// last computed in; unset for events with their own zone.
	FloatingTimeZone types.Optional[string]
}

// TriggerKey identifies a trigger row.
type TriggerKey struct {
	ContextID  int
	UserID     int
	AccountID  int
	EventID    string
	AlarmID    int
	Recurrence string
}

func (k TriggerKey) String() string {
	return fmt.Sprintf("%d:%d:%d:%s:%d:%s", k.ContextID, k.UserID, k.AccountID, k.EventID, k.AlarmID, k.Recurrence)
}

// Key returns the identity of t. An unset recurrence is the empty string.
func (t AlarmTrigger) Key() (TriggerKey, error) {
	cid, ok1 := t.ContextID.Get()
	uid, ok2 := t.UserID.Get()
	acc, ok3 := t.AccountID.Get()
	evt, ok4 := t.EventID.Get()
	alarm, ok5 := t.AlarmID.Get()
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return TriggerKey{}, errors.NewAppError(errors.ErrInvalidInput, "alarm trigger identity is incomplete", nil)
	}
	return TriggerKey{
		ContextID:  cid,
		UserID:     uid,
		AccountID:  acc,
		EventID:    evt,
		AlarmID:    alarm,
		Recurrence: t.Recurrence.OrElse(""),
	}, nil
}

// IsFloating reports whether t follows the user's time zone.
func (t AlarmTrigger) IsFloating() bool {
	tz, ok := t.FloatingTimeZone.Get()
	return ok && tz != ""
}
