package ics

import (
	"bytes"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"go-calendar-core/core/errors"
	"go-calendar-core/core/logger"
	"go-calendar-core/core/types"
	"go-calendar-core/modules/alarm/entity"
)

const (
	layoutUTC   = "20060102T150405Z"
	layoutLocal = "20060102T150405"
	layoutDate  = "20060102"

	defaultMaxOccurrences = 500
)

// Options bounds recurrence materialization.
type Options struct {
	// From is the start of the window; occurrences before it are skipped.
	From time.Time
	// Lookahead is the length of the window after From.
	Lookahead time.Duration
	// MaxOccurrences caps the occurrences taken from one series.
	MaxOccurrences int
}

// Target names the account and folder the parsed events belong to.
type Target struct {
	AccountID int
	FolderID  string
}

// vevent is one VEVENT reduced to what alarm scheduling needs.
type vevent struct {
	uid      string
	start    time.Time
	end      time.Time
	timeZone string
	allDay   bool
	rrule    string
	exdates  []time.Time
	// recurrenceID is set on overrides of a single occurrence.
	recurrenceID string
	alarms       []entity.Alarm
}

// ParseEvents reads an iCalendar object and returns one Event per alarm
// bearing occurrence. Recurring series are expanded inside the options
// window; an override VEVENT replaces the occurrence it names. VEVENTs that
// cannot be read are logged and skipped.
func ParseEvents(data []byte, target Target, opts Options) ([]entity.Event, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "empty iCalendar data", nil)
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "invalid iCalendar data", err)
	}

	var (
		bases     []vevent
		overrides = make(map[string]map[string]vevent)
	)
	for _, ve := range cal.Events() {
		ev, err := readEvent(ve)
		if err != nil {
			logger.Warn("ICS:ParseEvents:SkipEvent", "error", err, "account_id", target.AccountID, "folder_id", target.FolderID)
			continue
		}
		if ev.recurrenceID != "" {
			if overrides[ev.uid] == nil {
				overrides[ev.uid] = make(map[string]vevent)
			}
			overrides[ev.uid][ev.recurrenceID] = ev
			continue
		}
		bases = append(bases, ev)
	}

	var events []entity.Event
	for _, base := range bases {
		own := overrides[base.uid]
		delete(overrides, base.uid)

		if base.rrule == "" {
			events = appendIfAlarmed(events, toEvent(base, target, types.None[string]()))
			continue
		}

		occurrences, err := expand(base, opts)
		if err != nil {
			logger.Warn("ICS:ParseEvents:Expand:Error", "error", err, "uid", base.uid)
			continue
		}
		for _, start := range occurrences {
			rid := recurrenceID(start, base.timeZone, base.allDay)
			if ov, ok := own[rid]; ok {
				events = appendIfAlarmed(events, toEvent(ov, target, types.Some(rid)))
				continue
			}
			occ := base
			occ.start = start
			if !base.end.IsZero() {
				occ.end = start.Add(base.end.Sub(base.start))
			}
			events = appendIfAlarmed(events, toEvent(occ, target, types.Some(rid)))
		}
	}

	// Overrides whose series is not part of this object still carry alarms.
	for _, byRID := range overrides {
		for rid, ov := range byRID {
			events = appendIfAlarmed(events, toEvent(ov, target, types.Some(rid)))
		}
	}
	return events, nil
}

func appendIfAlarmed(events []entity.Event, ev entity.Event) []entity.Event {
	if len(ev.Alarms) == 0 {
		return events
	}
	return append(events, ev)
}

func toEvent(v vevent, target Target, rid types.Optional[string]) entity.Event {
	return entity.Event{
		AccountID:    target.AccountID,
		FolderID:     target.FolderID,
		ID:           v.uid,
		RecurrenceID: rid,
		Start:        v.start,
		End:          v.end,
		TimeZone:     v.timeZone,
		Alarms:       v.alarms,
	}
}

func readEvent(ve *ical.VEvent) (vevent, error) {
	var out vevent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || strings.TrimSpace(uid.Value) == "" {
		return out, errors.NewAppError(errors.ErrInvalidInput, "VEVENT without UID", nil)
	}
	out.uid = strings.TrimSpace(uid.Value)

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return out, errors.NewAppError(errors.ErrInvalidInput, "VEVENT without DTSTART", nil).WithDetail("uid", out.uid)
	}
	start, tz, allDay, err := parseTime(&dtstart.BaseProperty, dtstart.Value)
	if err != nil {
		return out, err
	}
	out.start, out.timeZone, out.allDay = start, tz, allDay

	if dtend := ve.GetProperty(ical.ComponentPropertyDtEnd); dtend != nil {
		if end, _, _, err := parseTime(&dtend.BaseProperty, dtend.Value); err == nil {
			out.end = end
		}
	}

	if rr := ve.GetProperty(ical.ComponentPropertyRrule); rr != nil {
		out.rrule = rr.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, _, _, err := parseTime(&p.BaseProperty, strings.TrimSpace(part)); err == nil {
				out.exdates = append(out.exdates, t)
			}
		}
	}

	if rid := ve.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		t, ridTZ, ridAllDay, err := parseTime(&rid.BaseProperty, rid.Value)
		if err != nil {
			return out, err
		}
		out.recurrenceID = recurrenceID(t, ridTZ, ridAllDay)
	}

	for i, va := range ve.Alarms() {
		alarm, err := readAlarm(va, i+1)
		if err != nil {
			logger.Warn("ICS:ReadEvent:SkipAlarm", "error", err, "uid", out.uid, "alarm", i+1)
			continue
		}
		out.alarms = append(out.alarms, alarm)
	}
	return out, nil
}

// readAlarm reads one VALARM. Alarms are numbered by their position in the
// VEVENT since iCalendar gives them no id.
func readAlarm(va *ical.VAlarm, id int) (entity.Alarm, error) {
	alarm := entity.Alarm{ID: id, Action: entity.ActionDisplay}
	if action := va.GetProperty(ical.ComponentPropertyAction); action != nil && action.Value != "" {
		alarm.Action = strings.ToUpper(strings.TrimSpace(action.Value))
	}

	trigger := va.GetProperty(ical.ComponentPropertyTrigger)
	if trigger == nil || strings.TrimSpace(trigger.Value) == "" {
		return alarm, errors.NewAppError(errors.ErrInvalidInput, "VALARM without TRIGGER", nil)
	}
	value := strings.TrimSpace(trigger.Value)

	if strings.EqualFold(param(&trigger.BaseProperty, "VALUE"), "DATE-TIME") {
		at, err := time.Parse(layoutUTC, value)
		if err != nil {
			return alarm, errors.NewAppError(errors.ErrInvalidInput, "absolute TRIGGER must be UTC", err).WithDetail("trigger", value)
		}
		alarm.Trigger = entity.TriggerSpec{DateTime: at}
		return alarm, nil
	}

	alarm.Trigger = entity.TriggerSpec{
		Duration:   value,
		RelatedEnd: strings.EqualFold(param(&trigger.BaseProperty, string(ical.ParameterRelated)), "END"),
	}
	return alarm, nil
}

// parseTime reads a DATE or DATE-TIME value. The returned zone is "" for
// floating values; those keep their wall clock in UTC.
func parseTime(prop *ical.BaseProperty, value string) (time.Time, string, bool, error) {
	bad := func(err error) (time.Time, string, bool, error) {
		return time.Time{}, "", false, errors.NewAppError(errors.ErrInvalidInput, "invalid date-time", err).
			WithDetail("property", prop.IANAToken).WithDetail("value", value)
	}

	if strings.EqualFold(param(prop, "VALUE"), "DATE") || len(value) == len(layoutDate) {
		t, err := time.ParseInLocation(layoutDate, value, time.UTC)
		if err != nil {
			return bad(err)
		}
		return t, "", true, nil
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse(layoutUTC, value)
		if err != nil {
			return bad(err)
		}
		return t, time.UTC.String(), false, nil
	}

	if tzid := param(prop, "TZID"); tzid != "" {
		loc, err := time.LoadLocation(tzid)
		if err != nil {
			return bad(err)
		}
		t, err := time.ParseInLocation(layoutLocal, value, loc)
		if err != nil {
			return bad(err)
		}
		return t, tzid, false, nil
	}

	t, err := time.ParseInLocation(layoutLocal, value, time.UTC)
	if err != nil {
		return bad(err)
	}
	return t, "", false, nil
}

func param(prop *ical.BaseProperty, name string) string {
	if vs := prop.ICalParameters[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// recurrenceID formats an occurrence start the way it is stored on
// triggers: UTC for zoned series, the bare wall clock for floating ones.
func recurrenceID(start time.Time, timeZone string, allDay bool) string {
	switch {
	case allDay:
		return start.Format(layoutDate)
	case timeZone == "":
		return start.Format(layoutLocal)
	default:
		return start.UTC().Format(layoutUTC)
	}
}
