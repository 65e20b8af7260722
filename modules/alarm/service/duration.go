package service

import (
	"math"
	"strconv"
	"time"

	"go-calendar-core/core/errors"
	"go-calendar-core/modules/alarm/entity"
)

// Duration is a parsed RFC 5545 dur-value. Weeks and days are nominal and
// follow the calendar of the zone they are applied in; Clock is exact.
type Duration struct {
	Negative bool
	Weeks    int
	Days     int
	Clock    time.Duration
}

// ApplyTo shifts t by d. Days move the wall clock in t's location so a
// "-P1D" trigger stays at the same local time across a DST change.
func (d Duration) ApplyTo(t time.Time) time.Time {
	sign := 1
	if d.Negative {
		sign = -1
	}
	days := d.Weeks*7 + d.Days
	if days != 0 {
		t = t.AddDate(0, 0, sign*days)
	}
	return t.Add(time.Duration(sign) * d.Clock)
}

// maxDurationDays caps the nominal part at the span time.Duration can hold
// (about 292 years).
const maxDurationDays = math.MaxInt64 / int64(24*time.Hour)

// ParseDuration parses values like "-PT15M", "P1D", "-P1W" or "PT1H30M".
func ParseDuration(s string) (Duration, error) {
	var d Duration
	bad := func(reason string) (Duration, error) {
		return Duration{}, errors.NewAppError(errors.ErrInvalidInput, "invalid trigger duration", errors.New(reason)).
			WithDetail("duration", s)
	}

	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		d.Negative = s[i] == '-'
		i++
	}
	if i >= len(s) || s[i] != 'P' {
		return bad("missing P designator")
	}
	i++

	inTime := false
	used := make(map[string]bool)
	for i < len(s) {
		if s[i] == 'T' {
			if inTime {
				return bad("repeated T designator")
			}
			inTime = true
			i++
			if i >= len(s) {
				return bad("empty time part")
			}
			continue
		}

		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if start == i || i >= len(s) {
			return bad("expected number followed by unit")
		}
		n, err := strconv.Atoi(s[start:i])
		if err != nil {
			return bad(err.Error())
		}
		unit := s[i]
		i++

		key := string(unit)
		if inTime {
			key = "T" + key
		}
		if used[key] {
			return bad("repeated unit")
		}
		used[key] = true

		switch {
		case !inTime && unit == 'W':
			d.Weeks = n
		case !inTime && unit == 'D':
			d.Days = n
		case inTime && unit == 'H':
			if !d.addClock(n, time.Hour) {
				return bad("duration out of range")
			}
		case inTime && unit == 'M':
			if !d.addClock(n, time.Minute) {
				return bad("duration out of range")
			}
		case inTime && unit == 'S':
			if !d.addClock(n, time.Second) {
				return bad("duration out of range")
			}
		default:
			return bad("unexpected unit " + string(unit))
		}
		if int64(d.Weeks) > maxDurationDays/7 || int64(d.Weeks)*7+int64(d.Days) > maxDurationDays {
			return bad("duration out of range")
		}
	}
	if len(used) == 0 {
		return bad("no components")
	}
	return d, nil
}

// addClock adds n units to the clock part, reporting false on overflow.
func (d *Duration) addClock(n int, unit time.Duration) bool {
	if int64(n) > math.MaxInt64/int64(unit) {
		return false
	}
	part := time.Duration(n) * unit
	if d.Clock > math.MaxInt64-part {
		return false
	}
	d.Clock += part
	return true
}

// ResolveTriggerTime computes when alarm fires for event, interpreting a
// floating event in loc. Relative triggers are applied to the event start,
// or its end when the trigger is related to the end and an end is known.
// The second value is the wall clock the duration was applied to; empty for
// absolute triggers.
func ResolveTriggerTime(spec entity.TriggerSpec, event entity.Event, loc *time.Location) (time.Time, string, error) {
	if spec.IsAbsolute() {
		if spec.DateTime.IsZero() {
			return time.Time{}, "", errors.NewAppError(errors.ErrInvalidInput, "trigger has neither duration nor date-time", nil)
		}
		return spec.DateTime.UTC(), "", nil
	}

	d, err := ParseDuration(spec.Duration)
	if err != nil {
		return time.Time{}, "", err
	}

	related := event.Start
	if spec.RelatedEnd && !event.End.IsZero() {
		related = event.End
	}

	var anchor time.Time
	if event.IsFloating() {
		anchor = wallClockIn(related, loc)
	} else {
		zone, err := time.LoadLocation(event.TimeZone)
		if err != nil {
			return time.Time{}, "", errors.NewAppError(errors.ErrInvalidInput, "unknown event time zone", err).
				WithDetail("time_zone", event.TimeZone)
		}
		anchor = related.In(zone)
	}

	return d.ApplyTo(anchor).UTC(), anchor.Format(entity.WallClockLayout), nil
}

// RecomputeFloating re-applies duration to the stored wall clock in loc.
func RecomputeFloating(relatedTime, duration string, loc *time.Location) (time.Time, error) {
	wall, err := time.ParseInLocation(entity.WallClockLayout, relatedTime, loc)
	if err != nil {
		return time.Time{}, errors.NewAppError(errors.ErrInvalidInput, "invalid stored related time", err).
			WithDetail("related_time", relatedTime)
	}
	d, err := ParseDuration(duration)
	if err != nil {
		return time.Time{}, err
	}
	return d.ApplyTo(wall).UTC(), nil
}

func wallClockIn(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}
