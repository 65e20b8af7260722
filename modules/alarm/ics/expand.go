package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	"go-calendar-core/core/errors"
	"go-calendar-core/core/logger"
)

// maxScannedOccurrences bounds the occurrences walked before the window
// starts, e.g. a SECONDLY rule whose DTSTART lies years in the past.
const maxScannedOccurrences = 1_000_000

// expand returns the starts of v's occurrences inside the options window,
// EXDATEs removed and capped at MaxOccurrences.
func expand(v vevent, opts Options) ([]time.Time, error) {
	r, err := rrule.StrToRRule(v.rrule)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "invalid RRULE", err).WithDetail("rrule", v.rrule)
	}
	r.DTStart(v.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range v.exdates {
		set.ExDate(ex.In(v.start.Location()))
	}

	from := opts.From
	if from.IsZero() {
		from = v.start
	}
	until := from.Add(opts.Lookahead)

	limit := opts.MaxOccurrences
	if limit <= 0 {
		limit = defaultMaxOccurrences
	}

	loc := v.start.Location()
	from, until = from.In(loc), until.In(loc)

	var starts []time.Time
	next := set.Iterator()
	for scanned := 0; ; scanned++ {
		if scanned >= maxScannedOccurrences {
			logger.Warn("ICS:Expand:ScanLimit", "uid", v.uid, "scanned", scanned, "kept", len(starts))
			break
		}
		dt, ok := next()
		if !ok || dt.After(until) {
			break
		}
		if dt.Before(from) {
			continue
		}
		if len(starts) == limit {
			logger.Warn("ICS:Expand:Truncated", "uid", v.uid, "limit", limit)
			break
		}
		starts = append(starts, dt)
	}
	return starts, nil
}
