package service

import (
	"testing"
	"time"
	_ "time/tzdata"

	"go-calendar-core/core/errors"
	"go-calendar-core/modules/alarm/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want Duration
	}{
		{"-PT15M", Duration{Negative: true, Clock: 15 * time.Minute}},
		{"PT0S", Duration{}},
		{"+PT1H30M", Duration{Clock: 90 * time.Minute}},
		{"P1D", Duration{Days: 1}},
		{"-P1W", Duration{Negative: true, Weeks: 1}},
		{"P2DT3H4M5S", Duration{Days: 2, Clock: 3*time.Hour + 4*time.Minute + 5*time.Second}},
		{"PT2562047H", Duration{Clock: 2562047 * time.Hour}},
		{"P106751D", Duration{Days: 106751}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDuration_Invalid(t *testing.T) {
	for _, in := range []string{"", "-", "15M", "P", "PT", "P1DT", "PT15", "P1H", "PT1D", "PT1M2M", "P1DT1HT1M", "P-1D", "PXD",
		"-PT3000000H", "PT9223372036854775807S", "PT2562047H60M", "P106752D", "P15251W", "P15250W10D"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDuration(in)
			assert.True(t, errors.HasCode(err, errors.ErrInvalidInput), "input %q", in)
		})
	}
}

func TestResolveTriggerTime_ZonedEvent(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	event := entity.Event{
		Start:    time.Date(2024, 1, 10, 9, 0, 0, 0, berlin),
		TimeZone: "Europe/Berlin",
	}
	got, related, err := ResolveTriggerTime(entity.TriggerSpec{Duration: "-PT15M"}, event, time.UTC)
	require.NoError(t, err)

	assert.True(t, got.Equal(time.Date(2024, 1, 10, 8, 45, 0, 0, berlin)), "got %s", got)
	assert.Equal(t, "2024-01-10T09:00:00", related)
}

func TestResolveTriggerTime_DayAcrossDST(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// DST starts 2024-03-31 in Berlin.
	event := entity.Event{
		Start:    time.Date(2024, 4, 1, 9, 0, 0, 0, berlin),
		TimeZone: "Europe/Berlin",
	}
	got, _, err := ResolveTriggerTime(entity.TriggerSpec{Duration: "-P2D"}, event, nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 30, 9, 0, 0, 0, berlin)), "got %s", got.In(berlin))
}

func TestResolveTriggerTime_FloatingEvent(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	event := entity.Event{Start: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}

	got, related, err := ResolveTriggerTime(entity.TriggerSpec{Duration: "-PT10M"}, event, time.UTC)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 10, 8, 50, 0, 0, time.UTC)))
	assert.Equal(t, "2024-01-10T09:00:00", related)

	got, _, err = ResolveTriggerTime(entity.TriggerSpec{Duration: "-PT10M"}, event, ny)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 10, 8, 50, 0, 0, ny)))
}

func TestResolveTriggerTime_RelatedEnd(t *testing.T) {
	event := entity.Event{
		Start:    time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC),
		TimeZone: "UTC",
	}
	got, related, err := ResolveTriggerTime(entity.TriggerSpec{Duration: "PT5M", RelatedEnd: true}, event, nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 10, 10, 5, 0, 0, time.UTC)))
	assert.Equal(t, "2024-01-10T10:00:00", related)

	event.End = time.Time{}
	got, _, err = ResolveTriggerTime(entity.TriggerSpec{Duration: "PT5M", RelatedEnd: true}, event, nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 10, 9, 5, 0, 0, time.UTC)))
}

func TestResolveTriggerTime_Absolute(t *testing.T) {
	at := time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC)
	got, related, err := ResolveTriggerTime(entity.TriggerSpec{DateTime: at}, entity.Event{}, nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(at))
	assert.Empty(t, related)

	_, _, err = ResolveTriggerTime(entity.TriggerSpec{}, entity.Event{}, nil)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInput))
}

func TestResolveTriggerTime_UnknownZone(t *testing.T) {
	event := entity.Event{Start: time.Now(), TimeZone: "Mars/Olympus"}
	_, _, err := ResolveTriggerTime(entity.TriggerSpec{Duration: "-PT5M"}, event, nil)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInput))
}

func TestRecomputeFloating(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	got, err := RecomputeFloating("2024-01-10T09:00:00", "-PT15M", tokyo)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 10, 8, 45, 0, 0, tokyo)))
	assert.Equal(t, time.UTC, got.Location())

	_, err = RecomputeFloating("garbage", "-PT15M", tokyo)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInput))
}
