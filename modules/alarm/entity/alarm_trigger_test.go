package entity

import (
	"testing"

	"go-calendar-core/core/errors"
	"go-calendar-core/core/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlarmTrigger_Key(t *testing.T) {
	trigger := AlarmTrigger{
		ContextID: types.Some(1),
		UserID:    types.Some(2),
		AccountID: types.Some(0),
		EventID:   types.Some("ev"),
		AlarmID:   types.Some(3),
	}

	key, err := trigger.Key()
	require.NoError(t, err)
	assert.Equal(t, TriggerKey{ContextID: 1, UserID: 2, AccountID: 0, EventID: "ev", AlarmID: 3}, key)

	trigger.Recurrence = types.Some("20240110T090000Z")
	key, err = trigger.Key()
	require.NoError(t, err)
	assert.Equal(t, "20240110T090000Z", key.Recurrence)
	assert.Equal(t, "1:2:0:ev:3:20240110T090000Z", key.String())

	trigger.AccountID = types.None[int]()
	_, err = trigger.Key()
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInput))
}

func TestAlarmTrigger_IsFloating(t *testing.T) {
	assert.False(t, AlarmTrigger{}.IsFloating())
	assert.False(t, AlarmTrigger{FloatingTimeZone: types.Some("")}.IsFloating())
	assert.True(t, AlarmTrigger{FloatingTimeZone: types.Some("UTC")}.IsFloating())
}

func TestTriggerSpec_IsAbsolute(t *testing.T) {
	assert.True(t, TriggerSpec{}.IsAbsolute())
	assert.False(t, TriggerSpec{Duration: "-PT15M"}.IsAbsolute())
}
