package dto

import (
	"encoding/json"
	"testing"
	"time"

	"go-calendar-core/modules/calendar/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAccountResponse_HidesInternalConfig(t *testing.T) {
	account := &entity.CalendarAccount{
		ProviderID:     "google",
		ID:             3,
		InternalConfig: entity.JSONB{"refresh_token": "secret"},
		UserConfig:     entity.JSONB{"name": "Work"},
		LastModified:   time.UnixMilli(1700000000000),
	}

	resp := ToAccountResponse(account)
	assert.Equal(t, 3, resp.ID)
	assert.Equal(t, "google", resp.Provider)
	assert.Equal(t, int64(1700000000000), resp.LastModified)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), "Work")
}
