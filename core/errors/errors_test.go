package errors

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewMaxAccountsExceededError("ical", 20)
	assert.Equal(t, "MAX_ACCOUNTS_EXCEEDED: maximum number of accounts reached [limit=20 provider=ical]", err.Error())

	wrapped := NewAppError(ErrStorage, "insert failed", sql.ErrConnDone)
	assert.Contains(t, wrapped.Error(), sql.ErrConnDone.Error())
	assert.ErrorIs(t, wrapped, sql.ErrConnDone)
}

func TestHasCode_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("update: %w", NewNotFoundError("account", 4))
	assert.True(t, HasCode(err, ErrNotFound))
	assert.False(t, HasCode(err, ErrStorage))
	assert.Equal(t, ErrNotFound, CodeOf(err))
	assert.Equal(t, ErrInternalServer, CodeOf(New("plain")))
	assert.True(t, Is(err, &AppError{Code: ErrNotFound}))
}

func TestIsRetryable(t *testing.T) {
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	conflict := NewConcurrentModificationError(3, now, now.Add(-time.Second))

	assert.True(t, IsRetryable(conflict))
	assert.False(t, IsRetryable(NewMissingCapabilityError("google", 1, 2)))
	assert.False(t, IsRetryable(nil))

	require.NotNil(t, conflict.Details)
	assert.Equal(t, 3, conflict.Details["account_id"])
	assert.Equal(t, "2024-01-10T09:00:00Z", conflict.Details["last_modified"])
	assert.Equal(t, "2024-01-10T08:59:59Z", conflict.Details["client_timestamp"])
}

func TestWrapStorage(t *testing.T) {
	assert.NoError(t, WrapStorage("load", nil))

	notFound := NewNotFoundError("account", 1)
	assert.Same(t, notFound, WrapStorage("load", notFound))

	err := WrapStorage("load", sql.ErrTxDone)
	assert.True(t, HasCode(err, ErrStorage))
	assert.ErrorIs(t, err, sql.ErrTxDone)
}
