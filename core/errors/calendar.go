package errors

import (
	"fmt"
	"time"
)

func NewNotFoundError(kind string, id any) *AppError {
	return NewAppError(ErrNotFound, fmt.Sprintf("%s not found", kind), nil).
		WithDetail("kind", kind).
		WithDetail("id", id)
}

func NewMissingCapabilityError(providerID string, contextID, userID int) *AppError {
	return NewAppError(ErrMissingCapability, "capability for provider is not granted", nil).
		WithDetail("provider", providerID).
		WithDetail("context_id", contextID).
		WithDetail("user_id", userID)
}

func NewUnsupportedOperationError(operation, providerID string) *AppError {
	return NewAppError(ErrUnsupportedOperation, fmt.Sprintf("%s is not supported", operation), nil).
		WithDetail("operation", operation).
		WithDetail("provider", providerID)
}

// NewConcurrentModificationError reports that the client's view of an
// account is older than the stored one.
func NewConcurrentModificationError(accountID int, lastModified, clientTimestamp time.Time) *AppError {
	return NewAppError(ErrConcurrentModification, "account was modified concurrently", nil).
		WithDetail("account_id", accountID).
		WithDetail("last_modified", lastModified.UTC().Format(time.RFC3339Nano)).
		WithDetail("client_timestamp", clientTimestamp.UTC().Format(time.RFC3339Nano))
}

func NewMaxAccountsExceededError(providerID string, limit int) *AppError {
	return NewAppError(ErrMaxAccountsExceeded, "maximum number of accounts reached", nil).
		WithDetail("provider", providerID).
		WithDetail("limit", limit)
}

func NewFormatError(value string, cause error) *AppError {
	return NewAppError(ErrInvalidFormat, "malformed identifier", cause).
		WithDetail("value", value)
}

func NewUnsupportedFolderError(folderID string) *AppError {
	return NewAppError(ErrUnsupportedFolder, "folder identifier is not supported", nil).
		WithDetail("folder_id", folderID)
}

// WrapStorage passes AppErrors through and wraps anything else as a storage
// failure for the named operation.
func WrapStorage(operation string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return NewAppError(ErrStorage, "storage operation failed", err).
		WithDetail("operation", operation)
}
