package idmangling

import (
	"encoding/base64"
	"strconv"
	"strings"

	"go-calendar-core/core/errors"
	"go-calendar-core/core/types"
)

const (
	folderMarker = "cal"
	// eventMarker pads the encoded payload to a predictable length. Only
	// its presence after the last separator matters when decoding.
	eventMarker = "evnt"
	// padding restores the base64 groups stripped on encoding.
	padding = "="
)

// DefaultReservedFolders are the well-known folder ids of the internal
// account: no parent, root, private, public and shared roots.
var DefaultReservedFolders = []string{"0", "1", "2", "3", "6"}

const DefaultSharedPrefix = "shared/"

// CompositeEventID addresses one event (or one occurrence of a recurring
// event) across all accounts of a user.
type CompositeEventID struct {
	AccountID    int
	FolderID     string
	EventID      string
	RecurrenceID types.Optional[string]
}

// Mangler converts between provider-relative folder ids and composite
// folder ids. Reserved ids of the default account pass through untouched.
type Mangler struct {
	reserved     map[string]struct{}
	sharedPrefix string
}

func NewMangler(reservedFolders []string, sharedPrefix string) *Mangler {
	reserved := make(map[string]struct{}, len(reservedFolders))
	for _, id := range reservedFolders {
		reserved[id] = struct{}{}
	}
	return &Mangler{reserved: reserved, sharedPrefix: sharedPrefix}
}

// IsReserved reports whether folderID is exposed as-is for the default
// account.
func (m *Mangler) IsReserved(folderID string) bool {
	if _, ok := m.reserved[folderID]; ok {
		return true
	}
	return m.sharedPrefix != "" && strings.HasPrefix(folderID, m.sharedPrefix)
}

func (m *Mangler) MangleFolder(accountID int, folderID string) string {
	if accountID == 0 && m.IsReserved(folderID) {
		return folderID
	}
	return JoinPath(folderMarker, strconv.Itoa(accountID), folderID)
}

// UnmangleFolder returns the account id and provider-relative folder id
// packed into a composite folder id.
func (m *Mangler) UnmangleFolder(compositeID string) (int, string, error) {
	if m.IsReserved(compositeID) {
		return 0, compositeID, nil
	}

	parts, err := SplitPath(compositeID)
	if err != nil {
		appErr := errors.NewUnsupportedFolderError(compositeID)
		appErr.Err = err
		return 0, "", appErr
	}
	if len(parts) != 3 || parts[0] != folderMarker {
		return 0, "", errors.NewUnsupportedFolderError(compositeID)
	}
	accountID, err := parseAccountID(parts[1])
	if err != nil {
		appErr := errors.NewUnsupportedFolderError(compositeID)
		appErr.Err = err
		return 0, "", appErr
	}
	return accountID, parts[2], nil
}

// MangleEvent encodes id into an opaque url-safe string.
func MangleEvent(id CompositeEventID) string {
	tokens := []string{strconv.Itoa(id.AccountID), id.FolderID, id.EventID}
	if rec, ok := id.RecurrenceID.Get(); ok {
		tokens = append(tokens, rec)
	}
	raw := JoinPath(tokens...) + string(separator) + eventMarker
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func UnmangleEvent(compositeID string) (CompositeEventID, error) {
	padded := compositeID
	if rem := len(padded) % 4; rem != 0 {
		padded += strings.Repeat(padding, 4-rem)
	}

	decoded, err := base64.URLEncoding.DecodeString(padded)
	if err != nil {
		return CompositeEventID{}, errors.NewFormatError(compositeID, err)
	}

	raw := string(decoded)
	idx := strings.LastIndexByte(raw, separator)
	if idx < 0 {
		return CompositeEventID{}, errors.NewFormatError(compositeID, errors.New("missing trailing marker"))
	}

	parts, err := SplitPath(raw[:idx])
	if err != nil {
		return CompositeEventID{}, errors.NewFormatError(compositeID, err)
	}
	if len(parts) < 3 || len(parts) > 4 {
		return CompositeEventID{}, errors.NewFormatError(compositeID, errors.New("unexpected number of components")).
			WithDetail("components", len(parts))
	}

	accountID, err := parseAccountID(parts[0])
	if err != nil {
		return CompositeEventID{}, errors.NewFormatError(compositeID, err)
	}

	id := CompositeEventID{
		AccountID: accountID,
		FolderID:  parts[1],
		EventID:   parts[2],
	}
	if len(parts) == 4 {
		id.RecurrenceID = types.Some(parts[3])
	}
	return id, nil
}

func parseAccountID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if id < 0 || strconv.Itoa(id) != s {
		return 0, errors.New("account id is not a canonical non-negative integer")
	}
	return id, nil
}
