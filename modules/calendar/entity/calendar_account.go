package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultAccountID is reserved for the built-in groupware calendar and is
// never handed out by id allocation.
const DefaultAccountID = 0

// Owner scopes accounts and alarm triggers to one user of one context.
type Owner struct {
	ContextID int `db:"cid" json:"context_id"`
	UserID    int `db:"user_id" json:"user_id"`
}

func (o Owner) String() string {
	return fmt.Sprintf("%d:%d", o.ContextID, o.UserID)
}

// CalendarAccount is one calendar source of a user.
type CalendarAccount struct {
	ProviderID     string    `db:"provider" json:"provider"`
	ID             int       `db:"id" json:"id"`
	ContextID      int       `db:"cid" json:"context_id"`
	UserID         int       `db:"user_id" json:"user_id"`
	InternalConfig JSONB     `db:"internal_config" json:"-"`
	UserConfig     JSONB     `db:"user_config" json:"user_config"`
	LastModified   time.Time `db:"-" json:"last_modified"`
}

func (a *CalendarAccount) Owner() Owner {
	return Owner{ContextID: a.ContextID, UserID: a.UserID}
}

func (a *CalendarAccount) IsDefault() bool {
	return a.ID == DefaultAccountID
}

// TableName returns the table name
func (CalendarAccount) TableName() string {
	return "calendar_accounts"
}

// JSONB is a provider-defined config blob stored as JSON text.
type JSONB map[string]any

// Value stores the blob as a string so drivers do not send it as bytea.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value any) error {
	if value == nil {
		*j = JSONB{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("JSONB: unsupported scan type %T", value)
	}
	out := JSONB{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &out); err != nil {
			return err
		}
	}
	*j = out
	return nil
}

// Clone returns a deep copy obtained through a JSON round trip.
func (j JSONB) Clone() JSONB {
	if j == nil {
		return JSONB{}
	}
	b, err := json.Marshal(j)
	if err != nil {
		return JSONB{}
	}
	out := JSONB{}
	_ = json.Unmarshal(b, &out)
	return out
}

// String returns the value stored under key, or "".
func (j JSONB) String(key string) string {
	if v, ok := j[key].(string); ok {
		return v
	}
	return ""
}
