package entity

import (
	"fmt"
	"time"
)

// Notification is one delivered alarm in a user's inbox.
type Notification struct {
	ID          string
	ContextID   int
	UserID      int
	EventID     string
	FolderID    string
	AlarmID     int
	Action      string
	TriggerTime time.Time
	IsRead      bool
	CreatedAt   time.Time
}

// Title is the short line shown for the notification.
func (n Notification) Title() string {
	switch n.Action {
	case "EMAIL":
		return fmt.Sprintf("Reminder mail for %s", n.TriggerTime.UTC().Format(time.RFC3339))
	case "AUDIO":
		return fmt.Sprintf("Audio reminder at %s", n.TriggerTime.UTC().Format(time.RFC3339))
	default:
		return fmt.Sprintf("Reminder at %s", n.TriggerTime.UTC().Format(time.RFC3339))
	}
}

type Page struct {
	Items  []Notification
	Total  int
	Unread int
	Limit  int
	Offset int
}
