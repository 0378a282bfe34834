package models

import (
	"encoding/json"
	"time"
)

type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
	LevelSuccess NotificationLevel = "success"
)

func (l NotificationLevel) Valid() bool {
	switch l {
	case LevelInfo, LevelWarning, LevelError, LevelSuccess:
		return true
	}
	return false
}

// Notification is an operator-facing alert. Only Read changes after creation.
type Notification struct {
	ID        int64             `json:"id" db:"id"`
	Title     string            `json:"title" db:"title"`
	Message   string            `json:"message" db:"message"`
	Level     NotificationLevel `json:"level" db:"level"`
	Payload   json.RawMessage   `json:"payload,omitempty" db:"payload"`
	Read      bool              `json:"read" db:"read"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}
