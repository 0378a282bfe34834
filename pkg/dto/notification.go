package dto

import "encoding/json"

type NotificationResponse struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Level     string          `json:"level"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt string          `json:"created_at"`
}

type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	Total         int                    `json:"total"`
}

// WSMessage is pushed to WebSocket subscribers.
type WSMessage struct {
	Type string               `json:"type"` // "notification"
	Data NotificationResponse `json:"data"`
}
