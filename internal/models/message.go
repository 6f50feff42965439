package models

import "time"

// MessageType identifies the notification category of an outbound message
type MessageType string

const (
	MessageGameStart        MessageType = "game_start"
	MessageAssignment       MessageType = "assignment"
	MessageWishlistUpdate   MessageType = "wishlist_update"
	MessageWishlistReminder MessageType = "wishlist_reminder"
	MessageShoppingReminder MessageType = "shopping_reminder"
	MessageExchangeDay      MessageType = "exchange_day"
	MessageTest             MessageType = "test"
)

// DefaultPriority is used when a caller does not pick one. Lower drains first.
const DefaultPriority = 5

// QueueEntry is one buffered outbound message.
type QueueEntry struct {
	ID            int64       `json:"id"`
	ParticipantID int64       `json:"participant_id"`
	PhoneNumber   string      `json:"phone_number"`
	Type          MessageType `json:"message_type"`
	Body          string      `json:"message_body"`
	Priority      int         `json:"priority"`
	ScheduledFor  time.Time   `json:"scheduled_for"`
	Processed     bool        `json:"processed"`
	ProcessedAt   *time.Time  `json:"processed_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// DeliveryStatus is the state of a delivery log row.
type DeliveryStatus string

const (
	StatusQueued    DeliveryStatus = "queued"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

// Terminal reports whether no further transitions are accepted.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// DeliveryLog is the append-only record of one send attempt.
type DeliveryLog struct {
	ID                int64          `json:"id"`
	ParticipantID     int64          `json:"participant_id"`
	PhoneNumber       string         `json:"phone_number"`
	Type              MessageType    `json:"message_type"`
	Body              string         `json:"message_body"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	Status            DeliveryStatus `json:"status"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	SentAt            time.Time      `json:"sent_at"`
	DeliveredAt       *time.Time     `json:"delivered_at,omitempty"`
}

type QueueStats struct {
	Total         int        `json:"total"`
	Pending       int        `json:"pending"`
	Processed     int        `json:"processed"`
	NextScheduled *time.Time `json:"next_scheduled,omitempty"`
}

// DeliveryStats counts log rows per message type.
type DeliveryStats struct {
	Type      MessageType `json:"message_type"`
	Total     int         `json:"total"`
	Sent      int         `json:"sent"`
	Delivered int         `json:"delivered"`
	Failed    int         `json:"failed"`
}
