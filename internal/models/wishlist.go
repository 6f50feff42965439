package models

import "time"

// NonParticipant is a wish-list-only person managed by a participant.
type NonParticipant struct {
	ID                     int64  `json:"id"`
	Name                   string `json:"name"`
	ManagedByParticipantID int64  `json:"managed_by_participant_id"`
}

// WishListItem belongs to exactly one of a participant or a non-participant.
type WishListItem struct {
	ID               int64     `json:"id"`
	ParticipantID    *int64    `json:"participant_id,omitempty"`
	NonParticipantID *int64    `json:"non_participant_id,omitempty"`
	Name             string    `json:"item_name"`
	Description      string    `json:"description,omitempty"`
	Link             string    `json:"link,omitempty"`
	PriceRange       string    `json:"price_range,omitempty"`
	Priority         int       `json:"priority"`
	DisplayOrder     int       `json:"display_order"`
	IsPurchased      bool      `json:"is_purchased"`
	CreatedAt        time.Time `json:"created_at"`
}

const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
)
