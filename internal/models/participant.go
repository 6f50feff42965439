package models

import "time"

// Participant represents a person taking part in the gift exchange
type Participant struct {
	ID            int64       `json:"id"`
	FirstName     string      `json:"first_name"`
	PhoneNumber   string      `json:"phone_number"`
	PhoneLastFour string      `json:"phone_last_four"`
	AssignedToID  *int64      `json:"assigned_to_id,omitempty"`
	HasPicked     bool        `json:"has_picked"`
	PickedAt      *time.Time  `json:"picked_at,omitempty"`
	Preferences   Preferences `json:"preferences"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Preferences are the per-participant notification switches.
// SMSEnabled gates every category.
type Preferences struct {
	SMSEnabled             bool `json:"sms_enabled"`
	NotifyOnAssignment     bool `json:"notify_on_assignment"`
	NotifyOnWishlistUpdate bool `json:"notify_on_wishlist_update"`
	NotifyOnGameStart      bool `json:"notify_on_game_start"`
	NotifyReminders        bool `json:"notify_reminders"`
}

// DefaultPreferences is what a new participant starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		SMSEnabled:             true,
		NotifyOnAssignment:     true,
		NotifyOnWishlistUpdate: true,
		NotifyOnGameStart:      true,
		NotifyReminders:        true,
	}
}

// Allows reports whether the preferences permit a message of the given type.
func (p Preferences) Allows(t MessageType) bool {
	if t == MessageTest {
		return true
	}
	if !p.SMSEnabled {
		return false
	}
	switch t {
	case MessageAssignment:
		return p.NotifyOnAssignment
	case MessageWishlistUpdate:
		return p.NotifyOnWishlistUpdate
	case MessageGameStart:
		return p.NotifyOnGameStart
	case MessageWishlistReminder, MessageShoppingReminder, MessageExchangeDay:
		return p.NotifyReminders
	default:
		return false
	}
}

// PreferencesUpdate carries a partial preferences change; nil fields are left alone.
type PreferencesUpdate struct {
	SMSEnabled             *bool `json:"sms_enabled"`
	NotifyOnAssignment     *bool `json:"notify_on_assignment"`
	NotifyOnWishlistUpdate *bool `json:"notify_on_wishlist_update"`
	NotifyOnGameStart      *bool `json:"notify_on_game_start"`
	NotifyReminders        *bool `json:"notify_reminders"`
}

func (u PreferencesUpdate) Empty() bool {
	return u.SMSEnabled == nil && u.NotifyOnAssignment == nil && u.NotifyOnWishlistUpdate == nil &&
		u.NotifyOnGameStart == nil && u.NotifyReminders == nil
}

// Apply returns p with the non-nil fields of u applied.
func (u PreferencesUpdate) Apply(p Preferences) Preferences {
	if u.SMSEnabled != nil {
		p.SMSEnabled = *u.SMSEnabled
	}
	if u.NotifyOnAssignment != nil {
		p.NotifyOnAssignment = *u.NotifyOnAssignment
	}
	if u.NotifyOnWishlistUpdate != nil {
		p.NotifyOnWishlistUpdate = *u.NotifyOnWishlistUpdate
	}
	if u.NotifyOnGameStart != nil {
		p.NotifyOnGameStart = *u.NotifyOnGameStart
	}
	if u.NotifyReminders != nil {
		p.NotifyReminders = *u.NotifyReminders
	}
	return p
}

// Recipient is the minimal view of someone a Santa gives to.
type Recipient struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
}

// Contact is a participant reachable for a notification, optionally with
// the name of their recipient.
type Contact struct {
	ParticipantID int64
	FirstName     string
	PhoneNumber   string
	RecipientName string
}

// GameStatus summarises drawing progress.
type GameStatus struct {
	TotalParticipants int             `json:"total_participants"`
	PickedCount       int             `json:"picked_count"`
	NotPickedCount    int             `json:"not_picked_count"`
	PercentComplete   int             `json:"percent_complete"`
	NotPicked         []Participant   `json:"not_picked"`
	Picked            []PickedSummary `json:"picked"`
}

type PickedSummary struct {
	ID             int64     `json:"id"`
	FirstName      string    `json:"first_name"`
	PickedAt       time.Time `json:"picked_at"`
	AssignedToName string    `json:"assigned_to_name"`
}
