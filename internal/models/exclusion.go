package models

import "time"

// ExclusionRule forbids ParticipantID from drawing ExcludedParticipantID.
// Rules are directional.
type ExclusionRule struct {
	ID                    int64     `json:"id"`
	ParticipantID         int64     `json:"participant_id"`
	ParticipantName       string    `json:"participant_name,omitempty"`
	ExcludedParticipantID int64     `json:"excluded_participant_id"`
	ExcludedName          string    `json:"excluded_name,omitempty"`
	Reason                string    `json:"reason,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

type ExclusionStats struct {
	ParticipantsWithExclusions int `json:"participants_with_exclusions"`
	TotalExclusions            int `json:"total_exclusions"`
	UniqueReasons              int `json:"unique_reasons"`
}
