package assignment

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secret-santa/internal/models"
	"secret-santa/internal/storage"
)

func people(names ...string) []models.Participant {
	out := make([]models.Participant, len(names))
	for i, n := range names {
		out[i] = models.Participant{ID: int64(i + 1), FirstName: n}
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		participants []models.Participant
		pairs        []storage.ExclusionPair
		want         Validation
	}{
		{
			name:         "too few participants",
			participants: people("Alice"),
			want:         Validation{Reason: "Need at least 2 participants"},
		},
		{
			name:         "participant with nobody to pick",
			participants: people("Alice", "Bob"),
			pairs:        []storage.ExclusionPair{{ParticipantID: 2, ExcludedParticipantID: 1}},
			want:         Validation{Reason: "Bob has no valid people to pick", ParticipantID: 2},
		},
		{
			name:         "no exclusions",
			participants: people("Alice", "Bob", "Carol"),
			want:         Validation{Possible: true, Message: "Game is possible with current rules"},
		},
		{
			name:         "exactly half excluded is not dense",
			participants: people("Alice", "Bob", "Carol"),
			pairs: []storage.ExclusionPair{
				{ParticipantID: 1, ExcludedParticipantID: 2},
				{ParticipantID: 2, ExcludedParticipantID: 3},
				{ParticipantID: 3, ExcludedParticipantID: 1},
			},
			want: Validation{Possible: true, Message: "Game is possible with current rules"},
		},
		{
			name:         "dense exclusions warn",
			participants: people("Alice", "Bob", "Carol"),
			pairs: []storage.ExclusionPair{
				{ParticipantID: 1, ExcludedParticipantID: 2},
				{ParticipantID: 2, ExcludedParticipantID: 3},
				{ParticipantID: 3, ExcludedParticipantID: 1},
				{ParticipantID: 2, ExcludedParticipantID: 1},
			},
			want: Validation{
				Possible:            true,
				Warning:             "Many exclusions present - assignment may be difficult",
				ExclusionPercentage: 67,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validate(tt.participants, tt.pairs)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestEngineValidate(t *testing.T) {
	s := newStore(t)
	ids := seed(t, s, "Alice", "Bob")
	e := NewEngine(s, zerolog.Nop())

	v, err := e.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, v.Possible)

	exclude(t, s, ids[0], ids[1])
	v, err = e.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, v.Possible)
	assert.Equal(t, ids[0], v.ParticipantID)
}
