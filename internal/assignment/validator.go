package assignment

import (
	"context"
	"fmt"

	"secret-santa/internal/models"
	"secret-santa/internal/storage"
)

// Validation is the result of the pre-draw feasibility check.
type Validation struct {
	Possible            bool   `json:"possible"`
	Reason              string `json:"reason,omitempty"`
	ParticipantID       int64  `json:"participant_id,omitempty"`
	Warning             string `json:"warning,omitempty"`
	ExclusionPercentage int    `json:"exclusion_percentage,omitempty"`
	Message             string `json:"message,omitempty"`
}

// Validate checks the static exclusion graph before the draw opens. It
// ignores current assignments. Passing does not guarantee that every random
// draw sequence completes; it only rules out participants with no option at
// all.
func (e *Engine) Validate(ctx context.Context) (*Validation, error) {
	participants, err := e.store.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	pairs, err := e.store.ExclusionPairs(ctx)
	if err != nil {
		return nil, err
	}
	return validate(participants, pairs), nil
}

func validate(participants []models.Participant, pairs []storage.ExclusionPair) *Validation {
	if len(participants) < 2 {
		return &Validation{Reason: "Need at least 2 participants"}
	}

	g := newGraph(participants, pairs)
	for _, p := range participants {
		if g.staticOptions(p.ID) == 0 {
			return &Validation{
				Reason:        fmt.Sprintf("%s has no valid people to pick", p.FirstName),
				ParticipantID: p.ID,
			}
		}
	}

	total := len(participants) * (len(participants) - 1)
	if 2*len(pairs) > total {
		return &Validation{
			Possible:            true,
			Warning:             "Many exclusions present - assignment may be difficult",
			ExclusionPercentage: (len(pairs)*100 + total/2) / total,
		}
	}
	return &Validation{Possible: true, Message: "Game is possible with current rules"}
}
