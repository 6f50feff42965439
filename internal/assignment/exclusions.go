package assignment

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"secret-santa/internal/models"
	"secret-santa/internal/storage"
)

// ExclusionStore is the datastore surface for exclusion rules.
type ExclusionStore interface {
	AddExclusion(ctx context.Context, participantID, excludedID int64, reason string) (int64, error)
	AddExclusions(ctx context.Context, pairs []storage.ExclusionPair, reason string) (int, error)
	RemoveExclusion(ctx context.Context, id int64) (bool, error)
	ListExclusions(ctx context.Context) ([]models.ExclusionRule, error)
	ExclusionsFor(ctx context.Context, participantID int64) ([]models.ExclusionRule, error)
	ExclusionStats(ctx context.Context) (*models.ExclusionStats, error)
}

var (
	// ErrDuplicate is returned when an exclusion rule already exists.
	ErrDuplicate    = errors.New("exclusion rule already exists")
	ErrRuleNotFound = errors.New("exclusion rule not found")
)

// Exclusions manages the "may not draw" rules.
type Exclusions struct {
	store ExclusionStore
	log   zerolog.Logger
}

func NewExclusions(store ExclusionStore, log zerolog.Logger) *Exclusions {
	return &Exclusions{store: store, log: log.With().Str("component", "Exclusions").Logger()}
}

// Add forbids participantID from drawing excludedID.
func (x *Exclusions) Add(ctx context.Context, participantID, excludedID int64, reason string) (int64, error) {
	if participantID == excludedID {
		return 0, validationf("a participant cannot exclude themselves")
	}
	id, err := x.store.AddExclusion(ctx, participantID, excludedID, strings.TrimSpace(reason))
	switch {
	case errors.Is(err, storage.ErrConflict):
		return 0, ErrDuplicate
	case errors.Is(err, storage.ErrNotFound):
		return 0, ErrNotFound
	case err != nil:
		return 0, err
	}
	x.log.Info().Int64("participant_id", participantID).Int64("excluded_id", excludedID).Msg("Exclusion added")
	return id, nil
}

// AddFamilyGroup excludes every member of ids from drawing every other
// member. Existing rules are kept. It returns how many rules were created.
func (x *Exclusions) AddFamilyGroup(ctx context.Context, ids []int64, reason string) (int, error) {
	seen := make(map[int64]bool, len(ids))
	var members []int64
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			members = append(members, id)
		}
	}
	if len(members) < 2 {
		return 0, validationf("a family group needs at least 2 participants")
	}
	if strings.TrimSpace(reason) == "" {
		reason = "family"
	}

	var pairs []storage.ExclusionPair
	for _, a := range members {
		for _, b := range members {
			if a != b {
				pairs = append(pairs, storage.ExclusionPair{ParticipantID: a, ExcludedParticipantID: b})
			}
		}
	}

	added, err := x.store.AddExclusions(ctx, pairs, reason)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	x.log.Info().Int("members", len(members)).Int("added", added).Msg("Family group added")
	return added, nil
}

// Remove deletes a rule.
func (x *Exclusions) Remove(ctx context.Context, id int64) error {
	ok, err := x.store.RemoveExclusion(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRuleNotFound
	}
	return nil
}

func (x *Exclusions) List(ctx context.Context) ([]models.ExclusionRule, error) {
	return x.store.ListExclusions(ctx)
}

func (x *Exclusions) For(ctx context.Context, participantID int64) ([]models.ExclusionRule, error) {
	return x.store.ExclusionsFor(ctx, participantID)
}

func (x *Exclusions) Stats(ctx context.Context) (*models.ExclusionStats, error) {
	return x.store.ExclusionStats(ctx)
}
