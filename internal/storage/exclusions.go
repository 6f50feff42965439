package storage

import (
	"context"
	"database/sql"
	"fmt"

	"secret-santa/internal/models"
)

// ExclusionPair is one directed "may not draw" edge.
type ExclusionPair struct {
	ParticipantID         int64
	ExcludedParticipantID int64
}

// AddExclusion inserts a rule. Duplicates return ErrConflict, unknown
// participants ErrNotFound and self-exclusion ErrInvalid.
func (s *Storage) AddExclusion(ctx context.Context, participantID, excludedID int64, reason string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO exclusion_rules (participant_id, excluded_participant_id, reason, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		participantID, excludedID, nullString(reason), s.now(),
	).Scan(&id)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to add exclusion: %w", err))
	}
	return id, nil
}

// AddExclusions inserts all pairs in one transaction, skipping pairs that
// already exist. It returns how many rules were created.
func (s *Storage) AddExclusions(ctx context.Context, pairs []ExclusionPair, reason string) (int, error) {
	added := 0
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		for _, p := range pairs {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO exclusion_rules (participant_id, excluded_participant_id, reason, created_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (participant_id, excluded_participant_id) DO NOTHING`,
				p.ParticipantID, p.ExcludedParticipantID, nullString(reason), now)
			if err != nil {
				return classify(fmt.Errorf("failed to add exclusion %d->%d: %w", p.ParticipantID, p.ExcludedParticipantID, err))
			}
			n, err := rowsAffected(res)
			if err != nil {
				return err
			}
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// RemoveExclusion deletes a rule, reporting whether it existed.
func (s *Storage) RemoveExclusion(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exclusion_rules WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to remove exclusion: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const exclusionSelect = `
	SELECT e.id, e.participant_id, p1.first_name, e.excluded_participant_id, p2.first_name,
		COALESCE(e.reason, ''), e.created_at
	FROM exclusion_rules e
	JOIN participants p1 ON e.participant_id = p1.id
	JOIN participants p2 ON e.excluded_participant_id = p2.id`

// ListExclusions returns every rule with both participants' names.
func (s *Storage) ListExclusions(ctx context.Context) ([]models.ExclusionRule, error) {
	return s.queryExclusions(ctx, exclusionSelect+` ORDER BY p1.first_name, p2.first_name, e.id`)
}

// ExclusionsFor returns the rules where participantID is the one excluding.
func (s *Storage) ExclusionsFor(ctx context.Context, participantID int64) ([]models.ExclusionRule, error) {
	return s.queryExclusions(ctx, exclusionSelect+` WHERE e.participant_id = $1 ORDER BY p2.first_name, e.id`, participantID)
}

func (s *Storage) queryExclusions(ctx context.Context, query string, args ...any) ([]models.ExclusionRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list exclusions: %w", err)
	}
	defer rows.Close()

	var result []models.ExclusionRule
	for rows.Next() {
		var e models.ExclusionRule
		if err := rows.Scan(&e.ID, &e.ParticipantID, &e.ParticipantName, &e.ExcludedParticipantID,
			&e.ExcludedName, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// ExclusionPairs returns the raw exclusion graph.
func (s *Storage) ExclusionPairs(ctx context.Context) ([]ExclusionPair, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT participant_id, excluded_participant_id FROM exclusion_rules`)
	if err != nil {
		return nil, fmt.Errorf("failed to load exclusion graph: %w", err)
	}
	defer rows.Close()

	var result []ExclusionPair
	for rows.Next() {
		var p ExclusionPair
		if err := rows.Scan(&p.ParticipantID, &p.ExcludedParticipantID); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion pair: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Storage) ExclusionStats(ctx context.Context) (*models.ExclusionStats, error) {
	var stats models.ExclusionStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT participant_id), COUNT(*), COUNT(DISTINCT reason)
		FROM exclusion_rules`,
	).Scan(&stats.ParticipantsWithExclusions, &stats.TotalExclusions, &stats.UniqueReasons)
	if err != nil {
		return nil, fmt.Errorf("failed to get exclusion stats: %w", err)
	}
	return &stats, nil
}
