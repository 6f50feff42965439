package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"secret-santa/internal/models"
)

const participantColumns = `id, first_name, phone_number, phone_last_four, assigned_to_id, has_picked, picked_at,
	sms_enabled, notify_on_assignment, notify_on_wishlist_update, notify_on_game_start, notify_reminders, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (*models.Participant, error) {
	var (
		p        models.Participant
		assigned sql.NullInt64
		pickedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.FirstName, &p.PhoneNumber, &p.PhoneLastFour, &assigned, &p.HasPicked, &pickedAt,
		&p.Preferences.SMSEnabled, &p.Preferences.NotifyOnAssignment, &p.Preferences.NotifyOnWishlistUpdate,
		&p.Preferences.NotifyOnGameStart, &p.Preferences.NotifyReminders, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.AssignedToID = int64Ptr(assigned)
	p.PickedAt = timePtr(pickedAt)
	return &p, nil
}

// LastFour returns the last four digits of a phone number, used as the login secret.
func LastFour(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) <= 4 {
		return d
	}
	return d[len(d)-4:]
}

// AddParticipant inserts a new participant with default notification preferences.
func (s *Storage) AddParticipant(ctx context.Context, firstName, phone string) (*models.Participant, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO participants (first_name, phone_number, phone_last_four, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		firstName, phone, LastFour(phone), s.now(),
	).Scan(&id)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to add participant: %w", err))
	}
	return s.GetParticipant(ctx, id)
}

// GetParticipant retrieves a participant by id
func (s *Storage) GetParticipant(ctx context.Context, id int64) (*models.Participant, error) {
	return getParticipant(ctx, s.db, id)
}

func getParticipant(ctx context.Context, q querier, id int64) (*models.Participant, error) {
	row := q.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant %d: %w", id, err)
	}
	return p, nil
}

// FindByLogin looks a participant up by first name (case-insensitive) and
// the last four digits of their phone number.
func (s *Storage) FindByLogin(ctx context.Context, firstName, lastFour string) (*models.Participant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+participantColumns+`
		FROM participants
		WHERE LOWER(first_name) = LOWER($1) AND phone_last_four = $2`,
		strings.TrimSpace(firstName), lastFour)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find participant: %w", err)
	}
	return p, nil
}

// ListParticipants returns all participants ordered by name.
func (s *Storage) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	return listParticipants(ctx, s.db)
}

func listParticipants(ctx context.Context, q querier) ([]models.Participant, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+participantColumns+` FROM participants ORDER BY first_name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var result []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

// UpdateParticipant changes a participant's name and phone number.
func (s *Storage) UpdateParticipant(ctx context.Context, id int64, firstName, phone string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE participants
		SET first_name = $1, phone_number = $2, phone_last_four = $3
		WHERE id = $4`,
		firstName, phone, LastFour(phone), id)
	if err != nil {
		return classify(fmt.Errorf("failed to update participant: %w", err))
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePreferences replaces the notification switches of a participant.
func (s *Storage) UpdatePreferences(ctx context.Context, id int64, p models.Preferences) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE participants
		SET sms_enabled = $1, notify_on_assignment = $2, notify_on_wishlist_update = $3,
			notify_on_game_start = $4, notify_reminders = $5
		WHERE id = $6`,
		p.SMSEnabled, p.NotifyOnAssignment, p.NotifyOnWishlistUpdate, p.NotifyOnGameStart, p.NotifyReminders, id)
	if err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveParticipant deletes a participant. Whoever had drawn them goes back to
// not having picked, in the same transaction, so no Santa points at a missing row.
func (s *Storage) RemoveParticipant(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE participants
			SET assigned_to_id = NULL, has_picked = FALSE, picked_at = NULL
			WHERE assigned_to_id = $1`, id); err != nil {
			return fmt.Errorf("failed to release santa of participant %d: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE id = $1`, id)
		if err != nil {
			return classify(fmt.Errorf("failed to remove participant %d: %w", id, err))
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CommitAssignment records that drawerID drew recipientID. Only the drawer's
// row is written. It returns ErrConflict when the recipient was claimed or
// removed concurrently, ErrAlreadyAssigned when the drawer already has a
// recipient and ErrNotFound when the drawer no longer exists.
func (s *Storage) CommitAssignment(ctx context.Context, drawerID, recipientID int64, at time.Time) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE participants
			SET assigned_to_id = $1, has_picked = TRUE, picked_at = $2
			WHERE id = $3
				AND assigned_to_id IS NULL
				AND EXISTS (SELECT 1 FROM participants r WHERE r.id = $1)`,
			recipientID, at.UTC(), drawerID)
		if err != nil {
			return classify(fmt.Errorf("failed to commit assignment: %w", err))
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 1 {
			return nil
		}

		drawer, err := getParticipant(ctx, tx, drawerID)
		if err != nil {
			return err
		}
		if drawer.AssignedToID != nil {
			return ErrAlreadyAssigned
		}
		// The recipient disappeared between reading candidates and committing.
		return fmt.Errorf("%w: recipient %d no longer exists", ErrConflict, recipientID)
	})
}

// ResetAssignments clears every assignment but keeps participants and exclusions.
func (s *Storage) ResetAssignments(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE participants
		SET assigned_to_id = NULL, has_picked = FALSE, picked_at = NULL
		WHERE has_picked = TRUE`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset assignments: %w", err)
	}
	return rowsAffected(res)
}

// ResetAll removes every participant and everything hanging off them.
func (s *Storage) ResetAll(ctx context.Context) error {
	stmts := []string{
		`DELETE FROM wish_list_purchases`,
		`DELETE FROM wish_list_items`,
		`DELETE FROM non_participants`,
		`DELETE FROM sms_queue`,
		`DELETE FROM sms_logs`,
		`DELETE FROM exclusion_rules`,
		`UPDATE participants SET assigned_to_id = NULL, has_picked = FALSE, picked_at = NULL`,
		`DELETE FROM participants`,
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to reset: %w", err)
			}
		}
		return nil
	})
}

// GameStatus summarises who has and has not drawn yet.
func (s *Storage) GameStatus(ctx context.Context) (*models.GameStatus, error) {
	participants, err := s.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}

	names := make(map[int64]string, len(participants))
	for _, p := range participants {
		names[p.ID] = p.FirstName
	}

	status := &models.GameStatus{
		TotalParticipants: len(participants),
		NotPicked:         []models.Participant{},
		Picked:            []models.PickedSummary{},
	}
	for _, p := range participants {
		if !p.HasPicked || p.AssignedToID == nil {
			status.NotPicked = append(status.NotPicked, p)
			continue
		}
		summary := models.PickedSummary{
			ID:             p.ID,
			FirstName:      p.FirstName,
			AssignedToName: names[*p.AssignedToID],
		}
		if p.PickedAt != nil {
			summary.PickedAt = *p.PickedAt
		}
		status.Picked = append(status.Picked, summary)
	}
	status.PickedCount = len(status.Picked)
	status.NotPickedCount = len(status.NotPicked)
	if status.TotalParticipants > 0 {
		status.PercentComplete = (status.PickedCount*100 + status.TotalParticipants/2) / status.TotalParticipants
	}
	return status, nil
}

// Contacts returns every participant with the name of their recipient, if any.
// Callers filter by preferences.
func (s *Storage) Contacts(ctx context.Context) ([]ContactWithPreferences, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.first_name, p.phone_number, COALESCE(r.first_name, ''), p.has_picked, p.picked_at,
			p.sms_enabled, p.notify_on_assignment, p.notify_on_wishlist_update, p.notify_on_game_start, p.notify_reminders
		FROM participants p
		LEFT JOIN participants r ON p.assigned_to_id = r.id
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var result []ContactWithPreferences
	for rows.Next() {
		var (
			c        ContactWithPreferences
			pickedAt sql.NullTime
		)
		if err := rows.Scan(&c.ParticipantID, &c.FirstName, &c.PhoneNumber, &c.RecipientName, &c.HasPicked, &pickedAt,
			&c.Preferences.SMSEnabled, &c.Preferences.NotifyOnAssignment, &c.Preferences.NotifyOnWishlistUpdate,
			&c.Preferences.NotifyOnGameStart, &c.Preferences.NotifyReminders); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		c.PickedAt = timePtr(pickedAt)
		result = append(result, c)
	}
	return result, rows.Err()
}

// SantaOf returns the participant who drew recipientID, or ErrNotFound when
// nobody has drawn them yet.
func (s *Storage) SantaOf(ctx context.Context, recipientID int64) (*models.Participant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE assigned_to_id = $1`, recipientID)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find santa of %d: %w", recipientID, err)
	}
	return p, nil
}

// ContactWithPreferences is a notification target.
type ContactWithPreferences struct {
	models.Contact
	HasPicked   bool
	PickedAt    *time.Time
	Preferences models.Preferences
}
