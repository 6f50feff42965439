package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"secret-santa/internal/models"
)

const itemColumns = `w.id, w.participant_id, w.non_participant_id, w.item_name, COALESCE(w.description, ''),
	COALESCE(w.link, ''), COALESCE(w.price_range, ''), w.priority, w.display_order, w.created_at`

func scanItem(row rowScanner, extra ...any) (*models.WishListItem, error) {
	var (
		item models.WishListItem
		pid  sql.NullInt64
		npid sql.NullInt64
	)
	dest := append([]any{&item.ID, &pid, &npid, &item.Name, &item.Description, &item.Link, &item.PriceRange,
		&item.Priority, &item.DisplayOrder, &item.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	item.ParticipantID = int64Ptr(pid)
	item.NonParticipantID = int64Ptr(npid)
	return &item, nil
}

// AddNonParticipant creates a wish-list-only person managed by a participant.
func (s *Storage) AddNonParticipant(ctx context.Context, name string, managedBy int64) (*models.NonParticipant, error) {
	np := &models.NonParticipant{Name: name, ManagedByParticipantID: managedBy}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO non_participants (name, managed_by_participant_id, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`,
		name, managedBy, s.now(),
	).Scan(&np.ID)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to add non-participant: %w", err))
	}
	return np, nil
}

func (s *Storage) GetNonParticipant(ctx context.Context, id int64) (*models.NonParticipant, error) {
	var np models.NonParticipant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, managed_by_participant_id FROM non_participants WHERE id = $1`, id,
	).Scan(&np.ID, &np.Name, &np.ManagedByParticipantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get non-participant: %w", err)
	}
	return &np, nil
}

// ListNonParticipants returns the non-participants managed by a participant.
func (s *Storage) ListNonParticipants(ctx context.Context, managedBy int64) ([]models.NonParticipant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, managed_by_participant_id
		FROM non_participants
		WHERE managed_by_participant_id = $1
		ORDER BY name, id`, managedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to list non-participants: %w", err)
	}
	defer rows.Close()

	var result []models.NonParticipant
	for rows.Next() {
		var np models.NonParticipant
		if err := rows.Scan(&np.ID, &np.Name, &np.ManagedByParticipantID); err != nil {
			return nil, fmt.Errorf("failed to scan non-participant: %w", err)
		}
		result = append(result, np)
	}
	return result, rows.Err()
}

// AddItem inserts a wish list item at the end of its owner's list.
func (s *Storage) AddItem(ctx context.Context, item models.WishListItem) (*models.WishListItem, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO wish_list_items
			(participant_id, non_participant_id, item_name, description, link, price_range, priority, display_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
			(SELECT COALESCE(MAX(display_order), 0) + 1 FROM wish_list_items
			 WHERE participant_id IS NOT DISTINCT FROM $1 AND non_participant_id IS NOT DISTINCT FROM $2),
			$8)
		RETURNING id`,
		nullInt64(item.ParticipantID), nullInt64(item.NonParticipantID), item.Name, nullString(item.Description),
		nullString(item.Link), nullString(item.PriceRange), item.Priority, s.now(),
	).Scan(&id)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to add wish list item: %w", err))
	}
	return s.GetItem(ctx, id)
}

// GetItem returns an item by id.
func (s *Storage) GetItem(ctx context.Context, id int64) (*models.WishListItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM wish_list_items w WHERE w.id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wish list item: %w", err)
	}
	return item, nil
}

// UpdateItem rewrites the editable fields of an item.
func (s *Storage) UpdateItem(ctx context.Context, item models.WishListItem) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE wish_list_items
		SET item_name = $1, description = $2, link = $3, price_range = $4, priority = $5
		WHERE id = $6`,
		item.Name, nullString(item.Description), nullString(item.Link), nullString(item.PriceRange), item.Priority, item.ID)
	if err != nil {
		return classify(fmt.Errorf("failed to update wish list item: %w", err))
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

func (s *Storage) DeleteItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wish_list_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete wish list item: %w", err)
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

// ItemsForParticipant lists a participant's own items in display order.
func (s *Storage) ItemsForParticipant(ctx context.Context, participantID int64) ([]models.WishListItem, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+`
		FROM wish_list_items w
		WHERE w.participant_id = $1
		ORDER BY w.display_order, w.id`, participantID)
}

// ItemsForNonParticipant lists a non-participant's items in display order.
func (s *Storage) ItemsForNonParticipant(ctx context.Context, nonParticipantID int64) ([]models.WishListItem, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+`
		FROM wish_list_items w
		WHERE w.non_participant_id = $1
		ORDER BY w.display_order, w.id`, nonParticipantID)
}

func (s *Storage) queryItems(ctx context.Context, query string, args ...any) ([]models.WishListItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list wish list items: %w", err)
	}
	defer rows.Close()

	result := []models.WishListItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wish list item: %w", err)
		}
		result = append(result, *item)
	}
	return result, rows.Err()
}

// CountItems returns how many items a participant has on their own list.
func (s *Storage) CountItems(ctx context.Context, participantID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wish_list_items WHERE participant_id = $1`, participantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count wish list items: %w", err)
	}
	return n, nil
}

// ReorderItems sets display_order to the position of each id in ids. Ids not
// owned by participantID are ignored.
func (s *Storage) ReorderItems(ctx context.Context, participantID int64, ids []int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for i, id := range ids {
			if _, err := tx.ExecContext(ctx, `
				UPDATE wish_list_items SET display_order = $1
				WHERE id = $2 AND participant_id = $3`, i+1, id, participantID); err != nil {
				return fmt.Errorf("failed to reorder item %d: %w", id, err)
			}
		}
		return nil
	})
}

// RecipientItems lists the items of santaID's recipient with santaID's
// purchase marks. It returns ErrNotFound if santaID has not drawn yet.
func (s *Storage) RecipientItems(ctx context.Context, santaID int64) ([]models.WishListItem, error) {
	santa, err := s.GetParticipant(ctx, santaID)
	if err != nil {
		return nil, err
	}
	if santa.AssignedToID == nil {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+`,
			CASE WHEN wp.id IS NOT NULL THEN TRUE ELSE FALSE END
		FROM wish_list_items w
		LEFT JOIN wish_list_purchases wp ON wp.wish_list_item_id = w.id AND wp.santa_participant_id = $1
		WHERE w.participant_id = $2
		ORDER BY w.display_order, w.id`, santaID, *santa.AssignedToID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipient items: %w", err)
	}
	defer rows.Close()

	result := []models.WishListItem{}
	for rows.Next() {
		var purchased bool
		item, err := scanItem(rows, &purchased)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient item: %w", err)
		}
		item.IsPurchased = purchased
		result = append(result, *item)
	}
	return result, rows.Err()
}

// TogglePurchase flips santaID's purchase mark on itemID and returns the new
// state. ErrNotFound is returned when the item is not on the list of
// santaID's recipient.
func (s *Storage) TogglePurchase(ctx context.Context, itemID, santaID int64) (bool, error) {
	var purchased bool
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var owner int64
		err := tx.QueryRowContext(ctx, `
			SELECT w.participant_id
			FROM wish_list_items w
			JOIN participants p ON p.assigned_to_id = w.participant_id
			WHERE w.id = $1 AND p.id = $2 AND p.has_picked = TRUE`, itemID, santaID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to verify purchase target: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			DELETE FROM wish_list_purchases
			WHERE wish_list_item_id = $1 AND santa_participant_id = $2`, itemID, santaID)
		if err != nil {
			return fmt.Errorf("failed to unmark purchase: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n > 0 {
			purchased = false
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wish_list_purchases (wish_list_item_id, santa_participant_id, purchased_at)
			VALUES ($1, $2, $3)`, itemID, santaID, s.now()); err != nil {
			return classify(fmt.Errorf("failed to mark purchase: %w", err))
		}
		purchased = true
		return nil
	})
	return purchased, err
}
