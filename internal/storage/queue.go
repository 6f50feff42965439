package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"secret-santa/internal/models"
)

const queueColumns = `id, participant_id, phone_number, message_type, message_body, priority,
	scheduled_for, processed, processed_at, created_at`

func scanQueueEntry(row rowScanner) (*models.QueueEntry, error) {
	var (
		e           models.QueueEntry
		processedAt sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.ParticipantID, &e.PhoneNumber, &e.Type, &e.Body, &e.Priority,
		&e.ScheduledFor, &e.Processed, &processedAt, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.ProcessedAt = timePtr(processedAt)
	return &e, nil
}

// InsertQueueEntry stores a pending message and returns its id.
func (s *Storage) InsertQueueEntry(ctx context.Context, e models.QueueEntry) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sms_queue (participant_id, phone_number, message_type, message_body, priority, scheduled_for, processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		RETURNING id`,
		e.ParticipantID, e.PhoneNumber, string(e.Type), e.Body, e.Priority, e.ScheduledFor.UTC(), s.now(),
	).Scan(&id)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to enqueue message: %w", err))
	}
	return id, nil
}

// PendingEntries returns up to limit unprocessed entries due at or before now,
// most urgent first.
func (s *Storage) PendingEntries(ctx context.Context, now time.Time, limit int) ([]models.QueueEntry, error) {
	return s.queryQueue(ctx, `
		SELECT `+queueColumns+`
		FROM sms_queue
		WHERE processed = FALSE AND scheduled_for <= $1
		ORDER BY priority ASC, scheduled_for ASC, id ASC
		LIMIT $2`, now.UTC(), limit)
}

// ListQueue returns the most recent entries regardless of state.
func (s *Storage) ListQueue(ctx context.Context, limit int) ([]models.QueueEntry, error) {
	return s.queryQueue(ctx, `
		SELECT `+queueColumns+`
		FROM sms_queue
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
}

func (s *Storage) queryQueue(ctx context.Context, query string, args ...any) ([]models.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	defer rows.Close()

	result := []models.QueueEntry{}
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

// ClaimEntry marks an entry processed. It reports false when another worker
// already claimed it, in which case the caller must not send.
func (s *Storage) ClaimEntry(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sms_queue SET processed = TRUE, processed_at = $1
		WHERE id = $2 AND processed = FALSE`, at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to claim queue entry %d: %w", id, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CancelPending deletes unprocessed entries for a participant, optionally
// limited to one message type.
func (s *Storage) CancelPending(ctx context.Context, participantID int64, msgType models.MessageType) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if msgType == "" {
		res, err = s.db.ExecContext(ctx, `
			DELETE FROM sms_queue WHERE participant_id = $1 AND processed = FALSE`, participantID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			DELETE FROM sms_queue WHERE participant_id = $1 AND message_type = $2 AND processed = FALSE`,
			participantID, string(msgType))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending messages: %w", err)
	}
	return rowsAffected(res)
}

// CleanupProcessed deletes processed entries older than before.
func (s *Storage) CleanupProcessed(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sms_queue WHERE processed = TRUE AND processed_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up queue: %w", err)
	}
	return rowsAffected(res)
}

func (s *Storage) QueueStats(ctx context.Context) (*models.QueueStats, error) {
	var stats models.QueueStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN processed = FALSE THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN processed = TRUE THEN 1 ELSE 0 END), 0)
		FROM sms_queue`,
	).Scan(&stats.Total, &stats.Pending, &stats.Processed)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	// MIN() loses the column type in SQLite, so read the row instead.
	var next time.Time
	err = s.db.QueryRowContext(ctx, `
		SELECT scheduled_for FROM sms_queue
		WHERE processed = FALSE
		ORDER BY scheduled_for ASC
		LIMIT 1`,
	).Scan(&next)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to get next scheduled message: %w", err)
	default:
		stats.NextScheduled = &next
	}
	return &stats, nil
}

const logColumns = `id, participant_id, phone_number, message_type, message_body, COALESCE(provider_message_id, ''),
	status, COALESCE(error_message, ''), sent_at, delivered_at`

func scanDeliveryLog(row rowScanner) (*models.DeliveryLog, error) {
	var (
		l           models.DeliveryLog
		deliveredAt sql.NullTime
	)
	if err := row.Scan(&l.ID, &l.ParticipantID, &l.PhoneNumber, &l.Type, &l.Body, &l.ProviderMessageID,
		&l.Status, &l.ErrorMessage, &l.SentAt, &deliveredAt); err != nil {
		return nil, err
	}
	l.DeliveredAt = timePtr(deliveredAt)
	return &l, nil
}

// InsertDeliveryLog appends one delivery record.
func (s *Storage) InsertDeliveryLog(ctx context.Context, l models.DeliveryLog) (int64, error) {
	sentAt := l.SentAt
	if sentAt.IsZero() {
		sentAt = s.now()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sms_logs (participant_id, phone_number, message_type, message_body, provider_message_id, status, error_message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		l.ParticipantID, l.PhoneNumber, string(l.Type), l.Body, nullString(l.ProviderMessageID),
		string(l.Status), nullString(l.ErrorMessage), sentAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to write delivery log: %w", err))
	}
	return id, nil
}

// UpdateDeliveryStatus applies a provider status to every non-terminal log row
// with the given provider message id and returns how many rows changed. Rows
// already delivered or failed are left alone, so replays change nothing.
func (s *Storage) UpdateDeliveryStatus(ctx context.Context, providerID string, status models.DeliveryStatus, errMsg string, at time.Time) (int64, error) {
	var deliveredAt sql.NullTime
	if status == models.StatusDelivered {
		deliveredAt = sql.NullTime{Time: at.UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sms_logs
		SET status = $1, error_message = COALESCE($2, error_message), delivered_at = COALESCE($3, delivered_at)
		WHERE provider_message_id = $4 AND status NOT IN ('delivered', 'failed')`,
		string(status), nullString(errMsg), deliveredAt, providerID)
	if err != nil {
		return 0, fmt.Errorf("failed to update delivery status: %w", err)
	}
	return rowsAffected(res)
}

// DeliveryLogByProviderID returns the newest log row for a provider message id.
func (s *Storage) DeliveryLogByProviderID(ctx context.Context, providerID string) (*models.DeliveryLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+logColumns+`
		FROM sms_logs
		WHERE provider_message_id = $1
		ORDER BY id DESC
		LIMIT 1`, providerID)
	l, err := scanDeliveryLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery log: %w", err)
	}
	return l, nil
}

// DeliveryLogs returns the newest log rows, optionally for one participant.
func (s *Storage) DeliveryLogs(ctx context.Context, participantID *int64, limit int) ([]models.DeliveryLog, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if participantID != nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+logColumns+` FROM sms_logs
			WHERE participant_id = $1
			ORDER BY sent_at DESC, id DESC
			LIMIT $2`, *participantID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+logColumns+` FROM sms_logs
			ORDER BY sent_at DESC, id DESC
			LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery logs: %w", err)
	}
	defer rows.Close()

	result := []models.DeliveryLog{}
	for rows.Next() {
		l, err := scanDeliveryLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery log: %w", err)
		}
		result = append(result, *l)
	}
	return result, rows.Err()
}

// DeliveryStats counts log rows per message type and status.
func (s *Storage) DeliveryStats(ctx context.Context) ([]models.DeliveryStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_type, COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'delivered' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM sms_logs
		GROUP BY message_type
		ORDER BY message_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery stats: %w", err)
	}
	defer rows.Close()

	result := []models.DeliveryStats{}
	for rows.Next() {
		var st models.DeliveryStats
		if err := rows.Scan(&st.Type, &st.Total, &st.Sent, &st.Delivered, &st.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan delivery stats: %w", err)
		}
		result = append(result, st)
	}
	return result, rows.Err()
}
