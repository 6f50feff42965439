package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"secret-santa/internal/metrics"
	"secret-santa/internal/models"
	"secret-santa/internal/storage"
)

// DisabledMessageID is logged as the provider id when sending is switched off.
const DisabledMessageID = "SMS_DISABLED"

var (
	ErrValidation = errors.New("invalid queue entry")
	// ErrDelivery wraps gateway send failures recorded in the delivery log.
	ErrDelivery = errors.New("delivery failed")
	// ErrConfiguration means the gateway is missing or misconfigured.
	ErrConfiguration = errors.New("gateway not configured")
)

// Receipt is what the gateway returns for an accepted message.
type Receipt struct {
	MessageID string
	Status    models.DeliveryStatus
}

// Gateway sends one message. Delivery confirmation arrives later through
// HandleStatus.
type Gateway interface {
	Send(ctx context.Context, to, body string) (*Receipt, error)
}

// Store is the datastore surface of the queue.
type Store interface {
	InsertQueueEntry(ctx context.Context, e models.QueueEntry) (int64, error)
	PendingEntries(ctx context.Context, now time.Time, limit int) ([]models.QueueEntry, error)
	ClaimEntry(ctx context.Context, id int64, at time.Time) (bool, error)
	ListQueue(ctx context.Context, limit int) ([]models.QueueEntry, error)
	CancelPending(ctx context.Context, participantID int64, msgType models.MessageType) (int64, error)
	CleanupProcessed(ctx context.Context, before time.Time) (int64, error)
	QueueStats(ctx context.Context) (*models.QueueStats, error)
	InsertDeliveryLog(ctx context.Context, l models.DeliveryLog) (int64, error)
	UpdateDeliveryStatus(ctx context.Context, providerID string, status models.DeliveryStatus, errMsg string, at time.Time) (int64, error)
	DeliveryLogByProviderID(ctx context.Context, providerID string) (*models.DeliveryLog, error)
	DeliveryLogs(ctx context.Context, participantID *int64, limit int) ([]models.DeliveryLog, error)
	DeliveryStats(ctx context.Context) ([]models.DeliveryStats, error)
}

type Config struct {
	// Enabled false logs every message with DisabledMessageID instead of
	// calling the gateway.
	Enabled       bool
	BatchSize     int
	SendDelay     time.Duration
	SendTimeout   time.Duration
	Window        Window
	RetentionDays int
}

// Result summarises one drain.
type Result struct {
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   bool   `json:"skipped,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Queue buffers outbound messages and drains them under the delivery window,
// a per-message delay and a singleton lease. Entries are delivered at most
// once: each is marked processed before the gateway is called.
type Queue struct {
	store   Store
	gateway Gateway
	lease   Lease
	cfg     Config
	metrics metrics.Recorder
	log     zerolog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration)
}

type Option func(*Queue)

func WithLease(l Lease) Option {
	return func(q *Queue) { q.lease = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(q *Queue) { q.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithSleep replaces the inter-message delay, mostly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(q *Queue) { q.sleep = sleep }
}

// New creates a queue. gateway may be nil when cfg.Enabled is false.
func New(store Store, gateway Gateway, cfg Config, log zerolog.Logger, opts ...Option) *Queue {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	q := &Queue{
		store:   store,
		gateway: gateway,
		lease:   &LocalLease{},
		cfg:     cfg,
		metrics: metrics.Nop{},
		log:     log.With().Str("component", "SMSQueue").Logger(),
		now:     time.Now,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Message is an enqueue request.
type Message struct {
	ParticipantID int64
	PhoneNumber   string
	Type          models.MessageType
	Body          string
	// Priority 0 means models.DefaultPriority. Lower drains first.
	Priority int
	// ScheduledFor zero means now.
	ScheduledFor time.Time
}

// Enqueue stores a message for the next drain and returns its queue id. It
// never talks to the gateway.
func (q *Queue) Enqueue(ctx context.Context, m Message) (int64, error) {
	if m.ParticipantID <= 0 {
		return 0, fmt.Errorf("%w: participant id is required", ErrValidation)
	}
	if strings.TrimSpace(m.PhoneNumber) == "" {
		return 0, fmt.Errorf("%w: phone number is required", ErrValidation)
	}
	if strings.TrimSpace(m.Body) == "" {
		return 0, fmt.Errorf("%w: message body is required", ErrValidation)
	}
	if m.Type == "" {
		return 0, fmt.Errorf("%w: message type is required", ErrValidation)
	}
	if m.Priority <= 0 {
		m.Priority = models.DefaultPriority
	}
	if m.ScheduledFor.IsZero() {
		m.ScheduledFor = q.now()
	}

	id, err := q.store.InsertQueueEntry(ctx, models.QueueEntry{
		ParticipantID: m.ParticipantID,
		PhoneNumber:   m.PhoneNumber,
		Type:          m.Type,
		Body:          m.Body,
		Priority:      m.Priority,
		ScheduledFor:  m.ScheduledFor,
	})
	if err != nil {
		return 0, err
	}
	q.log.Debug().Int64("queue_id", id).Int64("participant_id", m.ParticipantID).
		Str("type", string(m.Type)).Int("priority", m.Priority).Msg("Message queued")
	return id, nil
}

// ProcessQueue drains up to maxBatch due entries, most urgent first. Outside
// the delivery window, or while another drain holds the lease, it returns
// without touching anything. maxBatch <= 0 uses the configured batch size.
func (q *Queue) ProcessQueue(ctx context.Context, maxBatch int) (*Result, error) {
	if maxBatch <= 0 {
		maxBatch = q.cfg.BatchSize
	}

	now := q.now()
	if !q.cfg.Window.Contains(now) {
		q.log.Debug().Int("window_start", q.cfg.Window.StartHour).Int("window_end", q.cfg.Window.EndHour).
			Msg("Outside delivery window, skipping")
		return &Result{Skipped: true, Message: "Outside allowed hours"}, nil
	}

	release, ok, err := q.lease.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		q.log.Debug().Msg("Another drain is running, skipping")
		return &Result{Skipped: true, Message: "Drain already running"}, nil
	}
	defer release()

	// A started batch runs to completion; SendTimeout bounds each send.
	ctx = context.WithoutCancel(ctx)

	entries, err := q.store.PendingEntries(ctx, now, maxBatch)
	if err != nil {
		return nil, err
	}
	result := &Result{}
	if len(entries) == 0 {
		result.Message = "No pending messages"
		q.metrics.SetLastBatch(0)
		return result, nil
	}

	for i, entry := range entries {
		claimed, err := q.store.ClaimEntry(ctx, entry.ID, q.now())
		if err != nil {
			return result, err
		}
		if !claimed {
			continue
		}

		result.Attempted++
		if q.deliver(ctx, entry) {
			result.Succeeded++
		} else {
			result.Failed++
		}

		if i < len(entries)-1 {
			q.sleep(ctx, q.cfg.SendDelay)
		}
	}

	q.metrics.SetLastBatch(result.Attempted)
	result.Message = fmt.Sprintf("Processed %d messages", result.Attempted)
	q.log.Info().Int("attempted", result.Attempted).Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).Msg("Queue drained")
	return result, nil
}

// deliver sends one claimed entry and writes exactly one delivery log row.
func (q *Queue) deliver(ctx context.Context, entry models.QueueEntry) bool {
	record := models.DeliveryLog{
		ParticipantID: entry.ParticipantID,
		PhoneNumber:   entry.PhoneNumber,
		Type:          entry.Type,
		Body:          entry.Body,
		Status:        models.StatusSent,
		SentAt:        q.now().UTC(),
	}

	result := "sent"
	receipt, err := q.send(ctx, entry)
	switch {
	case err != nil:
		result = "failed"
		record.Status = models.StatusFailed
		record.ErrorMessage = err.Error()
		q.log.Warn().Err(err).Int64("queue_id", entry.ID).Int64("participant_id", entry.ParticipantID).
			Str("type", string(entry.Type)).Msg("Failed to send message")
	case receipt.MessageID == DisabledMessageID:
		result = "disabled"
		record.ProviderMessageID = receipt.MessageID
		q.log.Info().Int64("queue_id", entry.ID).Str("to", entry.PhoneNumber).
			Msg("SMS disabled, message not sent")
	default:
		record.ProviderMessageID = receipt.MessageID
		if receipt.Status == models.StatusQueued {
			record.Status = models.StatusQueued
		}
	}

	if _, err := q.store.InsertDeliveryLog(ctx, record); err != nil {
		q.log.Error().Err(err).Int64("queue_id", entry.ID).Int64("participant_id", entry.ParticipantID).
			Msg("Failed to write delivery log")
		q.metrics.RecordSend("log_failed")
	}
	q.metrics.RecordSend(result)
	return record.Status != models.StatusFailed
}

func (q *Queue) send(ctx context.Context, entry models.QueueEntry) (*Receipt, error) {
	if !q.cfg.Enabled {
		return &Receipt{MessageID: DisabledMessageID, Status: models.StatusSent}, nil
	}
	if q.gateway == nil {
		return nil, ErrConfiguration
	}

	ctx, cancel := context.WithTimeout(ctx, q.cfg.SendTimeout)
	defer cancel()
	receipt, err := q.gateway.Send(ctx, entry.PhoneNumber, entry.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	if receipt == nil || receipt.MessageID == "" {
		return nil, fmt.Errorf("%w: gateway returned no message id", ErrDelivery)
	}
	return receipt, nil
}

// HandleStatus applies an asynchronous delivery status to the log rows of a
// provider message. Unknown ids and replays are no-ops. It reports whether
// any row changed.
func (q *Queue) HandleStatus(ctx context.Context, providerID string, status models.DeliveryStatus, errMsg string) (bool, error) {
	if providerID == "" || status == "" {
		return false, fmt.Errorf("%w: message id and status are required", ErrValidation)
	}
	n, err := q.store.UpdateDeliveryStatus(ctx, providerID, status, errMsg, q.now())
	if err != nil {
		return false, err
	}
	if n == 0 {
		outcome := "ignored"
		if _, err := q.store.DeliveryLogByProviderID(ctx, providerID); errors.Is(err, storage.ErrNotFound) {
			outcome = "unknown"
		}
		q.metrics.RecordStatusCallback(outcome)
		q.log.Debug().Str("message_id", providerID).Str("status", string(status)).Str("outcome", outcome).
			Msg("Status callback changed nothing")
		return false, nil
	}
	q.metrics.RecordStatusCallback("applied")
	q.log.Info().Str("message_id", providerID).Str("status", string(status)).Msg("Delivery status updated")
	return true, nil
}

// Cleanup deletes processed entries older than the retention window.
// days <= 0 uses the configured retention.
func (q *Queue) Cleanup(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = q.cfg.RetentionDays
	}
	n, err := q.store.CleanupProcessed(ctx, q.now().AddDate(0, 0, -days))
	if err != nil {
		return 0, err
	}
	q.log.Info().Int64("deleted", n).Int("days", days).Msg("Queue cleaned up")
	return n, nil
}

// CancelPending removes unsent messages for a participant. An empty msgType
// cancels every type.
func (q *Queue) CancelPending(ctx context.Context, participantID int64, msgType models.MessageType) (int64, error) {
	return q.store.CancelPending(ctx, participantID, msgType)
}

func (q *Queue) Stats(ctx context.Context) (*models.QueueStats, error) {
	return q.store.QueueStats(ctx)
}

func (q *Queue) Entries(ctx context.Context, limit int) ([]models.QueueEntry, error) {
	return q.store.ListQueue(ctx, clampLimit(limit))
}

// Logs returns recent delivery log rows, optionally for one participant.
func (q *Queue) Logs(ctx context.Context, participantID *int64, limit int) ([]models.DeliveryLog, error) {
	return q.store.DeliveryLogs(ctx, participantID, clampLimit(limit))
}

func (q *Queue) DeliveryStats(ctx context.Context) ([]models.DeliveryStats, error) {
	return q.store.DeliveryStats(ctx)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}
