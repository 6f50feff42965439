package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"secret-santa/internal/models"
	"secret-santa/internal/queue"
	"secret-santa/internal/storage"
)

var ErrInvalidType = errors.New("invalid notification type")

// Priorities per message type. Lower drains first.
var priorities = map[models.MessageType]int{
	models.MessageExchangeDay:      1,
	models.MessageTest:             1,
	models.MessageAssignment:       2,
	models.MessageGameStart:        3,
	models.MessageWishlistUpdate:   3,
	models.MessageShoppingReminder: 4,
	models.MessageWishlistReminder: 5,
}

func Priority(t models.MessageType) int {
	if p, ok := priorities[t]; ok {
		return p
	}
	return models.DefaultPriority
}

// Store is what the notifier reads to pick recipients.
type Store interface {
	GetParticipant(ctx context.Context, id int64) (*models.Participant, error)
	Contacts(ctx context.Context) ([]storage.ContactWithPreferences, error)
	SantaOf(ctx context.Context, recipientID int64) (*models.Participant, error)
	CountItems(ctx context.Context, participantID int64) (int, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, m queue.Message) (int64, error)
}

// BulkResult counts a broadcast: Total eligible, Queued successfully.
type BulkResult struct {
	Queued int `json:"queued"`
	Total  int `json:"total"`
}

// Service turns domain events into queued messages, honouring each
// participant's preferences.
type Service struct {
	store     Store
	queue     Enqueuer
	templates Templates
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(store Store, q Enqueuer, templates Templates, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		queue:     q,
		templates: templates,
		log:       log.With().Str("component", "Notify").Logger(),
		now:       time.Now,
	}
}

// SetClock replaces the time source used for reminder cut-offs.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Templates() Templates {
	return s.templates
}

func (s *Service) enqueue(ctx context.Context, participantID int64, phone string, t models.MessageType, body string) error {
	_, err := s.queue.Enqueue(ctx, queue.Message{
		ParticipantID: participantID,
		PhoneNumber:   phone,
		Type:          t,
		Body:          body,
		Priority:      Priority(t),
	})
	return err
}

// NotifyAssignment queues the "you drew X" message for santaID.
func (s *Service) NotifyAssignment(ctx context.Context, santaID int64, recipientName string) error {
	p, err := s.store.GetParticipant(ctx, santaID)
	if err != nil {
		return fmt.Errorf("failed to load participant %d: %w", santaID, err)
	}
	if !p.Preferences.Allows(models.MessageAssignment) {
		s.log.Debug().Int64("participant_id", santaID).Msg("Assignment notification disabled by preferences")
		return nil
	}
	return s.enqueue(ctx, p.ID, p.PhoneNumber, models.MessageAssignment, s.templates.Assignment(recipientName))
}

// NotifyWishListUpdate tells ownerID's Santa that the wish list changed. It
// does nothing while nobody has drawn ownerID.
func (s *Service) NotifyWishListUpdate(ctx context.Context, ownerID int64) error {
	santa, err := s.store.SantaOf(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug().Int64("participant_id", ownerID).Msg("No Secret Santa assigned yet")
		return nil
	}
	if err != nil {
		return err
	}
	if !santa.Preferences.Allows(models.MessageWishlistUpdate) {
		return nil
	}
	owner, err := s.store.GetParticipant(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to load participant %d: %w", ownerID, err)
	}
	return s.enqueue(ctx, santa.ID, santa.PhoneNumber, models.MessageWishlistUpdate, s.templates.WishlistUpdate(owner.FirstName))
}

// broadcast queues one message per contact whose preferences allow t and
// who passes eligible.
func (s *Service) broadcast(ctx context.Context, t models.MessageType, eligible func(storage.ContactWithPreferences) bool, body func(storage.ContactWithPreferences) string) (*BulkResult, error) {
	contacts, err := s.store.Contacts(ctx)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{}
	for _, c := range contacts {
		if !c.Preferences.Allows(t) || (eligible != nil && !eligible(c)) {
			continue
		}
		result.Total++
		if err := s.enqueue(ctx, c.ParticipantID, c.PhoneNumber, t, body(c)); err != nil {
			s.log.Warn().Err(err).Int64("participant_id", c.ParticipantID).Str("type", string(t)).Msg("Failed to queue message")
			continue
		}
		result.Queued++
	}
	s.log.Info().Str("type", string(t)).Int("queued", result.Queued).Int("total", result.Total).Msg("Broadcast queued")
	return result, nil
}

func (s *Service) NotifyGameStart(ctx context.Context) (*BulkResult, error) {
	body := s.templates.GameStart()
	return s.broadcast(ctx, models.MessageGameStart, nil, func(storage.ContactWithPreferences) string { return body })
}

// NotifyWishListReminders nudges participants who drew more than a day ago
// and still have an empty wish list.
func (s *Service) NotifyWishListReminders(ctx context.Context) (*BulkResult, error) {
	cutoff := s.now().Add(-24 * time.Hour)
	body := s.templates.WishlistReminder()
	eligible := func(c storage.ContactWithPreferences) bool {
		if !c.HasPicked || c.PickedAt == nil || !c.PickedAt.Before(cutoff) {
			return false
		}
		n, err := s.store.CountItems(ctx, c.ParticipantID)
		if err != nil {
			s.log.Warn().Err(err).Int64("participant_id", c.ParticipantID).Msg("Failed to count wish list items")
			return false
		}
		return n == 0
	}
	return s.broadcast(ctx, models.MessageWishlistReminder, eligible, func(storage.ContactWithPreferences) string { return body })
}

func hasRecipient(c storage.ContactWithPreferences) bool {
	return c.HasPicked && c.RecipientName != ""
}

// NotifyShoppingReminder reminds every Santa that the exchange is
// daysRemaining days away.
func (s *Service) NotifyShoppingReminder(ctx context.Context, daysRemaining int) (*BulkResult, error) {
	if daysRemaining <= 0 {
		daysRemaining = 7
	}
	return s.broadcast(ctx, models.MessageShoppingReminder, hasRecipient, func(c storage.ContactWithPreferences) string {
		return s.templates.ShoppingReminder(c.RecipientName, daysRemaining)
	})
}

func (s *Service) NotifyExchangeDay(ctx context.Context) (*BulkResult, error) {
	return s.broadcast(ctx, models.MessageExchangeDay, hasRecipient, func(c storage.ContactWithPreferences) string {
		return s.templates.ExchangeDay(c.RecipientName)
	})
}

// SendTest queues a test message regardless of preferences.
func (s *Service) SendTest(ctx context.Context, participantID int64) (int64, error) {
	p, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return 0, err
	}
	return s.queue.Enqueue(ctx, queue.Message{
		ParticipantID: p.ID,
		PhoneNumber:   p.PhoneNumber,
		Type:          models.MessageTest,
		Body:          s.templates.Test(p.FirstName),
		Priority:      Priority(models.MessageTest),
	})
}

// Broadcast dispatches a bulk notification by type name.
func (s *Service) Broadcast(ctx context.Context, t models.MessageType, daysRemaining int) (*BulkResult, error) {
	switch t {
	case models.MessageGameStart:
		return s.NotifyGameStart(ctx)
	case models.MessageWishlistReminder:
		return s.NotifyWishListReminders(ctx)
	case models.MessageShoppingReminder:
		return s.NotifyShoppingReminder(ctx, daysRemaining)
	case models.MessageExchangeDay:
		return s.NotifyExchangeDay(ctx)
	default:
		return nil, fmt.Errorf("%w %q", ErrInvalidType, t)
	}
}
