package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"secret-santa/internal/models"
)

const (
	replyStopped = "You will no longer receive Secret Santa messages. Reply START to turn them back on."
	replyStarted = "Secret Santa messages are back on. Reply STOP to turn them off."
	replyHelp    = "Secret Santa: reply STOP to stop messages, START to resume them."
)

type ParticipantStore interface {
	ListParticipants(ctx context.Context) ([]models.Participant, error)
	UpdatePreferences(ctx context.Context, id int64, p models.Preferences) error
}

// PendingCanceller drops unsent messages for a participant.
type PendingCanceller interface {
	CancelPending(ctx context.Context, participantID int64, msgType models.MessageType) (int64, error)
}

// InboundHandler answers keyword replies from participants.
type InboundHandler struct {
	store   ParticipantStore
	pending PendingCanceller
	// normalize turns a stored phone number into the sender format.
	normalize func(string) string
	log       zerolog.Logger
}

func NewInboundHandler(store ParticipantStore, pending PendingCanceller, normalize func(string) string, log zerolog.Logger) *InboundHandler {
	if normalize == nil {
		normalize = digitsOnly
	}
	return &InboundHandler{
		store:     store,
		pending:   pending,
		normalize: normalize,
		log:       log.With().Str("component", "Inbound").Logger(),
	}
}

// HandleMessage processes an incoming text and returns the reply to send, if
// any. Messages from unknown numbers and non-keyword texts are ignored.
func (h *InboundHandler) HandleMessage(ctx context.Context, phone, text string) (string, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", nil
	}

	var enable bool
	switch {
	case matchesAny(text, "stop", "unsubscribe", "cancel", "end", "quit"):
		enable = false
	case matchesAny(text, "start", "subscribe", "unstop"):
		enable = true
	case matchesAny(text, "help", "info"):
		return replyHelp, nil
	default:
		return "", nil
	}

	p, err := h.findByPhone(ctx, phone)
	if err != nil {
		return "", err
	}
	if p == nil {
		h.log.Debug().Str("sender", phone).Msg("Reply from unknown number")
		return "", nil
	}

	prefs := p.Preferences
	prefs.SMSEnabled = enable
	if err := h.store.UpdatePreferences(ctx, p.ID, prefs); err != nil {
		return "", fmt.Errorf("failed to update preferences: %w", err)
	}

	if !enable {
		n, err := h.pending.CancelPending(ctx, p.ID, "")
		if err != nil {
			h.log.Warn().Err(err).Int64("participant_id", p.ID).Msg("Failed to cancel pending messages")
		}
		h.log.Info().Int64("participant_id", p.ID).Int64("cancelled", n).Msg("Participant opted out")
		return replyStopped, nil
	}
	h.log.Info().Int64("participant_id", p.ID).Msg("Participant opted in")
	return replyStarted, nil
}

func (h *InboundHandler) findByPhone(ctx context.Context, phone string) (*models.Participant, error) {
	want := digitsOnly(phone)
	participants, err := h.store.ListParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	for i := range participants {
		if h.normalize(participants[i].PhoneNumber) == want {
			return &participants[i], nil
		}
	}
	return nil, nil
}

func matchesAny(text string, keywords ...string) bool {
	for _, keyword := range keywords {
		if text == keyword {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
