package handler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"secret-santa/internal/models"
	"secret-santa/internal/sms"
)

// StatusApplier reconciles a provider delivery status.
type StatusApplier interface {
	HandleStatus(ctx context.Context, providerID string, status models.DeliveryStatus, errMsg string) (bool, error)
}

// StatusHandler feeds Twilio callbacks and WhatsApp receipts into the
// delivery log.
type StatusHandler struct {
	queue StatusApplier
	log   zerolog.Logger
}

func NewStatusHandler(queue StatusApplier, log zerolog.Logger) *StatusHandler {
	return &StatusHandler{
		queue: queue,
		log:   log.With().Str("component", "StatusHandler").Logger(),
	}
}

// HandleTwilio applies a Twilio MessageStatus. Statuses that carry no new
// information (queued, accepted, unknown values) are dropped.
func (h *StatusHandler) HandleTwilio(ctx context.Context, messageSID, messageStatus, errorMessage string) (bool, error) {
	h.log.Debug().Str("message_id", messageSID).Str("status", messageStatus).Msg("Twilio status callback")

	status, ok := sms.ParseStatus(messageStatus)
	if !ok {
		h.log.Warn().Str("message_id", messageSID).Str("status", messageStatus).Msg("Unknown Twilio status")
		return false, nil
	}
	if status == models.StatusQueued {
		return false, nil
	}
	if status != models.StatusFailed {
		errorMessage = ""
	}

	changed, err := h.queue.HandleStatus(ctx, messageSID, status, errorMessage)
	if err != nil {
		return false, fmt.Errorf("failed to apply delivery status: %w", err)
	}
	return changed, nil
}

// HandleReceipt matches whatsapp.ReceiptHandler. Errors are logged, there is
// nobody to return them to.
func (h *StatusHandler) HandleReceipt(ctx context.Context, messageID string, status models.DeliveryStatus, errMsg string) {
	if _, err := h.queue.HandleStatus(ctx, messageID, status, errMsg); err != nil {
		h.log.Error().Err(err).Str("message_id", messageID).Msg("Failed to apply WhatsApp receipt")
	}
}
