package whatsapp

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"secret-santa/internal/models"
)

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		in, code, want string
	}{
		{"+1 (555) 123-4567", "1", "15551234567"},
		{"15551234567", "1", "15551234567"},
		{"0521234567", "972", "972521234567"},
		{"+972 0521234567", "972", "972521234567"},
		{"0044 20 7946 0958", "1", "442079460958"},
		{"07946 0958", "", "079460958"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhoneNumber(tt.in, tt.code), tt.in)
	}
}

func TestReceiptStatus(t *testing.T) {
	st, ok := receiptStatus(types.ReceiptTypeDelivered)
	assert.True(t, ok)
	assert.Equal(t, models.StatusDelivered, st)

	st, ok = receiptStatus(types.ReceiptTypeRead)
	assert.True(t, ok)
	assert.Equal(t, models.StatusDelivered, st)

	st, ok = receiptStatus(types.ReceiptTypeServerError)
	assert.True(t, ok)
	assert.Equal(t, models.StatusFailed, st)

	_, ok = receiptStatus(types.ReceiptTypeRetry)
	assert.False(t, ok)
}

type receiptCall struct {
	id     string
	status models.DeliveryStatus
	errMsg string
}

func TestHandleReceipt(t *testing.T) {
	s := newService(&Config{CountryCode: "1"}, zerolog.Nop())

	var calls []receiptCall
	s.SetReceiptHandler(func(_ context.Context, id string, status models.DeliveryStatus, errMsg string) {
		calls = append(calls, receiptCall{id, status, errMsg})
	})

	s.eventHandler(&events.Receipt{
		MessageIDs: []types.MessageID{"A1", "A2"},
		Type:       types.ReceiptTypeDelivered,
	})
	s.eventHandler(&events.Receipt{
		MessageIDs: []types.MessageID{"B1"},
		Type:       types.ReceiptTypeServerError,
	})
	// Retries carry no delivery information.
	s.eventHandler(&events.Receipt{
		MessageIDs: []types.MessageID{"C1"},
		Type:       types.ReceiptTypeRetry,
	})
	// Our own read receipts on other chats are ignored.
	own := &events.Receipt{MessageIDs: []types.MessageID{"D1"}, Type: types.ReceiptTypeRead}
	own.IsFromMe = true
	s.eventHandler(own)

	assert.Equal(t, []receiptCall{
		{"A1", models.StatusDelivered, ""},
		{"A2", models.StatusDelivered, ""},
		{"B1", models.StatusFailed, "whatsapp server error"},
	}, calls)
}

func TestHandleMessage(t *testing.T) {
	s := newService(&Config{}, zerolog.Nop())

	var gotPhone, gotText string
	s.SetMessageHandler(func(_ context.Context, phone, text string) (string, error) {
		gotPhone, gotText = phone, text
		return "", nil
	})

	text := "STOP"
	msg := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Sender: types.NewJID("15551234567", types.DefaultUserServer),
			},
		},
		Message: &waE2E.Message{Conversation: &text},
	}
	s.eventHandler(msg)
	assert.Equal(t, "15551234567", gotPhone)
	assert.Equal(t, "STOP", gotText)

	gotText = ""
	msg.Info.IsFromMe = true
	s.eventHandler(msg)
	assert.Empty(t, gotText)
}

func TestSendRequiresConnection(t *testing.T) {
	s := newService(&Config{}, zerolog.Nop())
	_, err := s.Send(context.Background(), "+15551234567", "hi")
	assert.ErrorIs(t, err, ErrNotConnected)
}
