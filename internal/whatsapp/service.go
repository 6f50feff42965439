package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"secret-santa/internal/models"
	"secret-santa/internal/queue"
)

var ErrNotConnected = errors.New("whatsapp client is not connected")

// MessageHandler handles an incoming text. A non-empty reply is sent back to
// the sender.
type MessageHandler func(ctx context.Context, phone, text string) (reply string, err error)

// ReceiptHandler receives delivery updates for messages sent by Send.
type ReceiptHandler func(ctx context.Context, messageID string, status models.DeliveryStatus, errMsg string)

type Config struct {
	DataDir     string
	CountryCode string
}

// Service is a queue.Gateway that delivers through a linked WhatsApp device.
type Service struct {
	client *whatsmeow.Client
	cfg    *Config
	log    zerolog.Logger

	mu             sync.RWMutex
	messageHandler MessageHandler
	receiptHandler ReceiptHandler
}

var _ queue.Gateway = (*Service)(nil)

// NewService opens the device store under cfg.DataDir and creates the client.
func NewService(ctx context.Context, cfg *Config, log zerolog.Logger) (*Service, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(cfg.DataDir, "whatsmeow.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, nil)
	service := newService(cfg, log)
	service.client = client
	client.AddEventHandler(service.eventHandler)

	return service, nil
}

func newService(cfg *Config, log zerolog.Logger) *Service {
	return &Service{
		cfg: cfg,
		log: log.With().Str("component", "WhatsApp").Logger(),
	}
}

// NormalizePhoneNumber strips formatting and returns the number as digits
// with a country code. A national number with a leading trunk 0 gets
// countryCode in place of the 0.
func NormalizePhoneNumber(phoneNumber, countryCode string) string {
	var b strings.Builder
	for _, r := range phoneNumber {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if strings.HasPrefix(digits, "00") {
		return digits[2:]
	}
	if countryCode == "" {
		return digits
	}
	if strings.HasPrefix(digits, "0") {
		return countryCode + digits[1:]
	}
	// +972 05x... style: drop the trunk 0 after the country code.
	if countryCode != "1" && strings.HasPrefix(digits, countryCode+"0") {
		return countryCode + digits[len(countryCode)+1:]
	}
	return digits
}

// Connect connects to WhatsApp, printing a pairing QR code when the device
// is not linked yet.
func (s *Service) Connect(ctx context.Context) error {
	if s.client.Store.ID != nil {
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	qrChan, _ := s.client.GetQRChannel(ctx)
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			s.log.Info().Str("event", evt.Event).Msg("Login event")
			continue
		}
		q, err := qrcode.New(evt.Code, qrcode.Medium)
		if err != nil {
			fmt.Printf("QR Code: %s\n", evt.Code)
			fmt.Println("Please scan this QR code with WhatsApp to link the Secret Santa sender.")
			continue
		}
		fmt.Println("\n" + q.ToSmallString(false))
		fmt.Println("Scan the QR code above with WhatsApp:")
		fmt.Println("   1. Open WhatsApp on the sending phone")
		fmt.Println("   2. Go to Settings > Linked Devices")
		fmt.Println("   3. Tap 'Link a Device'")
		fmt.Println()
	}
	return nil
}

func (s *Service) Disconnect() {
	s.client.Disconnect()
}

// Send delivers a text message. The returned id is matched against later
// delivery receipts.
func (s *Service) Send(ctx context.Context, to, body string) (*queue.Receipt, error) {
	if s.client == nil || !s.client.IsConnected() {
		return nil, ErrNotConnected
	}
	phoneNumber := NormalizePhoneNumber(to, s.cfg.CountryCode)

	resp, err := s.client.IsOnWhatsApp(ctx, []string{"+" + phoneNumber})
	if err != nil {
		return nil, fmt.Errorf("failed to verify number on WhatsApp: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return nil, fmt.Errorf("number %s is not registered on WhatsApp", phoneNumber)
	}
	jid := resp[0].JID

	s.log.Debug().Str("jid", jid.String()).Str("phone", phoneNumber).Msg("Attempting to send message")

	sent, err := s.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: &body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send message to %s: %w", jid.String(), err)
	}
	return &queue.Receipt{MessageID: sent.ID, Status: models.StatusSent}, nil
}

// SetMessageHandler sets the handler for incoming messages.
func (s *Service) SetMessageHandler(handler MessageHandler) {
	s.mu.Lock()
	s.messageHandler = handler
	s.mu.Unlock()
}

// SetReceiptHandler sets the handler for delivery receipts.
func (s *Service) SetReceiptHandler(handler ReceiptHandler) {
	s.mu.Lock()
	s.receiptHandler = handler
	s.mu.Unlock()
}

func (s *Service) eventHandler(evt interface{}) {
	if evt == nil {
		return
	}
	switch evt := evt.(type) {
	case *events.Message:
		s.handleMessage(evt)
	case *events.Receipt:
		s.handleReceipt(evt)
	case *events.Connected:
		s.log.Info().Msg("Connected to WhatsApp")
	case *events.Disconnected:
		s.log.Info().Msg("Disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Warn().Msg("Logged out from WhatsApp")
	}
}

// receiptStatus maps a receipt type onto a delivery status. Receipts that say
// nothing about delivery report false.
func receiptStatus(t types.ReceiptType) (models.DeliveryStatus, bool) {
	switch t {
	case types.ReceiptTypeDelivered, types.ReceiptTypeRead, types.ReceiptTypePlayed:
		return models.StatusDelivered, true
	case types.ReceiptTypeServerError:
		return models.StatusFailed, true
	default:
		return "", false
	}
}

func (s *Service) handleReceipt(evt *events.Receipt) {
	if evt.IsFromMe {
		return
	}
	status, ok := receiptStatus(evt.Type)
	if !ok {
		return
	}
	s.mu.RLock()
	handler := s.receiptHandler
	s.mu.RUnlock()
	if handler == nil {
		return
	}

	var errMsg string
	if status == models.StatusFailed {
		errMsg = "whatsapp server error"
	}
	ctx := context.Background()
	for _, id := range evt.MessageIDs {
		handler(ctx, id, status, errMsg)
	}
}

func (s *Service) handleMessage(msg *events.Message) {
	if msg.Info.IsFromMe || msg.Message == nil {
		return
	}
	text := msg.Message.GetConversation()
	if text == "" {
		text = msg.Message.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		return
	}

	s.mu.RLock()
	handler := s.messageHandler
	s.mu.RUnlock()

	phoneNumber := msg.Info.Sender.User
	if handler == nil {
		s.log.Info().Str("sender", phoneNumber).Msg("Received message")
		return
	}

	ctx := context.Background()
	reply, err := handler(ctx, phoneNumber, text)
	if err != nil {
		s.log.Error().Err(err).Str("sender", phoneNumber).Msg("Error handling message")
		return
	}
	if reply == "" || s.client == nil {
		return
	}
	if _, err := s.client.SendMessage(ctx, msg.Info.Chat, &waE2E.Message{Conversation: &reply}); err != nil {
		s.log.Warn().Err(err).Str("sender", phoneNumber).Msg("Failed to send reply")
	}
}
