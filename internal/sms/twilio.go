package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"secret-santa/internal/models"
	"secret-santa/internal/queue"
)

const DefaultBaseURL = "https://api.twilio.com"

type Config struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
	// StatusCallback is where Twilio posts delivery updates.
	StatusCallback string
	BaseURL        string
	Timeout        time.Duration
}

type messageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type errorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

type accountResponse struct {
	FriendlyName string `json:"friendly_name"`
	Status       string `json:"status"`
}

// Client sends SMS through the Twilio REST API.
type Client struct {
	http *resty.Client
	cfg  Config
	log  zerolog.Logger
}

var _ queue.Gateway = (*Client)(nil)

// NewClient returns a Twilio gateway. It fails with queue.ErrConfiguration
// when credentials or the sender number are missing.
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: twilio credentials not set", queue.ErrConfiguration)
	}
	if cfg.PhoneNumber == "" {
		return nil, fmt.Errorf("%w: TWILIO_PHONE_NUMBER not set", queue.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	// No retries: a resend after an ambiguous failure could deliver twice.
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetHeader("Accept", "application/json")

	return &Client{
		http: client,
		cfg:  cfg,
		log:  log.With().Str("component", "Twilio").Logger(),
	}, nil
}

// Send posts one message and returns Twilio's message SID.
func (c *Client) Send(ctx context.Context, to, body string) (*queue.Receipt, error) {
	form := map[string]string{
		"To":   to,
		"From": c.cfg.PhoneNumber,
		"Body": body,
	}
	if c.cfg.StatusCallback != "" {
		form["StatusCallback"] = c.cfg.StatusCallback
	}

	var (
		result  messageResponse
		apiErr  errorResponse
		urlPath = fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.cfg.AccountSID)
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&result).
		SetError(&apiErr).
		Post(urlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to call twilio: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("twilio error %d: %s (http %d)", apiErr.Code, apiErr.Message, resp.StatusCode())
	}
	if result.SID == "" {
		return nil, errors.New("twilio response has no message sid")
	}

	status, ok := ParseStatus(result.Status)
	if !ok || status.Terminal() {
		status = models.StatusSent
	}
	c.log.Debug().Str("message_id", result.SID).Str("status", result.Status).Msg("Message accepted")
	return &queue.Receipt{MessageID: result.SID, Status: status}, nil
}

// Validate checks the credentials by fetching the account.
func (c *Client) Validate(ctx context.Context) (string, error) {
	var (
		account accountResponse
		apiErr  errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&account).
		SetError(&apiErr).
		Get(fmt.Sprintf("/2010-04-01/Accounts/%s.json", c.cfg.AccountSID))
	if err != nil {
		return "", fmt.Errorf("failed to call twilio: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: twilio error %d: %s", queue.ErrConfiguration, apiErr.Code, apiErr.Message)
	}
	return account.FriendlyName, nil
}

// ParseStatus maps a Twilio MessageStatus onto a delivery status. Unknown
// values report false.
func ParseStatus(s string) (models.DeliveryStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accepted", "scheduled", "queued":
		return models.StatusQueued, true
	case "sending", "sent":
		return models.StatusSent, true
	case "delivered", "read":
		return models.StatusDelivered, true
	case "failed", "undelivered", "canceled":
		return models.StatusFailed, true
	default:
		return "", false
	}
}
