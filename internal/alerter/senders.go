package alerter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"specwatch/internal/config"
	"specwatch/internal/errorwrapper"
	"specwatch/internal/models"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sender delivers one alert payload to a destination. Transient failures are
// reported with errorwrapper.NewTransientDeliveryError so workers retry;
// permanent ones short-circuit to a failed record.
type Sender interface {
	Deliver(ctx context.Context, destination string, payload AlertPayload) error
}

// WebhookSender posts the full payload as JSON to the destination URL.
type WebhookSender struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewWebhookSender creates a webhook sender using cfg's delivery timeout.
func NewWebhookSender(cfg config.AlertingConfig, logger zerolog.Logger) *WebhookSender {
	return &WebhookSender{
		httpClient: &http.Client{Timeout: cfg.DeliveryTimeout()},
		logger:     logger.With().Str("component", "WebhookSender").Logger(),
	}
}

// Deliver posts the payload. A 4xx answer means the destination rejected the
// alert and retrying cannot help; everything else non-2xx is transient.
func (s *WebhookSender) Deliver(ctx context.Context, destination string, payload AlertPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errorwrapper.NewPermanentDeliveryError("failed to encode webhook payload", err)
	}
	return s.post(ctx, destination, body)
}

func (s *WebhookSender) post(ctx context.Context, destination string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return errorwrapper.NewPermanentDeliveryError("invalid webhook destination", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errorwrapper.NewTransientDeliveryError("webhook request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		s.logger.Debug().Str("destination", destination).Int("status_code", resp.StatusCode).Msg("Webhook delivered")
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errorwrapper.NewPermanentDeliveryError(
			errorwrapper.NewHTTPErrorWithURL(resp.StatusCode, "webhook rejected", destination).Error(), nil)
	default:
		return errorwrapper.NewTransientDeliveryError(
			errorwrapper.NewHTTPErrorWithURL(resp.StatusCode, "webhook upstream error", destination).Error(), nil)
	}
}

// ChatSender posts a Slack-compatible text message to an incoming webhook.
type ChatSender struct {
	webhook *WebhookSender
}

// NewChatSender creates a chat sender using cfg's delivery timeout.
func NewChatSender(cfg config.AlertingConfig, logger zerolog.Logger) *ChatSender {
	return &ChatSender{
		webhook: &WebhookSender{
			httpClient: &http.Client{Timeout: cfg.DeliveryTimeout()},
			logger:     logger.With().Str("component", "ChatSender").Logger(),
		},
	}
}

// Deliver posts {"text": ...} built from the payload's subject and text.
func (s *ChatSender) Deliver(ctx context.Context, destination string, payload AlertPayload) error {
	message := payload.Subject
	if payload.Text != "" {
		message += "\n" + payload.Text
	}
	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return errorwrapper.NewPermanentDeliveryError("failed to encode chat message", err)
	}
	return s.webhook.post(ctx, destination, body)
}

// EmailSender delivers alerts through SendGrid.
type EmailSender struct {
	client   *sendgrid.Client
	fromName string
	fromAddr string
	logger   zerolog.Logger
}

// NewEmailSender creates an email sender from cfg. The SendGrid API key must
// be configured for the email channel to be usable.
func NewEmailSender(cfg config.AlertingConfig, logger zerolog.Logger) (*EmailSender, error) {
	if cfg.SendGridAPIKey == "" {
		return nil, errorwrapper.NewValidationError("sendgrid_api_key", "", "SendGrid API key is required for email alerts")
	}
	if cfg.EmailFromAddress == "" {
		return nil, errorwrapper.NewValidationError("email_from_address", "", "sender address is required for email alerts")
	}
	return &EmailSender{
		client:   sendgrid.NewSendClient(cfg.SendGridAPIKey),
		fromName: cfg.EmailFromName,
		fromAddr: cfg.EmailFromAddress,
		logger:   logger.With().Str("component", "EmailSender").Logger(),
	}, nil
}

// Deliver sends the payload's subject and HTML body to the destination
// address.
func (s *EmailSender) Deliver(ctx context.Context, destination string, payload AlertPayload) error {
	from := mail.NewEmail(s.fromName, s.fromAddr)
	to := mail.NewEmail("", destination)
	message := mail.NewSingleEmail(from, payload.Subject, to, payload.Text, payload.HTMLBody)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return errorwrapper.NewTransientDeliveryError("sendgrid request failed", err)
	}
	switch {
	case response.StatusCode >= 200 && response.StatusCode < 300:
		s.logger.Debug().Str("destination", destination).Int("status_code", response.StatusCode).Msg("Email delivered")
		return nil
	case response.StatusCode >= 400 && response.StatusCode < 500:
		return errorwrapper.NewPermanentDeliveryError("sendgrid rejected message: "+response.Body, nil)
	default:
		return errorwrapper.NewTransientDeliveryError("sendgrid upstream error: "+response.Body, nil)
	}
}

// SenderRegistry maps channels to senders. Channels without a configured
// sender fail permanently at delivery time.
type SenderRegistry map[models.AlertChannel]Sender
