// Package notify sends patient messages over WhatsApp and email.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/hackgods/clinic-scheduling/internal/config"
)

var ErrGatewayUnavailable = errors.New("whatsapp gateway unavailable")

// TextSender delivers a plain text message to a phone number.
type TextSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// WhatsAppSender posts Cloud-API style messages to a gateway. Calls go
// through a circuit breaker so a failing gateway is skipped quickly.
type WhatsAppSender struct {
	baseURL       string
	token         string
	phoneNumberID string
	httpClient    *http.Client
	breaker       *gobreaker.CircuitBreaker
}

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func NewWhatsAppSender(cfg config.WhatsAppConfig, client *http.Client) (*WhatsAppSender, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("WHATSAPP_TOKEN and WHATSAPP_PHONE_NUMBER_ID must be set")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "whatsapp",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return &WhatsAppSender{
		baseURL:       cfg.APIURL,
		token:         cfg.Token,
		phoneNumberID: cfg.PhoneNumberID,
		httpClient:    client,
		breaker:       breaker,
	}, nil
}

// SendText sends body to the number to and returns the gateway message id.
func (w *WhatsAppSender) SendText(ctx context.Context, to, body string) (string, error) {
	msg := textMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
	}
	msg.Text.Body = body

	id, err := w.breaker.Execute(func() (interface{}, error) {
		return w.send(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return "", err
	}
	return id.(string), nil
}

func (w *WhatsAppSender) send(ctx context.Context, msg textMessage) (string, error) {
	url := fmt.Sprintf("%s/%s/messages", w.baseURL, w.phoneNumberID)

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, string(body))
	}

	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Messages) == 0 {
		return "", fmt.Errorf("no message id in response")
	}
	return out.Messages[0].ID, nil
}
