package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/platform/observability"
)

const (
	tracerName        = "finitefield.org/storefront/internal/mail"
	defaultTimeout    = 10 * time.Second
	idempotencyHeader = "Idempotency-Key"
	maxErrorBody      = 2 << 10
)

// Message is one outbound email.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

// Sender dispatches a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// APIError reports a non-2xx answer from the email API.
type APIError struct {
	Status  int
	Name    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mail: api status %d", e.Status)
	}
	return fmt.Sprintf("mail: api status %d: %s", e.Status, e.Message)
}

// ErrInvalidMessage is returned for messages missing a sender, recipient or subject.
var ErrInvalidMessage = errors.New("mail: message requires from, to and subject")

// ResendClient sends email through a Resend-style HTTP API.
type ResendClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	newKey  func() string
}

// ResendOption customises a ResendClient.
type ResendOption func(*ResendClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ResendOption {
	return func(c *ResendClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) ResendOption {
	return func(c *ResendClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewResendClient constructs a client for the API at baseURL.
func NewResendClient(baseURL, apiKey string, opts ...ResendOption) *ResendClient {
	c := &ResendClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{Timeout: defaultTimeout},
		newKey:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Send implements Sender. Each call carries a fresh idempotency key.
func (c *ResendClient) Send(ctx context.Context, msg Message) (id string, err error) {
	if err := msg.validate(); err != nil {
		return "", err
	}
	ctx, span := observability.StartClientSpan(ctx, tracerName, "mail.send",
		attribute.Int("mail.recipients", len(msg.To)),
	)
	defer func() { observability.EndSpan(span, err) }()

	endpoint, err := url.JoinPath(c.baseURL, "emails")
	if err != nil {
		return "", fmt.Errorf("mail: join path: %w", err)
	}
	payload, err := json.Marshal(sendPayload{From: msg.From, To: msg.To, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		return "", fmt.Errorf("mail: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("mail: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set(idempotencyHeader, c.newKey())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("mail: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var decoded errorResponse
		if json.Unmarshal(body, &decoded) == nil {
			apiErr.Name, apiErr.Message = decoded.Name, decoded.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return "", apiErr
	}

	var decoded sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("mail: decode response: %w", err)
	}
	return decoded.ID, nil
}

func (m Message) validate() error {
	if strings.TrimSpace(m.From) == "" || len(m.To) == 0 || strings.TrimSpace(m.Subject) == "" {
		return ErrInvalidMessage
	}
	for _, to := range m.To {
		if strings.TrimSpace(to) == "" {
			return ErrInvalidMessage
		}
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	Logger *zap.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, msg Message) (string, error) {
	if err := msg.validate(); err != nil {
		return "", err
	}
	id := ulid.Make().String()
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("mail: message captured",
		zap.String("id", id),
		zap.String("from", msg.From),
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return id, nil
}
