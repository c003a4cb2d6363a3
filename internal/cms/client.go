package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/platform/observability"
)

const (
	tracerName     = "finitefield.org/storefront/internal/cms"
	defaultTimeout = 5 * time.Second
	maxErrorBody   = 4 << 10
)

// Client reads objects from a Cosmic-style bucket API.
type Client struct {
	baseURL string
	bucket  string
	readKey string
	http    *http.Client
	logger  *zap.Logger
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used for upstream diagnostics.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a Client for bucket at baseURL.
func NewClient(baseURL, bucket, readKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		bucket:  strings.TrimSpace(bucket),
		readKey: strings.TrimSpace(readKey),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type findResponse struct {
	Objects []Object `json:"objects"`
	Total   int      `json:"total"`
}

// Find implements Store.
func (c *Client) Find(ctx context.Context, q Query) (objects []Object, err error) {
	ctx, span := observability.StartClientSpan(ctx, tracerName, "cms.find",
		attribute.String("cms.type", q.Type.String()),
		attribute.Int("cms.limit", q.Limit),
	)
	defer func() {
		if IsNotFound(err) {
			observability.EndSpan(span, nil)
			return
		}
		observability.EndSpan(span, err)
	}()

	req, err := c.newRequest(ctx, q)
	if err != nil {
		return nil, &StoreError{Op: "find " + q.Type.String(), Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &StoreError{Op: "find " + q.Type.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, ErrNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("cms: upstream error",
			zap.String("type", q.Type.String()),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil, &StoreError{Op: "find " + q.Type.String(), Status: resp.StatusCode}
	}

	var payload findResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &StoreError{Op: "decode " + q.Type.String(), Err: err}
	}
	if len(payload.Objects) == 0 {
		return nil, ErrNotFound
	}
	return payload.Objects, nil
}

// FindOne implements Store.
func (c *Client) FindOne(ctx context.Context, q Query) (Object, error) {
	q.Limit = 1
	objects, err := c.Find(ctx, q)
	if err != nil {
		return Object{}, err
	}
	return objects[0], nil
}

func (c *Client) newRequest(ctx context.Context, q Query) (*http.Request, error) {
	if c.baseURL == "" || c.bucket == "" {
		return nil, errors.New("client not configured")
	}
	if q.Type == "" {
		return nil, errors.New("query type is required")
	}

	endpoint, err := url.JoinPath(c.baseURL, "buckets", c.bucket, "objects")
	if err != nil {
		return nil, fmt.Errorf("join path: %w", err)
	}
	doc, err := json.Marshal(q.Document())
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	values := url.Values{}
	values.Set("query", string(doc))
	values.Set("read_key", c.readKey)
	if len(q.Props) > 0 {
		values.Set("props", strings.Join(q.Props, ","))
	}
	if q.Depth > 0 {
		values.Set("depth", strconv.Itoa(q.Depth))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Sort != "" {
		values.Set("sort", q.Sort)
	}
	req.URL.RawQuery = values.Encode()
	req.Header.Set("Accept", "application/json")
	return req, nil
}
