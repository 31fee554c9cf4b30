// Package client talks to a running pubsub-server over its REST API.
//
// A *Client satisfies broker.Source, so a broker.Consumer can poll a remote
// server exactly as it polls an embedded *broker.Broker.
package client

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coregx/broker"
	"github.com/coregx/broker/model"
)

// DefaultTimeout bounds one HTTP round trip when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// Client is a REST client for the broker server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client) error

// New creates a client for the server at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, broker.NewErrorWithCause(broker.ErrCodeConfiguration,
			fmt.Sprintf("invalid server URL %q", baseURL), err)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1",
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, broker.NewErrorWithCause(broker.ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	return c, nil
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		c.httpClient = hc
		return nil
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

type messageDTO struct {
	ID             int64      `json:"id"`
	SubscriptionID int64      `json:"subscriptionID"`
	Payload        string     `json:"payload"`
	Status         string     `json:"status"`
	DeliveryCount  int        `json:"deliveryCount"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	LeaseExpiresAt *time.Time `json:"leaseExpiresAt"`
}

// CreateTopic registers a topic.
func (c *Client) CreateTopic(ctx context.Context, name string) (*model.Topic, error) {
	var topic model.Topic
	if err := c.do(ctx, http.MethodPost, "/topics", map[string]string{"name": name}, &topic); err != nil {
		return nil, err
	}
	return &topic, nil
}

// ListTopics returns every topic.
func (c *Client) ListTopics(ctx context.Context) ([]model.Topic, error) {
	topics := []model.Topic{}
	if err := c.do(ctx, http.MethodGet, "/topics", nil, &topics); err != nil {
		return nil, err
	}
	return topics, nil
}

// CreateSubscription adds a subscription to a topic.
func (c *Client) CreateSubscription(ctx context.Context, topicID int64, name string) (*model.Subscription, error) {
	var sub model.Subscription
	path := "/topics/" + strconv.FormatInt(topicID, 10) + "/subscriptions"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"name": name}, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubscription loads one subscription.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID int64) (*model.Subscription, error) {
	var sub model.Subscription
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+strconv.FormatInt(subscriptionID, 10), nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Publish fans a payload out to the topic's subscriptions.
func (c *Client) Publish(ctx context.Context, req broker.PublishRequest) (*broker.PublishResult, error) {
	body := struct {
		Payload    string `json:"payload"`
		TTLSeconds int64  `json:"ttlSeconds,omitempty"`
	}{Payload: req.Payload, TTLSeconds: int64(req.TTL / time.Second)}

	var out struct {
		PublishedCount  int     `json:"publishedCount"`
		SubscriptionIDs []int64 `json:"subscriptionIDs"`
	}
	path := "/topics/" + strconv.FormatInt(req.TopicID, 10) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &broker.PublishResult{PublishedCount: out.PublishedCount, SubscriptionIDs: out.SubscriptionIDs}, nil
}

// Pull leases messages of a subscription. Lease durations are sent in whole
// seconds; anything shorter than a second uses the server default.
func (c *Client) Pull(ctx context.Context, req broker.PullRequest) ([]model.Message, error) {
	q := url.Values{}
	if req.MaxBatch > 0 {
		q.Set("maxBatch", strconv.Itoa(req.MaxBatch))
	}
	if secs := int64(req.LeaseDuration / time.Second); secs > 0 {
		q.Set("leaseSeconds", strconv.FormatInt(secs, 10))
	}

	path := "/subscriptions/" + strconv.FormatInt(req.SubscriptionID, 10) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var dtos []messageDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &dtos); err != nil {
		return nil, err
	}

	messages := make([]model.Message, 0, len(dtos))
	for _, d := range dtos {
		status, err := model.ParseMessageStatus(d.Status)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", d.ID, err)
		}
		msg := model.Message{
			ID:             d.ID,
			SubscriptionID: d.SubscriptionID,
			Payload:        d.Payload,
			Status:         status,
			ExpiresAt:      d.ExpiresAt,
			DeliveryCount:  d.DeliveryCount,
		}
		if d.LeaseExpiresAt != nil {
			msg.LeaseExpiresAt = sql.NullTime{Time: *d.LeaseExpiresAt, Valid: true}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Acknowledge finalizes leased messages.
func (c *Client) Acknowledge(ctx context.Context, req broker.AckRequest) (*broker.AckResult, error) {
	body := struct {
		MessageIDs []int64 `json:"messageIds"`
	}{MessageIDs: req.MessageIDs}

	var out struct {
		AckedCount int `json:"ackedCount"`
		Requested  int `json:"requested"`
	}
	path := "/subscriptions/" + strconv.FormatInt(req.SubscriptionID, 10) + "/ack"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &broker.AckResult{Acked: out.AckedCount, Requested: out.Requested}, nil
}

// do sends one request and decodes the envelope's data into out.
// Server-reported failures come back as *broker.Error with the server's code,
// so callers can use the broker.Is* predicates on them.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return fmt.Errorf("%s %s: decode response (status %d): %w", method, path, resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return responseError(resp.StatusCode, env)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return nil
}

func responseError(status int, env envelope) error {
	code := env.Code
	if code == "" {
		code = codeForStatus(status)
	}
	msg := env.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	return broker.NewError(code, msg)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return broker.ErrCodeNotFound
	case http.StatusConflict:
		return broker.ErrCodeNoSubscribers
	case http.StatusBadRequest:
		return broker.ErrCodeInvalidArgument
	case http.StatusServiceUnavailable:
		return broker.ErrCodeStoreUnavailable
	default:
		return "HTTP_" + strconv.Itoa(status)
	}
}

var _ broker.Source = (*Client)(nil)
