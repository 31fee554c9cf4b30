// Package api provides HTTP handlers for the broker server REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coregx/broker"
	"github.com/coregx/broker/model"
)

// MaxDurationSeconds is the largest ttlSeconds or leaseSeconds accepted;
// anything above overflows time.Duration.
const MaxDurationSeconds = int64(math.MaxInt64 / time.Second)

// Service is the part of *broker.Broker the handlers use.
type Service interface {
	CreateTopic(ctx context.Context, name string) (*model.Topic, error)
	GetTopic(ctx context.Context, topicID int64) (*model.Topic, error)
	ListTopics(ctx context.Context) ([]model.Topic, error)
	CreateSubscription(ctx context.Context, topicID int64, name string) (*model.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID int64) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context, topicID int64) ([]model.Subscription, error)
	Publish(ctx context.Context, req broker.PublishRequest) (*broker.PublishResult, error)
	Pull(ctx context.Context, req broker.PullRequest) ([]model.Message, error)
	Acknowledge(ctx context.Context, req broker.AckRequest) (*broker.AckResult, error)
	Ping(ctx context.Context) error
}

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     Service
	logger  broker.Logger
	version string
}

// NewHandler creates a new API handler.
func NewHandler(svc Service, logger broker.Logger, version string) *Handler {
	if logger == nil {
		logger = &broker.NoopLogger{}
	}
	return &Handler{svc: svc, logger: logger, version: version}
}

// CreateTopicRequest is the body of POST /topics.
type CreateTopicRequest struct {
	Name string `json:"name"`
}

// CreateSubscriptionRequest is the body of POST /topics/:id/subscriptions.
type CreateSubscriptionRequest struct {
	Name string `json:"name"`
}

// PublishRequest is the body of POST /topics/:id/messages.
type PublishRequest struct {
	Payload    string `json:"payload"`
	TTLSeconds int64  `json:"ttlSeconds,omitempty"` // 0 = server default
}

// PublishResponse reports the fanout of one publish.
type PublishResponse struct {
	PublishedCount  int     `json:"publishedCount"`
	SubscriptionIDs []int64 `json:"subscriptionIDs"`
}

// AckRequest is the body of POST /subscriptions/:id/ack. A bare JSON array
// of IDs is accepted as well, which is what POST /subscriptions/:id/messages
// clients send.
type AckRequest struct {
	MessageIDs []int64 `json:"messageIds"`
}

// UnmarshalJSON accepts {"messageIds":[...]} or [...].
func (r *AckRequest) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &r.MessageIDs)
	}

	type plain AckRequest
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*r = AckRequest(p)
	return nil
}

// AckResponse reports how many IDs were finalized.
type AckResponse struct {
	AckedCount int `json:"ackedCount"`
	Requested  int `json:"requested"`
}

// MessageResponse is one leased message as returned by a pull.
type MessageResponse struct {
	ID             int64      `json:"id"`
	SubscriptionID int64      `json:"subscriptionID"`
	Payload        string     `json:"payload"`
	Status         string     `json:"status"`
	DeliveryCount  int        `json:"deliveryCount"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	LeaseExpiresAt *time.Time `json:"leaseExpiresAt,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandleCreateTopic handles POST /api/v1/topics
// @Summary Create a topic
// @Tags Topics
// @Accept json
// @Produce json
// @Param request body CreateTopicRequest true "Topic"
// @Success 201 {object} SuccessResponse "Created"
// @Failure 400 {object} ErrorResponse "Invalid name"
// @Router /topics [post]
func (h *Handler) HandleCreateTopic(c *gin.Context) {
	var req CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	topic, err := h.svc.CreateTopic(c.Request.Context(), req.Name)
	if err != nil {
		h.respondBrokerError(c, "Failed to create topic", err)
		return
	}

	c.Header("Location", "/api/v1/topics/"+strconv.FormatInt(topic.ID, 10))
	h.respondSuccess(c, http.StatusCreated, topic, "Topic created successfully")
}

// HandleListTopics handles GET /api/v1/topics
// @Summary List topics
// @Tags Topics
// @Produce json
// @Success 200 {object} SuccessResponse "Topics"
// @Router /topics [get]
func (h *Handler) HandleListTopics(c *gin.Context) {
	topics, err := h.svc.ListTopics(c.Request.Context())
	if err != nil {
		h.respondBrokerError(c, "Failed to list topics", err)
		return
	}
	h.respondSuccess(c, http.StatusOK, topics, "")
}

// HandleGetTopic handles GET /api/v1/topics/:id
// @Summary Get a topic
// @Tags Topics
// @Produce json
// @Param id path int true "Topic ID"
// @Success 200 {object} SuccessResponse "Topic"
// @Failure 404 {object} ErrorResponse "Unknown topic"
// @Router /topics/{id} [get]
func (h *Handler) HandleGetTopic(c *gin.Context) {
	topicID, ok := h.pathID(c, "Invalid topic ID")
	if !ok {
		return
	}

	topic, err := h.svc.GetTopic(c.Request.Context(), topicID)
	if err != nil {
		h.respondBrokerError(c, "Failed to load topic", err)
		return
	}
	h.respondSuccess(c, http.StatusOK, topic, "")
}

// HandleCreateSubscription handles POST /api/v1/topics/:id/subscriptions
// @Summary Subscribe to a topic
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path int true "Topic ID"
// @Param request body CreateSubscriptionRequest false "Subscription"
// @Success 201 {object} SuccessResponse "Created"
// @Failure 404 {object} ErrorResponse "Unknown topic"
// @Router /topics/{id}/subscriptions [post]
func (h *Handler) HandleCreateSubscription(c *gin.Context) {
	topicID, ok := h.pathID(c, "Invalid topic ID")
	if !ok {
		return
	}

	var req CreateSubscriptionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
			return
		}
	}

	sub, err := h.svc.CreateSubscription(c.Request.Context(), topicID, req.Name)
	if err != nil {
		h.respondBrokerError(c, "Failed to create subscription", err)
		return
	}

	c.Header("Location", "/api/v1/subscriptions/"+strconv.FormatInt(sub.ID, 10))
	h.respondSuccess(c, http.StatusCreated, sub, "Subscription created successfully")
}

// HandleListSubscriptions handles GET /api/v1/topics/:id/subscriptions
// @Summary List subscriptions of a topic
// @Tags Subscriptions
// @Produce json
// @Param id path int true "Topic ID"
// @Success 200 {object} SuccessResponse "Subscriptions"
// @Failure 404 {object} ErrorResponse "Unknown topic"
// @Router /topics/{id}/subscriptions [get]
func (h *Handler) HandleListSubscriptions(c *gin.Context) {
	topicID, ok := h.pathID(c, "Invalid topic ID")
	if !ok {
		return
	}

	subs, err := h.svc.ListSubscriptions(c.Request.Context(), topicID)
	if err != nil {
		h.respondBrokerError(c, "Failed to list subscriptions", err)
		return
	}
	h.respondSuccess(c, http.StatusOK, subs, "")
}

// HandleGetSubscription handles GET /api/v1/subscriptions/:id
// @Summary Get a subscription
// @Tags Subscriptions
// @Produce json
// @Param id path int true "Subscription ID"
// @Success 200 {object} SuccessResponse "Subscription"
// @Failure 404 {object} ErrorResponse "Unknown subscription"
// @Router /subscriptions/{id} [get]
func (h *Handler) HandleGetSubscription(c *gin.Context) {
	subID, ok := h.pathID(c, "Invalid subscription ID")
	if !ok {
		return
	}

	sub, err := h.svc.GetSubscription(c.Request.Context(), subID)
	if err != nil {
		h.respondBrokerError(c, "Failed to load subscription", err)
		return
	}
	h.respondSuccess(c, http.StatusOK, sub, "")
}

// HandlePublish handles POST /api/v1/topics/:id/messages
// @Summary Publish a message
// @Description Creates one NEW copy per subscription the topic has now.
// @Tags Messages
// @Accept json
// @Produce json
// @Param id path int true "Topic ID"
// @Param request body PublishRequest true "Message"
// @Success 200 {object} SuccessResponse{data=PublishResponse} "Published"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 404 {object} ErrorResponse "Unknown topic"
// @Failure 409 {object} ErrorResponse "No subscriptions"
// @Router /topics/{id}/messages [post]
func (h *Handler) HandlePublish(c *gin.Context) {
	topicID, ok := h.pathID(c, "Invalid topic ID")
	if !ok {
		return
	}

	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	ttl, ok := secondsToDuration(req.TTLSeconds)
	if !ok {
		h.respondError(c, http.StatusBadRequest,
			fmt.Sprintf("ttlSeconds must be in 0..%d", MaxDurationSeconds), broker.ErrCodeInvalidArgument)
		return
	}

	result, err := h.svc.Publish(c.Request.Context(), broker.PublishRequest{
		TopicID: topicID,
		Payload: req.Payload,
		TTL:     ttl,
	})
	if err != nil {
		h.respondBrokerError(c, "Failed to publish message", err)
		return
	}

	h.respondSuccess(c, http.StatusOK, PublishResponse{
		PublishedCount:  result.PublishedCount,
		SubscriptionIDs: result.SubscriptionIDs,
	}, "Message has been published")
}

// HandlePull handles GET /api/v1/subscriptions/:id/messages
//
// Query parameters: maxBatch (default server-side) and leaseSeconds.
// An empty list is a normal answer, not an error.
//
// @Summary Pull messages
// @Description Leases up to maxBatch NEW messages, oldest first. An empty list is a normal answer.
// @Tags Messages
// @Produce json
// @Param id path int true "Subscription ID"
// @Param maxBatch query int false "Batch size"
// @Param leaseSeconds query int false "Lease in seconds"
// @Success 200 {object} SuccessResponse{data=[]MessageResponse} "Leased messages"
// @Failure 400 {object} ErrorResponse "Invalid query"
// @Failure 404 {object} ErrorResponse "Unknown subscription"
// @Router /subscriptions/{id}/messages [get]
func (h *Handler) HandlePull(c *gin.Context) {
	subID, ok := h.pathID(c, "Invalid subscription ID")
	if !ok {
		return
	}

	maxBatch, err := queryInt(c, "maxBatch")
	if err != nil || maxBatch < 0 {
		h.respondError(c, http.StatusBadRequest, "Invalid maxBatch", broker.ErrCodeInvalidArgument)
		return
	}
	leaseSeconds, err := queryInt(c, "leaseSeconds")
	lease, ok := secondsToDuration(leaseSeconds)
	if err != nil || !ok {
		h.respondError(c, http.StatusBadRequest,
			fmt.Sprintf("leaseSeconds must be in 0..%d", MaxDurationSeconds), broker.ErrCodeInvalidArgument)
		return
	}

	messages, err := h.svc.Pull(c.Request.Context(), broker.PullRequest{
		SubscriptionID: subID,
		MaxBatch:       int(maxBatch),
		LeaseDuration:  lease,
	})
	if err != nil {
		h.respondBrokerError(c, "Failed to pull messages", err)
		return
	}

	out := make([]MessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, toMessageResponse(&messages[i]))
	}
	h.respondSuccess(c, http.StatusOK, out, "")
}

// HandleAcknowledge handles POST /api/v1/subscriptions/:id/ack
// and POST /api/v1/subscriptions/:id/messages.
//
// @Summary Acknowledge messages
// @Description Moves each leased message to ACKED. Unknown, foreign and repeated IDs are skipped.
// @Tags Messages
// @Accept json
// @Produce json
// @Param id path int true "Subscription ID"
// @Param request body AckRequest true "Message IDs"
// @Success 200 {object} SuccessResponse{data=AckResponse} "Acknowledged"
// @Failure 400 {object} ErrorResponse "No IDs"
// @Failure 404 {object} ErrorResponse "Unknown subscription"
// @Router /subscriptions/{id}/ack [post]
// @Router /subscriptions/{id}/messages [post]
func (h *Handler) HandleAcknowledge(c *gin.Context) {
	subID, ok := h.pathID(c, "Invalid subscription ID")
	if !ok {
		return
	}

	var req AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	result, err := h.svc.Acknowledge(c.Request.Context(), broker.AckRequest{
		SubscriptionID: subID,
		MessageIDs:     req.MessageIDs,
	})
	if err != nil {
		h.respondBrokerError(c, "Failed to acknowledge messages", err)
		return
	}

	h.respondSuccess(c, http.StatusOK, AckResponse{
		AckedCount: result.Acked,
		Requested:  result.Requested,
	}, "")
}

// HandleHealth handles GET /api/v1/health
// @Summary Service health
// @Description Pings the store.
// @Tags Health
// @Produce json
// @Success 200 {object} SuccessResponse "Healthy"
// @Failure 503 {object} SuccessResponse "Store unavailable"
// @Router /health [get]
func (h *Handler) HandleHealth(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	if err := h.svc.Ping(c.Request.Context()); err != nil {
		h.logger.Errorf("Health check failed: %v", err)
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	h.respondSuccess(c, code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   h.version,
	}, "")
}

// HandleNoRoute answers unknown paths in the API's error shape.
func (h *Handler) HandleNoRoute(c *gin.Context) {
	h.respondError(c, http.StatusNotFound, "Route not found", broker.ErrCodeNotFound)
}

// HandleNoMethod answers known paths called with the wrong method.
func (h *Handler) HandleNoMethod(c *gin.Context) {
	h.respondError(c, http.StatusMethodNotAllowed, "Method not allowed", "")
}

func (h *Handler) pathID(c *gin.Context, message string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(c, http.StatusBadRequest, message, "INVALID_ID")
		return 0, false
	}
	return id, true
}

// secondsToDuration rejects negative counts and counts whose nanoseconds
// overflow time.Duration.
func secondsToDuration(secs int64) (time.Duration, bool) {
	if secs < 0 || secs > MaxDurationSeconds {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func queryInt(c *gin.Context, key string) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func toMessageResponse(m *model.Message) MessageResponse {
	resp := MessageResponse{
		ID:             m.ID,
		SubscriptionID: m.SubscriptionID,
		Payload:        m.Payload,
		Status:         m.Status.String(),
		DeliveryCount:  m.DeliveryCount,
		ExpiresAt:      m.ExpiresAt,
	}
	if m.LeaseExpiresAt.Valid {
		t := m.LeaseExpiresAt.Time
		resp.LeaseExpiresAt = &t
	}
	return resp
}

// statusFor maps a broker error code to an HTTP status.
func statusFor(err error) int {
	switch broker.ErrorCode(err) {
	case broker.ErrCodeNotFound:
		return http.StatusNotFound
	case broker.ErrCodeNoSubscribers:
		return http.StatusConflict
	case broker.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case broker.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondBrokerError sends err with the status its code maps to.
// Client errors are returned verbatim; server errors are logged and masked.
func (h *Handler) respondBrokerError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("%s: %v", message, err)
		h.respondError(c, status, message, broker.ErrorCode(err))
		return
	}

	var brokerErr *broker.Error
	if errors.As(err, &brokerErr) {
		msg := brokerErr.Message
		// Validation causes name the offending field.
		if brokerErr.Code == broker.ErrCodeInvalidArgument && brokerErr.Err != nil {
			msg += ": " + brokerErr.Err.Error()
		}
		h.respondError(c, status, msg, brokerErr.Code)
		return
	}
	h.respondError(c, status, err.Error(), "")
}

// respondError sends an error response.
func (h *Handler) respondError(c *gin.Context, status int, message, code string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}
