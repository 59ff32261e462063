// Package client is a Go SDK for the gigboard HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/terra-clan/gigboard/internal/models"
)

// Client is a Go SDK for gigboard API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a client that authenticates with a bearer token
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a failed request decoded from the response envelope
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

// IsCode reports whether err is an *APIError with the given code
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// ListPostsOptions contains filters for listing posts
type ListPostsOptions struct {
	Status   models.PostStatus
	ClientID string
	Skill    string
	Limit    int
	Offset   int
}

// Categories lists the job category catalog
func (c *Client) Categories(ctx context.Context) ([]models.CategoryGroup, error) {
	var out []models.CategoryGroup
	return out, c.do(ctx, http.MethodGet, "/api/v1/categories", nil, &out)
}

// CreatePost creates a job posting
func (c *Client) CreatePost(ctx context.Context, req models.CreatePostRequest) (*models.Post, error) {
	var out models.Post
	if err := c.do(ctx, http.MethodPost, "/api/v1/posts", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPosts lists posts matching opts
func (c *Client) ListPosts(ctx context.Context, opts ListPostsOptions) ([]*models.Post, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.ClientID != "" {
		q.Set("client_id", opts.ClientID)
	}
	if opts.Skill != "" {
		q.Set("skill", opts.Skill)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/api/v1/posts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []*models.Post
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// GetPost retrieves a post by ID
func (c *Client) GetPost(ctx context.Context, id string) (*models.Post, error) {
	return c.post(ctx, http.MethodGet, postPath(id, ""), nil)
}

// DeletePost removes a post
func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, postPath(id, ""), nil, nil)
}

// Apply submits a bid on a post
func (c *Client) Apply(ctx context.Context, postID string, req models.ApplyRequest) (*models.Post, error) {
	return c.post(ctx, http.MethodPost, postPath(postID, "/applications"), req)
}

// UpdateApplication edits a pending application
func (c *Client) UpdateApplication(ctx context.Context, postID, applicationID string, req models.UpdateApplicationRequest) (*models.Post, error) {
	return c.post(ctx, http.MethodPut, postPath(postID, "/applications/"+url.PathEscape(applicationID)), req)
}

// DecideApplication accepts or rejects an application
func (c *Client) DecideApplication(ctx context.Context, postID, applicationID string, decision models.ApplicationStatus) (*models.Post, error) {
	return c.post(ctx, http.MethodPost, postPath(postID, "/applications/"+url.PathEscape(applicationID)+"/decision"),
		models.DecisionRequest{Decision: decision})
}

// SubmitFinalization submits the delivery
func (c *Client) SubmitFinalization(ctx context.Context, postID string, req models.SubmitFinalizationRequest) (*models.Post, error) {
	return c.post(ctx, http.MethodPost, postPath(postID, "/finalization"), req)
}

// AcceptFinalization accepts the delivery and completes the post
func (c *Client) AcceptFinalization(ctx context.Context, postID string) (*models.Post, error) {
	return c.post(ctx, http.MethodPost, postPath(postID, "/finalization/accept"), nil)
}

// RejectFinalization sends the delivery back for rework
func (c *Client) RejectFinalization(ctx context.Context, postID string) (*models.Post, error) {
	return c.post(ctx, http.MethodPost, postPath(postID, "/finalization/reject"), nil)
}

// LeaveReview rates the counterparty of a completed post
func (c *Client) LeaveReview(ctx context.Context, postID string, req models.ReviewRequest) (*models.Post, error) {
	return c.post(ctx, http.MethodPost, postPath(postID, "/reviews"), req)
}

// InitiatePayment pays the accepted freelancer
func (c *Client) InitiatePayment(ctx context.Context, postID string, amount float64) (*models.Payment, error) {
	var out models.Payment
	if err := c.do(ctx, http.MethodPost, postPath(postID, "/payments"), models.InitiatePaymentRequest{Amount: amount}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PaymentStatus returns the payment projection of a post
func (c *Client) PaymentStatus(ctx context.Context, postID string) (*models.PaymentStatusView, error) {
	var out models.PaymentStatusView
	if err := c.do(ctx, http.MethodGet, postPath(postID, "/payment-status"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPayment re-checks a payment with the gateway
func (c *Client) VerifyPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	var out models.Payment
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments/"+url.PathEscape(paymentID)+"/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Receipt downloads the plain-text receipt of a settled payment
func (c *Client) Receipt(ctx context.Context, paymentID string) (string, error) {
	status, body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/payments/"+url.PathEscape(paymentID)+"/receipt", nil)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", decodeError(status, body)
	}
	return string(body), nil
}

// ListNotifications lists the caller's notifications
func (c *Client) ListNotifications(ctx context.Context, unreadOnly bool, limit int) ([]*models.Notification, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []*models.Notification
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// MarkNotificationRead flags a notification as read
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func postPath(id, suffix string) string {
	return "/api/v1/posts/" + url.PathEscape(id) + suffix
}

func (c *Client) post(ctx context.Context, method, path string, body interface{}) (*models.Post, error) {
	var out models.Post
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do sends body as JSON and decodes the envelope's data into out
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	status, respBody, err := c.doRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if status >= 400 {
		return decodeError(status, respBody)
	}

	var result envelope
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !result.Success {
		return decodeError(status, respBody)
	}
	if out == nil || len(result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var result envelope
	if err := json.Unmarshal(body, &result); err != nil || result.Error == nil {
		return &APIError{StatusCode: status, Code: http.StatusText(status), Message: string(body)}
	}
	return &APIError{StatusCode: status, Code: result.Error.Code, Message: result.Error.Message}
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
