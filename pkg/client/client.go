package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is matched by errors for 404 responses.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Field      string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("server returned %d: %s (field %s)", e.StatusCode, e.Message, e.Field)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Record is one ledger entry as returned by the server.
type Record struct {
	SequenceNumber uint64         `json:"sequence_number"`
	CreatedAt      time.Time      `json:"created_at"`
	SubjectID      string         `json:"subject_id"`
	ActorRole      string         `json:"actor_role"`
	ActorName      string         `json:"actor_name"`
	Location       string         `json:"location"`
	Status         string         `json:"status"`
	PaymentMethod  string         `json:"payment_method"`
	Attributes     map[string]any `json:"attributes"`
	PreviousLink   string         `json:"previous_link"`
	Link           string         `json:"link"`
}

// JourneyEntry is a row of a product journey.
type JourneyEntry struct {
	SequenceNumber uint64         `json:"sequence_number"`
	Timestamp      time.Time      `json:"timestamp"`
	ActorRole      string         `json:"actor_role"`
	ActorName      string         `json:"actor_name"`
	Location       string         `json:"location"`
	Status         string         `json:"status"`
	PaymentMethod  string         `json:"payment_method"`
	Attributes     map[string]any `json:"attributes"`
	Link           string         `json:"link"`
}

// Summary is the latest known state of a product.
type Summary struct {
	SubjectID       string         `json:"subject_id"`
	ProductName     string         `json:"product_name"`
	OriginLocation  string         `json:"origin_location"`
	OriginActor     string         `json:"origin_actor"`
	OriginRole      string         `json:"origin_role"`
	CreatedAt       time.Time      `json:"created_at"`
	CurrentStatus   string         `json:"current_status"`
	CurrentLocation string         `json:"current_location"`
	CurrentActor    string         `json:"current_actor"`
	CurrentRole     string         `json:"current_role"`
	PaymentMethod   string         `json:"payment_method"`
	Attributes      map[string]any `json:"attributes"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Entries         int            `json:"entries"`
	FirstSequence   uint64         `json:"first_sequence"`
	LastSequence    uint64         `json:"last_sequence"`
}

// Product is one row of the product listing.
type Product struct {
	SubjectID       string    `json:"subject_id"`
	ProductName     string    `json:"product_name"`
	CurrentStatus   string    `json:"current_status"`
	CurrentLocation string    `json:"current_location"`
	Entries         int       `json:"entries"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Violation is the first point at which a chain fails verification.
type Violation struct {
	Position int    `json:"position"`
	Sequence uint64 `json:"sequence_number"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
}

// Report is the result of GET /ledger/verify.
type Report struct {
	Valid     bool       `json:"valid"`
	Checked   int        `json:"checked"`
	Head      string     `json:"head,omitempty"`
	Violation *Violation `json:"violation,omitempty"`
}

// Overview is the chain length and its tip link.
type Overview struct {
	Entries int    `json:"entries"`
	Head    string `json:"head"`
}

// ResetResult is returned by Reset.
type ResetResult struct {
	Dropped int    `json:"dropped"`
	Entries int    `json:"entries"`
	Head    string `json:"head"`
}

// User is the principal a session token was issued to.
type User struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// LoginResult is returned by Login.
type LoginResult struct {
	User      User   `json:"user"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// CreateProductRequest is the payload for CreateProduct. An empty ProductID
// lets the server generate one.
type CreateProductRequest struct {
	ProductID     string `json:"product_id,omitempty"`
	ProductName   string `json:"product_name,omitempty"`
	Location      string `json:"location"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// TransferRequest is the payload for RecordTransfer.
type TransferRequest struct {
	Location      string `json:"location"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// DeliveryRequest is the payload for ConfirmDelivery.
type DeliveryRequest struct {
	CustomerName  string `json:"customer_name"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
}

// Client talks to a ledger server.
type Client struct {
	base       string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a pre-obtained session or admin token to every
// request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against a self-signed server.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: 10 * time.Second,
		}
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/") + "/api/v1",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Token returns the bearer token currently attached to requests.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) setToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

// Login exchanges credentials for a session token and keeps it for later
// writes.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var out LoginResult
	body := map[string]string{"username": username, "password": password}
	if err := c.call(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	c.setToken(out.Token)
	return &out, nil
}

// AdminLogin exchanges the admin secret for an admin token and keeps it.
func (c *Client) AdminLogin(ctx context.Context, secret string) error {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.call(ctx, http.MethodPost, "/auth/admin", map[string]string{"secret": secret}, &out); err != nil {
		return err
	}
	c.setToken(out.Token)
	return nil
}

// CreateProduct registers a new product. Requires a Producer session.
func (c *Client) CreateProduct(ctx context.Context, req CreateProductRequest) (*Record, error) {
	var rec Record
	if err := c.call(ctx, http.MethodPost, "/products", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordTransfer appends an intermediary hand-off for productID.
func (c *Client) RecordTransfer(ctx context.Context, productID string, req TransferRequest) (*Record, error) {
	var rec Record
	if err := c.call(ctx, http.MethodPost, "/products/"+url.PathEscape(productID)+"/transfers", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ConfirmDelivery appends the consumer's delivery confirmation for productID.
func (c *Client) ConfirmDelivery(ctx context.Context, productID string, req DeliveryRequest) (*Record, error) {
	var rec Record
	if err := c.call(ctx, http.MethodPost, "/products/"+url.PathEscape(productID)+"/deliveries", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Products lists every product in first-seen order.
func (c *Client) Products(ctx context.Context) ([]Product, error) {
	var out struct {
		Products []Product `json:"products"`
	}
	if err := c.call(ctx, http.MethodGet, "/products", nil, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

// Journey returns the records of productID in append order. An unknown
// product yields an empty slice.
func (c *Client) Journey(ctx context.Context, productID string) ([]JourneyEntry, error) {
	var out struct {
		Records []JourneyEntry `json:"records"`
	}
	if err := c.call(ctx, http.MethodGet, "/products/"+url.PathEscape(productID)+"/journey", nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Summary returns the latest state of productID, or ErrNotFound.
func (c *Client) Summary(ctx context.Context, productID string) (*Summary, error) {
	var out Summary
	if err := c.call(ctx, http.MethodGet, "/products/"+url.PathEscape(productID)+"/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Overview returns the chain length and tip link.
func (c *Client) Overview(ctx context.Context) (*Overview, error) {
	var out Overview
	if err := c.call(ctx, http.MethodGet, "/ledger", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify asks the server to check the whole chain.
func (c *Client) Verify(ctx context.Context) (*Report, error) {
	var out Report
	if err := c.call(ctx, http.MethodGet, "/ledger/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Entry returns the record at seq, or ErrNotFound.
func (c *Client) Entry(ctx context.Context, seq uint64) (*Record, error) {
	var out Record
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/ledger/entries/%d", seq), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reset discards every record after genesis. Requires an admin token.
func (c *Client) Reset(ctx context.Context) (*ResetResult, error) {
	var out ResetResult
	if err := c.call(ctx, http.MethodPost, "/ledger/reset", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export streams the persisted ledger document to w.
func (c *Client) Export(ctx context.Context, w io.Writer) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/ledger/export", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return apiError(resp.StatusCode, body)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("copy export: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// call sends in as JSON (when non-nil) and decodes a 2xx body into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
		Field string `json:"field"`
	}
	e := &APIError{StatusCode: status}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		e.Message, e.Field = payload.Error, payload.Field
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}
