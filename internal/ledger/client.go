package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/sensemaker/internal/ctxutil"
	"github.com/ashita-ai/sensemaker/internal/telemetry"
)

// ErrNotConnected is returned when the node's health probe fails at connect
// time, or when a call is made on a nil client.
var ErrNotConnected = errors.New("ledger: not connected")

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the node's app interface (e.g. "http://127.0.0.1:9999").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual requests when HTTPClient is nil.
	Timeout time.Duration
}

// Client talks to one node. All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client without contacting the node.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ledger: BaseURL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
	}, nil
}

// Connect creates a Client and probes the node's health endpoint.
// A node that cannot be reached, or that reports a status other than
// "ok", yields an error wrapping ErrNotConnected.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	health, err := c.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotConnected, c.baseURL, err)
	}
	if health.Status != StatusOK {
		return nil, fmt.Errorf("%w: %s: node status %q", ErrNotConnected, c.baseURL, health.Status)
	}
	return c, nil
}

// BaseURL returns the node address this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Health checks that the node is up.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Invoke dispatches a zome call and returns the function's msgpack-encoded
// output. Application-level rejections are returned as *Error; anything else
// is a transport failure.
func (c *Client) Invoke(ctx context.Context, call ZomeCall) (ExternIO, error) {
	if c == nil {
		return nil, ErrNotConnected
	}
	body := zomeCallBody{
		RequestID:  uuid.New(),
		CellID:     call.CellID,
		ZomeName:   call.ZomeName,
		FnName:     call.FnName,
		Payload:    call.Payload,
		CapSecret:  call.CapSecret,
		Provenance: call.Provenance,
	}
	var reply zomeCallReply
	if err := c.post(ctx, "/v1/zome_call", body, &reply); err != nil {
		return nil, err
	}
	return ExternIO(reply.Payload), nil
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ledger: marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("ledger: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doRequest(ctx, req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("ledger: create request: %w", err)
	}
	return c.doRequest(ctx, req, dest)
}

func (c *Client) doRequest(ctx context.Context, req *http.Request, dest any) error {
	telemetry.InjectHeaders(ctx, req.Header)
	if id, ok := ctxutil.SubmissionIDFromContext(ctx); ok {
		req.Header.Set(ctxutil.SubmissionHeader, id.String())
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ledger: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return handleResponse(resp, dest)
}

type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ledger: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("ledger: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return json.Unmarshal(bodyBytes, dest)
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return fmt.Errorf("ledger: decode response data: %w", err)
	}
	return nil
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}
	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}
	return apiErr
}
