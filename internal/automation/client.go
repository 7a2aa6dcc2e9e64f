// File: internal/automation/client.go
package automation

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

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
	"go.uber.org/zap"
)

const (
	screenshotPath = "/screenshot"
	executePath    = "/execute"

	defaultImageType = "image/png"
	// maxErrorBody caps how much of a failure response is quoted in errors.
	maxErrorBody = 4 << 10
	// maxScreenshotBytes guards against a runaway response body.
	maxScreenshotBytes = 32 << 20
)

// ErrUnexpectedStatus is wrapped by every StatusError.
var ErrUnexpectedStatus = errors.New("unexpected status from automation service")

// StatusError reports a non-2xx reply from the automation service.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Client is an HTTP client for the browser-automation service. It never
// retries; every call maps to exactly one request.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	screenshotTimeout time.Duration
	logger            *zap.Logger
	metrics           *observability.Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records request outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for the service at cfg.BaseURL.
func NewClient(cfg config.AutomationConfig, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:        &http.Client{},
		screenshotTimeout: cfg.ScreenshotTimeout,
		logger:            logger.Named("automation"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Screenshot fetches the current viewport image.
func (c *Client) Screenshot(ctx context.Context) (schemas.Screenshot, error) {
	if c.screenshotTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.screenshotTimeout)
		defer cancel()
	}

	shot, err := c.screenshot(ctx)
	c.metrics.AutomationCompleted("screenshot", err)
	if err != nil {
		c.logger.Warn("Screenshot capture failed.", zap.Error(err))
		return schemas.Screenshot{}, err
	}
	c.logger.Debug("Screenshot captured.", zap.Int("bytes", len(shot.Data)), zap.String("mime_type", shot.MIMEType))
	return shot, nil
}

func (c *Client) screenshot(ctx context.Context) (schemas.Screenshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+screenshotPath, nil)
	if err != nil {
		return schemas.Screenshot{}, fmt.Errorf("failed to build screenshot request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return schemas.Screenshot{}, fmt.Errorf("screenshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("screenshot", resp); err != nil {
		return schemas.Screenshot{}, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxScreenshotBytes))
	if err != nil {
		return schemas.Screenshot{}, fmt.Errorf("failed to read screenshot body: %w", err)
	}
	if len(data) == 0 {
		return schemas.Screenshot{}, errors.New("automation service returned an empty screenshot")
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(mime)
	if !strings.HasPrefix(mime, "image/") {
		mime = defaultImageType
	}
	return schemas.Screenshot{Data: data, MIMEType: mime}, nil
}

type executeRequest struct {
	Code string `json:"code"`
}

// Execute submits a command string for evaluation against the live page.
// Deadlines come from ctx.
func (c *Client) Execute(ctx context.Context, code string) error {
	err := c.execute(ctx, code)
	c.metrics.AutomationCompleted("execute", err)
	if err != nil {
		c.logger.Warn("Command execution failed.", zap.String("code", code), zap.Error(err))
		return err
	}
	c.logger.Debug("Command executed.", zap.String("code", code))
	return nil
}

func (c *Client) execute(ctx context.Context, code string) error {
	body, err := json.Marshal(executeRequest{Code: code})
	if err != nil {
		return fmt.Errorf("failed to encode execute request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+executePath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("execute", resp); err != nil {
		return err
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Operation:  op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(raw)),
	}
}
