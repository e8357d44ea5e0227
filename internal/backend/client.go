package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/engine"
)

const (
	// GenerationTimeout bounds world, scene and image generation calls.
	GenerationTimeout = 5 * time.Minute
	// StorageTimeout bounds save, load, list and delete calls.
	StorageTimeout = 30 * time.Second

	statusSuccess = "success"
)

// Client talks to the content generation backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a backend client. Timeouts are applied per call through the
// request context so generation calls can run for minutes.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger.Named("BackendClient"),
	}
}

// BaseURL is the backend origin used to resolve cached image paths.
func (c *Client) BaseURL() string { return c.baseURL }

// HTTPClient exposes the underlying client for image fetches against the same origin.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

func (c *Client) do(ctx context.Context, method, path string, body any, timeout time.Duration) (gjson.Result, error) {
	reqID := uuid.NewString()
	log := c.logger.With(zap.String("path", path), zap.String("request_id", reqID))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			log.Error("Failed to marshal request body", zap.Error(err))
			return gjson.Result{}, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	log.Debug("Calling backend")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("Backend request failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return gjson.Result{}, transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn("Failed to read backend response", zap.Error(err))
		return gjson.Result{}, transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("HTTP错误！状态：%d", resp.StatusCode)
		if m := gjson.GetBytes(data, "message"); m.Type == gjson.String && m.String() != "" {
			msg = m.String()
		}
		log.Warn("Backend returned non-OK status", zap.Int("status_code", resp.StatusCode), zap.String("message", msg))
		return gjson.Result{}, &Error{Kind: engine.FailureServer, Status: resp.StatusCode, Msg: msg}
	}

	if !gjson.ValidBytes(data) {
		log.Warn("Backend returned invalid JSON", zap.Int("bytes", len(data)))
		return gjson.Result{}, &Error{Kind: engine.FailureOther, Status: resp.StatusCode, Msg: "invalid JSON response"}
	}
	res := gjson.ParseBytes(data)
	if status := res.Get("status").String(); status != statusSuccess {
		msg := res.Get("message").String()
		log.Info("Backend reported failure", zap.String("status", status), zap.String("message", msg))
		return res, &Error{Kind: engine.FailureOther, Status: resp.StatusCode, Rejected: true, Msg: msg}
	}
	log.Debug("Backend call succeeded", zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (c *Client) post(ctx context.Context, path string, body any, timeout time.Duration) (gjson.Result, error) {
	return c.do(ctx, http.MethodPost, path, body, timeout)
}

func (c *Client) get(ctx context.Context, path string, timeout time.Duration) (gjson.Result, error) {
	return c.do(ctx, http.MethodGet, path, nil, timeout)
}

func payloadError(msg string) error {
	return &Error{Kind: engine.FailureOther, Msg: msg}
}
