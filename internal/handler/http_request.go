package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/model"
)

// HTTPRequestExecutor performs HTTP requests described by promise metadata:
// "url" (required), "method" (default GET) and "body" (optional)
type HTTPRequestExecutor struct {
	logger     *zap.Logger
	httpClient *http.Client
}

// NewHTTPRequestExecutor creates a new HTTP request executor
func NewHTTPRequestExecutor(logger *zap.Logger) *HTTPRequestExecutor {
	return &HTTPRequestExecutor{
		logger: logger.Named("http-executor"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Execute performs the HTTP request
func (h *HTTPRequestExecutor) Execute(ctx context.Context, promise *model.Promise) (*model.PromiseResult, error) {
	url := promise.Metadata["url"]
	if url == "" {
		return nil, fmt.Errorf("metadata key %q is required", "url")
	}

	method := promise.Metadata["method"]
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if b := promise.Metadata["body"]; b != "" {
		body = strings.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	h.logger.Info("Executing HTTP request",
		zap.String("promise_id", promise.ID),
		zap.String("method", method),
		zap.String("url", url))

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	result := &model.PromiseResult{
		PromiseID:   promise.ID,
		Status:      model.PromiseStatusCompleted,
		Summary:     fmt.Sprintf("%s %s -> %d (%d bytes)", method, url, resp.StatusCode, len(respBody)),
		CompletedAt: time.Now(),
	}

	if resp.StatusCode >= 400 {
		result.Status = model.PromiseStatusFailed
		result.Error = fmt.Sprintf("HTTP request failed with status: %d", resp.StatusCode)
	}

	return result, nil
}
