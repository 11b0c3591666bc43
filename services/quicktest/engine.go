package quicktest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Engine runs one task to completion and returns its metrics.
// progress may be called any number of times with a value in [0,100].
type Engine interface {
	Run(ctx context.Context, task Task, progress func(int)) (map[string]any, error)
}

// HTTPEngine calls the backtest engine's HTTP API.
type HTTPEngine struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPEngine returns a client for the engine at baseURL with the given timeout.
func NewHTTPEngine(baseURL string, timeout time.Duration) *HTTPEngine {
	return &HTTPEngine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// engineResponse is the relevant subset of the engine's backtest response.
type engineResponse struct {
	Metrics map[string]any `json:"metrics"`
	Error   string         `json:"error"`
}

// Run posts {code, config} to the engine and waits for the result.
func (c *HTTPEngine) Run(ctx context.Context, task Task, progress func(int)) (map[string]any, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/backtests", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	progress(0)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backtest engine request failed: %w", err)
	}
	defer resp.Body.Close()

	var result engineResponse
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &result) == nil && result.Error != "" {
			return nil, fmt.Errorf("backtest engine returned status %d: %s", resp.StatusCode, result.Error)
		}
		return nil, fmt.Errorf("backtest engine returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode backtest response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("backtest failed: %s", result.Error)
	}
	progress(100)
	return result.Metrics, nil
}
