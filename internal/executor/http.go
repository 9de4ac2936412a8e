package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTP posts snippets to a remote execution endpoint that accepts
// {"code", "language"} and answers {"output"} or {"error"}.
type HTTP struct {
	url    string
	client *http.Client
}

// NewHTTP creates an HTTP executor. A zero timeout means no client timeout.
func NewHTTP(url string, timeout time.Duration) *HTTP {
	return &HTTP{url: url, client: &http.Client{Timeout: timeout}}
}

type executeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// Execute sends the snippet and decodes the endpoint's answer.
func (h *HTTP) Execute(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(executeRequest{Code: req.Code, Language: req.Language})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("post %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		if resp.StatusCode != http.StatusOK {
			return Result{}, fmt.Errorf("execute endpoint returned %s", resp.Status)
		}
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && res.Error == "" {
		return Result{}, fmt.Errorf("execute endpoint returned %s", resp.Status)
	}
	return res, nil
}
