package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBytes = 16 << 20

type HTTPInvoker struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
}

func NewHTTPInvoker(endpoint, apiKey string, timeout time.Duration) *HTTPInvoker {
	return &HTTPInvoker{
		endpoint: endpoint,
		apiKey:   apiKey,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

type httpRequest struct {
	Model           string   `json:"model"`
	Prompt          string   `json:"prompt"`
	TaskDescription string   `json:"task_description"`
	Tools           []string `json:"tools"`
}

type httpResponse struct {
	Result *string `json:"result"`
	Usage  *struct {
		Cost *float64 `json:"cost"`
	} `json:"usage"`
}

func (h *HTTPInvoker) Invoke(ctx context.Context, req Request) Result {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	tools := make([]string, len(req.Tools))
	for i, t := range req.Tools {
		tools[i] = string(t)
	}
	body, err := json.Marshal(httpRequest{
		Model:           req.Model,
		Prompt:          req.Prompt,
		TaskDescription: req.TaskDescription,
		Tools:           tools,
	})
	if err != nil {
		return failed(fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return failed(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return failed(fmt.Errorf("llm request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return failed(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed(fmt.Errorf("llm api error (status %d): %s", resp.StatusCode, truncate(data, 512)))
	}

	var parsed httpResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return failed(fmt.Errorf("malformed llm response: %w", err))
	}
	if parsed.Result == nil {
		return failed(fmt.Errorf("malformed llm response: missing result"))
	}
	res := Result{Outcome: OutcomeDone, Output: *parsed.Result}
	if parsed.Usage != nil && parsed.Usage.Cost != nil {
		res.Cost = *parsed.Usage.Cost
		res.HasCost = true
	}
	return res
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
