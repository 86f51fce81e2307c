package export

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

// PlaneClient creates and updates Plane.so pages.
type PlaneClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewPlaneClient(baseURL, apiKey string) *PlaneClient {
	return &PlaneClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type planePage struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ExportPage creates a page, or updates pageID when given, and returns the
// page URL.
func (c *PlaneClient) ExportPage(ctx context.Context, title, content, pageID string) (string, error) {
	body, err := json.Marshal(planePage{Title: title, Content: content})
	if err != nil {
		return "", fmt.Errorf("failed to marshal page: %w", err)
	}
	method, url := http.MethodPost, c.baseURL+"/pages/"
	if pageID != "" {
		method, url = http.MethodPatch, c.baseURL+"/pages/"+pageID+"/"
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("plane request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read plane response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("plane api error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("malformed plane response: %w", err)
	}
	return out.URL, nil
}
