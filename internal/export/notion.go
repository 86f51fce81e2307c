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

	"github.com/kazz187/appbuilder/internal/project"
)

const notionVersion = "2022-06-28"

// NotionClient creates pages in one Notion database.
type NotionClient struct {
	baseURL    string
	token      string
	databaseID string
	client     *http.Client
}

func NewNotionClient(baseURL, token, databaseID string) *NotionClient {
	return &NotionClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		databaseID: databaseID,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Page is the part of a Notion page object the exporter reads.
type Page struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (c *NotionClient) do(ctx context.Context, method, path string, payload any) (*Page, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("notion request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read notion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("notion api error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("malformed notion response: %w", err)
	}
	return &page, nil
}

func (c *NotionClient) CreatePage(ctx context.Context, properties map[string]any, children []any) (*Page, error) {
	payload := map[string]any{
		"parent":     map[string]any{"database_id": c.databaseID},
		"properties": properties,
	}
	if len(children) > 0 {
		payload["children"] = children
	}
	return c.do(ctx, http.MethodPost, "/pages", payload)
}

func title(s string) map[string]any {
	return map[string]any{"title": []any{map[string]any{"text": map[string]any{"content": s}}}}
}

func richText(s string) map[string]any {
	return map[string]any{"rich_text": []any{map[string]any{"text": map[string]any{"content": s}}}}
}

func selectOption(s string) map[string]any {
	return map[string]any{"select": map[string]any{"name": s}}
}

// Notion rejects rich text content longer than this.
const notionTextLimit = 2000

func paragraphs(text string) []any {
	var blocks []any
	runes := []rune(text)
	for len(runes) > 0 {
		n := min(len(runes), notionTextLimit)
		blocks = append(blocks, map[string]any{
			"object": "block",
			"type":   "paragraph",
			"paragraph": map[string]any{
				"rich_text": []any{map[string]any{"type": "text", "text": map[string]any{"content": string(runes[:n])}}},
			},
		})
		runes = runes[n:]
	}
	return blocks
}

type NotionScope string

const (
	NotionSpecification NotionScope = "specification"
	NotionTasks         NotionScope = "tasks"
	NotionReports       NotionScope = "reports"
	NotionAll           NotionScope = "all"
)

func (s NotionScope) Valid() bool {
	switch s {
	case NotionSpecification, NotionTasks, NotionReports, NotionAll:
		return true
	}
	return false
}

func (s NotionScope) includes(part NotionScope) bool {
	return s == NotionAll || s == part
}

// NotionExporter pushes the specification, tasks and reports of a project
// into a Notion database. Every page is exported independently; one failing
// page does not stop the others.
type NotionExporter struct {
	client *NotionClient
}

func NewNotionExporter(client *NotionClient) *NotionExporter {
	return &NotionExporter{client: client}
}

func (e *NotionExporter) Export(ctx context.Context, projectID string, spec string, st *project.State, scope NotionScope) map[string][]Result {
	results := map[string][]Result{}
	record := func(key string, page *Page, err error) {
		r := Result{Target: "notion"}
		if err != nil {
			r.Error = err.Error()
		} else {
			r.URL = page.URL
		}
		r.Log(ctx)
		results[key] = append(results[key], r)
	}
	if scope.includes(NotionSpecification) && spec != "" {
		page, err := e.client.CreatePage(ctx, map[string]any{
			"Name": title("Specification: " + projectID),
		}, paragraphs(spec))
		record(string(NotionSpecification), page, err)
	}
	if scope.includes(NotionTasks) {
		for _, t := range st.Tasks {
			page, err := e.client.CreatePage(ctx, map[string]any{
				"Name":     title("Task: " + t.Description),
				"Status":   selectOption(string(t.Status)),
				"Assigned": richText(t.AssignedTo),
			}, nil)
			record(string(NotionTasks), page, err)
		}
	}
	if scope.includes(NotionReports) {
		for _, r := range st.Reports {
			page, err := e.client.CreatePage(ctx, map[string]any{
				"Name":     title("Report: " + string(r.Type)),
				"Severity": selectOption(string(r.Severity)),
				"Content":  richText(r.Content),
			}, nil)
			record(string(NotionReports), page, err)
		}
	}
	return results
}
