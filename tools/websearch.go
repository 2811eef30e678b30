package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/askterm/askterm/errors"
	"github.com/askterm/askterm/llm"
)

const (
	searchTimeout    = 10 * time.Second
	searchEngines    = "google,bing,duckduckgo"
	maxSearchResults = 5
)

// SearchResult is one entry returned to the model.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content,omitempty"`
	ImgSrc  string `json:"img_src,omitempty"`
}

// WebSearchTool queries a SearXNG instance.
type WebSearchTool struct {
	client  *http.Client
	baseURL string
}

func NewWebSearchTool(baseURL string) *WebSearchTool {
	return &WebSearchTool{
		client:  &http.Client{Timeout: searchTimeout},
		baseURL: baseURL,
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Description() string {
	return "Searches the web and returns the top results. Use only for current information " +
		"that cannot be found on the local system. Args: query (string)."
}

func (t *WebSearchTool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: t.Description(),
		Properties: map[string]llm.ToolProperty{
			"query": {Type: "string", Description: "The search query."},
		},
		Required: []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, errors.New("missing or invalid 'query' argument")
	}

	endpoint, err := url.Parse(t.baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid search base url '%s'", t.baseURL)
	}
	endpoint = endpoint.JoinPath("search")

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("engines", searchEngines)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build search request")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "search request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("search returned status %d", resp.StatusCode)
	}

	var payload struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrapf(err, "failed to decode search response")
	}

	results := payload.Results
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}
	return results, nil
}
