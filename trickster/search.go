package trickster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const braveSearchEndpoint = "https://api.search.brave.com/res/v1/web/search"

// BraveSearchResult is one web result from the Brave search API.
type BraveSearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type braveAPIResponse struct {
	Web *struct {
		Results []BraveSearchResult `json:"results"`
	} `json:"web"`
}

// BraveAPI is a minimal client for the Brave web search REST API.
type BraveAPI struct {
	client *http.Client
	apiKey string
}

func NewBraveAPI(client *http.Client, apiKey string) *BraveAPI {
	if apiKey == "" {
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &BraveAPI{client: client, apiKey: apiKey}
}

// Search runs a web search and returns the raw results.
func (b *BraveAPI) Search(
	ctx context.Context,
	query string,
) ([]BraveSearchResult, error) {
	endpoint := fmt.Sprintf(
		"%s?q=%s",
		braveSearchEndpoint,
		url.QueryEscape(query),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected search response: %s", resp.Status)
	}

	var payload braveAPIResponse
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("error decoding search response: %w", err)
	}
	if payload.Web == nil {
		return nil, nil
	}
	return payload.Web.Results, nil
}
