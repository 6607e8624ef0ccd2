// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package prowlarr is a minimal Prowlarr API wrapper for Torznab-style
// audiobook searches and RSS polling.
package prowlarr

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the options for constructing a Client.
type Config struct {
	Host       string
	APIKey     string
	Timeout    int
	HTTPClient *http.Client
	UserAgent  string
}

// Client provides Torznab search and indexer listing against a Prowlarr
// instance.
type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

// NewClient constructs a new Client using the provided configuration.
func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "listenarr"
	}

	return &Client{
		host:       strings.TrimRight(cfg.Host, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
		userAgent:  ua,
	}
}

// TorznabError represents a Torznab error response.
type TorznabError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

// Rss is the Torznab search result envelope.
type Rss struct {
	Channel struct {
		Items []Item `xml:"item"`
	} `xml:"channel"`
}

// Item is one Torznab release.
type Item struct {
	Title    string `xml:"title"`
	GUID     string `xml:"guid"`
	Link     string `xml:"link"`
	Size     int64  `xml:"size"`
	Category string `xml:"category"`
	PubDate  string `xml:"pubDate"`
	Attrs    []Attr `xml:"attr"`
}

// Attr is a torznab:attr extension element.
type Attr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Attr returns the named torznab attribute, or "".
func (i Item) Attr(name string) string {
	for _, a := range i.Attrs {
		if strings.EqualFold(a.Name, name) {
			return a.Value
		}
	}
	return ""
}

// Seeders returns the seeder count attribute, or 0.
func (i Item) Seeders() int {
	n, _ := strconv.Atoi(i.Attr("seeders"))
	return n
}

// Indexer represents a configured Prowlarr indexer returned by the API.
type Indexer struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Implementation string `json:"implementation"`
	Enable         bool   `json:"enable"`
	Protocol       string `json:"protocol"` // "unknown", "usenet", "torrent"
}

// SearchIndexer performs a Torznab search via the specified indexer ID.
func (c *Client) SearchIndexer(ctx context.Context, indexerID int, params map[string]string) (Rss, error) {
	var rss Rss

	query := url.Values{}
	for key, value := range params {
		if strings.TrimSpace(value) == "" {
			continue
		}
		query.Set(key, value)
	}
	if query.Get("t") == "" {
		query.Set("t", "search")
	}
	if c.apiKey != "" {
		query.Set("apikey", c.apiKey)
	}

	endpoint, err := url.JoinPath(c.host, "api", "v1", "indexer", strconv.Itoa(indexerID), "newznab")
	if err != nil {
		return rss, fmt.Errorf("failed to build prowlarr endpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return rss, fmt.Errorf("failed to build prowlarr request: %w", err)
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return rss, fmt.Errorf("prowlarr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return rss, fmt.Errorf("prowlarr returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return rss, fmt.Errorf("failed to read prowlarr response: %w", err)
	}

	bodyStr := strings.TrimSpace(string(body))
	if strings.HasPrefix(bodyStr, "<error") {
		var torznabErr TorznabError
		if err := xml.Unmarshal(body, &torznabErr); err != nil {
			return rss, fmt.Errorf("failed to decode torznab error response: %w", err)
		}
		return rss, fmt.Errorf("torznab error %s: %s", torznabErr.Code, torznabErr.Message)
	}

	if err := xml.Unmarshal(body, &rss); err != nil {
		return rss, fmt.Errorf("failed to decode prowlarr response: %w", err)
	}

	return rss, nil
}

// FetchRSS pulls the latest releases feed from the specified indexer.
func (c *Client) FetchRSS(ctx context.Context, indexerID int, categories []string) (Rss, error) {
	params := map[string]string{"t": "search", "q": ""}
	if len(categories) > 0 {
		params["cat"] = strings.Join(categories, ",")
	}
	return c.SearchIndexer(ctx, indexerID, params)
}

// GetIndexers retrieves all configured indexers from the Prowlarr instance.
func (c *Client) GetIndexers(ctx context.Context) ([]Indexer, error) {
	endpoint, err := url.JoinPath(c.host, "api", "v1", "indexer")
	if err != nil {
		return nil, fmt.Errorf("failed to build prowlarr endpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build prowlarr request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query prowlarr: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// continue
	case http.StatusNotFound:
		return nil, fmt.Errorf("prowlarr endpoint not found (404)")
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("prowlarr returned %d (unauthorized)", resp.StatusCode)
	default:
		return nil, fmt.Errorf("prowlarr unexpected status %d", resp.StatusCode)
	}

	var payload []Indexer
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode prowlarr response: %w", err)
	}

	return payload, nil
}
