// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package mediaserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Plex talks to the Plex Media Server API. Audiobooks live in a music-type
// library, so the artist field carries the author.
type Plex struct {
	host       string
	token      string
	httpClient *http.Client
}

func NewPlex(host, token string) *Plex {
	return &Plex{
		host:       strings.TrimRight(host, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *Plex) do(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("X-Plex-Token", p.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.host+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build plex request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("plex request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("plex returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode plex response: %w", err)
	}
	return nil
}

type plexMetadata struct {
	GUID             string `json:"guid"`
	RatingKey        string `json:"ratingKey"`
	Title            string `json:"title"`
	ParentTitle      string `json:"parentTitle"`
	GrandparentTitle string `json:"grandparentTitle"`
}

func (m plexMetadata) toItem() Item {
	author := m.GrandparentTitle
	if author == "" {
		author = m.ParentTitle
	}
	return Item{
		GUID:      m.GUID,
		RatingKey: m.RatingKey,
		Title:     m.Title,
		Author:    author,
	}
}

type plexContainer struct {
	MediaContainer struct {
		Metadata []plexMetadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

// TriggerLibraryScan asks the server to refresh the library section.
func (p *Plex) TriggerLibraryScan(ctx context.Context, libraryID string) error {
	return p.do(ctx, "/library/sections/"+url.PathEscape(libraryID)+"/refresh", nil, nil)
}

// SearchLibrary searches albums (audiobooks) in the section by title.
func (p *Plex) SearchLibrary(ctx context.Context, libraryID, query string) ([]Item, error) {
	params := url.Values{}
	params.Set("type", "9") // albums
	params.Set("title", query)

	var out plexContainer
	if err := p.do(ctx, "/library/sections/"+url.PathEscape(libraryID)+"/all", params, &out); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(out.MediaContainer.Metadata))
	for _, m := range out.MediaContainer.Metadata {
		items = append(items, m.toItem())
	}
	return items, nil
}

// RecentlyAdded lists the newest items in the section.
func (p *Plex) RecentlyAdded(ctx context.Context, libraryID string) ([]Item, error) {
	params := url.Values{}
	if libraryID != "" {
		params.Set("sectionID", libraryID)
	}

	var out plexContainer
	if err := p.do(ctx, "/library/recentlyAdded", params, &out); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(out.MediaContainer.Metadata))
	for _, m := range out.MediaContainer.Metadata {
		items = append(items, m.toItem())
	}
	return items, nil
}
