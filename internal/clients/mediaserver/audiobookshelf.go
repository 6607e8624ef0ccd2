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

// Audiobookshelf talks to the Audiobookshelf REST API with a bearer token.
type Audiobookshelf struct {
	host       string
	token      string
	httpClient *http.Client
}

func NewAudiobookshelf(host, token string) *Audiobookshelf {
	return &Audiobookshelf{
		host:       strings.TrimRight(host, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *Audiobookshelf) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.host+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build audiobookshelf request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("audiobookshelf request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("audiobookshelf returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode audiobookshelf response: %w", err)
	}
	return nil
}

// TriggerLibraryScan asks the server to rescan the library folders.
func (a *Audiobookshelf) TriggerLibraryScan(ctx context.Context, libraryID string) error {
	return a.do(ctx, http.MethodPost, "/api/libraries/"+url.PathEscape(libraryID)+"/scan", nil)
}

type absLibraryItem struct {
	ID    string `json:"id"`
	Media struct {
		Metadata struct {
			Title      string `json:"title"`
			AuthorName string `json:"authorName"`
		} `json:"metadata"`
	} `json:"media"`
}

func (i absLibraryItem) toItem() Item {
	return Item{
		GUID:      i.ID,
		RatingKey: i.ID,
		Title:     i.Media.Metadata.Title,
		Author:    i.Media.Metadata.AuthorName,
	}
}

// SearchLibrary runs a text search within the library.
func (a *Audiobookshelf) SearchLibrary(ctx context.Context, libraryID, query string) ([]Item, error) {
	var out struct {
		Book []struct {
			LibraryItem absLibraryItem `json:"libraryItem"`
		} `json:"book"`
	}
	path := "/api/libraries/" + url.PathEscape(libraryID) + "/search?q=" + url.QueryEscape(query)
	if err := a.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(out.Book))
	for _, b := range out.Book {
		items = append(items, b.LibraryItem.toItem())
	}
	return items, nil
}

// RecentlyAdded lists the newest library items.
func (a *Audiobookshelf) RecentlyAdded(ctx context.Context, libraryID string) ([]Item, error) {
	var out struct {
		Results []absLibraryItem `json:"results"`
	}
	path := "/api/libraries/" + url.PathEscape(libraryID) + "/items?sort=addedAt&desc=1&limit=25"
	if err := a.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(out.Results))
	for _, r := range out.Results {
		items = append(items, r.toItem())
	}
	return items, nil
}
