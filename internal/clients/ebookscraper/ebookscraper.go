// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ebookscraper resolves direct download links for e-book sidecars
// from a mirror page, optionally routing through FlareSolverr when the
// mirror sits behind an anti-bot challenge.
package ebookscraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Download is a resolved file link.
type Download struct {
	URL    string
	Format string
}

type Client struct {
	baseURL         string
	flaresolverrURL string
	httpClient      *http.Client
}

func NewClient(baseURL, flaresolverrURL string) *Client {
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		flaresolverrURL: strings.TrimRight(flaresolverrURL, "/"),
		httpClient:      &http.Client{Timeout: 60 * time.Second},
	}
}

// hrefPattern matches anchor targets on a mirror page. Download links carry
// the file extension in the path or a GET/download path segment.
var hrefPattern = regexp.MustCompile(`href="([^"]+)"`)

// ExtractDownloadURL fetches the mirror page and returns the first link that
// looks like a file in the preferred format, falling back to any known e-book
// extension. Returns nil when the page yields nothing usable.
func (c *Client) ExtractDownloadURL(ctx context.Context, pageURL, preferredFormat string) (*Download, error) {
	body, err := c.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	formats := []string{strings.ToLower(strings.TrimPrefix(preferredFormat, "."))}
	for _, f := range []string{"epub", "mobi", "azw3", "pdf"} {
		if f != formats[0] {
			formats = append(formats, f)
		}
	}

	matches := hrefPattern.FindAllStringSubmatch(body, -1)
	for _, format := range formats {
		for _, m := range matches {
			href := m[1]
			lower := strings.ToLower(href)
			if !strings.Contains(lower, "."+format) {
				continue
			}
			if !strings.Contains(lower, "/get") && !strings.Contains(lower, "download") && !strings.HasSuffix(lower, "."+format) {
				continue
			}
			resolved, err := resolveRef(pageURL, href)
			if err != nil {
				continue
			}
			return &Download{URL: resolved, Format: format}, nil
		}
	}

	log.Debug().Str("pageUrl", pageURL).Msg("no download link found on mirror page")
	return nil, nil
}

// SearchURL composes the sidecar search page URL for a title/author query.
func (c *Client) SearchURL(title, author string) string {
	q := url.QueryEscape(strings.TrimSpace(title + " " + author))
	return c.baseURL + "/search?q=" + q
}

// mirrorPattern matches result detail pages keyed by content hash.
var mirrorPattern = regexp.MustCompile(`href="(/md5/[0-9a-fA-F]{32}[^"]*)"`)

// FindMirrors searches the sidecar site and returns up to max candidate
// mirror page URLs, in result order.
func (c *Client) FindMirrors(ctx context.Context, title, author string, max int) ([]string, error) {
	body, err := c.fetch(ctx, c.SearchURL(title, author))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var mirrors []string
	for _, m := range mirrorPattern.FindAllStringSubmatch(body, -1) {
		resolved, err := resolveRef(c.baseURL+"/", m[1])
		if err != nil {
			continue
		}
		if _, ok := seen[resolved]; ok {
			continue
		}
		seen[resolved] = struct{}{}
		mirrors = append(mirrors, resolved)
		if len(mirrors) >= max {
			break
		}
	}
	return mirrors, nil
}

func (c *Client) fetch(ctx context.Context, pageURL string) (string, error) {
	if c.flaresolverrURL != "" {
		return c.fetchViaFlaresolverr(ctx, pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build scraper request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("scraper request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mirror page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read mirror page: %w", err)
	}
	return string(body), nil
}

func (c *Client) fetchViaFlaresolverr(ctx context.Context, pageURL string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"cmd":        "request.get",
		"url":        pageURL,
		"maxTimeout": 60000,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal flaresolverr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.flaresolverrURL+"/v1", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build flaresolverr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("flaresolverr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("flaresolverr returned status %d", resp.StatusCode)
	}

	var out struct {
		Status   string `json:"status"`
		Solution struct {
			Response string `json:"response"`
		} `json:"solution"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode flaresolverr response: %w", err)
	}
	if out.Status != "ok" {
		return "", fmt.Errorf("flaresolverr solve failed: %s", out.Status)
	}
	return out.Solution.Response, nil
}

func resolveRef(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
