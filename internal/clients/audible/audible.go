// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package audible is a read-only client for the Audible catalog API, used to
// backfill release years and populate the local metadata cache.
package audible

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/avast/retry-go"
)

const defaultRegion = "com"

// Product is one catalog entry.
type Product struct {
	ASIN        string
	Title       string
	Author      string
	Narrator    string
	ReleaseYear int
	CoverArtURL string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a catalog client for the given marketplace region
// ("com", "co.uk", "de", ...).
func NewClient(region string) *Client {
	if region == "" {
		region = defaultRegion
	}
	return &Client{
		baseURL:    fmt.Sprintf("https://api.audible.%s/1.0/catalog/products", region),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type productResponse struct {
	Product *apiProduct `json:"product"`
}

type productsResponse struct {
	Products []apiProduct `json:"products"`
}

type apiProduct struct {
	ASIN    string `json:"asin"`
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Narrators []struct {
		Name string `json:"name"`
	} `json:"narrators"`
	ReleaseDate   string `json:"release_date"`
	ProductImages struct {
		Large string `json:"500"`
	} `json:"product_images"`
}

func (p apiProduct) toProduct() Product {
	out := Product{
		ASIN:        p.ASIN,
		Title:       p.Title,
		CoverArtURL: p.ProductImages.Large,
	}
	if len(p.Authors) > 0 {
		out.Author = p.Authors[0].Name
	}
	if len(p.Narrators) > 0 {
		out.Narrator = p.Narrators[0].Name
	}
	if len(p.ReleaseDate) >= 4 {
		if y, err := strconv.Atoi(p.ReleaseDate[:4]); err == nil {
			out.ReleaseYear = y
		}
	}
	return out
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	params.Set("response_groups", "media,contributors,product_attrs")

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to build audible request: %w", err))
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("audible request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return retry.Unrecoverable(fmt.Errorf("audible returned 404"))
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("audible returned status %d", resp.StatusCode)
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to decode audible response: %w", err))
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.Context(ctx),
	)
}

// GetByASIN looks up a single catalog product.
func (c *Client) GetByASIN(ctx context.Context, asin string) (*Product, error) {
	var out productResponse
	if err := c.get(ctx, c.baseURL+"/"+url.PathEscape(asin), url.Values{}, &out); err != nil {
		return nil, err
	}
	if out.Product == nil {
		return nil, fmt.Errorf("audible product %s not found", asin)
	}
	p := out.Product.toProduct()
	return &p, nil
}

// GetPopular returns the current best sellers, up to n items.
func (c *Client) GetPopular(ctx context.Context, n int) ([]Product, error) {
	return c.browse(ctx, "popularity-rank", n)
}

// GetNewReleases returns the newest releases, up to n items.
func (c *Client) GetNewReleases(ctx context.Context, n int) ([]Product, error) {
	return c.browse(ctx, "-release_date", n)
}

func (c *Client) browse(ctx context.Context, sort string, n int) ([]Product, error) {
	params := url.Values{}
	params.Set("products_sort_by", sort)
	params.Set("num_results", strconv.Itoa(n))

	var out productsResponse
	if err := c.get(ctx, c.baseURL, params, &out); err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(out.Products))
	for _, p := range out.Products {
		products = append(products, p.toProduct())
	}
	return products, nil
}

// DownloadThumbnail fetches the cover image into dir and returns the local
// path. The file is named after the ASIN so repeated refreshes overwrite in
// place.
func (c *Client) DownloadThumbnail(ctx context.Context, dir, asin, coverURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build thumbnail request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("thumbnail request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("thumbnail fetch returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail dir: %w", err)
	}

	path := filepath.Join(dir, asin+".jpg")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create thumbnail file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write thumbnail: %w", err)
	}
	return path, nil
}
