// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sabnzbd wraps the SABnzbd JSON API behind the shared download
// client capability. Handles are nzo ids; a finished download moves from the
// queue to the history list, so both are consulted.
package sabnzbd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/listenarr/listenarr/internal/clients"
)

const category = "audio"

type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

func NewClient(host, apiKey string) *Client {
	return &Client{
		host:       strings.TrimRight(host, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type addResponse struct {
	Status bool     `json:"status"`
	NzoIDs []string `json:"nzo_ids"`
	Error  string   `json:"error"`
}

type queueSlot struct {
	NzoID      string `json:"nzo_id"`
	Filename   string `json:"filename"`
	Percentage string `json:"percentage"`
	Status     string `json:"status"`
}

type queueResponse struct {
	Queue struct {
		Slots []queueSlot `json:"slots"`
	} `json:"queue"`
}

type historySlot struct {
	NzoID       string `json:"nzo_id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Storage     string `json:"storage"`
	FailMessage string `json:"fail_message"`
}

type historyResponse struct {
	History struct {
		Slots []historySlot `json:"slots"`
	} `json:"history"`
}

func (c *Client) call(ctx context.Context, params url.Values, out any) error {
	params.Set("output", "json")
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build sabnzbd request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sabnzbd request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sabnzbd returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode sabnzbd response: %w", err)
	}
	return nil
}

// AddNZB submits an NZB by URL and returns the nzo id handle.
func (c *Client) AddNZB(ctx context.Context, nzbURL, name string) (string, error) {
	params := url.Values{}
	params.Set("mode", "addurl")
	params.Set("name", nzbURL)
	params.Set("cat", category)
	if name != "" {
		params.Set("nzbname", name)
	}

	var out addResponse
	if err := c.call(ctx, params, &out); err != nil {
		return "", err
	}
	if !out.Status || len(out.NzoIDs) == 0 {
		return "", fmt.Errorf("sabnzbd rejected nzb: %s", out.Error)
	}
	return out.NzoIDs[0], nil
}

// GetDownload reports the status of an nzo id, checking the active queue
// first and the history second.
func (c *Client) GetDownload(ctx context.Context, id string) (*clients.DownloadStatus, error) {
	var queue queueResponse
	if err := c.call(ctx, url.Values{"mode": []string{"queue"}}, &queue); err != nil {
		return nil, err
	}
	for _, slot := range queue.Queue.Slots {
		if slot.NzoID != id {
			continue
		}
		pct, _ := strconv.ParseFloat(slot.Percentage, 64)
		state := clients.StateDownloading
		if strings.EqualFold(slot.Status, "Paused") {
			state = clients.StateStalled
		}
		return &clients.DownloadStatus{
			ID:       slot.NzoID,
			Name:     slot.Filename,
			State:    state,
			Progress: pct,
		}, nil
	}

	var history historyResponse
	if err := c.call(ctx, url.Values{"mode": []string{"history"}}, &history); err != nil {
		return nil, err
	}
	for _, slot := range history.History.Slots {
		if slot.NzoID != id {
			continue
		}
		status := &clients.DownloadStatus{
			ID:       slot.NzoID,
			Name:     slot.Name,
			Path:     slot.Storage,
			Progress: 100,
		}
		if strings.EqualFold(slot.Status, "Failed") {
			status.State = clients.StateFailed
			status.Message = slot.FailMessage
		} else if strings.EqualFold(slot.Status, "Completed") {
			status.State = clients.StateCompleted
		} else {
			// Verifying/Repairing/Extracting still count as in flight.
			status.State = clients.StateDownloading
			status.Progress = 99
		}
		return status, nil
	}

	return nil, clients.ErrDownloadNotFound
}

// Remove deletes the job from the queue and history.
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	queueParams := url.Values{}
	queueParams.Set("mode", "queue")
	queueParams.Set("name", "delete")
	queueParams.Set("value", id)
	if err := c.call(ctx, queueParams, nil); err != nil {
		return err
	}

	histParams := url.Values{}
	histParams.Set("mode", "history")
	histParams.Set("name", "delete")
	histParams.Set("value", id)
	if deleteFiles {
		histParams.Set("del_files", "1")
	}
	return c.call(ctx, histParams, nil)
}
