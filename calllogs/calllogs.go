/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package calllogs reads and annotates the call history kept by the
// backend. Logs are written server-side as calls progress; this client
// only fetches them and edits the agent-entered fields.
package calllogs

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dialforge/softphone-go-sdk/dialersdk"
)

// Log is one call history record.
type Log struct {
	ID           string   `json:"_id,omitempty"`
	CallID       string   `json:"call_id"`
	FromNumber   string   `json:"from_number,omitempty"`
	ToNumber     string   `json:"to_number,omitempty"`
	Status       string   `json:"status,omitempty"`
	Duration     int      `json:"duration,omitempty"`
	Disposition  string   `json:"disposition,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	RecordingURL string   `json:"recording_url,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
	StartedAt    string   `json:"started_at,omitempty"`
	AnsweredAt   string   `json:"answered_at,omitempty"`
	EndedAt      string   `json:"ended_at,omitempty"`
}

// Page is one page of call logs.
type Page struct {
	Logs  []Log `json:"logs"`
	Total int   `json:"total"`
	Limit int   `json:"limit"`
	Skip  int   `json:"skip"`
}

// Update carries the agent-editable fields of a log. Nil fields are left
// unchanged.
type Update struct {
	Notes       *string  `json:"notes,omitempty"`
	Disposition *string  `json:"disposition,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Config holds the configuration for the Call Logs plugin.
type Config struct {
	// DefaultLimit is the page size used when List is called with limit 0.
	DefaultLimit int
}

// DefaultConfig returns the default configuration for the Call Logs plugin.
func DefaultConfig() *Config {
	return &Config{DefaultLimit: 100}
}

// Client is the Call Logs API client.
type Client struct {
	core   *dialersdk.Client
	config *Config
}

// New creates a new Call Logs client.
func New(core *dialersdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = DefaultConfig().DefaultLimit
	}
	return &Client{core: core, config: config}
}

// List returns one page of call logs, newest first.
func (c *Client) List(ctx context.Context, limit, skip int) (*Page, error) {
	if limit <= 0 {
		limit = c.config.DefaultLimit
	}
	params := url.Values{
		"limit": []string{strconv.Itoa(limit)},
		"skip":  []string{strconv.Itoa(skip)},
	}

	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/webrtc/logs", params, nil)
	if err != nil {
		return nil, err
	}

	var page Page
	if err := dialersdk.ParseResponse(resp, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get fetches a single log by call ID or record ID.
func (c *Client) Get(ctx context.Context, logID string) (*Log, error) {
	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/webrtc/logs/"+logID, nil, nil)
	if err != nil {
		return nil, err
	}

	var log Log
	if err := dialersdk.ParseResponse(resp, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

// Set updates a log's notes, disposition or tags and returns the updated
// record.
func (c *Client) Set(ctx context.Context, logID string, update *Update) (*Log, error) {
	resp, err := c.core.RequestWithContext(ctx, http.MethodPut, "api/webrtc/logs/"+logID, nil, update)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool `json:"success"`
		Log     *Log `json:"log"`
	}
	if err := dialersdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Log, nil
}

// Delete removes a log from the history.
func (c *Client) Delete(ctx context.Context, logID string) error {
	resp, err := c.core.RequestWithContext(ctx, http.MethodDelete, "api/webrtc/logs/"+logID, nil, nil)
	if err != nil {
		return err
	}
	return dialersdk.ParseResponse(resp, nil)
}
