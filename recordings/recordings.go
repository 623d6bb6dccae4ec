/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package recordings lists, downloads and deletes call recordings.
package recordings

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/dialforge/softphone-go-sdk/dialersdk"
)

// Recording is one stored call recording. The backend only lists
// recordings that finished with audio, so Duration is always positive.
type Recording struct {
	ID        string `json:"_id,omitempty"`
	CallID    string `json:"call_id"`
	URL       string `json:"url"`
	Duration  int    `json:"duration,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Config holds the configuration for the Recordings plugin.
type Config struct{}

// DefaultConfig returns the default configuration for the Recordings plugin.
func DefaultConfig() *Config {
	return &Config{}
}

// Client is the Recordings API client.
type Client struct {
	core   *dialersdk.Client
	config *Config
}

// New creates a new Recordings client.
func New(core *dialersdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{core: core, config: config}
}

// List returns all stored recordings, newest first.
func (c *Client) List(ctx context.Context) ([]Recording, error) {
	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/webrtc/recordings/list", nil, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Recordings []Recording `json:"recordings"`
		Total      int         `json:"total"`
	}
	if err := dialersdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Recordings, nil
}

// Download fetches the audio for a call. It returns the raw bytes and the
// filename the backend suggests via Content-Disposition.
func (c *Client) Download(ctx context.Context, callID string) ([]byte, string, error) {
	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/webrtc/recordings/download/"+callID, nil, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read recording: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, "", dialersdk.NewAPIError(resp, data)
	}

	filename := callID + ".mp3"
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			filename = params["filename"]
		}
	}
	return data, filename, nil
}

// Delete removes a call's recording from storage.
func (c *Client) Delete(ctx context.Context, callID string) error {
	resp, err := c.core.RequestWithContext(ctx, http.MethodDelete, "api/webrtc/recordings/"+callID+"/delete", nil, nil)
	if err != nil {
		return err
	}
	return dialersdk.ParseResponse(resp, nil)
}

// CleanupDuplicates asks the backend to drop duplicate recording rows and
// returns how many were removed.
func (c *Client) CleanupDuplicates(ctx context.Context) (int, error) {
	resp, err := c.core.RequestWithContext(ctx, http.MethodPost, "api/webrtc/recordings/cleanup-duplicates", nil, nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		Removed int `json:"removed,omitempty"`
		Deleted int `json:"deleted_count,omitempty"`
	}
	if err := dialersdk.ParseResponse(resp, &result); err != nil {
		return 0, err
	}
	if result.Removed > 0 {
		return result.Removed, nil
	}
	return result.Deleted, nil
}
