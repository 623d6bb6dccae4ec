/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package analytics reads the backend's aggregated call statistics.
package analytics

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dialforge/softphone-go-sdk/dialersdk"
)

// Summary is the account-wide call outcome rollup.
type Summary struct {
	TotalCalls      int     `json:"total_calls"`
	Completed       int     `json:"completed"`
	Failed          int     `json:"failed"`
	Busy            int     `json:"busy"`
	NoAnswer        int     `json:"no_answer"`
	AverageDuration int     `json:"average_duration"`
	SuccessRate     float64 `json:"success_rate"`
}

// DailyStats is one day's call counts.
type DailyStats struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// TopContact is a destination ranked by call count.
type TopContact struct {
	Number string `json:"_id"`
	Count  int    `json:"count"`
}

// HourPattern is the call count for one hour of the day.
type HourPattern struct {
	Hour  string `json:"hour"`
	Calls int    `json:"calls"`
}

// Config holds the configuration for the Analytics plugin.
type Config struct{}

// DefaultConfig returns the default configuration for the Analytics plugin.
func DefaultConfig() *Config {
	return &Config{}
}

// Client is the Analytics API client.
type Client struct {
	core   *dialersdk.Client
	config *Config
}

// New creates a new Analytics client.
func New(core *dialersdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{core: core, config: config}
}

// Summary returns the account-wide rollup.
func (c *Client) Summary(ctx context.Context) (*Summary, error) {
	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/analytics/summary", nil, nil)
	if err != nil {
		return nil, err
	}

	var summary Summary
	if err := dialersdk.ParseResponse(resp, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Daily returns per-day stats for the past days, oldest first.
func (c *Client) Daily(ctx context.Context, days int) ([]DailyStats, error) {
	var params url.Values
	if days > 0 {
		params = url.Values{"days": []string{strconv.Itoa(days)}}
	}

	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/analytics/daily", params, nil)
	if err != nil {
		return nil, err
	}

	var stats []DailyStats
	if err := dialersdk.ParseResponse(resp, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// TopContacts returns the most-called destinations.
func (c *Client) TopContacts(ctx context.Context, limit int) ([]TopContact, error) {
	var params url.Values
	if limit > 0 {
		params = url.Values{"limit": []string{strconv.Itoa(limit)}}
	}

	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/analytics/top-contacts", params, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		TopContacts []TopContact `json:"top_contacts"`
	}
	if err := dialersdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.TopContacts, nil
}

// CallPatterns returns call volume by hour of day.
func (c *Client) CallPatterns(ctx context.Context) ([]HourPattern, error) {
	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/analytics/call-patterns", nil, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Patterns []HourPattern `json:"patterns"`
	}
	if err := dialersdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Patterns, nil
}

// DispositionBreakdown returns call counts keyed by disposition.
func (c *Client) DispositionBreakdown(ctx context.Context) (map[string]int, error) {
	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/analytics/disposition-breakdown", nil, nil)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[string]int)
	if err := dialersdk.ParseResponse(resp, &breakdown); err != nil {
		return nil, err
	}
	return breakdown, nil
}
