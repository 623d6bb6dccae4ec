/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package numbers manages the virtual numbers used as outbound caller IDs.
package numbers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dialforge/softphone-go-sdk/dialersdk"
)

// Number is a virtual number owned by the account.
type Number struct {
	ID        string `json:"_id,omitempty"`
	Number    string `json:"number"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status,omitempty"`
	IsDefault bool   `json:"is_default,omitempty"`
}

// AvailableNumber is a purchasable number from a search.
type AvailableNumber struct {
	Number  string `json:"number"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
}

// Config holds the configuration for the Numbers plugin.
type Config struct{}

// DefaultConfig returns the default configuration for the Numbers plugin.
func DefaultConfig() *Config {
	return &Config{}
}

// Client is the Numbers API client.
type Client struct {
	core   *dialersdk.Client
	config *Config
}

// New creates a new Numbers client.
func New(core *dialersdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{core: core, config: config}
}

// List returns every virtual number on the account.
func (c *Client) List(ctx context.Context) ([]Number, error) {
	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/numbers/", nil, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Numbers []Number `json:"numbers"`
	}
	if err := dialersdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Numbers, nil
}

// Create registers a new virtual number.
func (c *Client) Create(ctx context.Context, number *Number) (string, error) {
	if number == nil || number.Number == "" {
		return "", fmt.Errorf("number is required")
	}

	resp, err := c.core.RequestWithContext(ctx, http.MethodPost, "api/numbers/", nil, number)
	if err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := dialersdk.ParseResponse(resp, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// Search looks up purchasable numbers by country and area code.
func (c *Client) Search(ctx context.Context, countryCode, areaCode string) ([]AvailableNumber, error) {
	params := url.Values{}
	if countryCode != "" {
		params.Set("country_code", countryCode)
	}
	if areaCode != "" {
		params.Set("area_code", areaCode)
	}

	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/numbers/search", params, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		AvailableNumbers []AvailableNumber `json:"available_numbers"`
	}
	if err := dialersdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.AvailableNumbers, nil
}

// Update changes a number's name or status.
func (c *Client) Update(ctx context.Context, numberID string, number *Number) error {
	resp, err := c.core.RequestWithContext(ctx, http.MethodPut, "api/numbers/"+numberID, nil, number)
	if err != nil {
		return err
	}
	return dialersdk.ParseResponse(resp, nil)
}

// Delete removes a virtual number from the account.
func (c *Client) Delete(ctx context.Context, numberID string) error {
	resp, err := c.core.RequestWithContext(ctx, http.MethodDelete, "api/numbers/"+numberID, nil, nil)
	if err != nil {
		return err
	}
	return dialersdk.ParseResponse(resp, nil)
}

// SetDefault makes a number the default outbound caller ID. Only one
// number is default at a time; the backend clears the previous one.
func (c *Client) SetDefault(ctx context.Context, numberID string) error {
	resp, err := c.core.RequestWithContext(ctx, http.MethodPost, "api/numbers/"+numberID+"/set-default", nil, nil)
	if err != nil {
		return err
	}
	return dialersdk.ParseResponse(resp, nil)
}

// Default returns the current default outbound caller ID.
func (c *Client) Default(ctx context.Context) (*Number, error) {
	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/numbers/default", nil, nil)
	if err != nil {
		return nil, err
	}

	var number Number
	if err := dialersdk.ParseResponse(resp, &number); err != nil {
		return nil, err
	}
	return &number, nil
}
