/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package contacts provides a client for the contact book APIs.
package contacts

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dialforge/softphone-go-sdk/dialersdk"
)

// Contact represents an entry in the contact book.
type Contact struct {
	ID         string `json:"_id,omitempty"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
	Notes      string `json:"notes,omitempty"`
	Category   string `json:"category,omitempty"`
	IsFavorite bool   `json:"is_favorite,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// Config holds the configuration for the Contacts plugin.
type Config struct{}

// DefaultConfig returns the default configuration for the Contacts plugin.
func DefaultConfig() *Config {
	return &Config{}
}

// Client is the Contacts API client.
type Client struct {
	core   *dialersdk.Client
	config *Config
}

// New creates a new Contacts client.
func New(core *dialersdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{core: core, config: config}
}

// List returns all contacts, optionally filtered by category.
func (c *Client) List(ctx context.Context, category string) ([]Contact, error) {
	var params url.Values
	if category != "" {
		params = url.Values{"category": []string{category}}
	}

	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/contacts/", params, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Contacts []Contact `json:"contacts"`
	}
	if err := dialersdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Contacts, nil
}

// Favorites returns the contacts marked as favorites.
func (c *Client) Favorites(ctx context.Context) ([]Contact, error) {
	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/contacts/favorites", nil, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Contacts []Contact `json:"contacts"`
	}
	if err := dialersdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Contacts, nil
}

// Create adds a contact and returns its ID.
func (c *Client) Create(ctx context.Context, contact *Contact) (string, error) {
	if contact == nil || contact.Name == "" || contact.Phone == "" {
		return "", fmt.Errorf("contact name and phone are required")
	}

	resp, err := c.core.RequestWithContext(ctx, http.MethodPost, "api/contacts/", nil, contact)
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

// Get fetches a single contact by ID.
func (c *Client) Get(ctx context.Context, contactID string) (*Contact, error) {
	resp, err := c.core.RequestWithContext(ctx, http.MethodGet, "api/contacts/"+contactID, nil, nil)
	if err != nil {
		return nil, err
	}

	var contact Contact
	if err := dialersdk.ParseResponse(resp, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

// Update replaces a contact's fields.
func (c *Client) Update(ctx context.Context, contactID string, contact *Contact) error {
	resp, err := c.core.RequestWithContext(ctx, http.MethodPut, "api/contacts/"+contactID, nil, contact)
	if err != nil {
		return err
	}
	return dialersdk.ParseResponse(resp, nil)
}

// ToggleFavorite flips a contact's favorite flag and returns the new value.
func (c *Client) ToggleFavorite(ctx context.Context, contactID string) (bool, error) {
	resp, err := c.core.RequestWithContext(ctx, http.MethodPost, "api/contacts/"+contactID+"/favorite", nil, nil)
	if err != nil {
		return false, err
	}

	var result struct {
		IsFavorite bool `json:"is_favorite"`
	}
	if err := dialersdk.ParseResponse(resp, &result); err != nil {
		return false, err
	}
	return result.IsFavorite, nil
}

// Delete removes a contact.
func (c *Client) Delete(ctx context.Context, contactID string) error {
	resp, err := c.core.RequestWithContext(ctx, http.MethodDelete, "api/contacts/"+contactID, nil, nil)
	if err != nil {
		return err
	}
	return dialersdk.ParseResponse(resp, nil)
}
