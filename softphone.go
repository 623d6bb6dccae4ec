/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package softphone

import (
	"context"
	"fmt"
	"sync"

	"github.com/dialforge/softphone-go-sdk/analytics"
	"github.com/dialforge/softphone-go-sdk/auth"
	"github.com/dialforge/softphone-go-sdk/calllogs"
	"github.com/dialforge/softphone-go-sdk/contacts"
	"github.com/dialforge/softphone-go-sdk/dialer"
	"github.com/dialforge/softphone-go-sdk/dialersdk"
	"github.com/dialforge/softphone-go-sdk/media"
	"github.com/dialforge/softphone-go-sdk/notifications"
	"github.com/dialforge/softphone-go-sdk/numbers"
	"github.com/dialforge/softphone-go-sdk/recordings"
	"github.com/dialforge/softphone-go-sdk/session"
)

// SoftphoneClient is the top-level client for the softphone backend.
type SoftphoneClient struct {
	// Core client for the backend API
	core *dialersdk.Client

	// Plugins
	authClient       *auth.Client
	contactsClient   *contacts.Client
	numbersClient    *numbers.Client
	callLogsClient   *calllogs.Client
	recordingsClient *recordings.Client
	analyticsClient  *analytics.Client

	// Call plumbing
	store               *session.Store
	dialerClient        *dialer.Client
	notificationsClient *notifications.Client

	// Mutex for thread-safe lazy initialization of the wired dialer
	dialMu sync.Mutex
}

// NewClient creates a new softphone client with the given access token and
// optional configuration. Use auth.Client.Login (or Auth().Login) to trade
// credentials for a token when one is not known up front; any non-empty
// placeholder works as the initial token in that case.
func NewClient(accessToken string, config *dialersdk.Config) (*SoftphoneClient, error) {
	core, err := dialersdk.NewClient(accessToken, config)
	if err != nil {
		return nil, err
	}

	return &SoftphoneClient{
		core:  core,
		store: session.NewStore(),
	}, nil
}

// Auth returns the Auth plugin
func (c *SoftphoneClient) Auth() *auth.Client {
	if c.authClient == nil {
		c.authClient = auth.New(c.core, nil)
	}
	return c.authClient
}

// Contacts returns the Contacts plugin
func (c *SoftphoneClient) Contacts() *contacts.Client {
	if c.contactsClient == nil {
		c.contactsClient = contacts.New(c.core, nil)
	}
	return c.contactsClient
}

// Numbers returns the Numbers plugin
func (c *SoftphoneClient) Numbers() *numbers.Client {
	if c.numbersClient == nil {
		c.numbersClient = numbers.New(c.core, nil)
	}
	return c.numbersClient
}

// CallLogs returns the Call Logs plugin
func (c *SoftphoneClient) CallLogs() *calllogs.Client {
	if c.callLogsClient == nil {
		c.callLogsClient = calllogs.New(c.core, nil)
	}
	return c.callLogsClient
}

// Recordings returns the Recordings plugin
func (c *SoftphoneClient) Recordings() *recordings.Client {
	if c.recordingsClient == nil {
		c.recordingsClient = recordings.New(c.core, nil)
	}
	return c.recordingsClient
}

// Analytics returns the Analytics plugin
func (c *SoftphoneClient) Analytics() *analytics.Client {
	if c.analyticsClient == nil {
		c.analyticsClient = analytics.New(c.core, nil)
	}
	return c.analyticsClient
}

// Store returns the call session store. Listeners registered on its
// Emitter see every session change, whichever channel delivered it.
func (c *SoftphoneClient) Store() *session.Store {
	return c.store
}

// Dialer returns the Dialer plugin, without push wiring. Most callers
// want StartDialer instead.
func (c *SoftphoneClient) Dialer() *dialer.Client {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()
	return c.dialerLocked(nil)
}

// Notifications returns the Notifications plugin
func (c *SoftphoneClient) Notifications() *notifications.Client {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()
	return c.notificationsLocked()
}

// StartDialer returns a fully-wired dialer for placing calls with live
// updates.
//
// This is a convenience method that abstracts away the manual setup: it
// opens the call events WebSocket, routes pushed messages into the
// dialer's reconciliation, and attaches a WebRTC media factory so calls
// carry audio. The wiring happens once; later calls return the same
// dialer.
//
// Simple usage:
//
//	d, err := client.StartDialer()
//	sess, err := d.Dial(ctx, "+14155550100", "+14155550101")
//	defer d.Hangup(ctx)
//
// For control over the individual pieces, use the lower-level APIs
// directly (dialer.New, notifications.New, media.NewSession).
func (c *SoftphoneClient) StartDialer() (*dialer.Client, error) {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	d := c.dialerLocked(func(ctx context.Context, callID string) (dialer.MediaSession, error) {
		return media.NewSession(nil)
	})

	n := c.notificationsLocked()
	n.OnMessage(d.HandleNotificationData)
	if err := n.Connect(); err != nil {
		// Reconnection continues in the background, and polling alone
		// keeps the dialer correct. Surface the error so callers can
		// log it, with the dialer still usable.
		return d, fmt.Errorf("push channel unavailable, continuing with polling: %w", err)
	}
	return d, nil
}

func (c *SoftphoneClient) dialerLocked(factory dialer.MediaFactory) *dialer.Client {
	if c.dialerClient == nil {
		config := dialer.DefaultConfig()
		config.MediaFactory = factory
		c.dialerClient = dialer.New(c.core, c.store, config)
	}
	return c.dialerClient
}

func (c *SoftphoneClient) notificationsLocked() *notifications.Client {
	if c.notificationsClient == nil {
		c.notificationsClient = notifications.New(c.core, nil)
	}
	return c.notificationsClient
}

// Core returns the core backend client
func (c *SoftphoneClient) Core() *dialersdk.Client {
	return c.core
}
