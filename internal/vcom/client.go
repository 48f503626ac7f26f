// Package vcom implements the client for the VCOM monitoring API
// (System V). The surface consumed here is read-only except for ticket
// updates. Quota: 90 requests/minute and 10000/day with a 0.8s floor
// between requests, raised to 2.0s when the remaining minute budget
// runs low.
package vcom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/centroplan/vysync/internal/transport"
	"github.com/centroplan/vysync/pkg/errors"
)

// System identifier used in error classification and logging.
const System = "vcom"

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.meteocontrol.de/v2"

// Config holds the VCOM credentials and endpoint.
type Config struct {
	BaseURL  string
	APIKey   string
	Username string
	Password string
}

// Validate reports missing credentials as a startup configuration error.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.NewConfigError(System, "VCOM_API_KEY is not set", nil)
	}
	if c.Username == "" {
		return errors.NewConfigError(System, "VCOM_USERNAME is not set", nil)
	}
	if c.Password == "" {
		return errors.NewConfigError(System, "VCOM_PASSWORD is not set", nil)
	}
	return nil
}

// Client talks to the VCOM API through the rate-limited transport.
type Client struct {
	transport *transport.Client
}

// Option overrides the default client policies.
type Option func(*options)

type options struct {
	quota transport.Quota
	retry transport.Retry
}

// WithQuota replaces the default quota, e.g. to relax limits in tests.
func WithQuota(q transport.Quota) Option {
	return func(o *options) { o.quota = q }
}

// WithRetry replaces the default retry policy.
func WithRetry(r transport.Retry) Option {
	return func(o *options) { o.retry = r }
}

// New creates a VCOM client. The default quota and retry policy follow
// the API 10.000 contract level.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	o := options{
		quota: transport.Quota{
			PerMinute:     90,
			PerDay:        10000,
			MinDelay:      800 * time.Millisecond,
			AdaptiveDelay: 2 * time.Second,
			LowWater:      10,
		},
		retry: transport.Retry{
			MaxAttempts:   3,
			BackoffFactor: 2,
			Timeout:       30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	auth := transport.AuthenticatorFunc(func(req *http.Request) {
		req.Header.Set("X-API-KEY", cfg.APIKey)
		req.SetBasicAuth(cfg.Username, cfg.Password)
	})

	return &Client{transport: transport.New(System, base, o.quota, o.retry, auth)}, nil
}

// envelope is the { "data": ... } wrapper around every VCOM response.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.transport.Get(ctx, path, params)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return errors.NewValidationError("data", string(body), err.Error())
	}
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// ListSystems returns all monitored systems.
func (c *Client) ListSystems(ctx context.Context) ([]SystemSummary, error) {
	var systems []SystemSummary
	if err := c.get(ctx, "/systems", nil, &systems); err != nil {
		return nil, err
	}
	return systems, nil
}

// SystemDetails returns the detail record for one system.
func (c *Client) SystemDetails(ctx context.Context, systemKey string) (SystemDetails, error) {
	var det SystemDetails
	err := c.get(ctx, "/systems/"+systemKey, nil, &det)
	return det, err
}

// TechnicalData returns the technical data (nominal power, panels,
// string configuration) for one system.
func (c *Client) TechnicalData(ctx context.Context, systemKey string) (TechnicalData, error) {
	var td TechnicalData
	err := c.get(ctx, "/systems/"+systemKey+"/technical-data", nil, &td)
	return td, err
}

// Inverters lists the inverters of one system.
func (c *Client) Inverters(ctx context.Context, systemKey string) ([]Inverter, error) {
	var inverters []Inverter
	if err := c.get(ctx, "/systems/"+systemKey+"/inverters", nil, &inverters); err != nil {
		return nil, err
	}
	return inverters, nil
}

// InverterDetails returns the detail record for one inverter.
func (c *Client) InverterDetails(ctx context.Context, systemKey, inverterID string) (InverterDetails, error) {
	var det InverterDetails
	err := c.get(ctx, "/systems/"+systemKey+"/inverters/"+inverterID, nil, &det)
	return det, err
}

// TicketFilter narrows the ticket listing.
type TicketFilter struct {
	Status    string
	Priority  string
	SystemKey string
}

// Tickets lists tickets matching the filter.
func (c *Client) Tickets(ctx context.Context, filter TicketFilter) ([]Ticket, error) {
	params := url.Values{}
	if filter.Status != "" {
		params.Set("status", filter.Status)
	}
	if filter.Priority != "" {
		params.Set("priority", filter.Priority)
	}
	if filter.SystemKey != "" {
		params.Set("systemKey", filter.SystemKey)
	}

	var tickets []Ticket
	if err := c.get(ctx, "/tickets", params, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

// TicketDetails returns the detail record for one ticket.
func (c *Client) TicketDetails(ctx context.Context, ticketID string) (Ticket, error) {
	var t Ticket
	err := c.get(ctx, "/tickets/"+ticketID, nil, &t)
	return t, err
}

// UpdateTicket patches a ticket.
func (c *Client) UpdateTicket(ctx context.Context, ticketID string, updates map[string]any) error {
	_, err := c.transport.Update(ctx, "/tickets/"+ticketID, updates)
	return err
}

// CloseTicket closes a ticket with a summary.
func (c *Client) CloseTicket(ctx context.Context, ticketID, summary string) error {
	if summary == "" {
		summary = "Closed by vysync"
	}
	return c.UpdateTicket(ctx, ticketID, map[string]any{
		"status":  "closed",
		"summary": summary,
	})
}

// Remaining exposes the tightest remaining quota budget.
func (c *Client) Remaining() int {
	return c.transport.Remaining()
}
