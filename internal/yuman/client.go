// Package yuman implements the client for the Yuman field-service API
// (System Y). The surface is read/write: sites, materials, workorders
// and their custom fields. Listings are paginated at 50 items per page
// up to 100 pages. Quota: 4 requests/second, 59/minute, 4999/day with a
// 0.25s floor between requests.
package yuman

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/centroplan/vysync/internal/transport"
	"github.com/centroplan/vysync/pkg/errors"
)

// System identifier used in error classification and logging.
const System = "yuman"

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.yuman.io/v1"

// Pagination limits of the Yuman listing endpoints.
const (
	PerPage  = 50
	MaxPages = 100
)

// Config holds the Yuman credentials and endpoint.
type Config struct {
	BaseURL string
	Token   string
}

// Validate reports a missing token as a startup configuration error.
func (c Config) Validate() error {
	if c.Token == "" {
		return errors.NewConfigError(System, "YUMAN_TOKEN is not set", nil)
	}
	return nil
}

// Client talks to the Yuman API through the rate-limited transport.
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

// New creates a Yuman client.
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
			PerSecond:     4,
			PerMinute:     59,
			PerDay:        4999,
			MinDelay:      250 * time.Millisecond,
			AdaptiveDelay: time.Second,
			LowWater:      5,
		},
		retry: transport.Retry{
			MaxAttempts:   3,
			BackoffFactor: 1.5,
			Timeout:       15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	auth := transport.AuthenticatorFunc(func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	})

	return &Client{transport: transport.New(System, base, o.quota, o.retry, auth)}, nil
}

// listResponse is the paginated wrapper of Yuman list endpoints.
type listResponse struct {
	Items      []json.RawMessage `json:"items"`
	TotalPages int               `json:"total_pages"`
}

// list merges all pages of a listing endpoint into one flat sequence.
func (c *Client) list(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	fetch := func(ctx context.Context, page, perPage int) (transport.Page, error) {
		p := url.Values{}
		for k, v := range params {
			p[k] = v
		}
		p.Set("page", strconv.Itoa(page))
		p.Set("per_page", strconv.Itoa(perPage))

		body, err := c.transport.Get(ctx, path, p)
		if err != nil {
			return transport.Page{}, err
		}
		var resp listResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return transport.Page{}, errors.NewValidationError("items", string(body), err.Error())
		}
		return transport.Page{Items: resp.Items, HasMore: page < resp.TotalPages}, nil
	}
	return transport.FetchAll(ctx, PerPage, MaxPages, fetch)
}

// listInto decodes every item of a listing into out (a *[]T).
func listInto[T any](ctx context.Context, c *Client, path string, params url.Values) ([]T, error) {
	raw, err := c.list(ctx, path, params)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, item := range raw {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, errors.NewValidationError(path, string(item), err.Error())
		}
		out = append(out, v)
	}
	return out, nil
}

func embedParams(embed string) url.Values {
	if embed == "" {
		return nil
	}
	return url.Values{"embed": {embed}}
}

// ListClients returns all Yuman clients.
func (c *Client) ListClients(ctx context.Context) ([]ClientAccount, error) {
	return listInto[ClientAccount](ctx, c, "/clients", nil)
}

// ListSites returns all sites with the given embeds (e.g. "fields,client").
func (c *Client) ListSites(ctx context.Context, embed string) ([]Site, error) {
	return listInto[Site](ctx, c, "/sites", embedParams(embed))
}

// GetSite returns one site.
func (c *Client) GetSite(ctx context.Context, siteID int) (Site, error) {
	body, err := c.transport.Get(ctx, fmt.Sprintf("/sites/%d", siteID), embedParams("fields"))
	if err != nil {
		return Site{}, err
	}
	var s Site
	err = json.Unmarshal(body, &s)
	return s, err
}

// CreateSite creates a site and returns the created record.
func (c *Client) CreateSite(ctx context.Context, payload SitePayload) (Site, error) {
	body, err := c.transport.Create(ctx, "/sites", payload)
	if err != nil {
		return Site{}, err
	}
	var s Site
	err = json.Unmarshal(body, &s)
	return s, err
}

// UpdateSite patches a site.
func (c *Client) UpdateSite(ctx context.Context, siteID int, payload SitePayload) error {
	_, err := c.transport.Update(ctx, fmt.Sprintf("/sites/%d", siteID), payload)
	return err
}

// ListMaterials returns all materials, optionally filtered by category.
func (c *Client) ListMaterials(ctx context.Context, embed string, categoryID int) ([]Material, error) {
	params := embedParams(embed)
	if categoryID > 0 {
		if params == nil {
			params = url.Values{}
		}
		params.Set("category_id", strconv.Itoa(categoryID))
	}
	return listInto[Material](ctx, c, "/materials", params)
}

// CreateMaterial creates a material and returns the created record.
func (c *Client) CreateMaterial(ctx context.Context, payload MaterialPayload) (Material, error) {
	body, err := c.transport.Create(ctx, "/materials", payload)
	if err != nil {
		return Material{}, err
	}
	var m Material
	err = json.Unmarshal(body, &m)
	return m, err
}

// UpdateMaterial patches a material.
func (c *Client) UpdateMaterial(ctx context.Context, materialID int, payload MaterialPayload) error {
	_, err := c.transport.Update(ctx, fmt.Sprintf("/materials/%d", materialID), payload)
	return err
}

// ListWorkorders returns all workorders.
func (c *Client) ListWorkorders(ctx context.Context) ([]Workorder, error) {
	return listInto[Workorder](ctx, c, "/workorders", embedParams("fields"))
}

// CreateWorkorder creates a workorder and returns the created record.
func (c *Client) CreateWorkorder(ctx context.Context, payload WorkorderPayload) (Workorder, error) {
	body, err := c.transport.Create(ctx, "/workorders", payload)
	if err != nil {
		return Workorder{}, err
	}
	var w Workorder
	err = json.Unmarshal(body, &w)
	return w, err
}

// UpdateWorkorder patches a workorder.
func (c *Client) UpdateWorkorder(ctx context.Context, workorderID int, payload WorkorderPayload) error {
	_, err := c.transport.Update(ctx, fmt.Sprintf("/workorders/%d", workorderID), payload)
	return err
}

// Remaining exposes the tightest remaining quota budget.
func (c *Client) Remaining() int {
	return c.transport.Remaining()
}
