// Package taskdecksdk is a Go client for the Taskdeck HTTP API. Its Table and
// OrderStore satisfy the same contracts as the local SQLite store, so the
// dashboard engine runs unchanged against a hosted server.
package taskdecksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"taskdeck/internal/domain"
	"taskdeck/internal/remote"
)

// Client talks to one API base, e.g. http://127.0.0.1:8787/v0.
type Client struct {
	BaseURL string
	// Token is sent as a bearer JWT. When empty, calls carry X-Owner-Id instead.
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses. 404 and schema_unavailable unwrap to the
// matching remote errors.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return remote.ErrNotFound
	case e.Code == "schema_unavailable" || e.StatusCode == http.StatusServiceUnavailable:
		return remote.ErrSchemaUnavailable
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		e.Code = env.Error.Code
	}
	return e
}

func (c *Client) Tasks() *Table[domain.Task]       { return NewTable[domain.Task](c, remote.Tasks) }
func (c *Client) Projects() *Table[domain.Project] { return NewTable[domain.Project](c, remote.Projects) }
func (c *Client) SalesTargets() *Table[domain.SalesTarget] {
	return NewTable[domain.SalesTarget](c, remote.SalesTargets)
}
func (c *Client) FocusModes() *Table[domain.FocusMode] {
	return NewTable[domain.FocusMode](c, remote.FocusModes)
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", "", nil, nil)
}

// Stats returns active task counts by status.
func (c *Client) Stats(ctx context.Context, ownerID string) (map[string]int, error) {
	var resp map[string]int
	err := c.do(ctx, http.MethodGet, "stats", ownerID, nil, &resp)
	return resp, err
}

var _ remote.OrderStore = (*Client)(nil)

func (c *Client) GetOrder(ctx context.Context, ownerID, scope string) (domain.TabOrder, error) {
	var resp domain.TabOrder
	endpoint := remote.TabOrders
	if scope != "" {
		endpoint += "?scope=" + url.QueryEscape(scope)
	}
	err := c.do(ctx, http.MethodGet, endpoint, ownerID, nil, &resp)
	return resp, err
}

func (c *Client) InsertOrder(ctx context.Context, o domain.TabOrder) error {
	return c.do(ctx, http.MethodPost, remote.TabOrders, o.OwnerID, orderBody(o), nil)
}

func (c *Client) UpdateOrder(ctx context.Context, o domain.TabOrder) error {
	return c.do(ctx, http.MethodPut, remote.TabOrders, o.OwnerID, orderBody(o), nil)
}

func orderBody(o domain.TabOrder) map[string]any {
	ids := o.IDs
	if ids == nil {
		ids = []string{}
	}
	body := map[string]any{"ids": ids}
	if o.Scope != "" {
		body["scope"] = o.Scope
	}
	return body
}

func (c *Client) do(ctx context.Context, method, endpoint, ownerID string, body any, out any) error {
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req.Header, ownerID)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, b)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// httpClient never writes back to c, so one Client is safe for concurrent use.
func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}

func (c *Client) authorize(h http.Header, ownerID string) {
	switch {
	case c.Token != "":
		h.Set("Authorization", "Bearer "+c.Token)
	case ownerID != "":
		h.Set("X-Owner-Id", ownerID)
	}
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

// Table is remote.Table over /{collection}.
type Table[T any] struct {
	client     *Client
	collection string
}

var _ remote.Table[domain.Task] = (*Table[domain.Task])(nil)

func NewTable[T any](c *Client, collection string) *Table[T] {
	return &Table[T]{client: c, collection: collection}
}

func (t *Table[T]) List(ctx context.Context, ownerID string, q remote.Query) ([]T, error) {
	params := url.Values{}
	if q.OrderBy != "" {
		params.Set("order_by", q.OrderBy)
	}
	if q.Descending {
		params.Set("desc", "true")
	}
	if q.IncludeArchived {
		params.Set("include_archived", "true")
	}
	if len(q.Filters) > 0 {
		cols := make([]string, 0, len(q.Filters))
		for col := range q.Filters {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		filters := make([]string, len(cols))
		for i, col := range cols {
			filters[i] = col + ":" + q.Filters[col]
		}
		params.Set("filter", strings.Join(filters, ","))
	}
	endpoint := t.collection
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp struct {
		Items []T `json:"items"`
	}
	err := t.client.do(ctx, http.MethodGet, endpoint, ownerID, nil, &resp)
	return resp.Items, err
}

func (t *Table[T]) Get(ctx context.Context, ownerID, id string) (T, error) {
	var resp T
	err := t.client.do(ctx, http.MethodGet, t.rowPath(id), ownerID, nil, &resp)
	return resp, err
}

func (t *Table[T]) Insert(ctx context.Context, row T) (T, error) {
	var resp T
	err := t.client.do(ctx, http.MethodPost, t.collection, ownerOf(row), row, &resp)
	return resp, err
}

func (t *Table[T]) Update(ctx context.Context, row T) (T, error) {
	var resp T
	id := idOf(row)
	if id == "" {
		return resp, errors.New("id is required")
	}
	err := t.client.do(ctx, http.MethodPut, t.rowPath(id), ownerOf(row), row, &resp)
	return resp, err
}

func (t *Table[T]) Delete(ctx context.Context, ownerID, id string) error {
	return t.client.do(ctx, http.MethodDelete, t.rowPath(id), ownerID, nil, nil)
}

func (t *Table[T]) rowPath(id string) string {
	return t.collection + "/" + url.PathEscape(id)
}

// ownerOf and idOf read the common row fields without a per-type codec.
func ownerOf(row any) string {
	if o, ok := row.(interface{ Owner() string }); ok {
		return o.Owner()
	}
	return fieldOf(row, "owner_id")
}

func idOf(row any) string {
	if o, ok := row.(interface{ EntityID() string }); ok {
		return o.EntityID()
	}
	return fieldOf(row, "id")
}

func fieldOf(row any, key string) string {
	data, err := json.Marshal(row)
	if err != nil {
		return ""
	}
	var m map[string]any
	if json.Unmarshal(data, &m) != nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
