package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centroplan/vysync/pkg/errors"
	"github.com/centroplan/vysync/pkg/logging"
)

func newTestClient(t *testing.T, baseURL string, attempts int) *Client {
	t.Helper()
	c := New("test", baseURL, Quota{}, Retry{MaxAttempts: attempts, BackoffFactor: 2, Timeout: 5 * time.Second},
		AuthenticatorFunc(func(req *http.Request) {
			req.Header.Set("X-API-KEY", "secret")
		}))
	// No real sleeping in tests.
	c.sleep = func(context.Context, time.Duration) error { return nil }
	c.limiter.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestGetAppliesAuthAndReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		fmt.Fprint(w, `{"data":[{"key":"SYS1"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	body, err := c.Get(context.Background(), "/systems", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"key":"SYS1"}]}`, string(body))
}

func TestRetryOn429EventuallySucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	body, err := c.Get(context.Background(), "/systems", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryExhaustionIsTransientAndStops(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	_, err := c.Get(context.Background(), "/systems", nil)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.ErrorIs(t, err, errors.ErrRemoteUnavailable)
	// Exactly the attempt cap, then no further request.
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryDiagnosticsUseContextLogger(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := logging.New(&buf).Level(zerolog.WarnLevel)
	ctx := logging.WithLogger(context.Background(), &logger)

	c := newTestClient(t, srv.URL, 3)
	_, err := c.Get(ctx, "/systems", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Transient failure, retrying")
}

func TestClientErrorFailsImmediatelyWithBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":"name is required"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	_, err := c.Create(context.Background(), "/sites", map[string]string{"address": "x"})
	require.Error(t, err)
	assert.False(t, errors.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *errors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 422, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "name is required")
}

func TestUpdateSendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var got map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "Site Alpha", got["name"])
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	_, err := c.Update(context.Background(), "/sites/77", map[string]string{"name": "Site Alpha"})
	require.NoError(t, err)
}

func TestFetchAllMergesPagesInOrder(t *testing.T) {
	// N pages of varying sizes must come back flat, ordered, complete.
	cases := []struct {
		name  string
		sizes []int
	}{
		{"single page", []int{3}},
		{"two pages", []int{50, 17}},
		{"hundred pages", func() []int {
			s := make([]int, 100)
			for i := range s {
				s[i] = 2
			}
			return s
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			total := 0
			for _, n := range tc.sizes {
				total += n
			}

			seq := 0
			fetch := func(_ context.Context, page, _ int) (Page, error) {
				require.LessOrEqual(t, page, len(tc.sizes))
				items := make([]json.RawMessage, tc.sizes[page-1])
				for i := range items {
					items[i] = json.RawMessage(fmt.Sprintf(`{"n":%d}`, seq))
					seq++
				}
				return Page{Items: items, HasMore: page < len(tc.sizes)}, nil
			}

			items, err := FetchAll(context.Background(), 50, 100, fetch)
			require.NoError(t, err)
			require.Len(t, items, total)
			for i, raw := range items {
				var row struct{ N int }
				require.NoError(t, json.Unmarshal(raw, &row))
				assert.Equal(t, i, row.N, "no gaps, no duplicates, in order")
			}
		})
	}
}

func TestFetchAllStopsOnEmptyPage(t *testing.T) {
	fetch := func(_ context.Context, page, _ int) (Page, error) {
		if page > 2 {
			return Page{HasMore: true}, nil // empty page despite has_more
		}
		return Page{Items: []json.RawMessage{json.RawMessage(`{}`)}, HasMore: true}, nil
	}

	items, err := FetchAll(context.Background(), 50, 10, fetch)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestFetchAllHonorsMaxPages(t *testing.T) {
	var fetched int
	fetch := func(_ context.Context, page, _ int) (Page, error) {
		fetched++
		return Page{Items: []json.RawMessage{json.RawMessage(`{}`)}, HasMore: true}, nil
	}

	items, err := FetchAll(context.Background(), 50, 5, fetch)
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.Equal(t, 5, fetched)
}
