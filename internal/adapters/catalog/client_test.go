package catalog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/lanes/internal/adapters/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedBody = `{"status":"OK","data":[
 {"job_id":"j1","job_title":"Go engineer","employer_name":"Acme","job_city":"Austin","job_state":"TX","job_country":"US","job_apply_link":"https://acme.test/apply"},
 {"job_id":"","job_title":"missing id"},
 {"job_id":"j2","job_title":"Solidity engineer","employer_name":"Chain","employer_logo":"https://chain.test/logo.png"}
]}`

func fastClient(url string, opts ...catalog.ClientOption) *catalog.Client {
	base := []catalog.ClientOption{
		catalog.WithRetry(3, time.Millisecond),
		catalog.WithRateLimit(1000),
	}
	return catalog.NewClient(url, append(base, opts...)...)
}

func TestClient_Fetch(t *testing.T) {
	var gotKey, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-RapidAPI-Key")
		gotQuery = r.URL.Query().Get("query")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	items, err := fastClient(srv.URL, catalog.WithAPIKey("secret"), catalog.WithQuery("web3 developer")).
		Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "j1", items[0].ID)
	assert.Equal(t, "Acme", items[0].Employer)
	assert.Equal(t, "Austin", items[0].City)
	assert.Equal(t, "https://chain.test/logo.png", items[1].LogoURL)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "web3 developer", gotQuery)
}

func TestClient_Retry(t *testing.T) {
	testCases := []struct {
		name      string
		statuses  []int
		wantErr   error
		wantCalls int32
	}{
		{name: "recovers after a 429", statuses: []int{429, 200}, wantCalls: 2},
		{name: "recovers after two 5xx", statuses: []int{503, 500, 200}, wantCalls: 3},
		{name: "gives up after three attempts", statuses: []int{502, 502, 502}, wantErr: catalog.ErrStatus, wantCalls: 3},
		{name: "does not retry a 4xx", statuses: []int{401}, wantErr: catalog.ErrStatus, wantCalls: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				n := calls.Add(1)
				status := tc.statuses[min(int(n), len(tc.statuses))-1]
				w.WriteHeader(status)
				if status == http.StatusOK {
					_, _ = w.Write([]byte(feedBody))
				}
			}))
			defer srv.Close()

			items, err := fastClient(srv.URL).Fetch(context.Background())
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
				assert.Len(t, items, 2)
			}
			assert.Equal(t, tc.wantCalls, calls.Load())
		})
	}
}

func TestClient_NotConfigured(t *testing.T) {
	_, err := catalog.NewClient("").Fetch(context.Background())
	assert.ErrorIs(t, err, catalog.ErrNotConfigured)
}

func TestClient_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fastClient(srv.URL).Fetch(ctx)
	assert.ErrorIs(t, err, catalog.ErrFetch)
}
