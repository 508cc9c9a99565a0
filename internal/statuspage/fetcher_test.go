package statuspage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		delay      time.Duration
		timeout    time.Duration
		wantErr    bool
		wantErrMsg string
	}{
		{name: "200 returns body", status: http.StatusOK, body: "All Systems Operational", timeout: time.Second},
		{name: "500 fails", status: http.StatusInternalServerError, body: "oops", timeout: time.Second, wantErr: true, wantErrMsg: "HTTP 500"},
		{name: "404 fails", status: http.StatusNotFound, timeout: time.Second, wantErr: true, wantErrMsg: "HTTP 404"},
		{name: "204 is not 200", status: http.StatusNoContent, timeout: time.Second, wantErr: true, wantErrMsg: "HTTP 204"},
		{name: "timeout fails", status: http.StatusOK, delay: 200 * time.Millisecond, timeout: 50 * time.Millisecond, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUA string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUA = r.Header.Get("User-Agent")
				assert.Equal(t, http.MethodGet, r.Method)
				if tt.delay > 0 {
					select {
					case <-time.After(tt.delay):
					case <-r.Context().Done():
						return
					}
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			f := NewHTTPFetcher(srv.URL, tt.timeout, "")
			body, err := f.Fetch(context.Background())

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrFetch))
				if tt.wantErrMsg != "" {
					assert.Contains(t, err.Error(), tt.wantErrMsg)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.body, body)
			assert.Equal(t, "ptbot-status-monitor/1.0", gotUA)
		})
	}
}

func TestHTTPFetcher_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPFetcher(url, time.Second, "test").Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
}

type stubFetcher struct {
	text string
	err  error
}

func (s stubFetcher) Fetch(context.Context) (string, error) { return s.text, s.err }

func TestFetchSnapshot(t *testing.T) {
	snap, err := FetchSnapshot(context.Background(), stubFetcher{text: "FiveM Operational All Systems Operational"})
	require.NoError(t, err)
	st, _ := snap.Status("fivem")
	assert.Equal(t, StatusOperational, st)
	assert.Equal(t, OverallOperational, snap.Overall)

	_, err = FetchSnapshot(context.Background(), stubFetcher{err: ErrFetch})
	assert.ErrorIs(t, err, ErrFetch)
}
