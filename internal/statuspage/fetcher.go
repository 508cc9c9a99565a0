package statuspage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ErrFetch is wrapped by every error Fetch returns.
var ErrFetch = errors.New("status page fetch failed")

// maxBodyBytes caps how much of the page is read.
const maxBodyBytes = 4 << 20

// Fetcher retrieves the raw status page text.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// HTTPFetcher performs one GET per Fetch call. It never retries; the next
// scheduled poll is the retry.
type HTTPFetcher struct {
	url       string
	timeout   time.Duration
	userAgent string
	client    *http.Client
}

// NewHTTPFetcher creates a fetcher for url with a per-request timeout.
func NewHTTPFetcher(url string, timeout time.Duration, userAgent string) *HTTPFetcher {
	if userAgent == "" {
		userAgent = "ptbot-status-monitor/1.0"
	}
	return &HTTPFetcher{
		url:       url,
		timeout:   timeout,
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: timeout,
				MaxIdleConns:          2,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// URL returns the page address.
func (f *HTTPFetcher) URL() string { return f.url }

// Fetch returns the page body on HTTP 200. Any other outcome is an error
// wrapping ErrFetch.
func (f *HTTPFetcher) Fetch(ctx context.Context) (string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("%w: HTTP %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	return string(body), nil
}

// FetchSnapshot fetches the page once and parses it.
func FetchSnapshot(ctx context.Context, f Fetcher) (*Snapshot, error) {
	text, err := f.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(text), nil
}
