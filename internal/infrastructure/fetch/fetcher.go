package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxBodyBytes bounds how much of a page is read for keyword matching.
const maxBodyBytes = 1 << 20

// ErrBlockedAddress is returned when a submitted website resolves to an
// address that is not publicly routable.
var ErrBlockedAddress = errors.New("destination address not allowed")

// Ranges that are global unicast by netip's definition but still internal.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("198.18.0.0/15"), // benchmarking
}

// Fetcher downloads web pages for the trust evaluator.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

type Option func(*options)

type options struct {
	dialer *net.Dialer
}

// WithDialer replaces the dialer that refuses non-public destinations.
func WithDialer(d *net.Dialer) Option { return func(o *options) { o.dialer = d } }

// NewFetcher builds a Fetcher that only connects to publicly routable
// addresses. The check runs on the resolved address of every connection,
// redirects included, and no proxy is used.
func NewFetcher(userAgent string, opts ...Option) *Fetcher {
	o := options{dialer: &net.Dialer{Timeout: 5 * time.Second, Control: guardAddress}}
	for _, opt := range opts {
		opt(&o)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = o.dialer.DialContext

	return &Fetcher{
		client: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after %d redirects", len(via))
				}
				return nil
			},
		},
		userAgent: userAgent,
	}
}

// guardAddress is a net.Dialer Control hook.
func guardAddress(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if !publicAddr(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ap.Addr())
	}
	return nil
}

func publicAddr(a netip.Addr) bool {
	a = a.Unmap()
	if !a.IsGlobalUnicast() || a.IsPrivate() {
		return false
	}
	for _, p := range blockedPrefixes {
		if p.Contains(a) {
			return false
		}
	}
	return true
}

// FetchURL GETs url and returns at most maxBodyBytes of the body. Non-2xx
// responses are errors. The whole exchange, body included, is bounded by
// timeout.
func (f *Fetcher) FetchURL(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return nil, fmt.Errorf("fetch %s: unsupported scheme %q", url, req.URL.Scheme)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
