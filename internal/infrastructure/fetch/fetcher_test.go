package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// httptest servers listen on loopback, which the default dialer refuses.
func loopbackAllowed() Option { return WithDialer(&net.Dialer{}) }

func TestFetchURL_ReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "verify-bot", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("School of Medicine"))
	}))
	defer srv.Close()

	body, err := NewFetcher("verify-bot", loopbackAllowed()).FetchURL(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "School of Medicine", string(body))
}

func TestFetchURL_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFetcher("", loopbackAllowed()).FetchURL(context.Background(), srv.URL, time.Second)
	assert.ErrorContains(t, err, "unexpected status 404")
}

func TestFetchURL_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewFetcher("", loopbackAllowed()).FetchURL(context.Background(), srv.URL, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchURL_BodyIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", maxBodyBytes+100)))
	}))
	defer srv.Close()

	body, err := NewFetcher("", loopbackAllowed()).FetchURL(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.Len(t, body, maxBodyBytes)
}

func TestFetchURL_RefusesLoopbackByDefault(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit = true
	}))
	defer srv.Close()

	_, err := NewFetcher("").FetchURL(context.Background(), srv.URL, time.Second)
	assert.ErrorIs(t, err, ErrBlockedAddress)
	assert.False(t, hit)
}

func TestFetchURL_RefusesRedirectToLoopback(t *testing.T) {
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("admin console"))
	}))
	defer internal.Close()
	// the first hop is allowed by a dialer that only blocks the internal port
	_, internalPort, _ := net.SplitHostPort(strings.TrimPrefix(internal.URL, "http://"))
	edge := httptest.NewServer(http.RedirectHandler(internal.URL, http.StatusFound))
	defer edge.Close()

	d := &net.Dialer{Control: func(network, address string, c syscall.RawConn) error {
		if _, port, _ := net.SplitHostPort(address); port == internalPort {
			return guardAddress(network, address, c)
		}
		return nil
	}}
	_, err := NewFetcher("", WithDialer(d)).FetchURL(context.Background(), edge.URL, time.Second)
	assert.ErrorIs(t, err, ErrBlockedAddress)
}

func TestFetchURL_UnsupportedScheme(t *testing.T) {
	_, err := NewFetcher("").FetchURL(context.Background(), "file:///etc/passwd", time.Second)
	assert.ErrorContains(t, err, "unsupported scheme")
}

func TestGuardAddress(t *testing.T) {
	cases := []struct {
		address string
		allowed bool
	}{
		{"93.184.216.34:443", true},
		{"[2606:2800:220:1:248:1893:25c8:1946]:443", true},
		{"127.0.0.1:80", false},
		{"[::1]:80", false},
		{"169.254.169.254:80", false},
		{"10.1.2.3:443", false},
		{"172.16.0.5:443", false},
		{"192.168.1.1:80", false},
		{"100.64.0.1:80", false},
		{"0.0.0.0:80", false},
		{"[::ffff:127.0.0.1]:80", false},
		{"[fd00::1]:443", false},
		{"[fe80::1]:443", false},
	}
	for _, tc := range cases {
		t.Run(tc.address, func(t *testing.T) {
			err := guardAddress("tcp", tc.address, nil)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrBlockedAddress)
			}
		})
	}
}
