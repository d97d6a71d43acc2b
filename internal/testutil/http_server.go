package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newIPv4Server binds handler to an explicit IPv4 loopback listener
// rather than httptest's default, since some sandboxed CI runners don't
// have a usable IPv6 stack. It returns the bind error to its caller:
// NewHTTPServer falls back to httptest's default listener, since it has
// no *testing.T to skip with, and NewHTTPServerT skips the test.
func newIPv4Server(handler http.Handler) (*httptest.Server, error) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	srv := &httptest.Server{
		Listener: ln,
		Config:   &http.Server{Handler: handler},
	}
	srv.Start()
	return srv, nil
}

// NewHTTPServer starts an httptest server bound to IPv4, falling back to
// httptest's default listener if an IPv4 loopback bind fails.
func NewHTTPServer(handler http.Handler) *httptest.Server {
	srv, err := newIPv4Server(handler)
	if err != nil {
		return httptest.NewServer(handler)
	}
	return srv
}

// NewHTTPServerT starts an httptest server bound to IPv4 and skips the
// test if binding fails.
func NewHTTPServerT(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv, err := newIPv4Server(handler)
	if err != nil {
		t.Skipf("tcp4 listener unavailable: %v", err)
		return nil
	}
	return srv
}
