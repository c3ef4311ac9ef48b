package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// NewTestServer starts an httptest.Server, or skips the test if binding a port is not permitted.
func NewTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skip: cannot listen in sandbox: %v", err)
	}

	srv := &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

// CatalogServer serves a catalog document that tests can swap between
// requests, and counts how often it was fetched.
type CatalogServer struct {
	*httptest.Server

	mu       sync.Mutex
	body     []byte
	status   int
	requests int
}

func NewCatalogServer(t *testing.T, body string) *CatalogServer {
	t.Helper()
	cs := &CatalogServer{body: []byte(body), status: http.StatusOK}
	cs.Server = NewTestServer(t, http.HandlerFunc(cs.serve))
	return cs
}

func (cs *CatalogServer) serve(w http.ResponseWriter, _ *http.Request) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.requests++
	if cs.status != http.StatusOK {
		w.WriteHeader(cs.status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(cs.body)
}

func (cs *CatalogServer) SetBody(body string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.body = []byte(body)
	cs.status = http.StatusOK
}

func (cs *CatalogServer) SetStatus(status int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.status = status
}

func (cs *CatalogServer) Requests() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.requests
}
