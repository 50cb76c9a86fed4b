package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browserstealth/internal/profile"
	"browserstealth/internal/serviceworker"
	"browserstealth/pkg/logger"
)

type fakeWorkers struct {
	mu           sync.Mutex
	workers      []serviceworker.Worker
	unregistered []string
	stopped      int
	fail         bool
}

func (f *fakeWorkers) GetWorkers() []serviceworker.Worker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workers
}

func (f *fakeWorkers) Unregister(_ context.Context, scope string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false
	}
	f.unregistered = append(f.unregistered, scope)
	return true
}

func (f *fakeWorkers) UnregisterAll(ctx context.Context) int {
	n := 0
	for _, w := range f.GetWorkers() {
		if f.Unregister(ctx, w.ScopeURL) {
			n++
		}
	}
	return n
}

func (f *fakeWorkers) StopAll(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeWorkers) ShouldBlockDomain(domain string) bool {
	return strings.HasSuffix(domain, "ads.example")
}

func newTestServer(t *testing.T, workers WorkerController) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(workers, profile.ResolvePreset(profile.PresetStealth), logger.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodGet, srv.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "ok", decode[HealthResponse](t, resp).Status)
}

func TestResolveProfile(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodPost, srv.URL+"/profiles/resolve",
		`{"preset":"stealth","fingerprint":{"viewport_width":1600}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[profile.Resolved](t, resp)
	assert.Equal(t, 1600, got.Fingerprint.ViewportWidth)
	assert.True(t, got.AntiDetection.HideWebdriver)

	resp = do(t, http.MethodPost, srv.URL+"/profiles/resolve", `{"preset":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionProfile(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodGet, srv.URL+"/session/profile", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, profile.ResolvePreset(profile.PresetStealth), decode[profile.Resolved](t, resp))
}

func TestWorkerRoutes(t *testing.T) {
	workers := &fakeWorkers{workers: []serviceworker.Worker{
		{RegistrationID: "1", ScopeURL: "https://a.example/", Status: serviceworker.StatusRunning},
		{RegistrationID: "2", ScopeURL: "https://b.example/", Status: serviceworker.StatusStopped},
	}}
	srv := newTestServer(t, workers)

	resp := do(t, http.MethodGet, srv.URL+"/workers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]serviceworker.Worker](t, resp), 2)

	resp = do(t, http.MethodPost, srv.URL+"/workers/unregister", `{"scope":"https://a.example/"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"https://a.example/"}, workers.unregistered)

	resp = do(t, http.MethodPost, srv.URL+"/workers/unregister", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/workers/unregister-all", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decode[UnregisterResponse](t, resp).Unregistered)

	resp = do(t, http.MethodPost, srv.URL+"/workers/stop-all", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, workers.stopped)
}

func TestUnregisterFailure(t *testing.T) {
	srv := newTestServer(t, &fakeWorkers{fail: true})

	resp := do(t, http.MethodPost, srv.URL+"/workers/unregister", `{"scope":"https://a.example/"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestWorkerPolicy(t *testing.T) {
	srv := newTestServer(t, &fakeWorkers{})

	resp := do(t, http.MethodGet, srv.URL+"/workers/policy?domain=cdn.ads.example", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, PolicyResponse{Domain: "cdn.ads.example", Blocked: true}, decode[PolicyResponse](t, resp))

	resp = do(t, http.MethodGet, srv.URL+"/workers/policy", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWorkerRoutesWithoutController(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodGet, srv.URL+"/workers", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := New(nil, profile.Defaults(), logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	assert.NoError(t, <-done)
}
