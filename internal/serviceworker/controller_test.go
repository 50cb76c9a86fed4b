package serviceworker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method string
	params interface{}
}

// fakeClient records protocol calls and fails the methods listed in fail.
type fakeClient struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]error
	delay time.Duration
}

func (f *fakeClient) Call(ctx context.Context, _, method string, params interface{}) ([]byte, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method: method, params: params})
	if err := f.fail[method]; err != nil {
		return nil, err
	}
	return []byte("{}"), nil
}

func (f *fakeClient) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

func (f *fakeClient) unregistered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var scopes []string
	for _, c := range f.calls {
		if c.method == "ServiceWorker.unregister" {
			scopes = append(scopes, c.params.(proto.ServiceWorkerUnregister).ScopeURL)
		}
	}
	return scopes
}

func started(t *testing.T, client *fakeClient, ctl Control, opts ...Option) *Controller {
	t.Helper()
	c := New(client, ctl, opts...)
	require.True(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Detach(context.Background()) })
	return c
}

func TestStartEnablesDomain(t *testing.T) {
	client := &fakeClient{}
	c := started(t, client, Control{Mode: ModeAllow})

	assert.True(t, c.Enabled())
	assert.Equal(t, []string{"ServiceWorker.enable"}, client.methods())
}

func TestStartFailureDisablesController(t *testing.T) {
	client := &fakeClient{fail: map[string]error{"ServiceWorker.enable": errors.New("not supported")}}
	c := New(client, Control{Mode: ModeBlock})

	assert.False(t, c.Start(context.Background()))
	assert.False(t, c.Enabled())
	assert.False(t, c.Unregister(context.Background(), "https://a.test/"))
	assert.Zero(t, c.UnregisterAll(context.Background()))
	c.StopAll(context.Background())

	assert.Equal(t, []string{"ServiceWorker.enable"}, client.methods())
}

func TestGetWorkersJoinsLatestVersion(t *testing.T) {
	c := started(t, &fakeClient{}, Control{Mode: ModeAllow})

	c.HandleRegistrations([]Registration{
		{RegistrationID: "1", ScopeURL: "https://a.test/"},
		{RegistrationID: "2", ScopeURL: "https://b.test/app/"},
	})
	c.HandleVersions([]Version{
		{VersionID: "10", RegistrationID: "1", ScriptURL: "https://a.test/sw-old.js", RunningStatus: "stopped"},
	})
	c.HandleVersions([]Version{
		{VersionID: "11", RegistrationID: "1", ScriptURL: "https://a.test/sw.js", RunningStatus: "running", Status: "activated"},
	})

	workers := c.GetWorkers()
	require.Len(t, workers, 2)
	assert.Equal(t, Worker{
		RegistrationID: "1",
		ScopeURL:       "https://a.test/",
		ScriptURL:      "https://a.test/sw.js",
		VersionID:      "11",
		Status:         StatusRunning,
	}, workers[0])
	assert.Equal(t, Worker{
		RegistrationID: "2",
		ScopeURL:       "https://b.test/app/",
		Status:         StatusStopped,
	}, workers[1])
}

func TestVersionUpdateReplacesByID(t *testing.T) {
	c := started(t, &fakeClient{}, Control{Mode: ModeAllow})

	c.HandleRegistrations([]Registration{{RegistrationID: "1", ScopeURL: "https://a.test/"}})
	c.HandleVersions([]Version{{VersionID: "5", RegistrationID: "1", ScriptURL: "https://a.test/sw.js", RunningStatus: "starting"}})
	assert.Equal(t, StatusActivating, c.GetWorkers()[0].Status)

	c.HandleVersions([]Version{{VersionID: "5", RegistrationID: "1", ScriptURL: "https://a.test/sw.js", RunningStatus: "running"}})
	assert.Equal(t, StatusRunning, c.GetWorkers()[0].Status)
}

func TestDeletedRegistrationIsRemoved(t *testing.T) {
	var events []Event
	c := started(t, &fakeClient{}, Control{Mode: ModeAllow}, WithObserver(func(e Event) { events = append(events, e) }))

	c.HandleRegistrations([]Registration{{RegistrationID: "1", ScopeURL: "https://a.test/"}})
	c.HandleRegistrations([]Registration{{RegistrationID: "1", ScopeURL: "https://a.test/"}})
	c.HandleRegistrations([]Registration{{RegistrationID: "1", ScopeURL: "https://a.test/", IsDeleted: true}})

	assert.Empty(t, c.GetWorkers())
	require.Len(t, events, 2)
	assert.Equal(t, EventRegistered, events[0].Kind)
	assert.Equal(t, EventDeleted, events[1].Kind)
}

func TestBlockedRegistrationIsUnregistered(t *testing.T) {
	client := &fakeClient{}
	c := started(t, client, Control{Mode: ModeBlockOnDomain, BlockedDomains: []string{"*.tracker.test"}})

	c.HandleRegistrations([]Registration{
		{RegistrationID: "1", ScopeURL: "https://cdn.tracker.test/"},
		{RegistrationID: "2", ScopeURL: "https://news.test/"},
	})

	require.Eventually(t, func() bool { return len(client.unregistered()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"https://cdn.tracker.test/"}, client.unregistered())
}

func TestUnregisterAllMode(t *testing.T) {
	client := &fakeClient{}
	c := started(t, client, Control{Mode: ModeUnregisterAll})

	c.HandleRegistrations([]Registration{
		{RegistrationID: "1", ScopeURL: "https://a.test/"},
		{RegistrationID: "2", ScopeURL: "https://b.test/"},
	})

	require.Eventually(t, func() bool { return len(client.unregistered()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"https://a.test/", "https://b.test/"}, client.unregistered())
}

func TestUnregisterOnStartPurgesFirstBatchOnly(t *testing.T) {
	client := &fakeClient{}
	c := started(t, client, Control{Mode: ModeAllow, UnregisterOnStart: true})

	c.HandleRegistrations(nil)
	c.HandleRegistrations([]Registration{{RegistrationID: "1", ScopeURL: "https://old.test/"}})
	require.Eventually(t, func() bool { return len(client.unregistered()) == 1 }, time.Second, 5*time.Millisecond)

	c.HandleRegistrations([]Registration{{RegistrationID: "2", ScopeURL: "https://new.test/"}})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"https://old.test/"}, client.unregistered())
}

func TestUnregisterReportsFailure(t *testing.T) {
	client := &fakeClient{fail: map[string]error{"ServiceWorker.unregister": errors.New("no registration")}}
	c := started(t, client, Control{Mode: ModeAllow})

	assert.False(t, c.Unregister(context.Background(), "https://a.test/"))
}

func TestUnregisterAllCountsSuccesses(t *testing.T) {
	client := &fakeClient{}
	var events []Event
	var mu sync.Mutex
	c := started(t, client, Control{Mode: ModeAllow}, WithObserver(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))

	c.HandleRegistrations([]Registration{
		{RegistrationID: "1", ScopeURL: "https://a.test/"},
		{RegistrationID: "2", ScopeURL: "https://b.test/"},
	})

	assert.Equal(t, 2, c.UnregisterAll(context.Background()))
	assert.Equal(t, []string{"https://a.test/", "https://b.test/"}, client.unregistered())

	mu.Lock()
	defer mu.Unlock()
	var unregistered []string
	for _, e := range events {
		if e.Kind == EventUnregistered {
			unregistered = append(unregistered, e.RegistrationID)
		}
	}
	assert.Equal(t, []string{"1", "2"}, unregistered)
}

func TestStopAll(t *testing.T) {
	client := &fakeClient{}
	c := started(t, client, Control{Mode: ModeAllow})

	c.StopAll(context.Background())
	assert.Contains(t, client.methods(), "ServiceWorker.stopAllWorkers")
}

func TestDetachIsIdempotent(t *testing.T) {
	client := &fakeClient{}
	c := New(client, Control{Mode: ModeAllow})
	require.True(t, c.Start(context.Background()))

	c.HandleRegistrations([]Registration{{RegistrationID: "1", ScopeURL: "https://a.test/"}})
	c.Detach(context.Background())
	c.Detach(context.Background())

	assert.Empty(t, c.GetWorkers())
	assert.False(t, c.Enabled())
	assert.Equal(t, []string{"ServiceWorker.enable", "ServiceWorker.disable"}, client.methods())

	c.HandleRegistrations([]Registration{{RegistrationID: "2", ScopeURL: "https://b.test/"}})
	assert.Empty(t, c.GetWorkers())
	assert.False(t, c.Start(context.Background()))
}

func TestDetachWaitsForBackgroundUnregister(t *testing.T) {
	client := &fakeClient{delay: 30 * time.Millisecond}
	c := New(client, Control{Mode: ModeBlock})
	require.True(t, c.Start(context.Background()))

	c.HandleRegistrations([]Registration{{RegistrationID: "1", ScopeURL: "https://a.test/"}})
	c.Detach(context.Background())

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.pending)
}

func TestShouldBlockDomain(t *testing.T) {
	tests := []struct {
		name   string
		ctl    Control
		domain string
		want   bool
	}{
		{"allow mode", Control{Mode: ModeAllow}, "a.test", false},
		{"block mode", Control{Mode: ModeBlock}, "a.test", true},
		{"unregister-all does not block", Control{Mode: ModeUnregisterAll}, "a.test", false},
		{"on-domain listed", Control{Mode: ModeBlockOnDomain, BlockedDomains: []string{"a.test"}}, "sub.a.test", true},
		{"on-domain unlisted", Control{Mode: ModeBlockOnDomain, BlockedDomains: []string{"a.test"}}, "b.test", false},
		{"override allow beats block mode", Control{
			Mode:      ModeBlock,
			Overrides: []DomainOverride{{Domain: "*.trusted.test", Mode: OverrideAllow}},
		}, "app.trusted.test", false},
		{"override block beats allow mode", Control{
			Mode:      ModeAllow,
			Overrides: []DomainOverride{{Domain: "evil.test", Mode: OverrideBlock}},
		}, "evil.test", true},
		{"override beats domain list", Control{
			Mode:           ModeBlockOnDomain,
			BlockedDomains: []string{"a.test"},
			Overrides:      []DomainOverride{{Domain: "a.test", Mode: OverrideAllow}},
		}, "a.test", false},
		{"url input", Control{Mode: ModeBlockOnDomain, BlockedDomains: []string{"a.test"}}, "https://www.a.test/scope/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&fakeClient{}, tt.ctl)
			assert.Equal(t, tt.want, c.ShouldBlockDomain(tt.domain))
		})
	}
}

func TestWorkerStatus(t *testing.T) {
	assert.Equal(t, StatusRunning, workerStatus(Version{RunningStatus: "running"}))
	assert.Equal(t, StatusActivating, workerStatus(Version{RunningStatus: "starting"}))
	assert.Equal(t, StatusStopped, workerStatus(Version{RunningStatus: "stopping"}))
	assert.Equal(t, StatusStopped, workerStatus(Version{RunningStatus: "stopped", Status: "installed"}))
	assert.Equal(t, StatusRunning, workerStatus(Version{Status: "installed"}))
	assert.Equal(t, StatusRunning, workerStatus(Version{Status: "activated"}))
	assert.Equal(t, StatusRunning, workerStatus(Version{}))
}

func TestBoundClientKeepsSession(t *testing.T) {
	ctx := context.WithValue(context.Background(), struct{}{}, "v")
	b := boundClient{Client: &fakeClient{}, ctx: ctx}

	assert.Equal(t, ctx, b.GetContext())
	assert.Equal(t, proto.TargetSessionID(""), b.GetSessionID())
}

type recordingInjector struct {
	scripts []string
}

func (r *recordingInjector) AddInitScript(js string) error {
	r.scripts = append(r.scripts, js)
	return nil
}

func TestSetupBlockingForContext(t *testing.T) {
	allow := New(&fakeClient{}, Control{Mode: ModeAllow})
	inj := &recordingInjector{}
	require.NoError(t, allow.SetupBlockingForContext(inj))
	assert.Empty(t, inj.scripts)

	block := New(&fakeClient{}, Control{
		Mode:           ModeBlockOnDomain,
		BlockedDomains: []string{"tracker.test"},
		Overrides:      []DomainOverride{{Domain: "ok.test", Mode: OverrideAllow}},
	})
	require.NoError(t, block.SetupBlockingForContext(inj))
	require.Len(t, inj.scripts, 1)

	js := inj.scripts[0]
	assert.Contains(t, js, "SecurityError")
	assert.Contains(t, js, "ServiceWorkerContainer.prototype.register")
	assert.Contains(t, js, `"blocked":["tracker.test"]`)
	assert.Contains(t, js, `"mode":"block-on-domain"`)
}

func TestBlockingScriptWithOnlyOverrides(t *testing.T) {
	js, ok := blockingScript(Control{Mode: ModeAllow, Overrides: []DomainOverride{{Domain: "x.test", Mode: OverrideBlock}}})
	require.True(t, ok)

	start := strings.Index(js, "const policy = ")
	require.GreaterOrEqual(t, start, 0)
	var policy scriptPolicy
	dec := json.NewDecoder(strings.NewReader(js[start+len("const policy = "):]))
	require.NoError(t, dec.Decode(&policy))
	assert.Equal(t, ModeAllow, policy.Mode)
	assert.Equal(t, []string{}, policy.Blocked)
	assert.Equal(t, []DomainOverride{{Domain: "x.test", Mode: OverrideBlock}}, policy.Overrides)
}

type injectorFunc func(string) error

func (f injectorFunc) AddInitScript(js string) error { return f(js) }

func TestSetupBlockingPropagatesInjectorError(t *testing.T) {
	c := New(&fakeClient{}, Control{Mode: ModeBlock})
	err := c.SetupBlockingForContext(injectorFunc(func(string) error { return errors.New("closed") }))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}
