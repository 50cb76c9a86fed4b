package serviceworker

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/sync/errgroup"

	"browserstealth/internal/urlutil"
	"browserstealth/pkg/logger"
)

// Controller tracks registrations and versions reported by the browser and
// enforces a Control policy. Protocol failures are logged, never returned.
type Controller struct {
	client   proto.Client
	control  Control
	log      logger.Logger
	observer Observer
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	tasks  errgroup.Group

	mu            sync.Mutex
	enabled       bool
	detached      bool
	purged        bool
	registrations map[string]Registration
	versions      map[string]versionEntry
	pending       map[string]bool
	seq           uint64
}

type versionEntry struct {
	Version
	seq uint64
}

type Option func(*Controller)

func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithObserver registers fn for registration changes and unregistrations.
func WithObserver(fn Observer) Option {
	return func(c *Controller) { c.observer = fn }
}

// New creates a controller that talks to client. Call Start to enable the
// ServiceWorker domain and feed events through HandleRegistrations and
// HandleVersions.
func New(client proto.Client, control Control, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		client:        client,
		control:       control,
		log:           logger.Nop(),
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		registrations: make(map[string]Registration),
		versions:      make(map[string]versionEntry),
		pending:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach subscribes to the page's service worker events, then enables the
// domain. If enabling fails the controller stays attached but inert.
func Attach(ctx context.Context, page *rod.Page, control Control, opts ...Option) *Controller {
	c := New(page, control, opts...)

	events := page.Context(c.ctx).Event()
	go func() {
		for msg := range events {
			regs := proto.ServiceWorkerWorkerRegistrationUpdated{}
			vers := proto.ServiceWorkerWorkerVersionUpdated{}
			switch {
			case msg.Load(&regs):
				c.HandleRegistrations(fromRegistrations(regs.Registrations))
			case msg.Load(&vers):
				c.HandleVersions(fromVersions(vers.Versions))
			}
		}
	}()

	c.Start(ctx)
	return c
}

// Start enables the ServiceWorker domain and reports whether it succeeded.
func (c *Controller) Start(ctx context.Context) bool {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return false
	}
	// Events can arrive before the enable call returns.
	c.enabled = true
	c.mu.Unlock()

	if err := (proto.ServiceWorkerEnable{}).Call(c.bind(ctx)); err != nil {
		c.mu.Lock()
		c.enabled = false
		c.mu.Unlock()
		c.log.Warn("service worker domain unavailable, controller disabled", "error", err)
		return false
	}

	c.log.Debug("service worker controller enabled", "mode", c.control.Mode)
	return true
}

// Enabled reports whether the controller can act on workers.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && !c.detached
}

func (c *Controller) HandleRegistrations(regs []Registration) {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}

	purge := c.control.UnregisterOnStart && !c.purged && len(regs) > 0
	if len(regs) > 0 {
		c.purged = true
	}

	var events []Event
	var scopes []string
	for _, r := range regs {
		if r.IsDeleted {
			if _, ok := c.registrations[r.RegistrationID]; ok {
				delete(c.registrations, r.RegistrationID)
				c.log.Debug("service worker registration deleted", "registration_id", r.RegistrationID, "scope", r.ScopeURL)
				events = append(events, c.event(EventDeleted, r))
			}
			continue
		}

		if _, known := c.registrations[r.RegistrationID]; !known {
			c.log.Debug("service worker registered", "registration_id", r.RegistrationID, "scope", r.ScopeURL)
			events = append(events, c.event(EventRegistered, r))
		}
		c.registrations[r.RegistrationID] = r

		if purge || c.control.Mode == ModeUnregisterAll || c.ShouldBlockDomain(r.ScopeURL) {
			scopes = append(scopes, r.ScopeURL)
		}
	}

	for _, scope := range scopes {
		c.spawnUnregisterLocked(scope)
	}
	c.mu.Unlock()

	c.notify(events)
}

func (c *Controller) HandleVersions(versions []Version) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detached {
		return
	}

	for _, v := range versions {
		c.seq++
		c.versions[v.VersionID] = versionEntry{Version: v, seq: c.seq}
	}
}

// spawnUnregisterLocked starts a background unregister for scope unless one
// is already pending. c.mu must be held.
func (c *Controller) spawnUnregisterLocked(scope string) {
	if c.detached || c.pending[scope] {
		return
	}
	c.pending[scope] = true

	c.tasks.Go(func() error {
		defer func() {
			c.mu.Lock()
			delete(c.pending, scope)
			c.mu.Unlock()
		}()
		c.Unregister(c.ctx, scope)
		return nil
	})
}

// Unregister removes the registration for scope and reports success.
func (c *Controller) Unregister(ctx context.Context, scope string) bool {
	if !c.Enabled() {
		return false
	}

	if err := (proto.ServiceWorkerUnregister{ScopeURL: scope}).Call(c.bind(ctx)); err != nil {
		c.log.Warn("failed to unregister service worker", "scope", scope, "error", err)
		return false
	}

	c.log.Info("service worker unregistered", "scope", scope)
	c.notify([]Event{c.event(EventUnregistered, Registration{
		RegistrationID: c.registrationIDFor(scope),
		ScopeURL:       scope,
	})})
	return true
}

// UnregisterAll unregisters every known registration and returns how many
// succeeded.
func (c *Controller) UnregisterAll(ctx context.Context) int {
	c.mu.Lock()
	seen := make(map[string]bool)
	var scopes []string
	for _, r := range c.registrations {
		if r.IsDeleted || seen[r.ScopeURL] {
			continue
		}
		seen[r.ScopeURL] = true
		scopes = append(scopes, r.ScopeURL)
	}
	c.mu.Unlock()
	sort.Strings(scopes)

	count := 0
	for _, scope := range scopes {
		if c.Unregister(ctx, scope) {
			count++
		}
	}
	return count
}

// StopAll stops every running worker.
func (c *Controller) StopAll(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	if err := (proto.ServiceWorkerStopAllWorkers{}).Call(c.bind(ctx)); err != nil {
		c.log.Warn("failed to stop service workers", "error", err)
		return
	}
	c.log.Info("service workers stopped")
}

// GetWorkers joins each registration with its most recently reported
// version, ordered by registration id.
func (c *Controller) GetWorkers() []Worker {
	c.mu.Lock()
	defer c.mu.Unlock()

	latest := make(map[string]versionEntry)
	for _, v := range c.versions {
		if cur, ok := latest[v.RegistrationID]; !ok || v.seq > cur.seq {
			latest[v.RegistrationID] = v
		}
	}

	workers := make([]Worker, 0, len(c.registrations))
	for id, r := range c.registrations {
		w := Worker{
			RegistrationID: id,
			ScopeURL:       r.ScopeURL,
			Status:         StatusStopped,
		}
		if v, ok := latest[id]; ok {
			w.ScriptURL = v.ScriptURL
			w.VersionID = v.VersionID
			w.Status = workerStatus(v.Version)
		}
		workers = append(workers, w)
	}

	sort.Slice(workers, func(i, j int) bool {
		return workers[i].RegistrationID < workers[j].RegistrationID
	})
	return workers
}

// ShouldBlockDomain applies the policy to domain, which may also be a URL.
// A matching override wins, then the block-on-domain list, then the mode.
func (c *Controller) ShouldBlockDomain(domain string) bool {
	return shouldBlock(c.control, domain)
}

func shouldBlock(ctl Control, domain string) bool {
	host := strings.ToLower(domain)
	if strings.Contains(host, "://") {
		host = urlutil.Host(domain)
	}

	for _, o := range ctl.Overrides {
		if urlutil.MatchDomain(host, o.Domain) {
			return o.Mode == OverrideBlock
		}
	}

	switch ctl.Mode {
	case ModeBlock:
		return true
	case ModeBlockOnDomain:
		return urlutil.MatchAny(host, ctl.BlockedDomains)
	default:
		return false
	}
}

// Detach stops listening, disables the domain, waits for background
// unregisters and forgets all state. Later calls do nothing.
func (c *Controller) Detach(ctx context.Context) {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}
	c.detached = true
	wasEnabled := c.enabled
	c.enabled = false
	c.mu.Unlock()

	c.cancel()

	if wasEnabled {
		if err := (proto.ServiceWorkerDisable{}).Call(c.bind(ctx)); err != nil {
			c.log.Debug("failed to disable service worker domain", "error", err)
		}
	}

	_ = c.tasks.Wait()

	c.mu.Lock()
	c.registrations = make(map[string]Registration)
	c.versions = make(map[string]versionEntry)
	c.pending = make(map[string]bool)
	c.mu.Unlock()

	c.log.Debug("service worker controller detached")
}

func (c *Controller) registrationIDFor(scope string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, r := range c.registrations {
		if r.ScopeURL == scope {
			return id
		}
	}
	return ""
}

func (c *Controller) event(kind EventKind, r Registration) Event {
	return Event{Kind: kind, RegistrationID: r.RegistrationID, ScopeURL: r.ScopeURL, At: c.now()}
}

func (c *Controller) notify(events []Event) {
	if c.observer == nil {
		return
	}
	for _, e := range events {
		c.observer(e)
	}
}

func (c *Controller) bind(ctx context.Context) proto.Client {
	return boundClient{Client: c.client, ctx: ctx}
}

// boundClient pins a context onto a protocol client while keeping its
// session.
type boundClient struct {
	proto.Client
	ctx context.Context
}

func (b boundClient) GetContext() context.Context {
	return b.ctx
}

func (b boundClient) GetSessionID() proto.TargetSessionID {
	if s, ok := b.Client.(proto.Sessionable); ok {
		return s.GetSessionID()
	}
	return ""
}

// workerStatus derives a worker's status from its running status alone.
// Anything not stopped or starting counts as running.
func workerStatus(v Version) Status {
	switch v.RunningStatus {
	case "stopped", "stopping":
		return StatusStopped
	case "starting":
		return StatusActivating
	default:
		return StatusRunning
	}
}

func fromRegistrations(in []*proto.ServiceWorkerServiceWorkerRegistration) []Registration {
	out := make([]Registration, 0, len(in))
	for _, r := range in {
		if r == nil {
			continue
		}
		out = append(out, Registration{
			RegistrationID: string(r.RegistrationID),
			ScopeURL:       r.ScopeURL,
			IsDeleted:      r.IsDeleted,
		})
	}
	return out
}

func fromVersions(in []*proto.ServiceWorkerServiceWorkerVersion) []Version {
	out := make([]Version, 0, len(in))
	for _, v := range in {
		if v == nil {
			continue
		}
		out = append(out, Version{
			VersionID:      string(v.VersionID),
			RegistrationID: string(v.RegistrationID),
			ScriptURL:      v.ScriptURL,
			RunningStatus:  string(v.RunningStatus),
			Status:         string(v.Status),
		})
	}
	return out
}
