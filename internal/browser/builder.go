package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"browserstealth/internal/adblock"
	"browserstealth/internal/profile"
	"browserstealth/internal/serviceworker"
	"browserstealth/internal/stealth"
	"browserstealth/pkg/logger"
)

// ContextFactory opens isolated browser contexts.
type ContextFactory interface {
	NewContext(ctx context.Context, opts ContextOptions) (*Context, error)
}

// Recorder is told about session lifetimes. Its failures are logged and
// never fail a session.
type Recorder interface {
	SessionStarted(ctx context.Context, info SessionInfo) error
	SessionClosed(ctx context.Context, id string) error
}

type SessionInfo struct {
	ID          string
	ExecutionID string
	Profile     profile.Resolved
	Patches     []string
	StartedAt   time.Time
}

type Builder struct {
	factory        ContextFactory
	cache          *adblock.Cache
	log            logger.Logger
	recorder       Recorder
	blockObserver  func(adblock.BlockEvent)
	workerObserver func(sessionID string, e serviceworker.Event)
	now            func() time.Time
}

type BuilderOption func(*Builder)

// WithBlockerCache uses c instead of adblock.DefaultCache.
func WithBlockerCache(c *adblock.Cache) BuilderOption {
	return func(b *Builder) { b.cache = c }
}

func WithLogger(l logger.Logger) BuilderOption {
	return func(b *Builder) { b.log = l }
}

func WithRecorder(r Recorder) BuilderOption {
	return func(b *Builder) { b.recorder = r }
}

// WithBlockObserver is passed to ad blocking of every session.
func WithBlockObserver(fn func(adblock.BlockEvent)) BuilderOption {
	return func(b *Builder) { b.blockObserver = fn }
}

// WithWorkerObserver receives the service worker events of every session.
func WithWorkerObserver(fn func(sessionID string, e serviceworker.Event)) BuilderOption {
	return func(b *Builder) { b.workerObserver = fn }
}

func NewBuilder(factory ContextFactory, opts ...BuilderOption) *Builder {
	b := &Builder{
		factory: factory,
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build resolves the session spec's profile and assembles a session from it.
func (b *Builder) Build(ctx context.Context, spec SessionSpec) (*Session, error) {
	var p profile.BrowserProfile
	if spec.Profile != nil {
		p = *spec.Profile
	}
	return b.BuildResolved(ctx, spec, profile.Resolve(p))
}

// BuildResolved assembles a session: context, cookies, permissions, stealth
// patches, ad blocking, control page, service worker controller and behavior
// settings, in that order. Any failure closes the partial context.
func (b *Builder) BuildResolved(ctx context.Context, spec SessionSpec, resolved profile.Resolved) (*Session, error) {
	id := uuid.NewString()
	log := b.log.With("session_id", id, "execution_id", spec.ExecutionID)

	resolved = withSessionLocale(spec, resolved)
	emulation := effectiveEmulation(spec, resolved.Fingerprint)
	permissions := effectivePermissions(spec.Permissions, emulation.Geolocation)

	state, err := spec.storageState()
	if err != nil {
		return nil, err
	}

	bctx, err := b.factory.NewContext(ctx, ContextOptions{Proxy: spec.Proxy})
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Session, error) {
		if cerr := bctx.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Debug("failed to close partial context", "error", cerr)
		}
		return nil, err
	}

	if err := bctx.OnPage(emulation.Apply); err != nil {
		return fail(err)
	}

	if err := bctx.SetCookies(ctx, state.cookieParams()); err != nil {
		return fail(err)
	}

	if err := bctx.GrantPermissions(ctx, permissions); err != nil {
		return fail(err)
	}

	if err := ApplyStealth(bctx, resolved); err != nil {
		return fail(err)
	}

	mode := adblock.Mode(resolved.AntiDetection.AdBlocking)
	if mode != adblock.ModeNone && mode != "" {
		err := adblock.Apply(ctx, bctx, mode, resolved.AntiDetection.AdBlockWhitelist,
			adblock.WithCache(b.cache),
			adblock.WithLogger(log),
			adblock.WithObserver(b.blockObserver),
		)
		if err != nil {
			return fail(fmt.Errorf("failed to enable ad blocking: %w", err))
		}
	}

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return fail(err)
	}

	swOpts := []serviceworker.Option{serviceworker.WithLogger(log)}
	if b.workerObserver != nil {
		observe := b.workerObserver
		swOpts = append(swOpts, serviceworker.WithObserver(func(e serviceworker.Event) {
			observe(id, e)
		}))
	}
	workers := serviceworker.Attach(ctx, page, spec.ServiceWorkers, swOpts...)
	bctx.OnClose(workers.Detach)
	if err := workers.SetupBlockingForContext(bctx); err != nil {
		return fail(err)
	}

	bctx.SetValue(behaviorKey{}, resolved.Behavior)

	session := &Session{
		ID:          id,
		ExecutionID: spec.ExecutionID,
		BaseURL:     spec.BaseURL,
		Context:     bctx,
		Page:        page,
		Workers:     workers,
		Human:       stealth.NewHuman(resolved.Behavior),
		Profile:     resolved,
		recorder:    b.recorder,
		log:         log,
	}

	if b.recorder != nil {
		info := SessionInfo{
			ID:          id,
			ExecutionID: spec.ExecutionID,
			Profile:     resolved,
			Patches:     EnabledPatches(resolved.AntiDetection),
			StartedAt:   b.now(),
		}
		if err := b.recorder.SessionStarted(ctx, info); err != nil {
			log.Warn("failed to record session start", "error", err)
		}
	}

	log.Info("session ready",
		"ad_blocking", string(mode),
		"patches", len(EnabledPatches(resolved.AntiDetection)),
		"service_workers", string(spec.ServiceWorkers.Mode),
	)
	return session, nil
}

type behaviorKey struct{}

// BehaviorSettings returns the behavior settings a Builder stored on c.
func BehaviorSettings(c *Context) (profile.BehaviorSettings, bool) {
	s, ok := c.Value(behaviorKey{}).(profile.BehaviorSettings)
	return s, ok
}

// withSessionLocale lets the session's locale and timezone replace the
// profile's, so patches and emulation agree.
func withSessionLocale(spec SessionSpec, r profile.Resolved) profile.Resolved {
	if spec.Locale != "" {
		r.Fingerprint.Locale = spec.Locale
	}
	if spec.Timezone != "" {
		r.Fingerprint.Timezone = spec.Timezone
	}
	return r
}

func effectiveEmulation(spec SessionSpec, fp profile.FingerprintSettings) Emulation {
	viewport, scale := effectiveViewport(spec, fp)
	return Emulation{
		Viewport:          viewport,
		DeviceScaleFactor: scale,
		UserAgent:         effectiveUserAgent(fp),
		Locale:            fp.Locale,
		Timezone:          fp.Timezone,
		ColorScheme:       fp.ColorScheme,
		Geolocation:       effectiveGeolocation(spec, fp),
		ExtraHeaders:      spec.ExtraHeaders,
	}
}

// effectiveViewport prefers the profile's non-zero values over the session spec's.
func effectiveViewport(spec SessionSpec, fp profile.FingerprintSettings) (Viewport, float64) {
	v := spec.Viewport
	if fp.ViewportWidth > 0 {
		v.Width = fp.ViewportWidth
	}
	if fp.ViewportHeight > 0 {
		v.Height = fp.ViewportHeight
	}

	scale := spec.DeviceScaleFactor
	if fp.DeviceScaleFactor > 0 {
		scale = fp.DeviceScaleFactor
	}
	if scale <= 0 {
		scale = 1
	}
	return v, scale
}

// effectiveUserAgent picks the explicit user agent, then the named preset,
// then DefaultUserAgent.
func effectiveUserAgent(fp profile.FingerprintSettings) string {
	if fp.UserAgent != "" {
		return fp.UserAgent
	}
	if ua, ok := userAgentPresets[fp.UserAgentPreset]; ok {
		return ua
	}
	return DefaultUserAgent
}

func effectiveGeolocation(spec SessionSpec, fp profile.FingerprintSettings) *Geolocation {
	if spec.Geolocation != nil {
		g := *spec.Geolocation
		return &g
	}
	if fp.Geolocation.Enabled {
		return &Geolocation{
			Latitude:  fp.Geolocation.Latitude,
			Longitude: fp.Geolocation.Longitude,
			Accuracy:  fp.Geolocation.Accuracy,
		}
	}
	return nil
}

// effectivePermissions adds the geolocation permission when a position is
// emulated.
func effectivePermissions(requested []string, geo *Geolocation) []string {
	perms := append([]string(nil), requested...)
	if geo == nil {
		return perms
	}
	for _, p := range perms {
		if p == "geolocation" {
			return perms
		}
	}
	return append(perms, "geolocation")
}
