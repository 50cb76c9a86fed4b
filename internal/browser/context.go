package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"browserstealth/internal/intercept"
	"browserstealth/pkg/logger"
)

type ContextOptions struct {
	Proxy *Proxy
}

type Proxy struct {
	Server string `yaml:"server" json:"server"`
	Bypass string `yaml:"bypass" json:"bypass"`
}

// Context is an isolated browser context. Init scripts and routes
// registered on it apply to every page it opens, to popups those pages open
// and to out-of-process iframes, including targets created before
// registration. Page setups apply to top-level pages only.
type Context struct {
	browser *rod.Browser
	id      proto.BrowserBrowserContextID
	log     logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	initScripts []string
	routes      []routeEntry
	setups      []func(*rod.Page) error
	pages       []*pageState
	values      map[any]any
	closers     []func(context.Context)
	closed      bool

	closeOnce sync.Once
	closeErr  error
}

type routeEntry struct {
	pattern string
	match   *regexp.Regexp
	handler intercept.Handler
}

type pageState struct {
	page    *rod.Page
	target  proto.TargetTargetID
	session proto.TargetSessionID
	// top is false for iframe targets.
	top bool
	// owned pages were opened by NewPage. Failures on other targets are
	// logged, since they may go away at any time.
	owned    bool
	fetching bool
	frames   *frameURLs
}

const targetTypeIframe proto.TargetTargetInfoType = "iframe"

func newContext(ctx context.Context, browser *rod.Browser, opts ContextOptions, log logger.Logger) (*Context, error) {
	req := proto.TargetCreateBrowserContext{DisposeOnDetach: true}
	if opts.Proxy != nil {
		req.ProxyServer = opts.Proxy.Server
		req.ProxyBypassList = opts.Proxy.Bypass
	}

	res, err := req.Call(browser.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	isolated := *browser
	isolated.BrowserContextID = res.BrowserContextID

	lifetime, cancel := context.WithCancel(context.Background())
	c := &Context{
		browser: &isolated,
		id:      res.BrowserContextID,
		log:     log.With("browser_context", string(res.BrowserContextID)),
		ctx:     lifetime,
		cancel:  cancel,
		values:  make(map[any]any),
	}
	c.watchPopups()
	return c, nil
}

func (c *Context) ID() string {
	return string(c.id)
}

// AddInitScript evaluates js in every new document before page scripts run.
func (c *Context) AddInitScript(js string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errContextClosed
	}

	err := c.eachPage(func(ps *pageState) error {
		if _, err := ps.page.EvalOnNewDocument(js); err != nil {
			return fmt.Errorf("failed to add init script: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.initScripts = append(c.initScripts, js)
	return nil
}

// Route sends every request whose URL matches the glob pattern to handler.
// The first matching route wins. A request the handler neither aborts nor
// continues is continued.
func (c *Context) Route(pattern string, handler intercept.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errContextClosed
	}

	entry := routeEntry{
		pattern: pattern,
		match:   regexp.MustCompile(proto.PatternToReg(pattern)),
		handler: handler,
	}
	err := c.eachPage(func(ps *pageState) error {
		return c.addRoute(ps, entry)
	})
	if err != nil {
		return err
	}
	c.routes = append(c.routes, entry)
	return nil
}

// OnPage runs setup against every top-level page of the context, popups
// included.
func (c *Context) OnPage(setup func(*rod.Page) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errContextClosed
	}

	err := c.eachPage(func(ps *pageState) error {
		if !ps.top {
			return nil
		}
		return setup(ps.page)
	})
	if err != nil {
		return err
	}
	c.setups = append(c.setups, setup)
	return nil
}

// OnClose registers fn to run, in reverse registration order, before the
// context is disposed.
func (c *Context) OnClose(fn func(context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, fn)
}

// NewPage opens a blank page with every registered setup, init script and
// route applied.
func (c *Context) NewPage(ctx context.Context) (*rod.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errContextClosed
	}

	page, err := c.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	page = page.Context(c.ctx)

	ps := &pageState{
		page:    page,
		target:  page.TargetID,
		session: page.SessionID,
		top:     true,
		owned:   true,
		frames:  newFrameURLs(),
	}
	if err := c.preparePage(ps); err != nil {
		_ = page.Close()
		return nil, err
	}

	c.pages = append(c.pages, ps)
	c.log.Debug("page opened", "target_id", string(page.TargetID))
	return page, nil
}

// eachPage runs fn on every page. c.mu must be held.
func (c *Context) eachPage(fn func(*pageState) error) error {
	for _, ps := range c.pages {
		if err := fn(ps); err != nil {
			if ps.owned {
				return err
			}
			c.log.Debug("skipping attached target", "target_id", string(ps.target), "error", err)
		}
	}
	return nil
}

// preparePage applies setups, init scripts and routes to a target and makes
// it auto-attach its own child targets. c.mu must be held.
func (c *Context) preparePage(ps *pageState) error {
	if ps.top {
		for _, setup := range c.setups {
			if err := setup(ps.page); err != nil {
				return err
			}
		}
	}

	for _, js := range c.initScripts {
		if _, err := ps.page.EvalOnNewDocument(js); err != nil {
			return fmt.Errorf("failed to add init script: %w", err)
		}
	}

	wait := ps.page.EachEvent(func(e *proto.PageFrameNavigated) {
		ps.frames.set(e.Frame.ID, e.Frame.URL)
	}, func(e *proto.PageFrameDetached) {
		ps.frames.remove(e.FrameID)
	}, func(e *proto.TargetAttachedToTarget) {
		go c.attachChild(e)
	}, func(e *proto.TargetDetachedFromTarget) {
		go c.forget(func(child *pageState) bool { return child.session == e.SessionID })
	})
	go wait()

	for _, entry := range c.routes {
		if err := c.addRoute(ps, entry); err != nil {
			return err
		}
	}

	err := proto.TargetSetAutoAttach{
		AutoAttach:             true,
		WaitForDebuggerOnStart: true,
		Flatten:                true,
	}.Call(ps.page)
	if err != nil {
		return fmt.Errorf("failed to auto-attach child targets: %w", err)
	}
	return nil
}

// attachChild prepares an iframe or popup target auto-attached to one of
// the context's pages, then lets it run. Other targets, such as workers,
// are only resumed.
func (c *Context) attachChild(e *proto.TargetAttachedToTarget) {
	child := c.browser.Context(c.ctx).PageFromSession(e.SessionID)
	defer func() {
		if !e.WaitingForDebugger {
			return
		}
		if err := (proto.RuntimeRunIfWaitingForDebugger{}).Call(child); err != nil {
			c.log.Debug("failed to resume target", "session_id", string(e.SessionID), "error", err)
		}
	}()

	info := e.TargetInfo
	if info == nil || (info.Type != proto.TargetTargetInfoTypePage && info.Type != targetTypeIframe) {
		return
	}
	c.adopt(&pageState{
		page:    child,
		target:  info.TargetID,
		session: e.SessionID,
		top:     info.Type == proto.TargetTargetInfoTypePage,
		frames:  newFrameURLs(),
	})
}

// watchPopups catches pages opened by the context's pages that were not
// auto-attached to their opener.
func (c *Context) watchPopups() {
	wait := c.browser.Context(c.ctx).EachEvent(func(e *proto.TargetTargetCreated) {
		info := e.TargetInfo
		if info == nil || info.BrowserContextID != c.id || info.Type != proto.TargetTargetInfoTypePage || info.OpenerID == "" {
			return
		}
		go c.attachPopup(info.TargetID)
	}, func(e *proto.TargetTargetDestroyed) {
		go c.forget(func(ps *pageState) bool { return ps.target == e.TargetID })
	})
	go wait()
}

func (c *Context) attachPopup(id proto.TargetTargetID) {
	c.mu.Lock()
	known := c.known(id)
	c.mu.Unlock()
	if known {
		return
	}

	page, err := c.browser.Context(c.ctx).PageFromTarget(id)
	if err != nil {
		c.log.Debug("failed to attach popup", "target_id", string(id), "error", err)
		return
	}
	c.adopt(&pageState{
		page:    page.Context(c.ctx),
		target:  id,
		session: page.SessionID,
		top:     true,
		frames:  newFrameURLs(),
	})
}

// adopt prepares a target the context did not open itself and starts
// tracking it. A target already tracked is left alone.
func (c *Context) adopt(ps *pageState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.known(ps.target) {
		return
	}

	if err := c.preparePage(ps); err != nil {
		c.log.Warn("failed to prepare attached target", "target_id", string(ps.target), "error", err)
		return
	}
	c.pages = append(c.pages, ps)
	c.log.Debug("target attached", "target_id", string(ps.target), "top", ps.top)
}

// known reports whether a target is tracked. c.mu must be held.
func (c *Context) known(id proto.TargetTargetID) bool {
	for _, ps := range c.pages {
		if ps.target == id {
			return true
		}
	}
	return false
}

// forget stops tracking attached targets matching fn. Pages opened by
// NewPage stay tracked until the context closes.
func (c *Context) forget(fn func(*pageState) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := make([]*pageState, 0, len(c.pages))
	for _, ps := range c.pages {
		if ps.owned || !fn(ps) {
			kept = append(kept, ps)
		}
	}
	c.pages = kept
}

// addRoute makes the page pause requests matching every registered
// pattern plus entry, subscribing to paused requests on first use. c.mu must
// be held.
func (c *Context) addRoute(ps *pageState, entry routeEntry) error {
	if !ps.fetching {
		wait := ps.page.EachEvent(func(e *proto.FetchRequestPaused) {
			go c.dispatch(ps, e)
		})
		go wait()
		ps.fetching = true
	}

	patterns := make([]*proto.FetchRequestPattern, 0, len(c.routes)+1)
	for _, r := range c.routes {
		patterns = append(patterns, &proto.FetchRequestPattern{URLPattern: r.pattern})
	}
	patterns = append(patterns, &proto.FetchRequestPattern{URLPattern: entry.pattern})
	if err := (proto.FetchEnable{Patterns: patterns}).Call(ps.page); err != nil {
		return fmt.Errorf("failed to add route %q: %w", entry.pattern, err)
	}
	return nil
}

// dispatch hands a paused request to the first route whose pattern matches
// its URL. Unmatched or undecided requests are continued.
func (c *Context) dispatch(ps *pageState, e *proto.FetchRequestPaused) {
	route := &pausedRoute{
		page: ps.page,
		id:   e.RequestID,
		log:  c.log,
		req: intercept.Request{
			URL:          e.Request.URL,
			ResourceType: resourceType(e.ResourceType),
			FrameURL:     ps.frames.get(e.FrameID),
		},
	}
	defer route.Continue()

	c.mu.Lock()
	routes := c.routes
	c.mu.Unlock()

	for _, r := range routes {
		if r.match.MatchString(e.Request.URL) {
			r.handler(c.ctx, route)
			return
		}
	}
}

func (c *Context) SetValue(key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

func (c *Context) Value(key any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key]
}

func (c *Context) SetCookies(ctx context.Context, cookies []*proto.NetworkCookieParam) error {
	if len(cookies) == 0 {
		return nil
	}
	if err := c.browser.Context(ctx).SetCookies(cookies); err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}
	return nil
}

func (c *Context) Cookies(ctx context.Context) ([]*proto.NetworkCookie, error) {
	cookies, err := c.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("failed to get cookies: %w", err)
	}
	return cookies, nil
}

// GrantPermissions grants the named permissions to every origin of the
// context. Names the browser does not know are skipped.
func (c *Context) GrantPermissions(ctx context.Context, names []string) error {
	var types []proto.BrowserPermissionType
	for _, name := range names {
		t, ok := permissionTypes[name]
		if !ok {
			c.log.Warn("unknown permission ignored", "permission", name)
			continue
		}
		types = append(types, t)
	}
	if len(types) == 0 {
		return nil
	}

	err := proto.BrowserGrantPermissions{
		Permissions:      types,
		BrowserContextID: c.id,
	}.Call(c.browser.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to grant permissions: %w", err)
	}
	return nil
}

// Close runs the close hooks, stops request routing and disposes the
// context. Later calls return the first result.
func (c *Context) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		closers := c.closers
		pages := c.pages
		c.mu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			closers[i](ctx)
		}

		for _, ps := range pages {
			if ps.fetching {
				_ = proto.FetchDisable{}.Call(ps.page.Context(ctx))
			}
		}
		c.cancel()

		err := proto.TargetDisposeBrowserContext{BrowserContextID: c.id}.Call(c.browser.Context(ctx))
		if err != nil {
			c.closeErr = fmt.Errorf("failed to dispose browser context: %w", err)
			return
		}
		c.log.Debug("browser context closed")
	})
	return c.closeErr
}

var errContextClosed = errors.New("browser context is closed")

var permissionTypes = map[string]proto.BrowserPermissionType{
	"geolocation":                proto.BrowserPermissionTypeGeolocation,
	"notifications":              proto.BrowserPermissionTypeNotifications,
	"camera":                     proto.BrowserPermissionTypeVideoCapture,
	"microphone":                 proto.BrowserPermissionTypeAudioCapture,
	"midi":                       proto.BrowserPermissionTypeMidi,
	"midi-sysex":                 proto.BrowserPermissionTypeMidiSysex,
	"clipboard-read":             proto.BrowserPermissionTypeClipboardReadWrite,
	"clipboard-write":            proto.BrowserPermissionTypeClipboardSanitizedWrite,
	"background-sync":            proto.BrowserPermissionTypeBackgroundSync,
	"accelerometer":              proto.BrowserPermissionTypeSensors,
	"gyroscope":                  proto.BrowserPermissionTypeSensors,
	"magnetometer":               proto.BrowserPermissionTypeSensors,
	"payment-handler":            proto.BrowserPermissionTypePaymentHandler,
	"storage-access":             proto.BrowserPermissionTypeStorageAccess,
	"idle-detection":             proto.BrowserPermissionTypeIdleDetection,
	"background-fetch":           proto.BrowserPermissionTypeBackgroundFetch,
	"display-capture":            proto.BrowserPermissionTypeDisplayCapture,
	"protected-media-identifier": proto.BrowserPermissionTypeProtectedMediaIdentifier,
}

func resourceType(t proto.NetworkResourceType) intercept.ResourceType {
	switch t {
	case proto.NetworkResourceTypeDocument:
		return intercept.TypeDocument
	case proto.NetworkResourceTypeStylesheet:
		return intercept.TypeStylesheet
	case proto.NetworkResourceTypeImage:
		return intercept.TypeImage
	case proto.NetworkResourceTypeMedia:
		return intercept.TypeMedia
	case proto.NetworkResourceTypeFont:
		return intercept.TypeFont
	case proto.NetworkResourceTypeScript:
		return intercept.TypeScript
	case proto.NetworkResourceTypeXHR:
		return intercept.TypeXHR
	case proto.NetworkResourceTypeFetch:
		return intercept.TypeFetch
	case proto.NetworkResourceTypeWebSocket:
		return intercept.TypeWebSocket
	default:
		return intercept.TypeOther
	}
}

// pausedRoute adapts a paused request to intercept.Route. Only the first
// decision is sent to the browser.
type pausedRoute struct {
	page *rod.Page
	id   proto.FetchRequestID
	req  intercept.Request
	log  logger.Logger
	once sync.Once
}

func (r *pausedRoute) Request() intercept.Request {
	return r.req
}

func (r *pausedRoute) Abort() {
	r.once.Do(func() {
		err := proto.FetchFailRequest{
			RequestID:   r.id,
			ErrorReason: proto.NetworkErrorReasonBlockedByClient,
		}.Call(r.page)
		if err != nil {
			r.log.Debug("failed to abort request", "url", r.req.URL, "error", err)
		}
	})
}

func (r *pausedRoute) Continue() {
	r.once.Do(func() {
		if err := (proto.FetchContinueRequest{RequestID: r.id}).Call(r.page); err != nil {
			r.log.Debug("failed to continue request", "url", r.req.URL, "error", err)
		}
	})
}

// frameURLs remembers the committed URL of each frame of a page.
type frameURLs struct {
	mu   sync.RWMutex
	urls map[proto.PageFrameID]string
}

func newFrameURLs() *frameURLs {
	return &frameURLs{urls: make(map[proto.PageFrameID]string)}
}

func (f *frameURLs) set(id proto.PageFrameID, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls[id] = url
}

func (f *frameURLs) remove(id proto.PageFrameID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.urls, id)
}

func (f *frameURLs) get(id proto.PageFrameID) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.urls[id]
}
