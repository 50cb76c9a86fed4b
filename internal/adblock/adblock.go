package adblock

import (
	"context"

	"browserstealth/internal/intercept"
	"browserstealth/internal/urlutil"
	"browserstealth/pkg/logger"
)

// BlockEvent describes one aborted request.
type BlockEvent struct {
	Mode         Mode
	URL          string
	Host         string
	FrameURL     string
	ResourceType intercept.ResourceType
}

type options struct {
	cache    *Cache
	log      logger.Logger
	observer func(BlockEvent)
}

type Option func(*options)

// WithCache uses c instead of DefaultCache.
func WithCache(c *Cache) Option {
	return func(o *options) { o.cache = c }
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithObserver calls fn for every blocked request. fn runs on the request
// handling goroutine and must not block.
func WithObserver(fn func(BlockEvent)) Option {
	return func(o *options) { o.observer = fn }
}

// Apply installs request blocking for mode on router. Requests issued by
// frames whose host matches whitelist are never blocked. Blocker
// construction errors are returned; errors while handling a request let
// the request through.
func Apply(ctx context.Context, router intercept.Router, mode Mode, whitelist []string, opts ...Option) error {
	o := options{log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cache == nil {
		o.cache = DefaultCache()
	}

	if mode == ModeNone || mode == "" {
		return nil
	}

	blocker, err := o.cache.Get(ctx, mode)
	if err != nil {
		return err
	}

	f := &filter{
		mode:      mode,
		blocker:   blocker,
		whitelist: append([]string(nil), whitelist...),
		log:       o.log,
		observer:  o.observer,
	}
	return router.Route("*", f.handle)
}

type filter struct {
	mode      Mode
	blocker   Blocker
	whitelist []string
	log       logger.Logger
	observer  func(BlockEvent)
}

func (f *filter) handle(_ context.Context, route intercept.Route) {
	req := route.Request()
	if !f.shouldBlock(req) {
		route.Continue()
		return
	}

	route.Abort()
	if f.observer != nil {
		f.observer(BlockEvent{
			Mode:         f.mode,
			URL:          req.URL,
			Host:         urlutil.Host(req.URL),
			FrameURL:     req.FrameURL,
			ResourceType: req.ResourceType,
		})
	}
}

func (f *filter) shouldBlock(req intercept.Request) (block bool) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Warn("ad block check failed, allowing request", "url", req.URL, "panic", r)
			block = false
		}
	}()

	page := pageURL(req)
	if urlutil.MatchAny(urlutil.Host(page), f.whitelist) {
		return false
	}

	return f.blocker.Match(req.URL, req.ResourceType, page)
}

// pageURL is the URL of the page a request belongs to. A document request
// belongs to the page it loads; other requests fall back to their own URL
// when the frame is unknown or not a web page.
func pageURL(req intercept.Request) string {
	if req.ResourceType == intercept.TypeDocument {
		return req.URL
	}
	if urlutil.IsWeb(req.FrameURL) {
		return req.FrameURL
	}
	return req.URL
}
