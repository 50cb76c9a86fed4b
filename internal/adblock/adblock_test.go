package adblock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browserstealth/internal/intercept"
)

type fakeRoute struct {
	req       intercept.Request
	aborted   bool
	continued bool
}

func (r *fakeRoute) Request() intercept.Request { return r.req }
func (r *fakeRoute) Abort()                     { r.aborted = true }
func (r *fakeRoute) Continue()                  { r.continued = true }

type fakeRouter struct {
	mu       sync.Mutex
	patterns []string
	handlers []intercept.Handler
	err      error
}

func (r *fakeRouter) Route(pattern string, h intercept.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.patterns = append(r.patterns, pattern)
	r.handlers = append(r.handlers, h)
	return nil
}

func (r *fakeRouter) send(req intercept.Request) *fakeRoute {
	route := &fakeRoute{req: req}
	for _, h := range r.handlers {
		h(context.Background(), route)
	}
	return route
}

// hostBlocker blocks every request whose URL is in urls.
type hostBlocker struct {
	urls    map[string]bool
	sources []string
}

func (b *hostBlocker) Match(url string, _ intercept.ResourceType, source string) bool {
	b.sources = append(b.sources, source)
	return b.urls[url]
}

type panicBlocker struct{}

func (panicBlocker) Match(string, intercept.ResourceType, string) bool { panic("engine exploded") }

func cacheWith(b Blocker) *Cache {
	return NewCache(func(context.Context, Mode) (Blocker, error) { return b, nil })
}

func TestApplyNoneRegistersNothing(t *testing.T) {
	router := &fakeRouter{}
	built := false
	cache := NewCache(func(context.Context, Mode) (Blocker, error) {
		built = true
		return nopBlocker{}, nil
	})

	require.NoError(t, Apply(context.Background(), router, ModeNone, nil, WithCache(cache)))
	assert.Empty(t, router.handlers)
	assert.False(t, built)
}

func TestApplyPropagatesBuildError(t *testing.T) {
	router := &fakeRouter{}
	cache := NewCache(func(context.Context, Mode) (Blocker, error) {
		return nil, errors.New("list download failed")
	})

	err := Apply(context.Background(), router, ModeAdsOnly, nil, WithCache(cache))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list download failed")
	assert.Empty(t, router.handlers)
}

func TestApplyPropagatesRouteError(t *testing.T) {
	router := &fakeRouter{err: errors.New("context closed")}
	err := Apply(context.Background(), router, ModeAdsOnly, nil, WithCache(cacheWith(nopBlocker{})))
	assert.EqualError(t, err, "context closed")
}

func TestApplyBlocksMatchedRequests(t *testing.T) {
	blocker := &hostBlocker{urls: map[string]bool{"https://ads.example.net/a.js": true}}
	router := &fakeRouter{}

	var events []BlockEvent
	require.NoError(t, Apply(context.Background(), router, ModeAdsOnly, nil,
		WithCache(cacheWith(blocker)),
		WithObserver(func(e BlockEvent) { events = append(events, e) }),
	))
	require.Equal(t, []string{"*"}, router.patterns)

	blocked := router.send(intercept.Request{
		URL:          "https://ads.example.net/a.js",
		ResourceType: intercept.TypeScript,
		FrameURL:     "https://news.test/article",
	})
	assert.True(t, blocked.aborted)
	assert.False(t, blocked.continued)

	allowed := router.send(intercept.Request{
		URL:          "https://news.test/app.js",
		ResourceType: intercept.TypeScript,
		FrameURL:     "https://news.test/article",
	})
	assert.True(t, allowed.continued)
	assert.False(t, allowed.aborted)

	require.Len(t, events, 1)
	assert.Equal(t, BlockEvent{
		Mode:         ModeAdsOnly,
		URL:          "https://ads.example.net/a.js",
		Host:         "ads.example.net",
		FrameURL:     "https://news.test/article",
		ResourceType: intercept.TypeScript,
	}, events[0])
}

func TestApplyWhitelistBeatsBlocker(t *testing.T) {
	blocker := &hostBlocker{urls: map[string]bool{"https://ads.example.net/a.js": true}}
	router := &fakeRouter{}
	require.NoError(t, Apply(context.Background(), router, ModeAdsAndTracking, []string{"*.shop.test"}, WithCache(cacheWith(blocker))))

	for _, frame := range []string{"https://shop.test/", "https://www.shop.test/cart"} {
		route := router.send(intercept.Request{
			URL:          "https://ads.example.net/a.js",
			ResourceType: intercept.TypeScript,
			FrameURL:     frame,
		})
		assert.True(t, route.continued, frame)
		assert.False(t, route.aborted, frame)
	}

	route := router.send(intercept.Request{
		URL:          "https://ads.example.net/a.js",
		ResourceType: intercept.TypeScript,
		FrameURL:     "https://notshop.test/",
	})
	assert.True(t, route.aborted)
}

func TestApplyFailsOpenOnPanic(t *testing.T) {
	router := &fakeRouter{}
	require.NoError(t, Apply(context.Background(), router, ModeAdsOnly, nil, WithCache(cacheWith(panicBlocker{}))))

	route := router.send(intercept.Request{URL: "https://ads.example.net/a.js", ResourceType: intercept.TypeScript})
	assert.True(t, route.continued)
	assert.False(t, route.aborted)
}

func TestApplyUsesDocumentURLAsSource(t *testing.T) {
	blocker := &hostBlocker{urls: map[string]bool{}}
	router := &fakeRouter{}
	require.NoError(t, Apply(context.Background(), router, ModeAdsOnly, nil, WithCache(cacheWith(blocker))))

	router.send(intercept.Request{URL: "https://site.test/", ResourceType: intercept.TypeDocument, FrameURL: "https://previous.test/"})
	router.send(intercept.Request{URL: "https://cdn.test/x.png", ResourceType: intercept.TypeImage, FrameURL: "about:blank"})
	router.send(intercept.Request{URL: "https://cdn.test/y.png", ResourceType: intercept.TypeImage, FrameURL: "https://site.test/"})

	assert.Equal(t, []string{"https://site.test/", "https://cdn.test/x.png", "https://site.test/"}, blocker.sources)
}

func TestApplyDocumentOnWhitelistedSite(t *testing.T) {
	blocker := &hostBlocker{urls: map[string]bool{"https://shop.test/": true}}
	router := &fakeRouter{}
	require.NoError(t, Apply(context.Background(), router, ModeAdsOnly, []string{"shop.test"}, WithCache(cacheWith(blocker))))

	route := router.send(intercept.Request{URL: "https://shop.test/", ResourceType: intercept.TypeDocument, FrameURL: "https://elsewhere.test/"})
	assert.True(t, route.continued)
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"", "none"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, ModeNone, m)
	}

	m, err := ParseMode("ads_and_tracking")
	require.NoError(t, err)
	assert.Equal(t, ModeAdsAndTracking, m)

	_, err = ParseMode("everything")
	assert.ErrorIs(t, err, ErrUnknownMode)
}
