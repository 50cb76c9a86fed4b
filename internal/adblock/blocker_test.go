package adblock

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browserstealth/internal/intercept"
)

const testRules = `! test list
||ads.example.com^
@@||ads.example.com/allowed.js
||tracker.com^$third-party
||cdn.example.net/ads/*$script
example.org##.banner
`

func TestFilterBlocker(t *testing.T) {
	b, err := NewFilterBlocker(testRules)
	require.NoError(t, err)

	tests := []struct {
		name   string
		url    string
		typ    intercept.ResourceType
		source string
		want   bool
	}{
		{"blocked domain", "https://ads.example.com/banner.js", intercept.TypeScript, "https://news.com/", true},
		{"blocked subdomain", "https://img.ads.example.com/x.png", intercept.TypeImage, "https://news.com/", true},
		{"exception rule", "https://ads.example.com/allowed.js", intercept.TypeScript, "https://news.com/", false},
		{"third party tracker", "https://tracker.com/pixel.gif", intercept.TypeImage, "https://news.com/", true},
		{"first party tracker", "https://tracker.com/pixel.gif", intercept.TypeImage, "https://tracker.com/", false},
		{"type restricted match", "https://cdn.example.net/ads/x.js", intercept.TypeScript, "https://news.com/", true},
		{"type restricted miss", "https://cdn.example.net/ads/x.png", intercept.TypeImage, "https://news.com/", false},
		{"unrelated", "https://news.com/app.js", intercept.TypeScript, "https://news.com/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Match(tt.url, tt.typ, tt.source))
		})
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/easylist.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("||ads.example.com^\n"))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.Client())

	text, err := src.Fetch(context.Background(), srv.URL+"/easylist.txt")
	require.NoError(t, err)
	assert.Equal(t, "||ads.example.com^\n", text)

	_, err = src.Fetch(context.Background(), srv.URL+"/missing.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestSourceBuilder(t *testing.T) {
	src := StaticSource{
		"list://ads":      "||ads.example.com^",
		"list://tracking": "||tracker.com^",
	}
	build := SourceBuilder(src, map[Mode][]string{
		ModeAdsOnly:        {"list://ads"},
		ModeAdsAndTracking: {"list://ads", "list://tracking"},
	})

	ads, err := build(context.Background(), ModeAdsOnly)
	require.NoError(t, err)
	assert.True(t, ads.Match("https://ads.example.com/a.js", intercept.TypeScript, "https://news.com/"))
	assert.False(t, ads.Match("https://tracker.com/p.gif", intercept.TypeImage, "https://news.com/"))

	all, err := build(context.Background(), ModeAdsAndTracking)
	require.NoError(t, err)
	assert.True(t, all.Match("https://tracker.com/p.gif", intercept.TypeImage, "https://news.com/"))

	none, err := build(context.Background(), ModeNone)
	require.NoError(t, err)
	assert.False(t, none.Match("https://ads.example.com/a.js", intercept.TypeScript, ""))

	_, err = build(context.Background(), Mode("bogus"))
	assert.ErrorIs(t, err, ErrUnknownMode)
}

type failingSource struct{}

func (failingSource) Fetch(context.Context, string) (string, error) {
	return "", errors.New("offline")
}

func TestSourceBuilderPropagatesFetchError(t *testing.T) {
	build := SourceBuilder(failingSource{}, DefaultLists)
	_, err := build(context.Background(), ModeAdsOnly)
	assert.EqualError(t, err, "offline")
}

func TestListKeyIsStable(t *testing.T) {
	assert.Equal(t, listKey("https://a/list.txt"), listKey("https://a/list.txt"))
	assert.NotEqual(t, listKey("https://a/list.txt"), listKey("https://b/list.txt"))
	assert.Contains(t, listKey("x"), "adblock:list:")
}
