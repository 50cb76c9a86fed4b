package browser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

type Geolocation struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	Accuracy  float64 `yaml:"accuracy" json:"accuracy"`
}

// Emulation is the per-page device and locale emulation of a session.
// Zero fields are left at the browser's values.
type Emulation struct {
	Viewport          Viewport
	DeviceScaleFactor float64
	UserAgent         string
	Locale            string
	Timezone          string
	ColorScheme       string
	Geolocation       *Geolocation
	ExtraHeaders      map[string]string
}

func (e Emulation) Apply(page *rod.Page) error {
	if e.Viewport.Width > 0 && e.Viewport.Height > 0 {
		scale := e.DeviceScaleFactor
		if scale <= 0 {
			scale = 1
		}
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             e.Viewport.Width,
			Height:            e.Viewport.Height,
			DeviceScaleFactor: scale,
		})
		if err != nil {
			return fmt.Errorf("failed to set viewport: %w", err)
		}
	}

	if e.UserAgent != "" {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      e.UserAgent,
			AcceptLanguage: acceptLanguage(e.Locale),
		})
		if err != nil {
			return fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	if e.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: e.Locale}).Call(page); err != nil {
			return fmt.Errorf("failed to set locale: %w", err)
		}
	}

	if e.Timezone != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: e.Timezone}).Call(page); err != nil {
			return fmt.Errorf("failed to set timezone: %w", err)
		}
	}

	if e.ColorScheme != "" {
		err := proto.EmulationSetEmulatedMedia{
			Features: []*proto.EmulationMediaFeature{
				{Name: "prefers-color-scheme", Value: e.ColorScheme},
			},
		}.Call(page)
		if err != nil {
			return fmt.Errorf("failed to set color scheme: %w", err)
		}
	}

	if g := e.Geolocation; g != nil {
		accuracy := g.Accuracy
		if accuracy <= 0 {
			accuracy = 100
		}
		err := proto.EmulationSetGeolocationOverride{
			Latitude:  &g.Latitude,
			Longitude: &g.Longitude,
			Accuracy:  &accuracy,
		}.Call(page)
		if err != nil {
			return fmt.Errorf("failed to set geolocation: %w", err)
		}
	}

	if len(e.ExtraHeaders) > 0 {
		if _, err := page.SetExtraHeaders(headerList(e.ExtraHeaders)); err != nil {
			return fmt.Errorf("failed to set extra headers: %w", err)
		}
	}

	return nil
}

// acceptLanguage builds an Accept-Language value matching languagesFor.
func acceptLanguage(locale string) string {
	langs := languagesFor(locale)
	parts := make([]string, len(langs))
	for i, l := range langs {
		if i == 0 {
			parts[i] = l
			continue
		}
		parts[i] = fmt.Sprintf("%s;q=0.%d", l, 10-i)
	}
	return strings.Join(parts, ",")
}

// headerList flattens headers into the name/value pairs rod expects, in
// name order.
func headerList(headers map[string]string) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]string, 0, len(headers)*2)
	for _, name := range names {
		list = append(list, name, headers[name])
	}
	return list
}
