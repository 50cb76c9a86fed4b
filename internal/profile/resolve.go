package profile

import "strings"

// Defaults returns the baseline every preset starts from.
func Defaults() Resolved {
	return Resolved{
		Fingerprint: FingerprintSettings{
			HardwareConcurrency: 8,
			DeviceMemory:        8,
			Locale:              "en-US",
			ColorScheme:         "light",
		},
		Behavior: BehaviorSettings{
			MouseMovementStyle: MouseLinear,
			ScrollStyle:        ScrollInstant,
		},
		AntiDetection: AntiDetectionSettings{
			AdBlocking: AdBlockAdsOnly,
		},
	}
}

// Resolve applies defaults, then the named preset, then the profile's own
// overrides. It never fails: unknown presets resolve as "none".
func Resolve(p BrowserProfile) Resolved {
	base := Defaults()
	preset := lookupPreset(p.Preset)

	return Resolved{
		Fingerprint: base.Fingerprint.
			merge(preset.Fingerprint).
			merge(p.Fingerprint),
		Behavior: base.Behavior.
			merge(preset.Behavior).
			merge(p.Behavior),
		AntiDetection: base.AntiDetection.
			merge(preset.AntiDetection).
			merge(p.AntiDetection),
	}
}

// ResolvePreset is shorthand for resolving a preset without overrides.
func ResolvePreset(name string) Resolved {
	return Resolve(BrowserProfile{Preset: name})
}

func lookupPreset(name string) BrowserProfile {
	if p, ok := presets[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return presets[PresetNone]
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (f FingerprintSettings) merge(o *FingerprintOverrides) FingerprintSettings {
	if o == nil {
		return f
	}
	set(&f.ViewportWidth, o.ViewportWidth)
	set(&f.ViewportHeight, o.ViewportHeight)
	set(&f.DeviceScaleFactor, o.DeviceScaleFactor)
	set(&f.HardwareConcurrency, o.HardwareConcurrency)
	set(&f.DeviceMemory, o.DeviceMemory)
	set(&f.UserAgent, o.UserAgent)
	set(&f.UserAgentPreset, o.UserAgentPreset)
	set(&f.Locale, o.Locale)
	set(&f.Timezone, o.Timezone)
	set(&f.ColorScheme, o.ColorScheme)
	set(&f.Geolocation, o.Geolocation)
	return f
}

func (b BehaviorSettings) merge(o *BehaviorOverrides) BehaviorSettings {
	if o == nil {
		return b
	}
	set(&b.TypingDelayMin, o.TypingDelayMin)
	set(&b.TypingDelayMax, o.TypingDelayMax)
	set(&b.TypingStartDelay, o.TypingStartDelay)
	set(&b.PasteThreshold, o.PasteThreshold)
	set(&b.TypingVariance, o.TypingVariance)
	set(&b.MouseMovementStyle, o.MouseMovementStyle)
	set(&b.MouseJitterAmount, o.MouseJitterAmount)
	set(&b.ClickDelayMin, o.ClickDelayMin)
	set(&b.ClickDelayMax, o.ClickDelayMax)
	set(&b.ScrollStyle, o.ScrollStyle)
	set(&b.ScrollSpeedMin, o.ScrollSpeedMin)
	set(&b.ScrollSpeedMax, o.ScrollSpeedMax)
	set(&b.MicroPauseEnabled, o.MicroPauseEnabled)
	set(&b.MicroPauseMin, o.MicroPauseMin)
	set(&b.MicroPauseMax, o.MicroPauseMax)
	set(&b.MicroPauseFrequency, o.MicroPauseFrequency)
	return b
}

func (a AntiDetectionSettings) merge(o *AntiDetectionOverrides) AntiDetectionSettings {
	// The whitelist is copied so a Resolved value never shares backing
	// storage with a preset or a caller's override.
	a.AdBlockWhitelist = append([]string(nil), a.AdBlockWhitelist...)
	if o == nil {
		return a
	}
	set(&a.HideWebdriver, o.HideWebdriver)
	set(&a.SpoofPlugins, o.SpoofPlugins)
	set(&a.SpoofLanguages, o.SpoofLanguages)
	set(&a.SpoofWebGL, o.SpoofWebGL)
	set(&a.CanvasNoise, o.CanvasNoise)
	set(&a.AudioNoise, o.AudioNoise)
	set(&a.SpoofHardware, o.SpoofHardware)
	set(&a.WindowDimensions, o.WindowDimensions)
	set(&a.ChromeRuntime, o.ChromeRuntime)
	set(&a.PermissionsQuery, o.PermissionsQuery)
	set(&a.StealthBundle, o.StealthBundle)
	set(&a.AdBlocking, o.AdBlocking)
	if o.AdBlockWhitelist != nil {
		a.AdBlockWhitelist = append([]string(nil), o.AdBlockWhitelist...)
	}
	return a
}
