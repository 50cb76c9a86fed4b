package profile

import "sort"

const (
	PresetNone     = "none"
	PresetFast     = "fast"
	PresetBalanced = "balanced"
	PresetStealth  = "stealth"
)

func ptr[T any](v T) *T { return &v }

var presets = map[string]BrowserProfile{
	// No modifications on top of the defaults.
	PresetNone: {},

	// Quick interactions, minimal patching.
	PresetFast: {
		Behavior: &BehaviorOverrides{
			TypingDelayMin:     ptr(10),
			TypingDelayMax:     ptr(40),
			PasteThreshold:     ptr(200),
			MouseMovementStyle: ptr(MouseBezier),
			MouseJitterAmount:  ptr(0.5),
			ClickDelayMin:      ptr(20),
			ClickDelayMax:      ptr(60),
			ScrollStyle:        ptr(ScrollSmooth),
			ScrollSpeedMin:     ptr(200),
			ScrollSpeedMax:     ptr(400),
		},
		AntiDetection: &AntiDetectionOverrides{
			HideWebdriver: ptr(true),
			ChromeRuntime: ptr(true),
		},
	},

	PresetBalanced: {
		Behavior: &BehaviorOverrides{
			TypingDelayMin:      ptr(40),
			TypingDelayMax:      ptr(120),
			TypingStartDelay:    ptr(150),
			PasteThreshold:      ptr(500),
			MouseMovementStyle:  ptr(MouseBezier),
			MouseJitterAmount:   ptr(1.5),
			ClickDelayMin:       ptr(50),
			ClickDelayMax:       ptr(150),
			ScrollStyle:         ptr(ScrollSmooth),
			ScrollSpeedMin:      ptr(100),
			ScrollSpeedMax:      ptr(250),
			MicroPauseEnabled:   ptr(true),
			MicroPauseMin:       ptr(100),
			MicroPauseMax:       ptr(400),
			MicroPauseFrequency: ptr(0.05),
		},
		AntiDetection: &AntiDetectionOverrides{
			HideWebdriver:    ptr(true),
			SpoofPlugins:     ptr(true),
			SpoofLanguages:   ptr(true),
			ChromeRuntime:    ptr(true),
			PermissionsQuery: ptr(true),
		},
	},

	// Everything on.
	PresetStealth: {
		Behavior: &BehaviorOverrides{
			TypingDelayMin:      ptr(60),
			TypingDelayMax:      ptr(180),
			TypingStartDelay:    ptr(400),
			TypingVariance:      ptr(true),
			MouseMovementStyle:  ptr(MouseNatural),
			MouseJitterAmount:   ptr(2.0),
			ClickDelayMin:       ptr(80),
			ClickDelayMax:       ptr(220),
			ScrollStyle:         ptr(ScrollNatural),
			ScrollSpeedMin:      ptr(60),
			ScrollSpeedMax:      ptr(180),
			MicroPauseEnabled:   ptr(true),
			MicroPauseMin:       ptr(200),
			MicroPauseMax:       ptr(800),
			MicroPauseFrequency: ptr(0.1),
		},
		AntiDetection: &AntiDetectionOverrides{
			HideWebdriver:    ptr(true),
			SpoofPlugins:     ptr(true),
			SpoofLanguages:   ptr(true),
			SpoofWebGL:       ptr(true),
			CanvasNoise:      ptr(true),
			AudioNoise:       ptr(true),
			SpoofHardware:    ptr(true),
			WindowDimensions: ptr(true),
			ChromeRuntime:    ptr(true),
			PermissionsQuery: ptr(true),
			StealthBundle:    ptr(true),
			AdBlocking:       ptr(AdBlockAdsAndTracking),
		},
	},
}

// Presets lists the known preset names in sorted order.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
