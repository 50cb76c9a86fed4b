package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveNoneMatchesDefaults(t *testing.T) {
	got := ResolvePreset(PresetNone)
	want := Defaults()

	assert.Equal(t, MouseLinear, got.Behavior.MouseMovementStyle)
	assert.Equal(t, AdBlockAdsOnly, got.AntiDetection.AdBlocking)
	assert.Equal(t, "en-US", got.Fingerprint.Locale)
	assert.Equal(t, 8, got.Fingerprint.HardwareConcurrency)
	assert.Equal(t, 8, got.Fingerprint.DeviceMemory)
	assert.Zero(t, got.Behavior.TypingDelayMin)
	assert.Zero(t, got.Behavior.TypingDelayMax)
	assert.False(t, got.AntiDetection.Any())
	assert.Equal(t, want.Fingerprint, got.Fingerprint)
	assert.Equal(t, want.Behavior, got.Behavior)
}

func TestResolveUnknownPresetFallsBackToNone(t *testing.T) {
	assert.Equal(t, ResolvePreset(PresetNone), ResolvePreset("does-not-exist"))
	assert.Equal(t, ResolvePreset(PresetNone), ResolvePreset(""))
}

func TestResolvePresetNameIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, ResolvePreset(PresetStealth), ResolvePreset(" Stealth "))
}

func TestResolveIsDeterministic(t *testing.T) {
	p := BrowserProfile{
		Preset:   PresetBalanced,
		Behavior: &BehaviorOverrides{ClickDelayMax: ptr(999)},
		AntiDetection: &AntiDetectionOverrides{
			AdBlockWhitelist: []string{"*.example.com"},
		},
	}

	first := Resolve(p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Resolve(p))
	}
}

func TestResolveStealthWithTypingOverride(t *testing.T) {
	got := Resolve(BrowserProfile{
		Preset:   PresetStealth,
		Behavior: &BehaviorOverrides{TypingDelayMax: ptr(500)},
	})
	stealth := ResolvePreset(PresetStealth)

	assert.Equal(t, 500, got.Behavior.TypingDelayMax)
	assert.Equal(t, stealth.Behavior.TypingDelayMin, got.Behavior.TypingDelayMin)
	assert.Equal(t, MouseNatural, got.Behavior.MouseMovementStyle)

	stealth.Behavior.TypingDelayMax = 500
	assert.Equal(t, stealth, got)
}

func TestResolveOverridePreservesSiblings(t *testing.T) {
	base := ResolvePreset(PresetBalanced)
	got := Resolve(BrowserProfile{
		Preset:      PresetBalanced,
		Fingerprint: &FingerprintOverrides{Locale: ptr("de-DE")},
		AntiDetection: &AntiDetectionOverrides{
			CanvasNoise: ptr(true),
		},
	})

	assert.Equal(t, "de-DE", got.Fingerprint.Locale)
	assert.True(t, got.AntiDetection.CanvasNoise)

	base.Fingerprint.Locale = "de-DE"
	base.AntiDetection.CanvasNoise = true
	assert.Equal(t, base, got)
}

func TestResolveExplicitFalseOverridesPreset(t *testing.T) {
	got := Resolve(BrowserProfile{
		Preset:        PresetStealth,
		AntiDetection: &AntiDetectionOverrides{HideWebdriver: ptr(false), AdBlocking: ptr(AdBlockNone)},
	})

	assert.False(t, got.AntiDetection.HideWebdriver)
	assert.True(t, got.AntiDetection.SpoofWebGL)
	assert.Equal(t, AdBlockNone, got.AntiDetection.AdBlocking)
}

func TestResolveStealthEnablesEveryPatch(t *testing.T) {
	a := ResolvePreset(PresetStealth).AntiDetection

	assert.True(t, a.HideWebdriver)
	assert.True(t, a.SpoofPlugins)
	assert.True(t, a.SpoofLanguages)
	assert.True(t, a.SpoofWebGL)
	assert.True(t, a.CanvasNoise)
	assert.True(t, a.AudioNoise)
	assert.True(t, a.SpoofHardware)
	assert.True(t, a.WindowDimensions)
	assert.True(t, a.ChromeRuntime)
	assert.True(t, a.PermissionsQuery)
	assert.Equal(t, AdBlockAdsAndTracking, a.AdBlocking)
}

func TestResolveWhitelistIsCopied(t *testing.T) {
	list := []string{"example.com"}
	got := Resolve(BrowserProfile{AntiDetection: &AntiDetectionOverrides{AdBlockWhitelist: list}})

	list[0] = "mutated.com"
	require.Len(t, got.AntiDetection.AdBlockWhitelist, 1)
	assert.Equal(t, "example.com", got.AntiDetection.AdBlockWhitelist[0])
}

func TestPresetsSorted(t *testing.T) {
	assert.Equal(t, []string{"balanced", "fast", "none", "stealth"}, Presets())
}
