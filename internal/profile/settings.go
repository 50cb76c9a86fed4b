// Package profile turns a named preset plus partial overrides into the
// concrete fingerprint, behavior and anti-detection settings of a session.
package profile

type MouseStyle string

const (
	MouseLinear  MouseStyle = "linear"
	MouseBezier  MouseStyle = "bezier"
	MouseNatural MouseStyle = "natural"
)

type ScrollStyle string

const (
	ScrollInstant ScrollStyle = "instant"
	ScrollSmooth  ScrollStyle = "smooth"
	ScrollNatural ScrollStyle = "natural"
)

type AdBlocking string

const (
	AdBlockNone           AdBlocking = "none"
	AdBlockAdsOnly        AdBlocking = "ads_only"
	AdBlockAdsAndTracking AdBlocking = "ads_and_tracking"
)

type Geolocation struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	Accuracy  float64 `yaml:"accuracy" json:"accuracy"`
}

// FingerprintSettings describe what the browser reports about itself.
// Zero viewport and scale values mean "use the session's own values".
type FingerprintSettings struct {
	ViewportWidth       int         `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight      int         `yaml:"viewport_height" json:"viewport_height"`
	DeviceScaleFactor   float64     `yaml:"device_scale_factor" json:"device_scale_factor"`
	HardwareConcurrency int         `yaml:"hardware_concurrency" json:"hardware_concurrency"`
	DeviceMemory        int         `yaml:"device_memory" json:"device_memory"`
	UserAgent           string      `yaml:"user_agent" json:"user_agent"`
	UserAgentPreset     string      `yaml:"user_agent_preset" json:"user_agent_preset"`
	Locale              string      `yaml:"locale" json:"locale"`
	Timezone            string      `yaml:"timezone" json:"timezone"`
	ColorScheme         string      `yaml:"color_scheme" json:"color_scheme"`
	Geolocation         Geolocation `yaml:"geolocation" json:"geolocation"`
}

// BehaviorSettings hold timing ranges in milliseconds and motion styles.
type BehaviorSettings struct {
	TypingDelayMin      int         `yaml:"typing_delay_min" json:"typing_delay_min"`
	TypingDelayMax      int         `yaml:"typing_delay_max" json:"typing_delay_max"`
	TypingStartDelay    int         `yaml:"typing_start_delay" json:"typing_start_delay"`
	PasteThreshold      int         `yaml:"paste_threshold" json:"paste_threshold"`
	TypingVariance      bool        `yaml:"typing_variance" json:"typing_variance"`
	MouseMovementStyle  MouseStyle  `yaml:"mouse_movement_style" json:"mouse_movement_style"`
	MouseJitterAmount   float64     `yaml:"mouse_jitter_amount" json:"mouse_jitter_amount"`
	ClickDelayMin       int         `yaml:"click_delay_min" json:"click_delay_min"`
	ClickDelayMax       int         `yaml:"click_delay_max" json:"click_delay_max"`
	ScrollStyle         ScrollStyle `yaml:"scroll_style" json:"scroll_style"`
	ScrollSpeedMin      int         `yaml:"scroll_speed_min" json:"scroll_speed_min"`
	ScrollSpeedMax      int         `yaml:"scroll_speed_max" json:"scroll_speed_max"`
	MicroPauseEnabled   bool        `yaml:"micro_pause_enabled" json:"micro_pause_enabled"`
	MicroPauseMin       int         `yaml:"micro_pause_min" json:"micro_pause_min"`
	MicroPauseMax       int         `yaml:"micro_pause_max" json:"micro_pause_max"`
	MicroPauseFrequency float64     `yaml:"micro_pause_frequency" json:"micro_pause_frequency"`
}

// AntiDetectionSettings carry one switch per injected patch plus the
// request blocking policy.
type AntiDetectionSettings struct {
	HideWebdriver    bool       `yaml:"hide_webdriver" json:"hide_webdriver"`
	SpoofPlugins     bool       `yaml:"spoof_plugins" json:"spoof_plugins"`
	SpoofLanguages   bool       `yaml:"spoof_languages" json:"spoof_languages"`
	SpoofWebGL       bool       `yaml:"spoof_webgl" json:"spoof_webgl"`
	CanvasNoise      bool       `yaml:"canvas_noise" json:"canvas_noise"`
	AudioNoise       bool       `yaml:"audio_noise" json:"audio_noise"`
	SpoofHardware    bool       `yaml:"spoof_hardware" json:"spoof_hardware"`
	WindowDimensions bool       `yaml:"window_dimensions" json:"window_dimensions"`
	ChromeRuntime    bool       `yaml:"chrome_runtime" json:"chrome_runtime"`
	PermissionsQuery bool       `yaml:"permissions_query" json:"permissions_query"`
	StealthBundle    bool       `yaml:"stealth_bundle" json:"stealth_bundle"`
	AdBlocking       AdBlocking `yaml:"ad_blocking" json:"ad_blocking"`
	AdBlockWhitelist []string   `yaml:"ad_block_whitelist" json:"ad_block_whitelist"`
}

// Resolved is the fully populated result of Resolve.
type Resolved struct {
	Fingerprint   FingerprintSettings   `yaml:"fingerprint" json:"fingerprint"`
	Behavior      BehaviorSettings      `yaml:"behavior" json:"behavior"`
	AntiDetection AntiDetectionSettings `yaml:"anti_detection" json:"anti_detection"`
}

// BrowserProfile is the caller's request: a preset name and optional
// per-group overrides.
type BrowserProfile struct {
	Preset        string                  `yaml:"preset" json:"preset"`
	Fingerprint   *FingerprintOverrides   `yaml:"fingerprint,omitempty" json:"fingerprint,omitempty"`
	Behavior      *BehaviorOverrides      `yaml:"behavior,omitempty" json:"behavior,omitempty"`
	AntiDetection *AntiDetectionOverrides `yaml:"anti_detection,omitempty" json:"anti_detection,omitempty"`
}

// Override structs mirror the settings groups with pointer fields; nil
// leaves the underlying value untouched.

type FingerprintOverrides struct {
	ViewportWidth       *int         `yaml:"viewport_width,omitempty" json:"viewport_width,omitempty"`
	ViewportHeight      *int         `yaml:"viewport_height,omitempty" json:"viewport_height,omitempty"`
	DeviceScaleFactor   *float64     `yaml:"device_scale_factor,omitempty" json:"device_scale_factor,omitempty"`
	HardwareConcurrency *int         `yaml:"hardware_concurrency,omitempty" json:"hardware_concurrency,omitempty"`
	DeviceMemory        *int         `yaml:"device_memory,omitempty" json:"device_memory,omitempty"`
	UserAgent           *string      `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	UserAgentPreset     *string      `yaml:"user_agent_preset,omitempty" json:"user_agent_preset,omitempty"`
	Locale              *string      `yaml:"locale,omitempty" json:"locale,omitempty"`
	Timezone            *string      `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	ColorScheme         *string      `yaml:"color_scheme,omitempty" json:"color_scheme,omitempty"`
	Geolocation         *Geolocation `yaml:"geolocation,omitempty" json:"geolocation,omitempty"`
}

type BehaviorOverrides struct {
	TypingDelayMin      *int         `yaml:"typing_delay_min,omitempty" json:"typing_delay_min,omitempty"`
	TypingDelayMax      *int         `yaml:"typing_delay_max,omitempty" json:"typing_delay_max,omitempty"`
	TypingStartDelay    *int         `yaml:"typing_start_delay,omitempty" json:"typing_start_delay,omitempty"`
	PasteThreshold      *int         `yaml:"paste_threshold,omitempty" json:"paste_threshold,omitempty"`
	TypingVariance      *bool        `yaml:"typing_variance,omitempty" json:"typing_variance,omitempty"`
	MouseMovementStyle  *MouseStyle  `yaml:"mouse_movement_style,omitempty" json:"mouse_movement_style,omitempty"`
	MouseJitterAmount   *float64     `yaml:"mouse_jitter_amount,omitempty" json:"mouse_jitter_amount,omitempty"`
	ClickDelayMin       *int         `yaml:"click_delay_min,omitempty" json:"click_delay_min,omitempty"`
	ClickDelayMax       *int         `yaml:"click_delay_max,omitempty" json:"click_delay_max,omitempty"`
	ScrollStyle         *ScrollStyle `yaml:"scroll_style,omitempty" json:"scroll_style,omitempty"`
	ScrollSpeedMin      *int         `yaml:"scroll_speed_min,omitempty" json:"scroll_speed_min,omitempty"`
	ScrollSpeedMax      *int         `yaml:"scroll_speed_max,omitempty" json:"scroll_speed_max,omitempty"`
	MicroPauseEnabled   *bool        `yaml:"micro_pause_enabled,omitempty" json:"micro_pause_enabled,omitempty"`
	MicroPauseMin       *int         `yaml:"micro_pause_min,omitempty" json:"micro_pause_min,omitempty"`
	MicroPauseMax       *int         `yaml:"micro_pause_max,omitempty" json:"micro_pause_max,omitempty"`
	MicroPauseFrequency *float64     `yaml:"micro_pause_frequency,omitempty" json:"micro_pause_frequency,omitempty"`
}

type AntiDetectionOverrides struct {
	HideWebdriver    *bool       `yaml:"hide_webdriver,omitempty" json:"hide_webdriver,omitempty"`
	SpoofPlugins     *bool       `yaml:"spoof_plugins,omitempty" json:"spoof_plugins,omitempty"`
	SpoofLanguages   *bool       `yaml:"spoof_languages,omitempty" json:"spoof_languages,omitempty"`
	SpoofWebGL       *bool       `yaml:"spoof_webgl,omitempty" json:"spoof_webgl,omitempty"`
	CanvasNoise      *bool       `yaml:"canvas_noise,omitempty" json:"canvas_noise,omitempty"`
	AudioNoise       *bool       `yaml:"audio_noise,omitempty" json:"audio_noise,omitempty"`
	SpoofHardware    *bool       `yaml:"spoof_hardware,omitempty" json:"spoof_hardware,omitempty"`
	WindowDimensions *bool       `yaml:"window_dimensions,omitempty" json:"window_dimensions,omitempty"`
	ChromeRuntime    *bool       `yaml:"chrome_runtime,omitempty" json:"chrome_runtime,omitempty"`
	PermissionsQuery *bool       `yaml:"permissions_query,omitempty" json:"permissions_query,omitempty"`
	StealthBundle    *bool       `yaml:"stealth_bundle,omitempty" json:"stealth_bundle,omitempty"`
	AdBlocking       *AdBlocking `yaml:"ad_blocking,omitempty" json:"ad_blocking,omitempty"`
	AdBlockWhitelist []string    `yaml:"ad_block_whitelist,omitempty" json:"ad_block_whitelist,omitempty"`
}

// Any reports whether at least one anti-detection patch is switched on.
func (a AntiDetectionSettings) Any() bool {
	return a.HideWebdriver || a.SpoofPlugins || a.SpoofLanguages || a.SpoofWebGL ||
		a.CanvasNoise || a.AudioNoise || a.SpoofHardware || a.WindowDimensions ||
		a.ChromeRuntime || a.PermissionsQuery || a.StealthBundle
}
