// Package stealth simulates human input timing and motion for a session
// according to its resolved behavior settings.
package stealth

import (
	"context"
	"math/rand"
	"sync"
	"time"
	"unicode/utf8"

	"browserstealth/internal/profile"
)

// Human samples delays and motion for one session. It is safe for
// concurrent use; settings never change after construction.
type Human struct {
	settings profile.BehaviorSettings

	mu     sync.Mutex
	rand   *rand.Rand
	cursor Point
}

type Option func(*Human)

// WithSeed makes sampling reproducible.
func WithSeed(seed int64) Option {
	return func(h *Human) {
		h.rand = rand.New(rand.NewSource(seed))
	}
}

func NewHuman(settings profile.BehaviorSettings, opts ...Option) *Human {
	h := &Human{
		settings: settings,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Human) Settings() profile.BehaviorSettings {
	return h.settings
}

func (h *Human) TypingDelay() time.Duration {
	return millis(h.between(h.settings.TypingDelayMin, h.settings.TypingDelayMax))
}

func (h *Human) TypingStartDelay() time.Duration {
	return millis(h.settings.TypingStartDelay)
}

func (h *Human) ClickDelay() time.Duration {
	return millis(h.between(h.settings.ClickDelayMin, h.settings.ClickDelayMax))
}

// ScrollSpeed is the distance in pixels covered by one scroll step.
func (h *Human) ScrollSpeed() int {
	return h.between(h.settings.ScrollSpeedMin, h.settings.ScrollSpeedMax)
}

func (h *Human) MicroPauseDuration() time.Duration {
	return millis(h.between(h.settings.MicroPauseMin, h.settings.MicroPauseMax))
}

// ShouldMicroPause rolls against the configured frequency. Always false
// while micro pauses are disabled.
func (h *Human) ShouldMicroPause() bool {
	if !h.settings.MicroPauseEnabled || h.settings.MicroPauseFrequency <= 0 {
		return false
	}
	return h.float() < h.settings.MicroPauseFrequency
}

// ShouldPaste reports whether text is long enough to be pasted in one go.
// A zero threshold disables pasting.
func (h *Human) ShouldPaste(text string) bool {
	return h.settings.PasteThreshold > 0 && utf8.RuneCountInString(text) > h.settings.PasteThreshold
}

// between samples uniformly from [min, max]; min when the range is empty.
func (h *Human) between(min, max int) int {
	if min >= max {
		return min
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return min + h.rand.Intn(max-min+1)
}

func (h *Human) float() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rand.Float64()
}

func millis(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
