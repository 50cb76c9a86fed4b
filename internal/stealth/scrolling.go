package stealth

import (
	"context"
	"math"
	"time"

	"browserstealth/internal/profile"
)

const (
	frameInterval      = 16 * time.Millisecond
	defaultScrollSpeed = 100
	scrollMargin       = 200
)

// Scroll moves the page vertically by deltaY pixels in the configured style.
// The emitted wheel deltas always add up to deltaY.
func (h *Human) Scroll(ctx context.Context, m Pointer, deltaY float64) error {
	if deltaY == 0 {
		return nil
	}

	switch h.settings.ScrollStyle {
	case profile.ScrollSmooth:
		return h.scrollSmooth(ctx, m, deltaY)
	case profile.ScrollNatural:
		return h.scrollNatural(ctx, m, deltaY)
	default:
		return m.Scroll(0, deltaY, 1)
	}
}

func (h *Human) scrollSmooth(ctx context.Context, m Pointer, deltaY float64) error {
	dir := math.Copysign(1, deltaY)
	remaining := math.Abs(deltaY)
	speed := h.stepSize()

	for remaining > 0 {
		chunk := math.Min(speed, remaining)
		if err := m.Scroll(0, dir*chunk, 1); err != nil {
			return err
		}
		remaining -= chunk
		if remaining > 0 {
			if err := Sleep(ctx, frameInterval); err != nil {
				return err
			}
		}
	}
	return nil
}

// scrollNatural accelerates at the start, decelerates near the end and
// occasionally scrolls back a little or pauses.
func (h *Human) scrollNatural(ctx context.Context, m Pointer, deltaY float64) error {
	dir := math.Copysign(1, deltaY)
	total := math.Abs(deltaY)
	remaining := total

	for remaining > 0 {
		factor := scrollFactor((total - remaining) / total)
		chunk := math.Min(math.Max(1, math.Round(h.stepSize()*factor)), remaining)

		if err := m.Scroll(0, dir*chunk, 1); err != nil {
			return err
		}
		remaining -= chunk
		if remaining <= 0 {
			break
		}

		if err := Sleep(ctx, time.Duration(float64(frameInterval)/factor)); err != nil {
			return err
		}

		if h.float() < 0.05 {
			back := math.Min(10, total-remaining)
			if err := m.Scroll(0, -dir*back, 1); err != nil {
				return err
			}
			remaining += back
		}

		if h.ShouldMicroPause() {
			if err := Sleep(ctx, h.MicroPauseDuration()); err != nil {
				return err
			}
		}
	}
	return nil
}

func scrollFactor(progress float64) float64 {
	switch {
	case progress < 0.2:
		return 0.5 + progress*2.5
	case progress > 0.8:
		return math.Max(0.5, 1.0-(progress-0.8)*2.5)
	default:
		return 1.0
	}
}

func (h *Human) stepSize() float64 {
	speed := h.ScrollSpeed()
	if speed <= 0 {
		speed = defaultScrollSpeed
	}
	return float64(speed)
}

// ScrollToElement scrolls until el sits a short margin below the top of
// the viewport.
func (h *Human) ScrollToElement(ctx context.Context, m Pointer, el Shaper) error {
	shape, err := el.Shape()
	if err != nil {
		return err
	}
	box := shape.Box()
	if box == nil {
		return errNoBox
	}
	return h.Scroll(ctx, m, math.Round(box.Y-scrollMargin))
}
