package stealth

import (
	"context"
	"time"
	"unicode"
)

// Inputter receives typed text. *rod.Element satisfies it.
type Inputter interface {
	Input(text string) error
}

// TypeText enters text one character at a time with sampled delays, or in
// a single call when it exceeds the paste threshold.
func (h *Human) TypeText(ctx context.Context, in Inputter, text string) error {
	if text == "" {
		return nil
	}

	if err := Sleep(ctx, h.TypingStartDelay()); err != nil {
		return err
	}

	if h.ShouldPaste(text) {
		return in.Input(text)
	}

	for _, char := range text {
		if err := in.Input(string(char)); err != nil {
			return err
		}

		if err := Sleep(ctx, h.TypingDelay()); err != nil {
			return err
		}

		if h.ShouldMicroPause() {
			if err := Sleep(ctx, h.MicroPauseDuration()); err != nil {
				return err
			}
		}

		if h.settings.TypingVariance && unicode.IsSpace(char) {
			if err := Sleep(ctx, h.wordPause()); err != nil {
				return err
			}
		}
	}

	return nil
}

func (h *Human) wordPause() time.Duration {
	return millis(h.between(100, 300))
}
