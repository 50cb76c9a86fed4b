package stealth

import (
	"context"
	"errors"

	"github.com/go-rod/rod/lib/proto"
)

// Shaper exposes an element's layout. *rod.Element satisfies it.
type Shaper interface {
	Shape() (*proto.DOMGetContentQuadsResult, error)
}

var errNoBox = errors.New("element has no layout box")

// HoverElement moves to a point near the center of el and dwells there.
func (h *Human) HoverElement(ctx context.Context, m Pointer, el Shaper) error {
	target, err := h.elementTarget(el)
	if err != nil {
		return err
	}
	if err := h.MoveTo(ctx, m, target); err != nil {
		return err
	}
	return Sleep(ctx, h.ClickDelay())
}

// ClickElement moves to el and clicks it.
func (h *Human) ClickElement(ctx context.Context, m Pointer, el Shaper) error {
	target, err := h.elementTarget(el)
	if err != nil {
		return err
	}
	return h.Click(ctx, m, target)
}

func (h *Human) elementTarget(el Shaper) (Point, error) {
	shape, err := el.Shape()
	if err != nil {
		return Point{}, err
	}
	box := shape.Box()
	if box == nil {
		return Point{}, errNoBox
	}

	// Stay within the middle half of the box.
	return Point{
		X: box.X + box.Width/2 + (h.float()*2-1)*box.Width/4,
		Y: box.Y + box.Height/2 + (h.float()*2-1)*box.Height/4,
	}, nil
}
