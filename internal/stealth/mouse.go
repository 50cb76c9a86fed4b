package stealth

import (
	"context"
	"math"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"browserstealth/internal/profile"
)

type Point struct {
	X, Y float64
}

// Pointer is the mouse surface the simulator drives. *rod.Mouse satisfies it.
type Pointer interface {
	MoveTo(p proto.Point) error
	Scroll(offsetX, offsetY float64, steps int) error
	Click(button proto.InputMouseButton, clickCount int) error
}

const maxControlOffset = 100.0

// GenerateMousePath returns steps+1 points from from to to, shaped by the
// configured movement style. The first and last points are always the
// exact endpoints.
func (h *Human) GenerateMousePath(from, to Point, steps int) []Point {
	if steps < 1 {
		steps = 1
	}

	var path []Point
	switch h.settings.MouseMovementStyle {
	case profile.MouseBezier:
		path = h.bezierPath(from, to, steps)
	case profile.MouseNatural:
		path = h.naturalPath(from, to, steps)
	default:
		path = linearPath(from, to, steps)
	}

	path[0] = from
	path[len(path)-1] = to
	return path
}

func linearPath(from, to Point, steps int) []Point {
	points := make([]Point, steps+1)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		points[i] = Point{
			X: math.Round(from.X + (to.X-from.X)*t),
			Y: math.Round(from.Y + (to.Y-from.Y)*t),
		}
	}
	return points
}

func (h *Human) bezierPath(from, to Point, steps int) []Point {
	cp1, cp2 := h.controlPoints(from, to)

	points := make([]Point, steps+1)
	for i := 0; i <= steps; i++ {
		p := cubicBezier(from, cp1, cp2, to, float64(i)/float64(steps))
		if i > 0 && i < steps {
			p = h.jitter(p)
		}
		points[i] = p
	}
	return points
}

// naturalPath samples a denser bezier curve through an ease-in-out curve so
// motion starts slow, speeds up and settles onto the target.
func (h *Human) naturalPath(from, to Point, steps int) []Point {
	cp1, cp2 := h.controlPoints(from, to)

	dense := steps * 2
	curve := make([]Point, dense+1)
	for i := 0; i <= dense; i++ {
		curve[i] = cubicBezier(from, cp1, cp2, to, float64(i)/float64(dense))
	}

	points := make([]Point, steps+1)
	for i := 0; i <= steps; i++ {
		t := easeInOutQuad(float64(i) / float64(steps))
		p := curve[int(math.Round(t*float64(dense)))]
		if i > 0 && i < steps {
			p = h.jitter(p)
		}
		points[i] = p
	}
	return points
}

// controlPoints places two control points at 1/3 and 2/3 of the segment,
// pushed sideways by up to 30% of its length, capped at maxControlOffset.
func (h *Human) controlPoints(from, to Point) (Point, Point) {
	dx := to.X - from.X
	dy := to.Y - from.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		return from, to
	}

	nx, ny := -dy/dist, dx/dist
	off1 := math.Min(dist*h.float()*0.3, maxControlOffset) * h.sign()
	off2 := math.Min(dist*h.float()*0.3, maxControlOffset) * h.sign()

	cp1 := Point{X: from.X + dx/3 + nx*off1, Y: from.Y + dy/3 + ny*off1}
	cp2 := Point{X: from.X + 2*dx/3 + nx*off2, Y: from.Y + 2*dy/3 + ny*off2}
	return cp1, cp2
}

func cubicBezier(p0, p1, p2, p3 Point, t float64) Point {
	// B(t) = (1-t)³P0 + 3(1-t)²tP1 + 3(1-t)t²P2 + t³P3
	u := 1 - t
	b0 := u * u * u
	b1 := 3 * u * u * t
	b2 := 3 * u * t * t
	b3 := t * t * t

	return Point{
		X: b0*p0.X + b1*p1.X + b2*p2.X + b3*p3.X,
		Y: b0*p0.Y + b1*p1.Y + b2*p2.Y + b3*p3.Y,
	}
}

func easeInOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}

func (h *Human) jitter(p Point) Point {
	amount := h.settings.MouseJitterAmount
	if amount <= 0 {
		return p
	}
	return Point{
		X: p.X + (h.float()*2-1)*amount,
		Y: p.Y + (h.float()*2-1)*amount,
	}
}

func (h *Human) sign() float64 {
	if h.float() < 0.5 {
		return -1
	}
	return 1
}

// FollowPath moves m through path, spreading total evenly across steps.
func (h *Human) FollowPath(ctx context.Context, m Pointer, path []Point, total time.Duration) error {
	if len(path) == 0 {
		return nil
	}

	var perStep time.Duration
	if len(path) > 1 {
		perStep = total / time.Duration(len(path)-1)
	}

	for i, p := range path {
		if i > 0 {
			if err := Sleep(ctx, perStep); err != nil {
				return err
			}
		}
		if err := m.MoveTo(proto.Point{X: p.X, Y: p.Y}); err != nil {
			return err
		}
		h.setCursor(p)
	}
	return nil
}

// MoveTo moves the cursor from its last known position to target.
func (h *Human) MoveTo(ctx context.Context, m Pointer, target Point) error {
	from := h.Cursor()
	dist := math.Hypot(target.X-from.X, target.Y-from.Y)

	steps := int(dist / 5)
	if steps < 10 {
		steps = 10
	}
	if steps > 100 {
		steps = 100
	}

	path := h.GenerateMousePath(from, target, steps)
	return h.FollowPath(ctx, m, path, h.moveDuration(dist))
}

// Click moves to target, waits a click delay and presses the left button.
func (h *Human) Click(ctx context.Context, m Pointer, target Point) error {
	if err := h.MoveTo(ctx, m, target); err != nil {
		return err
	}
	if err := Sleep(ctx, h.ClickDelay()); err != nil {
		return err
	}
	return m.Click(proto.InputMouseButtonLeft, 1)
}

func (h *Human) moveDuration(dist float64) time.Duration {
	if h.settings.MouseMovementStyle == profile.MouseLinear || h.settings.MouseMovementStyle == "" {
		return 0
	}
	d := 200*time.Millisecond + time.Duration(dist*0.8)*time.Millisecond
	if d > 1500*time.Millisecond {
		d = 1500 * time.Millisecond
	}
	return d
}

// Cursor returns the last position the simulator moved the mouse to.
func (h *Human) Cursor() Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

func (h *Human) setCursor(p Point) {
	h.mu.Lock()
	h.cursor = p
	h.mu.Unlock()
}
