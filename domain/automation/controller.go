package automation

import (
	"errors"
	"fmt"
	"image"
	"math"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/soocke/pixel-auto/domain/capture"
)

// Defaults applied by New to zero-valued Options fields.
const (
	DefaultStepsPerSecond  = 100
	DefaultMinimumDuration = 100 * time.Millisecond
)

// Options configures a Controller. Bounds has no default and must be set.
type Options struct {
	Bounds BoundsPolicy
	// StepsPerSecond is the pointer update rate during smooth moves.
	StepsPerSecond int
	// Moves shorter than MinimumDuration jump straight to the destination.
	MinimumDuration time.Duration
	Tween           Tween
	// Pause is slept after every successful input action (click, drag, type).
	Pause time.Duration
	// ArtifactDir receives screenshots; empty means the working directory.
	ArtifactDir string
	Match       capture.MultiScaleOptions
	Clock       Clock
}

// Controller locates targets and drives primitive input actions through a
// Host. Every call blocks until finished and is independent of the previous
// one; nothing is retried. A Controller must be used by one caller at a time.
type Controller struct {
	host          Host
	opts          Options
	clock         Clock
	width, height int
	log           *zap.Logger
}

// New reads the screen size from host once and keeps it for the lifetime of
// the controller. It fails with an error wrapping ErrNoDisplay when the host
// has no screen.
func New(host Host, opts Options, logger *zap.Logger) (*Controller, error) {
	if host == nil {
		return nil, fmt.Errorf("%w: nil host", ErrNoDisplay)
	}
	if opts.Bounds != BoundsReject && opts.Bounds != BoundsClamp {
		return nil, invalid("new", "bounds policy must be set explicitly")
	}
	if opts.StepsPerSecond <= 0 {
		opts.StepsPerSecond = DefaultStepsPerSecond
	}
	if opts.MinimumDuration <= 0 {
		opts.MinimumDuration = DefaultMinimumDuration
	}
	if opts.Tween == nil {
		opts.Tween = Linear
	}
	if opts.ArtifactDir == "" {
		opts.ArtifactDir = "."
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w, h, err := host.ScreenSize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDisplay, err)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: screen size %dx%d", ErrNoDisplay, w, h)
	}
	c := &Controller{host: host, opts: opts, clock: opts.Clock, width: w, height: h, log: logger.Named("automation")}
	c.log.Info("screen size", zap.Int("width", w), zap.Int("height", h), zap.Stringer("bounds", opts.Bounds))
	return c, nil
}

// Size returns the screen dimensions captured at construction.
func (c *Controller) Size() (width, height int) { return c.width, c.height }

// Locate captures the screen and searches it for target. A target that is
// not visible is reported as found=false with a nil error; err is non-nil
// only for invalid targets or when the screen cannot be captured.
func (c *Controller) Locate(target Target) (Match, bool, error) {
	const op = "locate"
	if target.Image == nil || target.Image.Bounds().Empty() {
		return Match{}, false, c.reject(invalid(op, "target %s has no image", target.label()))
	}
	threshold := target.threshold()
	if math.IsNaN(threshold) || threshold <= 0 || threshold > 1 {
		return Match{}, false, c.reject(invalid(op, "confidence %v outside (0,1]", target.Confidence))
	}
	frame, err := c.host.Capture(image.Rect(0, 0, c.width, c.height))
	if err != nil {
		return Match{}, false, c.fail(op, KindCapture, err)
	}
	res, err := capture.Detect(frame, target.Image, threshold, c.opts.Match)
	if err != nil {
		return Match{}, false, c.fail(op, KindCapture, err)
	}
	if !res.Found {
		c.log.Info("target not found", zap.String("target", target.label()), zap.Float64("best_score", res.Score), zap.Float64("confidence", threshold))
		return Match{}, false, nil
	}
	m := Match{Rect: res.Rect(), Score: res.Score, Scale: res.Scale}
	c.log.Info("target found", zap.String("target", target.label()), zap.Stringer("rect", m.Rect), zap.Stringer("center", m.Center()), zap.Float64("score", res.Score))
	return m, true, nil
}

// MoveAndClick glides the pointer to (x, y) over duration and clicks the
// primary button there.
func (c *Controller) MoveAndClick(x, y int, duration time.Duration) error {
	const op = "move-and-click"
	if duration < 0 {
		return c.reject(invalid(op, "negative duration %v", duration))
	}
	p, err := c.resolve(op, Point{x, y})
	if err != nil {
		return c.reject(err)
	}
	if err := c.moveTo(op, p, duration); err != nil {
		return err
	}
	if err := c.host.MouseDown(); err != nil {
		return c.fail(op, KindInput, fmt.Errorf("press at %s: %w", p, err))
	}
	if err := c.host.MouseUp(); err != nil {
		return c.fail(op, KindInput, fmt.Errorf("release at %s: %w", p, err))
	}
	c.log.Info("clicked", zap.Int("x", p.X), zap.Int("y", p.Y))
	c.pause()
	return nil
}

// DragTo moves to the start over half the duration, presses the primary
// button, moves to the end over the other half and releases. If a step after
// the press fails the button may be left pressed on the host.
func (c *Controller) DragTo(startX, startY, endX, endY int, duration time.Duration) error {
	const op = "drag"
	if duration < 0 {
		return c.reject(invalid(op, "negative duration %v", duration))
	}
	start, err := c.resolve(op, Point{startX, startY})
	if err != nil {
		return c.reject(err)
	}
	end, err := c.resolve(op, Point{endX, endY})
	if err != nil {
		return c.reject(err)
	}
	half := duration / 2
	if err := c.moveTo(op, start, half); err != nil {
		return err
	}
	if err := c.host.MouseDown(); err != nil {
		return c.fail(op, KindInput, fmt.Errorf("press at %s: %w", start, err))
	}
	if err := c.moveTo(op, end, duration-half); err != nil {
		c.log.Warn("drag interrupted with button held", zap.Stringer("from", start), zap.Stringer("to", end))
		return err
	}
	if err := c.host.MouseUp(); err != nil {
		c.log.Warn("drag release failed, button may remain pressed", zap.Stringer("at", end))
		return c.fail(op, KindInput, fmt.Errorf("release at %s: %w", end, err))
	}
	c.log.Info("dragged", zap.Stringer("from", start), zap.Stringer("to", end))
	c.pause()
	return nil
}

// TypeText emits one keystroke per rune of text, waiting interval between
// consecutive keystrokes. An empty text succeeds without touching the host.
func (c *Controller) TypeText(text string, interval time.Duration) error {
	const op = "type"
	if interval < 0 {
		return c.reject(invalid(op, "negative interval %v", interval))
	}
	if text == "" {
		return nil
	}
	n := 0
	for _, r := range text {
		if n > 0 {
			c.clock.Sleep(interval)
		}
		if err := c.host.TypeRune(r); err != nil {
			return c.fail(op, KindInput, fmt.Errorf("keystroke %d (%q): %w", n, r, err))
		}
		n++
	}
	c.log.Info("typed text", zap.Int("runes", n))
	c.pause()
	return nil
}

// CaptureScreen saves the full screen, or region when non-nil, as
// screenshot_<YYYYMMDD-HHMMSS>.png in the artifact directory and returns the
// file path. The region must be non-empty and lie inside the screen. Two
// captures within the same second overwrite each other.
func (c *Controller) CaptureScreen(region *image.Rectangle) (string, error) {
	const op = "capture"
	screen := image.Rect(0, 0, c.width, c.height)
	rect := screen
	if region != nil {
		if region.Empty() || !region.In(screen) {
			return "", c.reject(invalid(op, "region %v outside screen %v", *region, screen))
		}
		rect = *region
	}
	img, err := c.host.Capture(rect)
	if err != nil {
		return "", c.fail(op, KindCapture, err)
	}
	name := "screenshot_" + c.clock.Now().Format("20060102-150405") + ".png"
	path := filepath.Join(c.opts.ArtifactDir, name)
	if err := imaging.Save(img, path); err != nil {
		return "", c.fail(op, KindCapture, fmt.Errorf("save %s: %w", path, err))
	}
	c.log.Info("screenshot saved", zap.String("path", path), zap.Stringer("region", rect))
	return path, nil
}

// resolve applies the bounds policy to p.
func (c *Controller) resolve(op string, p Point) (Point, error) {
	if p.In(c.width, c.height) {
		return p, nil
	}
	if c.opts.Bounds == BoundsClamp {
		q := Point{X: min(max(p.X, 0), c.width-1), Y: min(max(p.Y, 0), c.height-1)}
		c.log.Debug("clamped coordinate", zap.String("op", op), zap.Stringer("from", p), zap.Stringer("to", q))
		return q, nil
	}
	return p, invalid(op, "coordinate %s outside %dx%d screen", p, c.width, c.height)
}

// moveTo interpolates the pointer from its current position to p over d.
// The final step always lands exactly on p.
func (c *Controller) moveTo(op string, p Point, d time.Duration) error {
	if d < c.opts.MinimumDuration {
		if err := c.host.MoveCursor(p.X, p.Y); err != nil {
			return c.fail(op, KindInput, fmt.Errorf("move to %s: %w", p, err))
		}
		return nil
	}
	sx, sy, err := c.host.CursorPos()
	if err != nil {
		return c.fail(op, KindInput, fmt.Errorf("read pointer: %w", err))
	}
	steps := max(int(d.Seconds()*float64(c.opts.StepsPerSecond)), 1)
	interval := d / time.Duration(steps)
	for i := 1; i <= steps; i++ {
		c.clock.Sleep(interval)
		q := p
		if i < steps {
			t := c.opts.Tween(float64(i) / float64(steps))
			q = Point{
				X: sx + int(math.Round(float64(p.X-sx)*t)),
				Y: sy + int(math.Round(float64(p.Y-sy)*t)),
			}
		}
		if err := c.host.MoveCursor(q.X, q.Y); err != nil {
			return c.fail(op, KindInput, fmt.Errorf("move to %s (step %d/%d): %w", q, i, steps, err))
		}
	}
	return nil
}

func (c *Controller) pause() { c.clock.Sleep(c.opts.Pause) }

// fail wraps a host error and logs it.
func (c *Controller) fail(op string, kind Kind, err error) error {
	ae := &Error{Op: op, Kind: kind, Err: err}
	c.log.Error("action failed", zap.String("op", op), zap.Stringer("kind", kind), zap.Error(err))
	return ae
}

// reject logs an argument error before returning it unchanged.
func (c *Controller) reject(err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		c.log.Warn("invalid argument", zap.String("op", ae.Op), zap.Error(ae.Err))
	}
	return err
}
