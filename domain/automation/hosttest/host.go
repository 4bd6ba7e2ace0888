// Package hosttest provides an in-memory automation.Host and a manual clock
// for exercising the controller without a display.
package hosttest

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"
)

// EventKind names a primitive recorded by Host.
type EventKind string

const (
	Move  EventKind = "move"
	Down  EventKind = "down"
	Up    EventKind = "up"
	Key   EventKind = "key"
	Grab  EventKind = "capture"
	Query EventKind = "cursor"
)

// Event is one primitive delivered to the fake host. At is the fake clock
// time when the host saw it, if a clock was attached. Seq numbers events in
// delivery order starting at 1; events sharing an At are still ordered by Seq.
type Event struct {
	Kind EventKind
	X, Y int
	Rune rune
	At   time.Time
	Seq  int
}

// Host is a scripted automation.Host backed by an RGBA screen buffer.
// Hook functions, when set, run before the primitive and can fail it.
type Host struct {
	mu      sync.Mutex
	screen  *image.RGBA
	x, y    int
	pressed bool
	events  []Event
	seq     int
	clock   *Clock

	SizeErr    error
	OnMove     func(x, y int) error
	OnDown     func() error
	OnUp       func() error
	OnKey      func(r rune) error
	OnCapture  func(r image.Rectangle) error
	OnPosition func() error
}

// NewHost returns a w x h host with an all-white screen and the pointer at
// the center.
func NewHost(w, h int) *Host {
	s := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(s, s.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return &Host{screen: s, x: w / 2, y: h / 2}
}

// WithClock stamps recorded events with c.
func (h *Host) WithClock(c *Clock) *Host {
	h.clock = c
	return h
}

// Paste draws img onto the screen with its top-left corner at at.
func (h *Host) Paste(img image.Image, at image.Point) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := img.Bounds()
	draw.Draw(h.screen, image.Rectangle{Min: at, Max: at.Add(b.Size())}, img, b.Min, draw.Over)
}

// Fill paints r with c.
func (h *Host) Fill(r image.Rectangle, c color.Color) {
	h.mu.Lock()
	defer h.mu.Unlock()
	draw.Draw(h.screen, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// SetCursor places the pointer without recording an event.
func (h *Host) SetCursor(x, y int) {
	h.mu.Lock()
	h.x, h.y = x, y
	h.mu.Unlock()
}

func (h *Host) ScreenSize() (int, int, error) {
	if h.SizeErr != nil {
		return 0, 0, h.SizeErr
	}
	b := h.screen.Bounds()
	return b.Dx(), b.Dy(), nil
}

func (h *Host) CursorPos() (int, int, error) {
	if h.OnPosition != nil {
		if err := h.OnPosition(); err != nil {
			return 0, 0, err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Event{Kind: Query, X: h.x, Y: h.y})
	return h.x, h.y, nil
}

func (h *Host) MoveCursor(x, y int) error {
	if h.OnMove != nil {
		if err := h.OnMove(x, y); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !(image.Point{x, y}).In(h.screen.Bounds()) {
		return fmt.Errorf("hosttest: move to (%d,%d) off screen", x, y)
	}
	h.x, h.y = x, y
	h.record(Event{Kind: Move, X: x, Y: y})
	return nil
}

func (h *Host) MouseDown() error {
	if h.OnDown != nil {
		if err := h.OnDown(); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pressed = true
	h.record(Event{Kind: Down, X: h.x, Y: h.y})
	return nil
}

func (h *Host) MouseUp() error {
	if h.OnUp != nil {
		if err := h.OnUp(); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pressed = false
	h.record(Event{Kind: Up, X: h.x, Y: h.y})
	return nil
}

func (h *Host) TypeRune(r rune) error {
	if h.OnKey != nil {
		if err := h.OnKey(r); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(Event{Kind: Key, Rune: r, X: h.x, Y: h.y})
	return nil
}

// ErrRegion is returned by Capture for rectangles outside the screen.
var ErrRegion = errors.New("hosttest: capture region outside screen")

func (h *Host) Capture(r image.Rectangle) (*image.RGBA, error) {
	if h.OnCapture != nil {
		if err := h.OnCapture(r); err != nil {
			return nil, err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.Empty() || !r.In(h.screen.Bounds()) {
		return nil, ErrRegion
	}
	out := image.NewRGBA(r)
	draw.Draw(out, r, h.screen, r.Min, draw.Src)
	h.record(Event{Kind: Grab, X: r.Min.X, Y: r.Min.Y})
	return out, nil
}

func (h *Host) record(e Event) {
	if h.clock != nil {
		e.At = h.clock.Now()
	}
	h.seq++
	e.Seq = h.seq
	h.events = append(h.events, e)
}

// Events returns a copy of everything recorded so far.
func (h *Host) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.events...)
}

// EventsOf returns the recorded events of kind k.
func (h *Host) EventsOf(k EventKind) []Event {
	var out []Event
	for _, e := range h.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Input returns the recorded events excluding captures and pointer queries.
func (h *Host) Input() []Event {
	var out []Event
	for _, e := range h.Events() {
		if e.Kind != Grab && e.Kind != Query {
			out = append(out, e)
		}
	}
	return out
}

// Typed concatenates every rune delivered through TypeRune.
func (h *Host) Typed() string {
	var rs []rune
	for _, e := range h.EventsOf(Key) {
		rs = append(rs, e.Rune)
	}
	return string(rs)
}

// Cursor returns the current pointer position.
func (h *Host) Cursor() image.Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	return image.Pt(h.x, h.y)
}

// Pressed reports whether the primary button is held.
func (h *Host) Pressed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pressed
}

// Reset clears recorded events.
func (h *Host) Reset() {
	h.mu.Lock()
	h.events = nil
	h.mu.Unlock()
}

// Clock is a manual clock: Sleep advances Now instantly and records the
// requested duration.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewClock starts a clock at start.
func NewClock(start time.Time) *Clock { return &Clock{now: start} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
}

// Sleeps returns every duration passed to Sleep.
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Slept is the sum of positive sleeps.
func (c *Clock) Slept() time.Duration {
	var total time.Duration
	for _, d := range c.Sleeps() {
		if d > 0 {
			total += d
		}
	}
	return total
}
