// Package action drives the real pointer, keyboard and screen of the
// machine the process runs on.
package action

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/vova616/screenshot"
	"go.uber.org/zap"

	"github.com/soocke/pixel-auto/domain/automation"
)

var (
	// ErrDesktopInUse is returned by OpenDesktop while another handle is open.
	ErrDesktopInUse = errors.New("action: desktop already open")
	// ErrFailSafe aborts input while the pointer rests in the top-left corner.
	ErrFailSafe = errors.New("action: fail-safe triggered, pointer at (0,0)")
	// ErrUnsupportedRune is returned when a rune cannot be produced by the keyboard backend.
	ErrUnsupportedRune = errors.New("action: rune cannot be typed")
	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("action: desktop closed")
)

// claimed guards the process-wide pointer and keyboard.
var claimed atomic.Bool

// driver is the per-platform input layer.
type driver interface {
	screenSize() (int, int, error)
	cursorPos() (int, int, error)
	moveCursor(x, y int) error
	button(down bool) error
	typeRune(r rune) error
	close() error
}

type grabber func(image.Rectangle) (*image.RGBA, error)

// DesktopOptions configures the real backend.
type DesktopOptions struct {
	// FailSafe refuses every input primitive while the pointer sits at (0,0).
	FailSafe bool
}

// Desktop is the handle on the machine's pointer, keyboard and screen. Only
// one may be open per process. It implements automation.Host.
type Desktop struct {
	drv    driver
	grab   grabber
	opts   DesktopOptions
	log    *zap.Logger
	closed atomic.Bool
}

var _ automation.Host = (*Desktop)(nil)

// OpenDesktop claims the pointer and keyboard. Errors opening the platform
// input API wrap automation.ErrNoDisplay.
func OpenDesktop(opts DesktopOptions, logger *zap.Logger) (*Desktop, error) {
	return open(opts, logger, newDriver, screenshot.CaptureRect)
}

func open(opts DesktopOptions, logger *zap.Logger, mk func() (driver, error), grab grabber) (*Desktop, error) {
	if !claimed.CompareAndSwap(false, true) {
		return nil, ErrDesktopInUse
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	drv, err := mk()
	if err != nil {
		claimed.Store(false)
		return nil, fmt.Errorf("%w: %w", automation.ErrNoDisplay, err)
	}
	d := &Desktop{drv: drv, grab: grab, opts: opts, log: logger.Named("desktop")}
	d.log.Debug("desktop opened", zap.Bool("fail_safe", opts.FailSafe))
	return d, nil
}

// Close releases the platform connection and the process-wide claim.
// Calling it more than once is harmless.
func (d *Desktop) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := d.drv.close()
	claimed.Store(false)
	d.log.Debug("desktop closed")
	return err
}

func (d *Desktop) ScreenSize() (int, int, error) {
	if d.closed.Load() {
		return 0, 0, ErrClosed
	}
	w, h, err := d.drv.screenSize()
	if err == nil && w > 0 && h > 0 {
		return w, h, nil
	}
	r, rerr := screenshot.ScreenRect()
	if rerr != nil {
		return 0, 0, errors.Join(err, rerr)
	}
	d.log.Debug("screen size from capture backend", zap.Stringer("rect", r), zap.Error(err))
	return r.Dx(), r.Dy(), nil
}

func (d *Desktop) CursorPos() (int, int, error) {
	if d.closed.Load() {
		return 0, 0, ErrClosed
	}
	return d.drv.cursorPos()
}

func (d *Desktop) MoveCursor(x, y int) error {
	if err := d.guard(); err != nil {
		return err
	}
	return d.drv.moveCursor(x, y)
}

func (d *Desktop) MouseDown() error {
	if err := d.guard(); err != nil {
		return err
	}
	return d.drv.button(true)
}

func (d *Desktop) MouseUp() error {
	if err := d.guard(); err != nil {
		return err
	}
	return d.drv.button(false)
}

func (d *Desktop) TypeRune(r rune) error {
	if err := d.guard(); err != nil {
		return err
	}
	return d.drv.typeRune(r)
}

// Capture grabs r from the screen. The returned image is re-based so its
// bounds start at r.Min.
func (d *Desktop) Capture(r image.Rectangle) (*image.RGBA, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	img, err := d.grab(r)
	if err != nil {
		return nil, fmt.Errorf("action: capture %v: %w", r, err)
	}
	if img == nil {
		return nil, fmt.Errorf("action: capture %v: empty image", r)
	}
	img.Rect = img.Rect.Add(r.Min.Sub(img.Rect.Min))
	return img, nil
}

// guard is checked before every input primitive.
func (d *Desktop) guard() error {
	if d.closed.Load() {
		return ErrClosed
	}
	if !d.opts.FailSafe {
		return nil
	}
	x, y, err := d.drv.cursorPos()
	if err != nil {
		return fmt.Errorf("action: fail-safe check: %w", err)
	}
	if x == 0 && y == 0 {
		d.log.Warn("fail-safe triggered")
		return ErrFailSafe
	}
	return nil
}
