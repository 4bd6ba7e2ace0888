package automation

import (
	"image"
	"time"
)

// Host is the capability surface of the operating system's input and
// capture API. Pointer buttons are always the primary button.
//
// Implementations are not required to be safe for concurrent use: the
// pointer and keyboard are a single process-wide resource owned by whoever
// holds the Host.
type Host interface {
	ScreenSize() (width, height int, err error)
	CursorPos() (x, y int, err error)
	MoveCursor(x, y int) error
	MouseDown() error
	MouseUp() error
	// TypeRune emits one keystroke (press and release) producing r.
	TypeRune(r rune) error
	// Capture returns the pixels inside r, with bounds starting at r.Min.
	Capture(r image.Rectangle) (*image.RGBA, error)
}

// Clock supplies time to the controller so pacing can be observed in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
