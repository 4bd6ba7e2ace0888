package app

import (
	"time"

	"github.com/soocke/pixel-auto/domain/automation"
)

// DemoSquareSize is the half-width of the square walked by Demo.
const DemoSquareSize = 100

// Demo clicks the four corners of a square around the screen center, one
// second per move, then saves a full-screen capture and returns its path.
func Demo(ctl *automation.Controller) (string, error) {
	w, h := ctl.Size()
	cx, cy := w/2, h/2
	corners := []automation.Point{
		{X: cx - DemoSquareSize, Y: cy - DemoSquareSize},
		{X: cx + DemoSquareSize, Y: cy - DemoSquareSize},
		{X: cx + DemoSquareSize, Y: cy + DemoSquareSize},
		{X: cx - DemoSquareSize, Y: cy + DemoSquareSize},
	}
	for _, p := range corners {
		if err := ctl.MoveAndClick(p.X, p.Y, time.Second); err != nil {
			return "", err
		}
	}
	return ctl.CaptureScreen(nil)
}
