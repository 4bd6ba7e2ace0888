package automation

import (
	"fmt"
	"image"
	"math"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// DefaultConfidence is used when a Target leaves Confidence at zero.
const DefaultConfidence = 0.9

// Point is a screen coordinate in physical pixels.
type Point struct {
	X, Y int
}

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// In reports whether p lies inside a width x height screen.
func (p Point) In(width, height int) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < width && p.Y < height
}

// Target is a reference image to search for on screen and the minimum
// normalized correlation a window must reach to count as a match.
type Target struct {
	Name       string
	Image      image.Image
	Confidence float64
}

// LoadTarget decodes the reference image at path.
func LoadTarget(path string, confidence float64) (Target, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return Target{}, fmt.Errorf("automation: load target %s: %w", path, err)
	}
	return Target{Name: filepath.Base(path), Image: img, Confidence: confidence}, nil
}

func (t Target) threshold() float64 {
	if t.Confidence == 0 {
		return DefaultConfidence
	}
	return t.Confidence
}

func (t Target) label() string {
	if t.Name != "" {
		return t.Name
	}
	return "target"
}

// Match is the screen rectangle where a target was found.
type Match struct {
	Rect  image.Rectangle
	Score float64
	Scale float64
}

// Center returns the point used for interaction with the match.
func (m Match) Center() Point {
	return Point{X: m.Rect.Min.X + m.Rect.Dx()/2, Y: m.Rect.Min.Y + m.Rect.Dy()/2}
}

// BoundsPolicy decides what happens to pointer coordinates outside the screen.
type BoundsPolicy int

const (
	boundsUnset BoundsPolicy = iota
	// BoundsReject fails the action with KindInvalidArgument.
	BoundsReject
	// BoundsClamp moves the coordinate to the nearest on-screen pixel.
	BoundsClamp
)

func (b BoundsPolicy) String() string {
	switch b {
	case BoundsReject:
		return "reject"
	case BoundsClamp:
		return "clamp"
	default:
		return "unset"
	}
}

// ParseBoundsPolicy maps "reject" or "clamp" to a BoundsPolicy.
func ParseBoundsPolicy(s string) (BoundsPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reject":
		return BoundsReject, nil
	case "clamp":
		return BoundsClamp, nil
	}
	return boundsUnset, fmt.Errorf("automation: unknown bounds policy %q", s)
}

// Tween maps linear progress t in [0,1] to eased progress in [0,1].
type Tween func(t float64) float64

// Linear is constant pointer velocity.
func Linear(t float64) float64 { return t }

// EaseInOutCubic accelerates then decelerates like a hand-driven pointer.
func EaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// TweenByName returns the tween for "linear" (or empty) and "ease-in-out".
func TweenByName(name string) (Tween, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "linear":
		return Linear, nil
	case "ease-in-out":
		return EaseInOutCubic, nil
	}
	return nil, fmt.Errorf("automation: unknown tween %q", name)
}
