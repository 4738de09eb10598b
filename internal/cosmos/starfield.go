// Package cosmos simulates the decorative background: a drifting, twinkling
// starfield and a set of slowly floating particles. It only computes state;
// drawing is left to whoever consumes the frames.
package cosmos

import (
	"math"
	"math/rand/v2"
)

const (
	// PixelsPerStar sets the star density: one star per this many square pixels.
	PixelsPerStar = 3000
	// FrameStep is the simulated time added per frame.
	FrameStep = 0.016

	driftFactor = 0.15
	wrapMargin  = 10
)

// Star is one point of the starfield.
type Star struct {
	X, Y         float64
	Size         float64
	Speed        float64
	Opacity      float64
	TwinkleSpeed float64
}

// Field is the starfield over a W x H surface.
type Field struct {
	W, H  float64
	Time  float64
	Stars []Star

	rng *rand.Rand
}

// NewField creates a field sized w x h. A nil rng uses a randomly seeded one.
func NewField(w, h float64, rng *rand.Rand) *Field {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	f := &Field{rng: rng}
	f.Resize(w, h)
	return f
}

// StarCount is the number of stars for a w x h surface.
func StarCount(w, h float64) int {
	if w <= 0 || h <= 0 {
		return 0
	}
	return int(math.Floor(w * h / PixelsPerStar))
}

// Resize discards every star and scatters a fresh set over the new surface.
func (f *Field) Resize(w, h float64) {
	f.W, f.H = w, h
	n := StarCount(w, h)
	f.Stars = make([]Star, n)
	for i := range f.Stars {
		f.Stars[i] = Star{
			X:            f.rng.Float64() * w,
			Y:            f.rng.Float64() * h,
			Size:         f.rng.Float64()*2.5 + 0.5,
			Speed:        f.rng.Float64()*0.3 + 0.05,
			Opacity:      f.rng.Float64()*0.8 + 0.2,
			TwinkleSpeed: f.rng.Float64()*0.02 + 0.005,
		}
	}
}

// Step advances the field by one frame. Stars drift upward and re-enter
// from below at a random x once they leave the top edge.
func (f *Field) Step() {
	f.Time += FrameStep
	for i := range f.Stars {
		s := &f.Stars[i]
		s.Y -= s.Speed * driftFactor
		if s.Y < -wrapMargin {
			s.Y = f.H + wrapMargin
			s.X = f.rng.Float64() * f.W
		}
	}
}

// Twinkle is the brightness multiplier of s at the field's current time, in
// [0.4, 1].
func (f *Field) Twinkle(s Star) float64 {
	return math.Sin(f.Time*s.TwinkleSpeed*60+s.X)*0.3 + 0.7
}

// Brightness is the opacity s is drawn with right now.
func (f *Field) Brightness(s Star) float64 {
	return s.Opacity * f.Twinkle(s)
}
