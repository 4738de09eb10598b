package cosmos

import (
	"math"
	"math/rand/v2"
	"time"
)

// ParticleCount is how many particles float over the page.
const ParticleCount = 30

// Color is a particle tint.
type Color string

const (
	Cyan   Color = "cyan"
	Purple Color = "purple"
)

// RGB returns the tint as an r, g, b triple.
func (c Color) RGB() (r, g, b uint8) {
	if c == Purple {
		return 168, 85, 247
	}
	return 0, 212, 255
}

// Particle is one floating dot. X and Y are percentages of the surface.
type Particle struct {
	ID       int
	X, Y     float64
	Delay    time.Duration
	Duration time.Duration
	Size     float64
	Color    Color
}

// Pose is where a particle is drawn at one instant, relative to its anchor.
type Pose struct {
	DX, DY  float64
	Opacity float64
	Scale   float64
}

// Keyframes of the float cycle, evenly spaced over one duration.
var (
	keysY       = [3]float64{-30, 30, -30}
	keysX       = [3]float64{-20, 20, -20}
	keysOpacity = [3]float64{0.2, 0.9, 0.2}
	keysScale   = [3]float64{0.8, 1.3, 0.8}
)

// NewParticles scatters n particles. A nil rng uses a randomly seeded one.
func NewParticles(n int, rng *rand.Rand) []Particle {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	ps := make([]Particle, n)
	for i := range ps {
		c := Purple
		if rng.Float64() > 0.5 {
			c = Cyan
		}
		ps[i] = Particle{
			ID:       i,
			X:        rng.Float64() * 100,
			Y:        rng.Float64() * 100,
			Delay:    seconds(rng.Float64() * 8),
			Duration: seconds(10 + rng.Float64()*8),
			Size:     3 + rng.Float64()*6,
			Color:    c,
		}
	}
	return ps
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Sample returns the particle's pose elapsed after the animation started.
// It holds the first keyframe during the delay and repeats forever after.
func (p Particle) Sample(elapsed time.Duration) Pose {
	if elapsed < p.Delay || p.Duration <= 0 {
		return Pose{DX: keysX[0], DY: keysY[0], Opacity: keysOpacity[0], Scale: keysScale[0]}
	}
	phase := math.Mod(float64(elapsed-p.Delay), float64(p.Duration)) / float64(p.Duration)

	seg, local := 0, phase*2
	if phase >= 0.5 {
		seg, local = 1, (phase-0.5)*2
	}
	e := EaseInOut(local)
	return Pose{
		DX:      lerp(keysX[seg], keysX[seg+1], e),
		DY:      lerp(keysY[seg], keysY[seg+1], e),
		Opacity: lerp(keysOpacity[seg], keysOpacity[seg+1], e),
		Scale:   lerp(keysScale[seg], keysScale[seg+1], e),
	}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

// EaseInOut is the cubic-bezier(0.42, 0, 0.58, 1) timing curve.
func EaseInOut(t float64) float64 {
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	}
	// Solve bezierX(u) = t by bisection; x is monotonic in u.
	lo, hi := 0.0, 1.0
	u := t
	for range 32 {
		x := bezier(u, 0.42, 0.58)
		if math.Abs(x-t) < 1e-7 {
			break
		}
		if x < t {
			lo = u
		} else {
			hi = u
		}
		u = (lo + hi) / 2
	}
	return bezier(u, 0, 1)
}

// bezier evaluates a cubic bezier with endpoints 0 and 1 and control points p1, p2.
func bezier(u, p1, p2 float64) float64 {
	v := 1 - u
	return 3*v*v*u*p1 + 3*v*u*u*p2 + u*u*u
}
