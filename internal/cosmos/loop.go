package cosmos

import (
	"context"
	"time"
)

// FrameInterval is the target frame period (about 60 fps).
const FrameInterval = 16 * time.Millisecond

// Frame is a snapshot handed to the renderer. It must not be retained past
// the render call.
type Frame struct {
	Field     *Field
	Particles []Particle
	Elapsed   time.Duration
}

type size struct{ w, h float64 }

// Loop drives a Field and its particles from a ticker.
type Loop struct {
	field     *Field
	particles []Particle
	interval  time.Duration
	resize    chan size
}

// NewLoop creates a loop over field and particles.
func NewLoop(field *Field, particles []Particle, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = FrameInterval
	}
	return &Loop{
		field:     field,
		particles: particles,
		interval:  interval,
		resize:    make(chan size, 1),
	}
}

// Resize asks the loop to regenerate the starfield for a new surface. Only
// the latest pending size is kept.
func (l *Loop) Resize(w, h float64) {
	for {
		select {
		case l.resize <- size{w, h}:
			return
		default:
		}
		select {
		case <-l.resize:
		default:
		}
	}
}

// Run steps the field on every tick and calls render with the new frame. It
// returns when ctx is done; the ticker is released on return.
func (l *Loop) Run(ctx context.Context, render func(Frame)) error {
	tick := time.NewTicker(l.interval)
	defer tick.Stop()

	var frames int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-l.resize:
			l.field.Resize(s.w, s.h)
		case <-tick.C:
			select {
			case s := <-l.resize:
				l.field.Resize(s.w, s.h)
			default:
			}
			l.field.Step()
			frames++
			render(Frame{
				Field:     l.field,
				Particles: l.particles,
				Elapsed:   time.Duration(frames) * l.interval,
			})
		}
	}
}
