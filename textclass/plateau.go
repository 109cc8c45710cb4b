package textclass

import "math"

// plateauScheduler decays the learning rate once the monitored loss stops
// improving for a patience of epochs, then cools down before counting
// again.
type plateauScheduler struct {
	lr       float64
	factor   float64
	patience int
	cooldown int
	minLR    float64

	best    float64
	waiting int
	cooling int
}

func newPlateauScheduler(initial float64) *plateauScheduler {
	return &plateauScheduler{
		lr:       initial,
		factor:   0.2,
		patience: 5,
		cooldown: 1,
		minLR:    1e-10,
		best:     math.Inf(1),
	}
}

// LR returns the current learning rate.
func (s *plateauScheduler) LR() float64 { return s.lr }

// Observe feeds one epoch's monitored loss and returns the learning rate
// the next epoch should use.
func (s *plateauScheduler) Observe(loss float64) float64 {
	if s.cooling > 0 {
		s.cooling--
		s.waiting = 0
	}
	if loss < s.best {
		s.best = loss
		s.waiting = 0
	} else if s.cooling == 0 {
		s.waiting++
		if s.waiting >= s.patience {
			next := math.Max(s.lr*s.factor, s.minLR)
			if next < s.lr {
				s.lr = next
				s.cooling = s.cooldown
			}
			s.waiting = 0
		}
	}
	return s.lr
}
