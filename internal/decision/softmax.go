package decision

import (
	"math"

	"github.com/talgya/twinsim/internal/entities"
	"github.com/talgya/twinsim/internal/entropy"
)

// minTemperature is where sampling degenerates to argmax.
const minTemperature = 1e-9

// Softmax samples a candidate with probability proportional to
// exp((score - max) / tau).
func Softmax(sc *Scores, tau float64, src entropy.Source) entities.Activity {
	if !entities.Finite(tau) || tau <= minTemperature {
		return sc.Best()
	}

	best := sc.Best()
	top := sc.Value[best]

	var weights [entities.NumActivities]float64
	total := 0.0
	for i, ok := range sc.Candidate {
		if !ok {
			continue
		}
		weights[i] = math.Exp((sc.Value[i] - top) / tau)
		total += weights[i]
	}
	if total <= 0 || !entities.Finite(total) {
		return best
	}

	r := src.Float64() * total
	last := best
	for i, ok := range sc.Candidate {
		if !ok {
			continue
		}
		last = entities.Activity(i)
		r -= weights[i]
		if r < 0 {
			return last
		}
	}
	return last
}
