package decision

import "github.com/talgya/twinsim/internal/entities"

// HabitMemory is a recency-weighted reward per activity.
type HabitMemory [entities.NumActivities]float64

// Reinforce decays every entry by decay and rewards the chosen activity.
func (h *HabitMemory) Reinforce(chosen entities.Activity, decay, reward float64) {
	for i := range h {
		h[i] *= decay
	}
	if chosen.Valid() {
		h[chosen] += reward
	}
}
