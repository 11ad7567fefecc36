package activity

import (
	"time"

	"github.com/talgya/twinsim/internal/entities"
)

// Session is the bookkeeping of one entity's current activity. A new
// Session replaces the old one on every activity change.
type Session struct {
	Activity          entities.Activity `json:"activity"`
	StartTime         time.Time         `json:"start_time"`
	PlannedDuration   time.Duration     `json:"planned_duration"`
	Effectiveness     float64           `json:"effectiveness"`      // 0..1
	SatisfactionLevel float64           `json:"satisfaction_level"` // EMA of effectiveness
	Interruptions     int               `json:"interruptions"`
	ImmediateApplied  bool              `json:"immediate_applied"`
}

// NewSession starts a session for a at start.
func NewSession(a entities.Activity, start time.Time, planned time.Duration) Session {
	return Session{
		Activity:          a,
		StartTime:         start,
		PlannedDuration:   planned,
		Effectiveness:     1,
		SatisfactionLevel: 0.5,
	}
}

// Elapsed returns the time spent in the session, never negative.
func (s *Session) Elapsed(now time.Time) time.Duration {
	d := now.Sub(s.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// Progress returns elapsed / planned. A session without a planned duration
// is treated as complete.
func (s *Session) Progress(now time.Time) float64 {
	if s.PlannedDuration <= 0 {
		return 1
	}
	return float64(s.Elapsed(now)) / float64(s.PlannedDuration)
}

// Record is a closed session kept for inspection.
type Record struct {
	Activity      entities.Activity `json:"activity"`
	Duration      time.Duration     `json:"duration"`
	Satisfaction  float64           `json:"satisfaction"`
	Interruptions int               `json:"interruptions"`
}

// MaxHistory bounds the closed-session history per entity.
const MaxHistory = 8

// Close turns the session into a history record.
func (s *Session) Close(now time.Time) Record {
	return Record{
		Activity:      s.Activity,
		Duration:      s.Elapsed(now),
		Satisfaction:  s.SatisfactionLevel,
		Interruptions: s.Interruptions,
	}
}

// PushHistory appends r, dropping the oldest record past MaxHistory.
func PushHistory(h []Record, r Record) []Record {
	h = append(h, r)
	if len(h) > MaxHistory {
		h = h[len(h)-MaxHistory:]
	}
	return h
}
