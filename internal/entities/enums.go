// Mood, activity and state enums. Each has a canonical upper-case name used
// on every external boundary (JSON, YAML, journal rows); unknown names are
// rejected by the Parse functions and by UnmarshalText.

package entities

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidEntity   = errors.New("invalid entity id")
	ErrInvalidMood     = errors.New("invalid mood")
	ErrInvalidActivity = errors.New("invalid activity")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidZoneType = errors.New("invalid zone type")
	ErrInvalidStat     = errors.New("invalid stat")
)

// Mood is the discrete emotional state of an entity.
type Mood uint8

const (
	MoodHappy Mood = iota
	MoodExcited
	MoodContent
	MoodCalm
	MoodTired
	MoodSad
	MoodAnxious
)

// NumMoods is the number of Mood values.
const NumMoods = 7

var moodNames = [NumMoods]string{"HAPPY", "EXCITED", "CONTENT", "CALM", "TIRED", "SAD", "ANXIOUS"}

func (m Mood) String() string {
	if int(m) < NumMoods {
		return moodNames[m]
	}
	return fmt.Sprintf("Mood(%d)", uint8(m))
}

// Valid reports whether m is one of the seven moods.
func (m Mood) Valid() bool { return int(m) < NumMoods }

// ParseMood converts a canonical mood name.
func ParseMood(s string) (Mood, error) {
	for i, n := range moodNames {
		if n == s {
			return Mood(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMood, s)
}

func (m Mood) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMood, uint8(m))
	}
	return []byte(m.String()), nil
}

func (m *Mood) UnmarshalText(b []byte) error {
	v, err := ParseMood(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Activity is what an entity is currently doing.
type Activity uint8

const (
	ActivityIdle Activity = iota
	ActivityWandering
	ActivityEating
	ActivityCooking
	ActivityShopping
	ActivitySleeping
	ActivityResting
	ActivityWorking
	ActivityExercising
	ActivityPlaying
	ActivitySocializing
	ActivityReading
	ActivityMeditating
)

// NumActivities is the number of Activity values.
const NumActivities = 13

var activityNames = [NumActivities]string{
	"IDLE", "WANDERING", "EATING", "COOKING", "SHOPPING", "SLEEPING", "RESTING",
	"WORKING", "EXERCISING", "PLAYING", "SOCIALIZING", "READING", "MEDITATING",
}

func (a Activity) String() string {
	if int(a) < NumActivities {
		return activityNames[a]
	}
	return fmt.Sprintf("Activity(%d)", uint8(a))
}

// Valid reports whether a is one of the thirteen activities.
func (a Activity) Valid() bool { return int(a) < NumActivities }

// ParseActivity converts a canonical activity name.
func ParseActivity(s string) (Activity, error) {
	for i, n := range activityNames {
		if n == s {
			return Activity(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidActivity, s)
}

func (a Activity) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidActivity, uint8(a))
	}
	return []byte(a.String()), nil
}

func (a *Activity) UnmarshalText(b []byte) error {
	v, err := ParseActivity(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// IsSocial reports whether the activity needs a living companion.
func (a Activity) IsSocial() bool { return a == ActivitySocializing }

// IsRestful reports whether the activity conserves energy.
func (a Activity) IsRestful() bool {
	return a == ActivitySleeping || a == ActivityResting || a == ActivityMeditating
}

// IsRisky reports whether the activity is an energetic or uncertain outing.
func (a Activity) IsRisky() bool {
	switch a {
	case ActivityPlaying, ActivityExercising, ActivityWandering, ActivityShopping:
		return true
	}
	return false
}

// State is the life-cycle / behavioural state of an entity.
type State uint8

const (
	StateIdle State = iota
	StateSeeking
	StateLowResonance
	StateFading
	StateDead
	StateSleeping
	StateEating
	StatePlaying
)

// NumStates is the number of State values.
const NumStates = 8

var stateNames = [NumStates]string{
	"IDLE", "SEEKING", "LOW_RESONANCE", "FADING", "DEAD", "SLEEPING", "EATING", "PLAYING",
}

func (s State) String() string {
	if int(s) < NumStates {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Valid reports whether s is one of the eight states.
func (s State) Valid() bool { return int(s) < NumStates }

// ParseState converts a canonical state name.
func ParseState(str string) (State, error) {
	for i, n := range stateNames {
		if n == str {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidState, str)
}

func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidState, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// IsHealthState reports whether s is owned by the health state machine
// rather than derived from the current activity.
func (s State) IsHealthState() bool {
	return s == StateLowResonance || s == StateFading || s == StateDead
}

// BehaviourState maps an activity onto the state shown while healthy.
func BehaviourState(a Activity) State {
	switch a {
	case ActivitySleeping:
		return StateSleeping
	case ActivityEating, ActivityCooking:
		return StateEating
	case ActivityPlaying:
		return StatePlaying
	case ActivityShopping, ActivityWandering:
		return StateSeeking
	default:
		return StateIdle
	}
}
