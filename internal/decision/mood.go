package decision

import "github.com/talgya/twinsim/internal/entities"

// MoodModifier biases activity selection for one mood.
type MoodModifier struct {
	ActivityChange     float64 `json:"activity_change"`     // scales the commit probability
	SocialSeek         float64 `json:"social_seek"`         // social activities
	RiskTaking         float64 `json:"risk_taking"`         // risky activities
	EnergyConservation float64 `json:"energy_conservation"` // restful activities
}

var moodModifiers = [entities.NumMoods]MoodModifier{
	entities.MoodHappy:   {ActivityChange: 1.0, SocialSeek: 1.2, RiskTaking: 1.1, EnergyConservation: 0.9},
	entities.MoodExcited: {ActivityChange: 1.4, SocialSeek: 1.3, RiskTaking: 1.4, EnergyConservation: 0.7},
	entities.MoodContent: {ActivityChange: 0.8, SocialSeek: 1.0, RiskTaking: 1.0, EnergyConservation: 1.0},
	entities.MoodCalm:    {ActivityChange: 0.6, SocialSeek: 0.9, RiskTaking: 0.8, EnergyConservation: 1.1},
	entities.MoodTired:   {ActivityChange: 0.7, SocialSeek: 0.7, RiskTaking: 0.6, EnergyConservation: 1.5},
	entities.MoodSad:     {ActivityChange: 0.9, SocialSeek: 1.4, RiskTaking: 0.7, EnergyConservation: 1.2},
	entities.MoodAnxious: {ActivityChange: 1.2, SocialSeek: 0.8, RiskTaking: 0.5, EnergyConservation: 1.1},
}

// ModifierFor returns the modifier row for m. Unknown moods get CONTENT.
func ModifierFor(m entities.Mood) MoodModifier {
	if !m.Valid() {
		return moodModifiers[entities.MoodContent]
	}
	return moodModifiers[m]
}

// Apply scales score for activity a.
func (m MoodModifier) Apply(a entities.Activity, score float64) float64 {
	switch {
	case a.IsSocial():
		return score * m.SocialSeek
	case a.IsRestful():
		return score * m.EnergyConservation
	case a.IsRisky():
		return score * m.RiskTaking
	}
	return score
}

// EvaluateMood derives a mood from stats. The first matching rule wins:
// any critical need makes an entity anxious, then low energy or rest makes
// it tired, low happiness or company makes it sad, and high spirits make
// it excited or happy. Non-finite fields never match.
func EvaluateMood(s entities.Stats) entities.Mood {
	switch {
	case s.IsCritical():
		return entities.MoodAnxious
	case s.Energy < 25 || s.Sleepiness < 25:
		return entities.MoodTired
	case s.Happiness < 30 || s.Loneliness < 25:
		return entities.MoodSad
	case s.Happiness >= 80 && s.Energy >= 70:
		return entities.MoodExcited
	case s.Happiness >= 60:
		return entities.MoodHappy
	case s.Boredom >= 60 && s.Energy < 70:
		return entities.MoodCalm
	}
	return entities.MoodContent
}
