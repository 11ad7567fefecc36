package entities

// Personality is the static temperament of an entity. All fields are in
// [0, 1] except EnergyEfficiency, which is a multiplier around 1.
type Personality struct {
	SocialPreference    float64 `json:"social_preference"`
	ActivityPersistence float64 `json:"activity_persistence"`
	RiskTolerance       float64 `json:"risk_tolerance"`
	EnergyEfficiency    float64 `json:"energy_efficiency"`
}

var personalities = map[ID]Personality{
	// Sol: outgoing, restless, burns energy quickly.
	Sol: {SocialPreference: 0.8, ActivityPersistence: 0.35, RiskTolerance: 0.65, EnergyEfficiency: 0.9},
	// Luna: reserved, steady, frugal with energy.
	Luna: {SocialPreference: 0.45, ActivityPersistence: 0.7, RiskTolerance: 0.3, EnergyEfficiency: 1.15},
}

// PersonalityOf returns the fixed profile of id. Unknown ids get a neutral
// profile.
func PersonalityOf(id ID) Personality {
	if p, ok := personalities[id]; ok {
		return p
	}
	return Personality{SocialPreference: 0.5, ActivityPersistence: 0.5, RiskTolerance: 0.5, EnergyEfficiency: 1}
}
