package tracker

// Modifier is the immutable per-tracker configuration chosen at attach time.
type Modifier struct {
	// SightTrace hides the model from viewers without line of sight.
	SightTrace bool `yaml:"sight_trace" json:"sightTrace"`
	// DamageAnimation plays the "damage" animation when the entity is hurt.
	DamageAnimation bool `yaml:"damage_animation" json:"damageAnimation"`
	// DamageTint flashes the damage tint when the entity is hurt.
	DamageTint bool `yaml:"damage_tint" json:"damageTint"`
}

// DefaultModifier traces sight and tints on damage without animating.
var DefaultModifier = Modifier{
	SightTrace:      true,
	DamageAnimation: false,
	DamageTint:      true,
}
