// Package vitality tracks a single player's health and incapacitation.
package vitality

import "math"

type Vitality struct {
	max    float64
	health float64
}

func New(max float64) *Vitality {
	if max <= 0 {
		max = 100
	}
	return &Vitality{max: max, health: max}
}

func (v *Vitality) Health() float64     { return v.health }
func (v *Vitality) Max() float64        { return v.max }
func (v *Vitality) Incapacitated() bool { return v.health <= 0 }

// TakeDamage reports whether this hit incapacitated the player.
func (v *Vitality) TakeDamage(amount float64) bool {
	if v.Incapacitated() {
		return false
	}
	if amount <= 0 || math.IsNaN(amount) {
		return false
	}
	v.health = math.Max(0, v.health-amount)
	return v.health <= 0
}

// ReviveImmediate restores fraction of max health. Only an incapacitated
// player can be revived; it reports whether the revive happened.
func (v *Vitality) ReviveImmediate(fraction float64) bool {
	if !v.Incapacitated() {
		return false
	}
	if fraction <= 0 || fraction > 1 {
		fraction = 0.5
	}
	v.health = v.max * fraction
	return true
}

func (v *Vitality) FullHeal() { v.health = v.max }

// Set restores a stored health value, clamped to [0, max].
func (v *Vitality) Set(health float64) {
	v.health = math.Max(0, math.Min(v.max, health))
}
