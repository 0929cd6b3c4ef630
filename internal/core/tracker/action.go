package tracker

import (
	"math"
	"slices"

	"github.com/zeusync/modelsync/internal/core/bone"
)

// Kind names an UpdateAction variant.
type Kind string

const (
	KindBrightness Kind = "brightness"
	KindTint       Kind = "tint"
	KindScale      Kind = "scale"
	KindGlow       Kind = "glow"
	KindTogglePart Kind = "toggle_part"
	KindComposite  Kind = "composite"
)

// UpdateAction is one atomic visual mutation applied to the bones selected
// by a predicate. The variant set is closed: Brightness, Tint, Scale, Glow,
// TogglePart and Composite. Build values with the *Action constructors,
// which coerce out-of-range input.
type UpdateAction interface {
	Kind() Kind
	updateAction()
}

// Brightness overrides block and sky light. Each component lies in
// [-1, 15]; -1 inherits the world light.
type Brightness struct {
	Block int `json:"block"`
	Sky   int `json:"sky"`
}

// BrightnessAction clamps block and sky independently.
func BrightnessAction(block, sky int) Brightness {
	b := bone.NewBrightness(block, sky)
	return Brightness{Block: b.Block, Sky: b.Sky}
}

func (Brightness) Kind() Kind    { return KindBrightness }
func (Brightness) updateAction() {}

// Tint carries a packed 0xRRGGBB color.
type Tint struct {
	Color uint32 `json:"color"`
}

func TintAction(color uint32) Tint {
	return Tint{Color: color & 0xFFFFFF}
}

func (Tint) Kind() Kind    { return KindTint }
func (Tint) updateAction() {}

// Scale sets the per-bone scale multiplier.
type Scale struct {
	Factor float64 `json:"factor"`
}

// ScaleAction maps NaN and infinities to 1 and negatives to 0.
func ScaleAction(factor float64) Scale {
	switch {
	case math.IsNaN(factor), math.IsInf(factor, 0):
		factor = 1
	case factor < 0:
		factor = 0
	}
	return Scale{Factor: factor}
}

func (Scale) Kind() Kind    { return KindScale }
func (Scale) updateAction() {}

// Glow toggles the outline glow and its color.
type Glow struct {
	Enabled bool   `json:"enabled"`
	Color   uint32 `json:"color"`
}

func GlowAction(enabled bool, color uint32) Glow {
	return Glow{Enabled: enabled, Color: color & 0xFFFFFF}
}

func (Glow) Kind() Kind    { return KindGlow }
func (Glow) updateAction() {}

// TogglePart shows or hides bones.
type TogglePart struct {
	Visible bool `json:"visible"`
}

func TogglePartAction(visible bool) TogglePart {
	return TogglePart{Visible: visible}
}

func (TogglePart) Kind() Kind    { return KindTogglePart }
func (TogglePart) updateAction() {}

// Composite applies its actions in order within a single pass.
type Composite struct {
	Actions []UpdateAction `json:"actions"`
}

// CompositeAction drops nil entries and copies the slice.
func CompositeAction(actions ...UpdateAction) Composite {
	out := slices.DeleteFunc(slices.Clone(actions), func(a UpdateAction) bool { return a == nil })
	return Composite{Actions: out}
}

func (Composite) Kind() Kind    { return KindComposite }
func (Composite) updateAction() {}

// applyAction mutates one bone. It never fails for a well-formed action.
func applyAction(b *bone.Bone, action UpdateAction) {
	switch a := action.(type) {
	case Brightness:
		b.Mutate(func(s *bone.State) { s.Brightness = bone.NewBrightness(a.Block, a.Sky) })
	case Tint:
		b.Mutate(func(s *bone.State) { s.Tint = a.Color & 0xFFFFFF })
	case Scale:
		b.Mutate(func(s *bone.State) { s.Scale = a.Factor })
	case Glow:
		b.Mutate(func(s *bone.State) {
			s.Glow = a.Enabled
			s.GlowColor = a.Color & 0xFFFFFF
		})
	case TogglePart:
		b.Mutate(func(s *bone.State) { s.Visible = a.Visible })
	case Composite:
		for _, sub := range a.Actions {
			if sub != nil {
				applyAction(b, sub)
			}
		}
	}
}
