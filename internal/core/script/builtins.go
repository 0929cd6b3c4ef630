package script

import (
	"fmt"

	"github.com/zeusync/modelsync/internal/core/bone"
	"github.com/zeusync/modelsync/internal/core/tracker"
)

// RegisterBuiltins registers tint, brightness and animate.
func RegisterBuiltins(m *Manager) {
	m.Register("tint", func(p Params) (tracker.AnimationScript, error) {
		color, err := p.Color("color", bone.DefaultTint)
		if err != nil {
			return nil, err
		}
		damage, err := p.Bool("damage", false)
		if err != nil {
			return nil, err
		}
		return tracker.TintScript{Predicate: p.Predicate(), Color: color, DamageTint: damage}, nil
	})

	m.Register("brightness", func(p Params) (tracker.AnimationScript, error) {
		block, err := p.Int("block", bone.LightInherit)
		if err != nil {
			return nil, err
		}
		sky, err := p.Int("sky", bone.LightInherit)
		if err != nil {
			return nil, err
		}
		b := tracker.BrightnessAction(block, sky)
		return tracker.BrightnessScript{Predicate: p.Predicate(), Block: b.Block, Sky: b.Sky}, nil
	})

	m.Register("animate", func(p Params) (tracker.AnimationScript, error) {
		name := p.Text("name", "")
		if name == "" {
			return nil, fmt.Errorf("%w: animate requires name", ErrInvalidScript)
		}
		return tracker.AnimateScript{Animation: name}, nil
	})
}
