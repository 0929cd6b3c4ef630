package model

import (
	"errors"
	"fmt"

	"github.com/zeusync/modelsync/internal/core/bone"
)

var (
	ErrUnknownModel     = errors.New("unknown model")
	ErrUnknownAnimation = errors.New("unknown animation")
	ErrInvalidBlueprint = errors.New("invalid blueprint")
)

// DamageAnimation is played by trackers whose modifier enables damage
// animations.
const DamageAnimation = "damage"

// Animation describes a named animation of a model. Keyframes live in the
// external model format; the engine only needs timing and the script.
type Animation struct {
	Name string `yaml:"name" json:"name"`
	// Length is the duration in simulation ticks.
	Length int64 `yaml:"length" json:"length"`
	Loop   bool  `yaml:"loop,omitempty" json:"loop,omitempty"`
	// Script is run against the tracker when the animation starts.
	Script string `yaml:"script,omitempty" json:"script,omitempty"`
}

// Blueprint is the immutable definition a tracker is instantiated from.
type Blueprint struct {
	ID         string            `yaml:"id" json:"id"`
	Bones      []bone.Definition `yaml:"bones" json:"bones"`
	Animations []Animation       `yaml:"animations,omitempty" json:"animations,omitempty"`
}

// Animation looks up an animation by name.
func (b *Blueprint) Animation(name string) (Animation, bool) {
	for _, a := range b.Animations {
		if a.Name == name {
			return a, true
		}
	}
	return Animation{}, false
}

// NewHierarchy instantiates a fresh bone tree for one tracker.
func (b *Blueprint) NewHierarchy() *bone.Hierarchy {
	return bone.NewHierarchy(b.Bones)
}

func (b *Blueprint) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidBlueprint)
	}
	if len(b.Bones) == 0 {
		return fmt.Errorf("%w: model %s has no bones", ErrInvalidBlueprint, b.ID)
	}

	seen := make(map[string]struct{})
	var walk func(defs []bone.Definition) error
	walk = func(defs []bone.Definition) error {
		for _, def := range defs {
			if def.Name == "" {
				return fmt.Errorf("%w: model %s has an unnamed bone", ErrInvalidBlueprint, b.ID)
			}
			if _, dup := seen[def.Name]; dup {
				return fmt.Errorf("%w: model %s repeats bone %s", ErrInvalidBlueprint, b.ID, def.Name)
			}
			seen[def.Name] = struct{}{}
			if err := walk(def.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(b.Bones); err != nil {
		return err
	}

	names := make(map[string]struct{}, len(b.Animations))
	for _, a := range b.Animations {
		if a.Name == "" {
			return fmt.Errorf("%w: model %s has an unnamed animation", ErrInvalidBlueprint, b.ID)
		}
		if _, dup := names[a.Name]; dup {
			return fmt.Errorf("%w: model %s repeats animation %s", ErrInvalidBlueprint, b.ID, a.Name)
		}
		if a.Length < 0 {
			return fmt.Errorf("%w: animation %s of model %s has negative length", ErrInvalidBlueprint, a.Name, b.ID)
		}
		names[a.Name] = struct{}{}
	}
	return nil
}
