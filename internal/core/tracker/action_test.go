package tracker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionConstructorsCoerce(t *testing.T) {
	assert.Equal(t, Brightness{Block: 15, Sky: -1}, BrightnessAction(20, -5))
	assert.Equal(t, Brightness{Block: 0, Sky: 7}, BrightnessAction(0, 7))
	assert.Equal(t, Tint{Color: 0x345678}, TintAction(0x12345678))
	assert.Equal(t, 1.0, ScaleAction(math.NaN()).Factor)
	assert.Equal(t, 1.0, ScaleAction(math.Inf(1)).Factor)
	assert.Equal(t, 0.0, ScaleAction(-3).Factor)
	assert.Equal(t, 0.5, ScaleAction(0.5).Factor)
	assert.Equal(t, uint32(0xFFFFFF), GlowAction(true, 0xFFFFFFFF).Color)
}

func TestActionKinds(t *testing.T) {
	cases := map[Kind]UpdateAction{
		KindBrightness: BrightnessAction(1, 1),
		KindTint:       TintAction(1),
		KindScale:      ScaleAction(1),
		KindGlow:       GlowAction(false, 0),
		KindTogglePart: TogglePartAction(true),
		KindComposite:  CompositeAction(),
	}
	for kind, action := range cases {
		assert.Equal(t, kind, action.Kind())
	}
}

func TestCompose(t *testing.T) {
	src := StaticSource(2)
	a, b, c := Constant(3), EntityScale(), Constant(0.5)

	left := Compose(Compose(a, b), c)
	right := Compose(a, Compose(b, c))
	assert.Equal(t, left.Scale(src), right.Scale(src))
	assert.Equal(t, 3.0, left.Scale(src))

	assert.Equal(t, 1.0, Compose().Scale(src))
	assert.Equal(t, 2.0, Compose(nil, b).Scale(src))
	assert.Equal(t, 4.0, Multiply(EntityScale(), 2).Scale(src))
	assert.Equal(t, 1.0, EntityScale().Scale(nil))
}
