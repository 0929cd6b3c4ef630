package bone

// DefaultTint is the neutral tint: white leaves the texture untouched.
const DefaultTint uint32 = 0xFFFFFF

const (
	// LightInherit means the bone uses the light level of the world.
	LightInherit = -1
	LightMax     = 15
)

type Brightness struct {
	Block int `json:"block"`
	Sky   int `json:"sky"`
}

// InheritBrightness leaves both light components to the world.
var InheritBrightness = Brightness{Block: LightInherit, Sky: LightInherit}

// ClampLight coerces v into [LightInherit, LightMax].
func ClampLight(v int) int {
	return min(max(v, LightInherit), LightMax)
}

// NewBrightness clamps both components independently.
func NewBrightness(block, sky int) Brightness {
	return Brightness{Block: ClampLight(block), Sky: ClampLight(sky)}
}

// State is the visual state of a single bone as seen by the renderer.
type State struct {
	Tint       uint32     `json:"tint"`
	Brightness Brightness `json:"brightness"`
	Scale      float64    `json:"scale"`
	Glow       bool       `json:"glow"`
	GlowColor  uint32     `json:"glowColor"`
	Visible    bool       `json:"visible"`
}

func DefaultState() State {
	return State{
		Tint:       DefaultTint,
		Brightness: InheritBrightness,
		Scale:      1,
		GlowColor:  DefaultTint,
		Visible:    true,
	}
}
