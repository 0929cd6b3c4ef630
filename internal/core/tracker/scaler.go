package tracker

// Source is what a tracker is bound to, as far as scaling and validity go.
type Source interface {
	// Scale is the host's own scale of the bound object.
	Scale() float64
	// Valid reports whether the bound object still exists in the world.
	Valid() bool
}

// Scaler computes the effective render scale of a tracker.
type Scaler interface {
	Scale(src Source) float64
}

// ScaleFactory builds the scaler of a freshly attached tracker.
type ScaleFactory func(entity Entity) Scaler

type constantScaler float64

func (c constantScaler) Scale(Source) float64 { return float64(c) }

type entityScaler struct{}

func (entityScaler) Scale(src Source) float64 {
	if src == nil {
		return 1
	}
	return src.Scale()
}

// productScaler multiplies its parts. Parts are never products themselves.
type productScaler []Scaler

func (p productScaler) Scale(src Source) float64 {
	v := 1.0
	for _, s := range p {
		v *= s.Scale(src)
	}
	return v
}

// Constant always yields v.
func Constant(v float64) Scaler {
	return constantScaler(v)
}

// EntityScale follows the scale of the bound entity.
func EntityScale() Scaler {
	return entityScaler{}
}

// Multiply is Compose(s, Constant(factor)).
func Multiply(s Scaler, factor float64) Scaler {
	return Compose(s, Constant(factor))
}

// Compose multiplies scalers. Nested products are flattened and constants
// folded, so composition is associative: Compose(Compose(a, b), c) and
// Compose(a, Compose(b, c)) always yield the same scale. Nil scalers are
// ignored.
func Compose(scalers ...Scaler) Scaler {
	constant := 1.0
	var parts productScaler
	var add func(s Scaler)
	add = func(s Scaler) {
		switch v := s.(type) {
		case nil:
		case constantScaler:
			constant *= float64(v)
		case productScaler:
			for _, part := range v {
				add(part)
			}
		default:
			parts = append(parts, v)
		}
	}
	for _, s := range scalers {
		add(s)
	}

	if constant != 1 || len(parts) == 0 {
		parts = append(parts, constantScaler(constant))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return parts
}

// StaticSource is a Source for trackers that are not bound to an entity.
type StaticSource float64

func (s StaticSource) Scale() float64 { return float64(s) }
func (StaticSource) Valid() bool      { return true }
