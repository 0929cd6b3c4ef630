package bone

// Definition describes one bone of a model blueprint.
type Definition struct {
	Name     string       `yaml:"name" json:"name"`
	Children []Definition `yaml:"children,omitempty" json:"children,omitempty"`
}

// Bone is a live bone instance. Bones are not safe for concurrent use; the
// owning tracker serializes access.
type Bone struct {
	name     Name
	parent   *Bone
	children []*Bone
	state    State
}

func (b *Bone) Name() Name        { return b.name }
func (b *Bone) Parent() *Bone     { return b.parent }
func (b *Bone) Children() []*Bone { return b.children }
func (b *Bone) State() State      { return b.state }

// Mutate applies fn to the bone's state in place.
func (b *Bone) Mutate(fn func(*State)) {
	fn(&b.state)
}

// View is a read-only copy of one bone for renderers.
type View struct {
	Name   string `json:"name"`
	Tags   []Tag  `json:"tags,omitempty"`
	Parent string `json:"parent,omitempty"`
	State  State  `json:"state"`
}

// Hierarchy owns the bone tree of one model instance.
type Hierarchy struct {
	roots  []*Bone
	flat   []*Bone
	byName map[string]*Bone
}

// NewHierarchy instantiates defs depth-first. Every bone starts in
// DefaultState.
func NewHierarchy(defs []Definition) *Hierarchy {
	h := &Hierarchy{byName: make(map[string]*Bone)}
	for _, def := range defs {
		h.roots = append(h.roots, h.build(def, nil, nil))
	}
	return h
}

func (h *Hierarchy) build(def Definition, parent *Bone, path []string) *Bone {
	b := &Bone{
		name:   ParseName(def.Name, path...),
		parent: parent,
		state:  DefaultState(),
	}
	h.flat = append(h.flat, b)
	h.byName[b.name.Raw] = b
	if _, taken := h.byName[b.name.Name]; !taken {
		h.byName[b.name.Name] = b
	}

	childPath := append(append([]string(nil), path...), b.name.Name)
	for _, child := range def.Children {
		b.children = append(b.children, h.build(child, b, childPath))
	}
	return b
}

func (h *Hierarchy) Roots() []*Bone { return h.roots }

// Bones returns every bone in depth-first order.
func (h *Hierarchy) Bones() []*Bone { return h.flat }

func (h *Hierarchy) Len() int { return len(h.flat) }

func (h *Hierarchy) Bone(name string) (*Bone, bool) {
	b, ok := h.byName[name]
	return b, ok
}

// Select returns the bones matched by p in depth-first order.
func (h *Hierarchy) Select(p Predicate) []*Bone {
	out := make([]*Bone, 0, len(h.flat))
	for _, b := range h.flat {
		if p.Test(b.name) {
			out = append(out, b)
		}
	}
	return out
}

// Views copies the current state of every bone.
func (h *Hierarchy) Views() []View {
	out := make([]View, len(h.flat))
	for i, b := range h.flat {
		out[i] = View{
			Name:   b.name.Raw,
			Tags:   b.name.Tags,
			Parent: b.name.Parent(),
			State:  b.state,
		}
	}
	return out
}

// Release drops every bone reference. The hierarchy is empty afterwards.
func (h *Hierarchy) Release() {
	for _, b := range h.flat {
		b.parent = nil
		b.children = nil
	}
	h.roots = nil
	h.flat = nil
	h.byName = map[string]*Bone{}
}
