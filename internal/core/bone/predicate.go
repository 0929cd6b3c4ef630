package bone

import "strings"

// Predicate selects bones by name. Predicates must be pure: the same
// instance is evaluated for many bones across many updates, from any
// goroutine. A nil Predicate matches every bone.
type Predicate func(Name) bool

// Test evaluates p; nil matches.
func (p Predicate) Test(n Name) bool {
	if p == nil {
		return true
	}
	return p(n)
}

func (p Predicate) And(other Predicate) Predicate {
	return func(n Name) bool { return p.Test(n) && other.Test(n) }
}

func (p Predicate) Or(other Predicate) Predicate {
	return func(n Name) bool { return p.Test(n) || other.Test(n) }
}

func (p Predicate) Not() Predicate {
	return func(n Name) bool { return !p.Test(n) }
}

// All matches every bone.
func All() Predicate {
	return func(Name) bool { return true }
}

// None matches nothing.
func None() Predicate {
	return func(Name) bool { return false }
}

// And matches when every predicate matches. No predicates means All.
func And(ps ...Predicate) Predicate {
	return func(n Name) bool {
		for _, p := range ps {
			if !p.Test(n) {
				return false
			}
		}
		return true
	}
}

// Or matches when any predicate matches. No predicates means None.
func Or(ps ...Predicate) Predicate {
	return func(n Name) bool {
		for _, p := range ps {
			if p.Test(n) {
				return true
			}
		}
		return false
	}
}

// Named matches bones whose stripped or raw name is one of names.
func Named(names ...string) Predicate {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return func(n Name) bool {
		if _, ok := set[n.Name]; ok {
			return true
		}
		_, ok := set[n.Raw]
		return ok
	}
}

// Tagged matches bones carrying any of tags.
func Tagged(tags ...Tag) Predicate {
	return func(n Name) bool {
		for _, tag := range tags {
			if n.HasTag(tag) {
				return true
			}
		}
		return false
	}
}

// Prefix matches bones whose stripped name starts with prefix.
func Prefix(prefix string) Predicate {
	return func(n Name) bool { return strings.HasPrefix(n.Name, prefix) }
}

// Under matches the named bone and all of its descendants.
func Under(name string) Predicate {
	return func(n Name) bool {
		if n.Is(name) {
			return true
		}
		for _, ancestor := range n.Path {
			if ancestor == name {
				return true
			}
		}
		return false
	}
}
