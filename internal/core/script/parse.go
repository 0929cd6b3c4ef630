package script

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/zeusync/modelsync/internal/core/bone"
)

// Call is one parsed script invocation.
type Call struct {
	Name   string
	Params Params
}

// Parse splits src into calls.
func Parse(src string) ([]Call, error) {
	var calls []Call
	rest := strings.TrimSpace(src)
	if rest == "" {
		return nil, fmt.Errorf("%w: empty script", ErrInvalidScript)
	}

	for rest != "" {
		end := strings.IndexFunc(rest, func(r rune) bool { return r == '{' || unicode.IsSpace(r) })
		if end == -1 {
			end = len(rest)
		}
		name := rest[:end]
		if name == "" {
			return nil, fmt.Errorf("%w: missing name before %q", ErrInvalidScript, rest)
		}
		rest = rest[end:]

		params := Params{}
		if strings.HasPrefix(rest, "{") {
			closing := strings.IndexByte(rest, '}')
			if closing == -1 {
				return nil, fmt.Errorf("%w: unclosed parameters of %s", ErrInvalidScript, name)
			}
			var err error
			if params, err = parseParams(rest[1:closing]); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidScript, name, err)
			}
			rest = rest[closing+1:]
		}

		calls = append(calls, Call{Name: name, Params: params})
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	}
	return calls, nil
}

func parseParams(body string) (Params, error) {
	params := Params{}
	for _, pair := range strings.Split(body, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed parameter %q", pair)
		}
		params[strings.ToLower(key)] = strings.TrimSpace(value)
	}
	return params, nil
}

// Params are the raw key=value parameters of a call. Keys are lower case.
type Params map[string]string

func (p Params) Text(key, fallback string) string {
	if v, ok := p[key]; ok && v != "" {
		return v
	}
	return fallback
}

func (p Params) Int(key string, fallback int) (int, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %w", key, err)
	}
	return n, nil
}

func (p Params) Bool(key string, fallback bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parameter %s: %w", key, err)
	}
	return b, nil
}

// Color reads a packed 0xRRGGBB color written as hex, with an optional "#"
// or "0x" prefix.
func (p Params) Color(key string, fallback uint32) (uint32, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return fallback, nil
	}
	v = strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(v), "#"), "0x")
	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil || n > 0xFFFFFF {
		return 0, fmt.Errorf("parameter %s: bad color %q", key, p[key])
	}
	return uint32(n), nil
}

// Predicate builds the bone selection of a call. bones lists names, tags
// lists tag prefixes and under names subtree roots; given together they must
// all match. Without any of them every bone is selected.
func (p Params) Predicate() bone.Predicate {
	var parts []bone.Predicate
	if names := list(p["bones"]); len(names) > 0 {
		parts = append(parts, bone.Named(names...))
	}
	if raw := list(p["tags"]); len(raw) > 0 {
		tags := make([]bone.Tag, len(raw))
		for i, t := range raw {
			tags[i] = bone.Tag(strings.ToLower(t))
		}
		parts = append(parts, bone.Tagged(tags...))
	}
	if roots := list(p["under"]); len(roots) > 0 {
		under := make([]bone.Predicate, len(roots))
		for i, root := range roots {
			under[i] = bone.Under(root)
		}
		parts = append(parts, bone.Or(under...))
	}
	if len(parts) == 0 {
		return bone.All()
	}
	return bone.And(parts...)
}

func list(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
