package bone

import (
	"slices"
	"strings"
)

// Tag marks a bone with a role, parsed from a raw bone name prefix such as
// "h_" in "h_head".
type Tag string

const (
	TagHead         Tag = "h"
	TagHeadWithItem Tag = "hi"
	TagHitBox       Tag = "b"
	TagSeat         Tag = "p"
	TagSubSeat      Tag = "sp"
	TagLeftHand     Tag = "il"
	TagRightHand    Tag = "ir"
	TagNameTag      Tag = "tag"
)

var knownTags = map[string]Tag{
	string(TagHead):         TagHead,
	string(TagHeadWithItem): TagHeadWithItem,
	string(TagHitBox):       TagHitBox,
	string(TagSeat):         TagSeat,
	string(TagSubSeat):      TagSubSeat,
	string(TagLeftHand):     TagLeftHand,
	string(TagRightHand):    TagRightHand,
	string(TagNameTag):      TagNameTag,
}

// Name identifies a bone inside one model.
type Name struct {
	// Raw is the name as written in the model file.
	Raw string
	// Name is Raw without tag prefixes.
	Name string
	Tags []Tag
	// Path lists ancestor names from the root down, excluding this bone.
	Path []string
}

// ParseName splits leading tag prefixes off raw. Unknown prefixes are kept
// as part of the name.
func ParseName(raw string, path ...string) Name {
	n := Name{Raw: raw, Path: slices.Clone(path)}
	rest := raw
	for {
		prefix, tail, ok := strings.Cut(rest, "_")
		if !ok || tail == "" {
			break
		}
		tag, known := knownTags[strings.ToLower(prefix)]
		if !known {
			break
		}
		n.Tags = append(n.Tags, tag)
		rest = tail
	}
	n.Name = rest
	return n
}

func (n Name) HasTag(tag Tag) bool {
	return slices.Contains(n.Tags, tag)
}

// Is reports whether name matches either the stripped or the raw name.
func (n Name) Is(name string) bool {
	return n.Name == name || n.Raw == name
}

// Parent returns the direct parent name, or "" for root bones.
func (n Name) Parent() string {
	if len(n.Path) == 0 {
		return ""
	}
	return n.Path[len(n.Path)-1]
}

func (n Name) String() string {
	return n.Raw
}
