// Package address parses hierarchical broker paths and resolves them one
// node at a time.
//
// A path is a '/'-separated list of segments read left to right from the
// node that holds it: ".." hops to the parent, "." or an empty segment stays
// on the current node, and any other token names either a live child (a hop)
// or, as the final segment, a topic on the current node. No node knows the
// whole tree, so a node only consumes segments until it has to hop and then
// hands the remainder to the next node.
package address

import "strings"

// Separator splits path segments.
const Separator = "/"

// Kind classifies a segment.
type Kind int

const (
	// Stay keeps resolution on the current node ("." or empty).
	Stay Kind = iota
	// Parent hops to the parent ("..").
	Parent
	// Name is a child selfId or a topic id.
	Name
)

func (k Kind) String() string {
	switch k {
	case Stay:
		return "stay"
	case Parent:
		return "parent"
	case Name:
		return "name"
	default:
		return "unknown"
	}
}

// Segment is one element of a path.
type Segment struct {
	Kind Kind
	Name string
}

// Path is a parsed address. The zero value addresses the current node.
type Path struct {
	raw  string
	segs []Segment
}

// Parse splits raw into segments. It never fails; unresolvable paths are
// reported by Resolve.
func Parse(raw string) Path {
	parts := strings.Split(raw, Separator)
	segs := make([]Segment, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			segs = append(segs, Segment{Kind: Stay})
		case "..":
			segs = append(segs, Segment{Kind: Parent})
		default:
			segs = append(segs, Segment{Kind: Name, Name: part})
		}
	}
	return Path{raw: raw, segs: segs}
}

// Raw returns the string the path was parsed from.
func (p Path) Raw() string { return p.raw }

// Segments returns a copy of the parsed segments.
func (p Path) Segments() []Segment {
	out := make([]Segment, len(p.segs))
	copy(out, p.segs)
	return out
}

// Last returns the final segment, or a Stay segment for an empty path.
func (p Path) Last() Segment {
	if len(p.segs) == 0 {
		return Segment{Kind: Stay}
	}
	return p.segs[len(p.segs)-1]
}

// String returns the normalized form: interior stay segments are dropped and
// a trailing stay segment is kept as a trailing separator. Two paths with the
// same normalized form resolve identically from the same node.
func (p Path) String() string {
	parts := make([]string, 0, len(p.segs))
	for i, s := range p.segs {
		switch s.Kind {
		case Stay:
			if i == len(p.segs)-1 && len(parts) > 0 {
				parts = append(parts, "")
			}
		case Parent:
			parts = append(parts, "..")
		case Name:
			parts = append(parts, s.Name)
		}
	}
	return strings.Join(parts, Separator)
}

// fromSegments builds the remainder handed to the next node.
func fromSegments(segs []Segment) Path {
	p := Path{segs: segs}
	p.raw = p.String()
	return p
}
