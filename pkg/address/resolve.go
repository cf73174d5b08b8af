package address

import "github.com/DeBrosOfficial/cogmesh/pkg/errors"

// Mode selects how the final segment is read.
type Mode int

const (
	// TopicMode requires the final segment to be a topic id
	// (Subscribe, Unsubscribe, PublishAt).
	TopicMode Mode = iota
	// NodeMode lets the final segment be omitted to address the node itself
	// or name a child to hop to (Query).
	NodeMode
)

// Hop is where a resolution step leaves the current node.
type Hop int

const (
	// HopNone means the path terminates on the current node.
	HopNone Hop = iota
	// HopParent continues resolution on the parent.
	HopParent
	// HopChild continues resolution on Step.Child.
	HopChild
)

func (h Hop) String() string {
	switch h {
	case HopNone:
		return "local"
	case HopParent:
		return "parent"
	case HopChild:
		return "child"
	default:
		return "unknown"
	}
}

// Step is the outcome of resolving a path on one node.
type Step struct {
	Hop Hop
	// Child is the selfId hopped to when Hop is HopChild.
	Child string
	// Rest is the remainder to resolve on the next node.
	Rest Path
	// Target is the topic id when Hop is HopNone. Empty addresses the node
	// itself (NodeMode only).
	Target string
}

// Local reports whether the path terminates on the current node.
func (s Step) Local() bool { return s.Hop == HopNone }

// Table is the view of a node's links that resolution needs.
type Table interface {
	HasParent() bool
	HasChild(selfID string) bool
}

// Resolve consumes segments on the current node until the path terminates or
// a hop is required. Errors carry NO_ROUTE or NO_PARENT codes.
func (p Path) Resolve(t Table, mode Mode) (Step, error) {
	if mode == TopicMode && p.Last().Kind != Name {
		return Step{}, errors.NewNoRouteError(p.raw, "")
	}

	for i, seg := range p.segs {
		last := i == len(p.segs)-1

		switch seg.Kind {
		case Stay:
			continue

		case Parent:
			if !t.HasParent() {
				return Step{}, errors.NewNoParentError(p.raw)
			}
			return Step{Hop: HopParent, Rest: fromSegments(p.segs[i+1:])}, nil

		case Name:
			if last {
				if mode == NodeMode && t.HasChild(seg.Name) {
					return Step{Hop: HopChild, Child: seg.Name, Rest: fromSegments(nil)}, nil
				}
				return Step{Hop: HopNone, Target: seg.Name}, nil
			}
			if !t.HasChild(seg.Name) {
				return Step{}, errors.NewNoRouteError(p.raw, seg.Name)
			}
			return Step{Hop: HopChild, Child: seg.Name, Rest: fromSegments(p.segs[i+1:])}, nil
		}
	}

	return Step{Hop: HopNone}, nil
}
