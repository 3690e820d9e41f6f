package commands

import (
	"sort"
	"strings"
)

// Resource is an exclusivity domain; at most one running command holds it.
type Resource string

const (
	ResourceCamera     Resource = "camera"
	ResourceMicrophone Resource = "microphone"
)

// ResourceSet is an unordered set of resources. The empty set means the
// command may run in parallel with anything.
type ResourceSet map[Resource]struct{}

func NewResourceSet(rs ...Resource) ResourceSet {
	s := make(ResourceSet, len(rs))
	for _, r := range rs {
		s[r] = struct{}{}
	}
	return s
}

var actionResources = map[string][]Resource{
	ActionCapturePhoto: {ResourceCamera},
	ActionCaptureVideo: {ResourceCamera, ResourceMicrophone},
	ActionCaptureAudio: {ResourceMicrophone},
	ActionReadPosition: nil,
	ActionRing:         nil,
	ActionVibrate:      nil,
}

// ResourcesFor maps an action type to the resources it needs exclusively.
// Unknown action types need nothing.
func ResourcesFor(actionType string) ResourceSet {
	return NewResourceSet(actionResources[actionType]...)
}

// KnownAction reports whether actionType is part of the built-in catalog.
func KnownAction(actionType string) bool {
	_, ok := actionResources[actionType]
	return ok
}

func (s ResourceSet) Has(r Resource) bool {
	_, ok := s[r]
	return ok
}

func (s ResourceSet) Intersects(o ResourceSet) bool {
	small, big := s, o
	if len(big) < len(small) {
		small, big = big, small
	}
	for r := range small {
		if big.Has(r) {
			return true
		}
	}
	return false
}

func (s ResourceSet) Sorted() []Resource {
	out := make([]Resource, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s ResourceSet) String() string {
	parts := make([]string, 0, len(s))
	for _, r := range s.Sorted() {
		parts = append(parts, string(r))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// AllResources lists every resource the catalog can hand out.
func AllResources() []Resource {
	return []Resource{ResourceCamera, ResourceMicrophone}
}
