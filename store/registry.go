package store

import (
	"slices"

	"github.com/jacentio/notebook/internal/multimap"
)

// Relationship links a parent partition to a child partition whose items
// point at their owner through ParentKeyAttr.
type Relationship struct {
	// ParentType is the parent partition (e.g., "document").
	ParentType string

	// ChildType is the child partition (e.g., "group").
	ChildType string

	// ParentKeyAttr is the attribute in the child holding the parent's sort key.
	// Default: AttrParent
	ParentKeyAttr string
}

// Registry is the ownership graph between partitions. The delete cascade
// walks it downwards; readers use it to reject children under the wrong
// kind of parent.
type Registry struct {
	byParent *multimap.Index[string, Relationship]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byParent: multimap.New[string, Relationship]()}
}

// Register adds rel. It reports false, and changes nothing, when the same
// parent/child pair is already registered or when rel would make a
// partition own itself directly or through its descendants.
func (r *Registry) Register(rel Relationship) bool {
	if rel.ParentKeyAttr == "" {
		rel.ParentKeyAttr = AttrParent
	}
	if rel.ParentType == "" || rel.ChildType == "" {
		return false
	}
	if r.Owns(rel.ParentType, rel.ChildType) {
		return false
	}
	if rel.ChildType == rel.ParentType || slices.Contains(r.Descendants(rel.ChildType), rel.ParentType) {
		return false
	}
	r.byParent.Add(rel.ParentType, rel)
	return true
}

// ChildrenOf returns the relationships owned by parentType in registration order.
func (r *Registry) ChildrenOf(parentType string) []Relationship {
	return r.byParent.Get(parentType)
}

// HasChildren reports whether parentType owns any partition.
func (r *Registry) HasChildren(parentType string) bool {
	return r.byParent.Has(parentType)
}

// Owns reports whether childType is a direct child of parentType.
func (r *Registry) Owns(parentType, childType string) bool {
	for _, rel := range r.byParent.Get(parentType) {
		if rel.ChildType == childType {
			return true
		}
	}
	return false
}

// Descendants returns every partition reachable below parentType, nearest
// first.
func (r *Registry) Descendants(parentType string) []string {
	var out []string
	pending := []string{parentType}
	for len(pending) > 0 {
		p := pending[0]
		pending = pending[1:]
		for _, rel := range r.byParent.Get(p) {
			if !slices.Contains(out, rel.ChildType) {
				out = append(out, rel.ChildType)
				pending = append(pending, rel.ChildType)
			}
		}
	}
	return out
}

// AllRelationships returns every relationship, grouped by parent in the
// order parents were first registered.
func (r *Registry) AllRelationships() []Relationship {
	var out []Relationship
	for _, parent := range r.byParent.Keys() {
		out = append(out, r.byParent.Get(parent)...)
	}
	return out
}
