// Package feed holds the candidate item model shared by sources, the
// aggregator and the dispatcher.
package feed

import "strings"

// Item is a candidate produced by a source during one run.
// Link is the canonical identifier used for deduplication.
type Item struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Summary   string `json:"summary,omitempty"`
	SourceTag string `json:"source_tag"`
}

// ID returns the dedup key of the item.
func (it Item) ID() string { return strings.TrimSpace(it.Link) }

// Set is a set of identifiers.
type Set map[string]struct{}

// NewSet builds a set from ids. Empty ids are ignored.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s Set) Add(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	s[id] = struct{}{}
}

// Has is safe on a nil set.
func (s Set) Has(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s[strings.TrimSpace(id)]
	return ok
}

func (s Set) Len() int { return len(s) }

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}
