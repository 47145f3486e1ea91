// Package selection tracks the tasks an operator has checked for a bulk
// action.
package selection

import (
	"sort"
	"sync"
)

// Set is an explicit set of task identifiers plus an "all filtered pages"
// flag. While the flag is raised it overrides the explicit set, which is kept
// underneath and comes back when the flag is lowered. Any change to the
// explicit set lowers the flag.
type Set struct {
	mu       sync.RWMutex
	ids      map[string]struct{}
	allPages bool
}

// State is a serialisable view of a Set.
type State struct {
	AllPages bool     `json:"all_pages"`
	IDs      []string `json:"ids"`
}

func New() *Set {
	return &Set{ids: make(map[string]struct{})}
}

// Toggle flips one identifier.
func (s *Set) Toggle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allPages = false
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return
	}
	s.ids[id] = struct{}{}
}

// Add selects ids, e.g. every row of the current page.
func (s *Set) Add(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allPages = false
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
}

// Remove deselects ids.
func (s *Set) Remove(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allPages = false
	for _, id := range ids {
		delete(s.ids, id)
	}
}

// Replace swaps the explicit set for ids.
func (s *Set) Replace(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allPages = false
	s.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
}

// SetAllPages raises or lowers the "all filtered pages" flag without touching
// the explicit set.
func (s *Set) SetAllPages(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allPages = on
}

func (s *Set) AllPages() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allPages
}

// Contains reports whether id falls in the effective selection of a row that
// is part of the filtered result.
func (s *Set) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.allPages {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

// IDs returns the explicit set, sorted.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

// Empty reports an empty effective selection.
func (s *Set) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.allPages && len(s.ids) == 0
}

// Scope resolves the identifiers a bulk action applies to. With the flag
// raised that is the whole filtered result, otherwise the explicit set.
func (s *Set) Scope(filtered []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.allPages {
		return append([]string(nil), filtered...)
	}
	return s.sortedLocked()
}

// Reset clears both the explicit set and the flag.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allPages = false
	s.ids = make(map[string]struct{})
}

func (s *Set) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{AllPages: s.allPages, IDs: s.sortedLocked()}
}

func (s *Set) sortedLocked() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
