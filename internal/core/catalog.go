package core

import "strings"

// Catalog helpers work on the active subset of reference entries and
// keep the order the catalog lists them in, deduplicated.

func Directions(entries []ReferenceEntry) []Direction {
	var out []Direction
	seen := map[Direction]bool{}
	for _, e := range entries {
		if !e.Active || seen[e.Direction] {
			continue
		}
		if e.Direction != In && e.Direction != Out {
			continue
		}
		seen[e.Direction] = true
		out = append(out, e.Direction)
	}
	return out
}

func CategoriesFor(entries []ReferenceEntry, dir Direction) []string {
	var out []string
	seen := map[string]bool{}
	for _, e := range entries {
		if !e.Active || e.Direction != dir {
			continue
		}
		key := strings.ToLower(e.Category)
		if e.Category == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e.Category)
	}
	return out
}

func TypesFor(entries []ReferenceEntry, dir Direction, category string) []string {
	var out []string
	seen := map[string]bool{}
	for _, e := range entries {
		if !e.Active || e.Direction != dir || !strings.EqualFold(e.Category, category) {
			continue
		}
		key := strings.ToLower(e.Type)
		if e.Type == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e.Type)
	}
	return out
}

// TripleActive reports whether the (direction, category, type) pick is
// still offered by the catalog. Commit re-checks this so a selection
// made against a stale snapshot cannot land.
func TripleActive(entries []ReferenceEntry, dir Direction, category, typ string) bool {
	for _, e := range entries {
		if e.Active && e.Direction == dir &&
			strings.EqualFold(e.Category, category) &&
			strings.EqualFold(e.Type, typ) {
			return true
		}
	}
	return false
}
