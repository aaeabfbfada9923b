package domain

import (
	"maps"
	"slices"
)

// Every place that turns a set of node ids into a sequence goes through
// these helpers so the tie-break rule is the same everywhere: ascending id.

func SortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// StableOrder returns a sorted, de-duplicated copy of ids.
func StableOrder(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
