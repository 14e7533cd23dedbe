// Package ordering assigns fractional sort keys to items moved within an
// ordered list so that a move writes only the moved item.
package ordering

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// DefaultOrder is the key given to the only item of a list and the first
// item appended to an empty list.
const DefaultOrder = 1.0

// Item is one sibling in an ordered collection.
// INVARIANT: siblings are displayed ascending by Order; ties keep fetch order.
type Item struct {
	ID    string
	Order float64
}

// Update is a new Order value to persist for one item.
type Update struct {
	ID    string
	Order float64
}

// Assign computes a new Order for the item at movedIndex.
// PRE: siblings is non-empty, sorted ascending by Order except for the moved
// item, which is already spliced into movedIndex; its own Order is ignored.
// POST: returns (prev+next)/2 between two neighbours; next/2, next*2 or -1 when
// moved to the front; prev+1 when moved to the end; DefaultOrder when alone.
// Panics on an empty list or an out-of-range index.
func Assign(siblings []Item, movedIndex int) float64 {
	mustIndex(siblings, movedIndex)

	hasPrev := movedIndex > 0
	hasNext := movedIndex < len(siblings)-1

	switch {
	case hasPrev && hasNext:
		prev, next := siblings[movedIndex-1].Order, siblings[movedIndex+1].Order
		// halves first so large keys cannot overflow to Inf
		return prev/2 + next/2
	case hasNext:
		next := siblings[movedIndex+1].Order
		switch {
		case next == 0:
			return -1
		case next < 0:
			return next * 2
		default:
			return next / 2
		}
	case hasPrev:
		return siblings[movedIndex-1].Order + 1
	default:
		return DefaultOrder
	}
}

// Fits reports whether key places the item at movedIndex strictly after its
// previous neighbour and strictly before its next one.
// PRE: same as Assign.
func Fits(siblings []Item, movedIndex int, key float64) bool {
	mustIndex(siblings, movedIndex)
	if math.IsNaN(key) || math.IsInf(key, 0) {
		return false
	}
	if movedIndex > 0 && !(siblings[movedIndex-1].Order < key) {
		return false
	}
	if movedIndex < len(siblings)-1 && !(key < siblings[movedIndex+1].Order) {
		return false
	}
	return true
}

// Plan returns the writes needed to make siblings sort into their current
// positions after a move, and whether the list had to be renumbered.
// The common case is a single update for the moved item. When the computed key
// no longer separates the neighbours (float precision exhausted after many
// bisections, tied neighbours, or overflow) the whole list is renumbered 1..n
// and every item whose stored key changes is returned.
// PRE: same as Assign.
func Plan(siblings []Item, movedIndex int) (updates []Update, renumbered bool) {
	key := Assign(siblings, movedIndex)
	if Fits(siblings, movedIndex, key) {
		return []Update{{ID: siblings[movedIndex].ID, Order: key}}, false
	}
	return Renumber(siblings), true
}

// Renumber assigns integer keys 1..n following the current slice order.
// POST: returns updates only for items whose Order differs from its new key.
func Renumber(items []Item) []Update {
	var updates []Update
	for i, it := range items {
		key := float64(i + 1)
		if it.Order != key {
			updates = append(updates, Update{ID: it.ID, Order: key})
		}
	}
	return updates
}

// NextOrder returns the key for an item appended to the end of siblings:
// one more than the current maximum, or DefaultOrder for an empty list.
func NextOrder(siblings []Item) float64 {
	if len(siblings) == 0 {
		return DefaultOrder
	}
	maxOrder := siblings[0].Order
	for _, it := range siblings[1:] {
		maxOrder = max(maxOrder, it.Order)
	}
	return maxOrder + 1
}

// Move returns a copy of items with the element at from spliced into to.
// Panics when either index is out of range.
func Move(items []Item, from, to int) []Item {
	mustIndex(items, from)
	mustIndex(items, to)
	out := slices.Clone(items)
	moved := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, moved)
}

// Apply returns a copy of items with updates applied by ID.
func Apply(items []Item, updates []Update) []Item {
	byID := make(map[string]float64, len(updates))
	for _, u := range updates {
		byID[u.ID] = u.Order
	}
	out := slices.Clone(items)
	for i := range out {
		if key, ok := byID[out[i].ID]; ok {
			out[i].Order = key
		}
	}
	return out
}

// Sort orders items ascending by Order, keeping the relative order of ties.
func Sort(items []Item) {
	slices.SortStableFunc(items, func(a, b Item) int {
		return cmp.Compare(a.Order, b.Order)
	})
}

// IndexOf returns the position of id in items, or -1.
func IndexOf(items []Item, id string) int {
	return slices.IndexFunc(items, func(it Item) bool { return it.ID == id })
}

func mustIndex(items []Item, i int) {
	if len(items) == 0 {
		panic("ordering: empty sibling list")
	}
	if i < 0 || i >= len(items) {
		panic(fmt.Sprintf("ordering: index %d out of range [0,%d)", i, len(items)))
	}
}
