// Package notify decides who hears about a restock, and makes sure nobody
// hears about it twice in a row.
package notify

import (
	"pvb-stock-bot/internal/stock"
)

// Change is one watch-list item that qualified for a channel alert.
type Change struct {
	Item  string
	Count int
}

// ShouldNotify implements the restock rule: an item qualifies when it is in
// stock now and either just appeared or its quantity grew. Decreases and
// no-change never fire.
func ShouldNotify(previous, current int) bool {
	return current > 0 && (previous == 0 || current > previous)
}

// Changes applies the rule to every watch-list item across two snapshots.
func Changes(watch []string, previous, current stock.Snapshot) []Change {
	var out []Change
	for _, item := range watch {
		cur := current.Quantity(item)
		if ShouldNotify(previous.Quantity(item), cur) {
			out = append(out, Change{Item: item, Count: cur})
		}
	}
	return out
}
