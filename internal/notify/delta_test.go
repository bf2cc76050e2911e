package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pvb-stock-bot/internal/stock"
)

func TestShouldNotify(t *testing.T) {
	tests := []struct {
		name     string
		previous int
		current  int
		want     bool
	}{
		{"fresh restock", 0, 5, true},
		{"quantity grew", 5, 8, true},
		{"unchanged", 5, 5, false},
		{"quantity shrank", 5, 3, false},
		{"sold out", 5, 0, false},
		{"still empty", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldNotify(tt.previous, tt.current))
		})
	}
}

func TestChangesOnlyCoverWatchList(t *testing.T) {
	watch := []string{"Mr Carrot", "Tomatrio"}
	previous := stock.Snapshot{"Mr Carrot": 2}
	current := stock.Snapshot{"Mr Carrot": 5, "Tomatrio": 1, "Cactus": 9}

	got := Changes(watch, previous, current)
	assert.Equal(t, []Change{
		{Item: "Mr Carrot", Count: 5},
		{Item: "Tomatrio", Count: 1},
	}, got)
}

func TestChangesEmptyWhenNothingQualifies(t *testing.T) {
	watch := []string{"Mr Carrot"}
	snap := stock.Snapshot{"Mr Carrot": 3}

	assert.Empty(t, Changes(watch, snap, snap))
}
