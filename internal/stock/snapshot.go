// Package stock models the shop feed: what is purchasable right now, and
// the clients that find that out.
package stock

import (
	"context"
	"errors"
	"sync"
)

// Snapshot maps item name to a positive quantity. A snapshot is replaced
// wholesale on every successful fetch, never merged.
type Snapshot map[string]int

// Quantity returns the stocked quantity, zero when absent.
func (s Snapshot) Quantity(name string) int {
	return s[name]
}

// Row is one record of the upstream game_stock table. The schema belongs to
// a third party and is not versioned.
type Row struct {
	DisplayName string `json:"display_name"`
	Multiplier  int    `json:"multiplier"`
	Type        string `json:"type"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`

	// Weather rows only.
	ItemID string `json:"item_id"`
	EndsAt string `json:"ends_at"`
}

// BuildSnapshot reduces feed rows to a snapshot. Rows without a name or with
// zero quantity carry no stock information and are skipped.
func BuildSnapshot(rows []Row) Snapshot {
	snap := make(Snapshot, len(rows))
	for _, r := range rows {
		if r.DisplayName == "" || r.Multiplier <= 0 {
			continue
		}
		snap[r.DisplayName] = r.Multiplier
	}
	return snap
}

// Holder keeps the most recent snapshot and rows for readers that have no
// fetch path of their own (the command surface when only the Discord feed is
// configured, and the liveness endpoint).
type Holder struct {
	mu   sync.RWMutex
	snap Snapshot
	rows []Row
}

// Update replaces the held snapshot.
func (h *Holder) Update(snap Snapshot, rows []Row) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snap = snap
	h.rows = rows
}

// Current returns the held snapshot and rows; both nil before the first fetch.
func (h *Holder) Current() (Snapshot, []Row) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap, h.rows
}

// ErrNoData means nothing has been fed into the holder yet.
var ErrNoData = errors.New("no stock data received yet")

// FetchStock serves the held snapshot, letting a Holder stand in for a feed
// client when only the passive feed is configured.
func (h *Holder) FetchStock(ctx context.Context) (Snapshot, []Row, error) {
	snap, rows := h.Current()
	if snap == nil {
		return nil, nil, ErrNoData
	}
	return snap, rows, nil
}

// FetchWeather reports no weather; the passive feed does not carry it.
func (h *Holder) FetchWeather(ctx context.Context) (*Row, error) {
	return nil, nil
}
