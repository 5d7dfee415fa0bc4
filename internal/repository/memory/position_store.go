package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"convoy/internal/domain/entities"
	"convoy/internal/geo"
	"convoy/internal/repository"
)

// PositionStore keeps the last published position per id with a secondary
// index on the geohash cell:
//   - positions: id → PositionUpdate
//   - cellIndex: cell prefix → id → PositionUpdate
//
// Both maps are updated under one lock on every write. Searches only visit
// the cells whose prefix falls inside one of the query's geohash windows.
type PositionStore struct {
	mu        sync.RWMutex
	cellLen   int
	positions map[string]*entities.PositionUpdate
	cellIndex map[string]map[string]*entities.PositionUpdate
}

// NewPositionStore indexes positions by the first cellLen characters of their
// geohash.
func NewPositionStore(cellLen int) *PositionStore {
	if cellLen <= 0 {
		cellLen = 6
	}
	return &PositionStore{
		cellLen:   cellLen,
		positions: make(map[string]*entities.PositionUpdate),
		cellIndex: make(map[string]map[string]*entities.PositionUpdate),
	}
}

func (r *PositionStore) cell(geohash string) string {
	if len(geohash) > r.cellLen {
		return geohash[:r.cellLen]
	}
	return geohash
}

// WritePosition upserts the position. When the id moved to another cell the
// stale index entry is dropped first.
func (r *PositionStore) WritePosition(ctx context.Context, update *entities.PositionUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *update
	newCell := r.cell(stored.Geohash)

	if old, ok := r.positions[stored.ID]; ok {
		if oldCell := r.cell(old.Geohash); oldCell != newCell {
			r.removeFromCell(oldCell, stored.ID)
		}
	}

	r.positions[stored.ID] = &stored
	if _, ok := r.cellIndex[newCell]; !ok {
		r.cellIndex[newCell] = make(map[string]*entities.PositionUpdate)
	}
	r.cellIndex[newCell][stored.ID] = &stored
	return nil
}

func (r *PositionStore) removeFromCell(cell, id string) {
	members, ok := r.cellIndex[cell]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.cellIndex, cell)
	}
}

// GetPosition returns a copy of the last position, or (nil, nil).
func (r *PositionStore) GetPosition(ctx context.Context, id string) (*entities.PositionUpdate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.positions[id]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

// RemovePosition forgets an id.
func (r *PositionStore) RemovePosition(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[id]
	if !ok {
		return nil
	}
	r.removeFromCell(r.cell(p.Geohash), id)
	delete(r.positions, id)
	return nil
}

// cellInWindow reports whether any hash with the given cell prefix can fall
// inside w.
func cellInWindow(cell string, w geo.QueryWindow) bool {
	n := min(len(cell), len(w.Start))
	return cell[:n] >= w.Start[:n] && cell[:n] <= w.End[:n]
}

// SearchPositions returns positions within radiusKm of center, nearest
// first, at most limit of them (all when limit <= 0).
func (r *PositionStore) SearchPositions(ctx context.Context, center entities.GeoPoint, radiusKm float64, limit int) ([]repository.PositionHit, error) {
	windows, err := geo.ComputeWindows(center, radiusKm)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	var hits []repository.PositionHit
	for cell, members := range r.cellIndex {
		if !slices.ContainsFunc(windows, func(w geo.QueryWindow) bool { return cellInWindow(cell, w) }) {
			continue
		}
		for _, p := range members {
			if d := geo.DistanceKm(center, p.Point); d <= radiusKm {
				hits = append(hits, repository.PositionHit{Position: *p, DistanceKm: d})
			}
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(hits, func(a, b repository.PositionHit) int {
		if a.DistanceKm != b.DistanceKm {
			if a.DistanceKm < b.DistanceKm {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Position.ID, b.Position.ID)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
