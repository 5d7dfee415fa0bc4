package proximity

import (
	"cmp"

	"convoy/internal/domain/entities"
)

// Result is the externally visible projection of a tracked record.
type Result struct {
	ID         string                 `json:"id"`
	Record     entities.TrackedRecord `json:"record"`
	DistanceKm float64                `json:"distance_km"`
}

// SortPolicy orders two results. It returns a negative number when a sorts
// before b, a positive number when after, and zero when the policy does not
// distinguish them; ties are always broken by id so output order is fully
// determined by the map contents.
type SortPolicy func(a, b Result) int

// ByDistance sorts nearest first. It is the policy for "nearby" views.
func ByDistance(a, b Result) int {
	return cmp.Compare(a.DistanceKm, b.DistanceKm)
}

// ByRecency sorts newest first. It is the policy for "active alerts" views.
func ByRecency(a, b Result) int {
	return b.Record.CreatedAt.Compare(a.Record.CreatedAt)
}

// Then chains a secondary policy used when p reports a tie.
func (p SortPolicy) Then(next SortPolicy) SortPolicy {
	return func(a, b Result) int {
		if c := p(a, b); c != 0 {
			return c
		}
		return next(a, b)
	}
}
