package geo

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"

	"convoy/internal/domain/entities"
)

const (
	// MaxWindows bounds how many cells a search area is split into before
	// falling back to a coarser precision.
	MaxWindows = 9

	// MaxWindowPrecision is the finest cell used for a window. It must stay
	// below RecordPrecision so every stored geohash extends a window prefix.
	MaxWindowPrecision = 9

	// windowEnd sorts after every base32 character, so [h, h+"~"] holds every
	// geohash that starts with h.
	windowEnd = "~"

	// boundsPadDeg widens the search bounding box slightly so floating point
	// rounding at cell edges can never drop a cell.
	boundsPadDeg = 1e-9
)

// QueryWindow is an inclusive lexicographic range over geohash values. It
// maps directly onto an ordered range query (orderBy geohash, startAt, endAt).
type QueryWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether hash falls inside the window.
func (w QueryWindow) Contains(hash string) bool {
	return hash >= w.Start && hash <= w.End
}

func (w QueryWindow) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start, w.End)
}

// ComputeWindows returns the geohash windows whose union covers the circle of
// radiusKm around center. The windows over-select: their cells form a superset
// of the circle, so results must still be filtered by DistanceKm.
//
// Strategy:
//  1. Compute the circle's bounding box on the sphere (split at the
//     antimeridian, widened to all longitudes when the circle reaches a pole).
//  2. Pick the finest precision whose covering cells fit in MaxWindows. Larger
//     radii end up on coarser precisions.
//  3. Drop cells whose nearest point is farther than radiusKm from center.
//  4. Merge sibling cells with consecutive last characters into one window.
func ComputeWindows(center entities.GeoPoint, radiusKm float64) ([]QueryWindow, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) || radiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius %v must be a positive finite number of km", entities.ErrInvalidArgument, radiusKm)
	}

	bounds := searchBounds(center, radiusKm)

	for precision := MaxWindowPrecision; precision > 1; precision-- {
		// Counting by grid arithmetic first keeps fine precisions on large
		// radii from enumerating millions of cells.
		if candidateCount(bounds, precision) > MaxWindows*4 {
			continue
		}
		cells := coveringCells(center, radiusKm, bounds, precision)
		if len(cells) <= MaxWindows {
			return coalesce(cells), nil
		}
	}
	return coalesce(coveringCells(center, radiusKm, bounds, 1)), nil
}

// searchBounds returns one or two boxes (two when the circle crosses the
// antimeridian) that together contain every point within radiusKm of center.
func searchBounds(center entities.GeoPoint, radiusKm float64) []orb.Bound {
	angular := radiusKm / EarthRadiusKm
	if angular >= math.Pi {
		return []orb.Bound{{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}}
	}

	deltaLat := toDegrees(angular)
	minLat := center.Latitude - deltaLat
	maxLat := center.Latitude + deltaLat

	if minLat <= -90 || maxLat >= 90 {
		// The cap contains a pole: every meridian passes through it.
		return []orb.Bound{clampBound(orb.Bound{Min: orb.Point{-180, minLat}, Max: orb.Point{180, maxLat}})}
	}

	ratio := math.Sin(angular) / math.Cos(toRadians(center.Latitude))
	if ratio >= 1 {
		return []orb.Bound{clampBound(orb.Bound{Min: orb.Point{-180, minLat}, Max: orb.Point{180, maxLat}})}
	}
	deltaLon := toDegrees(math.Asin(ratio))
	minLon := center.Longitude - deltaLon
	maxLon := center.Longitude + deltaLon

	switch {
	case minLon < -180:
		return []orb.Bound{
			clampBound(orb.Bound{Min: orb.Point{minLon + 360, minLat}, Max: orb.Point{180, maxLat}}),
			clampBound(orb.Bound{Min: orb.Point{-180, minLat}, Max: orb.Point{maxLon, maxLat}}),
		}
	case maxLon > 180:
		return []orb.Bound{
			clampBound(orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{180, maxLat}}),
			clampBound(orb.Bound{Min: orb.Point{-180, minLat}, Max: orb.Point{maxLon - 360, maxLat}}),
		}
	}
	return []orb.Bound{clampBound(orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}})}
}

func clampBound(b orb.Bound) orb.Bound {
	b = b.Pad(boundsPadDeg)
	b.Min[0] = math.Max(b.Min[0], -180)
	b.Min[1] = math.Max(b.Min[1], -90)
	b.Max[0] = math.Min(b.Max[0], 180)
	b.Max[1] = math.Min(b.Max[1], 90)
	return b
}

// cellRange returns the inclusive column and row index ranges of the grid at
// precision that intersect b.
func cellRange(b orb.Bound, precision int) (colMin, colMax, rowMin, rowMax int) {
	width, height := cellSize(precision)
	cols := int(math.Round(360 / width))
	rows := int(math.Round(180 / height))

	clamp := func(v, n int) int {
		if v < 0 {
			return 0
		}
		if v >= n {
			return n - 1
		}
		return v
	}

	colMin = clamp(int(math.Floor((b.Min.Lon()+180)/width)), cols)
	colMax = clamp(int(math.Floor((b.Max.Lon()+180)/width)), cols)
	rowMin = clamp(int(math.Floor((b.Min.Lat()+90)/height)), rows)
	rowMax = clamp(int(math.Floor((b.Max.Lat()+90)/height)), rows)
	return
}

func candidateCount(bounds []orb.Bound, precision int) int {
	total := 0
	for _, b := range bounds {
		colMin, colMax, rowMin, rowMax := cellRange(b, precision)
		total += (colMax - colMin + 1) * (rowMax - rowMin + 1)
	}
	return total
}

// coveringCells enumerates the geohash cells at precision that intersect any
// of bounds and whose nearest point lies within radiusKm of center.
func coveringCells(center entities.GeoPoint, radiusKm float64, bounds []orb.Bound, precision int) []string {
	width, height := cellSize(precision)
	seen := make(map[string]struct{})
	var cells []string

	for _, b := range bounds {
		colMin, colMax, rowMin, rowMax := cellRange(b, precision)
		for row := rowMin; row <= rowMax; row++ {
			for col := colMin; col <= colMax; col++ {
				cell := orb.Bound{
					Min: orb.Point{-180 + float64(col)*width, -90 + float64(row)*height},
					Max: orb.Point{-180 + float64(col+1)*width, -90 + float64(row+1)*height},
				}
				if !cell.Intersects(b) || !withinReach(center, radiusKm, cell) {
					continue
				}
				c := cell.Center()
				hash := Encode(c.Lat(), c.Lon(), precision)
				if _, dup := seen[hash]; dup {
					continue
				}
				seen[hash] = struct{}{}
				cells = append(cells, hash)
			}
		}
	}
	return cells
}

// withinReach reports whether some point of cell may lie within radiusKm of
// center. It errs on the side of keeping a cell.
func withinReach(center entities.GeoPoint, radiusKm float64, cell orb.Bound) bool {
	return nearestDistanceKm(center, cell) <= radiusKm*(1+1e-9)+1e-9
}

// nearestDistanceKm returns the great-circle distance from p to the closest
// point of the lat/lng rectangle cell, or 0 when it cannot cheaply bound it.
//
// If p's longitude falls inside the cell, the closest point lies on p's own
// meridian. Otherwise it lies on the nearer of the two bounding meridians: on
// a meridian at longitude offset dLon the distance from p is minimized at
// latitude atan(tan(lat)/cos(dLon)), clamped into the cell.
func nearestDistanceKm(p entities.GeoPoint, cell orb.Bound) float64 {
	if cell.Min.Lon() <= p.Longitude && p.Longitude <= cell.Max.Lon() {
		lat := math.Min(math.Max(p.Latitude, cell.Min.Lat()), cell.Max.Lat())
		return DistanceKm(p, entities.NewGeoPoint(lat, p.Longitude))
	}

	best := math.Inf(1)
	for _, edgeLon := range []float64{cell.Min.Lon(), cell.Max.Lon()} {
		dLon := wrapDegrees(edgeLon - p.Longitude)
		if math.Abs(dLon) >= 90 {
			return 0
		}
		lat := toDegrees(math.Atan(math.Tan(toRadians(p.Latitude)) / math.Cos(toRadians(dLon))))
		lat = math.Min(math.Max(lat, cell.Min.Lat()), cell.Max.Lat())
		best = math.Min(best, DistanceKm(p, entities.NewGeoPoint(lat, edgeLon)))
	}
	return best
}

// wrapDegrees maps a longitude difference into [-180, 180].
func wrapDegrees(d float64) float64 {
	d = math.Mod(d+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}

// coalesce sorts cells and merges runs of siblings (same parent, consecutive
// last character) into a single window.
func coalesce(cells []string) []QueryWindow {
	sort.Strings(cells)

	var windows []QueryWindow
	for i := 0; i < len(cells); {
		j := i
		for j+1 < len(cells) && consecutive(cells[j], cells[j+1]) {
			j++
		}
		windows = append(windows, QueryWindow{Start: cells[i], End: cells[j] + windowEnd})
		i = j + 1
	}
	return windows
}

func consecutive(a, b string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	n := len(a) - 1
	if a[:n] != b[:n] {
		return false
	}
	return base32Map[b[n]] == base32Map[a[n]]+1
}
