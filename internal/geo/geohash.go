// Package geo implements geohash encoding/decoding, great-circle distance and
// the partitioning of a circular search area into geohash prefix windows.
//
// Go Learning Note — What is a Geohash?
// A geohash is a way to encode a latitude/longitude pair into a short string.
// The key property is that nearby locations usually share a common prefix. For
// example, two points 100m apart might both start with "te7u0", while a point
// 10km away might start with "te7ud". The inverse does not hold: two points a
// few meters apart on either side of a cell boundary can share no prefix at
// all. That is why a proximity search covers a set of cells (one range query
// per cell) and then filters by true distance.
//
// Precision determines the cell size:
//
//	1 → ~5000 km    4 → ~39 km     7 → ~153 m    10 → ~1.2 m
//	2 → ~1250 km    5 → ~5 km      8 → ~19 m     11 → ~15 cm
//	3 → ~156 km     6 → ~1.2 km    9 → ~2.4 m    12 → ~1.9 cm
//
// Records are stored with precision 10 (RecordPrecision); query windows use a
// coarser precision chosen from the search radius.
package geo

import (
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// base32 is the geohash character set (32 characters). Note that 'a', 'i',
// 'l', and 'o' are excluded to avoid confusion with digits 0/1.
const (
	base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

	// RecordPrecision is the geohash length written alongside every stored
	// point.
	RecordPrecision = 10

	// MaxPrecision is the longest geohash Encode produces.
	MaxPrecision = 12
)

var base32Map = map[byte]int{}

func init() {
	for i := 0; i < len(base32); i++ {
		base32Map[base32[i]] = i
	}
}

// Encode converts latitude and longitude to a geohash string with given precision.
//
// Algorithm overview (binary interleaving):
//  1. Start with the full range: lat [-90, 90], lon [-180, 180]
//  2. Alternate between longitude (even bits) and latitude (odd bits)
//  3. For each step, bisect the range and set bit=1 if value >= midpoint
//  4. Every 5 bits are encoded as one base32 character
//
// Go Learning Note — strings.Builder:
// strings.Builder is the idiomatic way to efficiently build strings in Go.
// It minimizes memory allocations by using an internal byte buffer. Never
// build strings with repeated concatenation (s += "x") in a loop; that
// creates a new string (and allocation) each iteration because Go strings are
// immutable.
func Encode(lat, lon float64, precision int) string {
	if precision <= 0 {
		precision = RecordPrecision
	}
	if precision > MaxPrecision {
		precision = MaxPrecision
	}

	minLat, maxLat := -90.0, 90.0
	minLon, maxLon := -180.0, 180.0

	var hash strings.Builder
	hash.Grow(precision)
	isEven := true
	bit := 0
	ch := 0

	for hash.Len() < precision {
		if isEven {
			mid := (minLon + maxLon) / 2
			if lon >= mid {
				ch |= 1 << (4 - bit)
				minLon = mid
			} else {
				maxLon = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat >= mid {
				ch |= 1 << (4 - bit)
				minLat = mid
			} else {
				maxLat = mid
			}
		}
		isEven = !isEven
		bit++
		if bit == 5 {
			hash.WriteByte(base32[ch])
			bit = 0
			ch = 0
		}
	}

	return hash.String()
}

// DecodeBounds replays the binary subdivision of hash and returns the cell it
// names as an orb.Bound (X = longitude, Y = latitude). Characters outside the
// geohash alphabet are skipped.
func DecodeBounds(hash string) orb.Bound {
	minLat, maxLat := -90.0, 90.0
	minLon, maxLon := -180.0, 180.0
	isEven := true

	for i := 0; i < len(hash); i++ {
		cd, ok := base32Map[hash[i]]
		if !ok {
			continue
		}
		for j := 4; j >= 0; j-- {
			bit := (cd >> j) & 1
			if isEven {
				mid := (minLon + maxLon) / 2
				if bit == 1 {
					minLon = mid
				} else {
					maxLon = mid
				}
			} else {
				mid := (minLat + maxLat) / 2
				if bit == 1 {
					minLat = mid
				} else {
					maxLat = mid
				}
			}
			isEven = !isEven
		}
	}

	return orb.Bound{
		Min: orb.Point{minLon, minLat},
		Max: orb.Point{maxLon, maxLat},
	}
}

// Decode converts a geohash string back to the center latitude and longitude
// of the encoded cell.
func Decode(hash string) (lat, lon float64) {
	center := DecodeBounds(hash).Center()
	return center.Lat(), center.Lon()
}

// cellSize returns the width (degrees of longitude) and height (degrees of
// latitude) of every cell at the given precision. Longitude takes the extra
// bit when 5*precision is odd.
func cellSize(precision int) (width, height float64) {
	bits := 5 * precision
	lonBits := (bits + 1) / 2
	latBits := bits / 2
	return 360 / math.Exp2(float64(lonBits)), 180 / math.Exp2(float64(latBits))
}
