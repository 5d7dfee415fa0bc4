package geo

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/domain/entities"
)

// destination returns the point reached from start after travelling distKm
// along the given bearing (degrees clockwise from north).
func destination(start entities.GeoPoint, bearingDeg, distKm float64) entities.GeoPoint {
	delta := distKm / EarthRadiusKm
	theta := toRadians(bearingDeg)
	phi1 := toRadians(start.Latitude)
	lambda1 := toRadians(start.Longitude)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)
	return entities.NewGeoPoint(toDegrees(phi2), wrapDegrees(toDegrees(lambda2)))
}

func covered(windows []QueryWindow, hash string) bool {
	for _, w := range windows {
		if w.Contains(hash) {
			return true
		}
	}
	return false
}

func TestComputeWindows_Coverage(t *testing.T) {
	tests := []struct {
		name     string
		center   entities.GeoPoint
		radiusKm float64
	}{
		{name: "sos radius in Mumbai", center: entities.NewGeoPoint(19.0760, 72.8777), radiusKm: 5.5},
		{name: "ride radius in Mumbai", center: entities.NewGeoPoint(19.0760, 72.8777), radiusKm: 30},
		{name: "tiny radius", center: entities.NewGeoPoint(37.7749, -122.4194), radiusKm: 0.05},
		{name: "continental radius", center: entities.NewGeoPoint(48.8566, 2.3522), radiusKm: 1500},
		{name: "on a cell boundary", center: entities.NewGeoPoint(0, 0), radiusKm: 10},
		{name: "across the antimeridian", center: entities.NewGeoPoint(-17.7134, 179.95), radiusKm: 25},
		{name: "across the antimeridian westward", center: entities.NewGeoPoint(65.0, -179.98), radiusKm: 12},
		{name: "near the north pole", center: entities.NewGeoPoint(89.95, 10), radiusKm: 20},
		{name: "near the south pole", center: entities.NewGeoPoint(-89.99, -120), radiusKm: 3},
		{name: "high latitude", center: entities.NewGeoPoint(78.2232, 15.6267), radiusKm: 30},
	}

	rng := rand.New(rand.NewSource(42))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows, err := ComputeWindows(tt.center, tt.radiusKm)
			require.NoError(t, err)
			require.NotEmpty(t, windows)

			assert.True(t, covered(windows, Encode(tt.center.Latitude, tt.center.Longitude, RecordPrecision)),
				"center itself must be covered")

			for i := 0; i < 2000; i++ {
				// Bias samples towards the rim, where under-coverage would show.
				dist := tt.radiusKm * math.Sqrt(rng.Float64())
				if i%4 == 0 {
					dist = tt.radiusKm * (0.999 + 0.001*rng.Float64())
				}
				p := destination(tt.center, rng.Float64()*360, dist)
				if DistanceKm(tt.center, p) > tt.radiusKm {
					continue
				}
				hash := Encode(p.Latitude, p.Longitude, RecordPrecision)
				require.True(t, covered(windows, hash),
					"point (%f, %f) at %.4f km with hash %s not covered by %v",
					p.Latitude, p.Longitude, DistanceKm(tt.center, p), hash, windows)
			}
		})
	}
}

func TestComputeWindows_WindowBudget(t *testing.T) {
	for _, radius := range []float64{0.01, 0.5, 5.5, 30, 300, 3000} {
		windows, err := ComputeWindows(entities.NewGeoPoint(19.0760, 72.8777), radius)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(windows), MaxWindows, "radius %v", radius)
	}
}

func TestComputeWindows_LargerRadiusUsesCoarserCells(t *testing.T) {
	center := entities.NewGeoPoint(19.0760, 72.8777)

	small, err := ComputeWindows(center, 5.5)
	require.NoError(t, err)
	large, err := ComputeWindows(center, 30)
	require.NoError(t, err)

	assert.Greater(t, len(small[0].Start), len(large[0].Start))
}

func TestComputeWindows_WindowsAreSortedAndWellFormed(t *testing.T) {
	windows, err := ComputeWindows(entities.NewGeoPoint(51.5074, -0.1278), 8)
	require.NoError(t, err)

	for i, w := range windows {
		assert.Less(t, w.Start, w.End)
		assert.Equal(t, byte('~'), w.End[len(w.End)-1])
		if i > 0 {
			assert.Less(t, windows[i-1].End, w.Start)
		}
	}
}

func TestComputeWindows_InvalidArgument(t *testing.T) {
	tests := []struct {
		name     string
		center   entities.GeoPoint
		radiusKm float64
	}{
		{name: "zero radius", center: entities.NewGeoPoint(0, 0), radiusKm: 0},
		{name: "negative radius", center: entities.NewGeoPoint(0, 0), radiusKm: -1},
		{name: "NaN radius", center: entities.NewGeoPoint(0, 0), radiusKm: math.NaN()},
		{name: "infinite radius", center: entities.NewGeoPoint(0, 0), radiusKm: math.Inf(1)},
		{name: "latitude too large", center: entities.NewGeoPoint(91, 0), radiusKm: 1},
		{name: "longitude too small", center: entities.NewGeoPoint(0, -180.5), radiusKm: 1},
		{name: "NaN latitude", center: entities.NewGeoPoint(math.NaN(), 0), radiusKm: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows, err := ComputeWindows(tt.center, tt.radiusKm)
			assert.Nil(t, windows)
			assert.True(t, errors.Is(err, entities.ErrInvalidArgument), "got %v", err)
		})
	}
}

func TestCoalesce(t *testing.T) {
	windows := coalesce([]string{"te7v", "te7u", "te7t", "te7s", "te7k", "te7m", "te7q"})

	assert.Equal(t, []QueryWindow{
		{Start: "te7k", End: "te7m~"},
		{Start: "te7q", End: "te7q~"},
		{Start: "te7s", End: "te7v~"},
	}, windows)
}

func TestQueryWindow_Contains(t *testing.T) {
	w := QueryWindow{Start: "te7u", End: "te7u~"}

	assert.True(t, w.Contains("te7u"))
	assert.True(t, w.Contains("te7uzzzzzz"))
	assert.True(t, w.Contains("te7u000000"))
	assert.False(t, w.Contains("te7t999999"))
	assert.False(t, w.Contains("te7v000000"))
}

func BenchmarkComputeWindows(b *testing.B) {
	center := entities.NewGeoPoint(19.0760, 72.8777)
	for i := 0; i < b.N; i++ {
		_, _ = ComputeWindows(center, 30)
	}
}
