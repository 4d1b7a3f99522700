package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

// wobblySquare is a unit square with near-collinear points along each edge.
func wobblySquare() []geom.Coord {
	return []geom.Coord{
		{0, 0}, {0.5, 0.00001}, {1, 0},
		{1.00002, 0.5}, {1, 1},
		{0.5, 1.3}, {0, 1},
		{0.00001, 0.5}, {0, 0},
	}
}

func TestSimplifyRing_DropsNearCollinearPoints(t *testing.T) {
	got := SimplifyRing(wobblySquare(), ToleranceLow)

	assert.Equal(t, []geom.Coord{
		{0, 0}, {1, 0}, {1, 1}, {0.5, 1.3}, {0, 1}, {0, 0},
	}, got)
}

func TestSimplifyRing_EndpointsRetained(t *testing.T) {
	rings := [][]geom.Coord{
		wobblySquare(),
		{{5, 5}, {5.00001, 5.00001}, {5.00002, 5.00002}, {5.00003, 5.00003}, {5, 5}},
		{{-1, -1}, {2, -1}, {2, 2}, {-1, 2}, {-1, -1}},
	}

	for _, tol := range []float64{0, ToleranceLow, ToleranceMedium, ToleranceHigh, 10} {
		for _, ring := range rings {
			got := SimplifyRing(ring, tol)
			require.NotEmpty(t, got)
			assert.Equal(t, ring[0], got[0])
			assert.Equal(t, ring[len(ring)-1], got[len(got)-1])
			assert.LessOrEqual(t, len(got), len(ring))
		}
	}
}

func TestSimplifyRing_SmallRingsUnchanged(t *testing.T) {
	for _, ring := range [][]geom.Coord{
		nil,
		{{0, 0}},
		{{0, 0}, {0, 0}},
		{{0, 0}, {1e-9, 1e-9}, {0, 0}},
	} {
		assert.Equal(t, ring, SimplifyRing(ring, 1000))
	}
}

func TestSimplifyRing_UsesOriginalNeighbours(t *testing.T) {
	// Each interior point is tested against its neighbours in the input, so a
	// slow drift of small deviations is removed entirely even though the
	// cumulative deviation is large.
	ring := []geom.Coord{{0, 0}}
	for i := 1; i < 100; i++ {
		ring = append(ring, geom.Coord{float64(i), 0.00005 * float64(i*i) / 100})
	}
	ring = append(ring, geom.Coord{100, 0}, geom.Coord{0, 0})

	got := SimplifyRing(ring, ToleranceLow)
	assert.Less(t, len(got), 10)
}

func TestSimplifyRing_CoincidentNeighbours(t *testing.T) {
	// prev == next and curr == prev gives 0/0 = NaN, which is never > tolerance.
	assert.True(t, math.IsNaN(perpendicularDistance(geom.Coord{1, 1}, geom.Coord{1, 1}, geom.Coord{1, 1})))
	ring := []geom.Coord{{0, 0}, {1, 1}, {1, 1}, {1, 1}, {0, 0}}
	got := SimplifyRing(ring, ToleranceLow)
	assert.Equal(t, []geom.Coord{{0, 0}, {0, 0}}, got)

	// prev == next but curr elsewhere gives x/0 = +Inf, which is kept.
	assert.True(t, math.IsInf(perpendicularDistance(geom.Coord{2, 2}, geom.Coord{1, 1}, geom.Coord{1, 1}), 1))
}

func TestPerpendicularDistance(t *testing.T) {
	d := perpendicularDistance(geom.Coord{0.5, 0.25}, geom.Coord{0, 0}, geom.Coord{1, 0})
	assert.InDelta(t, 0.25, d, 1e-12)

	d = perpendicularDistance(geom.Coord{1, 0}, geom.Coord{0, 0}, geom.Coord{1, 1})
	assert.InDelta(t, math.Sqrt2/2, d, 1e-12)
}

func TestSimplify_PolygonAndMultiPolygon(t *testing.T) {
	hole := []geom.Coord{{0.2, 0.2}, {0.2, 0.8}, {0.8, 0.8}, {0.8, 0.2}, {0.2, 0.2}}
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{wobblySquare(), hole})

	out, err := Simplify(poly, ToleranceLow)
	require.NoError(t, err)
	got := out.(*geom.Polygon)
	require.Equal(t, 2, got.NumLinearRings())
	assert.Equal(t, 6, got.LinearRing(0).NumCoords())
	assert.Equal(t, 5, got.LinearRing(1).NumCoords())

	mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{
		{wobblySquare()},
		{{{10, 10}, {11, 10}, {10, 10}}},
	})
	out, err = Simplify(mp, ToleranceLow)
	require.NoError(t, err)
	gotMP := out.(*geom.MultiPolygon)
	require.Equal(t, 2, gotMP.NumPolygons())
	assert.Equal(t, 6, gotMP.Polygon(0).LinearRing(0).NumCoords())
	assert.Equal(t, 3, gotMP.Polygon(1).LinearRing(0).NumCoords())
}

func TestSimplify_Unsupported(t *testing.T) {
	_, err := Simplify(geom.NewLineString(geom.XY), ToleranceLow)
	assert.Error(t, err)
}

func TestCountPoints(t *testing.T) {
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{wobblySquare()})
	assert.Equal(t, 9, CountPoints(poly))
	assert.Equal(t, 0, CountPoints(nil))
}
