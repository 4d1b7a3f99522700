package geometry

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Simplification tolerances in degrees.
const (
	ToleranceLow    = 0.0001
	ToleranceMedium = 0.0005
	ToleranceHigh   = 0.001
)

// minRingPoints is the smallest ring SimplifyRing will touch.
const minRingPoints = 3

// Simplify returns a copy of g with each ring passed through SimplifyRing.
// Points are returned unchanged.
func Simplify(g geom.T, tolerance float64) (geom.T, error) {
	switch t := g.(type) {
	case *geom.Point:
		return geom.NewPointFlat(t.Layout(), append([]float64(nil), t.FlatCoords()...)), nil

	case *geom.LinearRing:
		return geom.NewLinearRing(t.Layout()).SetCoords(SimplifyRing(t.Coords(), tolerance))

	case *geom.Polygon:
		return geom.NewPolygon(t.Layout()).SetCoords(simplifyRings(t.Coords(), tolerance))

	case *geom.MultiPolygon:
		polys := t.Coords()
		out := make([][][]geom.Coord, len(polys))
		for i, rings := range polys {
			out[i] = simplifyRings(rings, tolerance)
		}
		return geom.NewMultiPolygon(t.Layout()).SetCoords(out)

	case nil:
		return nil, eris.New("geometry: nil geometry")

	default:
		return nil, eris.Errorf("geometry: unsupported geometry type %T", g)
	}
}

func simplifyRings(rings [][]geom.Coord, tolerance float64) [][]geom.Coord {
	out := make([][]geom.Coord, len(rings))
	for i, ring := range rings {
		out[i] = SimplifyRing(ring, tolerance)
	}
	return out
}

// SimplifyRing drops interior points that lie within tolerance of the line
// through their immediate neighbours. Neighbours are always taken from the
// input sequence, not from the points already kept, so this is a single local
// pass rather than Douglas-Peucker. The first and last points are always kept
// and rings of three points or fewer are returned as is.
func SimplifyRing(ring []geom.Coord, tolerance float64) []geom.Coord {
	if len(ring) <= minRingPoints {
		return ring
	}

	out := make([]geom.Coord, 0, len(ring))
	out = append(out, ring[0])

	for i := 1; i < len(ring)-1; i++ {
		if perpendicularDistance(ring[i], ring[i-1], ring[i+1]) > tolerance {
			out = append(out, ring[i])
		}
	}

	return append(out, ring[len(ring)-1])
}

// perpendicularDistance is the distance from curr to the infinite line through
// prev and next, treating degrees as planar units. Coincident prev and next
// yield NaN or +Inf, which the caller's comparison drops or keeps respectively.
func perpendicularDistance(curr, prev, next geom.Coord) float64 {
	dx := next[0] - prev[0]
	dy := next[1] - prev[1]
	num := math.Abs(dy*curr[0] - dx*curr[1] + next[0]*prev[1] - next[1]*prev[0])
	return num / math.Sqrt(dy*dy+dx*dx)
}

// CountPoints returns the number of coordinate tuples in g.
func CountPoints(g geom.T) int {
	if g == nil || g.Stride() == 0 {
		return 0
	}
	return len(g.FlatCoords()) / g.Stride()
}
