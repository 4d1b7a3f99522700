// Package geometry implements the polygon operations used by the zone dataset
// builder and checker: precision reduction, vertex simplification, vertex
// counting and point-in-polygon testing over go-geom geometries.
package geometry

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// MaxPrecision is the largest number of decimal digits ReducePrecision accepts.
const MaxPrecision = 15

// AccuracyLabel returns the approximate ground distance one unit of the last
// retained decimal digit represents at the equator.
//
//	5 digits ≈ 1 m, 4 digits ≈ 11 m, 3 digits ≈ 111 m
//
// A point closer to a tract boundary than this distance may be classified on
// the wrong side of it.
func AccuracyLabel(precision int) string {
	switch precision {
	case 5:
		return "~1m"
	case 4:
		return "~11m"
	case 3:
		return "~111m"
	case 2:
		return "~1.1km"
	case 1:
		return "~11km"
	default:
		if precision > 5 {
			return "<1m"
		}
		return "~111km"
	}
}

// ReducePrecision returns a copy of g with every coordinate rounded to
// precision decimal digits. The input is not modified.
func ReducePrecision(g geom.T, precision int) (geom.T, error) {
	if precision < 0 || precision > MaxPrecision {
		return nil, eris.Errorf("geometry: precision %d out of range 0..%d", precision, MaxPrecision)
	}

	switch t := g.(type) {
	case *geom.Point:
		return geom.NewPointFlat(t.Layout(), roundFlat(t.FlatCoords(), precision)), nil

	case *geom.LinearRing:
		return geom.NewLinearRingFlat(t.Layout(), roundFlat(t.FlatCoords(), precision)), nil

	case *geom.Polygon:
		return geom.NewPolygonFlat(t.Layout(), roundFlat(t.FlatCoords(), precision), copyEnds(t.Ends())), nil

	case *geom.MultiPolygon:
		endss := make([][]int, len(t.Endss()))
		for i, ends := range t.Endss() {
			endss[i] = copyEnds(ends)
		}
		return geom.NewMultiPolygonFlat(t.Layout(), roundFlat(t.FlatCoords(), precision), endss), nil

	case nil:
		return nil, eris.New("geometry: nil geometry")

	default:
		return nil, eris.Errorf("geometry: unsupported geometry type %T", g)
	}
}

// RoundCoordinate rounds v to precision decimal digits using fixed-point
// decimal formatting, so rounding an already rounded value is a no-op.
func RoundCoordinate(v float64, precision int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', precision, 64), 64)
	if err != nil {
		return v
	}
	return r
}

func roundFlat(flat []float64, precision int) []float64 {
	out := make([]float64, len(flat))
	for i, v := range flat {
		out[i] = RoundCoordinate(v, precision)
	}
	return out
}

func copyEnds(ends []int) []int {
	out := make([]int, len(ends))
	copy(out, ends)
	return out
}
