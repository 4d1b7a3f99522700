package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// ErrMalformedRing is returned when a ring cannot take part in a
// point-in-polygon test.
var ErrMalformedRing = eris.New("geometry: malformed ring")

// Contains reports whether the point (lng, lat) lies inside g. A point on the
// outer boundary counts as inside; a point strictly inside a hole does not.
// For multipolygons any member polygon may contain the point.
func Contains(g geom.T, lng, lat float64) (bool, error) {
	pt := geom.Coord{lng, lat}

	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, pt)

	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			ok, err := polygonContains(t.Polygon(i), pt)
			if err != nil {
				return false, eris.Wrapf(err, "geometry: polygon %d", i)
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case nil:
		return false, eris.New("geometry: nil geometry")

	default:
		return false, eris.Errorf("geometry: cannot test containment in %T", g)
	}
}

func polygonContains(p *geom.Polygon, pt geom.Coord) (bool, error) {
	if p.NumLinearRings() == 0 {
		return false, eris.Wrap(ErrMalformedRing, "polygon has no rings")
	}

	for i := 0; i < p.NumLinearRings(); i++ {
		if err := validateRing(p.LinearRing(i)); err != nil {
			return false, eris.Wrapf(err, "ring %d", i)
		}
	}

	if !xy.IsPointInRing(p.Layout(), pt, p.LinearRing(0).FlatCoords()) {
		return false, nil
	}

	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.LocatePointInRing(p.Layout(), pt, p.LinearRing(i).FlatCoords()) == location.Interior {
			return false, nil
		}
	}

	return true, nil
}

// validateRing checks that a ring has at least four positions and is closed.
func validateRing(r *geom.LinearRing) error {
	n := r.NumCoords()
	if n < 4 {
		return eris.Wrapf(ErrMalformedRing, "%d positions", n)
	}
	first, last := r.Coord(0), r.Coord(n-1)
	if first[0] != last[0] || first[1] != last[1] {
		return eris.Wrap(ErrMalformedRing, "ring is not closed")
	}
	return nil
}
