package source

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/ozinsight/ozcheck/internal/fetcher"
	"github.com/ozinsight/ozcheck/internal/zone"
)

// ReadShapefile reads polygon records from a .shp file, or from the first
// .shp inside a .zip archive, as raw features. DBF attributes become the
// feature properties. Records without polygon geometry are skipped.
func ReadShapefile(path string) ([]zone.RawFeature, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		dir, err := os.MkdirTemp("", "ozcheck-shp-")
		if err != nil {
			return nil, eris.Wrap(err, "source: create temp dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		files, err := fetcher.ExtractZIP(path, dir)
		if err != nil {
			return nil, eris.Wrapf(err, "source: extract %s", path)
		}
		shpPath, err := fetcher.FindByExt(files, ".shp")
		if err != nil {
			return nil, eris.Wrapf(err, "source: %s", filepath.Base(path))
		}
		path = shpPath
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var features []zone.RawFeature
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()

		props := make(map[string]any, len(names))
		for i, name := range names {
			props[name] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		}

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}

		f, err := zone.NewRawFeature(props, mp)
		if err != nil {
			zap.L().Warn("source: skipping shapefile record", zap.Int("record", n), zap.Error(err))
			skipped++
			continue
		}
		features = append(features, f)
	}
	if err := reader.Err(); err != nil {
		return features, eris.Wrapf(err, "source: read shapefile %s", path)
	}

	if skipped > 0 {
		zap.L().Warn("source: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return features, nil
}

// polygonToMultiPolygon groups shapefile parts into polygons. Clockwise parts
// start a new polygon; counter-clockwise parts are holes of the preceding
// one. A hole with no preceding outer ring is taken as an outer ring.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon
	flush := func() {
		if current != nil && current.NumLinearRings() > 0 {
			if err := mp.Push(current); err != nil {
				zap.L().Debug("source: skipping malformed polygon", zap.Error(err))
			}
		}
	}

	for i := range int(p.NumParts) {
		start := int(p.Parts[i])
		end := len(p.Points)
		if i+1 < int(p.NumParts) {
			end = int(p.Parts[i+1])
		}
		if end-start < 4 {
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for _, pt := range p.Points[start:end] {
			flat = append(flat, pt.X, pt.Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if current == nil || !xy.IsRingCounterClockwise(geom.XY, flat) {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("source: skipping malformed ring", zap.Int("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
