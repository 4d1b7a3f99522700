package source

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

// clockwise square from (x,y) with side d
func cwSquare(x, y, d float64) []shp.Point {
	return []shp.Point{{X: x, Y: y}, {X: x, Y: y + d}, {X: x + d, Y: y + d}, {X: x + d, Y: y}, {X: x, Y: y}}
}

func ccwSquare(x, y, d float64) []shp.Point {
	return []shp.Point{{X: x, Y: y}, {X: x + d, Y: y}, {X: x + d, Y: y + d}, {X: x, Y: y + d}, {X: x, Y: y}}
}

func writeTestShapefile(t *testing.T, dir string, parts ...[][]shp.Point) string {
	t.Helper()
	path := filepath.Join(dir, "tracts.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("GEOID", 11), shp.StringField("NAME", 20)}))

	for i, p := range parts {
		poly := shp.Polygon(*shp.NewPolyLine(p))
		row := int(w.Write(&poly))
		require.NoError(t, w.WriteAttribute(row, 0, []string{"12057005100", "06037206300"}[i%2]))
		require.NoError(t, w.WriteAttribute(row, 1, "Tract"))
	}
	w.Close()
	return path
}

func TestReadShapefile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestShapefile(t, dir,
		[][]shp.Point{cwSquare(0, 0, 10), ccwSquare(2, 2, 2), cwSquare(20, 20, 5)},
		[][]shp.Point{cwSquare(-5, -5, 1)},
	)

	features, err := ReadShapefile(path)
	require.NoError(t, err)
	require.Len(t, features, 2)

	assert.Equal(t, "12057005100", features[0].Properties["GEOID"])
	assert.Equal(t, "Tract", features[0].Properties["NAME"])

	g, err := features[0].DecodeGeometry()
	require.NoError(t, err)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings(), "hole attached to preceding outer ring")
	assert.Equal(t, 1, mp.Polygon(1).NumLinearRings())

	g, err = features[1].DecodeGeometry()
	require.NoError(t, err)
	assert.Equal(t, 1, g.(*geom.MultiPolygon).NumPolygons())
}

func TestReadShapefile_LeadingHoleBecomesOuter(t *testing.T) {
	path := writeTestShapefile(t, t.TempDir(), [][]shp.Point{ccwSquare(0, 0, 1)})

	features, err := ReadShapefile(path)
	require.NoError(t, err)
	require.Len(t, features, 1)
	g, err := features[0].DecodeGeometry()
	require.NoError(t, err)
	assert.Equal(t, 1, g.(*geom.MultiPolygon).NumPolygons())
}

func TestReadShapefile_Zip(t *testing.T) {
	src := t.TempDir()
	writeTestShapefile(t, src, [][]shp.Point{cwSquare(0, 0, 1)})

	zipPath := filepath.Join(t.TempDir(), "tracts.zip")
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		w, err := zw.Create("tracts" + ext)
		require.NoError(t, err)
		in, err := os.Open(filepath.Join(src, "tracts"+ext))
		require.NoError(t, err)
		_, err = io.Copy(w, in)
		require.NoError(t, err)
		require.NoError(t, in.Close())
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	features, err := ReadShapefile(zipPath)
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "12057005100", features[0].Properties["GEOID"])
}

func TestReadShapefile_Missing(t *testing.T) {
	_, err := ReadShapefile(filepath.Join(t.TempDir(), "nope.shp"))
	require.Error(t, err)
}
