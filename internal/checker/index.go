package checker

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"go.uber.org/zap"

	"github.com/ozinsight/ozcheck/internal/zone"
)

const (
	// minExtent pads degenerate bounds so every rectangle has positive size.
	minExtent = 1e-9
	// queryTolerance is the half-width of the rectangle used for point queries.
	queryTolerance = 1e-9
)

type indexedFeature struct {
	pos  int
	rect rtreego.Rect
}

func (f *indexedFeature) Bounds() rtreego.Rect { return f.rect }

// spatialIndex is a bounding-box pre-filter over dataset features.
type spatialIndex struct {
	tree *rtreego.Rtree
	// unindexed features are always returned as candidates.
	unindexed []int
}

func newSpatialIndex(features []zone.Feature) *spatialIndex {
	idx := &spatialIndex{}
	objs := make([]rtreego.Spatial, 0, len(features))
	for i := range features {
		rect, err := featureRect(features[i])
		if err != nil {
			zap.L().Debug("checker: feature not indexed", zap.String("id", features[i].ID), zap.Error(err))
			idx.unindexed = append(idx.unindexed, i)
			continue
		}
		objs = append(objs, &indexedFeature{pos: i, rect: rect})
	}
	idx.tree = rtreego.NewTree(2, 25, 50, objs...)
	return idx
}

func featureRect(f zone.Feature) (rtreego.Rect, error) {
	if f.Geometry == nil {
		return rtreego.Rect{}, errNoBounds
	}
	b := f.Geometry.Bounds()
	if b == nil || b.IsEmpty() {
		return rtreego.Rect{}, errNoBounds
	}
	minX, minY := b.Min(0), b.Min(1)
	w := math.Max(b.Max(0)-minX, minExtent)
	h := math.Max(b.Max(1)-minY, minExtent)
	return rtreego.NewRect(rtreego.Point{minX, minY}, []float64{w, h})
}

// candidates returns the positions of features whose bounds contain pt, in
// ascending order so the first match equals that of a linear scan.
func (s *spatialIndex) candidates(pt zone.Point) []int {
	hits := s.tree.SearchIntersect(rtreego.Point{pt.Longitude, pt.Latitude}.ToRect(queryTolerance))
	out := make([]int, 0, len(hits)+len(s.unindexed))
	for _, h := range hits {
		out = append(out, h.(*indexedFeature).pos)
	}
	out = append(out, s.unindexed...)
	sort.Ints(out)
	return out
}

func (s *spatialIndex) size() int {
	return s.tree.Size()
}
