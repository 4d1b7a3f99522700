// Package zone defines the Opportunity Zone data model shared by the dataset
// builder and the runtime checker, and the JSON documents that carry it
// between them.
package zone

import (
	"math"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ErrInvalidPoint is returned for coordinates outside the valid lat/lng range.
var ErrInvalidPoint = eris.New("zone: coordinates out of range (lat: -90 to 90, lng: -180 to 180)")

// Attributes are descriptive tract fields used for enrichment only.
type Attributes struct {
	State     string `json:"state,omitempty" yaml:"state,omitempty"`
	StateCode string `json:"stateCode,omitempty" yaml:"state_code,omitempty"`
	County    string `json:"county,omitempty" yaml:"county,omitempty"`
	Tract     string `json:"tract,omitempty" yaml:"tract,omitempty"`
}

// Feature is one designated zone census tract.
type Feature struct {
	ID         string
	Geometry   geom.T
	Attributes Attributes
}

// Dataset is the full set of zone features produced by one build.
type Dataset struct {
	Features    []Feature
	GeneratedAt time.Time
	Metadata    map[string]any
	Skipped     int
}

// Len returns the number of features.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Features)
}

// Point is a query location in degrees.
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// NewPoint validates lat/lng and returns a Point.
func NewPoint(lat, lng float64) (Point, error) {
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Point{}, ErrInvalidPoint
	}
	return Point{Latitude: lat, Longitude: lng}, nil
}

// MatchResult is the outcome of testing a point against a dataset.
type MatchResult struct {
	Feature  *Feature
	IsInZone bool
}

// LookupRecord is the geometry-free tract record stored in a LookupIndex.
type LookupRecord struct {
	IsOZ      bool   `json:"isOZ"`
	State     string `json:"state"`
	StateCode string `json:"stateCode"`
	County    string `json:"county"`
	Tract     string `json:"tract"`
}

// Attributes converts the record to feature attributes.
func (r LookupRecord) Attributes() Attributes {
	return Attributes{State: r.State, StateCode: r.StateCode, County: r.County, Tract: r.Tract}
}

// LookupIndex supports O(1) membership tests by tract identifier.
type LookupIndex struct {
	ByIdentifier map[string]LookupRecord
	IDList       []string
	StateStats   map[string]int
	Skipped      int
}

// NewLookupIndex returns an empty index.
func NewLookupIndex() *LookupIndex {
	return &LookupIndex{
		ByIdentifier: make(map[string]LookupRecord),
		StateStats:   make(map[string]int),
	}
}

// Add records a tract. A repeated identifier overwrites the earlier record but
// is still appended to IDList and counted in StateStats.
func (l *LookupIndex) Add(id string, rec LookupRecord) {
	l.ByIdentifier[id] = rec
	l.IDList = append(l.IDList, id)
	l.StateStats[rec.State]++
}

// Get returns the record for id.
func (l *LookupIndex) Get(id string) (LookupRecord, bool) {
	if l == nil {
		return LookupRecord{}, false
	}
	rec, ok := l.ByIdentifier[id]
	return rec, ok
}

// Contains reports whether id is a designated tract.
func (l *LookupIndex) Contains(id string) bool {
	rec, ok := l.Get(id)
	return ok && rec.IsOZ
}
