package zone

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

const featureCollection = "FeatureCollection"

// Document descriptions written into artifact metadata.
const (
	RawDescription           = "Raw US Opportunity Zones data with all individual tract information"
	CheckerDescription       = "Optimized US Opportunity Zones for point-in-polygon checking"
	CheckerPurpose           = "Point-in-polygon checking for the zone checker"
	LookupDescription        = "GEOID lookup table for US Opportunity Zones"
	MinimalLookupDescription = "Minimal GEOID lookup for US Opportunity Zones (GEOIDs only)"
)

// RawFeature is an upstream feature preserved verbatim. The geometry is kept
// as raw GeoJSON so unknown members survive a fetch/write round trip.
type RawFeature struct {
	Type       string          `json:"type"`
	ID         any             `json:"id,omitempty"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// HasGeometry reports whether the feature carries a non-null geometry member.
func (f RawFeature) HasGeometry() bool {
	g := bytes.TrimSpace(f.Geometry)
	return len(g) > 0 && !bytes.Equal(g, []byte("null"))
}

// DecodeGeometry parses the feature geometry.
func (f RawFeature) DecodeGeometry() (geom.T, error) {
	if !f.HasGeometry() {
		return nil, eris.New("zone: feature has no geometry")
	}
	var g geom.T
	if err := geojson.Unmarshal(f.Geometry, &g); err != nil {
		return nil, eris.Wrap(err, "zone: decode geometry")
	}
	return g, nil
}

// NewRawFeature encodes g as GeoJSON and wraps it with props. A nil g gives a
// feature with a null geometry.
func NewRawFeature(props map[string]any, g geom.T) (RawFeature, error) {
	f := RawFeature{Type: "Feature", Properties: props, Geometry: json.RawMessage("null")}
	if g == nil {
		return f, nil
	}
	data, err := geojson.Marshal(g)
	if err != nil {
		return RawFeature{}, eris.Wrap(err, "zone: encode geometry")
	}
	f.Geometry = data
	return f, nil
}

// RawProperties is the metadata block of a raw document.
type RawProperties struct {
	GeneratedAt   time.Time `json:"generatedAt"`
	TotalFeatures int       `json:"totalFeatures"`
	Description   string    `json:"description"`
	Source        string    `json:"source,omitempty"`
}

// RawDocument is the fetch stage output.
type RawDocument struct {
	Type       string        `json:"type"`
	Properties RawProperties `json:"properties"`
	Features   []RawFeature  `json:"features"`
}

// NewRawDocument wraps features with generated metadata.
func NewRawDocument(features []RawFeature, source string, generatedAt time.Time) *RawDocument {
	return &RawDocument{
		Type: featureCollection,
		Properties: RawProperties{
			GeneratedAt:   generatedAt.UTC(),
			TotalFeatures: len(features),
			Description:   RawDescription,
			Source:        source,
		},
		Features: features,
	}
}

// ReadRawDocument decodes a raw document. A missing features array is an
// error; an empty one is not.
func ReadRawDocument(r io.Reader) (*RawDocument, error) {
	var doc struct {
		Type       string          `json:"type"`
		Properties json.RawMessage `json:"properties"`
		Features   *[]RawFeature   `json:"features"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "zone: decode raw document")
	}
	if doc.Features == nil {
		return nil, eris.New("zone: raw document has no features array")
	}

	out := &RawDocument{Type: doc.Type, Features: *doc.Features}
	if len(doc.Properties) > 0 {
		// Upstream pages carry arbitrary properties; only our own keys matter.
		_ = json.Unmarshal(doc.Properties, &out.Properties)
	}
	return out, nil
}

// Optimization describes how a checker document was produced.
type Optimization struct {
	Precision      string `json:"precision"`
	Simplification string `json:"simplification"`
	Properties     string `json:"properties"`
}

// CheckerProperties is the metadata block of a checker document.
type CheckerProperties struct {
	GeneratedAt   time.Time    `json:"generatedAt"`
	TotalFeatures int          `json:"totalFeatures"`
	Description   string       `json:"description"`
	Optimization  Optimization `json:"optimization"`
	Accuracy      string       `json:"accuracy"`
	Purpose       string       `json:"purpose"`
	BuildID       string       `json:"buildId,omitempty"`
}

// CheckerFeatureProperties holds the single property retained per feature.
type CheckerFeatureProperties struct {
	GEOID string `json:"geoid"`
}

// CheckerFeature is one feature of the checker document.
type CheckerFeature struct {
	Type       string                   `json:"type"`
	Properties CheckerFeatureProperties `json:"properties"`
	Geometry   json.RawMessage          `json:"geometry"`
}

// NewCheckerFeature encodes g under identifier id.
func NewCheckerFeature(id string, g geom.T) (CheckerFeature, error) {
	data, err := geojson.Marshal(g)
	if err != nil {
		return CheckerFeature{}, eris.Wrapf(err, "zone: encode geometry for %s", id)
	}
	return CheckerFeature{
		Type:       "Feature",
		Properties: CheckerFeatureProperties{GEOID: id},
		Geometry:   data,
	}, nil
}

// CheckerDocument is the geometry artifact loaded by the runtime checker.
type CheckerDocument struct {
	Type       string            `json:"type"`
	Properties CheckerProperties `json:"properties"`
	Features   []CheckerFeature  `json:"features"`
}

// NewCheckerDocument wraps features with props, filling in the collection
// type and feature count.
func NewCheckerDocument(props CheckerProperties, features []CheckerFeature) *CheckerDocument {
	props.TotalFeatures = len(features)
	if props.Description == "" {
		props.Description = CheckerDescription
	}
	if props.Purpose == "" {
		props.Purpose = CheckerPurpose
	}
	return &CheckerDocument{Type: featureCollection, Properties: props, Features: features}
}

// ReadDataset decodes a checker document into a Dataset. Features without a
// usable polygonal geometry are skipped and counted in Dataset.Skipped.
func ReadDataset(r io.Reader) (*Dataset, error) {
	var doc struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Features   *[]struct {
			Properties map[string]any  `json:"properties"`
			Geometry   json.RawMessage `json:"geometry"`
		} `json:"features"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "zone: decode checker document")
	}
	if doc.Features == nil {
		return nil, eris.New("zone: checker document has no features array")
	}

	ds := &Dataset{
		Features: make([]Feature, 0, len(*doc.Features)),
		Metadata: doc.Properties,
	}
	if s, ok := doc.Properties["generatedAt"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			ds.GeneratedAt = ts
		}
	}

	policy := NewIdentifierPolicy(nil)
	for i, f := range *doc.Features {
		raw := RawFeature{Properties: f.Properties, Geometry: f.Geometry}
		g, err := raw.DecodeGeometry()
		if err != nil || !IsPolygonal(g) {
			ds.Skipped++
			continue
		}
		id := policy.Resolve(f.Properties, i)
		attrs, _ := AttributesFromGEOID(NormalizeGEOID(id))
		ds.Features = append(ds.Features, Feature{ID: id, Geometry: g, Attributes: attrs})
	}
	return ds, nil
}

// IsPolygonal reports whether g is a non-empty polygon or multipolygon.
func IsPolygonal(g geom.T) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return t.NumLinearRings() > 0
	case *geom.MultiPolygon:
		return t.NumPolygons() > 0
	default:
		return false
	}
}

// LookupUsage documents how consumers are expected to query a lookup document.
type LookupUsage struct {
	Hashmap string `json:"hashmap"`
	Array   string `json:"array"`
	Example string `json:"example"`
}

// LookupMetadata is the metadata block of the full lookup document.
type LookupMetadata struct {
	GeneratedAt     time.Time   `json:"generatedAt"`
	TotalOZTracts   int         `json:"totalOZTracts"`
	SkippedFeatures int         `json:"skippedFeatures"`
	Description     string      `json:"description"`
	Usage           LookupUsage `json:"usage"`
}

// LookupDocument is the full geometry-free lookup artifact.
type LookupDocument struct {
	Metadata    LookupMetadata          `json:"metadata"`
	GeoidLookup map[string]LookupRecord `json:"geoidLookup"`
	GeoidArray  []string                `json:"geoidArray"`
	StateStats  map[string]int          `json:"stateStats"`
}

// MinimalLookupMetadata is the metadata block of the minimal lookup document.
type MinimalLookupMetadata struct {
	GeneratedAt   time.Time `json:"generatedAt"`
	TotalOZTracts int       `json:"totalOZTracts"`
	Description   string    `json:"description"`
}

// MinimalLookupDocument carries only the identifier array.
type MinimalLookupDocument struct {
	Metadata MinimalLookupMetadata `json:"metadata"`
	Geoids   []string              `json:"geoids"`
}

// NewLookupDocument renders idx as the full lookup document.
func NewLookupDocument(idx *LookupIndex, generatedAt time.Time) *LookupDocument {
	example := "51019050100"
	if len(idx.IDList) > 0 {
		example = idx.IDList[0]
	}
	return &LookupDocument{
		Metadata: LookupMetadata{
			GeneratedAt:     generatedAt.UTC(),
			TotalOZTracts:   len(idx.IDList),
			SkippedFeatures: idx.Skipped,
			Description:     LookupDescription,
			Usage: LookupUsage{
				Hashmap: "Use geoidLookup[geoid] for O(1) lookup",
				Array:   "Build a set from geoidArray for set-based lookup",
				Example: "Check if \"" + example + "\" is an OZ: geoidLookup[\"" + example + "\"].isOZ",
			},
		},
		GeoidLookup: idx.ByIdentifier,
		GeoidArray:  nonNil(idx.IDList),
		StateStats:  idx.StateStats,
	}
}

// NewMinimalLookupDocument renders idx as the minimal lookup document.
func NewMinimalLookupDocument(idx *LookupIndex, generatedAt time.Time) *MinimalLookupDocument {
	return &MinimalLookupDocument{
		Metadata: MinimalLookupMetadata{
			GeneratedAt:   generatedAt.UTC(),
			TotalOZTracts: len(idx.IDList),
			Description:   MinimalLookupDescription,
		},
		Geoids: nonNil(idx.IDList),
	}
}

// ReadLookupIndex decodes a full lookup document back into an index.
func ReadLookupIndex(r io.Reader) (*LookupIndex, error) {
	var doc LookupDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "zone: decode lookup document")
	}
	if doc.GeoidLookup == nil {
		return nil, eris.New("zone: lookup document has no geoidLookup")
	}

	idx := &LookupIndex{
		ByIdentifier: doc.GeoidLookup,
		IDList:       doc.GeoidArray,
		StateStats:   doc.StateStats,
		Skipped:      doc.Metadata.SkippedFeatures,
	}
	if idx.StateStats == nil {
		idx.StateStats = make(map[string]int)
	}
	return idx, nil
}

// WriteJSON encodes v to w, indented with two spaces when indent is set.
func WriteJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "zone: encode json")
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
