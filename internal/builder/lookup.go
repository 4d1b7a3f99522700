package builder

import (
	"go.uber.org/zap"

	"github.com/ozinsight/ozcheck/internal/zone"
)

// BuildLookup indexes raw features by tract identifier, trying fields in
// order (zone.LookupIdentifierFields when empty). Geometry is ignored.
// Features without an identifier are skipped and counted.
func BuildLookup(features []zone.RawFeature, fields []string) *zone.LookupIndex {
	if len(fields) == 0 {
		fields = zone.LookupIdentifierFields
	}
	policy := zone.NewIdentifierPolicy(fields)
	log := zap.L().With(zap.String("component", "builder.lookup"))

	idx := zone.NewLookupIndex()
	for i, f := range features {
		id, _, ok := policy.Lookup(f.Properties)
		if !ok {
			log.Debug("skipping feature without identifier", zap.Int("index", i))
			idx.Skipped++
			continue
		}
		idx.Add(id, lookupRecord(id, f.Properties))
	}

	if idx.Skipped > 0 {
		log.Warn("skipped features without identifier", zap.Int("skipped", idx.Skipped))
	}
	return idx
}

// lookupRecord reads STATE_NAME, STATE, COUNTY and TRACT, filling gaps from
// the GEOID structure.
func lookupRecord(id string, props map[string]any) zone.LookupRecord {
	rec := zone.LookupRecord{
		IsOZ:      true,
		State:     zone.PropertyString(props["STATE_NAME"]),
		StateCode: zone.PropertyString(props["STATE"]),
		County:    zone.PropertyString(props["COUNTY"]),
		Tract:     zone.PropertyString(props["TRACT"]),
	}

	attrs, ok := zone.AttributesFromGEOID(zone.NormalizeGEOID(id))
	if !ok {
		return rec
	}
	if rec.State == "" {
		rec.State = attrs.State
	}
	if rec.StateCode == "" {
		rec.StateCode = attrs.StateCode
	}
	if rec.County == "" {
		rec.County = attrs.County
	}
	if rec.Tract == "" {
		rec.Tract = attrs.Tract
	}
	return rec
}
