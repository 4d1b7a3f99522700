package source

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ozinsight/ozcheck/internal/fetcher"
	"github.com/ozinsight/ozcheck/internal/zone"
)

// Column headers of the CDFI designated QOZ workbook.
const (
	colState      = "state"
	colCounty     = "county"
	colTract      = "census tract number"
	colTractType  = "tract type"
	colCountyFIPS = "county fips"
	designatedTag = "CDFI designated QOZ list"
)

// ReadDesignatedTracts reads the CDFI designated tract workbook into
// geometry-free raw features carrying the lookup property names
// (GEOID10, STATE_NAME, STATE, COUNTY, TRACT). Rows without a usable tract
// number are skipped.
func ReadDesignatedTracts(path string) ([]zone.RawFeature, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, eris.Wrapf(err, "source: read designated tracts %s", path)
	}

	hdr, err := fetcher.FindHeaderRow(rows, colState, colCounty, colTract)
	if err != nil {
		return nil, &zone.ParseError{Source: path, Err: err}
	}
	idx := fetcher.HeaderIndex(rows[hdr])
	typeCol, hasType := idx[colTractType]
	countyFIPSCol, hasCountyFIPS := idx[colCountyFIPS]

	var features []zone.RawFeature
	var skipped int
	for _, row := range rows[hdr+1:] {
		county := cell(row, idx[colCounty])
		countyFIPS := county
		if hasCountyFIPS {
			countyFIPS = cell(row, countyFIPSCol)
		}
		id := rowGEOID(cell(row, idx[colTract]), cell(row, idx[colState]), countyFIPS)
		attrs, ok := zone.AttributesFromGEOID(id)
		if !ok {
			skipped++
			continue
		}

		state := cell(row, idx[colState])
		if state == "" || len(state) == 2 {
			state = attrs.State
		}
		props := map[string]any{
			"GEOID10":    id,
			"STATE_NAME": state,
			"STATE":      attrs.StateCode,
			"COUNTY":     county,
			"TRACT":      attrs.Tract,
		}
		if hasType {
			props["TRACT_TYPE"] = cell(row, typeCol)
		}

		f, err := zone.NewRawFeature(props, nil)
		if err != nil {
			return nil, eris.Wrapf(err, "source: designated tract %s", id)
		}
		features = append(features, f)
	}

	if skipped > 0 {
		zap.L().Warn("source: skipped designated tract rows",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return features, nil
}

// DesignatedSource is the raw document source label for workbook input.
func DesignatedSource(path string) string {
	return designatedTag + " (" + path + ")"
}

// rowGEOID returns the 11-digit tract GEOID for a workbook row. The tract
// column holds either a full GEOID (possibly missing its leading zero) or a
// tract number such as "51.01", which is combined with the state's FIPS code
// and a numeric county FIPS code. It returns "" when neither form applies.
func rowGEOID(tract, state, county string) string {
	digits := tract
	if whole, frac, ok := strings.Cut(tract, "."); ok {
		digits = whole + (frac + "00")[:2]
	}
	if !allDigits(digits) {
		return ""
	}
	if len(digits) >= zone.GEOIDLength-1 {
		return zone.NormalizeGEOID(digits)
	}

	stateCode := zone.StateFIPS(state)
	if stateCode == "" && allDigits(state) {
		stateCode = state
	}
	if !allDigits(county) {
		return ""
	}
	return zone.TractGEOID(stateCode, county, digits)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
