package builder

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ozinsight/ozcheck/internal/zone"
)

// ErrMissingInput is returned when a stage's input file does not exist.
var ErrMissingInput = eris.New("builder: input file not found")

// Default artifact file names.
const (
	RawFileName           = "opportunity-zones-raw.geojson"
	CheckerFileName       = "opportunity-zones.geojson"
	LookupFileName        = "oz-geoid-lookup.json"
	MinimalLookupFileName = "oz-geoid-minimal.json"
)

// Prerequisite commands named in missing-input errors.
const (
	FetchCommand = "ozcheck dataset fetch"
	BuildCommand = "ozcheck dataset build"
)

// openInput opens path, mapping a missing file to ErrMissingInput with a hint
// naming the command that produces it.
func openInput(path, prerequisite string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrMissingInput, "%s: run `%s` first", path, prerequisite)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "builder: open %s", path)
	}
	return f, nil
}

// ReadRaw loads a raw document written by the fetch stage.
func ReadRaw(path string) (*zone.RawDocument, int64, error) {
	f, err := openInput(path, FetchCommand)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close() //nolint:errcheck

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	doc, err := zone.ReadRawDocument(f)
	if err != nil {
		return nil, size, &zone.ParseError{Source: path, Err: err}
	}
	return doc, size, nil
}

// BuildChecker runs the optimize stage over raw and wraps the result in a
// checker document with a fresh build id.
func BuildChecker(raw *zone.RawDocument, opts Options, now time.Time) (*zone.CheckerDocument, *Result, error) {
	opt, err := NewOptimizer(opts)
	if err != nil {
		return nil, nil, err
	}
	res := opt.Optimize(raw.Features)

	doc := zone.NewCheckerDocument(zone.CheckerProperties{
		GeneratedAt:  now.UTC(),
		Optimization: opt.Optimization(),
		Accuracy:     opt.Accuracy(),
		BuildID:      uuid.New().String(),
	}, res.Features)

	zap.L().Info("builder: checker document built",
		zap.String("build_id", doc.Properties.BuildID),
		zap.Int("features", len(res.Features)),
		zap.Int("skipped", len(res.Skipped)),
	)
	return doc, res, nil
}

// WriteDocument encodes v to path, creating parent directories. Returns the
// number of bytes written.
func WriteDocument(path string, v any, indent bool) (int64, error) {
	var buf bytes.Buffer
	if err := zone.WriteJSON(&buf, v, indent); err != nil {
		return 0, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, eris.Wrapf(err, "builder: create %s", dir)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return 0, eris.Wrapf(err, "builder: write %s", path)
	}
	return int64(buf.Len()), nil
}

// EmitRaw writes the fetch stage output.
func EmitRaw(path string, features []zone.RawFeature, source string, now time.Time) (int64, error) {
	return WriteDocument(path, zone.NewRawDocument(features, source, now), false)
}

// EmitChecker writes a checker document compactly.
func EmitChecker(path string, doc *zone.CheckerDocument) (int64, error) {
	return WriteDocument(path, doc, false)
}

// LookupSizes holds the byte sizes of the two lookup documents.
type LookupSizes struct {
	Full    int64
	Minimal int64
}

// EmitLookup writes the full (indented) and minimal (compact) lookup
// documents into dir.
func EmitLookup(dir string, idx *zone.LookupIndex, now time.Time) (LookupSizes, error) {
	var sizes LookupSizes
	var err error
	sizes.Full, err = WriteDocument(filepath.Join(dir, LookupFileName), zone.NewLookupDocument(idx, now), true)
	if err != nil {
		return sizes, err
	}
	sizes.Minimal, err = WriteDocument(filepath.Join(dir, MinimalLookupFileName), zone.NewMinimalLookupDocument(idx, now), false)
	return sizes, err
}
