package builder

import (
	"cmp"
	"io"
	"os"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/ozinsight/ozcheck/internal/zone"
)

// StateCount is a per-state feature count.
type StateCount struct {
	State string `yaml:"state"`
	Count int    `yaml:"count"`
}

// Report summarizes one build stage.
type Report struct {
	Stage       string    `yaml:"stage"`
	BuildID     string    `yaml:"build_id,omitempty"`
	GeneratedAt time.Time `yaml:"generated_at"`

	InputFeatures   int `yaml:"input_features"`
	OutputFeatures  int `yaml:"output_features"`
	SkippedFeatures int `yaml:"skipped_features"`
	PlaceholderIDs  int `yaml:"placeholder_ids,omitempty"`

	InputBytes  int64 `yaml:"input_bytes"`
	OutputBytes int64 `yaml:"output_bytes"`
	// MinimalBytes is the minimal lookup document size (lookup stage only).
	MinimalBytes int64 `yaml:"minimal_bytes,omitempty"`

	InputVertices  int `yaml:"input_vertices,omitempty"`
	OutputVertices int `yaml:"output_vertices,omitempty"`

	Optimization *zone.Optimization `yaml:"optimization,omitempty"`
	Accuracy     string             `yaml:"accuracy,omitempty"`

	States []StateCount `yaml:"states"`
}

// NewCheckerReport summarizes an optimize run. States are derived from the
// GEOID of each emitted feature.
func NewCheckerReport(doc *zone.CheckerDocument, res *Result, inputFeatures int, inputBytes, outputBytes int64) *Report {
	stats := make(map[string]int)
	for _, f := range doc.Features {
		attrs, ok := zone.AttributesFromGEOID(zone.NormalizeGEOID(f.Properties.GEOID))
		if !ok || attrs.State == "" {
			stats["Unknown"]++
			continue
		}
		stats[attrs.State]++
	}
	opt := doc.Properties.Optimization
	return &Report{
		Stage:           "build",
		BuildID:         doc.Properties.BuildID,
		GeneratedAt:     doc.Properties.GeneratedAt,
		InputFeatures:   inputFeatures,
		OutputFeatures:  len(doc.Features),
		SkippedFeatures: len(res.Skipped),
		PlaceholderIDs:  res.Placeholders,
		InputBytes:      inputBytes,
		OutputBytes:     outputBytes,
		InputVertices:   res.InputPoints,
		OutputVertices:  res.OutputPoints,
		Optimization:    &opt,
		Accuracy:        doc.Properties.Accuracy,
		States:          sortStates(stats),
	}
}

// NewLookupReport summarizes a lookup run.
func NewLookupReport(idx *zone.LookupIndex, inputFeatures int, inputBytes int64, sizes LookupSizes, now time.Time) *Report {
	return &Report{
		Stage:           "lookup",
		GeneratedAt:     now.UTC(),
		InputFeatures:   inputFeatures,
		OutputFeatures:  len(idx.IDList),
		SkippedFeatures: idx.Skipped,
		InputBytes:      inputBytes,
		OutputBytes:     sizes.Full,
		MinimalBytes:    sizes.Minimal,
		States:          sortStates(idx.StateStats),
	}
}

// sortStates orders counts descending, ties by name.
func sortStates(stats map[string]int) []StateCount {
	out := make([]StateCount, 0, len(stats))
	for s, n := range stats {
		out = append(out, StateCount{State: s, Count: n})
	}
	slices.SortFunc(out, func(a, b StateCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.State, b.State)
	})
	return out
}

// SizeReduction returns the output size saving as a percentage of input.
func (r *Report) SizeReduction() float64 {
	return percentSaved(float64(r.InputBytes), float64(r.OutputBytes))
}

// ComplexityReduction returns the vertex saving as a percentage of input.
func (r *Report) ComplexityReduction() float64 {
	return percentSaved(float64(r.InputVertices), float64(r.OutputVertices))
}

func percentSaved(in, out float64) float64 {
	if in <= 0 {
		return 0
	}
	return (1 - out/in) * 100
}

// TopStates returns at most n states by count.
func (r *Report) TopStates(n int) []StateCount {
	if n < 0 || n > len(r.States) {
		n = len(r.States)
	}
	return r.States[:n]
}

// Print renders the report for a terminal with grouped thousands.
func (r *Report) Print(w io.Writer) {
	p := message.NewPrinter(language.English)

	switch r.Stage {
	case "lookup":
		p.Fprintf(w, "Lookup tables generated\n")
		p.Fprintf(w, "  OZ tracts:        %d\n", r.OutputFeatures)
		p.Fprintf(w, "  Skipped features: %d\n", r.SkippedFeatures)
		p.Fprintf(w, "  Full lookup:      %.1f KB\n", float64(r.OutputBytes)/1024)
		p.Fprintf(w, "  Minimal lookup:   %.1f KB\n", float64(r.MinimalBytes)/1024)
	default:
		p.Fprintf(w, "Checker document built (%s)\n", r.BuildID)
		p.Fprintf(w, "  Original size:    %.2f MB\n", float64(r.InputBytes)/(1024*1024))
		p.Fprintf(w, "  Optimized size:   %.2f MB\n", float64(r.OutputBytes)/(1024*1024))
		p.Fprintf(w, "  Size reduction:   %.1f%%\n", r.SizeReduction())
		p.Fprintf(w, "  Original points:  %d\n", r.InputVertices)
		p.Fprintf(w, "  Optimized points: %d\n", r.OutputVertices)
		p.Fprintf(w, "  Complexity cut:   %.1f%%\n", r.ComplexityReduction())
		p.Fprintf(w, "  Features:         %d of %d (%d skipped)\n", r.OutputFeatures, r.InputFeatures, r.SkippedFeatures)
		if r.PlaceholderIDs > 0 {
			p.Fprintf(w, "  Placeholder ids:  %d\n", r.PlaceholderIDs)
		}
		p.Fprintf(w, "  Accuracy:         %s\n", r.Accuracy)
	}

	if top := r.TopStates(10); len(top) > 0 {
		p.Fprintf(w, "Top states:\n")
		for _, s := range top {
			p.Fprintf(w, "  %-22s %d\n", s.State, s.Count)
		}
	}
}

// WriteYAML writes the report to path.
func (r *Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "builder: encode report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "builder: write report %s", path)
	}
	return nil
}
