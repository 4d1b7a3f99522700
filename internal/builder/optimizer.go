// Package builder turns raw zone features into the artifacts consumed at
// runtime: the optimized checker document, the lookup documents and a size
// and complexity report.
package builder

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ozinsight/ozcheck/internal/geometry"
	"github.com/ozinsight/ozcheck/internal/zone"
)

// Tolerance tier names accepted by ParseTolerance.
const (
	TierLow    = "low"
	TierMedium = "med"
	TierHigh   = "high"
)

// ParseTolerance maps a tier name to a simplification tolerance in degrees.
func ParseTolerance(tier string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "", TierLow:
		return geometry.ToleranceLow, nil
	case TierMedium, "medium":
		return geometry.ToleranceMedium, nil
	case TierHigh:
		return geometry.ToleranceHigh, nil
	default:
		return 0, eris.Errorf("builder: unknown tolerance %q (want low, med or high)", tier)
	}
}

// Options controls the optimize stage.
type Options struct {
	Precision        int
	Simplify         bool
	Tolerance        string
	IdentifierFields []string
}

// DefaultOptions returns precision 5, simplification on, low tolerance.
func DefaultOptions() Options {
	return Options{Precision: 5, Simplify: true, Tolerance: TierLow}
}

// AggressiveOptions returns the smallest-output preset: precision 3 with
// high-tolerance simplification.
func AggressiveOptions() Options {
	return Options{Precision: 3, Simplify: true, Tolerance: TierHigh}
}

// Optimizer simplifies and rounds raw features into checker features.
type Optimizer struct {
	opts      Options
	tolerance float64
	policy    zone.IdentifierPolicy
	log       *zap.Logger
}

// NewOptimizer validates opts and returns an Optimizer.
func NewOptimizer(opts Options) (*Optimizer, error) {
	if opts.Precision < 0 || opts.Precision > geometry.MaxPrecision {
		return nil, eris.Errorf("builder: precision %d out of range 0..%d", opts.Precision, geometry.MaxPrecision)
	}
	tol, err := ParseTolerance(opts.Tolerance)
	if err != nil {
		return nil, err
	}
	return &Optimizer{
		opts:      opts,
		tolerance: tol,
		policy:    zone.NewIdentifierPolicy(opts.IdentifierFields),
		log:       zap.L().With(zap.String("component", "builder.optimize")),
	}, nil
}

// Result is the output of an optimize run.
type Result struct {
	Features     []zone.CheckerFeature
	Skipped      []*zone.ValidationError
	Placeholders int
	InputPoints  int
	OutputPoints int
	// Sizes in bytes of the encoded GeoJSON geometries.
	InputGeometryBytes  int
	OutputGeometryBytes int
}

// Optimize processes features in order. Features that cannot be processed
// are skipped, logged and recorded in Result.Skipped.
func (o *Optimizer) Optimize(features []zone.RawFeature) *Result {
	res := &Result{Features: make([]zone.CheckerFeature, 0, len(features))}

	for i, f := range features {
		out, points, ve := o.optimizeOne(i, f, len(res.Features))
		if ve != nil {
			o.log.Warn("skipping feature", zap.Int("index", i), zap.String("reason", ve.Reason))
			res.Skipped = append(res.Skipped, ve)
			continue
		}
		if zone.IsPlaceholder(out.Properties.GEOID) {
			res.Placeholders++
		}
		res.Features = append(res.Features, out)
		res.InputPoints += points[0]
		res.OutputPoints += points[1]
		res.InputGeometryBytes += len(f.Geometry)
		res.OutputGeometryBytes += len(out.Geometry)
	}
	return res
}

func (o *Optimizer) optimizeOne(i int, f zone.RawFeature, processed int) (zone.CheckerFeature, [2]int, *zone.ValidationError) {
	var pts [2]int
	if !f.HasGeometry() {
		return zone.CheckerFeature{}, pts, &zone.ValidationError{Index: i, Reason: "missing geometry"}
	}
	if f.Properties == nil {
		return zone.CheckerFeature{}, pts, &zone.ValidationError{Index: i, Reason: "missing properties"}
	}

	id := o.policy.Resolve(f.Properties, processed)
	g, err := f.DecodeGeometry()
	if err != nil {
		return zone.CheckerFeature{}, pts, &zone.ValidationError{Index: i, ID: id, Reason: err.Error()}
	}
	if !zone.IsPolygonal(g) {
		return zone.CheckerFeature{}, pts, &zone.ValidationError{Index: i, ID: id, Reason: fmt.Sprintf("unsupported geometry %T", g)}
	}
	pts[0] = geometry.CountPoints(g)

	if o.opts.Simplify {
		if g, err = geometry.Simplify(g, o.tolerance); err != nil {
			return zone.CheckerFeature{}, pts, &zone.ValidationError{Index: i, ID: id, Reason: err.Error()}
		}
	}
	if g, err = geometry.ReducePrecision(g, o.opts.Precision); err != nil {
		return zone.CheckerFeature{}, pts, &zone.ValidationError{Index: i, ID: id, Reason: err.Error()}
	}
	pts[1] = geometry.CountPoints(g)

	out, err := zone.NewCheckerFeature(id, g)
	if err != nil {
		return zone.CheckerFeature{}, pts, &zone.ValidationError{Index: i, ID: id, Reason: err.Error()}
	}
	return out, pts, nil
}

// Optimization describes the options in checker document form.
func (o *Optimizer) Optimization() zone.Optimization {
	simpl := "none"
	if o.opts.Simplify {
		simpl = fmt.Sprintf("%g° tolerance", o.tolerance)
	}
	return zone.Optimization{
		Precision:      fmt.Sprintf("%d decimals", o.opts.Precision),
		Simplification: simpl,
		Properties:     "GEOID only",
	}
}

// Accuracy returns the accuracy label for the configured precision.
func (o *Optimizer) Accuracy() string {
	return geometry.AccuracyLabel(o.opts.Precision)
}
