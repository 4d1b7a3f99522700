// Package checker answers whether a coordinate or street address lies inside
// a designated Opportunity Zone. A Checker loads the checker geometry
// document once and serves point-in-polygon queries from memory.
package checker

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ozinsight/ozcheck/internal/geometry"
	"github.com/ozinsight/ozcheck/internal/zone"
	"github.com/ozinsight/ozcheck/pkg/geocode"
)

// DefaultGeocodeTimeout bounds a single address resolution.
const DefaultGeocodeTimeout = 10 * time.Second

var errNoBounds = eris.New("checker: geometry has no bounds")

// State is the load state of a Checker.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateLoadFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateLoadFailed:
		return "load_failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a successful check.
type Result struct {
	Success        bool             `json:"success"`
	IsInZone       bool             `json:"isOpportunityZone"`
	Identifier     string           `json:"geoid,omitempty"`
	Attributes     *zone.Attributes `json:"censusData,omitempty"`
	Point          zone.Point       `json:"coordinates"`
	Address        string           `json:"address,omitempty"`
	MatchedAddress string           `json:"matchedAddress,omitempty"`
	GeocodeSource  string           `json:"geocodeSource,omitempty"`
}

// Status is a point-in-time view of a Checker.
type Status struct {
	State       string    `json:"state"`
	Features    int       `json:"features"`
	Skipped     int       `json:"skipped,omitempty"`
	GeneratedAt time.Time `json:"generatedAt,omitzero"`
	Indexed     bool      `json:"indexed"`
	Error       string    `json:"error,omitempty"`
}

// Option configures a Checker.
type Option func(*Checker)

// WithGeocoder sets the client used by CheckAddress.
func WithGeocoder(g geocode.Client) Option {
	return func(c *Checker) { c.geocoder = g }
}

// WithGeocodeTimeout bounds each geocode call. Non-positive values keep the
// default.
func WithGeocodeTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.geocodeTimeout = d
		}
	}
}

// WithLookup enriches results with records from idx.
func WithLookup(idx *zone.LookupIndex) Option {
	return func(c *Checker) { c.lookup = idx }
}

// WithSpatialIndex toggles the bounding-box pre-filter built at load.
func WithSpatialIndex(enabled bool) Option {
	return func(c *Checker) { c.useIndex = enabled }
}

// Checker tests points against the loaded zone dataset.
type Checker struct {
	source         Source
	geocoder       geocode.Client
	lookup         *zone.LookupIndex
	geocodeTimeout time.Duration
	useIndex       bool
	log            *zap.Logger

	mu      sync.RWMutex
	state   State
	dataset *zone.Dataset
	index   *spatialIndex
	loading chan struct{}
	loadErr error
}

// New returns an uninitialized Checker reading from src.
func New(src Source, opts ...Option) *Checker {
	c := &Checker{
		source:         src,
		geocodeTimeout: DefaultGeocodeTimeout,
		useIndex:       true,
		log:            zap.L().With(zap.String("component", "checker")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Initialize loads the dataset. It returns immediately when already Ready.
// Callers arriving during a load wait for that load and share its outcome.
// After a failed load the next call retries.
func (c *Checker) Initialize(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateReady:
		c.mu.Unlock()
		return nil
	case StateLoading:
		done := c.loading
		c.mu.Unlock()
		select {
		case <-done:
			c.mu.RLock()
			defer c.mu.RUnlock()
			if c.state == StateReady {
				return nil
			}
			return c.loadErr
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "checker: wait for load")
		}
	}
	done := make(chan struct{})
	c.state = StateLoading
	c.loading = done
	c.mu.Unlock()

	start := time.Now()
	ds, idx, err := c.load(ctx)

	c.mu.Lock()
	if err != nil {
		c.state = StateLoadFailed
		c.loadErr = err
		c.log.Error("zone data load failed", zap.String("source", c.source.String()), zap.Error(err))
	} else {
		c.state = StateReady
		c.dataset = ds
		c.index = idx
		c.loadErr = nil
		c.log.Info("zone data loaded",
			zap.String("source", c.source.String()),
			zap.Int("features", ds.Len()),
			zap.Int("skipped", ds.Skipped),
			zap.Bool("indexed", idx != nil),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	c.loading = nil
	close(done)
	c.mu.Unlock()
	return err
}

func (c *Checker) load(ctx context.Context) (*zone.Dataset, *spatialIndex, error) {
	rc, err := c.source.Open(ctx)
	if err != nil {
		return nil, nil, &LoadError{Source: c.source.String(), Err: err}
	}
	defer rc.Close() //nolint:errcheck

	ds, err := zone.ReadDataset(rc)
	if err != nil {
		return nil, nil, &LoadError{Source: c.source.String(), Err: &zone.ParseError{Source: c.source.String(), Err: err}}
	}
	if ds.Len() == 0 {
		return nil, nil, &LoadError{
			Source: c.source.String(),
			Err:    &zone.ParseError{Source: c.source.String(), Err: eris.New("no usable zone features")},
		}
	}

	var idx *spatialIndex
	if c.useIndex {
		idx = newSpatialIndex(ds.Features)
	}
	return ds, idx, nil
}

// IsReady reports whether queries can be answered.
func (c *Checker) IsReady() bool {
	return c.State() == StateReady
}

// State returns the current load state.
func (c *Checker) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status summarizes the checker for health reporting.
func (c *Checker) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Status{State: c.state.String(), Indexed: c.index != nil}
	if c.dataset != nil {
		st.Features = c.dataset.Len()
		st.Skipped = c.dataset.Skipped
		st.GeneratedAt = c.dataset.GeneratedAt
	}
	if c.loadErr != nil {
		st.Error = c.loadErr.Error()
	}
	return st
}

// Reset drops the loaded dataset and returns the checker to
// StateUninitialized. It reports false, and does nothing, while a load is in
// flight.
func (c *Checker) Reset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateLoading {
		return false
	}
	c.state = StateUninitialized
	c.dataset = nil
	c.index = nil
	c.loadErr = nil
	return true
}

// Lookup returns the configured lookup index, if any.
func (c *Checker) Lookup() *zone.LookupIndex {
	return c.lookup
}

type snapshot struct {
	dataset *zone.Dataset
	index   *spatialIndex
}

func (c *Checker) snapshot() (snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.state == StateLoadFailed && c.loadErr != nil:
		return snapshot{}, c.loadErr
	case c.state != StateReady:
		return snapshot{}, eris.Wrapf(ErrNotReady, "state %s", c.state)
	}
	return snapshot{dataset: c.dataset, index: c.index}, nil
}

// Match tests pt against every loaded polygon in feature order. The first
// containing feature wins.
func (c *Checker) Match(pt zone.Point) (zone.MatchResult, error) {
	snap, err := c.snapshot()
	if err != nil {
		return zone.MatchResult{}, err
	}
	return c.match(snap, pt), nil
}

func (c *Checker) match(snap snapshot, pt zone.Point) zone.MatchResult {
	features := snap.dataset.Features
	test := func(i int) bool {
		ok, err := geometry.Contains(features[i].Geometry, pt.Longitude, pt.Latitude)
		if err != nil {
			c.log.Warn("polygon test failed", zap.String("id", features[i].ID), zap.Error(err))
			return false
		}
		return ok
	}

	if snap.index != nil {
		for _, i := range snap.index.candidates(pt) {
			if test(i) {
				return zone.MatchResult{Feature: &features[i], IsInZone: true}
			}
		}
		return zone.MatchResult{}
	}
	for i := range features {
		if test(i) {
			return zone.MatchResult{Feature: &features[i], IsInZone: true}
		}
	}
	return zone.MatchResult{}
}

// CheckCoordinates reports whether (lat, lng) lies in a zone.
func (c *Checker) CheckCoordinates(_ context.Context, lat, lng float64) (*Result, error) {
	pt, err := zone.NewPoint(lat, lng)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidCoordinates, "lat %g lng %g", lat, lng)
	}
	snap, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	return c.result(c.match(snap, pt), pt), nil
}

func (c *Checker) result(m zone.MatchResult, pt zone.Point) *Result {
	r := &Result{Success: true, IsInZone: m.IsInZone, Point: pt}
	if m.Feature == nil {
		return r
	}
	r.Identifier = m.Feature.ID
	attrs := m.Feature.Attributes
	if rec, ok := c.lookup.Get(zone.NormalizeGEOID(m.Feature.ID)); ok {
		attrs = rec.Attributes()
	}
	if attrs != (zone.Attributes{}) {
		r.Attributes = &attrs
	}
	return r
}

// CheckAddress geocodes address and checks the resulting point. A geocoder
// failure, an unmatched place name and an unmatched street address are
// reported as distinct errors.
func (c *Checker) CheckAddress(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrEmptyAddress
	}
	snap, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	if c.geocoder == nil {
		return nil, &GeocodeError{Address: address, Err: eris.New("no geocoder configured")}
	}

	gctx, cancel := context.WithTimeout(ctx, c.geocodeTimeout)
	defer cancel()

	geo, err := c.geocoder.Geocode(gctx, geocode.AddressInput{OneLine: address})
	if err != nil {
		c.log.Warn("geocode failed", zap.String("address", address), zap.Error(err))
		return nil, &GeocodeError{Address: address, Err: err}
	}
	if geo == nil || !geo.Matched {
		if HasHouseNumber(address) {
			return nil, eris.Wrapf(ErrAddressNotFound, "%q", address)
		}
		return nil, eris.Wrapf(ErrGeocodeAmbiguous, "%q", address)
	}

	pt, err := zone.NewPoint(geo.Latitude, geo.Longitude)
	if err != nil {
		return nil, eris.Wrapf(err, "checker: geocoder %s returned invalid point", geo.Source)
	}

	r := c.result(c.match(snap, pt), pt)
	r.Address = address
	r.MatchedAddress = geo.FormattedAddress
	r.GeocodeSource = geo.Source
	return r, nil
}

var houseNumber = regexp.MustCompile(`^\d+[A-Za-z]?(?:[-/]\d+[A-Za-z]?)?\s`)

// HasHouseNumber reports whether address starts with a street number, the
// mark of a street address rather than a building or landmark name.
func HasHouseNumber(address string) bool {
	return houseNumber.MatchString(strings.TrimSpace(address) + " ")
}
