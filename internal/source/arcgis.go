// Package source retrieves raw Opportunity Zone features from the ArcGIS
// feature service, TIGER-style shapefiles and the CDFI designated tract
// workbook.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ozinsight/ozcheck/internal/fetcher"
	"github.com/ozinsight/ozcheck/internal/resilience"
	"github.com/ozinsight/ozcheck/internal/zone"
)

// DefaultArcGISURL is the public Opportunity Zones layer query endpoint.
const DefaultArcGISURL = "https://services.arcgis.com/VTyQ9soqVukalItT/arcgis/rest/services/Opportunity_Zones/FeatureServer/13/query"

// ArcGISOptions configures paging against a feature service layer.
type ArcGISOptions struct {
	BaseURL    string
	PageSize   int
	PageDelay  time.Duration
	RetryDelay time.Duration
}

// DefaultArcGISOptions returns the options used against the public layer.
func DefaultArcGISOptions() ArcGISOptions {
	return ArcGISOptions{
		BaseURL:    DefaultArcGISURL,
		PageSize:   2000,
		PageDelay:  500 * time.Millisecond,
		RetryDelay: 2 * time.Second,
	}
}

// FetchResult is the outcome of a full paginated fetch.
type FetchResult struct {
	Features []zone.RawFeature
	Pages    int
	Requests int
	// Partial is set when pagination stopped on a page that failed twice.
	Partial bool
	Err     error
}

// page is one GeoJSON query response. ArcGIS reports query errors with
// HTTP 200 and an error member.
type page struct {
	Features []zone.RawFeature `json:"features"`
	Error    *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ArcGIS pages through a feature service layer one request at a time.
type ArcGIS struct {
	f    fetcher.Fetcher
	opts ArcGISOptions
	log  *zap.Logger
}

// NewArcGIS returns a pager over f. Zero options fall back to the defaults.
func NewArcGIS(f fetcher.Fetcher, opts ArcGISOptions) *ArcGIS {
	def := DefaultArcGISOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = def.PageSize
	}
	if opts.PageDelay < 0 {
		opts.PageDelay = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	return &ArcGIS{
		f:    f,
		opts: opts,
		log:  zap.L().With(zap.String("component", "source.arcgis")),
	}
}

// PageURL returns the query URL for the page starting at offset.
func (a *ArcGIS) PageURL(offset int) string {
	return fmt.Sprintf("%s?outFields=*&where=1%%3D1&f=geojson&resultRecordCount=%d&resultOffset=%d",
		a.opts.BaseURL, a.opts.PageSize, offset)
}

// FetchAll requests pages until one comes back short. A page that fails its
// single retry ends pagination; the features gathered so far are returned
// with Partial set. An error is returned only if the context is cancelled.
func (a *ArcGIS) FetchAll(ctx context.Context) (*FetchResult, error) {
	res := &FetchResult{}
	retry := resilience.RetryOnce(a.opts.RetryDelay)
	retry.OnRetry = resilience.RetryLogger("arcgis", "fetch_page")

	for offset := 0; ; {
		a.log.Info("fetching page", zap.Int("offset", offset))

		features, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]zone.RawFeature, error) {
			res.Requests++
			return a.fetchPage(ctx, offset)
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, eris.Wrap(ctx.Err(), "source: arcgis fetch cancelled")
			}
			a.log.Error("page failed after retry, keeping partial result",
				zap.Int("offset", offset),
				zap.Int("features", len(res.Features)),
				zap.Error(err),
			)
			res.Partial = true
			res.Err = err
			return res, nil
		}

		res.Pages++
		res.Features = append(res.Features, features...)
		a.log.Info("page fetched",
			zap.Int("offset", offset),
			zap.Int("page_features", len(features)),
			zap.Int("total", len(res.Features)),
		)

		if len(features) < a.opts.PageSize {
			return res, nil
		}
		offset += len(features)

		if err := sleepCtx(ctx, a.opts.PageDelay); err != nil {
			return res, eris.Wrap(err, "source: arcgis fetch cancelled")
		}
	}
}

func (a *ArcGIS) fetchPage(ctx context.Context, offset int) ([]zone.RawFeature, error) {
	u := a.PageURL(offset)
	p, err := fetcher.DownloadJSON[page](ctx, a.f, u)
	if err != nil {
		return nil, &zone.FetchError{URL: u, Offset: offset, Err: err}
	}
	if p.Error != nil {
		return nil, &zone.FetchError{
			URL:    u,
			Offset: offset,
			Err:    fmt.Errorf("arcgis error %d: %s", p.Error.Code, p.Error.Message),
		}
	}
	return p.Features, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
