package checker

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ozinsight/ozcheck/internal/fetcher"
)

// DefaultBatchConcurrency is the number of rows checked at once.
const DefaultBatchConcurrency = 4

// BatchHeader is the column layout of batch output.
var BatchHeader = []string{"id", "input", "success", "in_zone", "geoid", "state", "county", "tract", "error"}

// BatchOptions configures CheckBatch.
type BatchOptions struct {
	Concurrency int
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Rows      int
	Succeeded int
	InZone    int
	Failed    int
}

type batchMode int

const (
	modeAddress batchMode = iota
	modeCoords
)

type batchRow struct {
	id    string
	input string
	lat   string
	lng   string
}

type batchOutcome struct {
	result *Result
	err    error
}

// CheckBatch reads rows from a CSV with a header of either id,address or
// id,lat,lng, checks them concurrently and writes one output row per input
// row, in input order. A failing row is reported in its error column and
// never aborts the batch.
func (c *Checker) CheckBatch(ctx context.Context, r io.Reader, w io.Writer, opts BatchOptions) (BatchSummary, error) {
	var summary BatchSummary
	if _, err := c.snapshot(); err != nil {
		return summary, err
	}

	mode, rows, err := readBatch(ctx, r)
	if err != nil {
		return summary, err
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultBatchConcurrency
	}

	outcomes := make([]batchOutcome, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range rows {
		g.Go(func() error {
			res, err := c.checkRow(gctx, mode, rows[i])
			outcomes[i] = batchOutcome{result: res, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return summary, eris.Wrap(err, "checker: batch cancelled")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(BatchHeader); err != nil {
		return summary, eris.Wrap(err, "checker: write batch header")
	}
	for i, row := range rows {
		out := outcomes[i]
		summary.Rows++
		if out.err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
			if out.result.IsInZone {
				summary.InZone++
			}
		}
		if err := cw.Write(batchRecord(row, out)); err != nil {
			return summary, eris.Wrapf(err, "checker: write batch row %s", row.id)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return summary, eris.Wrap(err, "checker: flush batch output")
	}

	c.log.Info("batch check complete",
		zap.Int("rows", summary.Rows),
		zap.Int("in_zone", summary.InZone),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (c *Checker) checkRow(ctx context.Context, mode batchMode, row batchRow) (*Result, error) {
	if mode == modeAddress {
		return c.CheckAddress(ctx, row.input)
	}
	lat, err := strconv.ParseFloat(row.lat, 64)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidCoordinates, "lat %q", row.lat)
	}
	lng, err := strconv.ParseFloat(row.lng, 64)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidCoordinates, "lng %q", row.lng)
	}
	return c.CheckCoordinates(ctx, lat, lng)
}

func readBatch(ctx context.Context, r io.Reader) (batchMode, []batchRow, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader:  true,
		HeaderCh:   headerCh,
		TrimSpace:  true,
		LazyQuotes: true,
	})

	var records [][]string
	for rec := range rowCh {
		records = append(records, rec)
	}
	if err := <-errCh; err != nil {
		return 0, nil, eris.Wrap(err, "checker: read batch input")
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
		return 0, nil, eris.New("checker: batch input is empty")
	}

	cols := fetcher.HeaderIndex(header)
	idCol, hasID := cols["id"]
	addrCol, hasAddr := cols["address"]
	latCol, hasLat := cols["lat"]
	if !hasLat {
		latCol, hasLat = cols["latitude"]
	}
	lngCol, hasLng := cols["lng"]
	if !hasLng {
		lngCol, hasLng = cols["lon"]
	}
	if !hasLng {
		lngCol, hasLng = cols["longitude"]
	}

	var mode batchMode
	switch {
	case hasAddr:
		mode = modeAddress
	case hasLat && hasLng:
		mode = modeCoords
	default:
		return 0, nil, eris.New("checker: batch header needs an address column or lat and lng columns")
	}

	rows := make([]batchRow, 0, len(records))
	for i, rec := range records {
		row := batchRow{id: strconv.Itoa(i + 1)}
		if hasID {
			if v := field(rec, idCol); v != "" {
				row.id = v
			}
		}
		if mode == modeAddress {
			row.input = field(rec, addrCol)
		} else {
			row.lat, row.lng = field(rec, latCol), field(rec, lngCol)
			row.input = row.lat + "," + row.lng
		}
		rows = append(rows, row)
	}
	return mode, rows, nil
}

func batchRecord(row batchRow, out batchOutcome) []string {
	rec := []string{row.id, row.input, "false", "false", "", "", "", "", ""}
	if out.err != nil {
		rec[8] = UserMessage(out.err)
		return rec
	}
	res := out.result
	rec[2] = "true"
	rec[3] = strconv.FormatBool(res.IsInZone)
	rec[4] = res.Identifier
	if res.Attributes != nil {
		rec[5] = res.Attributes.State
		rec[6] = res.Attributes.County
		rec[7] = res.Attributes.Tract
	}
	return rec
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}
