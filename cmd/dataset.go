package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ozinsight/ozcheck/internal/builder"
	"github.com/ozinsight/ozcheck/internal/source"
	"github.com/ozinsight/ozcheck/internal/zone"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Fetch and build Opportunity Zone datasets",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("dataset")
	},
}

var datasetFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download raw zone features from the ArcGIS layer or a shapefile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out, _ := cmd.Flags().GetString("out")
		shapefile, _ := cmd.Flags().GetString("shapefile")
		return runFetch(ctx, cmd.OutOrStdout(), orDefault(out, rawPath()), shapefile)
	},
}

var datasetBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the optimized checker geometry document",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in, _ := cmd.Flags().GetString("in")
		out, _ := cmd.Flags().GetString("out")
		reportPath, _ := cmd.Flags().GetString("report")

		opts, err := buildOptions(cmd)
		if err != nil {
			return err
		}
		return runBuild(cmd.OutOrStdout(), orDefault(in, rawPath()), orDefault(out, checkerPath()), opts, reportPath)
	},
}

var datasetLookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Build the GEOID lookup documents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in, _ := cmd.Flags().GetString("in")
		outDir, _ := cmd.Flags().GetString("out-dir")
		designated, _ := cmd.Flags().GetString("designated")
		return runLookup(cmd.Context(), cmd.OutOrStdout(), orDefault(in, rawPath()), orDefault(outDir, cfg.Data.Dir), designated)
	},
}

var datasetAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Run fetch, build and lookup with configured defaults",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w := cmd.OutOrStdout()
		if err := runFetch(ctx, w, rawPath(), ""); err != nil {
			return err
		}
		if err := runBuild(w, rawPath(), checkerPath(), configOptions(), ""); err != nil {
			return err
		}
		return runLookup(ctx, w, rawPath(), cfg.Data.Dir, "")
	},
}

func init() {
	datasetFetchCmd.Flags().String("out", "", "raw document path (default <data.dir>/"+builder.RawFileName+")")
	datasetFetchCmd.Flags().String("shapefile", "", "read features from a .shp or .zip (path or URL) instead of ArcGIS")

	datasetBuildCmd.Flags().String("in", "", "raw document path (default <data.dir>/"+builder.RawFileName+")")
	datasetBuildCmd.Flags().String("out", "", "checker document path (default <data.dir>/"+builder.CheckerFileName+")")
	datasetBuildCmd.Flags().Int("precision", 0, "coordinate decimals: 3, 4 or 5 (default from config)")
	datasetBuildCmd.Flags().Bool("simplify", true, "simplify polygon rings")
	datasetBuildCmd.Flags().String("tolerance", "", "simplification tier: low, med or high (default from config)")
	datasetBuildCmd.Flags().Bool("aggressive", false, "precision 3 with high-tolerance simplification")
	datasetBuildCmd.Flags().String("report", "", "also write the build report as YAML")

	datasetLookupCmd.Flags().String("in", "", "raw document path (default <data.dir>/"+builder.RawFileName+")")
	datasetLookupCmd.Flags().String("out-dir", "", "output directory (default <data.dir>)")
	datasetLookupCmd.Flags().String("designated", "", "build from the CDFI designated tracts workbook (path or URL) instead")

	datasetCmd.AddCommand(datasetFetchCmd, datasetBuildCmd, datasetLookupCmd, datasetAllCmd)
	rootCmd.AddCommand(datasetCmd)
}

func rawPath() string     { return filepath.Join(cfg.Data.Dir, builder.RawFileName) }
func checkerPath() string { return filepath.Join(cfg.Data.Dir, builder.CheckerFileName) }

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func configOptions() builder.Options {
	return builder.Options{
		Precision:        cfg.Optimize.Precision,
		Simplify:         cfg.Optimize.Simplify,
		Tolerance:        cfg.Optimize.Tolerance,
		IdentifierFields: cfg.Optimize.IdentifierFields,
	}
}

func buildOptions(cmd *cobra.Command) (builder.Options, error) {
	opts := configOptions()
	if aggressive, _ := cmd.Flags().GetBool("aggressive"); aggressive {
		preset := builder.AggressiveOptions()
		preset.IdentifierFields = opts.IdentifierFields
		return preset, nil
	}
	if p, _ := cmd.Flags().GetInt("precision"); p != 0 {
		if p < 3 || p > 5 {
			return opts, eris.Errorf("--precision must be 3, 4 or 5, got %d", p)
		}
		opts.Precision = p
	}
	if cmd.Flags().Changed("simplify") {
		opts.Simplify, _ = cmd.Flags().GetBool("simplify")
	}
	if t, _ := cmd.Flags().GetString("tolerance"); t != "" {
		if _, err := builder.ParseTolerance(t); err != nil {
			return opts, err
		}
		opts.Tolerance = t
	}
	return opts, nil
}

func runFetch(ctx context.Context, w io.Writer, out, shapefile string) error {
	var (
		features []zone.RawFeature
		label    string
	)
	if shapefile != "" {
		local, cleanup, err := localInput(ctx, shapefile)
		if err != nil {
			return err
		}
		defer cleanup()
		features, err = source.ReadShapefile(local)
		if err != nil {
			return err
		}
		label = "shapefile (" + shapefile + ")"
		fmt.Fprintf(w, "Read %d features from %s\n", len(features), shapefile)
	} else {
		arc := source.NewArcGIS(newFetcher(), source.ArcGISOptions{
			BaseURL:    cfg.Source.ArcGISURL,
			PageSize:   cfg.Source.PageSize,
			PageDelay:  cfg.Source.PageDelay,
			RetryDelay: cfg.Source.RetryDelay,
		})
		res, err := arc.FetchAll(ctx)
		if err != nil {
			return err
		}
		features = res.Features
		label = cfg.Source.ArcGISURL
		fmt.Fprintf(w, "Fetched %d features in %d pages (%d requests)\n", len(features), res.Pages, res.Requests)
		if res.Partial {
			fmt.Fprintf(w, "WARNING: pagination stopped early, dataset is partial: %v\n", res.Err)
		}
	}

	if len(features) == 0 {
		return eris.New("no OZ data fetched")
	}

	n, err := builder.EmitRaw(out, features, label, time.Now())
	if err != nil {
		return err
	}
	zap.L().Info("raw dataset written", zap.String("path", out), zap.Int("features", len(features)), zap.Int64("bytes", n))
	fmt.Fprintf(w, "Wrote %s (%.1f MB)\n", out, float64(n)/(1<<20))
	return nil
}

func runBuild(w io.Writer, in, out string, opts builder.Options, reportPath string) error {
	raw, inBytes, err := builder.ReadRaw(in)
	if err != nil {
		return err
	}
	doc, res, err := builder.BuildChecker(raw, opts, time.Now())
	if err != nil {
		return err
	}
	if len(doc.Features) == 0 {
		return eris.Errorf("no features survived optimization of %s", in)
	}
	outBytes, err := builder.EmitChecker(out, doc)
	if err != nil {
		return err
	}

	report := builder.NewCheckerReport(doc, res, len(raw.Features), inBytes, outBytes)
	report.Print(w)
	fmt.Fprintf(w, "Wrote %s\n", out)
	if reportPath != "" {
		if err := report.WriteYAML(reportPath); err != nil {
			return err
		}
	}
	return nil
}

func runLookup(ctx context.Context, w io.Writer, in, outDir, designated string) error {
	var (
		features []zone.RawFeature
		inBytes  int64
	)
	if designated != "" {
		local, cleanup, err := localInput(ctx, designated)
		if err != nil {
			return err
		}
		defer cleanup()
		features, err = source.ReadDesignatedTracts(local)
		if err != nil {
			return err
		}
		if st, err := os.Stat(local); err == nil {
			inBytes = st.Size()
		}
		label := source.DesignatedSource(designated)
		zap.L().Info("lookup input read", zap.String("source", label), zap.Int("features", len(features)))
		fmt.Fprintf(w, "Read %d tracts from %s\n", len(features), label)
	} else {
		raw, n, err := builder.ReadRaw(in)
		if err != nil {
			return err
		}
		features, inBytes = raw.Features, n
	}

	now := time.Now()
	idx := builder.BuildLookup(features, nil)
	sizes, err := builder.EmitLookup(outDir, idx, now)
	if err != nil {
		return err
	}

	builder.NewLookupReport(idx, len(features), inBytes, sizes, now).Print(w)
	fmt.Fprintf(w, "Wrote %s and %s\n",
		filepath.Join(outDir, builder.LookupFileName),
		filepath.Join(outDir, builder.MinimalLookupFileName))
	return nil
}

// localInput returns a local path for p, downloading it to a temp file first
// when p is an http(s) URL. The returned func removes the download.
func localInput(ctx context.Context, p string) (string, func(), error) {
	if !strings.HasPrefix(p, "http://") && !strings.HasPrefix(p, "https://") {
		return p, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "ozcheck-*")
	if err != nil {
		return "", nil, eris.Wrap(err, "create download dir")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	u, err := url.Parse(p)
	if err != nil {
		cleanup()
		return "", nil, eris.Wrapf(err, "parse %s", p)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = "download"
	}
	dest := filepath.Join(dir, name)

	n, err := newFetcher().DownloadToFile(ctx, p, dest)
	if err != nil {
		cleanup()
		return "", nil, &zone.FetchError{URL: p, Err: err}
	}
	zap.L().Info("downloaded input", zap.String("url", p), zap.Int64("bytes", n))
	return dest, cleanup, nil
}
