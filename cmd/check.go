package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ozinsight/ozcheck/internal/checker"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check coordinates or addresses against the zone dataset",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("check")
	},
}

var checkCoordsCmd = &cobra.Command{
	Use:   "coords LAT LNG | LAT,LNG",
	Short: "Check a latitude/longitude pair",
	Long:  "Check a latitude/longitude pair. Put -- before the arguments when a value is negative.",
	Example: "  ozcheck check coords -- 27.9506 -82.4572\n" +
		"  ozcheck check coords 27.9506,-82.4572",
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, lng, err := parseCoords(args)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		return withChecker(cmd.Context(), func(ctx context.Context, c *checker.Checker) error {
			res, err := c.CheckCoordinates(ctx, lat, lng)
			return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res, err, asJSON)
		})
	},
}

var checkAddressCmd = &cobra.Command{
	Use:   "address TEXT",
	Short: "Geocode a street address and check it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := strings.Join(args, " ")
		asJSON, _ := cmd.Flags().GetBool("json")

		return withChecker(cmd.Context(), func(ctx context.Context, c *checker.Checker) error {
			res, err := c.CheckAddress(ctx, address)
			return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res, err, asJSON)
		})
	},
}

var checkBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Check every row of a CSV (id,address or id,lat,lng)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		return withChecker(cmd.Context(), func(ctx context.Context, c *checker.Checker) error {
			return runBatch(ctx, c, input, output, concurrency, cmd.ErrOrStderr())
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{checkCoordsCmd, checkAddressCmd} {
		c.Flags().Bool("json", false, "print the result as JSON")
	}
	checkBatchCmd.Flags().String("input", "", "input CSV path")
	checkBatchCmd.Flags().String("output", "", "output CSV path (default stdout)")
	checkBatchCmd.Flags().Int("concurrency", 0, "rows checked at once (default from config)")
	_ = checkBatchCmd.MarkFlagRequired("input")

	checkCmd.AddCommand(checkCoordsCmd, checkAddressCmd, checkBatchCmd)
	rootCmd.AddCommand(checkCmd)
}

func parseCoords(args []string) (lat, lng float64, err error) {
	if len(args) == 1 {
		parts := strings.Split(args[0], ",")
		if len(parts) != 2 {
			return 0, 0, eris.Wrapf(checker.ErrInvalidCoordinates, "want LAT,LNG, got %q", args[0])
		}
		args = parts
	}
	latText, lngText := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
	if lat, err = strconv.ParseFloat(latText, 64); err != nil {
		return 0, 0, eris.Wrapf(checker.ErrInvalidCoordinates, "latitude %q", latText)
	}
	if lng, err = strconv.ParseFloat(lngText, 64); err != nil {
		return 0, 0, eris.Wrapf(checker.ErrInvalidCoordinates, "longitude %q", lngText)
	}
	return lat, lng, nil
}

// withChecker loads the zone data and runs fn against it.
func withChecker(parent context.Context, fn func(context.Context, *checker.Checker) error) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, _, closeFn, err := newChecker()
	if err != nil {
		return err
	}
	defer closeFn()

	if err := c.Initialize(ctx); err != nil {
		return err
	}
	return fn(ctx, c)
}

func printResult(w, errW io.Writer, res *checker.Result, err error, asJSON bool) error {
	if err != nil {
		fmt.Fprintln(errW, checker.UserMessage(err))
		return err
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if res.MatchedAddress != "" {
		fmt.Fprintf(w, "Matched address: %s (%s)\n", res.MatchedAddress, res.GeocodeSource)
	}
	fmt.Fprintf(w, "Coordinates:     %.6f, %.6f\n", res.Point.Latitude, res.Point.Longitude)
	if !res.IsInZone {
		fmt.Fprintln(w, "Result:          NOT in an Opportunity Zone")
		return nil
	}
	fmt.Fprintln(w, "Result:          IN an Opportunity Zone")
	fmt.Fprintf(w, "Census tract:    %s\n", res.Identifier)
	if a := res.Attributes; a != nil {
		fmt.Fprintf(w, "Location:        county %s, %s\n", a.County, a.State)
	}
	return nil
}

func runBatch(ctx context.Context, c *checker.Checker, input, output string, concurrency int, summaryW io.Writer) error {
	in, err := os.Open(input)
	if err != nil {
		return eris.Wrapf(err, "open %s", input)
	}
	defer in.Close() //nolint:errcheck

	var out io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return eris.Wrapf(err, "create %s", output)
		}
		defer f.Close() //nolint:errcheck
		out = f
	}

	sum, err := c.CheckBatch(ctx, in, out, checker.BatchOptions{Concurrency: concurrency})
	if err != nil {
		return err
	}
	fmt.Fprintf(summaryW, "Checked %d rows: %d in a zone, %d not, %d failed\n",
		sum.Rows, sum.InZone, sum.Succeeded-sum.InZone, sum.Failed)
	return nil
}
