package main

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/eringen/visitgrid/timegrid"
)

type bucketsOutput struct {
	Range  timegrid.Mode          `json:"range"`
	From   time.Time              `json:"from"`
	To     time.Time              `json:"to"`
	Points []timegrid.SeriesPoint `json:"points"`
	Totals timegrid.Values        `json:"totals"`
}

func newBucketsCmd() *cobra.Command {
	var (
		clock      clockFlags
		rangeName  string
		anchored   bool
		start, end string
		input      string
	)
	cmd := &cobra.Command{
		Use:   "buckets",
		Short: "Bucket raw time points into a gap-free chart series",
		Long: `Buckets reads a JSON array of {"timestamp","visitors","views"} points and
prints the dense series for the chosen range, one record per bucket.

Examples:
  visitgrid buckets --range 24h --tz Europe/Berlin < points.json
  visitgrid buckets --range custom --start 2024-03-01 --end 2024-03-10 -i points.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := clock.resolve()
			if err != nil {
				return err
			}
			mode, ok := timegrid.ParseMode(rangeName)
			if !ok {
				return fmt.Errorf("unknown range %q", rangeName)
			}
			opts := timegrid.Options{AnchoredToHourStart: anchored}
			if mode == timegrid.ModeCustom {
				if opts.Start, err = time.ParseInLocation(time.DateOnly, start, now.Location()); err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				if opts.End, err = time.ParseInLocation(time.DateOnly, end, now.Location()); err != nil {
					return fmt.Errorf("--end: %w", err)
				}
				if n := timegrid.CustomDays(opts.Start, opts.End, now.Location()); n == 0 || n > timegrid.MaxCustomDays {
					return fmt.Errorf("custom range must span 1 to %d days", timegrid.MaxCustomDays)
				}
			}

			in, err := openInput(cmd, input)
			if err != nil {
				return err
			}
			defer in.Close()
			var points []timegrid.TimePoint
			if err := json.NewDecoder(in).Decode(&points); err != nil {
				return fmt.Errorf("decode points: %w", err)
			}

			buckets := timegrid.Build(points, mode, now, opts)
			from, to := timegrid.Span(mode, now, opts)
			return writeJSON(cmd.OutOrStdout(), bucketsOutput{
				Range:  mode,
				From:   from,
				To:     to,
				Points: timegrid.Compose(buckets, mode),
				Totals: timegrid.Totals(buckets),
			})
		},
	}
	clock.register(cmd)
	cmd.Flags().StringVar(&rangeName, "range", "30d", "24h, today, 7d, week, 30d or custom")
	cmd.Flags().BoolVar(&anchored, "anchored", true, "anchor the 24h range at the current hour")
	cmd.Flags().StringVar(&start, "start", "", "first day of a custom range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last day of a custom range (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&input, "input", "i", "-", "points file, - for stdin")
	return cmd
}
