package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/eringen/visitgrid/heatmap"
	"github.com/eringen/visitgrid/intensity"
	"github.com/eringen/visitgrid/render"
	"github.com/eringen/visitgrid/window"
)

func newHeatmapCmd() *cobra.Command {
	var (
		clock  clockFlags
		preset string
		format string
		input  string
		output string
	)
	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Render a weekly 7x24 visitor matrix as a styled grid or PNG",
		Long: `Heatmap reads a JSON 7x24 matrix (rows Sunday..Saturday, columns 00..23)
and prints the composed view. Cells outside --preset are marked hidden.

Examples:
  visitgrid heatmap --preset last_7_days < week.json
  visitgrid heatmap --format png -o week.png < week.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := clock.resolve()
			if err != nil {
				return err
			}
			var filter *window.Filter
			if preset != "" {
				p, ok := window.ParsePreset(preset)
				if !ok {
					return fmt.Errorf("unknown preset %q", preset)
				}
				filter = window.ForPreset(p)
			}

			in, err := openInput(cmd, input)
			if err != nil {
				return err
			}
			defer in.Close()
			var matrix heatmap.WeeklyMatrix
			if err := json.NewDecoder(in).Decode(&matrix); err != nil {
				return fmt.Errorf("decode matrix: %w", err)
			}

			view := heatmap.Compose(matrix, filter, now, intensity.HeatmapPalette)

			var out io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			switch format {
			case "json":
				return writeJSON(out, view)
			case "png":
				opts := render.DefaultPNGOptions
				opts.Title = fmt.Sprintf("Week of %s (%s)", view.WeekStart.Format("Jan 2, 2006"), now.Location())
				return render.HeatmapPNG(out, view, opts)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	clock.register(cmd)
	cmd.Flags().StringVar(&preset, "preset", "", "visibility preset, e.g. today or last_7_days")
	cmd.Flags().StringVar(&format, "format", "json", "json or png")
	cmd.Flags().StringVarP(&input, "input", "i", "-", "matrix file, - for stdin")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	return cmd
}
