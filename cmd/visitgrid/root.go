package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/eringen/visitgrid"
)

// version is set at build time via ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "visitgrid",
		Short:         "Privacy-first visit analytics with gap-free charts and weekly heatmaps.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	root.PersistentFlags().String("config", visitgrid.EnvOr("VISITGRID_CONFIG", ""), "path to a YAML config file")

	root.AddCommand(newServeCmd(), newBucketsCmd(), newHeatmapCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the visitgrid version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "visitgrid %s\n", version)
		},
	}
}

// clockFlags are shared by the offline commands: the viewer timezone and the
// instant treated as "now".
type clockFlags struct {
	tz  string
	now string
}

func (f *clockFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tz, "tz", "UTC", "viewer timezone (IANA name)")
	cmd.Flags().StringVar(&f.now, "now", "", "reference time as RFC3339 (default: current time)")
}

func (f *clockFlags) resolve() (time.Time, error) {
	loc, err := time.LoadLocation(f.tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("timezone %q: %w", f.tz, err)
	}
	if f.now == "" {
		return time.Now().In(loc), nil
	}
	now, err := time.Parse(time.RFC3339, f.now)
	if err != nil {
		return time.Time{}, fmt.Errorf("--now: %w", err)
	}
	return now.In(loc), nil
}

// openInput returns stdin for "" or "-", otherwise the named file.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
