package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/idbforensics/internal/audit"
	"github.com/roach88/idbforensics/internal/extract"
	"github.com/roach88/idbforensics/internal/metrics"
	"github.com/roach88/idbforensics/internal/output"
	"github.com/roach88/idbforensics/internal/reader"
)

// StorageOptions holds flags for the localstorage and sessionstorage commands.
type StorageOptions struct {
	*RootOptions
	Input  string
	Output string
}

// NewLocalStorageCommand creates the localstorage command.
func NewLocalStorageCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StorageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "localstorage",
		Short: "Extract Local Storage values to JSON",
		Long: `Parse every Local Storage value as JSON and write the parsed values as
a JSON array. Values that are not JSON are left out.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, opts.RootOptions, dumpJob{
				Kind:   "localstorage",
				Input:  opts.Input,
				Output: opts.Output,
				Extract: func(ctx context.Context, src reader.Source, trail *audit.Trail) (dumpResult, error) {
					values, err := extract.LocalStorage(ctx, src, trail)
					return dumpResult{
						Write:  func(dest string) output.Outcome { return output.WriteValues(values, dest) },
						Totals: metrics.Totals{Records: len(values), PerStore: map[string]int{"localstorage": len(values)}},
					}, err
				},
			})
		},
	}
	storageFlags(cmd, opts)
	return cmd
}

// NewSessionStorageCommand creates the sessionstorage command.
func NewSessionStorageCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StorageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sessionstorage",
		Short: "Extract Session Storage versions to JSON",
		Long: `Write one JSON entry per stored (host, version) pair. Versions of a host
are ordered by LevelDB sequence number and numbered from 1.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, opts.RootOptions, dumpJob{
				Kind:   "sessionstorage",
				Input:  opts.Input,
				Output: opts.Output,
				Extract: func(ctx context.Context, src reader.Source, trail *audit.Trail) (dumpResult, error) {
					entries, err := extract.SessionStorage(ctx, src, trail)
					return dumpResult{
						Write:  func(dest string) output.Outcome { return output.WriteValues(entries, dest) },
						Totals: metrics.Totals{Records: len(entries), PerStore: map[string]int{"sessionstorage": len(entries)}},
					}, err
				},
			})
		},
	}
	storageFlags(cmd, opts)
	return cmd
}

func storageFlags(cmd *cobra.Command, opts *StorageOptions) {
	cmd.Flags().StringVarP(&opts.Input, "filepath", "f", "", "path to the storage snapshot (required)")
	cmd.Flags().StringVarP(&opts.Output, "outputpath", "o", "", "path of the JSON output (required)")
	_ = cmd.MarkFlagRequired("filepath")
	_ = cmd.MarkFlagRequired("outputpath")
}
