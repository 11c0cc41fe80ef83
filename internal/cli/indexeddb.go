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

// IndexedDBOptions holds flags for the indexeddb command.
type IndexedDBOptions struct {
	*RootOptions
	Input    string
	Output   string
	BlobPath string
	RawDump  bool
	Filter   bool
}

// NewIndexedDBCommand creates the indexeddb command.
func NewIndexedDBCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IndexedDBOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "indexeddb",
		Short: "Extract IndexedDB records to JSON",
		Long: `Extract every record of the known object stores into a JSON array.

Records without a value are skipped and counted; records that cannot be
decoded are written to failed_records.json in the log directory. With
--raw-dump, every record is written to raw_data.jsonl instead and no
structured output is produced.

Example:
  idbdump indexeddb -f ./teams.db -o ./out/teams.json
  idbdump indexeddb -f ./teams.db -b ./blobs -o ./out/teams.json --filter=false`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexedDB(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "filepath", "f", "", "path to the IndexedDB snapshot (required)")
	cmd.Flags().StringVarP(&opts.Output, "outputpath", "o", "", "path of the JSON output (required)")
	cmd.Flags().StringVarP(&opts.BlobPath, "blobpath", "b", "", "directory holding external blob values")
	cmd.Flags().BoolVar(&opts.RawDump, "raw-dump", false, "dump raw records instead of structured JSON")
	cmd.Flags().BoolVar(&opts.Filter, "filter", true, "only read the known object stores")
	_ = cmd.MarkFlagRequired("filepath")
	_ = cmd.MarkFlagRequired("outputpath")

	return cmd
}

func runIndexedDB(opts *IndexedDBOptions, cmd *cobra.Command) error {
	cfg, err := opts.config()
	if err != nil {
		return opts.formatter(cmd).Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	// Flags win over config only when given.
	extractOpts := cfg.ExtractOptions()
	if cmd.Flags().Changed("filter") {
		extractOpts.Filter = opts.Filter
	}
	if cmd.Flags().Changed("raw-dump") {
		extractOpts.RawDump = opts.RawDump
	}

	return runDump(cmd, opts.RootOptions, dumpJob{
		Kind:     "indexeddb",
		Input:    opts.Input,
		Output:   opts.Output,
		BlobPath: opts.BlobPath,
		RawDump:  extractOpts.RawDump,
		Extract: func(ctx context.Context, src reader.Source, trail *audit.Trail) (dumpResult, error) {
			res, err := extract.IndexedDB(ctx, src, extractOpts, trail)
			if res == nil {
				return dumpResult{}, err
			}
			return dumpResult{
				Write: func(dest string) output.Outcome { return output.Write(res.Records, dest) },
				Totals: metrics.Totals{
					Records:  res.Stats.RecordCount,
					Skipped:  res.Stats.Skipped,
					Failed:   res.Stats.Errors,
					PerStore: res.Stats.PerStore,
				},
			}, err
		},
	})
}
