package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/roach88/idbforensics/internal/fixture"
	"github.com/roach88/idbforensics/internal/reader"
	"github.com/roach88/idbforensics/internal/snapshot"
)

// SnapshotImportOptions holds flags for the snapshot import command.
type SnapshotImportOptions struct {
	*RootOptions
	Database string
	Force    bool
}

// ImportSummary is the success payload of snapshot import.
type ImportSummary struct {
	Fixture         string `json:"fixture"`
	Database        string `json:"database"`
	Databases       int    `json:"databases"`
	ObjectStores    int    `json:"object_stores"`
	Records         int    `json:"records"`
	LocalEntries    int    `json:"local_entries"`
	SessionVersions int    `json:"session_versions"`
}

func (s ImportSummary) String() string {
	return fmt.Sprintf("✓ Imported %d database(s), %d object store(s), %d record(s), %d local and %d session entries into %s",
		s.Databases, s.ObjectStores, s.Records, s.LocalEntries, s.SessionVersions, s.Database)
}

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage SQLite storage snapshots",
	}
	cmd.AddCommand(NewSnapshotImportCommand(rootOpts))
	return cmd
}

// NewSnapshotImportCommand creates the snapshot import command.
func NewSnapshotImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <fixture.yaml>",
		Short: "Build a SQLite snapshot from a YAML fixture",
		Long: `Create a SQLite snapshot holding everything described by a YAML fixture.

The snapshot can then be passed to indexeddb, localstorage or sessionstorage
with -f.

Example:
  idbdump snapshot import ./teams.yaml --db ./teams.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path of the snapshot to create (required)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "replace an existing snapshot")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSnapshotImport(opts *SnapshotImportOptions, fixturePath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	m, err := fixture.Load(fixturePath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeOpenInput, "failed to load fixture", err)
	}
	formatter.VerboseLog("Loaded %d database(s) from %s", len(m.DBs), fixturePath)

	if _, err := os.Stat(opts.Database); err == nil {
		if !opts.Force {
			return formatter.Fail(ExitCommandError, ErrCodeImport,
				fmt.Sprintf("snapshot %s already exists (use --force to replace it)", opts.Database), nil)
		}
		if err := os.Remove(opts.Database); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeImport, "failed to remove existing snapshot", err)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := importFixture(ctx, m, opts.Database); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeImport, "failed to import fixture", err)
	}

	return formatter.Success(summarizeImport(fixturePath, opts.Database, m))
}

func importFixture(ctx context.Context, m *reader.Memory, path string) (err error) {
	snap, err := snapshot.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := snap.Close(); closeErr != nil {
			err = errors.CombineErrors(err, closeErr)
		}
	}()
	return snap.Import(ctx, m)
}

func summarizeImport(fixturePath, dbPath string, m *reader.Memory) ImportSummary {
	s := ImportSummary{
		Fixture:      fixturePath,
		Database:     dbPath,
		Databases:    len(m.DBs),
		LocalEntries: len(m.Local),
	}
	for _, db := range m.DBs {
		s.ObjectStores += len(db.Collections)
		for _, c := range db.Collections {
			s.Records += len(c.Records)
		}
	}
	for _, h := range m.Session {
		s.SessionVersions += len(h.Versions)
	}
	return s
}
