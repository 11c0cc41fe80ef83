package extract

import (
	"cmp"
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/idbforensics/internal/audit"
	"github.com/roach88/idbforensics/internal/reader"
	"github.com/roach88/idbforensics/internal/record"
)

// SessionStorage flattens every (host, version) pair into one entry. Hosts
// keep reader order; versions of a host are ordered by LevelDB sequence number
// and numbered from 1.
func SessionStorage(ctx context.Context, store reader.SessionStore, trail *audit.Trail) ([]record.SessionEntry, error) {
	if trail == nil {
		trail = audit.Nop()
	}
	entries := []record.SessionEntry{}

	hosts, err := store.Hosts(ctx)
	if err != nil {
		err = errors.Wrap(err, "list session storage hosts")
		trail.Fatal(err)
		return entries, err
	}

	for _, host := range hosts {
		versions, err := store.Versions(ctx, host)
		if err != nil {
			err = errors.Wrapf(err, "read session storage for %q", host)
			trail.Fatal(err)
			return entries, err
		}
		versions = slices.Clone(versions)
		slices.SortStableFunc(versions, func(a, b reader.SessionValue) int {
			return cmp.Compare(a.LevelDBSequence, b.LevelDBSequence)
		})
		for i, v := range versions {
			entries = append(entries, record.SessionEntry{
				Key:             host,
				Value:           v.Value,
				GUID:            v.GUID,
				LevelDBSequence: v.LevelDBSequence,
				Seq:             int64(i + 1),
			})
		}
	}

	trail.Debug().Info("session storage processed", zap.Int("hosts", len(hosts)), zap.Int("entries", len(entries)))
	return entries, nil
}
