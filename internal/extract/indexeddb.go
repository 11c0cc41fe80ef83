package extract

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/idbforensics/internal/audit"
	"github.com/roach88/idbforensics/internal/output"
	"github.com/roach88/idbforensics/internal/reader"
	"github.com/roach88/idbforensics/internal/record"
)

// Stats are the counters of one call. They start at zero on every call.
type Stats struct {
	RecordCount int
	Skipped     int
	Errors      int
	// PerStore counts accepted records by collection name.
	PerStore map[string]int
}

// Result is everything one call produced.
type Result struct {
	Records []record.ExtractedRecord
	Failed  []record.FailedRecord
	Stats   Stats
}

// IndexedDB extracts every record of store.
//
// On a reader failure the partial Result is returned with the error; the
// error is also written, with its stack, to the trail's error sink. A nil
// trail is treated as audit.Nop().
func IndexedDB(ctx context.Context, store reader.Store, opts Options, trail *audit.Trail) (*Result, error) {
	if trail == nil {
		trail = audit.Nop()
	}
	p := &pipeline{
		opts:  opts,
		allow: opts.allowSet(),
		trail: trail,
		res: &Result{
			Records: []record.ExtractedRecord{},
			Failed:  []record.FailedRecord{},
			Stats:   Stats{PerStore: map[string]int{}},
		},
	}

	err := p.run(ctx, store)
	p.finish()
	if err != nil {
		trail.Fatal(err)
		return p.res, err
	}
	return p.res, nil
}

type pipeline struct {
	opts  Options
	allow map[string]bool
	trail *audit.Trail
	res   *Result
}

func (p *pipeline) run(ctx context.Context, store reader.Store) error {
	debug := p.trail.Debug()

	ids, err := store.Databases(ctx)
	if err != nil {
		return errors.Wrap(err, "list databases")
	}

	for _, id := range ids {
		if !id.Valid {
			debug.Debug("skipping database without id", zap.String("database", id.Name))
			continue
		}

		db, err := store.Database(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "open database %d", id.Number)
		}

		names, err := db.CollectionNames(ctx)
		if err != nil {
			return errors.Wrapf(err, "list collections of database %q", db.Name())
		}

		for _, name := range names {
			if name == "" {
				continue
			}
			if !p.allow[name] {
				if p.opts.Filter {
					debug.Debug("skipping unknown object store", zap.String("store", name), zap.String("database", db.Name()))
					continue
				}
				debug.Warn("collection not in known set", zap.String("store", name), zap.String("database", db.Name()))
			}

			coll, err := db.Collection(ctx, name)
			if err != nil {
				return errors.Wrapf(err, "open object store %q of database %q", name, db.Name())
			}
			if err := p.collection(ctx, db.Name(), coll); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *pipeline) collection(ctx context.Context, dbName string, coll reader.Collection) error {
	store := coll.Name()
	debug := p.trail.Debug()
	extracted := 0

	for raw, err := range coll.Records(ctx) {
		if err != nil {
			return errors.Wrapf(err, "read object store %q of database %q", store, dbName)
		}
		p.res.Stats.RecordCount++
		n := p.res.Stats.RecordCount

		switch o := p.normalize(n, dbName, store, raw).(type) {
		case record.Accepted:
			p.res.Records = append(p.res.Records, o.Record)
			p.res.Stats.PerStore[store]++
			extracted++
			debug.Debug("record processed", zap.Int("n", n))
		case record.Skipped:
			p.res.Stats.Skipped++
			debug.Warn("skipped empty record", zap.Int("n", n), zap.String("reason", o.Reason))
		case record.Dropped:
		case record.Failed:
			p.res.Stats.Errors++
			p.res.Failed = append(p.res.Failed, o.Diagnostic)
			p.trail.Errors().Error("error processing record",
				zap.Int("n", n),
				zap.Stringer("key", o.Diagnostic.Key),
				zap.String("store", store),
				zap.String("error", o.Diagnostic.Error),
			)
		}
	}

	debug.Info("object store processed",
		zap.String("store", store),
		zap.String("database", dbName),
		zap.Int("records", extracted),
	)
	return nil
}

// normalize maps one raw record to its outcome. Any panic while handling the
// record becomes a Failed outcome.
func (p *pipeline) normalize(n int, dbName, store string, raw reader.RawRecord) (out record.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failed(raw, store, errors.Newf("panic: %v", r))
		}
	}()

	p.trail.Debug().Debug("processing record", zap.Int("n", n), zap.Stringer("key", raw.RecordKey()))
	p.dumpRaw(dbName, store, raw)

	switch r := raw.(type) {
	case reader.Complete:
		rec := record.ExtractedRecord{
			Key:        r.Key,
			Value:      r.Value,
			OriginFile: r.OriginFile,
			Store:      store,
		}
		for _, fn := range p.opts.Normalizers {
			if err := fn(&rec); err != nil {
				return failed(raw, store, errors.Wrap(err, "normalize"))
			}
		}
		if rec.Value == nil || rec.OriginFile == "" {
			return failed(raw, store, errors.New("normalizer removed value or origin"))
		}
		return record.Accepted{Record: rec}

	case reader.Incomplete:
		switch r.Reason {
		case reader.MissingValue:
			return record.Skipped{Reason: r.Reason.String()}
		case reader.MissingOrigin:
			return record.Dropped{Reason: r.Reason.String()}
		default:
			return failed(raw, store, errors.Wrap(r.Err, r.Reason.String()))
		}

	default:
		return failed(raw, store, errors.Newf("unsupported raw record %T", raw))
	}
}

func (p *pipeline) dumpRaw(dbName, store string, raw reader.RawRecord) {
	if !p.opts.RawDump || !p.trail.RawEnabled() {
		return
	}
	entry := audit.RawEntry{Database: dbName, Store: store, Key: raw.RecordKey()}
	switch r := raw.(type) {
	case reader.Complete:
		entry.OriginFile, entry.Value = r.OriginFile, r.Value
	case reader.Incomplete:
		entry.OriginFile, entry.Value = r.OriginFile, r.Value
	}
	if err := p.trail.Raw(entry); err != nil {
		p.trail.Errors().Error("raw dump write failed", zap.String("store", store), zap.Error(err))
	}
}

// finish writes run totals and the failed-records diagnostic.
func (p *pipeline) finish() {
	stats := p.res.Stats
	p.trail.Debug().Info("run totals",
		zap.Int("records", stats.RecordCount),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
		zap.Int("extracted", len(p.res.Records)),
	)

	if len(p.res.Failed) == 0 {
		return
	}
	path := p.trail.FailedRecordsPath()
	if path == "" {
		return
	}
	if err := output.WriteJSON(p.res.Failed, path); err != nil {
		p.trail.Errors().Error("failed records diagnostic not written", zap.String("path", path), zap.Error(err))
		return
	}
	p.trail.Debug().Info("failed records written", zap.String("path", path), zap.Int("count", len(p.res.Failed)))
}

// failed builds the diagnostic for a record that could not be normalized.
func failed(raw reader.RawRecord, store string, err error) record.Failed {
	diag := record.FailedRecord{
		OriginFile: record.NotAvailable,
		Store:      store,
		Error:      err.Error(),
	}
	var value any
	switch r := raw.(type) {
	case reader.Complete:
		diag.Key, value = r.Key, r.Value
		if r.OriginFile != "" {
			diag.OriginFile = r.OriginFile
		}
	case reader.Incomplete:
		diag.Key, value = r.Key, r.Value
		if r.OriginFile != "" {
			diag.OriginFile = r.OriginFile
		}
	}
	diag.ValueFragment = record.Fragment(value)
	return record.Failed{Diagnostic: diag}
}
