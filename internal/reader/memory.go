package reader

import (
	"context"
	"iter"

	"github.com/cockroachdb/errors"

	"github.com/roach88/idbforensics/internal/record"
)

// Memory is an in-memory Source. Fixtures and tests build stores with it.
type Memory struct {
	DBs     []*MemoryDatabase
	Local   []LocalRecord
	Session []MemoryHost

	closed bool
}

// MemoryDatabase is a database held by Memory.
type MemoryDatabase struct {
	ID          DatabaseID
	Collections []*MemoryCollection
	// OpenErr, when set, is returned by Store.Database.
	OpenErr error
}

// MemoryCollection is a collection held by a MemoryDatabase.
type MemoryCollection struct {
	CollectionName string
	Records        []MemoryRecord
	// OpenErr, when set, is returned by Database.Collection.
	OpenErr error
	// IterErr, when set, ends iteration after FailAfter records.
	IterErr   error
	FailAfter int
}

// MemoryRecord is the recovered material of one record before resolution.
type MemoryRecord struct {
	Key        record.Key
	Value      any
	OriginFile string
	DecodeErr  error
}

// MemoryHost holds the stored versions of one host.
type MemoryHost struct {
	Host     string
	Versions []SessionValue
}

var _ Source = (*Memory)(nil)

func (m *Memory) Databases(ctx context.Context) ([]DatabaseID, error) {
	if m.closed {
		return nil, errors.Wrap(ErrDatabaseAccess, "store closed")
	}
	ids := make([]DatabaseID, 0, len(m.DBs))
	for _, db := range m.DBs {
		ids = append(ids, db.ID)
	}
	return ids, nil
}

func (m *Memory) Database(ctx context.Context, id DatabaseID) (Database, error) {
	if m.closed {
		return nil, errors.Wrap(ErrDatabaseAccess, "store closed")
	}
	for _, db := range m.DBs {
		if db.ID.Valid && db.ID.Number == id.Number {
			if db.OpenErr != nil {
				return nil, errors.Mark(errors.Wrapf(db.OpenErr, "open database %d", id.Number), ErrDatabaseAccess)
			}
			return &memoryDatabase{store: m, db: db}, nil
		}
	}
	return nil, errors.Wrapf(ErrDatabaseAccess, "database %d not found", id.Number)
}

// Close marks the store closed. Iterations in flight fail on their next record.
func (m *Memory) Close() error {
	m.closed = true
	return nil
}

func (m *Memory) LocalRecords(ctx context.Context) iter.Seq2[LocalRecord, error] {
	return func(yield func(LocalRecord, error) bool) {
		for _, rec := range m.Local {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (m *Memory) Hosts(ctx context.Context) ([]string, error) {
	hosts := make([]string, 0, len(m.Session))
	for _, h := range m.Session {
		hosts = append(hosts, h.Host)
	}
	return hosts, nil
}

func (m *Memory) Versions(ctx context.Context, host string) ([]SessionValue, error) {
	for _, h := range m.Session {
		if h.Host == host {
			return h.Versions, nil
		}
	}
	return nil, errors.Newf("host %q not found", host)
}

type memoryDatabase struct {
	store *Memory
	db    *MemoryDatabase
}

func (d *memoryDatabase) Name() string { return d.db.ID.Name }

func (d *memoryDatabase) CollectionNames(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(d.db.Collections))
	for _, c := range d.db.Collections {
		names = append(names, c.CollectionName)
	}
	return names, nil
}

func (d *memoryDatabase) Collection(ctx context.Context, name string) (Collection, error) {
	for _, c := range d.db.Collections {
		if c.CollectionName != name {
			continue
		}
		if c.OpenErr != nil {
			return nil, errors.Mark(errors.Wrapf(c.OpenErr, "open collection %q", name), ErrCollectionAccess)
		}
		return &memoryCollection{store: d.store, c: c}, nil
	}
	return nil, errors.Wrapf(ErrCollectionAccess, "collection %q not found", name)
}

type memoryCollection struct {
	store *Memory
	c     *MemoryCollection
}

func (c *memoryCollection) Name() string { return c.c.CollectionName }

func (c *memoryCollection) Records(ctx context.Context) iter.Seq2[RawRecord, error] {
	return func(yield func(RawRecord, error) bool) {
		for i, rec := range c.c.Records {
			if c.c.IterErr != nil && i == c.c.FailAfter {
				yield(nil, errors.Mark(errors.Wrapf(c.c.IterErr, "iterate collection %q", c.c.CollectionName), ErrCollectionAccess))
				return
			}
			if c.store.closed {
				yield(nil, errors.Wrapf(ErrCollectionAccess, "iterate collection %q: store closed", c.c.CollectionName))
				return
			}
			if !yield(Resolve(rec.Key, rec.Value, rec.OriginFile, rec.DecodeErr), nil) {
				return
			}
		}
		if c.c.IterErr != nil && c.c.FailAfter >= len(c.c.Records) {
			yield(nil, errors.Mark(errors.Wrapf(c.c.IterErr, "iterate collection %q", c.c.CollectionName), ErrCollectionAccess))
		}
	}
}
