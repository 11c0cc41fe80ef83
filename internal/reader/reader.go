package reader

import (
	"context"
	"iter"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrDatabaseAccess marks a failure to enumerate or open a logical database.
	ErrDatabaseAccess = errors.New("database access failed")
	// ErrCollectionAccess marks a failure to open or iterate a collection.
	ErrCollectionAccess = errors.New("collection access failed")
)

// DatabaseID identifies one logical database inside a store.
// Valid is false when the reader found a database without an identifiable id.
type DatabaseID struct {
	Number int64
	Valid  bool
	Name   string
	Origin string
}

// Store is an opened structured key-value store.
type Store interface {
	// Databases returns database ids in reported order.
	Databases(ctx context.Context) ([]DatabaseID, error)
	// Database opens one database. Only valid ids may be passed.
	Database(ctx context.Context, id DatabaseID) (Database, error)
	Close() error
}

// Database is one logical database.
type Database interface {
	Name() string
	// CollectionNames returns collection names in reported order.
	// An empty name stands for a collection without a name.
	CollectionNames(ctx context.Context) ([]string, error)
	Collection(ctx context.Context, name string) (Collection, error)
}

// Collection is one named object store.
type Collection interface {
	Name() string
	// Records yields raw records lazily in reported order.
	// A non-nil error ends the sequence and is fatal to the collection.
	Records(ctx context.Context) iter.Seq2[RawRecord, error]
}

// LocalRecord is one entry of a flat key to text store.
type LocalRecord struct {
	StorageKey string
	ScriptKey  string
	Value      string
}

// LocalStore is a flat key to text store.
type LocalStore interface {
	LocalRecords(ctx context.Context) iter.Seq2[LocalRecord, error]
}

// SessionValue is one stored version of a host's session data.
type SessionValue struct {
	GUID            string
	Value           string
	LevelDBSequence int64
}

// SessionStore is a host-keyed store with several versions per host.
type SessionStore interface {
	// Hosts returns host keys in reported order.
	Hosts(ctx context.Context) ([]string, error)
	Versions(ctx context.Context, host string) ([]SessionValue, error)
}

// Source bundles every kind of store a single input can provide.
type Source interface {
	Store
	LocalStore
	SessionStore
}

var openers = map[string]func(path, blobPath string) (Source, error){}

// Register associates a file extension (".db", ".yaml") with an opener.
// Called from init functions of concrete reader packages.
func Register(ext string, open func(path, blobPath string) (Source, error)) {
	openers[strings.ToLower(ext)] = open
}

// Open opens path with the opener registered for its extension.
func Open(path, blobPath string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	open, ok := openers[ext]
	if !ok {
		return nil, errors.Newf("no store reader registered for %q (path %s)", ext, path)
	}
	src, err := open(path, blobPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return src, nil
}
