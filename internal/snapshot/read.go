package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/roach88/idbforensics/internal/reader"
	"github.com/roach88/idbforensics/internal/record"
)

// Databases returns every database in decoder order.
func (s *Snapshot) Databases(ctx context.Context) ([]reader.DatabaseID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT db_number, name, origin
		FROM databases
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "query databases"), reader.ErrDatabaseAccess)
	}
	defer rows.Close()

	ids := []reader.DatabaseID{}
	for rows.Next() {
		var number sql.NullInt64
		var id reader.DatabaseID
		if err := rows.Scan(&number, &id.Name, &id.Origin); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "scan database"), reader.ErrDatabaseAccess)
		}
		id.Number, id.Valid = number.Int64, number.Valid
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "iterate databases"), reader.ErrDatabaseAccess)
	}
	return ids, nil
}

// Database opens the first database carrying id.Number.
func (s *Snapshot) Database(ctx context.Context, id reader.DatabaseID) (reader.Database, error) {
	if !id.Valid {
		return nil, errors.Wrap(reader.ErrDatabaseAccess, "database without id")
	}
	var rowID int64
	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name
		FROM databases
		WHERE db_number = ?
		ORDER BY id ASC
		LIMIT 1
	`, id.Number).Scan(&rowID, &name)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open database %d", id.Number), reader.ErrDatabaseAccess)
	}
	return &database{snap: s, rowID: rowID, name: name}, nil
}

type database struct {
	snap  *Snapshot
	rowID int64
	name  string
}

func (d *database) Name() string { return d.name }

func (d *database) CollectionNames(ctx context.Context) ([]string, error) {
	rows, err := d.snap.db.QueryContext(ctx, `
		SELECT name
		FROM object_stores
		WHERE database_id = ?
		ORDER BY position ASC, id ASC
	`, d.rowID)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "query object stores of %q", d.name), reader.ErrDatabaseAccess)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "scan object store"), reader.ErrDatabaseAccess)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "iterate object stores"), reader.ErrDatabaseAccess)
	}
	return names, nil
}

func (d *database) Collection(ctx context.Context, name string) (reader.Collection, error) {
	var rowID int64
	err := d.snap.db.QueryRowContext(ctx, `
		SELECT id
		FROM object_stores
		WHERE database_id = ? AND name = ?
		ORDER BY position ASC, id ASC
		LIMIT 1
	`, d.rowID, name).Scan(&rowID)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open object store %q", name), reader.ErrCollectionAccess)
	}
	return &collection{snap: d.snap, rowID: rowID, name: name}, nil
}

type collection struct {
	snap  *Snapshot
	rowID int64
	name  string
}

func (c *collection) Name() string { return c.name }

// Records streams the object store's records. Rows are resolved one at a time;
// a query or scan failure ends the sequence with ErrCollectionAccess.
func (c *collection) Records(ctx context.Context) iter.Seq2[reader.RawRecord, error] {
	return func(yield func(reader.RawRecord, error) bool) {
		rows, err := c.snap.db.QueryContext(ctx, `
			SELECT raw_key, value, blob_ref, origin_file, decode_error
			FROM records
			WHERE object_store_id = ?
			ORDER BY id ASC
		`, c.rowID)
		if err != nil {
			yield(nil, errors.Mark(errors.Wrapf(err, "query records of %q", c.name), reader.ErrCollectionAccess))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				key                               []byte
				value, blobRef, origin, decodeErr sql.NullString
			)
			if err := rows.Scan(&key, &value, &blobRef, &origin, &decodeErr); err != nil {
				yield(nil, errors.Mark(errors.Wrapf(err, "scan record of %q", c.name), reader.ErrCollectionAccess))
				return
			}
			raw := c.snap.resolve(record.Key(key), value, blobRef, origin.String, decodeErr)
			if !yield(raw, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, errors.Mark(errors.Wrapf(err, "iterate records of %q", c.name), reader.ErrCollectionAccess))
		}
	}
}

// resolve turns one records row into a RawRecord. Undecodable rows keep
// whatever text was recovered so diagnostics and the raw dump can show it.
func (s *Snapshot) resolve(key record.Key, value, blobRef sql.NullString, origin string, decodeErr sql.NullString) reader.RawRecord {
	var (
		text    []byte
		blobErr error
	)
	switch {
	case value.Valid:
		text = []byte(value.String)
	case blobRef.Valid && s.blobPath == "":
		blobErr = errors.Newf("blob %q: blob directory not given", blobRef.String)
	case blobRef.Valid:
		text, blobErr = s.readBlob(blobRef.String)
	}

	if decodeErr.Valid {
		return reader.Resolve(key, recovered(text), origin, errors.Newf("decoder: %s", decodeErr.String))
	}
	if blobErr != nil {
		return reader.Resolve(key, nil, origin, blobErr)
	}
	if text == nil {
		return reader.Resolve(key, nil, origin, nil)
	}

	v, err := decodeValue(text)
	if err != nil {
		return reader.Resolve(key, string(text), origin, err)
	}
	return reader.Resolve(key, v, origin, nil)
}

// recovered is the decoded value when text parses, the text itself otherwise.
func recovered(text []byte) any {
	if text == nil {
		return nil
	}
	if v, err := decodeValue(text); err == nil {
		return v
	}
	return string(text)
}

func (s *Snapshot) readBlob(ref string) ([]byte, error) {
	if !filepath.IsLocal(ref) {
		return nil, errors.Newf("blob reference %q escapes the blob directory", ref)
	}
	data, err := os.ReadFile(filepath.Join(s.blobPath, ref))
	if err != nil {
		return nil, errors.Wrapf(err, "read blob %q", ref)
	}
	return data, nil
}

// decodeValue parses JSON text keeping numbers as json.Number so large
// integers survive unchanged. Trailing data is an error.
func decodeValue(text []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(err, "decode value")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decode value: trailing data after JSON value")
	}
	return v, nil
}

// LocalRecords streams local-storage entries in decoder order.
func (s *Snapshot) LocalRecords(ctx context.Context) iter.Seq2[reader.LocalRecord, error] {
	return func(yield func(reader.LocalRecord, error) bool) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT storage_key, script_key, value
			FROM local_storage
			ORDER BY id ASC
		`)
		if err != nil {
			yield(reader.LocalRecord{}, errors.Wrap(err, "query local storage"))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var rec reader.LocalRecord
			if err := rows.Scan(&rec.StorageKey, &rec.ScriptKey, &rec.Value); err != nil {
				yield(reader.LocalRecord{}, errors.Wrap(err, "scan local storage"))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(reader.LocalRecord{}, errors.Wrap(err, "iterate local storage"))
		}
	}
}

// Hosts returns distinct session-storage hosts in order of first appearance.
func (s *Snapshot) Hosts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT host
		FROM session_storage
		GROUP BY host
		ORDER BY MIN(id) ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query session hosts")
	}
	defer rows.Close()

	hosts := []string{}
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, errors.Wrap(err, "scan session host")
		}
		hosts = append(hosts, host)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate session hosts")
	}
	return hosts, nil
}

// Versions returns a host's stored versions in decoder order.
func (s *Snapshot) Versions(ctx context.Context, host string) ([]reader.SessionValue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guid, value, leveldb_seq
		FROM session_storage
		WHERE host = ?
		ORDER BY id ASC
	`, host)
	if err != nil {
		return nil, errors.Wrapf(err, "query session versions of %q", host)
	}
	defer rows.Close()

	versions := []reader.SessionValue{}
	for rows.Next() {
		var v reader.SessionValue
		if err := rows.Scan(&v.GUID, &v.Value, &v.LevelDBSequence); err != nil {
			return nil, errors.Wrap(err, "scan session version")
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate session versions")
	}
	return versions, nil
}
