package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/idbforensics/internal/reader"
)

// Import writes every database, local-storage entry and session version held
// by m into the snapshot, in m's order, in one transaction.
func (s *Snapshot) Import(ctx context.Context, m *reader.Memory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "import: begin tx")
	}
	defer tx.Rollback() // No-op if committed

	for _, db := range m.DBs {
		if err := importDatabase(ctx, tx, db); err != nil {
			return err
		}
	}

	for _, rec := range m.Local {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO local_storage (storage_key, script_key, value)
			VALUES (?, ?, ?)
		`, rec.StorageKey, rec.ScriptKey, rec.Value)
		if err != nil {
			return errors.Wrap(err, "import: local storage")
		}
	}

	for _, host := range m.Session {
		for _, v := range host.Versions {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO session_storage (host, guid, value, leveldb_seq)
				VALUES (?, ?, ?, ?)
			`, host.Host, v.GUID, v.Value, v.LevelDBSequence)
			if err != nil {
				return errors.Wrapf(err, "import: session storage of %q", host.Host)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "import: commit")
	}
	return nil
}

func importDatabase(ctx context.Context, tx *sql.Tx, db *reader.MemoryDatabase) error {
	var number sql.NullInt64
	if db.ID.Valid {
		number = sql.NullInt64{Int64: db.ID.Number, Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO databases (db_number, name, origin)
		VALUES (?, ?, ?)
	`, number, db.ID.Name, db.ID.Origin)
	if err != nil {
		return errors.Wrapf(err, "import: database %q", db.ID.Name)
	}
	dbRow, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "import: database id")
	}

	for pos, c := range db.Collections {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO object_stores (database_id, name, position)
			VALUES (?, ?, ?)
		`, dbRow, c.CollectionName, pos)
		if err != nil {
			return errors.Wrapf(err, "import: object store %q", c.CollectionName)
		}
		storeRow, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "import: object store id")
		}

		for i, rec := range c.Records {
			value, err := encodeValue(rec.Value)
			if err != nil {
				return errors.Wrapf(err, "import: record %d of %q", i, c.CollectionName)
			}
			var origin, decodeErr sql.NullString
			if rec.OriginFile != "" {
				origin = sql.NullString{String: rec.OriginFile, Valid: true}
			}
			if rec.DecodeErr != nil {
				decodeErr = sql.NullString{String: rec.DecodeErr.Error(), Valid: true}
			}
			key := []byte(rec.Key)
			if key == nil {
				key = []byte{}
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO records (object_store_id, raw_key, value, origin_file, decode_error)
				VALUES (?, ?, ?, ?, ?)
			`, storeRow, key, value, origin, decodeErr)
			if err != nil {
				return errors.Wrapf(err, "import: record %d of %q", i, c.CollectionName)
			}
		}
	}
	return nil
}

// encodeValue renders v as JSON text; nil becomes SQL NULL.
func encodeValue(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return sql.NullString{}, errors.Wrap(err, "encode value")
	}
	return sql.NullString{String: strings.TrimSuffix(buf.String(), "\n"), Valid: true}, nil
}
