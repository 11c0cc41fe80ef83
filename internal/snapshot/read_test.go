package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	crdb "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idbforensics/internal/extract"
	"github.com/roach88/idbforensics/internal/reader"
	"github.com/roach88/idbforensics/internal/record"
)

func testMemory() *reader.Memory {
	return &reader.Memory{
		DBs: []*reader.MemoryDatabase{
			{ID: reader.DatabaseID{Name: "orphan"}},
			{
				ID: reader.DatabaseID{Number: 7, Valid: true, Name: "Teams", Origin: "https_teams.microsoft.com_0"},
				Collections: []*reader.MemoryCollection{
					{
						CollectionName: "conversations",
						Records: []reader.MemoryRecord{
							{Key: record.Key{0x00, 0xE9}, Value: map[string]any{"id": "19:abc", "version": json.Number("1700000000000123456")}, OriginFile: "000003.ldb"},
							{Key: record.Key("empty"), OriginFile: "000003.ldb"},
							{Key: record.Key("orphan"), Value: "v"},
							{Key: record.Key("broken"), OriginFile: "000004.ldb", DecodeErr: errors.New("bad varint")},
						},
					},
					{CollectionName: "people"},
					{CollectionName: ""},
				},
			},
		},
		Local: []reader.LocalRecord{
			{StorageKey: "_https://teams.microsoft.com", ScriptKey: "ts.user", Value: `{"name":"x"}`},
		},
		Session: []reader.MemoryHost{
			{Host: "https://teams.microsoft.com", Versions: []reader.SessionValue{
				{GUID: "g2", Value: "b", LevelDBSequence: 20},
				{GUID: "g1", Value: "a", LevelDBSequence: 10},
			}},
			{Host: "https://login.microsoftonline.com", Versions: []reader.SessionValue{
				{GUID: "g3", Value: "c", LevelDBSequence: 5},
			}},
		},
	}
}

func importedSnapshot(t *testing.T, m *reader.Memory, blobPath string) *Snapshot {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snap.db")

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Import(context.Background(), m))
	require.NoError(t, w.Close())

	s, err := Open(path, blobPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSnapshot_RoundTripStructure(t *testing.T) {
	ctx := context.Background()
	s := importedSnapshot(t, testMemory(), "")

	ids, err := s.Databases(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.False(t, ids[0].Valid, "database without number must stay unidentified")
	assert.True(t, ids[1].Valid)
	assert.Equal(t, int64(7), ids[1].Number)

	db, err := s.Database(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "Teams", db.Name())

	names, err := db.CollectionNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"conversations", "people", ""}, names)
}

func TestSnapshot_RecordResolution(t *testing.T) {
	ctx := context.Background()
	s := importedSnapshot(t, testMemory(), "")

	db, err := s.Database(ctx, reader.DatabaseID{Number: 7, Valid: true})
	require.NoError(t, err)
	coll, err := db.Collection(ctx, "conversations")
	require.NoError(t, err)

	var got []reader.RawRecord
	for raw, err := range coll.Records(ctx) {
		require.NoError(t, err)
		got = append(got, raw)
	}
	require.Len(t, got, 4)

	c, ok := got[0].(reader.Complete)
	require.True(t, ok, "first record should be complete, got %T", got[0])
	assert.Equal(t, record.Key{0x00, 0xE9}, c.Key)
	assert.Equal(t, "000003.ldb", c.OriginFile)
	value := c.Value.(map[string]any)
	assert.Equal(t, json.Number("1700000000000123456"), value["version"], "large integers must not lose precision")

	assert.Equal(t, reader.MissingValue, got[1].(reader.Incomplete).Reason)
	assert.Equal(t, reader.MissingOrigin, got[2].(reader.Incomplete).Reason)

	broken := got[3].(reader.Incomplete)
	assert.Equal(t, reader.Undecodable, broken.Reason)
	assert.Contains(t, broken.Err.Error(), "bad varint")
}

func TestSnapshot_BlobResolution(t *testing.T) {
	ctx := context.Background()
	blobDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(blobDir, "1"), []byte(`{"img":"data"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(blobDir, "2"), []byte(`{not json`), 0o644))

	path := filepath.Join(t.TempDir(), "snap.db")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Import(ctx, &reader.Memory{DBs: []*reader.MemoryDatabase{{
		ID:          reader.DatabaseID{Number: 1, Valid: true},
		Collections: []*reader.MemoryCollection{{CollectionName: "files"}},
	}}}))
	_, err = w.db.Exec(`INSERT INTO records (object_store_id, raw_key, blob_ref, origin_file) VALUES
		(1, 'a', '1', '000005.ldb'),
		(1, 'b', '2', '000005.ldb'),
		(1, 'c', '../escape', '000005.ldb')`)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	readAll := func(blobPath string) []reader.RawRecord {
		s, err := Open(path, blobPath)
		require.NoError(t, err)
		defer s.Close()
		db, err := s.Database(ctx, reader.DatabaseID{Number: 1, Valid: true})
		require.NoError(t, err)
		coll, err := db.Collection(ctx, "files")
		require.NoError(t, err)
		var out []reader.RawRecord
		for raw, err := range coll.Records(ctx) {
			require.NoError(t, err)
			out = append(out, raw)
		}
		return out
	}

	t.Run("with blob dir", func(t *testing.T) {
		got := readAll(blobDir)
		require.Len(t, got, 3)
		c, ok := got[0].(reader.Complete)
		require.True(t, ok)
		assert.Equal(t, map[string]any{"img": "data"}, c.Value)
		assert.Equal(t, reader.Undecodable, got[1].(reader.Incomplete).Reason)
		assert.Equal(t, reader.Undecodable, got[2].(reader.Incomplete).Reason)
	})

	t.Run("without blob dir", func(t *testing.T) {
		got := readAll("")
		require.Len(t, got, 3)
		for _, raw := range got {
			inc := raw.(reader.Incomplete)
			assert.Equal(t, reader.Undecodable, inc.Reason, "externally stored values are not absent")
			assert.ErrorContains(t, inc.Err, "blob directory not given")
		}
	})
}

func TestSnapshot_UndecodableKeepsRecoveredText(t *testing.T) {
	ctx := context.Background()
	m := &reader.Memory{DBs: []*reader.MemoryDatabase{{
		ID: reader.DatabaseID{Number: 1, Valid: true},
		Collections: []*reader.MemoryCollection{{
			CollectionName: "conversations",
			Records: []reader.MemoryRecord{{
				Key:        record.Key("k1"),
				Value:      map[string]any{"body": "partially recovered"},
				OriginFile: "000003.ldb",
				DecodeErr:  errors.New("bad varint"),
			}},
		}},
	}}}

	path := filepath.Join(t.TempDir(), "snap.db")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Import(ctx, m))
	_, err = w.db.Exec(`INSERT INTO records (object_store_id, raw_key, value, origin_file) VALUES
		(1, 'k2', '{"body":"corrupt tail', '000004.ldb')`)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	s, err := Open(path, "")
	require.NoError(t, err)
	defer s.Close()

	fromSnapshot, err := extract.IndexedDB(ctx, s, extract.DefaultOptions(), nil)
	require.NoError(t, err)
	fromMemory, err := extract.IndexedDB(ctx, m, extract.DefaultOptions(), nil)
	require.NoError(t, err)

	require.Len(t, fromSnapshot.Failed, 2)
	require.Len(t, fromMemory.Failed, 1)

	k1 := fromSnapshot.Failed[0]
	assert.Equal(t, record.Key("k1"), k1.Key)
	assert.Contains(t, k1.Error, "bad varint")
	assert.Equal(t, `{"body":"partially recovered"}`, k1.ValueFragment)
	assert.Equal(t, fromMemory.Failed[0].ValueFragment, k1.ValueFragment, "both readers report the same fragment")

	k2 := fromSnapshot.Failed[1]
	assert.Equal(t, record.Key("k2"), k2.Key)
	assert.Equal(t, "000004.ldb", k2.OriginFile)
	assert.Contains(t, k2.ValueFragment, `corrupt tail`)
	assert.NotEqual(t, "null", k2.ValueFragment)
}

func TestSnapshot_AuxiliaryStores(t *testing.T) {
	ctx := context.Background()
	s := importedSnapshot(t, testMemory(), "")

	var local []reader.LocalRecord
	for rec, err := range s.LocalRecords(ctx) {
		require.NoError(t, err)
		local = append(local, rec)
	}
	require.Len(t, local, 1)
	assert.Equal(t, "ts.user", local[0].ScriptKey)

	hosts, err := s.Hosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://teams.microsoft.com", "https://login.microsoftonline.com"}, hosts)

	versions, err := s.Versions(ctx, hosts[0])
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "g2", versions[0].GUID, "versions keep decoder order")
	assert.Equal(t, int64(10), versions[1].LevelDBSequence)
}

func TestSnapshot_CollectionQueryFailureIsCollectionAccess(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, name FROM databases").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "Teams"))
	mock.ExpectQuery("SELECT id FROM object_stores").
		WithArgs(int64(1), "conversations").
		WillReturnError(errors.New("database disk image is malformed"))

	s := New(db, "")
	database, err := s.Database(ctx, reader.DatabaseID{Number: 3, Valid: true})
	require.NoError(t, err)

	_, err = database.Collection(ctx, "conversations")
	require.Error(t, err)
	assert.True(t, crdb.Is(err, reader.ErrCollectionAccess))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshot_RecordIterationFailure(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"raw_key", "value", "blob_ref", "origin_file", "decode_error"}).
		AddRow([]byte("a"), `"v"`, nil, "000003.ldb", nil).
		RowError(0, errors.New("short read"))
	mock.ExpectQuery("SELECT raw_key, value, blob_ref, origin_file, decode_error FROM records").
		WithArgs(int64(5)).
		WillReturnRows(rows)

	coll := &collection{snap: New(db, ""), rowID: 5, name: "conversations"}

	var iterErr error
	for _, err := range coll.Records(ctx) {
		if err != nil {
			iterErr = err
		}
	}
	require.Error(t, iterErr)
	assert.True(t, crdb.Is(iterErr, reader.ErrCollectionAccess))
}

func TestSnapshot_DatabasesQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT db_number, name, origin FROM databases").
		WillReturnError(errors.New("file is not a database"))

	_, err = New(db, "").Databases(context.Background())
	require.Error(t, err)
	assert.True(t, crdb.Is(err, reader.ErrDatabaseAccess))
}

func TestDecodeValue(t *testing.T) {
	v, err := decodeValue([]byte(`{"n": 12345678901234567890} `))
	require.NoError(t, err)
	assert.Equal(t, json.Number("12345678901234567890"), v.(map[string]any)["n"])

	_, err = decodeValue([]byte(`{"a":1} trailing`))
	assert.Error(t, err)

	v, err = decodeValue([]byte(`null`))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestOpenViaRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	src, err := reader.Open(path, "")
	require.NoError(t, err)
	defer src.Close()
	_, ok := src.(*Snapshot)
	assert.True(t, ok)
}
