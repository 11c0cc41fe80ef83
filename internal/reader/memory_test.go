package reader

import (
	"context"
	"errors"
	"testing"

	crdb "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idbforensics/internal/record"
)

func newTestMemory() *Memory {
	return &Memory{
		DBs: []*MemoryDatabase{
			{
				ID: DatabaseID{Number: 1, Valid: true, Name: "Teams:https_teams.microsoft.com_0"},
				Collections: []*MemoryCollection{
					{
						CollectionName: "conversations",
						Records: []MemoryRecord{
							{Key: record.Key("a"), Value: "v1", OriginFile: "000003.ldb"},
							{Key: record.Key("b"), Value: "v2", OriginFile: "000003.ldb"},
							{Key: record.Key("c"), Value: "v3", OriginFile: "000004.ldb"},
						},
					},
				},
			},
		},
	}
}

func collectKeys(t *testing.T, c Collection) ([]string, error) {
	t.Helper()
	var keys []string
	for raw, err := range c.Records(context.Background()) {
		if err != nil {
			return keys, err
		}
		keys = append(keys, raw.RecordKey().String())
	}
	return keys, nil
}

func TestMemory_TraversalOrder(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()

	ids, err := m.Databases(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	db, err := m.Database(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Teams:https_teams.microsoft.com_0", db.Name())

	coll, err := db.Collection(ctx, "conversations")
	require.NoError(t, err)

	keys, err := collectKeys(t, coll)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestMemory_CollectionOpenError(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	m.DBs[0].Collections[0].OpenErr = errors.New("corrupt object store meta")

	db, err := m.Database(ctx, m.DBs[0].ID)
	require.NoError(t, err)

	_, err = db.Collection(ctx, "conversations")
	require.Error(t, err)
	assert.True(t, crdb.Is(err, ErrCollectionAccess))
}

func TestMemory_IterErrAfterRecords(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()
	m.DBs[0].Collections[0].IterErr = errors.New("bad block")
	m.DBs[0].Collections[0].FailAfter = 2

	db, err := m.Database(ctx, m.DBs[0].ID)
	require.NoError(t, err)
	coll, err := db.Collection(ctx, "conversations")
	require.NoError(t, err)

	keys, err := collectKeys(t, coll)
	require.Error(t, err)
	assert.True(t, crdb.Is(err, ErrCollectionAccess))
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestMemory_CloseFailsIteration(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory()

	db, err := m.Database(ctx, m.DBs[0].ID)
	require.NoError(t, err)
	coll, err := db.Collection(ctx, "conversations")
	require.NoError(t, err)

	var seen int
	var iterErr error
	for _, err := range coll.Records(ctx) {
		if err != nil {
			iterErr = err
			break
		}
		seen++
		if seen == 1 {
			require.NoError(t, m.Close())
		}
	}
	assert.Equal(t, 1, seen)
	assert.True(t, crdb.Is(iterErr, ErrCollectionAccess))
}

func TestMemory_UnknownDatabase(t *testing.T) {
	m := newTestMemory()
	_, err := m.Database(context.Background(), DatabaseID{Number: 99, Valid: true})
	require.Error(t, err)
	assert.True(t, crdb.Is(err, ErrDatabaseAccess))
}

func TestOpen_UnknownExtension(t *testing.T) {
	_, err := Open("/tmp/input.unknown", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no store reader registered")
}
