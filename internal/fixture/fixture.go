// Package fixture loads YAML descriptions of decoded browser storage.
//
// A fixture stands in for a real decoder's output: it lists databases,
// object stores and records exactly as a store reader would report them, plus
// local-storage entries and session-storage versions. Fixtures are used as
// test inputs, as direct extraction inputs (".yaml"/".yml"), and as the
// source for "snapshot import".
//
// Example:
//
//	databases:
//	  - id: 1
//	    name: Teams:https_teams.microsoft.com_0
//	    object_stores:
//	      - name: conversations
//	        records:
//	          - key: "19:abc@thread.skype"
//	            origin_file: 000003.ldb
//	            value: {id: "19:abc@thread.skype", version: 3}
//	          - key: broken
//	            origin_file: 000004.ldb
//	            decode_error: truncated varint
//	local_storage:
//	  - storage_key: _https://teams.microsoft.com
//	    script_key: ts.user
//	    value: '{"name":"x"}'
//	session_storage:
//	  - host: https://teams.microsoft.com
//	    versions:
//	      - {guid: g1, value: "a", leveldb_sequence_number: 10}
package fixture

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/idbforensics/internal/reader"
	"github.com/roach88/idbforensics/internal/record"
)

func init() {
	open := func(path, _ string) (reader.Source, error) {
		return Load(path)
	}
	reader.Register(".yaml", open)
	reader.Register(".yml", open)
}

// File is the top-level YAML document.
type File struct {
	Databases      []Database    `yaml:"databases"`
	LocalStorage   []LocalEntry  `yaml:"local_storage"`
	SessionStorage []SessionHost `yaml:"session_storage"`
}

// Database is one logical database. A missing id means "no identifiable id".
type Database struct {
	ID           *int64        `yaml:"id"`
	Name         string        `yaml:"name"`
	Origin       string        `yaml:"origin"`
	OpenError    string        `yaml:"open_error"`
	ObjectStores []ObjectStore `yaml:"object_stores"`
}

// ObjectStore is one collection. OpenError and IterError simulate reader failures.
type ObjectStore struct {
	Name      string   `yaml:"name"`
	OpenError string   `yaml:"open_error"`
	IterError string   `yaml:"iter_error"`
	FailAfter int      `yaml:"fail_after"`
	Records   []Record `yaml:"records"`
}

// Record is one raw record. KeyHex, when set, gives the raw key bytes.
type Record struct {
	Key         string `yaml:"key"`
	KeyHex      string `yaml:"key_hex"`
	Value       any    `yaml:"value"`
	OriginFile  string `yaml:"origin_file"`
	DecodeError string `yaml:"decode_error"`
}

// LocalEntry is one local-storage entry.
type LocalEntry struct {
	StorageKey string `yaml:"storage_key"`
	ScriptKey  string `yaml:"script_key"`
	Value      string `yaml:"value"`
}

// SessionHost is one host with its stored versions.
type SessionHost struct {
	Host     string           `yaml:"host"`
	Versions []SessionVersion `yaml:"versions"`
}

// SessionVersion is one stored session-storage version.
type SessionVersion struct {
	GUID            string `yaml:"guid"`
	Value           string `yaml:"value"`
	LevelDBSequence int64  `yaml:"leveldb_sequence_number"`
}

// Load reads a fixture file into an in-memory store.
func Load(path string) (*reader.Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read fixture %s", path)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse fixture %s", path)
	}
	return m, nil
}

// Parse decodes fixture YAML into an in-memory store.
func Parse(data []byte) (*reader.Memory, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "unmarshal yaml")
	}
	return f.Memory()
}

// Memory converts the fixture into an in-memory store.
func (f *File) Memory() (*reader.Memory, error) {
	m := &reader.Memory{}

	for i, db := range f.Databases {
		mdb := &reader.MemoryDatabase{
			ID: reader.DatabaseID{Name: db.Name, Origin: db.Origin},
		}
		if db.ID != nil {
			mdb.ID.Number, mdb.ID.Valid = *db.ID, true
		}
		if db.OpenError != "" {
			mdb.OpenErr = errors.New(db.OpenError)
		}
		for _, st := range db.ObjectStores {
			c := &reader.MemoryCollection{CollectionName: st.Name, FailAfter: st.FailAfter}
			if st.OpenError != "" {
				c.OpenErr = errors.New(st.OpenError)
			}
			if st.IterError != "" {
				c.IterErr = errors.New(st.IterError)
			}
			for j, rec := range st.Records {
				mr, err := rec.memory()
				if err != nil {
					return nil, errors.Wrapf(err, "databases[%d] %q record %d", i, st.Name, j)
				}
				c.Records = append(c.Records, mr)
			}
			mdb.Collections = append(mdb.Collections, c)
		}
		m.DBs = append(m.DBs, mdb)
	}

	for _, e := range f.LocalStorage {
		m.Local = append(m.Local, reader.LocalRecord{StorageKey: e.StorageKey, ScriptKey: e.ScriptKey, Value: e.Value})
	}

	for _, h := range f.SessionStorage {
		host := reader.MemoryHost{Host: h.Host}
		for _, v := range h.Versions {
			host.Versions = append(host.Versions, reader.SessionValue{GUID: v.GUID, Value: v.Value, LevelDBSequence: v.LevelDBSequence})
		}
		m.Session = append(m.Session, host)
	}

	return m, nil
}

func (r Record) memory() (reader.MemoryRecord, error) {
	key := record.KeyFromString(r.Key)
	if r.KeyHex != "" {
		raw, err := hex.DecodeString(r.KeyHex)
		if err != nil {
			return reader.MemoryRecord{}, errors.Wrap(err, "key_hex")
		}
		key = record.Key(raw)
	}
	mr := reader.MemoryRecord{Key: key, Value: normalizeYAML(r.Value), OriginFile: r.OriginFile}
	if r.DecodeError != "" {
		mr.DecodeErr = errors.New(r.DecodeError)
	}
	return mr, nil
}

// normalizeYAML turns map[any]any produced for non-string keys into
// map[string]any so values are JSON-compatible.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeYAML(elem)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[fmt.Sprint(k)] = normalizeYAML(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeYAML(elem)
		}
		return out
	default:
		return val
	}
}
