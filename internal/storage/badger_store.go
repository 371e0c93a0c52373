package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/nornicgraph/nornicgraph/internal/graph"
)

const (
	prefixSchemaConcept = byte(0x01) // keyspace:0x00:prefix:conceptID -> gob(SchemaConcept)
	prefixInstance      = byte(0x02) // keyspace:0x00:prefix:conceptID -> gob(Thing)
)

func init() {
	gob.Register(string(""))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register(time.Time{})
}

func schemaConceptKey(keyspace string, id graph.ConceptID) []byte {
	return recordKey(keyspace, prefixSchemaConcept, id)
}

func instanceKey(keyspace string, id graph.ConceptID) []byte {
	return recordKey(keyspace, prefixInstance, id)
}

func recordKey(keyspace string, prefix byte, id graph.ConceptID) []byte {
	key := make([]byte, 0, len(keyspace)+1+1+8)
	key = append(key, []byte(keyspace)...)
	key = append(key, 0x00, prefix)
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], uint64(id))
	key = append(key, idBuf[:]...)
	return key
}

func recordPrefix(keyspace string, prefix byte) []byte {
	key := make([]byte, 0, len(keyspace)+2)
	key = append(key, []byte(keyspace)...)
	key = append(key, 0x00, prefix)
	return key
}

// BadgerVertexStore is the durable VertexStore, grounded on
// pkg/storage/badger.go's prefix-byte key scheme and gob record
// encoding (gob preserves the concrete Go types SchemaConcept.Rule
// and Thing.Value carry, the same reason the teacher's encodeNode
// picks gob over JSON).
type BadgerVertexStore struct {
	db *badger.DB
}

// NewBadgerVertexStore opens (or creates) a Badger database rooted at
// dataDir.
func NewBadgerVertexStore(dataDir string) (*BadgerVertexStore, error) {
	opts := badger.DefaultOptions(dataDir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerVertexStore{db: db}, nil
}

func encodeRecord(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *BadgerVertexStore) LoadSchema(keyspace string) ([]graph.SchemaConcept, error) {
	var out []graph.SchemaConcept
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := recordPrefix(keyspace, prefixSchemaConcept)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var c graph.SchemaConcept
				if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&c); err != nil {
					return err
				}
				out = append(out, c)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (b *BadgerVertexStore) SaveSchema(keyspace string, concepts []graph.SchemaConcept) error {
	return b.db.Update(func(txn *badger.Txn) error {
		prefix := recordPrefix(keyspace, prefixSchemaConcept)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var stale [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			stale = append(stale, k)
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for _, c := range concepts {
			data, err := encodeRecord(c)
			if err != nil {
				return err
			}
			if err := txn.Set(schemaConceptKey(keyspace, c.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerVertexStore) LoadInstances(keyspace string) ([]graph.Thing, error) {
	var out []graph.Thing
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := recordPrefix(keyspace, prefixInstance)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var th graph.Thing
				if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&th); err != nil {
					return err
				}
				out = append(out, th)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (b *BadgerVertexStore) SaveInstances(keyspace string, things []graph.Thing) error {
	return b.db.Update(func(txn *badger.Txn) error {
		prefix := recordPrefix(keyspace, prefixInstance)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var stale [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			stale = append(stale, k)
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for _, th := range things {
			data, err := encodeRecord(th)
			if err != nil {
				return err
			}
			if err := txn.Set(instanceKey(keyspace, th.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerVertexStore) Keyspaces() ([]string, error) {
	seen := map[string]bool{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			if idx := bytes.IndexByte(k, 0x00); idx >= 0 {
				seen[string(k[:idx])] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out, nil
}

func (b *BadgerVertexStore) Close() error {
	return b.db.Close()
}

var _ VertexStore = (*BadgerVertexStore)(nil)
