package storage

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/suxatcode/helix-db-sub002/internal/herr"
)

// This file holds the neighbor-graph rows the HNSW index (package
// vector) needs — entry point and per-level neighbor lists — kept in
// package storage because their key builders (keys.go) are
// unexported. Package vector only ever calls these methods; it never
// touches a *badger.Txn directly (spec.md §4.3: "the vector index is a
// client of the same transactional store, not a parallel one").

// entryPointRecord is the singleton row naming the current HNSW
// insertion point and its top level.
type entryPointRecord struct {
	ID    ID
	Level uint8
}

func encodeEntryPoint(r entryPointRecord) []byte {
	buf := make([]byte, 17)
	copy(buf, r.ID.Bytes())
	buf[16] = r.Level
	return buf
}

func decodeEntryPoint(data []byte) entryPointRecord {
	return entryPointRecord{ID: IDFromBytes(data[:16]), Level: data[16]}
}

// EntryPoint returns the current HNSW entry point, ok=false if the
// index is empty.
func (r *ReadTxn) EntryPoint() (id ID, level uint8, ok bool, err error) {
	item, gerr := r.txn.Get(entryPointKey())
	if gerr == badger.ErrKeyNotFound {
		return NilID, 0, false, nil
	}
	if gerr != nil {
		return NilID, 0, false, herr.Wrap(herr.KindStorage, "get entry point", gerr)
	}
	var rec entryPointRecord
	verr := item.Value(func(val []byte) error {
		rec = decodeEntryPoint(val)
		return nil
	})
	if verr != nil {
		return NilID, 0, false, herr.Wrap(herr.KindStorage, "decode entry point", verr)
	}
	return rec.ID, rec.Level, true, nil
}

// SetEntryPoint promotes id/level as the new HNSW entry point.
func (w *WriteTxn) SetEntryPoint(id ID, level uint8) error {
	data := encodeEntryPoint(entryPointRecord{ID: id, Level: level})
	if err := w.txn.Set(entryPointKey(), data); err != nil {
		return herr.Wrap(herr.KindStorage, "set entry point", err)
	}
	return nil
}

// ClearEntryPoint removes the entry point row (the last vector in the
// index was deleted).
func (w *WriteTxn) ClearEntryPoint() error {
	if err := w.txn.Delete(entryPointKey()); err != nil && err != badger.ErrKeyNotFound {
		return herr.Wrap(herr.KindStorage, "clear entry point", err)
	}
	return nil
}

// neighbor lists are stored closest-first, as a flat run of 16-byte
// ids — order carries meaning (spec.md §4.3), so this is one row per
// (level, vector), not an exploded DUPSORT table.

func encodeNeighbors(ids []ID) []byte {
	buf := make([]byte, len(ids)*16)
	for i, id := range ids {
		copy(buf[i*16:], id.Bytes())
	}
	return buf
}

func decodeNeighbors(data []byte) []ID {
	n := len(data) / 16
	ids := make([]ID, n)
	for i := 0; i < n; i++ {
		ids[i] = IDFromBytes(data[i*16 : i*16+16])
	}
	return ids
}

// GetNeighbors returns the ordered neighbor list of id at level, or an
// empty slice if the row does not exist.
func (r *ReadTxn) GetNeighbors(level uint8, id ID) ([]ID, error) {
	item, err := r.txn.Get(vectorLevelKey(level, id))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, herr.Wrap(herr.KindStorage, "get neighbors", err)
	}
	var ids []ID
	verr := item.Value(func(val []byte) error {
		ids = decodeNeighbors(val)
		return nil
	})
	if verr != nil {
		return nil, herr.Wrap(herr.KindStorage, "decode neighbors", verr)
	}
	return ids, nil
}

// SetNeighbors replaces the ordered neighbor list of id at level.
func (w *WriteTxn) SetNeighbors(level uint8, id ID, neighbors []ID) error {
	if err := w.txn.Set(vectorLevelKey(level, id), encodeNeighbors(neighbors)); err != nil {
		return herr.Wrap(herr.KindStorage, "set neighbors", err)
	}
	return nil
}

// DeleteNeighbors removes id's neighbor-list row at level.
func (w *WriteTxn) DeleteNeighbors(level uint8, id ID) error {
	if err := w.txn.Delete(vectorLevelKey(level, id)); err != nil && err != badger.ErrKeyNotFound {
		return herr.Wrap(herr.KindStorage, "delete neighbors", err)
	}
	return nil
}

// AllVectors scans every row of the vectors table, for brute-force
// search and recall benchmarking (spec.md §4.3 brute_force_search_v).
func (r *ReadTxn) AllVectors() ([]*HVector, error) {
	prefix := []byte{prefixVector}
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := r.txn.NewIterator(opts)
	defer it.Close()

	var vectors []*HVector
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var v *HVector
		if err := item.Value(func(val []byte) error {
			var decodeErr error
			v, decodeErr = decodeVector(val)
			return decodeErr
		}); err != nil {
			return nil, herr.Wrap(herr.KindConversion, "decode vector", err)
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}
