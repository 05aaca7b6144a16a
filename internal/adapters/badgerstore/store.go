// Package badgerstore implements the durable write-queue store on BadgerDB.
//
// Each operation is stored under an 8-byte big-endian sequence key, so
// Badger's natural key ordering is insertion order and FIFO iteration needs
// no secondary index. The store survives process restarts; capacity is the
// write queue's concern, not the store's.
package badgerstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/reviewlab/syncward/internal/domain"
)

var opPrefix = []byte("op/")

// sequenceBandwidth is how many ids a badger.Sequence leases at once.
// Gaps after a crash are fine; only monotonicity matters.
const sequenceBandwidth = 64

// Store implements ports.QueueStore using BadgerDB.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Open creates or opens a queue store in dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	return open(opts)
}

// OpenInMemory creates an ephemeral store, for tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return open(opts)
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	seq, err := db.GetSequence([]byte("seq/op"), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open op sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

// Append persists op under the next sequence id and returns the id.
func (s *Store) Append(ctx context.Context, op domain.QueuedOp) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	id, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next op id: %w", err)
	}
	// Sequence ids start at 0; keep them >= 1 so the zero value stays
	// "not yet persisted".
	id++
	op.ID = id

	data, err := json.Marshal(op)
	if err != nil {
		return 0, fmt.Errorf("encode op: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(opKey(id), data)
	})
	if err != nil {
		return 0, fmt.Errorf("store op %d: %w", id, err)
	}
	return id, nil
}

// List returns all queued operations in insertion order.
func (s *Store) List(ctx context.Context) ([]domain.QueuedOp, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ops []domain.QueuedOp
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         opPrefix,
			PrefetchValues: true,
			PrefetchSize:   32,
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var op domain.QueuedOp
				if err := json.Unmarshal(val, &op); err != nil {
					return fmt.Errorf("decode op: %w", err)
				}
				ops = append(ops, op)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list ops: %w", err)
	}
	return ops, nil
}

// Delete removes the operation with the given id. Missing ids are not an
// error; a concurrent flush may already have removed the entry.
func (s *Store) Delete(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(opKey(id))
	})
	if err != nil {
		return fmt.Errorf("delete op %d: %w", id, err)
	}
	return nil
}

// Count returns the number of queued operations.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         opPrefix,
			PrefetchValues: false,
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count ops: %w", err)
	}
	return count, nil
}

// Close releases the sequence lease and the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("release op sequence: %w", err)
	}
	return s.db.Close()
}

func opKey(id uint64) []byte {
	key := make([]byte, len(opPrefix)+8)
	copy(key, opPrefix)
	binary.BigEndian.PutUint64(key[len(opPrefix):], id)
	return key
}
