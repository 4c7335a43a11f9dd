// Package persist is the durable local snapshot store used by the fallback
// simulation engine.
package persist

import (
	"errors"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

// ErrKeyNotFound is returned by Get for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// KV is the minimal key-value surface the adapter needs.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Close() error
}

// BadgerKV is a Badger-backed KV.
type BadgerKV struct {
	db *badger.DB
}

func NewBadgerKV(path string) (*BadgerKV, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerKV{db: db}, nil
}

func (s *BadgerKV) Get(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return val, err
}

func (s *BadgerKV) Set(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *BadgerKV) Close() error {
	return s.db.Close()
}

// MemoryKV is an in-process KV for tests and ephemeral clients.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (s *MemoryKV) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *MemoryKV) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(value))
	copy(out, value)
	s.data[string(key)] = out
	return nil
}

func (s *MemoryKV) Close() error {
	return nil
}
