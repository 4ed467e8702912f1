package history

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/randalmurphal/dagflow/internal/xjson"
)

// Key layout:
//
//	run/<runID>                        -> badgerEntry
//	graph/<graphID>/<seq:%020d>/<runID> -> Info
const (
	runPrefix   = "run/"
	graphPrefix = "graph/"
	seqKey      = "meta/sequence"
)

// BadgerStore persists records in a Badger key-value store.
type BadgerStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	mu     sync.RWMutex
	closed bool
}

type badgerEntry struct {
	Info Info   `json:"info"`
	Data []byte `json:"data"`
}

// NewBadgerStore opens a Badger database in dir. An empty dir runs Badger
// fully in memory.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(seqKey), 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

func runKey(runID string) []byte {
	return []byte(runPrefix + runID)
}

func indexKey(info Info) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d/%s", graphPrefix, info.GraphID, info.Sequence, info.RunID))
}

func graphKeyPrefix(graphID string) []byte {
	return []byte(graphPrefix + graphID + "/")
}

// Save implements Store.
func (b *BadgerStore) Save(graphID, runID string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStoreClosed
	}

	next, err := b.seq.Next()
	if err != nil {
		return fmt.Errorf("save run record: %w", err)
	}
	entry := badgerEntry{
		Info: Info{
			GraphID:   graphID,
			RunID:     runID,
			Sequence:  int(next) + 1,
			Timestamp: time.Now().UTC(),
			Size:      int64(len(data)),
		},
		Data: data,
	}
	encodedEntry, err := xjson.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	encodedInfo, err := xjson.Marshal(entry.Info)
	if err != nil {
		return fmt.Errorf("encode run info: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		prev, err := getEntry(txn, runID)
		switch {
		case err == nil:
			if err := txn.Delete(indexKey(prev.Info)); err != nil {
				return err
			}
		case !errors.Is(err, ErrNotFound):
			return err
		}
		if err := txn.Set(runKey(runID), encodedEntry); err != nil {
			return err
		}
		return txn.Set(indexKey(entry.Info), encodedInfo)
	})
	if err != nil {
		return fmt.Errorf("save run record: %w", err)
	}
	return nil
}

func getEntry(txn *badger.Txn, runID string) (badgerEntry, error) {
	var entry badgerEntry
	item, err := txn.Get(runKey(runID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return entry, ErrNotFound
	}
	if err != nil {
		return entry, err
	}
	err = item.Value(func(val []byte) error {
		return xjson.Unmarshal(val, &entry)
	})
	return entry, err
}

// Load implements Store.
func (b *BadgerStore) Load(runID string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		entry, err := getEntry(txn, runID)
		data = entry.Data
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run record: %w", err)
	}
	return data, nil
}

// List implements Store.
func (b *BadgerStore) List(graphID string) ([]Info, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrStoreClosed
	}

	var infos []Info
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = graphKeyPrefix(graphID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var info Info
			if err := it.Item().Value(func(val []byte) error {
				return xjson.Unmarshal(val, &info)
			}); err != nil {
				return err
			}
			infos = append(infos, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	return infos, nil
}

// Delete implements Store.
func (b *BadgerStore) Delete(runID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStoreClosed
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		entry, err := getEntry(txn, runID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(indexKey(entry.Info)); err != nil {
			return err
		}
		return txn.Delete(runKey(runID))
	})
	if err != nil {
		return fmt.Errorf("delete run record: %w", err)
	}
	return nil
}

// DeleteGraph implements Store.
func (b *BadgerStore) DeleteGraph(graphID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStoreClosed
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = graphKeyPrefix(graphID)
		it := txn.NewIterator(opts)

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			runID := string(key[strings.LastIndexByte(string(key), '/')+1:])
			keys = append(keys, key, runKey(runID))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete graph records: %w", err)
	}
	return nil
}

// Close implements Store.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.seq.Release(); err != nil {
		b.db.Close()
		return fmt.Errorf("release sequence: %w", err)
	}
	return b.db.Close()
}
