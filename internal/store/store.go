// Package store implements the engine's content-addressed artifact store.
// Blobs and directory trees are immutable records keyed by their digest and
// persisted in BadgerDB, so memoized artifacts survive process restarts.
// All operations are safe for concurrent use.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/vk/rulegraph/internal/digest"
)

// Key prefixes inside badger. Blobs hold raw content; trees hold the
// canonical encoding of a directory listing.
const (
	blobPrefix = "b/"
	treePrefix = "t/"
)

// Config holds the settings for opening a Store.
type Config struct {
	// Path is the directory for the on-disk store. Ignored when InMemory
	// is set.
	Path string

	// InMemory disables persistence. Useful for tests.
	InMemory bool

	// SyncWrites forces fsync on every write. Slower, durable.
	SyncWrites bool

	// Logger receives badger's internal log output. If nil, that output
	// is discarded.
	Logger *slog.Logger
}

// Store is a content-addressed blob and tree store.
type Store struct {
	db *badger.DB
}

// New opens a Store with the given configuration.
func New(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("store: Path is required for a persistent store")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: opening badger at %q: %w", cfg.Path, err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs one round of badger value-log garbage collection. It is safe
// to call at any time; badger returns ErrNoRewrite when there is nothing
// to collect, which RunGC treats as success.
func (s *Store) RunGC(ctx context.Context) error {
	err := s.db.RunValueLogGC(0.5)
	if err == badger.ErrNoRewrite || err == badger.ErrGCInMemoryMode {
		return nil
	}
	return err
}

// WriteBlob stores raw bytes and returns their Digest. Writing identical
// content any number of times stores exactly one copy.
func (s *Store) WriteBlob(b []byte) (digest.Digest, error) {
	d := digest.FromBytes(b)
	if err := s.setIfAbsent(blobKey(d), b); err != nil {
		return digest.Digest{}, fmt.Errorf("store: writing blob: %w", err)
	}
	return d, nil
}

// setIfAbsent writes a content-addressed key. The existence check runs in
// its own read transaction; the write itself performs no reads, so
// concurrent writers of the same content cannot conflict with each other.
// The key's value is fully determined by the key, which makes losing the
// check-then-set race harmless and retrying on a conflict always safe.
func (s *Store) setIfAbsent(key, value []byte) error {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if err == nil {
		return nil
	}
	if err != badger.ErrKeyNotFound {
		return err
	}
	owned := append([]byte(nil), value...)
	for {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(key, owned)
		})
		if err != badger.ErrConflict {
			return err
		}
	}
}

// ReadBlob returns the bytes identified by d, or a NotFoundError when the
// digest has never been written (or has been collected).
func (s *Store) ReadBlob(d digest.Digest) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(d))
		if err == badger.ErrKeyNotFound {
			return &NotFoundError{Digest: d}
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HasBlob reports whether d is present without reading its content.
func (s *Store) HasBlob(d digest.Digest) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(blobKey(d))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func blobKey(d digest.Digest) []byte {
	return append([]byte(blobPrefix), d.Hash[:]...)
}

func treeKey(d digest.Digest) []byte {
	return append([]byte(treePrefix), d.Hash[:]...)
}

// badgerLogger adapts slog to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(f string, args ...any) {
	l.logger.Error(fmt.Sprintf(f, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(f string, args ...any) {
	l.logger.Warn(fmt.Sprintf(f, args...), "component", "badger")
}

func (l *badgerLogger) Infof(f string, args ...any) {
	l.logger.Debug(fmt.Sprintf(f, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(f string, args ...any) {
	l.logger.Debug(fmt.Sprintf(f, args...), "component", "badger")
}
