// Package badger implements the storage contracts on an embedded BadgerDB
// instance. Document rows, chunk rows, the per-owner quota counter, and
// vector records all live in one keyspace partitioned by prefix; the quota
// check-and-reserve relies on Badger's SSI conflict detection.
package badger

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/studyforge/corpus/storage"
)

// Backend wraps a BadgerDB instance and provides low-level operations.
// One backend is shared by the document and vector stores opened on it.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	opts.Logger = &badgerLoggerAdapter{logger: slog.Default()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:     db,
		logger: slog.Default(),
	}, nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// View executes fn in a read-only transaction. Returns
// storage.ErrStorageClosed after Close.
func (b *Backend) View(fn func(tx *badger.Txn) error) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	return b.db.View(fn)
}

// Update executes fn in a read-write transaction and commits it. A commit
// that loses an SSI conflict returns badger.ErrConflict; callers with
// read-modify-write cycles retry. Returns storage.ErrStorageClosed after
// Close.
func (b *Backend) Update(fn func(tx *badger.Txn) error) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	return b.db.Update(fn)
}
