// Package badger provides a Badger-based implementation of the storage interface.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/pedsa/pedsa/pkg/storage"
)

// Config holds configuration for BadgerStorage.
type Config struct {
	Path              string
	InMemory          bool
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
}

// BadgerStorage implements the Storage interface using Badger.
type BadgerStorage struct {
	db     *badger.DB
	config *Config
}

// NewBadgerStorage creates a new Badger storage instance.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(config.Path)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	return &BadgerStorage{
		db:     db,
		config: config,
	}, nil
}

const (
	entryPrefix    = "entry:"
	relationPrefix = "relation:"
	linkPrefix     = "link:"
)

// Key generation functions. Zero-padded ids keep entries in ID order.
func entryKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", entryPrefix, id))
}

func relationKey(source, target string) []byte {
	return []byte(relationPrefix + source + "\x00" + target)
}

func linkKey(source, target int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", linkPrefix, source, target))
}

// Serialization helpers
func serialize(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &storage.SerializationError{
			Operation: "marshal",
			Cause:     err,
		}
	}
	return data, nil
}

func deserialize(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &storage.SerializationError{
			Operation: "unmarshal",
			Cause:     err,
		}
	}
	return nil
}

// SaveEntry creates or replaces an entry.
func (b *BadgerStorage) SaveEntry(ctx context.Context, e *storage.Entry) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if e.CreatedAt.IsZero() {
			prev, err := getEntryInTxn(txn, e.ID)
			switch {
			case err == nil:
				e.CreatedAt = prev.CreatedAt
			case isNotFound(err):
				e.CreatedAt = time.Now().UTC()
			default:
				return err
			}
		}

		data, err := serialize(e)
		if err != nil {
			return err
		}
		return txn.Set(entryKey(e.ID), data)
	})
}

// GetEntry retrieves an entry by ID.
func (b *BadgerStorage) GetEntry(ctx context.Context, id int64) (*storage.Entry, error) {
	var e *storage.Entry
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = getEntryInTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func getEntryInTxn(txn *badger.Txn, id int64) (*storage.Entry, error) {
	item, err := txn.Get(entryKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, &storage.NotFoundError{
				EntityType: "entry",
				ID:         strconv.FormatInt(id, 10),
			}
		}
		return nil, err
	}

	var e storage.Entry
	if err := item.Value(func(val []byte) error {
		return deserialize(val, &e)
	}); err != nil {
		return nil, err
	}
	return &e, nil
}

func isNotFound(err error) bool {
	var nf *storage.NotFoundError
	return errors.As(err, &nf)
}

// ListEntries lists entries in ID order with optional pagination.
func (b *BadgerStorage) ListEntries(ctx context.Context, filter *storage.EntryFilter) ([]*storage.Entry, int, error) {
	var entries []*storage.Entry
	err := scan(b.db, entryPrefix, func(val []byte) error {
		var e storage.Entry
		if err := deserialize(val, &e); err != nil {
			return err
		}
		entries = append(entries, &e)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return storage.Paginate(entries, filter), len(entries), nil
}

// DeleteEntry deletes an entry and every link touching it.
func (b *BadgerStorage) DeleteEntry(ctx context.Context, id int64) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := getEntryInTxn(txn, id); err != nil {
			return err
		}
		if err := txn.Delete(entryKey(id)); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(linkPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var l storage.Link
			if err := item.Value(func(val []byte) error {
				return deserialize(val, &l)
			}); err != nil {
				return err
			}
			if l.Source == id || l.Target == id {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveRelation creates or replaces the relation between two keywords.
func (b *BadgerStorage) SaveRelation(ctx context.Context, r *storage.Relation) error {
	data, err := serialize(r)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(relationKey(r.Source, r.Target), data)
	})
}

// ListRelations lists relations ordered by source, then target.
func (b *BadgerStorage) ListRelations(ctx context.Context) ([]*storage.Relation, error) {
	var relations []*storage.Relation
	err := scan(b.db, relationPrefix, func(val []byte) error {
		var r storage.Relation
		if err := deserialize(val, &r); err != nil {
			return err
		}
		relations = append(relations, &r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return relations, nil
}

// DeleteRelation deletes the relation from source to target.
func (b *BadgerStorage) DeleteRelation(ctx context.Context, source, target string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		key := relationKey(source, target)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &storage.NotFoundError{
					EntityType: "relation",
					ID:         source + "->" + target,
				}
			}
			return err
		}
		return txn.Delete(key)
	})
}

// SaveLink creates or replaces the link between two entries.
func (b *BadgerStorage) SaveLink(ctx context.Context, l *storage.Link) error {
	data, err := serialize(l)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(linkKey(l.Source, l.Target), data)
	})
}

// ListLinks lists links ordered by source, then target.
func (b *BadgerStorage) ListLinks(ctx context.Context) ([]*storage.Link, error) {
	var links []*storage.Link
	err := scan(b.db, linkPrefix, func(val []byte) error {
		var l storage.Link
		if err := deserialize(val, &l); err != nil {
			return err
		}
		links = append(links, &l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

// scan calls fn with every value under prefix in key order.
func scan(db *badger.DB, prefix string, fn func(val []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the Badger database.
func (b *BadgerStorage) Close() error {
	if !b.config.InMemory {
		// best effort; ErrNoRewrite just means there was nothing to collect
		_ = b.db.RunValueLogGC(0.5)
	}
	return b.db.Close()
}
