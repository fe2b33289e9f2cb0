// Package boltstore is the embedded metadata backend: one bbolt file, one
// bucket per collection.
package boltstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/driftbox/driftbox/internal/metadata"
)

var rootBucket = []byte("collections")

// Store keeps every collection as a nested bucket under "collections",
// keyed by the collection path. Stream returns documents in key order.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise bolt database: %w", err)
	}

	return &Store{db: db}, nil
}

func collectionBucket(tx *bolt.Tx, col metadata.CollectionRef) *bolt.Bucket {
	return tx.Bucket(rootBucket).Bucket([]byte(col))
}

func (s *Store) Get(ctx context.Context, ref metadata.DocumentRef) (metadata.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := collectionBucket(tx, ref.Collection)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(ref.ID)); v != nil {
			// v is only valid inside the transaction
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%s: %w", ref, metadata.ErrNotFound)
	}
	return metadata.DecodeJSON(raw)
}

func (s *Store) Set(ctx context.Context, ref metadata.DocumentRef, doc metadata.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := metadata.EncodeJSON(doc)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(rootBucket).CreateBucketIfNotExists([]byte(ref.Collection))
		if err != nil {
			return err
		}
		return b.Put([]byte(ref.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, ref metadata.DocumentRef, fields metadata.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := collectionBucket(tx, ref.Collection)
		if b == nil {
			return fmt.Errorf("%s: %w", ref, metadata.ErrNotFound)
		}
		v := b.Get([]byte(ref.ID))
		if v == nil {
			return fmt.Errorf("%s: %w", ref, metadata.ErrNotFound)
		}
		doc, err := metadata.DecodeJSON(v)
		if err != nil {
			return err
		}
		for k, val := range fields {
			doc[k] = val
		}
		data, err := metadata.EncodeJSON(doc)
		if err != nil {
			return err
		}
		return b.Put([]byte(ref.ID), data)
	})
}

func (s *Store) Delete(ctx context.Context, ref metadata.DocumentRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := collectionBucket(tx, ref.Collection)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(ref.ID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}
	return nil
}

func (s *Store) Stream(ctx context.Context, col metadata.CollectionRef) ([]metadata.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type kv struct {
		id  string
		raw []byte
	}
	var rows []kv
	err := s.db.View(func(tx *bolt.Tx) error {
		b := collectionBucket(tx, col)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if v == nil {
				return nil // nested bucket, not a document
			}
			rows = append(rows, kv{id: string(k), raw: append([]byte(nil), v...)})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stream %s: %w", col, err)
	}

	out := make([]metadata.Snapshot, 0, len(rows))
	for _, row := range rows {
		doc, err := metadata.DecodeJSON(row.raw)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", col, row.id, err)
		}
		out = append(out, metadata.Snapshot{ID: row.id, Data: doc})
	}
	return out, nil
}

func (s *Store) Exists(ctx context.Context, ref metadata.DocumentRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := collectionBucket(tx, ref.Collection)
		found = b != nil && b.Get([]byte(ref.ID)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", ref, err)
	}
	return found, nil
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}
