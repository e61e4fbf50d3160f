package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	apperrors "uvfleet/internal/platform/errors"

	bolt "go.etcd.io/bbolt"
)

// BoltStore keeps one bucket per collection. Sorting happens in memory,
// which is fine at fleet scale.
type BoltStore struct {
	db      *bolt.DB
	catalog catalog
}

func OpenBolt(dbPath string, collections ...Collection) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create db dir: %v", apperrors.ErrPersistence, err)
	}
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt database: %v", apperrors.ErrPersistence, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, col := range collections {
			if _, err := tx.CreateBucketIfNotExists([]byte(col.Name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create buckets: %v", apperrors.ErrPersistence, err)
	}
	return &BoltStore{db: db, catalog: newCatalog(collections)}, nil
}

func (s *BoltStore) Put(ctx context.Context, collection string, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	col, err := s.catalog.lookup(collection)
	if err != nil {
		return err
	}
	if err := validRecord(record); err != nil {
		return err
	}
	if _, err := decodeDoc(record); err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(col.Name)).Put([]byte(record.ID), append([]byte(nil), record.Data...))
	})
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %v", apperrors.ErrPersistence, col.Name, record.ID, err)
	}
	return nil
}

func (s *BoltStore) GetAll(ctx context.Context, collection string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	col, err := s.catalog.lookup(collection)
	if err != nil {
		return nil, err
	}
	out := []Record{}
	err = s.db.View(func(tx *bolt.Tx) error {
		// bolt iterates keys in byte order, which matches ORDER BY id
		return tx.Bucket([]byte(col.Name)).ForEach(func(k, v []byte) error {
			out = append(out, Record{ID: string(k), Data: append([]byte(nil), v...)})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", apperrors.ErrPersistence, col.Name, err)
	}
	return out, nil
}

func (s *BoltStore) GetAllSortedBy(ctx context.Context, collection, field string) ([]Record, error) {
	_, kind, err := s.catalog.index(collection, field)
	if err != nil {
		return nil, err
	}
	records, err := s.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]sortKey, len(records))
	for _, record := range records {
		doc, err := decodeDoc(record)
		if err != nil {
			return nil, err
		}
		keys[record.ID] = indexValue(doc, field, kind)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return keys[records[i].ID].less(keys[records[j].ID])
	})
	return records, nil
}

func (s *BoltStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	col, err := s.catalog.lookup(collection)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(col.Name))
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s/%s", apperrors.ErrNotFound, col.Name, id)
		}
		if err := b.Delete([]byte(id)); err != nil {
			return fmt.Errorf("%w: delete %s/%s: %v", apperrors.ErrPersistence, col.Name, id, err)
		}
		return nil
	})
}

func (s *BoltStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	col, err := s.catalog.lookup(collection)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(col.Name))
		existing := b.Get([]byte(id))
		if existing == nil {
			return fmt.Errorf("%w: %s/%s", apperrors.ErrNotFound, col.Name, id)
		}
		merged, err := merge(Record{ID: id, Data: append([]byte(nil), existing...)}, partial)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(id), merged.Data); err != nil {
			return fmt.Errorf("%w: update %s/%s: %v", apperrors.ErrPersistence, col.Name, id, err)
		}
		return nil
	})
}

func (s *BoltStore) Clear(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	col, err := s.catalog.lookup(collection)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(col.Name)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(col.Name))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: clear %s: %v", apperrors.ErrPersistence, col.Name, err)
	}
	return nil
}

func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
