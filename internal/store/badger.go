package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

const fitKeyPrefix = "fit/"

// BadgerOptions Badger 存储选项
type BadgerOptions struct {
	Path     string
	InMemory bool // 仅用于测试，不落盘
}

type badgerStore struct {
	db *badger.DB
}

// OpenBadger 打开 Badger KV 存储，记录以 JSON 保存在 fit/<id> 下
func OpenBadger(opts BadgerOptions) (Store, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("badger: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	return &badgerStore{db: db}, nil
}

func (s *badgerStore) Save(_ context.Context, rec FitRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("badger: record id is empty")
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode fit")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(fitKeyPrefix+rec.ID), val)
	})
}

func (s *badgerStore) Get(_ context.Context, id string) (*FitRecord, error) {
	var rec FitRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fitKeyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get fit")
	}
	return &rec, nil
}

func (s *badgerStore) List(ctx context.Context, limit int) ([]FitRecord, error) {
	var out []FitRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(fitKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec FitRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list fits")
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *badgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
