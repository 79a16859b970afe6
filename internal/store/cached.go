package store

import (
	"context"
	"time"

	"github.com/betbot/ngdist/pkg/cache"
)

// cachedStore 为 Get 加一层读取缓存；记录写入后不再修改，无需失效
type cachedStore struct {
	Store
	records *cache.InMemoryCache[string, FitRecord]
}

// WithCache ttl <= 0 时原样返回
func WithCache(s Store, ttl time.Duration) Store {
	if ttl <= 0 {
		return s
	}
	return &cachedStore{
		Store:   s,
		records: cache.NewInMemoryCache[string, FitRecord](ttl, time.Minute),
	}
}

func (s *cachedStore) Save(ctx context.Context, rec FitRecord) error {
	if err := s.Store.Save(ctx, rec); err != nil {
		return err
	}
	s.records.Set(rec.ID, rec, 0)
	return nil
}

func (s *cachedStore) Get(ctx context.Context, id string) (*FitRecord, error) {
	if rec, ok := s.records.Get(id); ok {
		return &rec, nil
	}
	rec, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.records.Set(id, *rec, 0)
	return rec, nil
}

func (s *cachedStore) Close() error {
	s.records.Close()
	return s.Store.Close()
}
