package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/ngdist/pkg/config"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("fit record not found")

// FitRecord 一次基准拟合的结果（用于初始化提升过程的基准预测）
type FitRecord struct {
	ID           string    `json:"id"`
	Distribution string    `json:"distribution"`
	Params       []float64 `json:"params"` // 内部参数
	Loc          float64   `json:"loc"`
	Scale        float64   `json:"scale"`
	N            int       `json:"n"` // 样本量
	CreatedAt    time.Time `json:"created_at"`
}

// Store 拟合记录存储
type Store interface {
	Save(ctx context.Context, rec FitRecord) error
	Get(ctx context.Context, id string) (*FitRecord, error)
	// List 按创建时间倒序返回，limit <= 0 表示不限制
	List(ctx context.Context, limit int) ([]FitRecord, error)
	Close() error
}

// Open 按配置选择存储驱动，CacheTTLSeconds > 0 时叠加读取缓存
func Open(cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case config.StoreDriverSQLite:
		s, err = OpenSQLite(cfg.Path)
	case config.StoreDriverBadger:
		s, err = OpenBadger(BadgerOptions{Path: cfg.Path})
	default:
		return nil, errors.Errorf("unknown store driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return WithCache(s, time.Duration(cfg.CacheTTLSeconds)*time.Second), nil
}
