package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// 定长纳秒格式，保证按字符串排序即按时间排序
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite 打开（必要时创建）SQLite 存储
func OpenSQLite(path string) (Store, error) {
	if path == "" {
		return nil, errors.New("db path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "mkdir db dir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS fits (
  id TEXT PRIMARY KEY,
  distribution TEXT NOT NULL,
  params TEXT NOT NULL, -- JSON array of internal params
  loc REAL NOT NULL,
  scale REAL NOT NULL,
  n INTEGER NOT NULL,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_fits_created_at ON fits(created_at DESC);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "migrate exec failed")
		}
	}
	return nil
}

func (s *sqliteStore) Save(ctx context.Context, rec FitRecord) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return errors.Wrap(err, "encode params")
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO fits (id,distribution,params,loc,scale,n,created_at)
VALUES (?,?,?,?,?,?,?)
`, rec.ID, rec.Distribution, string(params), rec.Loc, rec.Scale, rec.N, rec.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return errors.Wrap(err, "insert fit")
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*FitRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,distribution,params,loc,scale,n,created_at
FROM fits WHERE id=?
`, id)
	rec, err := scanFit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get fit")
	}
	return rec, nil
}

func (s *sqliteStore) List(ctx context.Context, limit int) ([]FitRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite：LIMIT -1 表示不限制
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id,distribution,params,loc,scale,n,created_at
FROM fits ORDER BY created_at DESC, rowid DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list fits")
	}
	defer rows.Close()

	var out []FitRecord
	for rows.Next() {
		rec, err := scanFit(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan fit")
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFit(row scanner) (*FitRecord, error) {
	var rec FitRecord
	var params, createdAt string
	if err := row.Scan(&rec.ID, &rec.Distribution, &params, &rec.Loc, &rec.Scale, &rec.N, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
		return nil, errors.Wrap(err, "decode params")
	}
	created, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, errors.Wrap(err, "decode created_at")
	}
	rec.CreatedAt = created
	return &rec, nil
}
