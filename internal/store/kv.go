package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/util"
)

// KV is the small key/value surface the save cache needs. Values are JSON.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// OpenKV opens the cache backend selected by cfg.CacheDriver. The returned
// closer releases connections.
func OpenKV(ctx context.Context, cfg util.Config, logger *zap.Logger) (KV, func() error, error) {
	logger = logger.Named("CacheStore")
	switch cfg.CacheDriver {
	case util.CachePostgres:
		db, err := Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using postgres cache")
		return NewSQLKV(db), db.Close, nil
	case util.CacheRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, wrap(err, "ping redis")
		}
		logger.Info("Using redis cache", zap.String("addr", cfg.RedisAddr))
		return NewRedisKV(rdb, ""), rdb.Close, nil
	default:
		kv, err := NewFileKV(cfg.CacheDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using file cache", zap.String("dir", cfg.CacheDir))
		return kv, func() error { return nil }, nil
	}
}

// SQLKV stores values in the local_storage table.
type SQLKV struct{ db *DB }

func NewSQLKV(db *DB) *SQLKV { return &SQLKV{db: db} }

func (s *SQLKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	row := s.db.gorm.WithContext(ctx).Raw(`SELECT value::text FROM local_storage WHERE key = ?`, key).Row()
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrap(err, "select local_storage")
	}
	return []byte(value), nil
}

func (s *SQLKV) Set(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return errors.Errorf("local_storage %s: value is not json", key)
	}
	err := s.db.gorm.WithContext(ctx).Exec(`INSERT INTO local_storage(key, value, updated_at) VALUES (?, ?::jsonb, now())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, string(value)).Error
	return wrap(err, "upsert local_storage")
}

func (s *SQLKV) Delete(ctx context.Context, key string) error {
	return wrap(s.db.gorm.WithContext(ctx).Exec(`DELETE FROM local_storage WHERE key = ?`, key).Error, "delete local_storage")
}

// RedisKV stores values under a key prefix.
type RedisKV struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisKV wraps rdb; an empty prefix means "storyloom:".
func NewRedisKV(rdb redis.UniversalClient, prefix string) *RedisKV {
	if prefix == "" {
		prefix = "storyloom:"
	}
	return &RedisKV{rdb: rdb, prefix: prefix}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, wrap(err, "redis get")
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return wrap(r.rdb.Set(ctx, r.prefix+key, value, 0).Err(), "redis set")
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return wrap(r.rdb.Del(ctx, r.prefix+key).Err(), "redis del")
}

// FileKV keeps one JSON file per key in dir.
type FileKV struct {
	mu  sync.Mutex
	dir string
}

func NewFileKV(dir string) (*FileKV, error) {
	if dir == "" {
		dir = util.DataDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrap(err, "create cache dir")
	}
	return &FileKV{dir: dir}, nil
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, strings.NewReplacer("/", "_", `\`, "_", "..", "_").Replace(key)+".json")
}

func (f *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, wrap(err, "read cache file")
}

// Set replaces the file atomically via rename.
func (f *FileKV) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.path(key)
	tmp, err := os.CreateTemp(f.dir, filepath.Base(p)+".*")
	if err != nil {
		return wrap(err, "create temp file")
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return wrap(err, "close temp file")
	}
	return wrap(os.Rename(tmp.Name(), p), "replace cache file")
}

func (f *FileKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return wrap(err, "remove cache file")
}
