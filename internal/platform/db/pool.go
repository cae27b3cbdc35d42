package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Store bundles the pgx pool with the gorm handle layered over it. Both share
// the same connections; gorm borrows one per statement and returns it.
type Store struct {
	Pool *pgxpool.Pool
	Gorm *gorm.DB
}

func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// OpenGorm wraps pool in a database/sql handle and opens gorm on top of it.
func OpenGorm(pool *pgxpool.Pool, logger zerolog.Logger) (*gorm.DB, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 NewGormLogger(logger),
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return gdb, nil
}

// Open connects to the store at databaseURL.
func Open(ctx context.Context, databaseURL string, maxConns, minConns int32, logger zerolog.Logger) (*Store, error) {
	pool, err := NewPool(ctx, databaseURL, maxConns, minConns)
	if err != nil {
		return nil, err
	}
	gdb, err := OpenGorm(pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{Pool: pool, Gorm: gdb}, nil
}

func (s *Store) Close() {
	if sqlDB, err := s.Gorm.DB(); err == nil {
		sqlDB.Close()
	}
	s.Pool.Close()
}

type gormKey struct{}

// WithGorm binds a gorm handle, usually a transaction, to ctx so repositories
// run their statements on it.
func WithGorm(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, gormKey{}, tx)
}

// GormFromContext returns the handle bound by WithGorm, or nil.
func GormFromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(gormKey{}).(*gorm.DB)
	return tx
}

// InTx runs fn in one gorm transaction. Repositories called with the ctx
// passed to fn join it; an error from fn rolls everything back.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.Gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithGorm(ctx, tx))
	})
}
