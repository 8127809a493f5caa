package pgrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Connect подключается к базе расчетов с ретраями и накатывает миграции схемы.
// База может подниматься дольше приложения, поэтому отказ соединения не фатален
// до исчерпания maxAttempts; отмена контекста прерывает ожидание сразу.
func Connect(ctx context.Context, migrationsDir, dsn string, l *logrus.Logger) (*pgxpool.Pool, error) {
	const maxAttempts = 30
	const retryInterval = 3 * time.Second

	var pool *pgxpool.Pool
	for attempt := 1; ; attempt++ {
		var connErr error
		pool, connErr = newPostgresConnection(ctx, dsn)
		if connErr == nil {
			break
		}
		if attempt >= maxAttempts {
			return nil, fmt.Errorf("connect to settlement database after %d attempts: %w", maxAttempts, connErr)
		}
		l.WithError(connErr).
			WithField("attempt", fmt.Sprintf("%d/%d", attempt, maxAttempts)).
			Warnf("postgres is not ready, retrying in %.f seconds", retryInterval.Seconds())

		select {
		case <-ctx.Done():
			return nil, ctx.Err() //nolint:wrapcheck
		case <-time.After(retryInterval):
		}
	}

	if err := applyMigrations(migrationsDir, dsn); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func newPostgresConnection(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, confErr := pgxpool.ParseConfig(dsn)
	if confErr != nil {
		return nil, fmt.Errorf("parse database dsn: %w", confErr)
	}
	pool, poolErr := pgxpool.NewWithConfig(ctx, poolConfig)
	if poolErr != nil {
		return nil, fmt.Errorf("create connection pool: %w", poolErr)
	}
	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", pingErr)
	}
	return pool, nil
}

func applyMigrations(dir, dsn string) error {
	m, mErr := migrate.New("file://"+dir, dsn)
	if mErr != nil {
		return fmt.Errorf("open migrations at %s: %w", dir, mErr)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply settlement schema migrations: %w", err)
	}
	return nil
}
