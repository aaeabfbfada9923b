package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/eleven-am/routines/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func validateConfig(cfg domain.PostgresConfig) error {
	switch {
	case cfg.URL == "":
		return domain.NewConfigError("postgres.url", domain.ErrInvalidConfig)
	case cfg.PingTimeout <= 0:
		return domain.NewConfigError("postgres.ping_timeout", domain.ErrInvalidConfig)
	case cfg.MaxOpenConns < 1:
		return domain.NewConfigError("postgres.max_open_conns", domain.ErrInvalidConfig)
	case cfg.MaxIdleConns < 0 || cfg.MaxIdleConns > cfg.MaxOpenConns:
		return domain.NewConfigError("postgres.max_idle_conns", domain.ErrInvalidConfig)
	case cfg.ConnMaxLifetime < 0:
		return domain.NewConfigError("postgres.conn_max_lifetime", domain.ErrInvalidConfig)
	case cfg.ConnMaxIdleTime < 0:
		return domain.NewConfigError("postgres.conn_max_idle_time", domain.ErrInvalidConfig)
	}
	return nil
}

// OpenDB opens a pooled connection through the pgx stdlib driver and pings
// it before returning.
func OpenDB(ctx context.Context, cfg domain.PostgresConfig) (*sql.DB, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, domain.NewStorageError("open postgres", err, domain.WithComponent("postgres.OpenDB"))
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, domain.NewNetworkError("ping postgres", err, domain.WithComponent("postgres.OpenDB"))
	}

	return db, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == foreignKeyViolation
	}
	return false
}
