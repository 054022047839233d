package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/portfolio_allocator_bot/config"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/jmoiron/sqlx"
)

const (
	defaultConnAttempts = 10
	connTimeout         = time.Second
)

func NewPostgresClient(ctx context.Context, cfg *config.Config) *sqlx.DB {
	dataSourceName := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=disable password=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.DbName,
		cfg.Postgres.Password,
	)

	db, err := connectWithRetry(ctx, dataSourceName, defaultConnAttempts)
	if err != nil {
		slog.Error("Postgres connection failed", slog.String("err", err.Error()))
		panic(err)
	}

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxIdleTime(time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second)
	if err = db.PingContext(ctx); err != nil {
		slog.Error("Postgres dbPing error", slog.String("err", err.Error()))
		panic(err)
	}
	slog.Info("Postgres connected")

	if err = migratePostgres(db, cfg.Postgres.MigrationDir); err != nil {
		slog.Error("postgres migration failed", slog.String("err", err.Error()))
		panic(err)
	}
	slog.Info("postgres migrated successfully")

	return db
}

func connectWithRetry(ctx context.Context, dataSourceName string, attempts int) (*sqlx.DB, error) {
	var err error
	for ; attempts > 0; attempts-- {
		var db *sqlx.DB
		db, err = sqlx.ConnectContext(ctx, "pgx", dataSourceName)
		if err == nil {
			return db, nil
		}

		slog.Info("Postgres is trying to connect", slog.Int("attempts left", attempts-1))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connTimeout):
		}
	}
	return nil, fmt.Errorf("connect attempts exceeded: %w", err)
}

func migratePostgres(db *sqlx.DB, migrationDir string) error {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres.WithInstance: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationDir),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("migrate.NewWithDatabaseInstance: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("m.Up(): %w", err)
	}

	return nil
}
