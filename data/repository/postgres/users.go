package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/KotFed0t/portfolio_allocator_bot/data/repository"
	"github.com/KotFed0t/portfolio_allocator_bot/utils"
	"github.com/jackc/pgx/v5/pgconn"
)

func (r *Postgres) InsertUser(ctx context.Context, chatID int64) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.InsertUser"
	query := `INSERT INTO users(chat_id) VALUES($1) RETURNING user_id`

	slog.Debug("InsertUser start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("InsertUser failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertUser completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, chatID).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return 0, repository.ErrAlreadyExists
			}
		}
		return 0, err
	}

	return userID, nil
}

func (r *Postgres) GetUserID(ctx context.Context, chatID int64) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetUserID"
	query := `SELECT user_id FROM users WHERE chat_id = $1`

	slog.Debug("GetUserID start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))

	err = r.txOrDb(ctx).GetContext(ctx, &userID, query, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		slog.Error("GetUserID failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	return userID, nil
}

// EnsureUser возвращает user_id по chat_id, регистрируя пользователя при первом обращении.
func (r *Postgres) EnsureUser(ctx context.Context, chatID int64) (userID int64, err error) {
	err = r.WithinTransaction(ctx, func(ctx context.Context) error {
		userID, err = r.GetUserID(ctx, chatID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		userID, err = r.InsertUser(ctx, chatID)
		return err
	})

	// параллельная регистрация того же чата - берём уже созданного пользователя
	if errors.Is(err, repository.ErrAlreadyExists) {
		return r.GetUserID(ctx, chatID)
	}

	return userID, err
}
