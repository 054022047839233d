package postgres

import (
	"context"
	"log/slog"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/converter/dbConverter"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model/dbModel"
	"github.com/KotFed0t/portfolio_allocator_bot/utils"
)

func (r *Postgres) SaveList(ctx context.Context, userID int64, kind model.ListKind, data []byte) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.SaveList"
	query := `
		INSERT INTO user_lists(user_id, list_kind, data, dt_update)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, list_kind) DO UPDATE SET
			data = EXCLUDED.data,
			dt_update = EXCLUDED.dt_update
	`

	slog.Debug("SaveList start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID), slog.String("listKind", string(kind)))
	defer func() {
		if err != nil {
			slog.Error("SaveList failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("SaveList completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, userID, string(kind), data)
	return err
}

func (r *Postgres) GetPortfolioLists(ctx context.Context, userID int64) (lists model.PortfolioLists, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetPortfolioLists"
	query := `
		SELECT user_id, list_kind, data, dt_update
		FROM user_lists
		WHERE user_id = $1
	`

	slog.Debug("GetPortfolioLists start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("userID", userID))
	defer func() {
		if err != nil {
			slog.Error("GetPortfolioLists failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPortfolioLists completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var rows []dbModel.UserList
	err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, userID)
	if err != nil {
		return model.PortfolioLists{}, err
	}

	return dbConverter.ConvertUserLists(rows)
}
