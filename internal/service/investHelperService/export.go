package investHelperService

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/service"
	"github.com/KotFed0t/portfolio_allocator_bot/utils"
)

// ExportReport выгружает в файл распределение пополнения на сумму amount и план ребалансировки.
// В отчёт попадают только те расчёты, которые сейчас можно выполнить.
func (s *InvestHelperService) ExportReport(ctx context.Context, chatID int64, amount string) (downloadLink string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "InvestHelperService.ExportReport"

	slog.Debug("ExportReport start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	defer func() {
		slog.Debug("ExportReport finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	report := s.buildReport(ctx, chatID, amount)
	if report.Deposit == nil && report.Rebalance == nil {
		return "", service.ErrNothingToExport
	}

	fileBytes, ext, err := s.reportGenerator.Generate(ctx, report)
	if err != nil {
		slog.Error("got error from reportGenerator.Generate", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	filename := fmt.Sprintf("portfolio_%d_%s%s", chatID, report.CreatedAt.Format("20060102_150405"), ext)

	downloadLink, err = s.cloudStorage.UploadFile(ctx, bytes.NewReader(fileBytes), filename)
	if err != nil {
		slog.Error("got error from cloudStorage.UploadFile", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	return downloadLink, nil
}

func (s *InvestHelperService) buildReport(ctx context.Context, chatID int64, amount string) model.Report {
	ws := s.workspace(ctx, chatID)
	ws.resolver.Wait()

	ws.mu.Lock()
	defer ws.mu.Unlock()

	report := model.Report{
		CreatedAt: time.Now(),
		Names:     maps.Clone(ws.names),
	}

	if amount != "" {
		if deposit := ws.deposit(amount); deposit.Lines != nil {
			report.Deposit = &deposit
		}
	}

	if rebalance := ws.rebalance(); rebalance.Lines != nil {
		report.Rebalance = &rebalance
	}

	return report
}
