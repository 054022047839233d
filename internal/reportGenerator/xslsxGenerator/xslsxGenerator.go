package xslsxGenerator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/KotFed0t/portfolio_allocator_bot/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	depositSheet   = "Пополнение"
	rebalanceSheet = "Ребалансировка"
)

type XSLSXGenerator struct{}

func New() *XSLSXGenerator {
	return &XSLSXGenerator{}
}

func (g *XSLSXGenerator) Generate(ctx context.Context, report model.Report) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XSLSXGenerator.Generate"

	if report.Deposit == nil && report.Rebalance == nil {
		return nil, "", errors.New("empty report")
	}

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	if report.Deposit != nil {
		if err := g.fillDepositSheet(ctx, f, report); err != nil {
			return nil, "", err
		}
	}

	if report.Rebalance != nil {
		if err := g.fillRebalanceSheet(ctx, f, report); err != nil {
			return nil, "", err
		}
	}

	// Удаляем лист по умолчанию "Sheet1"
	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while Saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

// header объединяет ячейки from:to, пишет заголовок и красит его в color
func header(f *excelize.File, sheetName, from, to, title, color string) error {
	if err := f.MergeCell(sheetName, from, to); err != nil {
		return err
	}

	_ = f.SetCellStr(sheetName, from, title)

	styleID, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{color},
		},
	})
	if err != nil {
		return err
	}

	if err := f.SetCellStyle(sheetName, from, from, styleID); err != nil {
		return fmt.Errorf("ошибка применения стиля: %w", err)
	}

	return nil
}

func columns(f *excelize.File, sheetName string, row int, titles ...string) {
	for i, title := range titles {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellStr(sheetName, cell, title)
	}
}

func setDecimal(f *excelize.File, sheetName, cell string, d *decimal.Decimal) {
	if d == nil {
		_ = f.SetCellStr(sheetName, cell, "-")
		return
	}
	_ = f.SetCellValue(sheetName, cell, d.Round(4).InexactFloat64())
}

func (g *XSLSXGenerator) fillDepositSheet(ctx context.Context, f *excelize.File, report model.Report) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XSLSXGenerator.fillDepositSheet"

	_, err := f.NewSheet(depositSheet)
	if err != nil {
		slog.Error("got error while creating NewSheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	deposit := report.Deposit

	err = header(f, depositSheet, "A1", "F1", fmt.Sprintf("Пополнение на %s", deposit.Amount), "#cfe2f3") // Светло-голубой цвет
	if err != nil {
		return err
	}

	columns(f, depositSheet, 2, "название", "тикер", "вес", "сумма", "цена", "кол-во акций")

	for i, line := range deposit.Lines {
		row := i + 3
		_ = f.SetCellStr(depositSheet, fmt.Sprintf("A%d", row), report.Names[line.Symbol])
		_ = f.SetCellStr(depositSheet, fmt.Sprintf("B%d", row), line.Symbol)
		_ = f.SetCellValue(depositSheet, fmt.Sprintf("C%d", row), line.TargetPercentage.InexactFloat64())
		_ = f.SetCellStr(depositSheet, fmt.Sprintf("D%d", row), line.DollarAmount)
		setDecimal(f, depositSheet, fmt.Sprintf("E%d", row), line.Price)
		setDecimal(f, depositSheet, fmt.Sprintf("F%d", row), line.Shares)
	}

	return nil
}

func (g *XSLSXGenerator) fillRebalanceSheet(ctx context.Context, f *excelize.File, report model.Report) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XSLSXGenerator.fillRebalanceSheet"

	_, err := f.NewSheet(rebalanceSheet)
	if err != nil {
		slog.Error("got error while creating NewSheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	rebalance := report.Rebalance

	err = header(f, rebalanceSheet, "A1", "C1", "Котировки", "#cfe2f3") // Светло-голубой цвет
	if err != nil {
		return err
	}
	err = header(f, rebalanceSheet, "D1", "E1", "В портфеле", "#d9ead3") // Светло-зеленый цвет
	if err != nil {
		return err
	}
	err = header(f, rebalanceSheet, "F1", "G1", "Веса", "#f9cb9c") // Светло-оранжевый цвет
	if err != nil {
		return err
	}
	err = header(f, rebalanceSheet, "H1", "K1", "Сделка", "#f4cccc") // Светло-розовый цвет
	if err != nil {
		return err
	}

	columns(f, rebalanceSheet, 2,
		"название", "тикер", "цена",
		"кол-во акций", "сумма",
		"целевой", "текущий",
		"действие", "целевая сумма", "разница", "кол-во акций",
	)

	for i, line := range rebalance.Lines {
		row := i + 3
		_ = f.SetCellStr(rebalanceSheet, fmt.Sprintf("A%d", row), report.Names[line.Symbol])
		_ = f.SetCellStr(rebalanceSheet, fmt.Sprintf("B%d", row), line.Symbol)
		setDecimal(f, rebalanceSheet, fmt.Sprintf("C%d", row), line.Price)

		_ = f.SetCellValue(rebalanceSheet, fmt.Sprintf("D%d", row), line.CurrentShares.Round(4).InexactFloat64())
		_ = f.SetCellValue(rebalanceSheet, fmt.Sprintf("E%d", row), line.CurrentValue.Round(2).InexactFloat64())

		_ = f.SetCellValue(rebalanceSheet, fmt.Sprintf("F%d", row), line.TargetPercentage.InexactFloat64())
		_ = f.SetCellValue(rebalanceSheet, fmt.Sprintf("G%d", row), line.CurrentPercentageOfPortfolio.Round(2).InexactFloat64())

		_ = f.SetCellStr(rebalanceSheet, fmt.Sprintf("H%d", row), string(line.Action))
		_ = f.SetCellValue(rebalanceSheet, fmt.Sprintf("I%d", row), line.TargetValue.Round(2).InexactFloat64())
		_ = f.SetCellValue(rebalanceSheet, fmt.Sprintf("J%d", row), line.Difference.Round(2).InexactFloat64())
		_ = f.SetCellValue(rebalanceSheet, fmt.Sprintf("K%d", row), line.SharesToTrade.Round(4).InexactFloat64())
	}

	// итог
	rowNum := len(rebalance.Lines) + 4
	_ = f.SetCellStr(rebalanceSheet, fmt.Sprintf("D%d", rowNum), "Стоимость портфеля")
	_ = f.SetCellValue(rebalanceSheet, fmt.Sprintf("E%d", rowNum), rebalance.TotalValue.Round(2).InexactFloat64())

	return nil
}
