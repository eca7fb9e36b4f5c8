// Package report builds stock listings for the board and the xlsx export.
package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"stockwright/internal/stock"
	"stockwright/internal/store"
	"stockwright/models"
)

const sheetName = "Stock"

var headers = []string{"Code", "Name", "Unit", "On hand", "Raw balance", "Min", "Max", "Level", "Movements", "Last movement"}

// Row is the stock position of one material.
type Row struct {
	MaterialID     uint             `json:"material_id"`
	Code           string           `json:"code"`
	Name           string           `json:"name"`
	Unit           string           `json:"unit"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Raw            decimal.Decimal  `json:"raw"`
	MinStock       decimal.Decimal  `json:"min_stock"`
	MaxStock       *decimal.Decimal `json:"max_stock,omitempty"`
	Level          string           `json:"level"`
	MovementCount  int              `json:"movement_count"`
	LastMovementAt *time.Time       `json:"last_movement_at,omitempty"`
}

type Builder struct {
	store   store.Store
	calc    *stock.Calculator
	timeout time.Duration
}

func NewBuilder(s store.Store, calc *stock.Calculator, timeout time.Duration) *Builder {
	return &Builder{store: s, calc: calc, timeout: timeout}
}

// Rows folds the ledger of every active material. Each material is read
// independently so the listing is not a single consistent snapshot.
func (b *Builder) Rows(ctx context.Context) ([]Row, error) {
	listCtx, cancel := store.WithTimeout(ctx, b.timeout)
	materials, err := b.store.ListMaterials(listCtx, store.MaterialListOptions{ActiveOnly: true})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}

	rows := make([]Row, 0, len(materials))
	for _, material := range materials {
		balance, err := b.calc.Balance(ctx, material.ID, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("stock of %s: %w", material.Code, err)
		}
		rows = append(rows, Row{
			MaterialID:     material.ID,
			Code:           material.Code,
			Name:           material.Name,
			Unit:           material.Unit,
			Quantity:       balance.Quantity,
			Raw:            balance.Raw,
			MinStock:       material.MinStock,
			MaxStock:       material.MaxStock,
			Level:          material.StockLevel(balance.Quantity),
			MovementCount:  balance.MovementCount,
			LastMovementAt: balance.LastMovementAt,
		})
	}
	return rows, nil
}

// Workbook renders rows into a single-sheet xlsx document.
func Workbook(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		return nil, err
	}
	lowStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "#9C0006"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#FFC7CE"}},
	})
	if err != nil {
		return nil, err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return nil, err
	}

	for i, r := range rows {
		row := i + 2
		values := []any{
			r.Code,
			r.Name,
			r.Unit,
			r.Quantity.InexactFloat64(),
			r.Raw.InexactFloat64(),
			r.MinStock.InexactFloat64(),
			"",
			r.Level,
			r.MovementCount,
			"",
		}
		if r.MaxStock != nil {
			values[6] = r.MaxStock.InexactFloat64()
		}
		if r.LastMovementAt != nil {
			values[9] = r.LastMovementAt.UTC().Format(time.RFC3339)
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, err
		}
		if r.Level == models.StockLevelLow {
			levelCell, _ := excelize.CoordinatesToCellName(8, row)
			if err := f.SetCellStyle(sheetName, levelCell, levelCell, lowStyle); err != nil {
				return nil, err
			}
		}
	}

	for i, width := range []float64{14, 30, 8, 12, 12, 10, 10, 8, 11, 22} {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return nil, err
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
