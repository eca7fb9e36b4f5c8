package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"stockwright/internal/catalog"
	"stockwright/internal/config"
	"stockwright/internal/db"
	"stockwright/internal/errs"
	applog "stockwright/internal/log"
	"stockwright/internal/stock"
	"stockwright/internal/store"
	"stockwright/internal/store/gormstore"
	"stockwright/models"
)

// summary reports the outcome of one import.
type summary struct {
	Created   int
	Skipped   int
	Movements int
	Failures  errs.MultiError
}

func main() {
	path := "materials.csv"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	if err := run(context.Background(), path); err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("input path must not be empty")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("locate input: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applog.SetLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("set log level: %w", err)
	}

	database, err := db.Initialize(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(database); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	s := gormstore.New(database)
	defer s.Close()

	records, err := readRecords(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	calc := stock.NewCalculator(s, cfg.Database.StoreTimeout)
	result, err := importRecords(ctx, s,
		catalog.NewService(s, cfg.Database.StoreTimeout),
		stock.NewLedger(s, calc, cfg.Database.StoreTimeout),
		records, time.Now().UTC())
	if err != nil {
		return err
	}

	applog.Info(ctx, "import finished",
		"created", result.Created,
		"skipped", result.Skipped,
		"movements", result.Movements,
		"failed", len(result.Failures.Errors),
	)
	return result.Failures.ErrorOrNil()
}

// readRecords loads rows keyed by lower-cased header from a .csv or .xlsx
// file. Only the first sheet of a workbook is read.
func readRecords(path string) ([]map[string]string, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(path)
	case ".csv", "":
		rows, err = readCSV(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("input is empty")
	}

	header := make([]string, len(rows[0]))
	for i, key := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(key))
	}

	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		record := make(map[string]string, len(header))
		for idx, key := range header {
			if idx >= len(row) {
				continue
			}
			record[key] = strings.TrimSpace(row[idx])
		}
		records = append(records, record)
	}
	return records, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseDecimal(row map[string]string, key string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(row[key])
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
	if err != nil {
		return nil, errs.Invalid(key, "%q is not a number", raw)
	}
	return &v, nil
}

// importRecords creates every material whose code is not known yet and books
// its opening_stock as an in movement at the given time. Existing materials
// are skipped entirely so re-running an import never doubles stock. Row
// failures are collected and do not stop the import.
func importRecords(ctx context.Context, s store.Store, cat *catalog.Service, ledger *stock.Ledger, records []map[string]string, at time.Time) (summary, error) {
	existing, err := s.ListMaterials(ctx, store.MaterialListOptions{})
	if err != nil {
		return summary{}, fmt.Errorf("list materials: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		known[m.Code] = struct{}{}
	}

	reference := "IMPORT-" + at.Format("20060102")
	var result summary
	for idx, row := range records {
		line := idx + 2
		code := strings.ToUpper(strings.TrimSpace(row["code"]))
		if _, ok := known[code]; ok && code != "" {
			applog.Debug(ctx, "material already exists, skipping", "code", code, "line", line)
			result.Skipped++
			continue
		}

		material, opening, err := importRow(ctx, cat, row)
		if err != nil {
			result.Failures.Add(fmt.Errorf("line %d: %w", line, err))
			continue
		}
		known[material.Code] = struct{}{}
		result.Created++

		if opening == nil || !opening.IsPositive() {
			continue
		}
		if _, err := ledger.Record(ctx, store.MovementInput{
			MaterialID: material.ID,
			Quantity:   *opening,
			Direction:  models.DirectionIn,
			OccurredAt: at,
			Notes:      "opening stock",
			Reference:  reference,
		}); err != nil {
			result.Failures.Add(fmt.Errorf("line %d: opening stock for %s: %w", line, material.Code, err))
			continue
		}
		result.Movements++
	}
	return result, nil
}

func importRow(ctx context.Context, cat *catalog.Service, row map[string]string) (*models.Material, *decimal.Decimal, error) {
	in := catalog.MaterialInput{
		Code: row["code"],
		Name: row["name"],
		Unit: row["unit"],
	}
	minStock, err := parseDecimal(row, "min_stock")
	if err != nil {
		return nil, nil, err
	}
	if minStock != nil {
		in.MinStock = *minStock
	}
	if in.MaxStock, err = parseDecimal(row, "max_stock"); err != nil {
		return nil, nil, err
	}
	opening, err := parseDecimal(row, "opening_stock")
	if err != nil {
		return nil, nil, err
	}
	if opening != nil && opening.IsNegative() {
		return nil, nil, errs.Invalid("opening_stock", "must not be negative")
	}

	material, err := cat.CreateMaterial(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return material, opening, nil
}
