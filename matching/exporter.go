package matching

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportFormat формат экспорта отчета
type ExportFormat string

const (
	FormatJSON  ExportFormat = "json"
	FormatCSV   ExportFormat = "csv"
	FormatExcel ExportFormat = "excel"
)

// MatchReportRow строка отчета по результатам сопоставления
type MatchReportRow struct {
	CandidateName  string  `json:"candidate_name"`
	CandidateBrand string  `json:"candidate_brand"`
	CandidateSize  string  `json:"candidate_size"`
	ProductID      string  `json:"product_id"`
	ProductName    string  `json:"product_name"`
	ProductBrand   string  `json:"product_brand"`
	Score          float64 `json:"score"`
	IsDuplicate    bool    `json:"is_duplicate"`
	MatchType      string  `json:"match_type"`
	Reasons        string  `json:"reasons"`
}

// Exporter экспортирует результаты сопоставления в JSON, CSV и Excel
type Exporter struct {
	exactThreshold float64
}

// NewExporter создает новый экспортер отчетов
func NewExporter(exactThreshold float64) *Exporter {
	return &Exporter{exactThreshold: exactThreshold}
}

// Export экспортирует результаты в указанном формате
func (e *Exporter) Export(filename string, format ExportFormat, cand ProductCandidate, matches []ProductMatch) error {
	rows := e.buildRows(cand, matches)

	switch format {
	case FormatJSON:
		return e.exportJSON(filename, rows)
	case FormatCSV:
		return e.exportCSV(filename, rows)
	case FormatExcel:
		return e.exportExcel(filename, rows)
	default:
		return fmt.Errorf("неизвестный формат экспорта: %s", format)
	}
}

// buildRows преобразует матчи в строки отчета
func (e *Exporter) buildRows(cand ProductCandidate, matches []ProductMatch) []MatchReportRow {
	rows := make([]MatchReportRow, 0, len(matches))
	for _, match := range matches {
		rows = append(rows, MatchReportRow{
			CandidateName:  cand.Name,
			CandidateBrand: cand.BrandName,
			CandidateSize:  cand.Size,
			ProductID:      match.ProductID,
			ProductName:    match.MatchedProduct.Name,
			ProductBrand:   match.MatchedProduct.BrandName,
			Score:          match.SimilarityScore,
			IsDuplicate:    match.IsDuplicate,
			MatchType:      DeriveMatchType(match, e.exactThreshold),
			Reasons:        strings.Join(match.MatchReasons, "; "),
		})
	}
	return rows
}

// exportJSON экспортирует строки отчета в JSON
func (e *Exporter) exportJSON(filename string, rows []MatchReportRow) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("создание файла отчета: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rows)
}

// exportCSV экспортирует строки отчета в CSV
func (e *Exporter) exportCSV(filename string, rows []MatchReportRow) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("создание файла отчета: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(reportHeader()); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.CandidateName, row.CandidateBrand, row.CandidateSize,
			row.ProductID, row.ProductName, row.ProductBrand,
			strconv.FormatFloat(row.Score, 'f', 4, 64),
			strconv.FormatBool(row.IsDuplicate),
			row.MatchType, row.Reasons,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// exportExcel экспортирует строки отчета в Excel
func (e *Exporter) exportExcel(filename string, rows []MatchReportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Matches"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("создание листа отчета: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for col, title := range reportHeader() {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return err
		}
	}

	for i, row := range rows {
		values := []interface{}{
			row.CandidateName, row.CandidateBrand, row.CandidateSize,
			row.ProductID, row.ProductName, row.ProductBrand,
			row.Score, row.IsDuplicate, row.MatchType, row.Reasons,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}

	// Служебный лист с отметкой времени выгрузки
	_ = f.SetCellValue(sheet, "L1", "generated_at")
	_ = f.SetCellValue(sheet, "L2", time.Now().Format(time.RFC3339))

	return f.SaveAs(filename)
}

func reportHeader() []string {
	return []string{
		"candidate_name", "candidate_brand", "candidate_size",
		"product_id", "product_name", "product_brand",
		"score", "is_duplicate", "match_type", "reasons",
	}
}
