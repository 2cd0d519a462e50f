// Package report renders defect exports as CSV or XLSX.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sumire/defects/internal/domain"
)

// Format selects the export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	return f == FormatCSV || f == FormatXLSX
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Columns is the header row of every export.
var Columns = []string{
	"ID", "Project", "Title", "Description", "Priority", "Status",
	"Assignee", "Reporter", "Due Date", "Created At", "Resolved At",
}

const dateLayout = "2006-01-02"

const sheetName = "Defects"

var columnWidths = []float64{10, 20, 30, 40, 12, 15, 20, 20, 15, 15, 15}

var priorityColors = map[domain.Priority]string{
	domain.PriorityCritical: "FF0000",
	domain.PriorityHigh:     "FFA500",
	domain.PriorityMedium:   "FFFF00",
	domain.PriorityLow:      "90EE90",
}

// Write encodes rows in format to w.
func Write(w io.Writer, format Format, rows []domain.ExportRow) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, rows)
	case FormatXLSX:
		return WriteXLSX(w, rows)
	default:
		return domain.NewValidationError("format", "must be csv or xlsx")
	}
}

// Record flattens one row into export cells.
func Record(row domain.ExportRow) []string {
	return []string{
		strconv.FormatInt(row.ID, 10),
		orDefault(row.ProjectName, "N/A"),
		row.Title,
		orDefault(row.Description, ""),
		string(row.Priority),
		string(row.Status),
		orDefault(row.Assignee, "Unassigned"),
		orDefault(row.Reporter, "Unknown"),
		formatDate(row.DueDate),
		row.CreatedAt.UTC().Format(dateLayout),
		formatDate(row.ResolvedAt),
	}
}

// WriteCSV writes a UTF-8 BOM, the header and one line per row.
func WriteCSV(w io.Writer, rows []domain.ExportRow) error {
	if _, err := io.WriteString(w, "\uFEFF"); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(Record(row)); err != nil {
			return fmt.Errorf("write csv row %d: %w", row.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteXLSX writes a single-sheet workbook with a shaded header and
// priority cells colored by severity.
func WriteXLSX(w io.Writer, rows []domain.ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D3D3D3"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(Columns))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	priorityStyles := make(map[domain.Priority]int, len(priorityColors))
	for p, color := range priorityColors {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
		})
		if err != nil {
			return fmt.Errorf("create priority style: %w", err)
		}
		priorityStyles[p] = id
	}

	for i, row := range rows {
		rowNum := i + 2
		cells := Record(row)
		values := make([]any, len(cells))
		values[0] = row.ID
		for j := 1; j < len(cells); j++ {
			values[j] = cells[j]
		}

		start, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, start, &values); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", row.ID, err)
		}

		if style, ok := priorityStyles[row.Priority]; ok {
			cell, err := excelize.CoordinatesToCellName(5, rowNum)
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(sheetName, cell, cell, style); err != nil {
				return fmt.Errorf("style priority cell: %w", err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func orDefault(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.UTC().Format(dateLayout)
}
