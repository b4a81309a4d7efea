package assembly

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"

	"spotdetect/internal/models"
)

// Column names a field of a detection row
type Column string

// Table columns, in output order
const (
	ColumnC         Column = "c"
	ColumnT         Column = "t"
	ColumnZ         Column = "z"
	ColumnY         Column = "y"
	ColumnX         Column = "x"
	ColumnIntensity Column = "i"
)

// AllColumns lists every column a table can have, in output order
var AllColumns = []Column{ColumnC, ColumnT, ColumnZ, ColumnY, ColumnX, ColumnIntensity}

// Decimals is the number of decimal places written for coordinates and intensities
const Decimals = 4

// Table is an ordered set of detections together with the columns that are reported
type Table struct {
	Columns []Column
	Rows    []models.Detection
}

// HasColumn reports whether the table reports col
func (t *Table) HasColumn(col Column) bool {
	return slices.Contains(t.Columns, col)
}

// Value returns the numeric value of col in the given row
func Value(d models.Detection, col Column) float64 {
	switch col {
	case ColumnC:
		return float64(d.C)
	case ColumnT:
		return float64(d.T)
	case ColumnZ:
		return float64(d.Z)
	case ColumnY:
		return d.Y
	case ColumnX:
		return d.X
	case ColumnIntensity:
		return d.Intensity
	}
	panic(fmt.Sprintf("assembly: unknown column %q", col))
}

// Prune returns a table without the columns whose value is the same in every
// row. The spatial columns y and x are always kept.
func (t *Table) Prune() *Table {
	kept := make([]Column, 0, len(t.Columns))
	for _, col := range t.Columns {
		if col == ColumnY || col == ColumnX || t.distinct(col) > 1 {
			kept = append(kept, col)
		}
	}
	return &Table{Columns: kept, Rows: t.Rows}
}

// distinct counts the distinct values of col, stopping once two are found
func (t *Table) distinct(col Column) int {
	if len(t.Rows) == 0 {
		return 0
	}
	first := Value(t.Rows[0], col)
	for _, row := range t.Rows[1:] {
		if Value(row, col) != first {
			return 2
		}
	}
	return 1
}

// WriteCSV writes the table with a header row. Axis indices are written as
// integers, coordinates and intensities with Decimals decimal places.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = string(col)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			record[i] = formatValue(row, col)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatValue(d models.Detection, col Column) string {
	switch col {
	case ColumnC:
		return strconv.Itoa(d.C)
	case ColumnT:
		return strconv.Itoa(d.T)
	case ColumnZ:
		return strconv.Itoa(d.Z)
	}
	return strconv.FormatFloat(Value(d, col), 'f', Decimals, 64)
}
