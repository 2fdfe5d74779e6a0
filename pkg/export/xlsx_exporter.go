package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Report"

// XLSXExporter renders datasets into a single-sheet workbook.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *XLSXExporter) Extension() string { return "xlsx" }

// Render writes an optional merged title row, a styled header row and the data rows.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one column")
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(xlsxSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	lastCol, _ := excelize.ColumnNumberToName(len(data.Columns))
	row := 1
	if data.Title != "" {
		_ = f.SetCellValue(xlsxSheet, cellName(1, row), data.Title)
		_ = f.MergeCell(xlsxSheet, cellName(1, row), fmt.Sprintf("%s%d", lastCol, row))
		row++
	}

	for i, col := range data.Columns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		width := col.Width * 6
		if width < 12 {
			width = 12
		}
		_ = f.SetColWidth(xlsxSheet, name, name, width)
	}

	for i, header := range data.headers() {
		_ = f.SetCellValue(xlsxSheet, cellName(i+1, row), header)
	}
	_ = f.SetCellStyle(xlsxSheet, cellName(1, row), cellName(len(data.Columns), row), headerStyle)
	row++

	for _, r := range data.Rows {
		for i, value := range data.record(r) {
			_ = f.SetCellValue(xlsxSheet, cellName(i+1, row), value)
		}
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
