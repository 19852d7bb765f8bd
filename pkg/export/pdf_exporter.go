package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Grid is a labelled two dimensional table, rows down and columns across.
type Grid struct {
	Title        string
	Subtitle     string
	ColumnLabels []string
	RowLabels    []string
	// Cells is indexed [row][column]; missing entries render empty.
	Cells [][]string
}

// PDFExporter renders grids into a landscape PDF table.
type PDFExporter struct {
	pageWidth   float64
	labelWidth  float64
	cellHeight  float64
	headerColor [3]int
}

// NewPDFExporter constructs a PDF exporter with A4 landscape geometry.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{
		pageWidth:   277,
		labelWidth:  22,
		cellHeight:  14,
		headerColor: [3]int{220, 230, 241},
	}
}

// RenderGrid draws the grid and returns the encoded document.
func (e *PDFExporter) RenderGrid(grid Grid) ([]byte, error) {
	if len(grid.ColumnLabels) == 0 {
		return nil, fmt.Errorf("pdf requires at least one column")
	}
	if len(grid.RowLabels) == 0 {
		return nil, fmt.Errorf("pdf requires at least one row")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if grid.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 9, tr(grid.Title), "", 1, "C", false, 0, "")
	}
	if grid.Subtitle != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, tr(grid.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(3)

	colWidth := (e.pageWidth - e.labelWidth) / float64(len(grid.ColumnLabels))

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(e.headerColor[0], e.headerColor[1], e.headerColor[2])
	pdf.CellFormat(e.labelWidth, 8, "", "1", 0, "C", true, 0, "")
	for _, label := range grid.ColumnLabels {
		pdf.CellFormat(colWidth, 8, tr(label), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	for r, rowLabel := range grid.RowLabels {
		pdf.SetFont("Arial", "B", 8)
		pdf.CellFormat(e.labelWidth, e.cellHeight, tr(rowLabel), "1", 0, "C", true, 0, "")
		pdf.SetFont("Arial", "", 7)
		for c := range grid.ColumnLabels {
			pdf.CellFormat(colWidth, e.cellHeight, tr(cell(grid.Cells, r, c)), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func cell(cells [][]string, row, col int) string {
	if row >= len(cells) || col >= len(cells[row]) {
		return ""
	}
	return cells[row][col]
}
