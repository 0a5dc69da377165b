package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// Format is an export file format.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
	PDF  Format = "pdf"
)

// ParseFormat accepts csv, xlsx and pdf; empty means csv.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", CSV:
		return CSV, nil
	case XLSX, PDF:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType of the rendered file.
func (f Format) ContentType() string {
	switch f {
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case PDF:
		return "application/pdf"
	default:
		return "text/csv"
	}
}

// Render writes m to w in format f.
func Render(w io.Writer, f Format, m Matrix) error {
	switch f {
	case XLSX:
		return WriteXLSX(w, m)
	case PDF:
		return WritePDF(w, m)
	default:
		return WriteCSV(w, m)
	}
}

func WriteCSV(w io.Writer, m Matrix) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(m.Headers()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, l := range m.Lines {
		if err := cw.Write(l.Cells()); err != nil {
			return fmt.Errorf("write csv row %s: %w", l.RegNo, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteXLSX(w io.Writer, m Matrix) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Attendance"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}

	headers := m.Headers()
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, header); err != nil {
		return err
	}

	for i, l := range m.Lines {
		cells := make([]interface{}, 0, len(headers))
		cells = append(cells, l.RegNo, l.Name)
		for _, mark := range l.Marks {
			cells = append(cells, mark)
		}
		cells = append(cells, l.Present, l.Total, l.Percentage)
		start, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, start, &cells); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 14); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "B", "B", 28); err != nil {
		return err
	}
	return f.Write(w)
}

func WritePDF(w io.Writer, m Matrix) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, m.Title)
	pdf.Ln(10)

	// Session columns share what is left of the page after the fixed ones.
	const (
		regW   = 24.0
		nameW  = 40.0
		tallyW = 16.0
	)
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	markW := 10.0
	if n := len(m.Sessions); n > 0 {
		markW = (pageW - left - right - regW - nameW - 3*tallyW) / float64(n)
		if markW > 18 {
			markW = 18
		}
	}
	fontSize := 8.0
	if markW < 9 {
		fontSize = 6
	}

	pdf.SetFont("Arial", "B", fontSize)
	pdf.SetFillColor(40, 145, 108)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(regW, 7, "Reg No", "1", 0, "C", true, 0, "")
	pdf.CellFormat(nameW, 7, "Name", "1", 0, "C", true, 0, "")
	for _, s := range m.Sessions {
		pdf.CellFormat(markW, 7, fmt.Sprintf("%s/%d", s.Date[5:], s.Hour), "1", 0, "C", true, 0, "")
	}
	pdf.CellFormat(tallyW, 7, "Present", "1", 0, "C", true, 0, "")
	pdf.CellFormat(tallyW, 7, "Total", "1", 0, "C", true, 0, "")
	pdf.CellFormat(tallyW, 7, "%", "1", 1, "C", true, 0, "")

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Arial", "", fontSize)
	pdf.SetFillColor(245, 245, 245)
	for i, l := range m.Lines {
		fill := i%2 == 0
		pdf.CellFormat(regW, 6, l.RegNo, "1", 0, "L", fill, 0, "")
		pdf.CellFormat(nameW, 6, l.Name, "1", 0, "L", fill, 0, "")
		for _, mark := range l.Marks {
			pdf.CellFormat(markW, 6, mark, "1", 0, "C", fill, 0, "")
		}
		pdf.CellFormat(tallyW, 6, fmt.Sprintf("%d", l.Present), "1", 0, "C", fill, 0, "")
		pdf.CellFormat(tallyW, 6, fmt.Sprintf("%d", l.Total), "1", 0, "C", fill, 0, "")
		pdf.CellFormat(tallyW, 6, fmt.Sprintf("%.2f", l.Percentage), "1", 1, "C", fill, 0, "")
	}
	return pdf.Output(w)
}
