package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// RenderPDF turns an assembled document into PDF bytes. Sections are
// separated by a solid rule, entries within a section by a lighter dashed
// rule.
func RenderPDF(doc *Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	// Uncompressed content streams keep the report text searchable.
	pdf.SetCompression(false)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, doc.Title, "", 1, "C", false, 0, "")
	pdf.Ln(2)

	for _, section := range doc.Sections {
		sectionRule(pdf)

		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, 9, section.Title, "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "", 11)
		if len(section.Entries) == 0 {
			pdf.CellFormat(0, 7, section.Placeholder, "", 1, "L", false, 0, "")
			pdf.Ln(1)
			continue
		}

		for i, entry := range section.Entries {
			if i > 0 {
				entryRule(pdf)
			}
			for _, line := range entry {
				pdf.MultiCell(0, 6, line, "", "L", false)
			}
		}
		pdf.Ln(1)
	}

	sectionRule(pdf)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 8, fmt.Sprintf("Generated at %s", doc.GeneratedAt.Format(dateTimeLayout)), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func sectionRule(pdf *fpdf.Fpdf) {
	pdf.SetDrawColor(60, 60, 60)
	pdf.SetLineWidth(0.4)
	x := pdf.GetX()
	y := pdf.GetY()
	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	pdf.Line(x, y, pageWidth-right, y)
	pdf.SetXY(left, y+2)
}

func entryRule(pdf *fpdf.Fpdf) {
	pdf.SetDrawColor(170, 170, 170)
	pdf.SetLineWidth(0.2)
	pdf.SetDashPattern([]float64{1.5, 1.5}, 0)
	x := pdf.GetX()
	y := pdf.GetY() + 1
	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	pdf.Line(x, y, pageWidth-right, y)
	pdf.SetDashPattern([]float64{}, 0)
	pdf.SetXY(left, y+2)
}
