package pdf

import (
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/pageza/platecoach/backend/internal/planparser"
)

var (
	textColour  = rgb{33, 37, 41}
	mutedColour = rgb{108, 117, 125}
	white       = rgb{255, 255, 255}
	zebraFill   = rgb{244, 246, 248}
	gridColour  = rgb{222, 226, 230}
)

// layout draws one document. Not safe for reuse across documents.
type layout struct {
	pdf    *fpdf.Fpdf
	doc    Document
	brand  palette
	family string
	tr     func(string) string
}

func (l *layout) text(c rgb) { l.pdf.SetTextColor(c.r, c.g, c.b) }
func (l *layout) fill(c rgb) { l.pdf.SetFillColor(c.r, c.g, c.b) }
func (l *layout) draw(c rgb) { l.pdf.SetDrawColor(c.r, c.g, c.b) }
func (l *layout) font(style string, size float64) {
	l.pdf.SetFont(l.family, style, size)
}

func (l *layout) contentWidth() float64 {
	w, _ := l.pdf.GetPageSize()
	return w - 2*margin
}

func (l *layout) confidentiality() string {
	name := l.doc.ClientName
	if name == "" {
		name = "the named client"
	}
	return fmt.Sprintf("Confidential: prepared exclusively for %s. Not for redistribution.", name)
}

func (l *layout) cover() {
	pdf := l.pdf
	pdf.AddPage()
	w, h := pdf.GetPageSize()

	l.fill(l.brand.primary)
	pdf.Rect(0, 0, w, h, "F")
	l.fill(l.brand.accent)
	pdf.Rect(margin, 88, 40, 2, "F")

	l.text(white)
	pdf.SetXY(margin, 96)
	l.font("B", 30)
	pdf.MultiCell(w-2*margin, 13, l.tr(documentTitle), "", "L", false)

	pdf.Ln(6)
	l.font("", 16)
	pdf.SetX(margin)
	pdf.CellFormat(w-2*margin, 9, l.tr("Prepared for "+clean(l.doc.ClientName)), "", 1, "L", false, 0, "")
	l.font("", 12)
	pdf.SetX(margin)
	pdf.CellFormat(w-2*margin, 8, l.tr(l.doc.CreatedAt.Format(dateLayout)), "", 1, "L", false, 0, "")

	pdf.SetY(h - 70)
	l.font("B", 12)
	pdf.SetX(margin)
	pdf.CellFormat(w-2*margin, 7, l.tr("Prepared by "+clean(l.doc.AuthorName)), "", 1, "L", false, 0, "")
	if l.doc.BusinessName != "" {
		l.font("", 11)
		pdf.SetX(margin)
		pdf.CellFormat(w-2*margin, 7, l.tr(clean(l.doc.BusinessName)), "", 1, "L", false, 0, "")
	}

	pdf.SetY(h - 40)
	l.font("", 8)
	pdf.SetX(margin)
	pdf.MultiCell(w-2*margin, 4, l.tr(l.confidentiality()), "", "L", false)
}

func (l *layout) header() {
	pdf := l.pdf
	if pdf.PageNo() == 1 {
		return
	}
	w, _ := pdf.GetPageSize()

	pdf.SetY(10)
	l.font("", 8)
	l.text(mutedColour)
	half := (w - 2*margin) / 2
	pdf.SetX(margin)
	pdf.CellFormat(half, 5, l.tr(clean(l.doc.AuthorName)), "", 0, "L", false, 0, "")
	pdf.CellFormat(half, 5, l.tr(documentTitle), "", 1, "R", false, 0, "")

	l.draw(l.brand.accent)
	pdf.SetLineWidth(0.4)
	pdf.Line(margin, 16, w-margin, 16)
	pdf.SetY(margin + 8)
}

func (l *layout) footer() {
	pdf := l.pdf
	if pdf.PageNo() == 1 {
		return
	}
	w, _ := pdf.GetPageSize()

	pdf.SetY(-14)
	l.font("", 7)
	l.text(mutedColour)
	pdf.SetX(margin)
	pdf.CellFormat((w-2*margin)*0.75, 5, l.tr(l.confidentiality()), "", 0, "L", false, 0, "")
	pdf.CellFormat((w-2*margin)*0.25, 5, fmt.Sprintf("Page %d / {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
}

func (l *layout) section(s planparser.Section) {
	pdf := l.pdf
	pdf.AddPage()

	l.text(l.brand.primary)
	l.font("B", 20)
	pdf.MultiCell(l.contentWidth(), 10, l.tr(clean(s.Title)), "", "L", false)
	l.fill(l.brand.accent)
	pdf.Rect(margin, pdf.GetY()+1, 30, 1.2, "F")
	pdf.Ln(6)

	for _, b := range groupBlocks(s.Lines) {
		if b.table != nil {
			l.table(b.table)
			continue
		}
		l.line(b.line)
	}
}

func (l *layout) line(raw string) {
	pdf := l.pdf
	width := l.contentWidth()
	kind, body := classify(raw)
	body = clean(body)

	switch kind {
	case kindDivider:
		l.draw(gridColour)
		pdf.SetLineWidth(0.3)
		y := pdf.GetY() + 2
		pdf.Line(margin, y, margin+width, y)
		pdf.Ln(5)
	case kindSubheading, kindCapsHeading, kindStepHeading:
		pdf.Ln(2)
		l.text(l.brand.secondary)
		l.font("B", 12)
		pdf.MultiCell(width, 6.5, l.tr(body), "", "L", false)
		pdf.Ln(1)
	case kindHeading:
		pdf.Ln(3)
		l.text(l.brand.primary)
		l.font("B", 15)
		pdf.MultiCell(width, 8, l.tr(body), "", "L", false)
		pdf.Ln(1)
	case kindBoldHeading:
		pdf.Ln(1)
		l.text(textColour)
		l.font("B", 11)
		pdf.MultiCell(width, 6, l.tr(body), "", "L", false)
	case kindBullet:
		l.text(l.brand.accent)
		l.font("B", 10)
		pdf.SetX(margin + 2)
		pdf.CellFormat(5, lineHeight, l.tr("•"), "", 0, "L", false, 0, "")
		l.text(textColour)
		l.font("", 10)
		pdf.MultiCell(width-7, lineHeight, l.tr(body), "", "L", false)
	default:
		l.text(textColour)
		l.font("", 10)
		pdf.MultiCell(width, lineHeight, l.tr(body), "", "L", false)
		pdf.Ln(1.5)
	}
}

func (l *layout) table(t *table) {
	pdf := l.pdf
	cols := len(t.header)
	if cols == 0 {
		return
	}
	colW := l.contentWidth() / float64(cols)
	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()

	drawRow := func(cells []string, fillColour rgb, style string, colour rgb) {
		l.font(style, 9)
		lines := make([][]string, cols)
		maxLines := 1
		for i, c := range cells {
			lines[i] = pdf.SplitText(l.tr(clean(c)), colW-2)
			if len(lines[i]) > maxLines {
				maxLines = len(lines[i])
			}
		}
		h := float64(maxLines)*lineHeight + 2
		if pdf.GetY()+h > pageH-bottom {
			pdf.AddPage()
		}

		y := pdf.GetY()
		l.fill(fillColour)
		l.draw(gridColour)
		l.text(colour)
		for i := range cells {
			x := margin + float64(i)*colW
			pdf.Rect(x, y, colW, h, "FD")
			pdf.SetXY(x+1, y+1)
			for _, ln := range lines[i] {
				pdf.SetX(x + 1)
				pdf.CellFormat(colW-2, lineHeight, ln, "", 2, "L", false, 0, "")
			}
		}
		pdf.SetXY(margin, y+h)
	}

	pdf.Ln(1)
	drawRow(t.header, l.brand.primary, "B", white)
	for i, row := range t.rows {
		fillColour := white
		if i%2 == 1 {
			fillColour = zebraFill
		}
		drawRow(row, fillColour, "", textColour)
	}
	pdf.Ln(3)
}
