package reporting

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	pdfFont      = "Arial"
	pdfMonoFont  = "Courier"
	pdfBodySize  = 9.0
	pdfLineH     = 5.0
	pdfPageWidth = 190.0
)

// RenderPDF lays out a markdown run summary as an A4 PDF
func RenderPDF(markdown, title string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	pdf.SetFont(pdfFont, "", pdfBodySize)

	source := []byte(markdown)
	doc := newMarkdown().Parser().Parse(text.NewReader(source))

	r := &pdfWriter{
		pdf:    pdf,
		source: source,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
	}
	if err := ast.Walk(doc, r.walk); err != nil {
		return nil, fmt.Errorf("failed to lay out PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// pdfWriter walks the goldmark AST and writes it with fpdf
type pdfWriter struct {
	pdf    *fpdf.Fpdf
	source []byte
	tr     func(string) string
	bold   bool
	italic bool
	depth  int
}

func (r *pdfWriter) restoreFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(pdfFont, style, pdfBodySize)
}

func (r *pdfWriter) write(s string) {
	r.pdf.Write(pdfLineH, r.tr(s))
}

func (r *pdfWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(4)
			size := 10.0
			switch node.Level {
			case 1:
				size = 14
			case 2:
				size = 12
			}
			r.pdf.SetFont(pdfFont, "B", size)
		} else {
			r.pdf.Ln(7)
			r.restoreFont()
		}

	case *ast.Paragraph:
		if !entering {
			r.pdf.Ln(pdfLineH + 1)
		}

	case *ast.Text:
		if entering {
			r.write(string(node.Segment.Value(r.source)))
			if node.SoftLineBreak() || node.HardLineBreak() {
				r.pdf.Ln(pdfLineH)
			}
		}

	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.restoreFont()

	case *ast.CodeSpan:
		if entering {
			r.pdf.SetFont(pdfMonoFont, "", pdfBodySize)
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					r.write(string(t.Segment.Value(r.source)))
				}
			}
			r.restoreFont()
		}
		return ast.WalkSkipChildren, nil

	case *ast.FencedCodeBlock:
		if entering {
			r.codeBlock(node.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.List:
		if entering {
			r.depth++
		} else {
			r.depth--
			if r.depth == 0 {
				r.pdf.Ln(2)
			}
		}

	case *ast.ListItem:
		if entering {
			r.pdf.Ln(pdfLineH)
			r.pdf.SetX(10 + float64(r.depth)*5)
			r.write("- ")
		}

	case *extast.Table:
		if entering {
			r.table(node)
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (r *pdfWriter) codeBlock(lines *text.Segments) {
	r.pdf.Ln(2)
	r.pdf.SetFont(pdfMonoFont, "", 8)
	r.pdf.SetFillColor(245, 245, 245)
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		r.pdf.MultiCell(0, 4, r.tr(strings.TrimRight(string(line.Value(r.source)), "\n")), "", "L", true)
	}
	r.pdf.SetFillColor(255, 255, 255)
	r.restoreFont()
	r.pdf.Ln(2)
}

func (r *pdfWriter) table(n *extast.Table) {
	var rows [][]string
	var collect func(node ast.Node)
	collect = func(node ast.Node) {
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			switch child.(type) {
			case *extast.TableHeader, *extast.TableRow:
				var row []string
				for c := child.FirstChild(); c != nil; c = c.NextSibling() {
					row = append(row, cellText(c, r.source))
				}
				rows = append(rows, row)
			}
		}
	}
	collect(n)
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	const fontSize = 8.0
	const rowH = 5.0
	widths := r.columnWidths(rows, fontSize)

	r.pdf.Ln(2)
	for i, row := range rows {
		if i == 0 {
			r.pdf.SetFont(pdfFont, "B", fontSize)
			r.pdf.SetFillColor(230, 230, 230)
		} else {
			r.pdf.SetFont(pdfFont, "", fontSize)
			r.pdf.SetFillColor(255, 255, 255)
		}
		for j, w := range widths {
			value := ""
			if j < len(row) {
				value = r.tr(r.fit(row[j], w-2))
			}
			r.pdf.CellFormat(w, rowH, value, "1", 0, "L", i == 0, 0, "")
		}
		r.pdf.Ln(-1)
	}
	r.pdf.Ln(3)
	r.restoreFont()
}

// columnWidths shares the page width in proportion to each column's widest
// cell, with a floor so short columns stay legible.
func (r *pdfWriter) columnWidths(rows [][]string, fontSize float64) []float64 {
	r.pdf.SetFont(pdfFont, "", fontSize)
	cols := len(rows[0])
	widest := make([]float64, cols)
	total := 0.0
	for j := 0; j < cols; j++ {
		for _, row := range rows {
			if j < len(row) {
				if w := r.pdf.GetStringWidth(row[j]) + 4; w > widest[j] {
					widest[j] = w
				}
			}
		}
		if widest[j] < 15 {
			widest[j] = 15
		}
		total += widest[j]
	}
	if total <= pdfPageWidth {
		return widest
	}
	for j := range widest {
		widest[j] = widest[j] / total * pdfPageWidth
	}
	return widest
}

// fit truncates s to width with an ellipsis
func (r *pdfWriter) fit(s string, width float64) string {
	if r.pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && r.pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

func cellText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := c.(*ast.Text); ok && entering {
			b.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
