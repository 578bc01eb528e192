package parser

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFLoader implements Loader using github.com/ledongthuc/pdf.
type PDFLoader struct{}

func (l *PDFLoader) Load(ctx context.Context, path string) (*Document, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, &parseFailureError{msg: fmt.Sprintf("pdf loader: opening %s: %v", path, err)}
	}
	defer f.Close()

	totalPages := reader.NumPage()
	pages := make([]PageText, 0, totalPages)

	for i := 1; i <= totalPages; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := extractPageTextOrdered(page)
		if err != nil {
			// A single unreadable page does not fail the whole document;
			// it simply contributes no text (the splitter drops empty chunks).
			text = ""
		}

		pages = append(pages, PageText{
			PageLabel: strconv.Itoa(i),
			Text:      strings.TrimSpace(text),
		})
	}

	if len(pages) == 0 {
		return nil, &parseFailureError{msg: fmt.Sprintf("pdf loader: %s: no pages could be read", path)}
	}

	return &Document{Pages: pages}, nil
}

// extractPageTextOrdered extracts text from a PDF page sorted by visual
// position (top-to-bottom). The library's own GetPlainText reads text in
// content-stream order, which can differ from visual layout — headings
// can trail the body text they label. This groups Content() elements into
// visual lines by Y proximity (preserving content-stream order within a
// line, since some PDFs use negative text matrices that would garble a
// naive X sort), then orders the lines top-to-bottom.
func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0

	type visualLine struct {
		y   float64
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine

	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	// Higher Y = higher on the page in PDF coordinates (origin bottom-left).
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].y > lines[j].y
	})

	var parts []string
	for _, l := range lines {
		text := strings.TrimSpace(l.buf.String())
		if text != "" {
			parts = append(parts, text)
		}
	}

	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}
	return result, nil
}
