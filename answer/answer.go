// Package answer implements the Structured Output Parser (C8):
// line-scanning parsers that recognize each operation's literal section
// tags and degrade to empty structured fields — never an error — on
// malformed or missing sections. The raw generator text is always
// available alongside the parsed view.
package answer

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/brimlabs/docreason/index"
)

var citationPattern = regexp.MustCompile(`\[참조\s*(\d+)\s*:\s*문단\s*\d+(?:-\d+)?\]`)

// CitedReferenceNumbers returns the reference numbers cited in raw, in
// first-occurrence order with duplicates removed.
func CitedReferenceNumbers(raw string) []int {
	matches := citationPattern.FindAllStringSubmatch(raw, -1)
	seen := make(map[int]bool)
	var out []int
	for _, m := range matches {
		n := atoiSafe(m[1])
		if n == 0 || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// HighlightedSource is a SourceReference annotated with the exception
// keywords found in its text.
type HighlightedSource struct {
	index.SourceReference
	FoundExceptionKeywords []string `json:"found_exception_keywords"`
}

// FilterExceptionKeywords retains only references whose FullText
// contains at least one of keywords, recording which ones matched.
// Grounds invariant #7: every returned entry's keyword list is
// non-empty and each keyword is a verified substring of FullText.
func FilterExceptionKeywords(refs []index.SourceReference, keywords []string) []HighlightedSource {
	var out []HighlightedSource
	for _, r := range refs {
		var found []string
		for _, kw := range keywords {
			if strings.Contains(r.FullText, kw) {
				found = append(found, kw)
			}
		}
		if len(found) > 0 {
			out = append(out, HighlightedSource{SourceReference: r, FoundExceptionKeywords: found})
		}
	}
	return out
}

// ReportSummary is the parsed view of the Report Summary operation.
type ReportSummary struct {
	Title           string   `json:"title"`
	Summary         string   `json:"summary"`
	Points          []string `json:"points"`
	Recommendations []string `json:"recommendations"`
}

// ParseReportSummary scans for the "[제목]", "[요약]", "[주요 사항]",
// and "[권고 사항]" section headers. Any section absent from raw is
// left at its zero value.
func ParseReportSummary(raw string) ReportSummary {
	var out ReportSummary
	section := ""
	var summaryLines []string

	forEachLine(raw, func(line string) {
		switch trimmedHeader(line) {
		case "제목":
			section = "title"
			return
		case "요약":
			section = "summary"
			return
		case "주요 사항":
			section = "points"
			return
		case "권고 사항":
			section = "recommendations"
			return
		}
		if line == "" {
			return
		}
		switch section {
		case "title":
			if out.Title == "" {
				out.Title = line
			}
		case "summary":
			summaryLines = append(summaryLines, line)
		case "points":
			if item, ok := bulletItem(line); ok {
				out.Points = append(out.Points, item)
			}
		case "recommendations":
			if item, ok := bulletItem(line); ok {
				out.Recommendations = append(out.Recommendations, item)
			}
		}
	})
	out.Summary = strings.TrimSpace(strings.Join(summaryLines, " "))
	return out
}

// ChecklistItem is one checklist entry, flagged critical when marked
// with ⚠️ or listed under the "[필수 확인 사항]" section.
type ChecklistItem struct {
	Text     string `json:"text"`
	Critical bool   `json:"critical"`
}

// Checklist is the parsed view of the Checklist operation.
type Checklist struct {
	Title string          `json:"title"`
	Items []ChecklistItem `json:"items"`
}

const criticalMarker = "⚠️"

// ParseChecklist scans for the "[체크리스트 제목]" and optional
// "[필수 확인 사항]" section headers, plus "-"-prefixed item lines.
func ParseChecklist(raw string) Checklist {
	var out Checklist
	section := ""

	forEachLine(raw, func(line string) {
		switch trimmedHeader(line) {
		case "체크리스트 제목":
			section = "title"
			return
		case "필수 확인 사항":
			section = "critical"
			return
		}
		if line == "" {
			return
		}
		if section == "title" && out.Title == "" {
			out.Title = line
			return
		}
		if item, ok := bulletItem(line); ok {
			critical := section == "critical" || strings.Contains(item, criticalMarker)
			text := strings.TrimSpace(strings.ReplaceAll(item, criticalMarker, ""))
			out.Items = append(out.Items, ChecklistItem{Text: text, Critical: critical})
		}
	})
	return out
}

// FAQPair is one question/answer pair.
type FAQPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

var qaTagPattern = regexp.MustCompile(`^([QA])(\d+)\.\s*(.*)$`)

// ParseFAQ scans for "Q<i>." / "A<i>." tagged lines and pairs them by
// index. Multi-line answers accumulate until the next tag.
func ParseFAQ(raw string) []FAQPair {
	type entry struct{ q, a []string }
	byIndex := make(map[int]*entry)
	var order []int

	current := "" // "q" or "a"
	currentIdx := 0

	get := func(idx int) *entry {
		e, ok := byIndex[idx]
		if !ok {
			e = &entry{}
			byIndex[idx] = e
			order = append(order, idx)
		}
		return e
	}

	forEachLine(raw, func(line string) {
		if m := qaTagPattern.FindStringSubmatch(line); m != nil {
			idx := atoiSafe(m[2])
			e := get(idx)
			if m[1] == "Q" {
				current, currentIdx = "q", idx
				e.q = append(e.q, m[3])
			} else {
				current, currentIdx = "a", idx
				e.a = append(e.a, m[3])
			}
			return
		}
		if line == "" || current == "" {
			return
		}
		e := get(currentIdx)
		switch current {
		case "q":
			e.q = append(e.q, line)
		case "a":
			e.a = append(e.a, line)
		}
	})

	out := make([]FAQPair, 0, len(order))
	for _, idx := range order {
		e := byIndex[idx]
		out = append(out, FAQPair{
			Question: strings.TrimSpace(strings.Join(e.q, " ")),
			Answer:   strings.TrimSpace(strings.Join(e.a, " ")),
		})
	}
	return out
}

// Decomposition is the parsed view of the Query Decompose operation.
type Decomposition struct {
	Subqueries []string `json:"subqueries"`
	Reasoning  string   `json:"reasoning"`
}

var subqueryTagPattern = regexp.MustCompile(`^\[서브\s*질문\s*(\d+)\]$`)

// ParseDecomposition scans for "[서브 질문 N]" headers and an optional
// "[분해 이유]" trailer. If no subquery headers are found at all, the
// caller (per §4.9) treats the original query as the sole subquery.
func ParseDecomposition(raw string) Decomposition {
	var out Decomposition
	var current []string
	var reasoning []string
	section := ""

	flush := func() {
		if len(current) > 0 {
			out.Subqueries = append(out.Subqueries, strings.TrimSpace(strings.Join(current, " ")))
			current = nil
		}
	}

	forEachLine(raw, func(line string) {
		if subqueryTagPattern.MatchString(line) {
			flush()
			section = "subquery"
			return
		}
		if trimmedHeader(line) == "분해 이유" {
			flush()
			section = "reasoning"
			return
		}
		if line == "" {
			return
		}
		switch section {
		case "subquery":
			current = append(current, line)
		case "reasoning":
			reasoning = append(reasoning, line)
		}
	})
	flush()
	out.Reasoning = strings.TrimSpace(strings.Join(reasoning, " "))
	return out
}

var ambiguityTagPattern = regexp.MustCompile(`^\[모호\s*표현\s*(\d+)\]$`)

// AmbiguousExpression is one flagged expression with its explanation.
type AmbiguousExpression struct {
	Expression  string `json:"expression"`
	Explanation string `json:"explanation"`
}

// ParseAmbiguity scans for "[모호 표현 N]" headers; the first line after
// a header is the flagged expression, subsequent lines (until the next
// header) are its explanation.
func ParseAmbiguity(raw string) []AmbiguousExpression {
	var out []AmbiguousExpression
	var current *AmbiguousExpression
	var explanation []string

	flush := func() {
		if current != nil {
			current.Explanation = strings.TrimSpace(strings.Join(explanation, " "))
			out = append(out, *current)
			current = nil
			explanation = nil
		}
	}

	forEachLine(raw, func(line string) {
		if ambiguityTagPattern.MatchString(line) {
			flush()
			current = &AmbiguousExpression{}
			return
		}
		if line == "" || current == nil {
			return
		}
		if current.Expression == "" {
			current.Expression = line
			return
		}
		explanation = append(explanation, line)
	})
	flush()
	return out
}

// RankedItem is one entry of the Table Importance operation's output.
type RankedItem struct {
	Rank int    `json:"rank"`
	Text string `json:"text"`
}

var rankTagPattern = regexp.MustCompile(`^\[순위\s*(\d+)\]\s*(.*)$`)

// ParseTableImportance scans for "[순위 N] ..." lines, accumulating any
// following unlabeled lines into the same item's text.
func ParseTableImportance(raw string) []RankedItem {
	var out []RankedItem
	var current *RankedItem
	var lines []string

	flush := func() {
		if current != nil {
			current.Text = strings.TrimSpace(strings.Join(lines, " "))
			out = append(out, *current)
			current = nil
			lines = nil
		}
	}

	forEachLine(raw, func(line string) {
		if m := rankTagPattern.FindStringSubmatch(line); m != nil {
			flush()
			current = &RankedItem{Rank: atoiSafe(m[1])}
			if m[2] != "" {
				lines = append(lines, m[2])
			}
			return
		}
		if line == "" || current == nil {
			return
		}
		lines = append(lines, line)
	})
	flush()
	return out
}

// --- shared scanning helpers ---

func forEachLine(raw string, fn func(line string)) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(strings.TrimSpace(scanner.Text()))
	}
}

// trimmedHeader returns the inner text of a "[...]" header line, or ""
// if line is not such a header.
func trimmedHeader(line string) string {
	if len(line) < 2 || !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return ""
	}
	return line[1 : len(line)-1]
}

// bulletItem strips a leading "-" or "•" bullet marker from line.
func bulletItem(line string) (string, bool) {
	for _, prefix := range []string{"- ", "-", "• ", "•"} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
		}
	}
	return "", false
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
