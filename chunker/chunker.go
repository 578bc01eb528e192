// Package chunker implements the Hierarchical Node Builder (C2): it
// concatenates a parsed document's page texts and splits them on sentence
// boundaries into parent chunks, then splits each parent into child
// chunks, wiring parent/child relations and attaching metadata.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/brimlabs/docreason/index"
	"github.com/brimlabs/docreason/parser"
)

// Build converts a parsed Document into a flat node list: each parent is
// immediately followed by its own children in the returned slice.
func Build(doc *parser.Document, cfg index.ChunkConfig) ([]index.Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	joined, pageOffsets := joinPages(doc.Pages)
	if strings.TrimSpace(joined) == "" {
		return nil, nil
	}
	runes := []rune(joined)

	boundaries := sentenceBoundaries(runes)
	parentRanges := splitRanges(runes, boundaries, cfg.ParentChunkSize, cfg.ParentChunkOverlap)

	var nodes []index.Node
	parentOrdinal := 0

	for _, pr := range parentRanges {
		parentText := strings.TrimSpace(string(runes[pr.start:pr.end]))
		if parentText == "" {
			continue
		}

		parentIdx := parentOrdinal
		parentID := fmt.Sprintf("p%d", parentIdx)
		parent := index.Node{
			ID:   parentID,
			Kind: index.KindParent,
			Text: parentText,
			Metadata: index.Metadata{
				ChunkIndex: parentIdx,
				PageLabel:  lookupPage(pageOffsets, pr.start),
				Kind:       string(index.KindParent),
			},
		}

		// Re-split within this parent's own range so overlap/size never
		// crosses a parent boundary.
		localRunes := runes[pr.start:pr.end]
		localBoundaries := sentenceBoundaries(localRunes)
		childRanges := splitRanges(localRunes, localBoundaries, cfg.ChildChunkSize, cfg.ChildChunkOverlap)

		childOrdinal := 0
		var children []index.Node
		for _, cr := range childRanges {
			childText := strings.TrimSpace(string(localRunes[cr.start:cr.end]))
			if childText == "" {
				continue
			}
			childID := fmt.Sprintf("p%d-c%d", parentIdx, childOrdinal)
			child := index.Node{
				ID:   childID,
				Kind: index.KindChild,
				Text: childText,
				Metadata: index.Metadata{
					ChunkIndex:  childOrdinal,
					ParentIndex: &parentIdx,
					PageLabel:   lookupPage(pageOffsets, pr.start+cr.start),
					Kind:        string(index.KindChild),
				},
				ParentID: parentID,
			}
			parent.ChildIDs = append(parent.ChildIDs, childID)
			children = append(children, child)
			childOrdinal++
		}

		nodes = append(nodes, parent)
		nodes = append(nodes, children...)
		parentOrdinal++
	}

	return nodes, nil
}

type pageOffset struct {
	start int
	label string
}

// joinPages concatenates page texts with a double-newline separator and
// records the rune offset each page starts at, for page_label lookup.
func joinPages(pages []parser.PageText) (string, []pageOffset) {
	var b strings.Builder
	offsets := make([]pageOffset, 0, len(pages))
	pos := 0
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
			pos += 2
		}
		offsets = append(offsets, pageOffset{start: pos, label: p.PageLabel})
		b.WriteString(p.Text)
		pos += utf8.RuneCountInString(p.Text)
	}
	return b.String(), offsets
}

func lookupPage(offsets []pageOffset, at int) string {
	label := ""
	for _, o := range offsets {
		if o.start <= at {
			label = o.label
		} else {
			break
		}
	}
	return label
}

// sentenceBoundaries returns sorted rune offsets marking the position
// immediately after each sentence-ending punctuation mark followed by
// whitespace or end of string, plus the final offset len(runes).
func sentenceBoundaries(runes []rune) []int {
	n := len(runes)
	var out []int
	for i := 0; i < n; i++ {
		r := runes[i]
		if r == '.' || r == '?' || r == '!' || r == '\n' {
			if i+1 >= n || unicode.IsSpace(runes[i+1]) {
				out = append(out, i+1)
			}
		}
	}
	if len(out) == 0 || out[len(out)-1] != n {
		out = append(out, n)
	}
	return out
}

type runeRange struct{ start, end int }

// splitRanges groups text into contiguous rune ranges of at most size
// runes, preferring to end each range on a sentence boundary. When the
// next sentence from the current position alone exceeds size, it falls
// back to a hard character-boundary cut at size runes. Each range after
// the first overlaps the previous one by up to overlap runes, taken from
// the previous range's tail.
func splitRanges(runes []rune, boundaries []int, size, overlap int) []runeRange {
	n := len(runes)
	var out []runeRange
	if n == 0 {
		return out
	}

	p := 0
	for p < n {
		b := -1
		for _, cand := range boundaries {
			if cand <= p {
				continue
			}
			if cand-p > size {
				break
			}
			b = cand
		}
		if b == -1 {
			b = p + size
			if b > n {
				b = n
			}
			if b <= p {
				b = n
			}
		}

		out = append(out, runeRange{start: p, end: b})

		if b >= n {
			break
		}
		next := b - overlap
		if next <= p {
			next = b
		}
		p = next
	}

	return out
}
