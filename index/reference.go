package index

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// textPreviewLimit bounds SourceReference.TextPreview to at most this
// many runes, per §3's Source Reference data model.
const textPreviewLimit = 300

// SourceReference points an answer back at the retrieved node it was
// grounded on, numbered in the order the nodes were assembled into the
// prompt (1-based, matching the citation's "n").
type SourceReference struct {
	ReferenceNumber int      `json:"reference_number"`
	ParentIndex     int      `json:"parent_index"`
	ChunkIndex      *int     `json:"chunk_index,omitempty"`
	PageLabel       string   `json:"page_label,omitempty"`
	TextPreview     string   `json:"text_preview"`
	FullText        string   `json:"full_text"`
	Score           float64  `json:"score"`
	Citation        string   `json:"citation"`
	Metadata        Metadata `json:"metadata"`
}

// NewSourceReference builds a SourceReference with its Citation string
// and truncated TextPreview pre-rendered. chunkIndex is nil for a
// parent-level reference.
func NewSourceReference(refNum, parentIndex int, chunkIndex *int, pageLabel, fullText string, score float64, meta Metadata) SourceReference {
	return SourceReference{
		ReferenceNumber: refNum,
		ParentIndex:     parentIndex,
		ChunkIndex:      chunkIndex,
		PageLabel:       pageLabel,
		TextPreview:     truncateRunes(fullText, textPreviewLimit),
		FullText:        fullText,
		Score:           score,
		Citation:        Citation(refNum, parentIndex, chunkIndex),
		Metadata:        meta,
	}
}

// truncateRunes cuts s to at most n runes, leaving it unchanged if
// already within bounds.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Citation formats a reference as "[참조 n: 문단 p]" for a parent or
// "[참조 n: 문단 p-c]" for a child.
func Citation(refNum, parentIndex int, chunkIndex *int) string {
	if chunkIndex == nil {
		return fmt.Sprintf("[참조 %d: 문단 %d]", refNum, parentIndex)
	}
	return fmt.Sprintf("[참조 %d: 문단 %d-%d]", refNum, parentIndex, *chunkIndex)
}

// ConfidenceScore is the arithmetic mean of the given similarity scores,
// clamped to [0, 1] and rounded to 4 decimal places. An empty input
// yields 0.0. It is an uncalibrated heuristic, not a probability.
func ConfidenceScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))
	if mean < 0 {
		mean = 0
	}
	if mean > 1 {
		mean = 1
	}
	return math.Round(mean*10000) / 10000
}
