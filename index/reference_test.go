package index

import "testing"

func TestCitation_ParentAndChildShapes(t *testing.T) {
	if got := Citation(1, 2, nil); got != "[참조 1: 문단 2]" {
		t.Errorf("parent citation = %q, want %q", got, "[참조 1: 문단 2]")
	}
	c := 1
	if got := Citation(1, 2, &c); got != "[참조 1: 문단 2-1]" {
		t.Errorf("child citation = %q, want %q", got, "[참조 1: 문단 2-1]")
	}
}

func TestConfidenceScore_MeanClampedAndRounded(t *testing.T) {
	got := ConfidenceScore([]float64{0.9, 0.95, 0.8})
	want := 0.8833
	if got != want {
		t.Errorf("ConfidenceScore = %v, want %v", got, want)
	}
}

func TestConfidenceScore_EmptyIsZero(t *testing.T) {
	if got := ConfidenceScore(nil); got != 0.0 {
		t.Errorf("ConfidenceScore(nil) = %v, want 0.0", got)
	}
}

func TestConfidenceScore_ClampsOutOfRangeInputs(t *testing.T) {
	if got := ConfidenceScore([]float64{1.5, 1.5}); got != 1.0 {
		t.Errorf("ConfidenceScore clamp high = %v, want 1.0", got)
	}
	if got := ConfidenceScore([]float64{-0.5, -0.2}); got != 0.0 {
		t.Errorf("ConfidenceScore clamp low = %v, want 0.0", got)
	}
}

func TestNewSourceReference_ShortTextPreviewMatchesFullText(t *testing.T) {
	c := 0
	ref := NewSourceReference(1, 0, &c, "1", "짧은 문단입니다.", 0.9, Metadata{ChunkIndex: 0, Kind: string(KindChild)})
	if ref.TextPreview != ref.FullText {
		t.Errorf("TextPreview = %q, want it to match FullText %q for short text", ref.TextPreview, ref.FullText)
	}
}

func TestNewSourceReference_LongTextPreviewTruncatedTo300Runes(t *testing.T) {
	full := strings_Repeat("문", 400)
	ref := NewSourceReference(1, 0, nil, "1", full, 0.9, Metadata{ChunkIndex: 0, Kind: string(KindParent)})
	if got := runeLen(ref.TextPreview); got != 300 {
		t.Errorf("TextPreview rune length = %d, want 300", got)
	}
	if ref.FullText != full {
		t.Error("FullText must remain untruncated")
	}
}

func strings_Repeat(s string, n int) string {
	out := make([]rune, 0, n)
	r := []rune(s)
	for len(out) < n {
		out = append(out, r...)
	}
	return string(out[:n])
}

func runeLen(s string) int {
	return len([]rune(s))
}
