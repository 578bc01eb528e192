package answer

import (
	"testing"

	"github.com/brimlabs/docreason/index"
)

func TestCitedReferenceNumbers_DedupesInOrder(t *testing.T) {
	raw := "첫 근거입니다 [참조 2: 문단 1-0]. 추가로 [참조 1: 문단 0]. 또 [참조 2: 문단 1-0]."
	got := CitedReferenceNumbers(raw)
	if len(got) != 2 || got[0] != 2 || got[1] != 1 {
		t.Fatalf("CitedReferenceNumbers = %v, want [2 1]", got)
	}
}

func TestFilterExceptionKeywords_OnlyKeepsMatchesAndRecordsWhichKeywords(t *testing.T) {
	refs := []index.SourceReference{
		{ReferenceNumber: 1, FullText: "다만, 허위 신고의 경우 제외한다."},
		{ReferenceNumber: 2, FullText: "지원 대상은 소상공인이다."},
	}
	out := FilterExceptionKeywords(refs, []string{"다만", "단서", "예외", "제외", "이 경우", "특례", "불구하고"})
	if len(out) != 1 {
		t.Fatalf("expected 1 highlighted source, got %d", len(out))
	}
	if len(out[0].FoundExceptionKeywords) == 0 {
		t.Fatal("expected non-empty FoundExceptionKeywords")
	}
	for _, kw := range out[0].FoundExceptionKeywords {
		if !contains(out[0].FullText, kw) {
			t.Errorf("keyword %q not actually present in FullText %q", kw, out[0].FullText)
		}
	}
}

func contains(s, substr string) bool {
	return len(substr) == 0 || (len(s) >= len(substr) && indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestParseReportSummary_AllSections(t *testing.T) {
	raw := "[제목]\n지원사업 요약\n\n[요약]\n핵심 내용입니다.\n\n[주요 사항]\n- 사항1\n- 사항2\n\n[권고 사항]\n- 권고1\n"
	got := ParseReportSummary(raw)
	if got.Title != "지원사업 요약" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.Summary != "핵심 내용입니다." {
		t.Errorf("Summary = %q", got.Summary)
	}
	if len(got.Points) != 2 || len(got.Recommendations) != 1 {
		t.Errorf("Points/Recommendations = %v / %v", got.Points, got.Recommendations)
	}
}

func TestParseReportSummary_MissingSectionsYieldZeroValues(t *testing.T) {
	got := ParseReportSummary("이 텍스트는 아무 태그도 포함하지 않습니다.")
	if got.Title != "" || got.Summary != "" || got.Points != nil || got.Recommendations != nil {
		t.Errorf("expected all-empty ReportSummary, got %+v", got)
	}
}

func TestParseChecklist_CriticalViaMarkerOrSection(t *testing.T) {
	raw := "[체크리스트 제목]\n사업자 등록 체크리스트\n\n- 일반 항목\n- ⚠️ 반드시 제출할 것\n\n[필수 확인 사항]\n- 사업자등록증 확인\n"
	got := ParseChecklist(raw)
	if got.Title != "사업자 등록 체크리스트" {
		t.Errorf("Title = %q", got.Title)
	}
	if len(got.Items) != 3 {
		t.Fatalf("expected 3 items, got %d: %+v", len(got.Items), got.Items)
	}
	if got.Items[0].Critical {
		t.Error("expected first item not critical")
	}
	if !got.Items[1].Critical {
		t.Error("expected ⚠️-marked item to be critical")
	}
	if !got.Items[2].Critical {
		t.Error("expected item under [필수 확인 사항] to be critical")
	}
}

func TestParseFAQ_PairsByIndex(t *testing.T) {
	raw := "Q1. 지원 대상은 누구인가요?\nA1. 소상공인입니다.\n\nQ2. 신청 기한은?\nA2. 2025년 12월까지입니다.\n"
	got := ParseFAQ(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(got))
	}
	if got[0].Question == "" || got[0].Answer == "" {
		t.Errorf("pair 0 incomplete: %+v", got[0])
	}
}

func TestParseDecomposition_SubqueriesAndReasoning(t *testing.T) {
	raw := "[서브 질문 1]\n예산 규모는 얼마인가?\n\n[서브 질문 2]\n신청 기한은 언제인가?\n\n[분해 이유]\n두 정보는 서로 다른 섹션에 있다.\n"
	got := ParseDecomposition(raw)
	if len(got.Subqueries) != 2 {
		t.Fatalf("expected 2 subqueries, got %d", len(got.Subqueries))
	}
	if got.Reasoning == "" {
		t.Error("expected non-empty reasoning")
	}
}

func TestParseDecomposition_NoTagsYieldsEmptySubqueries(t *testing.T) {
	got := ParseDecomposition("분해할 필요가 없는 단순한 질문입니다.")
	if len(got.Subqueries) != 0 {
		t.Errorf("expected no subqueries parsed from untagged text, got %v", got.Subqueries)
	}
}

func TestParseTableImportance_RanksAndText(t *testing.T) {
	raw := "[순위 1] 예산 항목, 전체 사업비의 60%를 차지한다\n[순위 2] 인건비 항목, 전체 사업비의 25%를 차지한다\n"
	got := ParseTableImportance(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 ranked items, got %d", len(got))
	}
	if got[0].Rank != 1 || got[0].Text == "" {
		t.Errorf("item 0 = %+v, want rank 1 with non-empty text", got[0])
	}
	if got[1].Rank != 2 {
		t.Errorf("item 1 rank = %d, want 2", got[1].Rank)
	}
}

func TestParseAmbiguity_ExpressionAndExplanation(t *testing.T) {
	raw := "[모호 표현 1]\n상당한 기간\n구체적인 일수가 명시되어 있지 않아 해석의 여지가 있다 [참조 1: 문단 0].\n"
	got := ParseAmbiguity(raw)
	if len(got) != 1 {
		t.Fatalf("expected 1 ambiguous expression, got %d", len(got))
	}
	if got[0].Expression == "" || got[0].Explanation == "" {
		t.Errorf("expected both expression and explanation populated, got %+v", got[0])
	}
}
