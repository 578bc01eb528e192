package prompt

import (
	"strings"
	"testing"

	"github.com/brimlabs/docreason/retrieve"
)

func TestAssembleContext_NumbersReferencesInOrder(t *testing.T) {
	results := []retrieve.Result{
		{ParentIndex: 2, ChunkIndex: 1, Text: "first", PageLabel: "3", Score: 0.9},
		{ParentIndex: 0, ChunkIndex: 0, Text: "second", PageLabel: "1", Score: 0.5},
	}
	context, refs := AssembleContext(results)

	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(refs))
	}
	if refs[0].Citation != "[참조 1: 문단 2-1]" {
		t.Errorf("refs[0].Citation = %q, want %q", refs[0].Citation, "[참조 1: 문단 2-1]")
	}
	if refs[1].Citation != "[참조 2: 문단 0-0]" {
		t.Errorf("refs[1].Citation = %q, want %q", refs[1].Citation, "[참조 2: 문단 0-0]")
	}
	if !strings.Contains(context, "first") || !strings.Contains(context, "second") {
		t.Errorf("context missing node text: %q", context)
	}
}

func TestFusion_DisabledChannelIsLiteralNull(t *testing.T) {
	answer := "표 분석 결과입니다"
	msgs := Fusion("질문", map[string]*string{"table": &answer})
	user := msgs[1].Content
	if !strings.Contains(user, "table: 표 분석 결과입니다") {
		t.Errorf("expected table channel answer in prompt, got: %s", user)
	}
	if !strings.Contains(user, "text: null") || !strings.Contains(user, "json: null") {
		t.Errorf("expected disabled channels rendered as null, got: %s", user)
	}
}

func TestChecklist_ValidKinds(t *testing.T) {
	for _, k := range []string{"procedure", "compliance", "review"} {
		if !ValidChecklistKind(k) {
			t.Errorf("expected %q to be a valid checklist kind", k)
		}
	}
	if ValidChecklistKind("bogus") {
		t.Error("expected \"bogus\" to be invalid")
	}
}

func TestTableImportance_PromptInstructsRankTagFormat(t *testing.T) {
	msgs := TableImportance("문맥", "중요도", 3)
	user := msgs[1].Content
	if !strings.Contains(user, "[순위 N] 설명") {
		t.Errorf("expected prompt to instruct the [순위 N] tag format, got: %s", user)
	}
}

func TestAmbiguity_PromptInstructsAmbiguityTagFormat(t *testing.T) {
	msgs := Ambiguity("문맥")
	user := msgs[1].Content
	if !strings.Contains(user, "[모호 표현 N]") {
		t.Errorf("expected prompt to instruct the [모호 표현 N] tag format, got: %s", user)
	}
}
