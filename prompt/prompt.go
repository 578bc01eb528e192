// Package prompt implements the Prompt & Response Layer (C7): one
// template per high-level operation, context assembly from retrieved
// nodes, and the response-mode contract (compact / tree_summarize /
// single completion / stream) from §4.7's operation inventory.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/brimlabs/docreason/index"
	"github.com/brimlabs/docreason/llm"
	"github.com/brimlabs/docreason/retrieve"
)

// ChecklistKind enumerates the valid "kind" values for Checklist.
type ChecklistKind string

const (
	ChecklistProcedure  ChecklistKind = "procedure"
	ChecklistCompliance ChecklistKind = "compliance"
	ChecklistReview     ChecklistKind = "review"
)

// ValidChecklistKind reports whether kind is one of the three allowed
// values.
func ValidChecklistKind(kind string) bool {
	switch ChecklistKind(kind) {
	case ChecklistProcedure, ChecklistCompliance, ChecklistReview:
		return true
	}
	return false
}

// ExceptionKeywords is the canonical exception-keyword set from §4.7,
// used by the Exception-Search post-filter.
var ExceptionKeywords = []string{"다만", "단서", "예외", "제외", "이 경우", "특례", "불구하고"}

// AssembleContext renders retrieved nodes into a numbered context block
// and, in the same pass, builds the matching SourceReference list —
// reference numbers are assigned in the order nodes are assembled, so
// the two stay aligned without a second pass over results.
func AssembleContext(results []retrieve.Result) (string, []index.SourceReference) {
	var b strings.Builder
	refs := make([]index.SourceReference, 0, len(results))
	for i, r := range results {
		refNum := i + 1
		chunkIdx := r.ChunkIndex
		parentIdx := r.ParentIndex
		meta := index.Metadata{
			ChunkIndex:  r.ChunkIndex,
			ParentIndex: &parentIdx,
			PageLabel:   r.PageLabel,
			Kind:        string(index.KindChild),
		}
		ref := index.NewSourceReference(refNum, r.ParentIndex, &chunkIdx, r.PageLabel, r.Text, r.Score, meta)
		refs = append(refs, ref)
		fmt.Fprintf(&b, "%s\n%s\n\n", ref.Citation, r.Text)
	}
	return strings.TrimSpace(b.String()), refs
}

// messages builds the standard system+user message pair used by every
// non-decompose, non-fusion operation.
func messages(system, user string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

const baseSystem = "당신은 정책/규정 문서를 분석하는 전문 어시스턴트입니다. 주어진 문맥만을 근거로 답변하고, 인용이 필요한 경우 제공된 참조 표기를 그대로 사용하세요."

// Summary builds the Summary operation prompt (response mode: compact,
// non-stream or stream).
func Summary(context string, maxLength int) []llm.Message {
	user := fmt.Sprintf(
		"다음 문서 내용을 바탕으로 %d자 이내로 핵심을 요약해 주세요.\n\n문맥:\n%s",
		maxLength, context,
	)
	return messages(baseSystem, user)
}

// ExtractIssues builds the Extract Issues prompt (tree_summarize).
func ExtractIssues(context string) []llm.Message {
	user := fmt.Sprintf(
		"다음 문서에서 문제로 지적된 주요 사안을 추출해 주세요. 각 사안마다 근거가 된 참조 번호를 [참조 n: ...] 형식으로 표기하세요.\n\n문맥:\n%s",
		context,
	)
	return messages(baseSystem, user)
}

// FreeQA builds the Free Q&A prompt (compact or stream).
func FreeQA(context, query string) []llm.Message {
	user := fmt.Sprintf("질문: %s\n\n문맥:\n%s\n\n위 문맥을 근거로 질문에 답변해 주세요.", query, context)
	return messages(baseSystem, user)
}

// ReasonAnalysis builds the Reason Analysis prompt (tree_summarize).
func ReasonAnalysis(context, decision string) []llm.Message {
	user := fmt.Sprintf(
		"다음 결정 사항에 대한 근거를 문맥에서 찾아 설명해 주세요: \"%s\"\n\n각 근거 문장마다 [참조 n: ...] 형식의 인용을 포함하세요.\n\n문맥:\n%s",
		decision, context,
	)
	return messages(baseSystem, user)
}

// ExceptionSearch builds the Exception Search prompt (tree_summarize).
// The exception-keyword post-filter is applied by the caller (C8) after
// generation, not in the prompt itself.
func ExceptionSearch(context, situation string) []llm.Message {
	user := fmt.Sprintf(
		"다음 상황에 적용될 수 있는 예외/단서 조항을 찾아주세요: \"%s\"\n\n다음 키워드가 포함된 문장을 우선적으로 고려하세요: %s\n\n각 항목마다 [참조 n: ...] 형식의 인용을 포함하세요.\n\n문맥:\n%s",
		situation, strings.Join(ExceptionKeywords, ", "), context,
	)
	return messages(baseSystem, user)
}

// ClauseSearch builds the Clause Search prompt (compact).
func ClauseSearch(context, keyword string) []llm.Message {
	user := fmt.Sprintf(
		"다음 키워드와 관련된 조항을 찾아 인용해 주세요: \"%s\"\n\n각 항목마다 [참조 n: ...] 형식의 인용을 포함하세요.\n\n문맥:\n%s",
		keyword, context,
	)
	return messages(baseSystem, user)
}

// TableImportance builds the Table Importance prompt (tree_summarize).
func TableImportance(context, tableContext string, topN int) []llm.Message {
	user := fmt.Sprintf(
		"다음 표/목록 항목을 \"%s\" 기준으로 중요도 순으로 정렬하고, 상위 %d개 항목만 선정해 주세요. 각 항목의 순위와 근거를 제시하세요. 각 항목은 \"[순위 N] 설명\" 형식으로, 한 줄에 순위와 근거를 함께 작성하세요.\n\n문맥:\n%s",
		tableContext, topN, context,
	)
	return messages(baseSystem, user)
}

// TableComparison builds the Table Comparison prompt (compact).
func TableComparison(context, aspect, tableContext string) []llm.Message {
	user := fmt.Sprintf(
		"다음 항목들을 \"%s\" 기준으로 \"%s\" 관점에서 비교해 주세요.\n\n문맥:\n%s",
		tableContext, aspect, context,
	)
	return messages(baseSystem, user)
}

// ReportSummary builds the Report Summary prompt (tree_summarize),
// requesting a title/summary/points/recommendations layout that C8 can
// parse via its literal section tags.
func ReportSummary(context string, maxLength int) []llm.Message {
	user := fmt.Sprintf(
		"다음 문맥을 바탕으로 보고서 요약을 작성해 주세요. 전체 분량은 %d자 이내로 하고, 아래 형식을 정확히 지켜 주세요:\n\n[제목]\n(한 줄 제목)\n\n[요약]\n(핵심 요약)\n\n[주요 사항]\n- 항목1\n- 항목2\n\n[권고 사항]\n- 항목1\n- 항목2\n\n문맥:\n%s",
		maxLength, context,
	)
	return messages(baseSystem, user)
}

// Checklist builds the Checklist prompt (tree_summarize). kind is one
// of procedure/compliance/review. Critical items must be marked with
// ⚠️ or under a "[필수 확인 사항]" section, per §4.8.
func Checklist(context string, kind ChecklistKind) []llm.Message {
	user := fmt.Sprintf(
		"다음 문맥을 바탕으로 %s 체크리스트를 작성해 주세요. 먼저 \"[체크리스트 제목]\" 줄을 쓰고 그 다음 줄에 한 줄 제목을 작성한 뒤, 각 항목을 \"- \"로 시작하는 목록으로 작성하고, 반드시 확인해야 하는 필수 항목은 ⚠️ 표시를 붙이거나 \"[필수 확인 사항]\" 섹션에 별도로 정리해 주세요.\n\n문맥:\n%s",
		kind, context,
	)
	return messages(baseSystem, user)
}

// Ambiguity builds the Ambiguity prompt (tree_summarize).
func Ambiguity(context string) []llm.Message {
	user := fmt.Sprintf(
		"다음 문맥에서 해석이 모호하거나 여러 의미로 읽힐 수 있는 표현을 찾아 나열해 주세요. 각 표현마다 \"[모호 표현 N]\"으로 시작하는 줄을 쓰고, 그 다음 줄에 해당 표현을, 이어지는 줄에 왜 모호한지에 대한 설명과 [참조 n: ...] 형식의 인용을 작성하세요.\n\n문맥:\n%s",
		context,
	)
	return messages(baseSystem, user)
}

// FAQ builds the FAQ prompt (tree_summarize). Questions/answers must
// follow the "Q<i>." tag format C8 scans for.
func FAQ(context string, numQuestions int) []llm.Message {
	user := fmt.Sprintf(
		"다음 문맥을 바탕으로 자주 묻는 질문 %d개와 답변을 작성해 주세요. 각 쌍을 \"Q%s.\"와 \"A%s.\" 형식으로 번호를 매겨 작성하세요.\n\n문맥:\n%s",
		numQuestions, "<i>", "<i>", context,
	)
	return messages(baseSystem, user)
}

// QueryDecompose builds the Query Decompose prompt (single completion).
// Subqueries must follow the "[서브 질문 N]" tag format C8 scans for.
func QueryDecompose(query string) []llm.Message {
	user := fmt.Sprintf(
		"다음 질문을 독립적으로 답변 가능한 더 작은 하위 질문들로 분해해 주세요. 분해가 필요 없다면 원래 질문 하나만 반환하세요. 각 하위 질문을 \"[서브 질문 N]\" 형식으로 표기하고, 마지막에 \"[분해 이유]\" 섹션에 분해 근거를 설명하세요.\n\n질문: %s",
		query,
	)
	return messages(baseSystem, user)
}

// Channel builds one of the three channel-retrieval prompts (Table,
// Text, JSON), each tree_summarize with no parser needed.
func Channel(kind, context, query string) []llm.Message {
	var lens string
	switch kind {
	case "table":
		lens = "문맥에 포함된 표/수치 데이터를 중심으로"
	case "json":
		lens = "문맥에서 추출 가능한 구조화된 필드(키-값 쌍)를 중심으로"
	default:
		lens = "문맥의 서술형 내용을 중심으로"
	}
	user := fmt.Sprintf("질문: %s\n\n%s 답변해 주세요.\n\n문맥:\n%s", query, lens, context)
	return messages(baseSystem, user)
}

// Fusion builds the Fusion prompt (single completion): the original
// query plus whichever channels produced answers. A disabled or
// answer-less channel contributes a literal "null" line, matching the
// multi-retrieval plan's "disabled channel contributes null" rule.
func Fusion(originalQuery string, channelAnswers map[string]*string) []llm.Message {
	var b strings.Builder
	for _, ch := range []string{"table", "text", "json"} {
		answer, ok := channelAnswers[ch]
		b.WriteString(ch + ": ")
		if !ok || answer == nil {
			b.WriteString("null")
		} else {
			b.WriteString(*answer)
		}
		b.WriteString("\n\n")
	}
	user := fmt.Sprintf(
		"원래 질문: %s\n\n아래는 서로 다른 채널에서 생성된 답변입니다. 이를 종합하여 하나의 최종 답변을 작성해 주세요.\n\n%s",
		originalQuery, b.String(),
	)
	return messages(baseSystem, user)
}

// MaxLengthLabel renders a max_length bound for inclusion in a log or
// metadata field.
func MaxLengthLabel(maxLength int) string {
	return strconv.Itoa(maxLength) + "자"
}

// IntegrationInput is one subquery's fused Multi-retrieval answer, the
// input unit for the Advanced plan's final Integrate step.
type IntegrationInput struct {
	Subquery string
	Answer   string
}

// Integrate builds the Advanced plan's integration prompt (single
// completion): the original query plus every subquery's fused answer,
// in order, consolidated into one final answer.
func Integrate(originalQuery string, inputs []IntegrationInput) []llm.Message {
	var b strings.Builder
	for i, in := range inputs {
		fmt.Fprintf(&b, "하위 질문 %d: %s\n답변: %s\n\n", i+1, in.Subquery, in.Answer)
	}
	user := fmt.Sprintf(
		"원래 질문: %s\n\n아래는 하위 질문들에 대한 답변입니다. 이를 종합하여 하나의 최종 답변을 작성해 주세요.\n\n%s",
		originalQuery, b.String(),
	)
	return messages(baseSystem, user)
}
