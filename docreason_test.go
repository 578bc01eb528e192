package docreason

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/brimlabs/docreason/index"
	"github.com/brimlabs/docreason/llm"
	"github.com/brimlabs/docreason/parser"
	"github.com/brimlabs/docreason/plan"
	"github.com/brimlabs/docreason/retrieve"
	"github.com/brimlabs/docreason/store"
)

// fakeLoader returns a fixed two-page document regardless of path.
type fakeLoader struct {
	doc *parser.Document
	err error
}

func (f *fakeLoader) Load(ctx context.Context, path string) (*parser.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

// fakeProvider is a stub llm.Provider: Embed returns one fixed-length
// vector per input text, Chat returns "answer" or, when chatFn is set,
// whatever chatFn returns for the request.
type fakeProvider struct {
	chatFn func(req llm.ChatRequest) (string, error)
	embed  func(texts []string) ([][]float32, error)
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.chatFn == nil {
		return &llm.ChatResponse{Content: "answer"}, nil
	}
	content, err := f.chatFn(req)
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{Content: content}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.embed != nil {
		return f.embed(texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func newTestEngine(t *testing.T, loader parser.Loader, chat, embed *fakeProvider) *Engine {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	st := store.New(rdb, 5*time.Second)
	e := &Engine{
		cfg: Config{
			Chat:               llm.Config{Provider: "openai", Model: "test-chat"},
			Embedding:          llm.Config{Provider: "openai", Model: "test-embed"},
			LLMTemperature:     0.1,
			DocBaseDir:         "docs/",
			DefaultChunkConfig: index.DefaultChunkConfig(),
		},
		rdb:       rdb,
		store:     st,
		chatLLM:   chat,
		embedLLM:  embed,
		loader:    loader,
		retriever: retrieve.New(st, embed),
	}
	e.planner = plan.New(map[string]plan.ChannelRunner{
		"table": e.channelRunner("table"),
		"text":  e.channelRunner("text"),
		"json":  e.channelRunner("json"),
	}, e.fusionRunner, e.decomposeRunner, e.integrateRunner)
	return e
}

func sampleDoc() *parser.Document {
	return &parser.Document{Pages: []parser.PageText{
		{PageLabel: "1", Text: "본 약관은 회원의 권리와 의무를 규정한다. 다만 예외적인 경우 환불이 가능하다."},
		{PageLabel: "2", Text: "제3조 해지 절차는 서면 통지로 진행한다."},
	}}
}

func TestUploadDocument_ThenFreeQA(t *testing.T) {
	e := newTestEngine(t, &fakeLoader{doc: sampleDoc()}, &fakeProvider{}, &fakeProvider{})
	ctx := context.Background()

	result, err := e.UploadDocument(ctx, "doc1", "policy.pdf", nil)
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if result.DocID != "doc1" || result.ChildNodes == 0 {
		t.Fatalf("unexpected upload result: %+v", result)
	}

	exists, err := e.DocumentExists(ctx, "doc1")
	if err != nil || !exists {
		t.Fatalf("DocumentExists: %v, %v", exists, err)
	}

	qa, err := e.FreeQA(ctx, "doc1", "해지 절차가 무엇인가요?", 5)
	if err != nil {
		t.Fatalf("FreeQA: %v", err)
	}
	if qa.Answer == "" {
		t.Error("expected non-empty answer")
	}
	if len(qa.SourceReferences) == 0 {
		t.Error("expected at least one source reference")
	}
}

func TestUploadDocument_MissingFileIsNotFound(t *testing.T) {
	e := newTestEngine(t, &fakeLoader{err: &parser.NotFoundError{}}, &fakeProvider{}, &fakeProvider{})
	_, err := e.UploadDocument(context.Background(), "doc1", "missing.pdf", nil)
	if Kind(err) != "NotFound" {
		t.Fatalf("expected NotFound kind, got %q (%v)", Kind(err), err)
	}
}

func TestFreeQA_UnknownDocumentIsNotFound(t *testing.T) {
	e := newTestEngine(t, &fakeLoader{doc: sampleDoc()}, &fakeProvider{}, &fakeProvider{})
	_, err := e.FreeQA(context.Background(), "absent", "질문", 5)
	if Kind(err) != "NotFound" {
		t.Fatalf("expected NotFound kind, got %q (%v)", Kind(err), err)
	}
}

func TestFreeQA_EmptyQueryIsValidationError(t *testing.T) {
	e := newTestEngine(t, &fakeLoader{doc: sampleDoc()}, &fakeProvider{}, &fakeProvider{})
	ctx := context.Background()
	if _, err := e.UploadDocument(ctx, "doc1", "policy.pdf", nil); err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	_, err := e.FreeQA(ctx, "doc1", "", 5)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSummary_RejectsOutOfBoundsMaxLength(t *testing.T) {
	e := newTestEngine(t, &fakeLoader{doc: sampleDoc()}, &fakeProvider{}, &fakeProvider{})
	ctx := context.Background()
	if _, err := e.UploadDocument(ctx, "doc1", "policy.pdf", nil); err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if _, err := e.Summary(ctx, "doc1", 10, 5); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for max_length below bound, got %v", err)
	}
	if _, err := e.Summary(ctx, "doc1", 1000, 5); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for max_length above bound, got %v", err)
	}
}

func TestExtractIssues_RejectsTopKBelowThree(t *testing.T) {
	e := newTestEngine(t, &fakeLoader{doc: sampleDoc()}, &fakeProvider{}, &fakeProvider{})
	ctx := context.Background()
	if _, err := e.UploadDocument(ctx, "doc1", "policy.pdf", nil); err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if _, err := e.ExtractIssues(ctx, "doc1", 2); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for top_k below 3, got %v", err)
	}
}

func TestExceptionSearch_FiltersToExceptionKeywords(t *testing.T) {
	e := newTestEngine(t, &fakeLoader{doc: sampleDoc()}, &fakeProvider{
		chatFn: func(req llm.ChatRequest) (string, error) { return "예외 조항 설명", nil },
	}, &fakeProvider{})
	ctx := context.Background()
	if _, err := e.UploadDocument(ctx, "doc1", "policy.pdf", nil); err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	result, err := e.ExceptionSearch(ctx, "doc1", "환불을 요청하는 상황", 5)
	if err != nil {
		t.Fatalf("ExceptionSearch: %v", err)
	}
	for _, hs := range result.HighlightedSources {
		found := false
		for _, kw := range []string{"다만", "단서", "예외", "제외", "이 경우", "특례", "불구하고"} {
			if containsSubstr(hs.FullText, kw) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("highlighted source %q does not contain an exception keyword", hs.FullText)
		}
	}
}

func containsSubstr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestDeleteDocument_IsIdempotent(t *testing.T) {
	e := newTestEngine(t, &fakeLoader{doc: sampleDoc()}, &fakeProvider{}, &fakeProvider{})
	ctx := context.Background()
	if _, err := e.UploadDocument(ctx, "doc1", "policy.pdf", nil); err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	existed, err := e.DeleteDocument(ctx, "doc1")
	if err != nil || !existed {
		t.Fatalf("first delete: existed=%v err=%v", existed, err)
	}
	existed, err = e.DeleteDocument(ctx, "doc1")
	if err != nil || existed {
		t.Fatalf("second delete: existed=%v err=%v", existed, err)
	}
}

func TestQueryDecompose_ParsesSubqueries(t *testing.T) {
	e := newTestEngine(t, &fakeLoader{doc: sampleDoc()}, &fakeProvider{
		chatFn: func(req llm.ChatRequest) (string, error) {
			return "[서브 질문 1]\n해지 절차는?\n[서브 질문 2]\n환불 조건은?\n[분해 이유]\n두 주제가 독립적이다.", nil
		},
	}, &fakeProvider{})

	result, err := e.QueryDecompose(context.Background(), "doc1", "해지 절차와 환불 조건은?")
	if err != nil {
		t.Fatalf("QueryDecompose: %v", err)
	}
	if len(result.Decomposition.Subqueries) != 2 {
		t.Fatalf("expected 2 subqueries, got %d: %+v", len(result.Decomposition.Subqueries), result.Decomposition)
	}
}

func TestMultiRetrieval_RequiresAtLeastOneChannel(t *testing.T) {
	e := newTestEngine(t, &fakeLoader{doc: sampleDoc()}, &fakeProvider{}, &fakeProvider{})
	ctx := context.Background()
	if _, err := e.UploadDocument(ctx, "doc1", "policy.pdf", nil); err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	_, err := e.MultiRetrieval(ctx, "doc1", "질문", plan.ChannelFlags{}, 5)
	if err == nil {
		t.Fatal("expected an error when no channel is enabled")
	}
}

func TestSummaryStream_RejectsNonStreamingProvider(t *testing.T) {
	e := newTestEngine(t, &fakeLoader{doc: sampleDoc()}, &fakeProvider{}, &fakeProvider{})
	ctx := context.Background()
	if _, err := e.UploadDocument(ctx, "doc1", "policy.pdf", nil); err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	_, err := e.SummaryStream(ctx, "doc1", 200, 5)
	if !errors.Is(err, ErrGenerationFailure) {
		t.Fatalf("expected ErrGenerationFailure for a non-streaming provider, got %v", err)
	}
}
