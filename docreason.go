// Package docreason ties the core components (C1–C10) into a single
// Engine: document upload (parse → chunk → embed → persist) and the
// full family of retrieval-augmented operations over an uploaded
// document, per §4 and §6.
package docreason

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brimlabs/docreason/answer"
	"github.com/brimlabs/docreason/chunker"
	"github.com/brimlabs/docreason/index"
	"github.com/brimlabs/docreason/llm"
	"github.com/brimlabs/docreason/parser"
	"github.com/brimlabs/docreason/plan"
	"github.com/brimlabs/docreason/prompt"
	"github.com/brimlabs/docreason/retrieve"
	"github.com/brimlabs/docreason/store"
)

// Request-level bounds, tighter than C6's own [1,40] ceiling: each
// operation's own default and bound per the per-operation request
// tables.
const (
	minOpTopK        = 1
	maxOpTopK        = 20
	minIssuesTopK    = 3
	minSummaryLength = 50
	maxSummaryLength = 500
)

// Engine wires the Index Store, Retriever, LLM providers, prompt
// templates, output parsers, and Query Planner together behind one
// entry point.
type Engine struct {
	cfg Config

	rdb   *redis.Client
	store *store.Store

	chatLLM  llm.Provider
	embedLLM llm.Provider

	loader    parser.Loader
	retriever *retrieve.Retriever
	planner   *plan.Planner
}

// New builds an Engine from cfg: connects to the key-value store,
// constructs the chat and embedding providers, and wires the Query
// Planner's channel/fusion/decompose/integrate runners against them.
func New(cfg Config) (*Engine, error) {
	opts, err := redis.ParseURL(cfg.StoreURL)
	if err != nil {
		return nil, fmt.Errorf("docreason: parsing store_url: %w", err)
	}
	rdb := redis.NewClient(opts)
	st := store.New(rdb, cfg.storeTimeout())

	chatLLM, err := llm.NewProvider(cfg.Chat)
	if err != nil {
		return nil, fmt.Errorf("docreason: creating chat provider: %w", err)
	}
	embedLLM, err := llm.NewProvider(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("docreason: creating embedding provider: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		rdb:       rdb,
		store:     st,
		chatLLM:   chatLLM,
		embedLLM:  embedLLM,
		loader:    &parser.PDFLoader{},
		retriever: retrieve.New(st, embedLLM),
	}
	e.planner = plan.New(map[string]plan.ChannelRunner{
		"table": e.channelRunner("table"),
		"text":  e.channelRunner("text"),
		"json":  e.channelRunner("json"),
	}, e.fusionRunner, e.decomposeRunner, e.integrateRunner)

	return e, nil
}

// Close releases the store connection.
func (e *Engine) Close() error {
	return e.rdb.Close()
}

// Health reports whether the key-value store is reachable.
func (e *Engine) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// --- document lifecycle ---

// UploadResult reports a freshly-built snapshot's stats.
type UploadResult struct {
	DocID       string `json:"doc_id"`
	FileName    string `json:"file_name"`
	NumPages    int    `json:"num_pages"`
	TotalNodes  int    `json:"total_nodes"`
	ChildNodes  int    `json:"child_nodes"`
	ParentNodes int    `json:"parent_nodes"`
}

// UploadDocument parses the PDF at doc_base_dir/file_name, builds its
// hierarchical node index, embeds every child node, and persists the
// resulting snapshot under doc_id — replacing any prior snapshot for
// that id atomically from a reader's perspective.
func (e *Engine) UploadDocument(ctx context.Context, docID, fileName string, chunkConfig *index.ChunkConfig) (*UploadResult, error) {
	if docID == "" {
		return nil, fmt.Errorf("docreason: doc_id is required: %w", ErrValidation)
	}
	if fileName == "" {
		return nil, fmt.Errorf("docreason: file_name is required: %w", ErrValidation)
	}

	cfg := e.cfg.DefaultChunkConfig
	if chunkConfig != nil {
		cfg = *chunkConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	path := filepath.Join(e.cfg.DocBaseDir, fileName)
	slog.Info("upload: loading pdf", "doc_id", docID, "file_name", fileName)
	doc, err := e.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	nodes, err := chunker.Build(doc, cfg)
	if err != nil {
		return nil, err
	}

	var childTexts []string
	var childIdx []int
	for i := range nodes {
		if nodes[i].Kind == index.KindChild {
			childTexts = append(childTexts, nodes[i].Text)
			childIdx = append(childIdx, i)
		}
	}
	if len(childTexts) > 0 {
		slog.Info("upload: embedding children", "doc_id", docID, "children", len(childTexts))
		vecs, err := e.embedLLM.Embed(ctx, childTexts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
		}
		if len(vecs) != len(childTexts) {
			return nil, fmt.Errorf("docreason: embedding service returned %d vectors for %d texts: %w", len(vecs), len(childTexts), ErrEmbeddingFailure)
		}
		for j, i := range childIdx {
			nodes[i].Embedding = vecs[j]
		}
	}

	var parentNodes, childNodes int
	for _, n := range nodes {
		if n.Kind == index.KindParent {
			parentNodes++
		} else {
			childNodes++
		}
	}

	now := time.Now()
	meta := index.SnapshotMeta{
		DocID:       docID,
		FileName:    fileName,
		NumPages:    len(doc.Pages),
		TotalNodes:  len(nodes),
		ChildNodes:  childNodes,
		ParentNodes: parentNodes,
		CreatedAt:   now,
		UpdatedAt:   now,
		ChunkConfig: cfg,
	}
	snap := index.Snapshot{Version: index.CurrentVersion, Meta: meta, Nodes: nodes}

	if err := e.store.Put(ctx, docID, snap, e.cfg.ttl()); err != nil {
		return nil, err
	}
	e.retriever.Invalidate(docID)

	slog.Info("upload: document ready", "doc_id", docID, "total_nodes", meta.TotalNodes, "child_nodes", meta.ChildNodes)
	return &UploadResult{
		DocID:       docID,
		FileName:    fileName,
		NumPages:    meta.NumPages,
		TotalNodes:  meta.TotalNodes,
		ChildNodes:  meta.ChildNodes,
		ParentNodes: meta.ParentNodes,
	}, nil
}

// ListDocuments enumerates every stored document with its metadata.
func (e *Engine) ListDocuments(ctx context.Context) ([]store.DocumentInfo, error) {
	return e.store.List(ctx)
}

// DocumentExists reports whether doc_id has a stored snapshot.
func (e *Engine) DocumentExists(ctx context.Context, docID string) (bool, error) {
	return e.store.Exists(ctx, docID)
}

// DeleteDocument removes doc_id's snapshot, idempotently.
func (e *Engine) DeleteDocument(ctx context.Context, docID string) (bool, error) {
	existed, err := e.store.Delete(ctx, docID)
	if err != nil {
		return false, err
	}
	e.retriever.Invalidate(docID)
	return existed, nil
}

// --- shared helpers ---

// QueryResult is the common shape for operations whose parser's only
// job is exposing the raw answer alongside its grounding references.
type QueryResult struct {
	Answer           string                   `json:"answer"`
	Confidence       float64                  `json:"confidence"`
	SourceReferences []index.SourceReference  `json:"source_references"`
}

// IssuesResult additionally reports which reference numbers the answer
// actually cites, for operations whose C8 parser is citation extraction.
type IssuesResult struct {
	Answer           string                  `json:"answer"`
	Confidence       float64                 `json:"confidence"`
	SourceReferences []index.SourceReference `json:"source_references"`
	CitedReferences  []int                   `json:"cited_references"`
}

func validateBound(name string, v, min, max int) error {
	if v < min || v > max {
		return fmt.Errorf("docreason: %s must be in [%d, %d], got %d: %w", name, min, max, v, ErrValidation)
	}
	return nil
}

func validateTopK(topK, min, max int) error {
	if topK < min || topK > max {
		return fmt.Errorf("docreason: top_k must be in [%d, %d], got %d: %w", min, max, topK, ErrValidation)
	}
	return nil
}

func scoresOf(results []retrieve.Result) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Score
	}
	return out
}

// retrieveContext loads the top-k nodes for (docID, query) and renders
// them into a numbered context block and matching source references.
func (e *Engine) retrieveContext(ctx context.Context, docID, query string, topK int) (string, []index.SourceReference, []retrieve.Result, error) {
	results, err := e.retriever.Retrieve(ctx, docID, query, topK)
	if err != nil {
		return "", nil, nil, err
	}
	ctxBlock, refs := prompt.AssembleContext(results)
	return ctxBlock, refs, results, nil
}

// chat sends messages to the configured generator under cfg's model and
// temperature.
func (e *Engine) chat(ctx context.Context, messages []llm.Message) (string, error) {
	resp, err := e.chatLLM.Chat(ctx, llm.ChatRequest{
		Model:       e.cfg.Chat.Model,
		Messages:    messages,
		Temperature: e.cfg.LLMTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailure, err)
	}
	return resp.Content, nil
}

// --- Summary ---

// Summary generates a compact summary bounded to max_length characters.
func (e *Engine) Summary(ctx context.Context, docID string, maxLength, topK int) (*QueryResult, error) {
	if err := validateBound("max_length", maxLength, minSummaryLength, maxSummaryLength); err != nil {
		return nil, err
	}
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	ctxBlock, refs, results, err := e.retrieveContext(ctx, docID, "문서 요약", topK)
	if err != nil {
		return nil, err
	}
	text, err := e.chat(ctx, prompt.Summary(ctxBlock, maxLength))
	if err != nil {
		return nil, err
	}
	return &QueryResult{Answer: text, Confidence: index.ConfidenceScore(scoresOf(results)), SourceReferences: refs}, nil
}

// SummaryStream is Summary's streaming counterpart, terminated per
// §4.10 by a final {text:"", done:true} frame (the provider's
// responsibility to emit).
func (e *Engine) SummaryStream(ctx context.Context, docID string, maxLength, topK int) (<-chan llm.StreamChunk, error) {
	if err := validateBound("max_length", maxLength, minSummaryLength, maxSummaryLength); err != nil {
		return nil, err
	}
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	sp, ok := e.chatLLM.(llm.StreamingProvider)
	if !ok {
		return nil, fmt.Errorf("docreason: configured chat provider does not support streaming: %w", ErrGenerationFailure)
	}
	ctxBlock, _, _, err := e.retrieveContext(ctx, docID, "문서 요약", topK)
	if err != nil {
		return nil, err
	}
	return sp.ChatStream(ctx, llm.ChatRequest{
		Model:       e.cfg.Chat.Model,
		Messages:    prompt.Summary(ctxBlock, maxLength),
		Temperature: e.cfg.LLMTemperature,
	})
}

// --- Free Q&A ---

// FreeQA answers query grounded on docID's top-k retrieved nodes.
func (e *Engine) FreeQA(ctx context.Context, docID, query string, topK int) (*QueryResult, error) {
	if query == "" {
		return nil, fmt.Errorf("docreason: query is required: %w", ErrValidation)
	}
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	ctxBlock, refs, results, err := e.retrieveContext(ctx, docID, query, topK)
	if err != nil {
		return nil, err
	}
	text, err := e.chat(ctx, prompt.FreeQA(ctxBlock, query))
	if err != nil {
		return nil, err
	}
	return &QueryResult{Answer: text, Confidence: index.ConfidenceScore(scoresOf(results)), SourceReferences: refs}, nil
}

// FreeQAStream is FreeQA's streaming counterpart.
func (e *Engine) FreeQAStream(ctx context.Context, docID, query string, topK int) (<-chan llm.StreamChunk, error) {
	if query == "" {
		return nil, fmt.Errorf("docreason: query is required: %w", ErrValidation)
	}
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	sp, ok := e.chatLLM.(llm.StreamingProvider)
	if !ok {
		return nil, fmt.Errorf("docreason: configured chat provider does not support streaming: %w", ErrGenerationFailure)
	}
	ctxBlock, _, _, err := e.retrieveContext(ctx, docID, query, topK)
	if err != nil {
		return nil, err
	}
	return sp.ChatStream(ctx, llm.ChatRequest{
		Model:       e.cfg.Chat.Model,
		Messages:    prompt.FreeQA(ctxBlock, query),
		Temperature: e.cfg.LLMTemperature,
	})
}

// --- Extract Issues / Reason Analysis / Clause Search / Table Comparison ---
// (share the citation-extraction parser, so share IssuesResult)

// ExtractIssues surfaces problems called out in the document, each
// citing the reference it was drawn from.
func (e *Engine) ExtractIssues(ctx context.Context, docID string, topK int) (*IssuesResult, error) {
	if err := validateTopK(topK, minIssuesTopK, maxOpTopK); err != nil {
		return nil, err
	}
	ctxBlock, refs, results, err := e.retrieveContext(ctx, docID, "문제점 이슈", topK)
	if err != nil {
		return nil, err
	}
	text, err := e.chat(ctx, prompt.ExtractIssues(ctxBlock))
	if err != nil {
		return nil, err
	}
	return &IssuesResult{
		Answer:           text,
		Confidence:       index.ConfidenceScore(scoresOf(results)),
		SourceReferences: refs,
		CitedReferences:  answer.CitedReferenceNumbers(text),
	}, nil
}

// ReasonAnalysis explains the grounds for decision, cited against docID.
func (e *Engine) ReasonAnalysis(ctx context.Context, docID, decision string, topK int) (*IssuesResult, error) {
	if decision == "" {
		return nil, fmt.Errorf("docreason: decision is required: %w", ErrValidation)
	}
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	ctxBlock, refs, results, err := e.retrieveContext(ctx, docID, decision, topK)
	if err != nil {
		return nil, err
	}
	text, err := e.chat(ctx, prompt.ReasonAnalysis(ctxBlock, decision))
	if err != nil {
		return nil, err
	}
	return &IssuesResult{
		Answer:           text,
		Confidence:       index.ConfidenceScore(scoresOf(results)),
		SourceReferences: refs,
		CitedReferences:  answer.CitedReferenceNumbers(text),
	}, nil
}

// ClauseSearch locates and cites clauses related to keyword.
func (e *Engine) ClauseSearch(ctx context.Context, docID, keyword string, topK int) (*IssuesResult, error) {
	if keyword == "" {
		return nil, fmt.Errorf("docreason: keyword is required: %w", ErrValidation)
	}
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	ctxBlock, refs, results, err := e.retrieveContext(ctx, docID, keyword, topK)
	if err != nil {
		return nil, err
	}
	text, err := e.chat(ctx, prompt.ClauseSearch(ctxBlock, keyword))
	if err != nil {
		return nil, err
	}
	return &IssuesResult{
		Answer:           text,
		Confidence:       index.ConfidenceScore(scoresOf(results)),
		SourceReferences: refs,
		CitedReferences:  answer.CitedReferenceNumbers(text),
	}, nil
}

// TableComparison compares table/list items under aspect.
func (e *Engine) TableComparison(ctx context.Context, docID, aspect, tableContext string, topK int) (*IssuesResult, error) {
	if aspect == "" || tableContext == "" {
		return nil, fmt.Errorf("docreason: aspect and context are required: %w", ErrValidation)
	}
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	ctxBlock, refs, results, err := e.retrieveContext(ctx, docID, tableContext, topK)
	if err != nil {
		return nil, err
	}
	text, err := e.chat(ctx, prompt.TableComparison(ctxBlock, aspect, tableContext))
	if err != nil {
		return nil, err
	}
	return &IssuesResult{
		Answer:           text,
		Confidence:       index.ConfidenceScore(scoresOf(results)),
		SourceReferences: refs,
		CitedReferences:  answer.CitedReferenceNumbers(text),
	}, nil
}

// --- Exception Search ---

// ExceptionSearchResult is Exception Search's parsed view: references
// filtered to those containing an exception keyword, per invariant #7.
type ExceptionSearchResult struct {
	Answer             string                     `json:"answer"`
	Confidence         float64                    `json:"confidence"`
	HighlightedSources []answer.HighlightedSource `json:"highlighted_sources"`
}

// ExceptionSearch finds exception/proviso clauses applicable to
// situation, then post-filters the grounding references to those
// containing a canonical exception keyword.
func (e *Engine) ExceptionSearch(ctx context.Context, docID, situation string, topK int) (*ExceptionSearchResult, error) {
	if situation == "" {
		return nil, fmt.Errorf("docreason: situation is required: %w", ErrValidation)
	}
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	ctxBlock, refs, results, err := e.retrieveContext(ctx, docID, situation, topK)
	if err != nil {
		return nil, err
	}
	text, err := e.chat(ctx, prompt.ExceptionSearch(ctxBlock, situation))
	if err != nil {
		return nil, err
	}
	return &ExceptionSearchResult{
		Answer:             text,
		Confidence:         index.ConfidenceScore(scoresOf(results)),
		HighlightedSources: answer.FilterExceptionKeywords(refs, prompt.ExceptionKeywords),
	}, nil
}

// --- Table Importance ---

// TableImportanceResult is Table Importance's parsed ranking view.
type TableImportanceResult struct {
	Answer           string                   `json:"answer"`
	Confidence       float64                  `json:"confidence"`
	Rankings         []answer.RankedItem      `json:"rankings"`
	SourceReferences []index.SourceReference  `json:"source_references"`
}

// TableImportance ranks table/list rows under tableContext by
// importance, keeping the top topN.
func (e *Engine) TableImportance(ctx context.Context, docID, tableContext string, topN, topK int) (*TableImportanceResult, error) {
	if tableContext == "" {
		return nil, fmt.Errorf("docreason: context is required: %w", ErrValidation)
	}
	if err := validateBound("top_n", topN, 1, 50); err != nil {
		return nil, err
	}
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	ctxBlock, refs, results, err := e.retrieveContext(ctx, docID, tableContext, topK)
	if err != nil {
		return nil, err
	}
	text, err := e.chat(ctx, prompt.TableImportance(ctxBlock, tableContext, topN))
	if err != nil {
		return nil, err
	}
	return &TableImportanceResult{
		Answer:           text,
		Confidence:       index.ConfidenceScore(scoresOf(results)),
		Rankings:         answer.ParseTableImportance(text),
		SourceReferences: refs,
	}, nil
}

// --- Report Summary / Checklist / Ambiguity / FAQ ---

// ReportSummaryResult is Report Summary's parsed title/summary/points/
// recommendations view.
type ReportSummaryResult struct {
	Report           answer.ReportSummary     `json:"report"`
	Confidence       float64                  `json:"confidence"`
	SourceReferences []index.SourceReference  `json:"source_references"`
}

// ReportSummary produces a structured report summary bounded to
// max_length characters.
func (e *Engine) ReportSummary(ctx context.Context, docID string, maxLength, topK int) (*ReportSummaryResult, error) {
	if err := validateBound("max_length", maxLength, minSummaryLength, maxSummaryLength); err != nil {
		return nil, err
	}
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	ctxBlock, refs, results, err := e.retrieveContext(ctx, docID, "보고서 요약", topK)
	if err != nil {
		return nil, err
	}
	text, err := e.chat(ctx, prompt.ReportSummary(ctxBlock, maxLength))
	if err != nil {
		return nil, err
	}
	return &ReportSummaryResult{
		Report:           answer.ParseReportSummary(text),
		Confidence:       index.ConfidenceScore(scoresOf(results)),
		SourceReferences: refs,
	}, nil
}

// ChecklistResult is Checklist's parsed title/items view.
type ChecklistResult struct {
	Checklist        answer.Checklist         `json:"checklist"`
	Confidence       float64                  `json:"confidence"`
	SourceReferences []index.SourceReference  `json:"source_references"`
}

// Checklist builds a procedure/compliance/review checklist.
func (e *Engine) Checklist(ctx context.Context, docID, kind string, topK int) (*ChecklistResult, error) {
	if !prompt.ValidChecklistKind(kind) {
		return nil, fmt.Errorf("docreason: kind must be one of procedure/compliance/review, got %q: %w", kind, ErrValidation)
	}
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	ctxBlock, refs, results, err := e.retrieveContext(ctx, docID, "체크리스트", topK)
	if err != nil {
		return nil, err
	}
	text, err := e.chat(ctx, prompt.Checklist(ctxBlock, prompt.ChecklistKind(kind)))
	if err != nil {
		return nil, err
	}
	return &ChecklistResult{
		Checklist:        answer.ParseChecklist(text),
		Confidence:       index.ConfidenceScore(scoresOf(results)),
		SourceReferences: refs,
	}, nil
}

// AmbiguityResult is Ambiguity's parsed expression list.
type AmbiguityResult struct {
	Expressions      []answer.AmbiguousExpression `json:"expressions"`
	Confidence       float64                       `json:"confidence"`
	SourceReferences []index.SourceReference       `json:"source_references"`
}

// Ambiguity flags expressions open to more than one reading.
func (e *Engine) Ambiguity(ctx context.Context, docID string, topK int) (*AmbiguityResult, error) {
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	ctxBlock, refs, results, err := e.retrieveContext(ctx, docID, "모호한 표현", topK)
	if err != nil {
		return nil, err
	}
	text, err := e.chat(ctx, prompt.Ambiguity(ctxBlock))
	if err != nil {
		return nil, err
	}
	return &AmbiguityResult{
		Expressions:      answer.ParseAmbiguity(text),
		Confidence:       index.ConfidenceScore(scoresOf(results)),
		SourceReferences: refs,
	}, nil
}

// FAQResult is FAQ's parsed question/answer pair list.
type FAQResult struct {
	Pairs            []answer.FAQPair         `json:"pairs"`
	Confidence       float64                  `json:"confidence"`
	SourceReferences []index.SourceReference  `json:"source_references"`
}

// FAQ synthesizes numQuestions frequently-asked question/answer pairs.
func (e *Engine) FAQ(ctx context.Context, docID string, numQuestions, topK int) (*FAQResult, error) {
	if err := validateBound("num_questions", numQuestions, 1, 20); err != nil {
		return nil, err
	}
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	ctxBlock, refs, results, err := e.retrieveContext(ctx, docID, "자주 묻는 질문", topK)
	if err != nil {
		return nil, err
	}
	text, err := e.chat(ctx, prompt.FAQ(ctxBlock, numQuestions))
	if err != nil {
		return nil, err
	}
	return &FAQResult{
		Pairs:            answer.ParseFAQ(text),
		Confidence:       index.ConfidenceScore(scoresOf(results)),
		SourceReferences: refs,
	}, nil
}

// --- Query Decompose / Multi-retrieval / Advanced ---

// DecomposeResult is Query Decompose's parsed subquery list.
type DecomposeResult struct {
	Decomposition answer.Decomposition `json:"decomposition"`
}

// QueryDecompose splits query into independently-answerable subqueries.
func (e *Engine) QueryDecompose(ctx context.Context, docID, query string) (*DecomposeResult, error) {
	if query == "" {
		return nil, fmt.Errorf("docreason: query is required: %w", ErrValidation)
	}
	text, err := e.chat(ctx, prompt.QueryDecompose(query))
	if err != nil {
		return nil, err
	}
	return &DecomposeResult{Decomposition: answer.ParseDecomposition(text)}, nil
}

// MultiRetrieval runs the enabled channels concurrently against docID
// and fuses whichever channels produced answers.
func (e *Engine) MultiRetrieval(ctx context.Context, docID, query string, flags plan.ChannelFlags, topK int) (*plan.MultiRetrievalResult, error) {
	if query == "" {
		return nil, fmt.Errorf("docreason: query is required: %w", ErrValidation)
	}
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	return e.planner.MultiRetrieval(ctx, docID, query, flags, topK)
}

// AdvancedQuery decomposes query, runs Multi-retrieval per subquery,
// and integrates the ordered results into one final answer.
func (e *Engine) AdvancedQuery(ctx context.Context, docID, query string, flags plan.ChannelFlags, topK int) (*plan.AdvancedResult, error) {
	if query == "" {
		return nil, fmt.Errorf("docreason: query is required: %w", ErrValidation)
	}
	if err := validateTopK(topK, minOpTopK, maxOpTopK); err != nil {
		return nil, err
	}
	return e.planner.Advanced(ctx, docID, query, flags, topK)
}

// --- Query Planner runner wiring ---

// channelRunner returns a plan.ChannelRunner for one retrieval channel
// (table/text/json): retrieve, assemble context, prompt, generate.
func (e *Engine) channelRunner(kind string) plan.ChannelRunner {
	return func(ctx context.Context, docID, query string, topK int) (string, []index.SourceReference, error) {
		ctxBlock, refs, _, err := e.retrieveContext(ctx, docID, query, topK)
		if err != nil {
			return "", nil, err
		}
		text, err := e.chat(ctx, prompt.Channel(kind, ctxBlock, query))
		if err != nil {
			return "", nil, err
		}
		return text, refs, nil
	}
}

func (e *Engine) fusionRunner(ctx context.Context, originalQuery string, channelAnswers map[string]*string) (string, error) {
	return e.chat(ctx, prompt.Fusion(originalQuery, channelAnswers))
}

func (e *Engine) decomposeRunner(ctx context.Context, query string) ([]string, error) {
	text, err := e.chat(ctx, prompt.QueryDecompose(query))
	if err != nil {
		return nil, err
	}
	return answer.ParseDecomposition(text).Subqueries, nil
}

func (e *Engine) integrateRunner(ctx context.Context, originalQuery string, results []plan.SubQueryResult) (string, error) {
	inputs := make([]prompt.IntegrationInput, len(results))
	for i, r := range results {
		fused := ""
		if r.Result != nil {
			fused = r.Result.FusedAnswer
		}
		inputs[i] = prompt.IntegrationInput{Subquery: r.Subquery, Answer: fused}
	}
	return e.chat(ctx, prompt.Integrate(originalQuery, inputs))
}
