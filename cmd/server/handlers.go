package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/brimlabs/docreason"
	"github.com/brimlabs/docreason/envelope"
	"github.com/brimlabs/docreason/index"
	"github.com/brimlabs/docreason/llm"
	"github.com/brimlabs/docreason/plan"
)

type handler struct {
	engine *docreason.Engine
}

func newHandler(e *docreason.Engine) *handler {
	return &handler{engine: e}
}

// respond classifies err (if any) via the root package's Kind/
// StatusCode, and writes the resulting envelope.
func respond(w http.ResponseWriter, start time.Time, successStatus int, data any, err error) {
	elapsed := time.Since(start)
	if err != nil {
		env := envelope.Failure(err, docreason.Kind(err), docreason.StatusCode(err), elapsed)
		writeEnvelope(w, env.StatusCode(), env)
		return
	}
	writeEnvelope(w, successStatus, envelope.Success(data, "", elapsed, nil))
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

// writeJSON is used by middleware (auth rejection, panic recovery) where
// no Engine error exists to classify through the envelope taxonomy.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeEnvelope(w, http.StatusBadRequest, envelope.Failure(err, "Validation", http.StatusBadRequest, 0))
		return false
	}
	return true
}

// streamSSE drains ch, writing one "data: {...}\n\n" frame per chunk,
// and a terminal {text:"", done:true[, error]} frame on failure or
// channel close, per §4.10/§7.
func streamSSE(w http.ResponseWriter, ch <-chan llm.StreamChunk, setupErr error) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	writeFrame := func(f envelope.StreamFrame) {
		b, _ := json.Marshal(f)
		w.Write([]byte("data: "))
		w.Write(b)
		w.Write([]byte("\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}

	if setupErr != nil {
		writeFrame(envelope.StreamFrame{Done: true, Error: docreason.Kind(setupErr)})
		return
	}
	for chunk := range ch {
		if chunk.Err != nil {
			writeFrame(envelope.StreamFrame{Done: true, Error: docreason.Kind(chunk.Err)})
			return
		}
		writeFrame(envelope.StreamFrame{Text: chunk.Text, Done: chunk.Done})
		if chunk.Done {
			return
		}
	}
	writeFrame(envelope.StreamFrame{Done: true})
}

// POST /documents/upload
func (h *handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID       string             `json:"doc_id"`
		FileName    string             `json:"file_name"`
		ChunkConfig *index.ChunkConfig `json:"chunk_config,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	result, err := h.engine.UploadDocument(ctx, req.DocID, req.FileName, req.ChunkConfig)
	if err != nil {
		slog.Error("upload document", "doc_id", req.DocID, "error", err)
	}
	respond(w, start, http.StatusCreated, result, err)
}

// GET /documents/list
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	docs, err := h.engine.ListDocuments(r.Context())
	respond(w, start, http.StatusOK, docs, err)
}

// GET /documents/{doc_id}/exists
func (h *handler) handleDocumentExists(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	exists, err := h.engine.DocumentExists(r.Context(), r.PathValue("doc_id"))
	respond(w, start, http.StatusOK, map[string]bool{"exists": exists}, err)
}

// DELETE /documents/{doc_id}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	docID := r.PathValue("doc_id")
	existed, err := h.engine.DeleteDocument(r.Context(), docID)
	if err == nil && !existed {
		err = docreason.ErrNotFound
	}
	respond(w, start, http.StatusOK, map[string]string{"doc_id": docID}, err)
}

// POST /summary
func (h *handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID     string `json:"doc_id"`
		MaxLength int    `json:"max_length"`
		TopK      int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MaxLength == 0 {
		req.MaxLength = 200
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	result, err := h.engine.Summary(r.Context(), req.DocID, req.MaxLength, req.TopK)
	respond(w, start, http.StatusOK, result, err)
}

// POST /summary-streaming
func (h *handler) handleSummaryStreaming(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocID     string `json:"doc_id"`
		MaxLength int    `json:"max_length"`
		TopK      int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MaxLength == 0 {
		req.MaxLength = 200
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	ch, err := h.engine.SummaryStream(r.Context(), req.DocID, req.MaxLength, req.TopK)
	streamSSE(w, ch, err)
}

// POST /query
func (h *handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID     string `json:"doc_id"`
		Query     string `json:"query"`
		TopK      int    `json:"top_k"`
		Streaming bool   `json:"streaming"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	if req.Streaming {
		ch, err := h.engine.FreeQAStream(r.Context(), req.DocID, req.Query, req.TopK)
		streamSSE(w, ch, err)
		return
	}
	result, err := h.engine.FreeQA(r.Context(), req.DocID, req.Query, req.TopK)
	respond(w, start, http.StatusOK, result, err)
}

// POST /extract-issues
func (h *handler) handleExtractIssues(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID string `json:"doc_id"`
		TopK  int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopK == 0 {
		req.TopK = 8
	}
	result, err := h.engine.ExtractIssues(r.Context(), req.DocID, req.TopK)
	respond(w, start, http.StatusOK, result, err)
}

// POST /analyze-reason
func (h *handler) handleReasonAnalysis(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID    string `json:"doc_id"`
		Decision string `json:"decision"`
		TopK     int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	result, err := h.engine.ReasonAnalysis(r.Context(), req.DocID, req.Decision, req.TopK)
	respond(w, start, http.StatusOK, result, err)
}

// POST /find-exceptions
func (h *handler) handleExceptionSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID     string `json:"doc_id"`
		Situation string `json:"situation"`
		TopK      int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	result, err := h.engine.ExceptionSearch(r.Context(), req.DocID, req.Situation, req.TopK)
	respond(w, start, http.StatusOK, result, err)
}

// POST /search-clause
func (h *handler) handleClauseSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID   string `json:"doc_id"`
		Keyword string `json:"keyword"`
		TopK    int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	result, err := h.engine.ClauseSearch(r.Context(), req.DocID, req.Keyword, req.TopK)
	respond(w, start, http.StatusOK, result, err)
}

// POST /analyze-table-importance
func (h *handler) handleTableImportance(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID   string `json:"doc_id"`
		Context string `json:"context"`
		TopN    int    `json:"top_n"`
		TopK    int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopN == 0 {
		req.TopN = 5
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	result, err := h.engine.TableImportance(r.Context(), req.DocID, req.Context, req.TopN, req.TopK)
	respond(w, start, http.StatusOK, result, err)
}

// POST /compare-table-criteria
func (h *handler) handleTableComparison(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID   string `json:"doc_id"`
		Aspect  string `json:"aspect"`
		Context string `json:"context"`
		TopK    int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	result, err := h.engine.TableComparison(r.Context(), req.DocID, req.Aspect, req.Context, req.TopK)
	respond(w, start, http.StatusOK, result, err)
}

// POST /generate-report-summary
func (h *handler) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID     string `json:"doc_id"`
		MaxLength int    `json:"max_length"`
		TopK      int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MaxLength == 0 {
		req.MaxLength = 200
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	result, err := h.engine.ReportSummary(r.Context(), req.DocID, req.MaxLength, req.TopK)
	respond(w, start, http.StatusOK, result, err)
}

// POST /generate-checklist
func (h *handler) handleChecklist(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID string `json:"doc_id"`
		Kind  string `json:"kind"`
		TopK  int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	result, err := h.engine.Checklist(r.Context(), req.DocID, req.Kind, req.TopK)
	respond(w, start, http.StatusOK, result, err)
}

// POST /analyze-ambiguous-text
func (h *handler) handleAmbiguity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID string `json:"doc_id"`
		TopK  int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	result, err := h.engine.Ambiguity(r.Context(), req.DocID, req.TopK)
	respond(w, start, http.StatusOK, result, err)
}

// POST /generate-faq
func (h *handler) handleFAQ(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID        string `json:"doc_id"`
		NumQuestions int    `json:"num_questions"`
		TopK         int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.NumQuestions == 0 {
		req.NumQuestions = 5
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	result, err := h.engine.FAQ(r.Context(), req.DocID, req.NumQuestions, req.TopK)
	respond(w, start, http.StatusOK, result, err)
}

// POST /decompose-query
func (h *handler) handleQueryDecompose(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID string `json:"doc_id"`
		Query string `json:"query"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.engine.QueryDecompose(r.Context(), req.DocID, req.Query)
	respond(w, start, http.StatusOK, result, err)
}

// POST /multi-retrieval
func (h *handler) handleMultiRetrieval(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID    string `json:"doc_id"`
		Query    string `json:"query"`
		UseTable bool   `json:"use_table"`
		UseText  bool   `json:"use_text"`
		UseJSON  bool   `json:"use_json"`
		TopK     int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	flags := plan.ChannelFlags{UseTable: req.UseTable, UseText: req.UseText, UseJSON: req.UseJSON}
	result, err := h.engine.MultiRetrieval(r.Context(), req.DocID, req.Query, flags, req.TopK)
	respond(w, start, http.StatusOK, result, err)
}

// POST /advanced-query
func (h *handler) handleAdvancedQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		DocID    string `json:"doc_id"`
		Query    string `json:"query"`
		UseTable bool   `json:"use_table"`
		UseText  bool   `json:"use_text"`
		UseJSON  bool   `json:"use_json"`
		TopK     int    `json:"top_k"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	flags := plan.ChannelFlags{UseTable: req.UseTable, UseText: req.UseText, UseJSON: req.UseJSON}
	result, err := h.engine.AdvancedQuery(r.Context(), req.DocID, req.Query, flags, req.TopK)
	respond(w, start, http.StatusOK, result, err)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	err := h.engine.Health(r.Context())
	respond(w, start, http.StatusOK, map[string]string{"status": "ok"}, err)
}
