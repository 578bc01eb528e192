package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brimlabs/docreason"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := docreason.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			f.Close()
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
		f.Close()
	}

	// Override from environment variables.
	if v := os.Getenv("DOCREASON_STORE_URL"); v != "" {
		cfg.StoreURL = v
	}
	if v := os.Getenv("DOCREASON_DOC_BASE_DIR"); v != "" {
		cfg.DocBaseDir = v
	}
	if v := os.Getenv("DOCREASON_CHAT_BASE_URL"); v != "" {
		cfg.Chat.BaseURL = v
	}
	if v := os.Getenv("DOCREASON_EMBED_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("DOCREASON_CHAT_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}
	if v := os.Getenv("DOCREASON_EMBED_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("DOCREASON_CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if v := os.Getenv("DOCREASON_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("DOCREASON_CHAT_PROVIDER"); v != "" {
		cfg.Chat.Provider = v
	}
	if v := os.Getenv("DOCREASON_EMBED_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}

	// Fallback: well-known provider env vars for API keys.
	if cfg.Chat.APIKey == "" && cfg.Chat.Provider == "openai" {
		cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	apiKey := os.Getenv("DOCREASON_API_KEY")
	corsOrigins := os.Getenv("DOCREASON_CORS_ORIGINS")

	engine, err := docreason.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	h := newHandler(engine)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /documents/upload", h.handleUploadDocument)
	mux.HandleFunc("GET /documents/list", h.handleListDocuments)
	mux.HandleFunc("GET /documents/{doc_id}/exists", h.handleDocumentExists)
	mux.HandleFunc("DELETE /documents/{doc_id}", h.handleDeleteDocument)
	mux.HandleFunc("POST /summary", h.handleSummary)
	mux.HandleFunc("POST /summary-streaming", h.handleSummaryStreaming)
	mux.HandleFunc("POST /query", h.handleQuery)
	mux.HandleFunc("POST /extract-issues", h.handleExtractIssues)
	mux.HandleFunc("POST /analyze-reason", h.handleReasonAnalysis)
	mux.HandleFunc("POST /find-exceptions", h.handleExceptionSearch)
	mux.HandleFunc("POST /search-clause", h.handleClauseSearch)
	mux.HandleFunc("POST /analyze-table-importance", h.handleTableImportance)
	mux.HandleFunc("POST /compare-table-criteria", h.handleTableComparison)
	mux.HandleFunc("POST /generate-report-summary", h.handleReportSummary)
	mux.HandleFunc("POST /generate-checklist", h.handleChecklist)
	mux.HandleFunc("POST /analyze-ambiguous-text", h.handleAmbiguity)
	mux.HandleFunc("POST /generate-faq", h.handleFAQ)
	mux.HandleFunc("POST /decompose-query", h.handleQueryDecompose)
	mux.HandleFunc("POST /multi-retrieval", h.handleMultiRetrieval)
	mux.HandleFunc("POST /advanced-query", h.handleAdvancedQuery)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> auth -> request-id -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming endpoints hold the connection open
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
