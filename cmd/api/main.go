// Package main implements the Minute search API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MinuteMind/minute-mvp/engine/domain"
	"github.com/MinuteMind/minute-mvp/engine/ingest"
	"github.com/MinuteMind/minute-mvp/engine/rag"
	"github.com/MinuteMind/minute-mvp/engine/rerank"
	"github.com/MinuteMind/minute-mvp/engine/searchtool"
	"github.com/MinuteMind/minute-mvp/engine/semantic"
	"github.com/MinuteMind/minute-mvp/pkg/embed"
	"github.com/MinuteMind/minute-mvp/pkg/metrics"
	"github.com/MinuteMind/minute-mvp/pkg/mid"
	"github.com/MinuteMind/minute-mvp/pkg/natsutil"
	"github.com/MinuteMind/minute-mvp/pkg/ollama"
	"github.com/nats-io/nats.go"
)

// Config holds all environment-based configuration.
type Config struct {
	Port           string
	QdrantURL      string
	Collection     string
	NATSURL        string
	EmbedProvider  string
	OpenAIKey      string
	EmbedModel     string
	EmbedDims      int
	OllamaURL      string
	RerankEndpoint string
	RerankKey      string
	CORSOrigin     string
}

func loadConfig() Config {
	dims, _ := strconv.Atoi(envOr("EMBED_DIMS", "1536"))
	return Config{
		Port:           envOr("PORT", "8080"),
		QdrantURL:      envOr("QDRANT_URL", "localhost:6334"),
		Collection:     envOr("QDRANT_COLLECTION", "minute"),
		NATSURL:        envOr("NATS_URL", nats.DefaultURL),
		EmbedProvider:  envOr("EMBED_PROVIDER", "openai"),
		OpenAIKey:      envOr("OPENAI_API_KEY", ""),
		EmbedModel:     envOr("EMBED_MODEL", ""),
		EmbedDims:      dims,
		OllamaURL:      envOr("OLLAMA_URL", "http://localhost:11434"),
		RerankEndpoint: envOr("RERANK_ENDPOINT", ""),
		RerankKey:      envOr("RERANK_API_KEY", ""),
		CORSOrigin:     envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func newEmbedder(cfg Config) embed.Provider {
	if cfg.EmbedProvider == "ollama" {
		return ollama.NewEmbedClient(cfg.OllamaURL, envOr("OLLAMA_MODEL", "nomic-embed-text"), cfg.EmbedDims)
	}
	return embed.NewOpenAI(cfg.OpenAIKey, cfg.EmbedModel, cfg.EmbedDims)
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	// --- Connect to NATS (index request publishing) ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	// --- Build RAG service ---
	reg := metrics.New()
	embedder := newEmbedder(cfg)
	reranker := rerank.New(rerank.Options{
		Endpoint: cfg.RerankEndpoint,
		APIKey:   cfg.RerankKey,
	}, logger)

	ragSvc := rag.New(vectorStore, embedder, nil, reranker, logger, reg)
	tool := searchtool.New(ragSvc, logger)

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/search", handleSearch(tool, logger))
	mux.HandleFunc("POST /api/index", handleIndex(nc, logger))
	mux.HandleFunc("GET /api/stats", handleStats(ragSvc, logger))
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("minute-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleSearch(tool *searchtool.Tool, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchtool.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := tool.Execute(r.Context(), req)
		if err != nil {
			writeKindError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleIndex(nc *nats.Conn, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingest.IndexRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := req.Tenant.Validate(); err != nil {
			writeKindError(w, err, logger)
			return
		}
		if _, err := domain.ParseContentType(string(req.ContentType)); err != nil {
			writeKindError(w, err, logger)
			return
		}

		if err := natsutil.Publish(r.Context(), nc, ingest.IndexSubject, req); err != nil {
			logger.Error("index publish failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
	}
}

func handleStats(ragSvc *rag.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := domain.Tenant{
			UserID:         r.URL.Query().Get("userId"),
			OrganizationID: r.URL.Query().Get("organizationId"),
		}
		stats, err := ragSvc.Stats(r.Context(), tenant)
		if err != nil {
			writeKindError(w, err, logger)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

// writeKindError maps taxonomy kinds to HTTP statuses with safe messages.
func writeKindError(w http.ResponseWriter, err error, logger *slog.Logger) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.BadRequest:
		status = http.StatusBadRequest
	case domain.NotFound:
		status = http.StatusNotFound
	default:
		logger.Error("internal error", "err", err)
	}
	writeError(w, status, domain.SafeMessage(err))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
