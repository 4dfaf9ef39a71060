// Command indexer consumes index requests from NATS and runs them through
// the chunk → embed → upsert pipeline into Qdrant.
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/MinuteMind/minute-mvp/engine/ingest"
	"github.com/MinuteMind/minute-mvp/engine/rag"
	"github.com/MinuteMind/minute-mvp/engine/semantic"
	"github.com/MinuteMind/minute-mvp/pkg/embed"
	"github.com/MinuteMind/minute-mvp/pkg/metrics"
	"github.com/MinuteMind/minute-mvp/pkg/ollama"
	"github.com/nats-io/nats.go"
)

func main() {
	var (
		natsURL     = flag.String("nats", nats.DefaultURL, "NATS server URL")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "minute", "Qdrant collection name")
		provider    = flag.String("provider", "openai", "embedding provider: openai or ollama")
		embedModel  = flag.String("model", "", "embedding model override")
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		metricsPort = flag.Int("metrics-port", 9091, "metrics HTTP port")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	reg := metrics.New()
	reg.ServeAsync(*metricsPort)

	vectorStore, err := semantic.New(*qdrantAddr, *collection)
	if err != nil {
		logger.Error("qdrant connect failed", "err", err)
		os.Exit(1)
	}
	defer vectorStore.Close()

	var embedder embed.Provider
	if *provider == "ollama" {
		model := *embedModel
		if model == "" {
			model = "nomic-embed-text"
		}
		dims, _ := strconv.Atoi(envOr("EMBED_DIMS", "768"))
		embedder = ollama.NewEmbedClient(*ollamaURL, model, dims)
	} else {
		dims, _ := strconv.Atoi(envOr("EMBED_DIMS", "1536"))
		embedder = embed.NewOpenAI(os.Getenv("OPENAI_API_KEY"), *embedModel, dims)
	}

	nc, err := nats.Connect(*natsURL)
	if err != nil {
		logger.Error("nats connect failed", "err", err)
		os.Exit(1)
	}
	defer nc.Close()

	ragSvc := rag.New(vectorStore, embedder, nil, nil, logger, reg)
	indexer := ingest.NewIndexer(ragSvc, logger)

	sub, err := ingest.StartConsumer(nc, ingest.Deps{Indexer: indexer, Logger: logger})
	if err != nil {
		logger.Error("consumer start failed", "err", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	logger.Info("indexer started", "subject", ingest.IndexSubject)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutdown signal received")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
