// Package ingest runs the asynchronous indexing pipeline: index requests
// arrive over NATS, are validated, rendered, chunked, embedded in batches,
// and upserted into the vector store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MinuteMind/minute-mvp/engine/rag"
	"github.com/MinuteMind/minute-mvp/pkg/fn"
	"github.com/nats-io/nats.go"
)

const (
	// IndexSubject is the NATS subject for incoming index requests.
	IndexSubject = "engine.index"
	// DLQSubject is the dead letter queue subject for failed messages.
	DLQSubject = "engine.index.dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
)

// Deps holds the external dependencies for the indexing consumer.
type Deps struct {
	Indexer *Indexer
	Logger  *slog.Logger
}

// Validate checks an IndexRequest before dispatch.
var Validate fn.Stage[IndexRequest, IndexRequest] = func(_ context.Context, req IndexRequest) fn.Result[IndexRequest] {
	if err := req.Tenant.Validate(); err != nil {
		return fn.Err[IndexRequest](err)
	}
	if req.ContentType == "" {
		return fn.Errf[IndexRequest]("ingest: content type is required")
	}
	return fn.Ok(req)
}

// NewIndexStage wraps Indexer.Index as a pipeline stage.
func NewIndexStage(ix *Indexer) fn.Stage[IndexRequest, rag.BatchReport] {
	return func(ctx context.Context, req IndexRequest) fn.Result[rag.BatchReport] {
		return fn.FromPair(ix.Index(ctx, req))
	}
}

// LoggedTap returns a stage that logs entry/exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Info("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Info("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline constructs the full indexing pipeline with all stages wired.
func NewPipeline(deps Deps) fn.Stage[IndexRequest, rag.BatchReport] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	validated := fn.Then(LoggedTap[IndexRequest]("validate", log), Validate)
	indexed := fn.Then(validated, fn.Then(LoggedTap[IndexRequest]("index", log), NewIndexStage(deps.Indexer)))
	return indexed
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Request IndexRequest `json:"request"`
	Error   string       `json:"error"`
	Retries int          `json:"retries"`
}

// StartConsumer subscribes to the index subject and runs requests through
// the pipeline with retry and DLQ support.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(IndexSubject, func(msg *nats.Msg) {
		var req IndexRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		result := pipeline(ctx, req)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			retries++
			log.Error("ingest: pipeline failed",
				"error", pipeErr,
				"content_type", req.ContentType,
				"retry", retries,
			)

			if retries >= MaxRetries {
				dlq := dlqMessage{
					Request: req,
					Error:   pipeErr.Error(),
					Retries: retries,
				}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "error", err)
				}
			} else {
				retryMsg := nats.NewMsg(IndexSubject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
		} else {
			report, _ := result.Unwrap()
			log.Info("ingest: success", "content_type", req.ContentType, "points", report.Succeeded)
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
