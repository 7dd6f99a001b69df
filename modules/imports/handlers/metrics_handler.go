package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iota-uz/caseflow/modules/imports/domain/importjob"
	"github.com/iota-uz/caseflow/pkg/application"
)

var (
	importsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caseflow_imports_created_total",
		Help: "Import jobs registered.",
	})
	importsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caseflow_imports_finished_total",
		Help: "Import jobs that reached a terminal status.",
	}, []string{"status"})
	chunksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caseflow_import_chunks_processed_total",
		Help: "Chunks processed, replays excluded.",
	})
	rowsImported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caseflow_import_rows_total",
		Help: "Rows processed by outcome.",
	}, []string{"outcome"})
)

// MetricsHandler feeds import lifecycle events into Prometheus counters.
type MetricsHandler struct{}

func RegisterMetricsHandler(app application.Application) *MetricsHandler {
	h := &MetricsHandler{}
	app.EventPublisher().Subscribe(h.onCreated)
	app.EventPublisher().Subscribe(h.onChunkProcessed)
	app.EventPublisher().Subscribe(h.onCompleted)
	return h
}

func (h *MetricsHandler) onCreated(importjob.CreatedEvent) {
	importsCreated.Inc()
}

func (h *MetricsHandler) onChunkProcessed(event importjob.ChunkProcessedEvent) {
	chunksProcessed.Inc()
	rowsImported.WithLabelValues("success").Add(float64(event.Chunk.SuccessCount))
	rowsImported.WithLabelValues("failure").Add(float64(event.Chunk.FailureCount))
}

func (h *MetricsHandler) onCompleted(event importjob.CompletedEvent) {
	importsFinished.WithLabelValues(event.Job.Status).Inc()
}
