package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	boardEventName   = "board.fetch"
	boardEventDomain = "board"
	boardRoute       = "/api/tasks"
)

// boardRequestMetrics captures per-request timings for the board snapshot
// endpoint and emits them once as a span plus a structured log entry.
type boardRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	authDuration   time.Duration
	fetchDuration  time.Duration
	encodeDuration time.Duration
	tasksReturned  int
	errorStage     string
}

func newBoardRequestMetrics(ctx context.Context, logger *log.Logger) (*boardRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer("board-api/api").Start(ctx, boardEventName)
	return &boardRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *boardRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *boardRequestMetrics) ObserveFetch(d time.Duration) {
	if d > 0 {
		m.fetchDuration = d
	}
}

func (m *boardRequestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *boardRequestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finalizes the span and emits one observability event. Call exactly once
// per request.
func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := map[string]any{
		"http.route":           boardRoute,
		"http.status_code":     status,
		"board.tasks_returned": m.tasksReturned,
		"total_ms":             durationToMillis(time.Since(m.start)),
	}
	if m.authDuration > 0 {
		attrs["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.fetchDuration > 0 {
		attrs["fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if m.encodeDuration > 0 {
		attrs["encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		attrs["error_stage"] = m.errorStage
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("http.route", boardRoute),
			attribute.Int("http.status_code", status),
			attribute.Int("board.tasks_returned", m.tasksReturned),
		)
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String("error.stage", m.errorStage))
		}
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":   boardEventName,
		"event.domain": boardEventDomain,
		"attributes":   attrs,
	}
	entry := m.logger.WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
