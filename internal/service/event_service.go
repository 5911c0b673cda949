package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/proctorly/exam-api/internal/models"
)

// EventService announces attempt completions to interested consumers
// (dashboards, notification fan-out). Publication is best effort: a broker
// outage never affects the submission path.
type EventService interface {
	PublishCompleted(ctx context.Context, attempt models.Attempt)
}

type attemptCompletedEvent struct {
	AttemptID    uint      `json:"attempt_id"`
	TestID       uint      `json:"test_id"`
	UserID       uint      `json:"user_id"`
	Score        int       `json:"score"`
	SubmitReason string    `json:"submit_reason"`
	CompletedAt  time.Time `json:"completed_at"`
	SentAt       time.Time `json:"sent_at"`
}

type eventService struct {
	nats    *nats.Conn
	subject string
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// NewEventService constructs the publisher. conn may be nil, in which case
// publication is a no-op.
func NewEventService(conn *nats.Conn, subject string, logger zerolog.Logger) EventService {
	if subject == "" {
		subject = "exam.attempt.completed"
	}
	return &eventService{
		nats:    conn,
		subject: subject,
		tracer:  otel.Tracer("github.com/proctorly/exam-api/internal/service/event"),
		logger:  logger.With().Str("component", "event_service").Logger(),
	}
}

func (s *eventService) PublishCompleted(ctx context.Context, attempt models.Attempt) {
	if s.nats == nil || !attempt.IsCompleted() {
		return
	}

	_, span := s.tracer.Start(ctx, "event.publish_completed", trace.WithAttributes(
		attribute.Int("attempt_id", int(attempt.ID)),
	))
	defer span.End()

	payload, err := json.Marshal(attemptCompletedEvent{
		AttemptID:    attempt.ID,
		TestID:       attempt.TestID,
		UserID:       attempt.UserID,
		Score:        attempt.Score,
		SubmitReason: attempt.SubmitReason,
		CompletedAt:  *attempt.CompletedAt,
		SentAt:       time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal completion event")
		return
	}

	if err := s.nats.Publish(s.subject, payload); err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Uint("attempt_id", attempt.ID).Msg("failed to publish completion event")
	}
}
