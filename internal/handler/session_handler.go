package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/proctorly/exam-api/internal/dto"
	"github.com/proctorly/exam-api/internal/middleware"
	"github.com/proctorly/exam-api/internal/models"
	"github.com/proctorly/exam-api/internal/observability"
	"github.com/proctorly/exam-api/internal/service"
	"github.com/proctorly/exam-api/internal/session"
	"github.com/proctorly/exam-api/internal/utils"
)

// SessionHandler exposes the live exam session endpoints: start, answer
// updates, code runs, heartbeat, submission and the integrity signal
// websocket.
type SessionHandler struct {
	registry  *session.Registry
	exams     service.ExamService
	execution service.ExecutionService
	grading   service.GradingService
	results   service.ResultService
	events    service.EventService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(
	registry *session.Registry,
	exams service.ExamService,
	execution service.ExecutionService,
	grading service.GradingService,
	results service.ResultService,
	events service.EventService,
	validator *validator.Validate,
	logger zerolog.Logger,
) *SessionHandler {
	return &SessionHandler{
		registry:  registry,
		exams:     exams,
		execution: execution,
		grading:   grading,
		results:   results,
		events:    events,
		validator: validator,
		logger:    logger.With().Str("component", "session_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *SessionHandler) Register(router fiber.Router) {
	router.Post("/tests/:test_id/session", h.start)
	router.Put("/sessions/:session_id/answers/:question_id", h.updateAnswer)
	router.Post("/sessions/:session_id/answers/:question_id/run", h.runCode)
	router.Post("/sessions/:session_id/heartbeat", h.heartbeat)
	router.Post("/sessions/:session_id/submit", h.submit)

	router.Get("/sessions/:session_id/signals", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("correlation_id", middleware.GetCorrelationID(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, websocket.New(h.handleSignals))
}

func (h *SessionHandler) start(c *fiber.Ctx) error {
	testID, err := parseUintParam(c, "test_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	test, err := h.exams.GetModel(c.Context(), testID)
	if err != nil {
		if errors.Is(err, service.ErrTestNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "test not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("test_id", testID).Msg("failed to load test")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load test")
	}

	sess, err := h.registry.Start(c.Context(), test, userID)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyCompleted) {
			return utils.SendError(c, fiber.StatusConflict, "attempt already completed, fetch the result instead")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("test_id", testID).Msg("failed to start session")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to start session")
	}

	sess.OnCompleted(h.completionHook())

	questions := make([]dto.QuestionResponse, 0, len(test.Questions))
	for _, q := range test.Questions {
		questions = append(questions, dto.NewQuestionResponse(q))
	}

	payload := dto.StartSessionResponse{
		SessionID:        sess.ID,
		AttemptID:        sess.AttemptID(),
		TestID:           test.ID,
		StartedAt:        sess.StartedAt,
		RemainingSeconds: sess.Remaining(),
		Questions:        questions,
	}

	return utils.SendCreated(c, "session ready", payload)
}

func (h *SessionHandler) updateAnswer(c *fiber.Ctx) error {
	sess, question, errResp := h.sessionQuestion(c)
	if errResp != nil {
		return errResp(c)
	}

	if sess.State() >= session.StateSubmitting {
		return utils.SendError(c, fiber.StatusConflict, "attempt already completed")
	}

	var payload dto.AnswerUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	switch question.Kind {
	case models.QuestionKindChoice:
		if payload.SelectedOption == "" {
			return utils.SendError(c, fiber.StatusBadRequest, "selected_option is required for choice questions")
		}
		sess.Answers.SetChoice(question.ID, payload.SelectedOption)
	case models.QuestionKindCode:
		sess.Answers.SetSource(question.ID, payload.SourceText)
	default:
		return utils.SendError(c, fiber.StatusBadRequest, "unknown question kind")
	}

	return utils.SendSuccess(c, "answer recorded", fiber.Map{
		"question_id":       question.ID,
		"remaining_seconds": sess.Remaining(),
	})
}

func (h *SessionHandler) runCode(c *fiber.Ctx) error {
	sess, question, errResp := h.sessionQuestion(c)
	if errResp != nil {
		return errResp(c)
	}

	if sess.State() >= session.StateSubmitting {
		return utils.SendError(c, fiber.StatusConflict, "attempt already completed")
	}

	if question.Kind != models.QuestionKindCode {
		return utils.SendError(c, fiber.StatusBadRequest, "question does not accept code runs")
	}

	var payload dto.AnswerUpdateRequest
	if err := c.BodyParser(&payload); err == nil && payload.SourceText != "" {
		sess.Answers.SetSource(question.ID, payload.SourceText)
	}

	state, _ := sess.Answers.Get(question.ID)

	ctx := middleware.ContextWithCorrelation(c.Context(), middleware.GetCorrelationID(c))
	outcome, err := h.execution.Execute(ctx, question.LanguageID, state.SourceText)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedLanguage) {
			return utils.SendError(c, fiber.StatusBadRequest, "unsupported language")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("question_id", question.ID).Msg("code execution failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "code execution failed")
	}

	grade := h.grading.Grade(ctx, question, state.SourceText, outcome)
	sess.Answers.ApplyGradingResult(question.ID, outcome.Verdict, grade.Points, grade.Feedback, grade.Detail)

	if _, err := sess.RecordProgress(ctx); err != nil &&
		!errors.Is(err, session.ErrAlreadyCompleted) && !errors.Is(err, session.ErrSubmitInProgress) {
		requestLogger(h.logger, c).Warn().Err(err).Msg("progress save after run failed")
	}

	return utils.SendSuccess(c, "code executed", dto.RunCodeResponse{
		QuestionID:   question.ID,
		Verdict:      outcome.Verdict,
		TimeMs:       outcome.TimeMs,
		MemoryKB:     outcome.MemoryKB,
		Output:       outcome.Output,
		PointsEarned: grade.Points,
		Feedback:     grade.Feedback,
	})
}

func (h *SessionHandler) heartbeat(c *fiber.Ctx) error {
	sess, errResp := h.sessionFor(c)
	if errResp != nil {
		return errResp(c)
	}

	monitorState, warning := sess.Monitor.State()

	score, err := sess.RecordProgress(c.Context())
	if err != nil {
		if errors.Is(err, session.ErrAlreadyCompleted) {
			return utils.SendSuccess(c, "attempt completed", dto.HeartbeatResponse{
				AttemptID: sess.AttemptID(),
				Completed: true,
			})
		}
		// The submission guard is held; nothing is terminal yet. Report
		// the current clock and let the client poll.
		if errors.Is(err, session.ErrSubmitInProgress) {
			return utils.SendSuccess(c, "submission in progress", dto.HeartbeatResponse{
				AttemptID:        sess.AttemptID(),
				RemainingSeconds: sess.Remaining(),
				MonitorState:     monitorState.String(),
				WarningSeconds:   warning,
			})
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("heartbeat progress save failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to save progress")
	}

	return utils.SendSuccess(c, "heartbeat recorded", dto.HeartbeatResponse{
		AttemptID:        sess.AttemptID(),
		RemainingSeconds: sess.Remaining(),
		Score:            score,
		MonitorState:     monitorState.String(),
		WarningSeconds:   warning,
	})
}

func (h *SessionHandler) submit(c *fiber.Ctx) error {
	sess, errResp := h.sessionFor(c)
	if errResp != nil {
		return errResp(c)
	}

	var payload dto.SubmitRequest
	if err := c.BodyParser(&payload); err != nil && len(c.Body()) > 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	reason := payload.Reason
	if reason == "" {
		reason = models.SubmitReasonManual
	}

	ctx := middleware.ContextWithCorrelation(c.Context(), middleware.GetCorrelationID(c))
	attempt, err := sess.Submit(ctx, reason)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSubmitInProgress):
			return utils.SendError(c, fiber.StatusConflict, "submission already in progress")
		case errors.Is(err, session.ErrAlreadyCompleted):
			// Submit hands back the completed attempt alongside the
			// sentinel; the conflict response points the client at it.
			return utils.SendErrorWithData(c, fiber.StatusConflict, "attempt already completed",
				fiber.Map{"attempt_id": attempt.ID})
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("submission failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "submission failed, retry")
		}
	}

	return utils.SendSuccess(c, "attempt submitted", dto.NewAttemptResponse(attempt))
}

func (h *SessionHandler) handleSignals(conn *websocket.Conn) {
	defer conn.Close()

	userID := websocketUserID(conn)
	sessionID := conn.Params("session_id")

	sess, ok := h.registry.Get(sessionID)
	if !ok || sess.UserID != userID || userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session not found"))
		return
	}

	logger := h.logger.With().
		Str("session_id", sessionID).
		Str("correlation_id", fmt.Sprint(conn.Locals("correlation_id"))).
		Logger()
	logger.Info().Msg("signal websocket connected")

	events, cancel := sess.Monitor.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range events {
			if event.Type == session.MonitorEventExpired {
				observability.IntegrityExpirations().WithLabelValues(string(event.Signal)).Inc()
			}
			notice := dto.SignalNotice{
				Type:             event.Type,
				Signal:           string(event.Signal),
				RemainingSeconds: event.RemainingSeconds,
				Reason:           event.Reason,
			}
			if err := conn.WriteJSON(notice); err != nil {
				return
			}
		}
	}()

	for {
		var event dto.SignalEvent
		if err := conn.ReadJSON(&event); err != nil {
			break
		}
		if err := h.validator.Struct(event); err != nil {
			logger.Warn().Err(err).Msg("invalid signal event")
			continue
		}

		before, _ := sess.Monitor.State()
		sess.Monitor.Observe(session.Signal(event.Signal), event.Compliant)
		after, _ := sess.Monitor.State()
		if before == session.MonitorClear && after == session.MonitorWarning {
			observability.IntegrityWarnings().WithLabelValues(event.Signal).Inc()
		}
	}

	cancel()
	<-done
	logger.Info().Msg("signal websocket disconnected")
}

// completionHook returns the callback run once per terminal submission. It
// primes the result cache, publishes the completion event and updates the
// submission metrics.
func (h *SessionHandler) completionHook() func(models.Attempt) {
	return func(attempt models.Attempt) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		h.results.CacheCompleted(ctx, attempt)
		h.events.PublishCompleted(ctx, attempt)
		observability.Submissions().WithLabelValues(attempt.SubmitReason).Inc()
	}
}

type errorResponder func(*fiber.Ctx) error

func (h *SessionHandler) sessionFor(c *fiber.Ctx) (*session.Session, errorResponder) {
	sessionID := c.Params("session_id")
	sess, ok := h.registry.Get(sessionID)
	if !ok {
		return nil, func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusNotFound, "session not found")
		}
	}

	if sess.UserID != userIDFromContext(c) {
		return nil, func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusForbidden, "session belongs to another candidate")
		}
	}

	return sess, nil
}

func (h *SessionHandler) sessionQuestion(c *fiber.Ctx) (*session.Session, models.Question, errorResponder) {
	sess, errResp := h.sessionFor(c)
	if errResp != nil {
		return nil, models.Question{}, errResp
	}

	questionID, err := parseUintParam(c, "question_id")
	if err != nil {
		message := err.Error()
		return nil, models.Question{}, func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusBadRequest, message)
		}
	}

	question, err := sess.Question(questionID)
	if err != nil {
		return nil, models.Question{}, func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusNotFound, "question not part of this test")
		}
	}

	return sess, question, nil
}

func websocketUserID(conn *websocket.Conn) uint {
	if value := conn.Locals("user_id"); value != nil {
		switch v := value.(type) {
		case uint:
			return v
		case int:
			if v < 0 {
				return 0
			}
			return uint(v)
		case float64:
			if v < 0 {
				return 0
			}
			return uint(v)
		}
	}
	return 0
}
