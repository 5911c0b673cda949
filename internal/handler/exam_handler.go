package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/proctorly/exam-api/internal/service"
	"github.com/proctorly/exam-api/internal/utils"
)

// ExamHandler exposes the published test catalogue.
type ExamHandler struct {
	service service.ExamService
	logger  zerolog.Logger
}

// NewExamHandler constructs the handler.
func NewExamHandler(service service.ExamService, logger zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		service: service,
		logger:  logger.With().Str("component", "exam_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *ExamHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:test_id", h.get)
}

func (h *ExamHandler) list(c *fiber.Ctx) error {
	tests, err := h.service.List(c.Context())
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list tests")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list tests")
	}

	return utils.SendSuccess(c, "tests retrieved", tests)
}

func (h *ExamHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "test_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	test, err := h.service.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrTestNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "test not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("test_id", id).Msg("failed to load test")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load test")
	}

	return utils.SendSuccess(c, "test retrieved", test)
}
