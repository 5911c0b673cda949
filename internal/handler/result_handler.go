package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/proctorly/exam-api/internal/service"
	"github.com/proctorly/exam-api/internal/utils"
)

// ResultHandler serves completed attempt results.
type ResultHandler struct {
	service service.ResultService
	logger  zerolog.Logger
}

// NewResultHandler constructs the handler.
func NewResultHandler(service service.ResultService, logger zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		service: service,
		logger:  logger.With().Str("component", "result_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *ResultHandler) Register(router fiber.Router) {
	router.Get("/tests/:test_id/result", h.result)
	router.Get("/attempts", h.attempts)
}

func (h *ResultHandler) result(c *fiber.Ctx) error {
	testID, err := parseUintParam(c, "test_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	result, err := h.service.GetResult(c.Context(), testID, userID)
	if err != nil {
		if errors.Is(err, service.ErrResultNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "no completed attempt for this test")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("test_id", testID).Msg("failed to load result")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load result")
	}

	return utils.SendSuccess(c, "result retrieved", result)
}

func (h *ResultHandler) attempts(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	attempts, err := h.service.ListAttempts(c.Context(), userID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list attempts")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list attempts")
	}

	return utils.SendSuccess(c, "attempts retrieved", attempts)
}
