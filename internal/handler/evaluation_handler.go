package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/neuroscreen/ndd-risk-api/internal/dto"
	"github.com/neuroscreen/ndd-risk-api/internal/service"
	"github.com/neuroscreen/ndd-risk-api/internal/utils"
	"github.com/neuroscreen/ndd-risk-api/pkg/classifier"
)

// submitSuccessMessage keeps the original submission contract's confirmation
// text.
const submitSuccessMessage = "Evaluación guardada exitosamente"

// EvaluationHandler serves the scoring and stored-evaluation endpoints.
type EvaluationHandler struct {
	service service.EvaluationService
	logger  zerolog.Logger
}

// NewEvaluationHandler builds an evaluation handler instance.
func NewEvaluationHandler(service service.EvaluationService, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service: service,
		logger:  logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// RegisterPublic attaches the unauthenticated scoring and aggregate routes.
// The limiter guards the two scoring endpoints; pass nil to disable it.
func (h *EvaluationHandler) RegisterPublic(router fiber.Router, limiter fiber.Handler) {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	router.Post("/predict", limiter, h.predict)
	router.Post("/submit", limiter, h.submit)
	router.Get("/stats/public", h.publicStats)
}

// RegisterProtected attaches the read routes behind the supplied guards.
// Guards run in order before the handler; none means the routes stay open,
// which the handler tests rely on.
func (h *EvaluationHandler) RegisterProtected(router fiber.Router, guards ...fiber.Handler) {
	router.Get("/evaluations", withGuards(guards, h.list)...)
	router.Get("/evaluations/:id", withGuards(guards, h.get)...)
	router.Get("/stats", withGuards(guards, h.stats)...)
}

func (h *EvaluationHandler) predict(c *fiber.Ctx) error {
	var payload dto.PredictRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	prediction, err := h.service.EvaluateOnly(c.UserContext(), payload.Input())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "prediction computed", dto.NewPredictionResponse(prediction))
}

func (h *EvaluationHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.EvaluateAndStore(c.UserContext(), payload.Input())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, submitSuccessMessage, result)
}

func (h *EvaluationHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	evaluations, err := h.service.List(c.UserContext(), dto.ListQuery{Limit: limit, Offset: offset})
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "evaluations retrieved", evaluations)
}

func (h *EvaluationHandler) get(c *fiber.Ctx) error {
	idParam := c.Params("id")
	parsed, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid evaluation id")
	}

	evaluation, err := h.service.Get(c.UserContext(), uint(parsed))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "evaluation retrieved", evaluation)
}

func (h *EvaluationHandler) stats(c *fiber.Ctx) error {
	stats, err := h.service.Statistics(c.UserContext())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "statistics computed", stats)
}

func (h *EvaluationHandler) publicStats(c *fiber.Ctx) error {
	stats, err := h.service.Statistics(c.UserContext())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "statistics computed", stats.Public())
}

func (h *EvaluationHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return utils.SendValidationError(c, validationErr.Field, validationErr.Error())
	case errors.Is(err, service.ErrEvaluationNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "evaluation not found")
	case errors.Is(err, classifier.ErrUnavailable):
		h.logger.Error().Err(err).Msg("classifier unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "prediction model unavailable")
	case errors.Is(err, service.ErrModelIncompatible):
		h.logger.Error().Err(err).Msg("classifier incompatible with questionnaire features")
		return utils.SendError(c, fiber.StatusInternalServerError, "prediction model incompatible")
	case errors.Is(err, service.ErrPersistence):
		h.logger.Error().Err(err).Msg("evaluation persistence failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "evaluation could not be stored")
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
