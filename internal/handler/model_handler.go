package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/neuroscreen/ndd-risk-api/internal/utils"
	"github.com/neuroscreen/ndd-risk-api/pkg/classifier"
)

// ModelHandler exposes classifier artifact metadata for operators.
type ModelHandler struct {
	model  classifier.Classifier
	logger zerolog.Logger
}

// NewModelHandler builds a model handler instance.
func NewModelHandler(model classifier.Classifier, logger zerolog.Logger) *ModelHandler {
	return &ModelHandler{
		model:  model,
		logger: logger.With().Str("component", "model_handler").Logger(),
	}
}

// Register binds the model routes behind the guards.
func (h *ModelHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	router.Get("/model/info", withGuards(guards, h.info)...)
}

func (h *ModelHandler) info(c *fiber.Ctx) error {
	info := h.model.Describe(c.UserContext())
	if !info.Loaded {
		h.logger.Warn().Str("error", info.Error).Msg("model info requested while artifact unavailable")
	}

	return utils.SendSuccess(c, "model info", info)
}
