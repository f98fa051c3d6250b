package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/neuroscreen/ndd-risk-api/internal/dto"
	"github.com/neuroscreen/ndd-risk-api/internal/service"
	"github.com/neuroscreen/ndd-risk-api/internal/utils"
)

// AuthHandler serves token issuance and verification.
type AuthHandler struct {
	service service.AuthService
	logger  zerolog.Logger
}

// NewAuthHandler builds an auth handler instance.
func NewAuthHandler(service service.AuthService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register binds the auth routes. Login stays public; verify sits behind the
// guards so a valid token is the only way to reach it.
func (h *AuthHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	router.Post("/login", h.login)
	router.Get("/verify", withGuards(guards, h.verify)...)
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	token, err := h.service.Login(c.UserContext(), payload)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAPIKey) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid api key")
		}
		h.logger.Error().Err(err).Msg("token issuance failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "token issued", token)
}

func (h *AuthHandler) verify(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "token valid", dto.VerifyResponse{
		Subject: subjectFromContext(c),
		Role:    userRoleFromContext(c),
	})
}
