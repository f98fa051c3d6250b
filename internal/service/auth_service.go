package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/neuroscreen/ndd-risk-api/internal/dto"
)

// ErrInvalidAPIKey indicates the presented key matches none of the configured
// ones. Callers receive no hint about which part failed.
var ErrInvalidAPIKey = errors.New("invalid api key")

// TokenSubject identifies tokens issued by the login endpoint. The API serves
// integrating clients, not end users, so every valid key maps to the same
// principal.
const (
	TokenSubject = "api-client"
	TokenRole    = "service"
)

// AuthService exchanges configured API keys for short-lived bearer tokens.
type AuthService interface {
	Login(ctx context.Context, payload dto.LoginRequest) (dto.TokenResponse, error)
}

type authService struct {
	secret    []byte
	apiKeys   []string
	tokenTTL  time.Duration
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAuthService constructs the token issuer.
func NewAuthService(secret string, apiKeys []string, tokenTTL time.Duration, validate *validator.Validate, logger zerolog.Logger) AuthService {
	return &authService{
		secret:    []byte(secret),
		apiKeys:   apiKeys,
		tokenTTL:  tokenTTL,
		validator: validate,
		logger:    logger.With().Str("component", "auth_service").Logger(),
		now:       time.Now,
	}
}

// Login validates the key and issues a signed HS256 token. Key comparison is
// constant time per configured key.
func (s *authService) Login(_ context.Context, payload dto.LoginRequest) (dto.TokenResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TokenResponse{}, ErrInvalidAPIKey
	}

	if !s.keyMatches(payload.APIKey) {
		s.logger.Warn().Msg("login rejected: unknown api key")
		return dto.TokenResponse{}, ErrInvalidAPIKey
	}

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  TokenSubject,
		"role": TokenRole,
		"iat":  issuedAt.Unix(),
		"exp":  expiresAt.Unix(),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return dto.TokenResponse{}, err
	}

	return dto.TokenResponse{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokenTTL.Seconds()),
	}, nil
}

func (s *authService) keyMatches(candidate string) bool {
	matched := false
	for _, key := range s.apiKeys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			matched = true
		}
	}
	return matched
}
