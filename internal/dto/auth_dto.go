package dto

// LoginRequest exchanges a configured API key for a bearer token.
type LoginRequest struct {
	APIKey string `json:"api_key" validate:"required"`
}

// TokenResponse carries an issued access token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// VerifyResponse echoes the claims of a valid token back to the caller.
type VerifyResponse struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}
