package models

// DevTokenRequest is the request body for POST /v1/auth/dev.
type DevTokenRequest struct {
	UserID string `json:"userId,omitempty"`
}

// TokenResponse carries an issued access token.
type TokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   Timestamp `json:"expiresAt"`
	UserID      string    `json:"userId"`
}
