package handler

import (
	"errors"
	"net/http"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/auth"
)

// DevTokenIssuer issues tokens for local development.
type DevTokenIssuer interface {
	IssueDevToken(userID string) (*auth.Token, error)
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	issuer DevTokenIssuer
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(issuer DevTokenIssuer) *AuthHandler {
	return &AuthHandler{issuer: issuer}
}

// DevToken handles POST /v1/auth/dev. Only available when AUTH_DEV_MODE=true.
func (h *AuthHandler) DevToken(w http.ResponseWriter, r *http.Request) {
	var input models.DevTokenRequest
	if r.ContentLength != 0 {
		if err := response.DecodeJSON(w, r, &input); err != nil {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
	}

	tok, err := h.issuer.IssueDevToken(input.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrDevModeDisabled) {
			response.NotFound(w, r, "not found")
			return
		}
		response.InternalError(w, r, "failed to issue token")
		return
	}

	response.JSON(w, r, http.StatusOK, models.TokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   models.Timestamp(tok.ExpiresAt),
		UserID:      tok.UserID,
	})
}
