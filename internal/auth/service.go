package auth

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDevModeDisabled is returned when development tokens are requested outside dev mode.
var ErrDevModeDisabled = errors.New("development authentication is disabled")

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
	UserID      string    `json:"userId"`
}

// ServiceConfig holds configuration for the auth service.
type ServiceConfig struct {
	JWTService *JWTService

	// DevMode enables IssueDevToken. Never enable in production.
	DevMode bool
}

// Service provides authentication operations.
type Service struct {
	jwtService *JWTService
	devMode    bool
}

// NewService creates a new auth service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		jwtService: cfg.JWTService,
		devMode:    cfg.DevMode,
	}
}

// ValidateAccessToken validates an access token and returns the user ID.
func (s *Service) ValidateAccessToken(tokenString string) (string, error) {
	claims, err := s.jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// DevModeEnabled reports whether IssueDevToken is available.
func (s *Service) DevModeEnabled() bool {
	return s.devMode
}

// IssueDevToken returns a token for userID, or for a fresh user when userID is empty.
// For local development only.
func (s *Service) IssueDevToken(userID string) (*Token, error) {
	if !s.devMode {
		return nil, ErrDevModeDisabled
	}
	if userID == "" {
		userID = "usr_" + uuid.New().String()[:22]
	}

	access, expiresAt, err := s.jwtService.GenerateAccessToken(userID, AccessTokenExpiry)
	if err != nil {
		return nil, err
	}
	return &Token{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		UserID:      userID,
	}, nil
}
