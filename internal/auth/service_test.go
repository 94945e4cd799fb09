package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/auth"
)

func TestService_ValidateAccessToken(t *testing.T) {
	jwtSvc := signer(auth.JWTConfig{})
	svc := auth.NewService(auth.ServiceConfig{JWTService: jwtSvc})

	token, _, err := jwtSvc.GenerateAccessToken("usr_abc", 0)
	require.NoError(t, err)

	userID, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "usr_abc", userID)

	_, err = svc.ValidateAccessToken("garbage")
	assert.Error(t, err)
}

func TestService_IssueDevToken(t *testing.T) {
	svc := auth.NewService(auth.ServiceConfig{
		JWTService: signer(auth.JWTConfig{}),
		DevMode:    true,
	})
	assert.True(t, svc.DevModeEnabled())

	tok, err := svc.IssueDevToken("usr_dev")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, "usr_dev", tok.UserID)

	userID, err := svc.ValidateAccessToken(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "usr_dev", userID)
}

func TestService_IssueDevToken_GeneratesUser(t *testing.T) {
	svc := auth.NewService(auth.ServiceConfig{
		JWTService: signer(auth.JWTConfig{}),
		DevMode:    true,
	})

	tok, err := svc.IssueDevToken("")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tok.UserID, "usr_"))
}

func TestService_IssueDevToken_Disabled(t *testing.T) {
	svc := auth.NewService(auth.ServiceConfig{JWTService: signer(auth.JWTConfig{})})

	_, err := svc.IssueDevToken("usr_dev")
	assert.ErrorIs(t, err, auth.ErrDevModeDisabled)
}
