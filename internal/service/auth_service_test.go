package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uniattend/attendance-api/internal/models"
	appErrors "github.com/uniattend/attendance-api/pkg/errors"
)

func newAuthFixture() *AuthService {
	return NewAuthService(AuthConfig{
		AccessTokenSecret: "test-secret",
		Issuer:            "attendance-api",
	}, zap.NewNop())
}

func TestValidateToken_RoundTrip(t *testing.T) {
	svc := newAuthFixture()

	token, err := svc.IssueToken("user-1", models.RoleTeacher, "t@example.edu", "T. Teacher", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	svc := newAuthFixture()
	other := NewAuthService(AuthConfig{AccessTokenSecret: "different"}, zap.NewNop())

	token, err := other.IssueToken("user-1", models.RoleStudent, "", "", time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestValidateToken_Expired(t *testing.T) {
	svc := newAuthFixture()

	token, err := svc.IssueToken("user-1", models.RoleStudent, "", "", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := newAuthFixture()

	_, err := svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
