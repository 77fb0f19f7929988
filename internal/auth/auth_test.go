package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-labs/triage-service/internal/domain"
	apperrors "github.com/helpdesk-labs/triage-service/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Minute)
	token, expires, err := tm.GenerateToken("agent-1", domain.RoleAgent)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expires, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", claims.SubjectID)
	assert.Equal(t, domain.RoleAgent, claims.Role)

	_, err = NewTokenManager("other", time.Minute).ParseToken(token)
	assert.Error(t, err)

	_, _, err = tm.GenerateToken("x", domain.Role("root"))
	assert.Error(t, err)
}

func TestMiddlewareAndRoles(t *testing.T) {
	tm := NewTokenManager("secret", time.Minute)
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Get("/staff", NewAuthMiddleware(tm).Handle, RequireStaff(), func(c *fiber.Ctx) error {
		p, ok := PrincipalFromContext(c)
		require.True(t, ok)
		return c.SendString(p.ID)
	})

	do := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/staff", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	userToken, _, err := tm.GenerateToken("u-1", domain.RoleUser)
	require.NoError(t, err)
	agentToken, _, err := tm.GenerateToken("a-1", domain.RoleAgent)
	require.NoError(t, err)
	adminToken, _, err := tm.GenerateToken("root", domain.RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(""))
	assert.Equal(t, http.StatusUnauthorized, do("Bearer nope"))
	assert.Equal(t, http.StatusForbidden, do("Bearer "+userToken))
	assert.Equal(t, http.StatusOK, do("Bearer "+agentToken))
	assert.Equal(t, http.StatusOK, do("Bearer "+adminToken))
}
