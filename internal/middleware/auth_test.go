package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devfleet/iot-device-api/internal/apperr"
	"github.com/devfleet/iot-device-api/internal/model"
	"github.com/devfleet/iot-device-api/internal/token"
)

type blacklistFake struct{ revoked map[string]bool }

func (b *blacklistFake) Insert(_ context.Context, jti, kind string, _ uint64, _ time.Time) error {
	b.revoked[jti+":"+kind] = true
	return nil
}

func (b *blacklistFake) Exists(_ context.Context, jti, kind string) (bool, error) {
	return b.revoked[jti+":"+kind], nil
}

type userStoreFake struct{}

func (userStoreFake) GetByID(context.Context, uint64) (model.User, error) {
	return model.User{ID: 1, Role: model.RoleUser}, nil
}

func authEcho(tokens *token.Service) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler
	e.GET("/me", func(c echo.Context) error {
		id, _ := IdentityFrom(c)
		return c.JSON(http.StatusOK, echo.Map{"user_id": id.UserID, "email": id.Email})
	}, RequireAuth(tokens))
	return e
}

func getMe(e *echo.Echo, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuthHappyPath(t *testing.T) {
	bl := &blacklistFake{revoked: map[string]bool{}}
	svc := token.New("acc", "ref", 15*time.Minute, 7*24*time.Hour, bl, userStoreFake{})
	e := authEcho(svc)

	raw, _, err := svc.IssueAccess(model.User{ID: 42, Email: "a@b.c", Role: model.RoleUser})
	require.NoError(t, err)

	rec := getMe(e, "Bearer "+raw)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":42`)
}

func TestRequireAuthMissingHeader(t *testing.T) {
	bl := &blacklistFake{revoked: map[string]bool{}}
	svc := token.New("acc", "ref", 15*time.Minute, 7*24*time.Hour, bl, userStoreFake{})
	rec := getMe(authEcho(svc), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthMalformedToken(t *testing.T) {
	bl := &blacklistFake{revoked: map[string]bool{}}
	svc := token.New("acc", "ref", 15*time.Minute, 7*24*time.Hour, bl, userStoreFake{})
	rec := getMe(authEcho(svc), "Bearer junk")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRejectsRefreshToken(t *testing.T) {
	bl := &blacklistFake{revoked: map[string]bool{}}
	svc := token.New("acc", "ref", 15*time.Minute, 7*24*time.Hour, bl, userStoreFake{})

	raw, _, err := svc.IssueRefresh(model.User{ID: 42, Role: model.RoleUser})
	require.NoError(t, err)

	rec := getMe(authEcho(svc), "Bearer "+raw)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRevokedToken(t *testing.T) {
	bl := &blacklistFake{revoked: map[string]bool{}}
	svc := token.New("acc", "ref", 15*time.Minute, 7*24*time.Hour, bl, userStoreFake{})
	e := authEcho(svc)

	u := model.User{ID: 42, Role: model.RoleUser}
	raw, cl, err := svc.IssueAccess(u)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), cl.JTI, model.TokenKindAccess, u.ID, cl.ExpiresAt))

	rec := getMe(e, "Bearer "+raw)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "revoked")
}
