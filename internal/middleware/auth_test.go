package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"anoa.com/casethreads/internal/entity"
	"anoa.com/casethreads/pkg/apperror"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type fakeUsers map[uuid.UUID]entity.UserProfile

func (f fakeUsers) ResolveUser(_ context.Context, id uuid.UUID) (*entity.UserProfile, error) {
	p, ok := f[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	return &p, nil
}

func newRouter(users fakeUsers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	m := NewAuthMiddleware(users, secret)

	r := gin.New()
	r.GET("/me", m.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user_id"))
	})
	r.GET("/staff", m.RequireAuth(), m.RequireStaff(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func token(t *testing.T, id uuid.UUID, exp time.Duration) string {
	t.Helper()
	s, err := IssueToken(secret, id, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(exp))})
	require.NoError(t, err)
	return s
}

func do(r *gin.Engine, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	tech := entity.UserProfile{ID: uuid.New(), DisplayName: "Tech", Role: entity.RoleTechnician, IsActive: true}
	gone := entity.UserProfile{ID: uuid.New(), DisplayName: "Gone", Role: entity.RoleTechnician, IsActive: false}
	r := newRouter(fakeUsers{tech.ID: tech, gone.ID: gone})

	w := do(r, "/me", token(t, tech.ID, time.Hour))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tech.ID.String(), w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", token(t, tech.ID, -time.Minute)).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", token(t, uuid.New(), time.Hour)).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", token(t, gone.ID, time.Hour)).Code)

	w = do(r, "/me?token="+token(t, tech.ID, time.Hour), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireStaff(t *testing.T) {
	coord := entity.UserProfile{ID: uuid.New(), Role: entity.RoleKoordinator, IsActive: true}
	customer := entity.UserProfile{ID: uuid.New(), Role: "customer", IsActive: true}
	r := newRouter(fakeUsers{coord.ID: coord, customer.ID: customer})

	assert.Equal(t, http.StatusNoContent, do(r, "/staff", token(t, coord.ID, time.Hour)).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "/staff", token(t, customer.ID, time.Hour)).Code)
}
