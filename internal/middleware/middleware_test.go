package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-timetable-api/internal/models"
	"github.com/noah-isme/school-timetable-api/internal/service"
	appErrors "github.com/noah-isme/school-timetable-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
	seen   string
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	v.seen = token
	return v.claims, v.err
}

func newRouter(middlewares ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append(middlewares, func(c *gin.Context) {
		claims, ok := Claims(c)
		if ok {
			c.String(http.StatusOK, claims.UserID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	r.GET("/users/:id", handlers...)
	return r
}

func perform(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMissingHeader(t *testing.T) {
	r := newRouter(JWT(&validatorStub{}))

	w := perform(r, "/users/u-1", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTMalformedHeader(t *testing.T) {
	r := newRouter(JWT(&validatorStub{}))

	w := perform(r, "/users/u-1", "Token abc")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid authorization header")
}

func TestJWTInvalidToken(t *testing.T) {
	r := newRouter(JWT(&validatorStub{err: appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")}))

	w := perform(r, "/users/u-1", "Bearer expired")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTValidToken(t *testing.T) {
	stub := &validatorStub{claims: &models.JWTClaims{UserID: "u-1"}}
	r := newRouter(JWT(stub))

	w := perform(r, "/users/u-1", "bearer good-token")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", w.Body.String())
	assert.Equal(t, "good-token", stub.seen)
}

func TestOptionalJWTIgnoresBadToken(t *testing.T) {
	r := newRouter(OptionalJWT(&validatorStub{err: errors.New("boom")}))

	w := perform(r, "/users/u-1", "Bearer nope")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())
}

func TestRequireCapability(t *testing.T) {
	student := &models.JWTClaims{UserID: "stu-1", Capabilities: models.CapabilitiesFor(models.RoleStudent, nil)}
	admin := &models.JWTClaims{UserID: "admin-1", Capabilities: models.CapabilitiesFor(models.RoleAdmin, nil)}

	r := newRouter(JWT(&validatorStub{claims: student}), RequireCapability(models.CapManageTimetables))
	assert.Equal(t, http.StatusForbidden, perform(r, "/users/x", "Bearer t").Code)

	r = newRouter(JWT(&validatorStub{claims: admin}), RequireCapability(models.CapManageTimetables))
	assert.Equal(t, http.StatusOK, perform(r, "/users/x", "Bearer t").Code)

	r = newRouter(JWT(&validatorStub{claims: student}), RequireCapability(models.CapManageQuizzes, models.CapTakeQuizzes))
	assert.Equal(t, http.StatusOK, perform(r, "/users/x", "Bearer t").Code)
}

func TestRequireCapabilityWithoutClaims(t *testing.T) {
	r := newRouter(RequireCapability(models.CapViewTimetables))

	assert.Equal(t, http.StatusUnauthorized, perform(r, "/users/x", "").Code)
}

func TestRequireCapabilityOrSelf(t *testing.T) {
	teacher := &models.JWTClaims{UserID: "t-1", Capabilities: []models.Capability{models.CapManageQuizzes}}
	r := newRouter(JWT(&validatorStub{claims: teacher}), RequireCapabilityOrSelf("id", models.CapStudentAffairs))

	assert.Equal(t, http.StatusOK, perform(r, "/users/t-1", "Bearer t").Code)
	assert.Equal(t, http.StatusForbidden, perform(r, "/users/t-2", "Bearer t").Code)
}

func TestMetricsMiddlewareRecordsRoute(t *testing.T) {
	metrics := service.NewMetricsService()
	r := newRouter(Metrics(metrics))

	perform(r, "/users/u-1", "")
	perform(r, "/nowhere", "")

	count, err := testutil.GatherAndCount(metrics.Registry(), "http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
