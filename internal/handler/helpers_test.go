package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-timetable-api/internal/middleware"
	"github.com/noah-isme/school-timetable-api/internal/models"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
	Meta map[string]interface{} `json:"meta"`
}

func newContext(method, target, body string, claims *models.JWTClaims, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	c.Params = params
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{
		UserID:        "admin-1",
		InstitutionID: "inst-1",
		Role:          models.RoleAdmin,
		Capabilities:  models.CapabilitiesFor(models.RoleAdmin, nil),
	}
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{
		UserID:        id,
		InstitutionID: "inst-1",
		Role:          models.RoleStudent,
		Capabilities:  models.CapabilitiesFor(models.RoleStudent, nil),
	}
}
