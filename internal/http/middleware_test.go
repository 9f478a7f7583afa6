package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend/internal/domain"
)

const testSecret = "test-secret"

func signToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, authClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "kasir-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, http.StatusOK, map[string]any{"device": deviceIDFrom(r.Context())})
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testSecret)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ok"])
}

func TestAuthRejectsBadSignature(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, authClaims{Role: RoleAdmin})
	signed, err := token.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	handler := Auth(testSecret)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	handler := Auth(testSecret)(RequireRole(RoleAdmin)(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, RoleKasir))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, RoleAdmin))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireDeviceID(t *testing.T) {
	handler := RequireDeviceID(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/pull", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/sync/pull", nil)
	req.Header.Set("X-Device-Id", "kasir-tablet-1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "kasir-tablet-1", data["device"])
}

func TestWriteErrEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErr(rec, domain.StockInsufficient([]domain.Shortage{
		{ProductID: "p-1", Location: "loc-1", Uom: "gram", Need: 60000, Have: 50000},
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		OK    bool `json:"ok"`
		Error struct {
			Code    string            `json:"code"`
			Details []domain.Shortage `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.OK)
	assert.Equal(t, domain.CodeStockInsufficient, body.Error.Code)
	require.Len(t, body.Error.Details, 1)
	assert.InDelta(t, 60000, body.Error.Details[0].Need, 1e-9)
}

func TestRecovererWrapsPanic(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	handler := Recoverer(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ok"])
}
