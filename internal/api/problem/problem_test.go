package problem

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/jibri/internal/log"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteUsesContextRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/jibri/api/v1.0/startService", nil)
	req = req.WithContext(log.ContextWithRequestID(req.Context(), "req-1"))
	w := httptest.NewRecorder()

	Write(w, req, http.StatusConflict, "session/busy", "Conflict", "busy", "a session is already active", map[string]any{
		"sessionId": "abc",
		"status":    999,
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))

	body := decode(t, w)
	assert.Equal(t, "session/busy", body["type"])
	assert.Equal(t, "Conflict", body["title"])
	assert.Equal(t, "busy", body["code"])
	assert.Equal(t, float64(http.StatusConflict), body["status"], "reserved keys are not overridden")
	assert.Equal(t, "a session is already active", body["detail"])
	assert.Equal(t, "/jibri/api/v1.0/startService", body["instance"])
	assert.Equal(t, "req-1", body[JSONKeyRequestID])
	assert.Equal(t, "abc", body["sessionId"])
}

func TestWriteFallsBackToResponseHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	w.Header().Set(HeaderRequestID, "hdr-7")

	Write(w, req, http.StatusBadRequest, "request/invalid", "Bad Request", "invalid_request", "", nil)

	body := decode(t, w)
	assert.Equal(t, "hdr-7", body[JSONKeyRequestID])
	_, hasDetail := body["detail"]
	assert.False(t, hasDetail)
}

func TestWriteWithoutRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	Write(w, httptest.NewRequest(http.MethodGet, "/x", nil), http.StatusServiceUnavailable, "system/unavailable", "Service Unavailable", "unavailable", "", nil)

	assert.Equal(t, fallbackRequestID, w.Header().Get(HeaderRequestID))
	assert.Equal(t, fallbackRequestID, decode(t, w)[JSONKeyRequestID])
}
