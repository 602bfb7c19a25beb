// Package problem writes RFC 7807 problem documents for the control API.
package problem

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/jibri/internal/log"
)

const (
	// HeaderRequestID carries the correlation id on requests and responses.
	HeaderRequestID = "X-Request-ID"
	// JSONKeyRequestID is the body field mirroring HeaderRequestID.
	JSONKeyRequestID = "requestId"
)

// fallbackRequestID marks a response written outside the RequestID middleware.
const fallbackRequestID = "unassigned"

// Write writes an RFC 7807 problem details response.
//
//   - problemType: canonical machine identifier (e.g. "session/busy").
//   - title: short human readable label (e.g. "Conflict").
//   - code: stable machine readable short code (e.g. "busy").
//   - detail: explanation of this specific error, omitted when empty.
//
// Keys in extra that collide with the standard members are dropped.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, code, detail string, extra map[string]any) {
	if r == nil {
		log.L().Error().Str("type", problemType).Int("status", status).Msg("problem.Write called with nil request")
	}

	instance := ""
	reqID := ""
	if r != nil {
		instance = r.URL.EscapedPath()
		reqID = log.RequestIDFromContext(r.Context())
	}
	if reqID == "" {
		reqID = w.Header().Get(HeaderRequestID)
	}
	if reqID == "" {
		reqID = fallbackRequestID
	}

	res := map[string]any{
		"type":           problemType,
		"title":          title,
		"status":         status,
		"code":           code,
		JSONKeyRequestID: reqID,
	}
	if detail != "" {
		res["detail"] = detail
	}
	if instance != "" {
		res["instance"] = instance
	}

	for k, v := range extra {
		switch k {
		case "type", "title", "status", "detail", "instance", "code", JSONKeyRequestID:
			log.L().Warn().Str("key", k).Str("problem_type", problemType).Msg("ignoring reserved key in problem extras")
			continue
		}
		res[k] = v
	}

	w.Header().Set(HeaderRequestID, reqID)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.L().Error().
			Err(err).
			Str("type", problemType).
			Int("status", status).
			Msg("failed to encode problem response")
	}
}
