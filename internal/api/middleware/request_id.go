// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ManuGH/jibri/internal/api/problem"
	"github.com/ManuGH/jibri/internal/log"
)

// maxRequestIDLen bounds client supplied ids before they reach logs.
const maxRequestIDLen = 128

// RequestID adds a unique ID to every request. A sane client supplied id is kept.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(problem.HeaderRequestID)
		if reqID == "" || len(reqID) > maxRequestIDLen || !printable(reqID) {
			reqID = uuid.New().String()
		}
		w.Header().Set(problem.HeaderRequestID, reqID)
		ctx := log.ContextWithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	problem.Write(w, r, status, "system/"+code, http.StatusText(status), code, detail, nil)
}
