// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/jibri/internal/api/problem"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	writeProblemExtra(w, r, status, code, detail, nil)
}

func writeProblemExtra(w http.ResponseWriter, r *http.Request, status int, code, detail string, extra map[string]any) {
	problem.Write(w, r, status, "jibri/"+code, http.StatusText(status), code, detail, extra)
}
