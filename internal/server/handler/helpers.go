// Package handler holds the HTTP handlers of the search API.
package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorBody is the shape of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v before touching the response so an encoding failure
// still yields a clean 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"could not encode response"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func logHandler(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(slog.String("component", "http"), slog.String("handler", name))
}
