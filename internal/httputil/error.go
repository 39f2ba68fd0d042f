package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/AdamBeresnev/bot-arena/internal/apperr"
)

type errorBody struct {
	Error string      `json:"error"`
	Code  apperr.Code `json:"code,omitempty"`
}

func InternalServerError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal Server Error"})
}

func BadRequest(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("bad request", "message", msg, "error", err)
	} else {
		slog.Warn("bad request", "message", msg)
	}
	WriteJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func NotFound(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("not found", "message", msg, "error", err)
	} else {
		slog.Warn("not found", "message", msg)
	}
	WriteJSON(w, http.StatusNotFound, errorBody{Error: msg, Code: apperr.CodeNotFound})
}

// StatusFor maps an error's apperr code to an HTTP status.
func StatusFor(err error) int {
	switch apperr.CodeOf(err) {
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeInvalidState, apperr.CodeAlreadyRegistered, apperr.CodeFull:
		return http.StatusConflict
	case apperr.CodeConfig:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err with the status its code maps to. Codes without a client
// meaning are logged and hidden behind a generic 500.
func Error(w http.ResponseWriter, msg string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		InternalServerError(w, msg, err)
		return
	}

	slog.Warn(msg, "status", status, "error", err)
	var appErr *apperr.Error
	body := errorBody{Error: err.Error()}
	if errors.As(err, &appErr) {
		body.Code = appErr.Code
	}
	WriteJSON(w, status, body)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// DecodeJSON reads a JSON request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
