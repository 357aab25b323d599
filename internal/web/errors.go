package web

// errors.go provides unified error response handling for the API.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err) or respondErrorStatus for request errors
//  3. Error is mapped via core.MapError to a user-friendly message
//  4. Technical error is logged with the request ID for correlation
//  5. The JSON ErrorResponse is written

import (
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError writes err with the status core.HTTPStatus picks for it.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondErrorStatus(w, r, err, core.HTTPStatus(err))
}

// respondErrorStatus logs the technical error server-side and returns the
// mapped user message with statusCode.
func (s *Server) respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	level := slog.LevelWarn
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	// Unmapped errors may carry internal detail
	errText := userMsg.Message
	if core.IsUserFacing(err) {
		errText = err.Error()
	}
	writeJSON(w, statusCode, ErrorResponse{
		Error:   errText,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// badRequest writes a 400 for a malformed request.
func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	logging.FromContext(r.Context()).Warn("bad request",
		"path", r.URL.Path,
		"method", r.Method,
		"reason", msg,
	)
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   msg,
		Message: "The request is invalid",
		Action:  "Check the request parameters",
		Code:    "REQ001",
	})
}
