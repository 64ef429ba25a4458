package httpx

import (
	"errors"
	"net/http"
)

// API error codes surfaced in the envelope's error field.
const (
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeInvalidParams = "INVALID_PARAMS"
	CodeServerError   = "SERVER_ERROR"
)

// Sentinel errors handlers wrap domain failures with.
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidParams = errors.New("invalid parameters")
)

// Fail sends an error envelope with an explicit status and code.
func Fail(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, Envelope{Success: false, Error: code, Message: message})
}

// RespondError maps wrapped sentinel errors to envelope error responses.
// Anything unrecognized becomes a 500 SERVER_ERROR with no detail leaked.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		Fail(w, http.StatusUnauthorized, CodeUnauthorized, err.Error())
	case errors.Is(err, ErrInvalidParams):
		Fail(w, http.StatusBadRequest, CodeInvalidParams, err.Error())
	default:
		Fail(w, http.StatusInternalServerError, CodeServerError, "internal error")
	}
}
