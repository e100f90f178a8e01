package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Client-visible messages.
const (
	MsgInvalidQuery   = "Invalid query"
	MsgNoPeople       = "No data found"
	MsgNoPlanets      = "No planets found"
	MsgSomethingWrong = "Something went wrong"
)

// HTTPError is a failure that maps to a specific status code and message.
// Err is the internal cause; it is logged, never sent to the client.
type HTTPError struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

var (
	errInvalidQuery = &HTTPError{Code: http.StatusBadRequest, Message: MsgInvalidQuery}
	errNoPeople     = &HTTPError{Code: http.StatusNotFound, Message: MsgNoPeople}
	errNoPlanets    = &HTTPError{Code: http.StatusNotFound, Message: MsgNoPlanets}
)

// internalError hides cause behind the generic 500 message.
func internalError(cause error) *HTTPError {
	return &HTTPError{Code: http.StatusInternalServerError, Message: MsgSomethingWrong, Err: cause}
}

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

// writeError is the single place where failures become responses. An
// *HTTPError answers with its own code and {"error": message}; anything else
// answers 500 {"message": "Something went wrong"}.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := s.logger.With().
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Logger()

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		logger.Error().Err(err).Msg("Unhandled request failure")
		writeJSON(w, http.StatusInternalServerError, messageBody{Message: MsgSomethingWrong})
		return
	}

	if httpErr.Code >= http.StatusInternalServerError {
		logger.Error().Err(httpErr.Err).Int("status", httpErr.Code).Msg("Request failed")
	} else {
		logger.Debug().Int("status", httpErr.Code).Str("reason", httpErr.Message).Msg("Request rejected")
	}

	writeJSON(w, httpErr.Code, errorBody{Error: httpErr.Message})
}
