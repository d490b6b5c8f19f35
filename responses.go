package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrorStatus returns the HTTP status we respond with for the passed in error
func ErrorStatus(err error) int {
	var malformed *MalformedEventError
	var media *MediaDecodeFailedError
	var failed *CommandFailedError
	var maxBytes *http.MaxBytesError
	var invalid *InvalidCommandError

	switch {
	case errors.Is(err, ErrAuthRejected):
		return http.StatusUnauthorized
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &malformed):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredential), errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &failed):
		return http.StatusBadGateway
	case errors.As(err, &media):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// WriteError writes a JSON response for the passed in error, the status depends on the kind of error
func WriteError(ctx context.Context, w http.ResponseWriter, r *http.Request, err error) error {
	status := ErrorStatus(err)
	logrus.WithError(err).WithField("url", r.URL.String()).WithField("resp_status", status).Info("request errored")
	errors := []any{NewErrorData(err.Error())}
	return WriteDataResponse(ctx, w, status, "Error", errors)
}

// WriteWebhookReceived writes the response we send back to the bot backend for an accepted webhook
func WriteWebhookReceived(ctx context.Context, w http.ResponseWriter) error {
	return writeJSONResponse(w, http.StatusOK, &receivedResponse{Status: "success", Received: true})
}

// WriteDataResponse writes a JSON formatted response with the passed in status code, message and data
func WriteDataResponse(ctx context.Context, w http.ResponseWriter, statusCode int, message string, data []any) error {
	return writeJSONResponse(w, statusCode, &dataResponse{message, data})
}

// ErrorData is our response payload for an error
type ErrorData struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewErrorData creates a structured error object for our response
func NewErrorData(err string) ErrorData {
	return ErrorData{Type: "error", Error: err}
}

type receivedResponse struct {
	Status   string `json:"status"`
	Received bool   `json:"received"`
}

type dataResponse struct {
	Message string `json:"message"`
	Data    []any  `json:"data"`
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, response any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		return fmt.Errorf("error writing response: %s", err)
	}
	return nil
}
