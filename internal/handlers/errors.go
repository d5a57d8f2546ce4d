package handlers

import (
	"errors"
	"net/http"

	"rsvp-api/internal/services"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Message string      `json:"message"`
	Error   string      `json:"error"`
	Detail  interface{} `json:"detail"`
}

// SuccessResponse is the body of a successful create or update
type SuccessResponse struct {
	Message        string `json:"message"`
	ConfirmationID string `json:"confirmationId"`
}

// Response messages
const (
	MessageCreated = "RSVP recorded successfully"
	MessageUpdated = "RSVP updated successfully"
)

var statusByKind = map[services.ErrorKind]int{
	services.KindBadRequest:         http.StatusBadRequest,
	services.KindValidationFailed:   http.StatusBadRequest,
	services.KindConflict:           http.StatusConflict,
	services.KindNotFound:           http.StatusNotFound,
	services.KindConfigurationError: http.StatusInternalServerError,
	services.KindStoreError:         http.StatusInternalServerError,
	services.KindTimeout:            http.StatusGatewayTimeout,
}

// StatusFor returns the HTTP status for an error kind
func StatusFor(kind services.ErrorKind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// errorResponseFor converts any error into the response body. Errors from
// outside the service layer keep their message out of the body.
func errorResponseFor(err error) (int, ErrorResponse) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		svcErr = services.NewError(services.KindOf(err), "Error processing RSVP", nil, err)
	}

	detail := svcErr.Detail
	if detail == nil {
		detail = map[string]interface{}{}
	}

	return StatusFor(svcErr.Kind), ErrorResponse{
		Message: svcErr.Message,
		Error:   string(svcErr.Kind),
		Detail:  detail,
	}
}
