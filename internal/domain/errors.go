package domain

import "errors"

// Processing failure taxonomy. Stage errors wrap one of these sentinels
// together with the underlying cause, so callers can classify with errors.Is.
var (
	// ErrMissingURL is returned when the event data carries no blob url
	ErrMissingURL = errors.New("event does not contain url")

	// ErrUnresolved is returned when neither the subject nor the url yield a container/blob
	ErrUnresolved = errors.New("could not determine container/blob from event")

	// ErrDownload is returned when the input blob cannot be fetched or decoded
	ErrDownload = errors.New("download failed")

	// ErrTransform is returned when the CSV cannot be parsed or a transform step fails
	ErrTransform = errors.New("transform failed")

	// ErrUpload is returned when the processed blob cannot be written
	ErrUpload = errors.New("upload failed")
)

// APIError represents a standardized API error with HTTP status code
type APIError struct {
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Title
}

// ValidationMessages provides human-readable validation error messages
var ValidationMessages = map[string]string{
	"required": "This field is required",
	"url":      "Must be a valid URL",
	"min":      "Below minimum length",
	"dive":     "Contains an invalid element",
}

// GetValidationMessage returns a human-readable message for a validation tag
func GetValidationMessage(tag string) string {
	if msg, ok := ValidationMessages[tag]; ok {
		return msg
	}
	return "Validation failed: " + tag
}

// Common error types for RFC 7807 Problem Details
const (
	ErrorTypeValidation   = "validation_error"
	ErrorTypeBadRequest   = "bad_request"
	ErrorTypeUnauthorized = "unauthorized"
	ErrorTypeNotFound     = "not_found"
	ErrorTypeInternal     = "internal_error"
)
