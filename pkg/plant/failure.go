package plant

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Reason classifies an identification failure.
type Reason string

const (
	ReasonNetwork      Reason = "NETWORK"
	ReasonModel        Reason = "MODEL_ERROR"
	ReasonEmpty        Reason = "EMPTY_RESPONSE"
	ReasonTimeout      Reason = "TIMEOUT"
	ReasonCanceled     Reason = "CANCELED"
	ReasonConfig       Reason = "CONFIG_ERROR"
	ReasonInvalidImage Reason = "INVALID_IMAGE"
)

var (
	// ErrNoAPIKey is returned when the model API key is missing.
	ErrNoAPIKey = errors.New("plant: GOOGLE_API_KEY not set")

	// ErrEmptyResponse is returned when the model replied without text.
	ErrEmptyResponse = errors.New("plant: empty model response")

	// ErrNoImage is returned when there is no image to identify.
	ErrNoImage = errors.New("plant: no image")
)

// APIError is a non-2xx reply from the model API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the error reason, if provided.
	Code string

	// Provider identifies which model API returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: API error %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable returns true for rate limits and server errors.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// Failure is the typed error returned by Identifier.Identify.
type Failure struct {
	Reason  Reason
	Message string
	Err     error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("plant [%s]: %s", f.Reason, f.Message)
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// ReasonOf returns the failure reason of err, or "" if err is not a Failure.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ""
}

func newFailure(reason Reason, err error) *Failure {
	return &Failure{
		Reason:  reason,
		Message: "Failed to identify plant: " + err.Error(),
		Err:     err,
	}
}

// classify maps a model call error to a Failure.
func classify(err error) *Failure {
	var apiErr *APIError
	var netErr net.Error

	switch {
	case errors.Is(err, ErrNoAPIKey):
		return newFailure(ReasonConfig, err)
	case errors.Is(err, context.DeadlineExceeded):
		return newFailure(ReasonTimeout, err)
	case errors.Is(err, context.Canceled):
		return newFailure(ReasonCanceled, err)
	case errors.As(err, &apiErr):
		f := newFailure(ReasonModel, err)
		if apiErr.Message != "" {
			f.Message = "Failed to identify plant: " + apiErr.Message
		}
		return f
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return newFailure(ReasonTimeout, err)
		}
		return newFailure(ReasonNetwork, err)
	default:
		return newFailure(ReasonModel, err)
	}
}
