package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-plantid/pkg/camera"
	"github.com/teslashibe/go-plantid/pkg/hub"
	"github.com/teslashibe/go-plantid/pkg/plant"
	"github.com/teslashibe/go-plantid/pkg/studio"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// StatusFor maps a domain error to an HTTP status code.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if errors.Is(err, studio.ErrSuperseded) {
		return fiber.StatusConflict
	}

	switch plant.ReasonOf(err) {
	case plant.ReasonInvalidImage:
		return fiber.StatusBadRequest
	case plant.ReasonConfig:
		return fiber.StatusInternalServerError
	case plant.ReasonTimeout:
		return fiber.StatusGatewayTimeout
	case plant.ReasonCanceled:
		return fiber.StatusConflict
	case plant.ReasonNetwork, plant.ReasonModel, plant.ReasonEmpty:
		return fiber.StatusBadGateway
	}

	switch {
	case errors.Is(err, camera.ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, camera.ErrDeviceUnavailable), errors.Is(err, camera.ErrStreamReleased):
		return fiber.StatusConflict
	case errors.Is(err, camera.ErrFrameUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, camera.ErrUnsupported):
		return fiber.StatusNotImplemented
	}
	return fiber.StatusInternalServerError
}

// handleError renders err as an ErrorResponse.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := StatusFor(err)

	resp := ErrorResponse{Error: studio.Message(err), Reason: studio.Reason(err)}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		resp = ErrorResponse{Error: fe.Message}
	} else if errors.Is(err, studio.ErrSuperseded) {
		resp = ErrorResponse{Error: "Identification was replaced by a newer request.", Reason: "SUPERSEDED"}
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.Warn("request failed", "path", c.Path(), "status", code, "error", err)
	}
	return c.Status(code).JSON(resp)
}

// badRequest wraps a client input error.
func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}

func jsonMessage(v any) (hub.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return hub.Message{}, err
	}
	return hub.NewJSONMessage(data), nil
}
