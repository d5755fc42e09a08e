package web

import (
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-plantid/pkg/camera"
	"github.com/teslashibe/go-plantid/pkg/photo"
)

// StreamInfo describes a live capture session.
type StreamInfo struct {
	ID        string            `json:"id"`
	Facing    camera.Facing     `json:"facing"`
	Device    camera.DeviceInfo `json:"device"`
	StartedAt time.Time         `json:"startedAt"`
	Frames    int64             `json:"frames"`
}

func streamInfo(s *camera.Stream) StreamInfo {
	return StreamInfo{
		ID:        s.ID(),
		Facing:    s.Facing(),
		Device:    s.Device(),
		StartedAt: s.StartedAt(),
		Frames:    s.Frames(),
	}
}

// StartRequest is the optional body of POST /api/camera/start.
type StartRequest struct {
	Facing string `json:"facing"`
}

// ConfigRequest is the body of PUT /api/camera/config. Preset wins over
// explicit fields.
type ConfigRequest struct {
	Preset string `json:"preset,omitempty"`
	camera.Config
}

// ConfigResponse reports the capture config and available presets.
type ConfigResponse struct {
	Config  camera.Config `json:"config"`
	Presets []string      `json:"presets"`
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	cam := s.studio.Camera()
	return c.JSON(fiber.Map{
		"status":     "ok",
		"camera":     cam.State(),
		"permission": cam.Permission(),
	})
}

// handleState returns the controller state
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.studio.Snapshot())
}

// handleReset clears image, record, error and camera
func (s *Server) handleReset(c *fiber.Ctx) error {
	if err := s.studio.Reset(); err != nil {
		s.logger.Warn("reset: camera release failed", "error", err)
	}
	return c.JSON(s.studio.Snapshot())
}

// handleUpload accepts a multipart "image" file, or the raw body as image
// bytes or a data URL.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	data, err := uploadBody(c)
	if err != nil {
		return err
	}
	if _, err := s.studio.Upload(data); err != nil {
		return err
	}
	return c.JSON(s.studio.Snapshot())
}

func uploadBody(c *fiber.Ctx) ([]byte, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, badRequest("multipart field \"image\" is required")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, photo.MaxSize+1))
	}
	return c.Body(), nil
}

// handleGetImage returns the held image bytes
func (s *Server) handleGetImage(c *fiber.Ctx) error {
	img := s.studio.Image()
	if img == nil {
		return fiber.NewError(fiber.StatusNotFound, "no image")
	}
	c.Set(fiber.HeaderContentType, img.MIMEType())
	return c.Send(img.Bytes())
}

// handleIdentify identifies the held image
func (s *Server) handleIdentify(c *fiber.Ctx) error {
	rec, err := s.studio.Identify(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (s *Server) handleQueryPermission(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"permission": s.studio.QueryPermission(c.UserContext())})
}

func (s *Server) handleRequestPermission(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"permission": s.studio.RequestPermission(c.UserContext())})
}

// handleStart opens the camera. Facing comes from the JSON body or the
// "facing" query parameter; empty uses the current preference.
func (s *Server) handleStart(c *fiber.Ctx) error {
	var req StartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest("invalid request body")
		}
	}
	if req.Facing == "" {
		req.Facing = c.Query("facing")
	}

	var facing camera.Facing
	if req.Facing != "" {
		f, err := camera.ParseFacing(req.Facing)
		if err != nil {
			return badRequest(err.Error())
		}
		facing = f
	}

	st, err := s.studio.OpenCamera(c.UserContext(), facing)
	if err != nil {
		return err
	}
	return c.JSON(streamInfo(st))
}

func (s *Server) handleSwitch(c *fiber.Ctx) error {
	st, err := s.studio.SwitchCamera(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(streamInfo(st))
}

// handleCapture snapshots the live stream and closes the camera
func (s *Server) handleCapture(c *fiber.Ctx) error {
	if _, err := s.studio.Capture(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(s.studio.Snapshot())
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.studio.CloseCamera(); err != nil {
		return err
	}
	return c.JSON(s.studio.Snapshot())
}

func (s *Server) handleDevices(c *fiber.Ctx) error {
	devices, err := s.studio.Camera().Devices(c.UserContext())
	if err != nil {
		return err
	}
	if devices == nil {
		devices = []camera.DeviceInfo{}
	}
	return c.JSON(devices)
}

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(ConfigResponse{
		Config:  s.studio.Camera().Config(),
		Presets: camera.PresetNames(),
	})
}

// handleSetConfig applies a preset or explicit capture settings from the
// next camera start
func (s *Server) handleSetConfig(c *fiber.Ctx) error {
	var req ConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}

	cam := s.studio.Camera()
	var err error
	if req.Preset != "" {
		err = cam.ApplyPreset(req.Preset)
	} else {
		err = cam.SetConfig(req.Config)
	}
	if err != nil {
		return badRequest(err.Error())
	}
	return s.handleGetConfig(c)
}
