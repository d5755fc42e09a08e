package studio

import (
	"time"

	"github.com/teslashibe/go-plantid/pkg/camera"
	"github.com/teslashibe/go-plantid/pkg/photo"
	"github.com/teslashibe/go-plantid/pkg/plant"
)

// ImageInfo describes the held image without its bytes.
type ImageInfo struct {
	MIMEType   string       `json:"mimeType"`
	Source     photo.Source `json:"source"`
	Width      int          `json:"width"`
	Height     int          `json:"height"`
	Size       int          `json:"size"`
	CapturedAt time.Time    `json:"capturedAt"`
}

// CameraState is the camera portion of State.
type CameraState struct {
	Active     bool                   `json:"active"`
	StreamID   string                 `json:"streamId,omitempty"`
	Facing     camera.Facing          `json:"facing"`
	Device     string                 `json:"device,omitempty"`
	Permission camera.PermissionState `json:"permission"`
	Handheld   bool                   `json:"handheld"`
}

// State is a snapshot of what the presentation layer renders.
type State struct {
	Image      *ImageInfo    `json:"image,omitempty"`
	Record     *plant.Record `json:"record,omitempty"`
	Loading    bool          `json:"loading"`
	Error      string        `json:"error,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Camera     CameraState   `json:"camera"`
	Generation uint64        `json:"generation"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// CanIdentify reports whether an identification may be started.
func (s State) CanIdentify() bool {
	return s.Image != nil && !s.Camera.Active
}

func imageInfo(img *photo.Image) *ImageInfo {
	if img == nil {
		return nil
	}
	return &ImageInfo{
		MIMEType:   img.MIMEType(),
		Source:     img.Source(),
		Width:      img.Width(),
		Height:     img.Height(),
		Size:       img.Len(),
		CapturedAt: img.CapturedAt(),
	}
}
