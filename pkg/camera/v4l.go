package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gocv.io/x/gocv"
	"golang.org/x/sys/unix"
)

// Default locations of the video4linux class and device nodes.
const (
	DefaultSysfsRoot = "/sys/class/video4linux"
	DefaultDevRoot   = "/dev"
)

// V4LHost is a Linux capture host backed by video4linux devices and gocv.
//
// Permission maps to device node access: granted when any capture node is
// readable and writable by this process, denied when nodes exist but none
// are accessible, undetermined when there are no nodes.
type V4LHost struct {
	SysfsRoot string
	DevRoot   string

	// Facings pins device paths to a facing; it overrides name heuristics.
	Facings map[string]Facing

	Logger *slog.Logger
}

// NewV4LHost creates a host on the default sysfs and /dev roots.
func NewV4LHost(facings map[string]Facing, logger *slog.Logger) *V4LHost {
	if logger == nil {
		logger = slog.Default()
	}
	return &V4LHost{
		SysfsRoot: DefaultSysfsRoot,
		DevRoot:   DefaultDevRoot,
		Facings:   facings,
		Logger:    logger.With("component", "camera.v4l"),
	}
}

// QueryPermission checks device node access.
func (h *V4LHost) QueryPermission(ctx context.Context) (PermissionState, error) {
	devices, err := h.Devices(ctx)
	if err != nil {
		return PermissionUndetermined, err
	}
	if len(devices) == 0 {
		return PermissionUndetermined, nil
	}
	for _, d := range devices {
		if accessible(d.Path) {
			return PermissionGranted, nil
		}
	}
	return PermissionDenied, nil
}

// RequestPermission has no interactive prompt on Linux; access is
// governed by group membership, so it reports the current state.
func (h *V4LHost) RequestPermission(ctx context.Context) (PermissionState, error) {
	state, err := h.QueryPermission(ctx)
	if err == nil && state == PermissionDenied {
		h.Logger.Warn("camera nodes not accessible; add the user to the video group")
	}
	return state, err
}

// Devices lists primary capture nodes, sorted by index.
func (h *V4LHost) Devices(ctx context.Context) ([]DeviceInfo, error) {
	entries, err := os.ReadDir(h.SysfsRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", h.SysfsRoot, err)
	}

	var devices []DeviceInfo
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimPrefix(name, "video")); err != nil {
			continue
		}
		// UVC cameras expose a metadata node with index 1 next to the
		// capture node.
		if idx := h.readAttr(name, "index"); idx != "" && idx != "0" {
			continue
		}

		label := h.readAttr(name, "name")
		if label == "" {
			label = name
		}
		path := filepath.Join(h.DevRoot, name)
		devices = append(devices, DeviceInfo{
			ID:     name,
			Label:  label,
			Path:   path,
			Facing: h.facingFor(path, label),
		})
	}

	sort.Slice(devices, func(i, j int) bool {
		return nodeIndex(devices[i].ID) < nodeIndex(devices[j].ID)
	})
	return devices, nil
}

// Open selects a device and opens it with gocv.
func (h *V4LHost) Open(ctx context.Context, c Constraints) (Device, error) {
	devices, err := h.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	info, err := SelectDevice(devices, c)
	if err != nil {
		return nil, err
	}
	if !accessible(info.Path) {
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, info.Path)
	}

	vc, err := gocv.VideoCaptureDevice(nodeIndex(info.ID))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDeviceUnavailable, info.Path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s did not open", ErrDeviceUnavailable, info.Path)
	}

	if c.Width > 0 && c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}
	if c.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(c.Framerate))
	}

	quality := c.Quality
	if quality <= 0 {
		quality = DefaultConfig().Quality
	}

	h.Logger.Debug("opened capture device", "device", info.Path, "label", info.Label)
	return &v4lDevice{info: info, vc: vc, quality: quality}, nil
}

func (h *V4LHost) readAttr(node, attr string) string {
	b, err := os.ReadFile(filepath.Join(h.SysfsRoot, node, attr))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (h *V4LHost) facingFor(path, label string) Facing {
	if f, ok := h.Facings[path]; ok {
		return f
	}
	return guessFacing(label)
}

// guessFacing infers orientation from a device label. Laptop webcams
// ("Integrated Camera", "FaceTime HD") face the user.
func guessFacing(label string) Facing {
	l := strings.ToLower(label)
	for _, kw := range []string{"rear", "back", "environment", "world"} {
		if strings.Contains(l, kw) {
			return FacingRear
		}
	}
	for _, kw := range []string{"front", "user", "facetime", "integrated", "webcam"} {
		if strings.Contains(l, kw) {
			return FacingFront
		}
	}
	return ""
}

func nodeIndex(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "video"))
	if err != nil {
		return -1
	}
	return n
}

func accessible(path string) bool {
	return unix.Access(path, unix.R_OK|unix.W_OK) == nil
}

type v4lDevice struct {
	info    DeviceInfo
	vc      *gocv.VideoCapture
	quality int
}

func (d *v4lDevice) Info() DeviceInfo { return d.info }

// Frame reads the next frame and encodes it as JPEG. A camera that has not
// produced its first frame yet returns an empty Mat.
func (d *v4lDevice) Frame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := d.vc.Read(&mat); !ok || mat.Empty() {
		return nil, fmt.Errorf("%w: no frame from %s", ErrFrameUnavailable, d.info.Path)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{int(gocv.IMWriteJpegQuality), d.quality})
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrFrameUnavailable, err)
	}
	defer buf.Close()

	return bytes.Clone(buf.GetBytes()), nil
}

func (d *v4lDevice) Close() error {
	return d.vc.Close()
}

// Verify V4LHost implements Host at compile time.
var _ Host = (*V4LHost)(nil)
