// Package photo holds captured still images.
//
// An Image is immutable: the bytes handed to New are copied and every
// accessor returns a copy. Images come from a user upload or a camera
// frame and carry no further identity.
package photo

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"net/http"
	"strings"
	"time"

	_ "golang.org/x/image/webp" // register decoder
)

// MaxSize is the largest accepted encoded image.
const MaxSize = 20 << 20

// Source identifies where an image came from.
type Source string

const (
	SourceUpload Source = "upload"
	SourceCamera Source = "camera"
)

var (
	// ErrEmpty is returned for a zero-length payload.
	ErrEmpty = errors.New("photo: empty image")

	// ErrTooLarge is returned when the payload exceeds MaxSize.
	ErrTooLarge = errors.New("photo: image too large")

	// ErrUnsupported is returned when the payload is not a decodable image.
	ErrUnsupported = errors.New("photo: unsupported image format")
)

// Image is an encoded still.
type Image struct {
	data       []byte
	mimeType   string
	source     Source
	width      int
	height     int
	capturedAt time.Time
}

// FromUpload validates user-supplied bytes and returns an Image. A data URL
// ("data:image/jpeg;base64,...") is accepted and decoded first.
func FromUpload(data []byte) (*Image, error) {
	if b, ok, err := decodeDataURL(data); ok {
		if err != nil {
			return nil, err
		}
		data = b
	}
	return New(data, SourceUpload)
}

// FromFrame wraps an encoded camera frame.
func FromFrame(data []byte) (*Image, error) {
	return New(data, SourceCamera)
}

// New validates data by decoding its header and returns an Image.
func New(data []byte, source Source) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	return &Image{
		data:       bytes.Clone(data),
		mimeType:   mimeFor(format, data),
		source:     source,
		width:      cfg.Width,
		height:     cfg.Height,
		capturedAt: time.Now(),
	}, nil
}

// Bytes returns a copy of the encoded image.
func (i *Image) Bytes() []byte { return bytes.Clone(i.data) }

// Len returns the encoded size in bytes.
func (i *Image) Len() int { return len(i.data) }

// MIMEType returns the image media type, e.g. "image/jpeg".
func (i *Image) MIMEType() string { return i.mimeType }

// Source reports whether the image was uploaded or captured.
func (i *Image) Source() Source { return i.source }

// Width returns the pixel width.
func (i *Image) Width() int { return i.width }

// Height returns the pixel height.
func (i *Image) Height() int { return i.height }

// CapturedAt returns when the image was accepted.
func (i *Image) CapturedAt() time.Time { return i.capturedAt }

// Base64 returns the standard base64 encoding of the image bytes.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.data)
}

// DataURL returns the image as a data URL.
func (i *Image) DataURL() string {
	return "data:" + i.mimeType + ";base64," + i.Base64()
}

func mimeFor(format string, data []byte) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	}
	return http.DetectContentType(data)
}

// decodeDataURL reports ok=false when data is not a data URL.
func decodeDataURL(data []byte) ([]byte, bool, error) {
	const prefix = "data:"
	if !bytes.HasPrefix(data, []byte(prefix)) {
		return nil, false, nil
	}
	meta, payload, found := strings.Cut(string(data[len(prefix):]), ",")
	if !found || !strings.HasSuffix(meta, ";base64") {
		return nil, true, fmt.Errorf("%w: malformed data URL", ErrUnsupported)
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, true, fmt.Errorf("%w: data URL: %v", ErrUnsupported, err)
	}
	return b, true, nil
}
