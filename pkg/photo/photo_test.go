package photo

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	img.Set(1, 1, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFromUploadJPEG(t *testing.T) {
	data := testJPEG(t)
	img, err := FromUpload(data)
	if err != nil {
		t.Fatalf("FromUpload failed: %v", err)
	}
	if img.MIMEType() != "image/jpeg" {
		t.Errorf("MIMEType = %q", img.MIMEType())
	}
	if img.Width() != 8 || img.Height() != 6 {
		t.Errorf("size = %dx%d, want 8x6", img.Width(), img.Height())
	}
	if img.Source() != SourceUpload {
		t.Errorf("Source = %q", img.Source())
	}
	if !bytes.Equal(img.Bytes(), data) {
		t.Error("bytes differ from input")
	}
}

func TestImageIsImmutable(t *testing.T) {
	data := testPNG(t)
	img, err := New(data, SourceCamera)
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 0
	got := img.Bytes()
	got[1] = 0
	if img.Bytes()[0] == 0 || img.Bytes()[1] == 0 {
		t.Error("image bytes were mutated through an alias")
	}
	if img.MIMEType() != "image/png" {
		t.Errorf("MIMEType = %q", img.MIMEType())
	}
}

func TestFromUploadDataURL(t *testing.T) {
	data := testJPEG(t)
	url := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)

	img, err := FromUpload([]byte(url))
	if err != nil {
		t.Fatalf("FromUpload(data URL) failed: %v", err)
	}
	if !bytes.Equal(img.Bytes(), data) {
		t.Error("decoded bytes mismatch")
	}
	if img.DataURL() != url {
		t.Error("DataURL should round-trip")
	}
}

func TestFromUploadErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrEmpty},
		{"garbage", []byte("not an image at all"), ErrUnsupported},
		{"bad data url", []byte("data:image/png,plain"), ErrUnsupported},
		{"bad base64", []byte("data:image/png;base64,!!!"), ErrUnsupported},
		{"too large", make([]byte, MaxSize+1), ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromUpload(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
