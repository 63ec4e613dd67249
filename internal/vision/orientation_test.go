package vision

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

// makeJPEG encodes a w×h image with a distinct top-left pixel.
func makeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{0, 0, 255, 255})
		}
	}
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// withEXIFOrientation splices a minimal APP1/Exif segment carrying the given
// orientation right after the SOI marker.
func withEXIFOrientation(t *testing.T, jpg []byte, orientation uint16) []byte {
	t.Helper()
	tiff := make([]byte, 0, 32)
	tiff = append(tiff, 'M', 'M', 0, 42)               // big-endian TIFF header
	tiff = append(tiff, 0, 0, 0, 8)                    // IFD0 offset
	tiff = append(tiff, 0, 1)                          // one entry
	tiff = append(tiff, 0x01, 0x12, 0, 3, 0, 0, 0, 1)  // tag 0x0112, SHORT, count 1
	tiff = append(tiff, byte(orientation>>8), byte(orientation), 0, 0)
	tiff = append(tiff, 0, 0, 0, 0) // next IFD

	payload := append([]byte("Exif\x00\x00"), tiff...)
	segLen := uint16(len(payload) + 2)
	seg := []byte{0xFF, 0xE1}
	seg = binary.BigEndian.AppendUint16(seg, segLen)
	seg = append(seg, payload...)

	out := make([]byte, 0, len(jpg)+len(seg))
	out = append(out, jpg[:2]...)
	out = append(out, seg...)
	out = append(out, jpg[2:]...)
	return out
}

func TestExifOrientation(t *testing.T) {
	jpg := makeJPEG(t, 8, 4)
	if got := exifOrientation(jpg); got != 0 {
		t.Errorf("orientation without EXIF = %d, want 0", got)
	}
	tagged := withEXIFOrientation(t, jpg, 6)
	if got := exifOrientation(tagged); got != 6 {
		t.Errorf("orientation = %d, want 6", got)
	}
}

func TestNormalizeOrientation_Rotates(t *testing.T) {
	jpg := withEXIFOrientation(t, makeJPEG(t, 8, 4), 6)

	out, mimeType := NormalizeOrientation(jpg)
	if mimeType != "image/jpeg" {
		t.Fatalf("mime = %q, want image/jpeg", mimeType)
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	// Orientation 6 means rotate 90° CW: an 8×4 source becomes 4×8.
	b := img.Bounds()
	if b.Dx() != 4 || b.Dy() != 8 {
		t.Errorf("rotated size = %dx%d, want 4x8", b.Dx(), b.Dy())
	}
}

func TestNormalizeOrientation_PassThrough(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		mime string
	}{
		{"untagged jpeg", makeJPEG(t, 4, 4), "image/jpeg"},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n', 0, 0}, "image/png"},
		{"garbage", []byte("not an image"), "application/octet-stream"},
		{"truncated jpeg", []byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, mimeType := NormalizeOrientation(tt.data)
			if mimeType != tt.mime {
				t.Errorf("mime = %q, want %q", mimeType, tt.mime)
			}
			if !bytes.Equal(out, tt.data) {
				t.Error("data must pass through unchanged")
			}
		})
	}
}
