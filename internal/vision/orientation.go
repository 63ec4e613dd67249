package vision

import (
	"bytes"
	"encoding/binary"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// NormalizeOrientation rewrites a JPEG so its pixels match the EXIF
// orientation tag, returning the bytes and their MIME type. Camera photos
// frequently carry rotated pixel data plus an orientation flag that vision
// models ignore. Non-JPEG input, images without an orientation tag, and any
// decode failure return the original bytes unchanged.
func NormalizeOrientation(data []byte) ([]byte, string) {
	mimeType := sniffMIME(data)
	if mimeType != "image/jpeg" {
		return data, mimeType
	}

	orientation := exifOrientation(data)
	if orientation <= 1 || orientation > 8 {
		return data, mimeType
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, mimeType
	}

	bounds := src.Bounds()
	w, h := float64(bounds.Dx()), float64(bounds.Dy())

	var m f64.Aff3
	swapped := false
	switch orientation {
	case 2: // mirror horizontal
		m = f64.Aff3{-1, 0, w, 0, 1, 0}
	case 3: // rotate 180
		m = f64.Aff3{-1, 0, w, 0, -1, h}
	case 4: // mirror vertical
		m = f64.Aff3{1, 0, 0, 0, -1, h}
	case 5: // transpose
		m = f64.Aff3{0, 1, 0, 1, 0, 0}
		swapped = true
	case 6: // rotate 90 CW
		m = f64.Aff3{0, -1, h, 1, 0, 0}
		swapped = true
	case 7: // transverse
		m = f64.Aff3{0, -1, h, -1, 0, w}
		swapped = true
	case 8: // rotate 270 CW
		m = f64.Aff3{0, 1, 0, -1, 0, w}
		swapped = true
	}

	dw, dh := bounds.Dx(), bounds.Dy()
	if swapped {
		dw, dh = dh, dw
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.NearestNeighbor.Transform(dst, m, src, bounds, draw.Src, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 92}); err != nil {
		return data, mimeType
	}
	return out.Bytes(), mimeType
}

func sniffMIME(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}):
		return "image/png"
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// exifOrientation reads the EXIF orientation tag (0x0112) from a JPEG APP1
// segment. Returns 0 when absent or malformed.
func exifOrientation(data []byte) int {
	// Walk JPEG segments looking for APP1/Exif.
	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			return 0
		}
		marker := data[i+1]
		if marker == 0xDA { // start of scan, no EXIF past here
			return 0
		}
		segLen := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		if segLen < 2 || i+2+segLen > len(data) {
			return 0
		}
		if marker == 0xE1 {
			return parseTIFFOrientation(data[i+4 : i+2+segLen])
		}
		i += 2 + segLen
	}
	return 0
}

func parseTIFFOrientation(seg []byte) int {
	if len(seg) < 14 || !bytes.Equal(seg[:6], []byte("Exif\x00\x00")) {
		return 0
	}
	tiff := seg[6:]

	var order binary.ByteOrder
	switch {
	case tiff[0] == 'I' && tiff[1] == 'I':
		order = binary.LittleEndian
	case tiff[0] == 'M' && tiff[1] == 'M':
		order = binary.BigEndian
	default:
		return 0
	}

	ifdOffset := order.Uint32(tiff[4:8])
	if int(ifdOffset)+2 > len(tiff) {
		return 0
	}
	count := int(order.Uint16(tiff[ifdOffset : ifdOffset+2]))
	entries := tiff[ifdOffset+2:]
	for i := 0; i < count && (i+1)*12 <= len(entries); i++ {
		entry := entries[i*12 : (i+1)*12]
		if order.Uint16(entry[0:2]) == 0x0112 {
			return int(order.Uint16(entry[8:10]))
		}
	}
	return 0
}
