package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"strings"

	"github.com/gen2brain/heic"
	"golang.org/x/image/draw"
)

// Mode selects the dimension cap applied before upload. Spatial detection
// benefits from extra pixels, so it gets a larger cap.
type Mode int

const (
	ModeGeneral Mode = iota
	ModeSpatial
)

const (
	// MaxDimGeneral caps both dimensions for tag scans and general capture.
	MaxDimGeneral = 1024
	// MaxDimSpatial caps both dimensions when bounding boxes are requested.
	MaxDimSpatial = 1200

	// jpegQuality bounds the payload size of the re-encoded image.
	jpegQuality = 82
)

// ErrDecode indicates the source image could not be decoded. The scan must
// be aborted and retried with a different source.
var ErrDecode = errors.New("image decode failed")

// Encoded is a compressed image ready for network transport.
type Encoded struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Cap returns the dimension cap for the mode.
func (m Mode) Cap() int {
	if m == ModeSpatial {
		return MaxDimSpatial
	}
	return MaxDimGeneral
}

// Prepare decodes a raster image, downscales it so that neither dimension
// exceeds the mode's cap (never upscaling), and re-encodes it as JPEG.
// It is a pure transformation with no side effects.
func Prepare(data []byte, contentType string, mode Mode) (Encoded, error) {
	img, err := decode(data, contentType)
	if err != nil {
		return Encoded{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	targetW, targetH := fitWithin(width, height, mode.Cap())
	if targetW != width || targetH != height {
		scaled := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)
		img = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Encoded{}, fmt.Errorf("encoding jpeg: %w", err)
	}

	return Encoded{
		Data:     buf.Bytes(),
		MIMEType: "image/jpeg",
		Width:    targetW,
		Height:   targetH,
	}, nil
}

// fitWithin computes the largest dimensions preserving aspect ratio such
// that neither exceeds max. Images already within the cap are untouched.
func fitWithin(width, height, max int) (int, int) {
	if width <= max && height <= max {
		return width, height
	}
	if width >= height {
		scaled := height * max / width
		if scaled < 1 {
			scaled = 1
		}
		return max, scaled
	}
	scaled := width * max / height
	if scaled < 1 {
		scaled = 1
	}
	return scaled, max
}

// decode handles the standard raster formats plus HEIC/HEIF, which phone
// cameras produce but Go's image package does not register.
func decode(data []byte, contentType string) (image.Image, error) {
	if isHEICFormat(data) || isHEICMimeType(contentType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEICFormat checks the ftyp box brands HEIC containers start with.
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format.
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return mimeType == "image/heic" || mimeType == "image/heif" ||
		strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// NormalizeContentType maps a possibly-empty upload content type or file
// extension to a MIME type the decoder understands.
func NormalizeContentType(contentType, filename string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".heic"):
		return "image/heic"
	case strings.HasSuffix(lower, ".heif"):
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}
