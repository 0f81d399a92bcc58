package extraction

import (
	"context"
	"errors"

	"github.com/chromacloset/chromacloset/internal/imaging"
)

// Mode selects what the external model is asked to extract.
type Mode string

const (
	// GarmentDetection enumerates every distinct garment/accessory in the
	// image, each with a normalized bounding box.
	GarmentDetection Mode = "garment-detection"
	// TagDecode reads a single structured item record from a product tag
	// or scannable code. No spatial localization; the source is verified,
	// so confidence is pinned to 1.0.
	TagDecode Mode = "tag-decode"
)

// ImagingMode maps the extraction mode to the preprocessing dimension cap.
// Spatial grounding benefits from more pixels.
func (m Mode) ImagingMode() imaging.Mode {
	if m == GarmentDetection {
		return imaging.ModeSpatial
	}
	return imaging.ModeGeneral
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == GarmentDetection || m == TagDecode
}

// ErrUnavailable indicates a network or service failure talking to the
// external model. The scan attempt is abandoned; nothing is committed.
var ErrUnavailable = errors.New("extraction service unavailable")

// Box is a normalized bounding rectangle on a 0-1000 scale.
type Box struct {
	YMin int `json:"ymin"`
	XMin int `json:"xmin"`
	YMax int `json:"ymax"`
	XMax int `json:"xmax"`
}

// Valid requires a non-degenerate rectangle.
func (b Box) Valid() bool {
	return b.XMin < b.XMax && b.YMin < b.YMax
}

// Item is one extracted garment record. Every field is populated: the
// parser applies deterministic defaults for anything the model omitted,
// so downstream code never observes missing required fields.
type Item struct {
	Category         string
	Subcategory      string
	Brand            string
	DominantColorHex string
	ColorFamily      string
	ColorName        string
	PatternType      string
	Confidence       float64
	Box              *Box
}

// Result is the outcome of one extraction call. An empty Items slice means
// "nothing detected" and is a valid outcome, not an error. Warning carries
// a non-fatal message when the service response was malformed.
type Result struct {
	Items   []Item
	Warning string
}

// Extractor is the boundary to the external multimodal model.
type Extractor interface {
	// Extract analyzes an encoded image and returns structured item
	// records for the given mode.
	Extract(ctx context.Context, img imaging.Encoded, mode Mode) (Result, error)
	// Close releases the underlying client.
	Close() error
}
