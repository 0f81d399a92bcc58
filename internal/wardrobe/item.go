package wardrobe

import (
	"time"

	"github.com/chromacloset/chromacloset/internal/extraction"
)

// Category is the coarse garment category.
type Category string

const (
	CategoryTop         Category = "top"
	CategoryBottom      Category = "bottom"
	CategoryOuterwear   Category = "outerwear"
	CategoryShoes       Category = "shoes"
	CategoryAccessories Category = "accessories"
)

// PatternType classifies the garment's pattern.
type PatternType string

const (
	PatternSolid   PatternType = "solid"
	PatternStriped PatternType = "striped"
	PatternPlaid   PatternType = "plaid"
	PatternFloral  PatternType = "floral"
	PatternOther   PatternType = "other"
)

// BoundingBox localizes a detected item within its source image, on a
// normalized 0-1000 scale.
type BoundingBox struct {
	YMin int `json:"ymin"`
	XMin int `json:"xmin"`
	YMax int `json:"ymax"`
	XMax int `json:"xmax"`
}

// Valid requires xmin<xmax and ymin<ymax.
func (b BoundingBox) Valid() bool {
	return b.XMin < b.XMax && b.YMin < b.YMax
}

// Item represents one cataloged garment. Items are created only as the
// output of a successful extraction and are immutable once committed.
type Item struct {
	ID               string       `json:"id"`
	Category         Category     `json:"category"`
	Subcategory      string       `json:"subcategory"`
	Brand            string       `json:"brand"`
	ImageRef         string       `json:"image_ref"`
	DominantColorHex string       `json:"dominant_color_hex"`
	ColorFamily      string       `json:"color_family"`
	ColorName        string       `json:"color_name"`
	PatternType      PatternType  `json:"pattern_type"`
	Confidence       float64      `json:"confidence"`
	CreatedAt        time.Time    `json:"created_at"`
	Box              *BoundingBox `json:"box,omitempty"`
}

// Scan groups the items produced by one scan event. The timestamp (unix
// milliseconds) is the group key for history display and group deletion.
type Scan struct {
	Timestamp int64    `json:"timestamp"`
	ItemIDs   []string `json:"item_ids"`
	ImageRef  string   `json:"image_ref,omitempty"`
}

// itemFromExtraction builds a committed Item from an extracted candidate.
// The extraction boundary already defaulted every field, so this is a
// straight mapping plus identity and provenance.
func itemFromExtraction(ex extraction.Item, id, imageRef string, createdAt time.Time) *Item {
	item := &Item{
		ID:               id,
		Category:         Category(ex.Category),
		Subcategory:      ex.Subcategory,
		Brand:            ex.Brand,
		ImageRef:         imageRef,
		DominantColorHex: ex.DominantColorHex,
		ColorFamily:      ex.ColorFamily,
		ColorName:        ex.ColorName,
		PatternType:      PatternType(ex.PatternType),
		Confidence:       ex.Confidence,
		CreatedAt:        createdAt,
	}
	if ex.Box != nil {
		item.Box = &BoundingBox{
			YMin: ex.Box.YMin,
			XMin: ex.Box.XMin,
			YMax: ex.Box.YMax,
			XMax: ex.Box.XMax,
		}
	}
	return item
}
