package extraction

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Deterministic defaults for fields the model omitted. Mandatory so that
// downstream code never observes a missing required field.
const (
	defaultCategory    = "top"
	defaultSubcategory = "unknown"
	defaultBrand       = "Unknown"
	defaultColorHex    = "#000000"
	defaultColorFamily = "Neutral"
	defaultColorName   = "Unknown"
	defaultPattern     = "solid"

	defaultConfidenceDetection = 0.8
	confidenceTagDecode        = 1.0
)

var knownCategories = map[string]bool{
	"top":         true,
	"bottom":      true,
	"outerwear":   true,
	"shoes":       true,
	"accessories": true,
}

var knownPatterns = map[string]bool{
	"solid":   true,
	"striped": true,
	"plaid":   true,
	"floral":  true,
	"other":   true,
}

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// rawItem mirrors the untrusted JSON shape the model returns. Pointer and
// slice fields distinguish "absent" from zero values.
type rawItem struct {
	Category         string   `json:"category"`
	Subcategory      string   `json:"subcategory"`
	Brand            string   `json:"brand"`
	DominantColorHex string   `json:"dominantColorHex"`
	ColorName        string   `json:"colorName"`
	ColorFamily      string   `json:"colorFamily"`
	PatternType      string   `json:"patternType"`
	Confidence       *float64 `json:"confidence"`
	Box2D            []int    `json:"box_2d"`
}

// parseItems turns raw model output into fully-defaulted item records.
// Malformed or non-parseable responses yield an empty result with a
// warning rather than an error; the external service is untrusted.
func parseItems(text string, mode Mode) ([]Item, string) {
	text = stripFences(text)

	raws, warning := decodeRaw(text, mode)
	if warning != "" {
		return []Item{}, warning
	}

	items := make([]Item, 0, len(raws))
	for _, raw := range raws {
		items = append(items, normalize(raw, mode))
	}
	return items, ""
}

// stripFences removes markdown code blocks the model sometimes wraps
// around its JSON despite instructions.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// decodeRaw locates and unmarshals the JSON payload. Garment detection
// responses are arrays, tag decodes are single objects, but either shape
// is accepted for either mode.
func decodeRaw(text string, mode Mode) ([]rawItem, string) {
	arrStart := strings.Index(text, "[")
	objStart := strings.Index(text, "{")

	if arrStart != -1 && (objStart == -1 || arrStart < objStart) {
		end := strings.LastIndex(text, "]")
		if end < arrStart {
			return nil, "model response contained no complete JSON payload"
		}
		var raws []rawItem
		if err := json.Unmarshal([]byte(text[arrStart:end+1]), &raws); err != nil {
			return nil, "model response was not valid JSON"
		}
		return raws, ""
	}

	if objStart != -1 {
		end := strings.LastIndex(text, "}")
		if end < objStart {
			return nil, "model response contained no complete JSON payload"
		}
		var raw rawItem
		if err := json.Unmarshal([]byte(text[objStart:end+1]), &raw); err != nil {
			return nil, "model response was not valid JSON"
		}
		return []rawItem{raw}, ""
	}

	return nil, "model response contained no JSON payload"
}

// normalize applies the deterministic defaults and clamps out-of-range
// values so downstream code only ever sees complete, valid records.
func normalize(raw rawItem, mode Mode) Item {
	item := Item{
		Category:         strings.ToLower(strings.TrimSpace(raw.Category)),
		Subcategory:      strings.TrimSpace(raw.Subcategory),
		Brand:            strings.TrimSpace(raw.Brand),
		DominantColorHex: strings.TrimSpace(raw.DominantColorHex),
		ColorFamily:      strings.TrimSpace(raw.ColorFamily),
		ColorName:        strings.TrimSpace(raw.ColorName),
		PatternType:      strings.ToLower(strings.TrimSpace(raw.PatternType)),
	}

	if !knownCategories[item.Category] {
		item.Category = defaultCategory
	}
	if item.Subcategory == "" {
		item.Subcategory = defaultSubcategory
	}
	if item.Brand == "" {
		item.Brand = defaultBrand
	}
	if !hexColorRe.MatchString(item.DominantColorHex) {
		item.DominantColorHex = defaultColorHex
	}
	if item.ColorFamily == "" {
		item.ColorFamily = defaultColorFamily
	}
	if item.ColorName == "" {
		item.ColorName = defaultColorName
	}
	if !knownPatterns[item.PatternType] {
		item.PatternType = defaultPattern
	}

	switch mode {
	case TagDecode:
		// Tag decodes come from a verified code, not visual inference.
		item.Confidence = confidenceTagDecode
	default:
		if raw.Confidence == nil {
			item.Confidence = defaultConfidenceDetection
		} else {
			item.Confidence = clamp01(*raw.Confidence)
		}
		item.Box = boxFromRaw(raw.Box2D)
	}

	return item
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// boxFromRaw converts a [ymin, xmin, ymax, xmax] quad on the 0-1000 scale.
// Degenerate or out-of-shape boxes are dropped rather than surfaced.
func boxFromRaw(quad []int) *Box {
	if len(quad) != 4 {
		return nil
	}
	box := Box{
		YMin: clamp1000(quad[0]),
		XMin: clamp1000(quad[1]),
		YMax: clamp1000(quad[2]),
		XMax: clamp1000(quad[3]),
	}
	if !box.Valid() {
		return nil
	}
	return &box
}

func clamp1000(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}
