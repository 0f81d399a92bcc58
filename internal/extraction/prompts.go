package extraction

// garmentDetectionPrompt is shared by all model providers for closet scans.
const garmentDetectionPrompt = `You are analyzing a wardrobe photo. List every distinct clothing item or accessory visible in the image.

For each item report:

1. **category**: one of: top, bottom, outerwear, shoes, accessories
2. **subcategory**: the specific type, like "t-shirt", "jeans", "sneakers"
3. **brand**: the brand name if visible on the item, otherwise "Unknown"
4. **dominantColorHex**: an accurate HEX color code for the dominant color (e.g. "#1e3a5f")
5. **colorName**: a common descriptive name for the color, like "Navy", "Emerald", "Beige"
6. **colorFamily**: the broad color family: Red, Orange, Yellow, Green, Blue, Purple, Pink, Brown, Neutral
7. **patternType**: one of: solid, striped, plaid, floral, other
8. **confidence**: your confidence from 0 to 1 that the item is identified correctly
9. **box_2d**: the bounding box of the item as [ymin, xmin, ymax, xmax], normalized to a 0-1000 scale

Return ONLY a valid JSON array in this exact format:
[
  {
    "category": "top",
    "subcategory": "t-shirt",
    "brand": "Unknown",
    "dominantColorHex": "#1e3a5f",
    "colorName": "Navy",
    "colorFamily": "Blue",
    "patternType": "solid",
    "confidence": 0.95,
    "box_2d": [120, 80, 540, 460]
  }
]

Important:
- Be precise with colors
- Return an empty array [] if no clothing items are visible
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// tagDecodePrompt asks for a single record from a product tag or label.
const tagDecodePrompt = `You are reading a clothing product tag, care label, or scannable product code. Extract the single item the tag describes.

Report:

1. **category**: one of: top, bottom, outerwear, shoes, accessories
2. **subcategory**: the specific type printed or implied by the tag, like "t-shirt", "jeans", "sneakers"
3. **brand**: the brand name printed on the tag, otherwise "Unknown"
4. **dominantColorHex**: an accurate HEX color code for the garment color named on the tag
5. **colorName**: the color name printed on the tag, like "Navy", "Emerald", "Beige"
6. **colorFamily**: the broad color family: Red, Orange, Yellow, Green, Blue, Purple, Pink, Brown, Neutral
7. **patternType**: one of: solid, striped, plaid, floral, other

Return ONLY a single valid JSON object in this exact format:
{
  "category": "top",
  "subcategory": "t-shirt",
  "brand": "Uniqlo",
  "dominantColorHex": "#1e3a5f",
  "colorName": "Navy",
  "colorFamily": "Blue",
  "patternType": "solid"
}

Important:
- Do not report a bounding box
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// promptFor returns the provider-independent prompt for a mode.
func promptFor(mode Mode) string {
	if mode == TagDecode {
		return tagDecodePrompt
	}
	return garmentDetectionPrompt
}
