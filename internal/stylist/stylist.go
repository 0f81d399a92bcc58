// Package stylist shapes requests to the external model for outfit
// curation and wardrobe-gap analysis. The curation intelligence itself is
// the model's; this package only builds manifests and parses responses.
package stylist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ItemSummary is the compact wardrobe manifest sent to the model.
type ItemSummary struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	ColorName   string `json:"colorName"`
	ColorFamily string `json:"colorFamily"`
}

// Outfit is one curated look referencing inventory items by ID.
type Outfit struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	StylistTip  string   `json:"stylistTip"`
	ItemIDs     []string `json:"itemIds"`
	Occasion    string   `json:"occasion"`
	StyleVibe   string   `json:"styleVibe"`
}

// Gap is a suggested missing basic that would round out the wardrobe.
type Gap struct {
	ItemType       string `json:"itemType"`
	SuggestedColor string `json:"suggestedColor"`
	Reasoning      string `json:"reasoning"`
	Priority       string `json:"priority"`
}

// Stylist calls the external model for styling suggestions.
type Stylist struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// New creates a Stylist backed by Gemini.
func New(apiKey string, modelName string) (*Stylist, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Stylist{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// SuggestOutfits curates up to three outfits from the wardrobe manifest.
// Styling is decorative: model failures degrade to an empty list rather
// than failing the caller.
func (s *Stylist) SuggestOutfits(ctx context.Context, items []ItemSummary, occasion, persona, weather string) []Outfit {
	if len(items) < 2 {
		return nil
	}

	manifest, err := json.Marshal(items)
	if err != nil {
		slog.Warn("Failed to marshal wardrobe manifest", "error", err)
		return nil
	}

	weatherContext := ""
	if weather != "" {
		weatherContext = fmt.Sprintf(" The current weather is %s.", weather)
	}

	prompt := fmt.Sprintf(`You are a high-end fashion concierge. The user's style persona is %q.
Using ONLY these wardrobe items: %s, curate 3 outfits for %q.%s
Return ONLY a JSON array of objects with fields: id, title, description, stylistTip, itemIds (array of item ids from the manifest), occasion, styleVibe.
Each outfit must include a stylistTip that references color theory or styling principles.
Do not use markdown code blocks.`, persona, manifest, occasion, weatherContext)

	text, err := s.generate(ctx, prompt)
	if err != nil {
		slog.Warn("Outfit suggestion failed", "error", err)
		return nil
	}

	var outfits []Outfit
	if err := json.Unmarshal([]byte(extractJSON(text, "[", "]")), &outfits); err != nil {
		slog.Warn("Failed to parse outfit response", "error", err)
		return nil
	}

	// The model may hallucinate IDs; keep only outfits whose items all
	// exist in the manifest.
	known := make(map[string]bool, len(items))
	for _, item := range items {
		known[item.ID] = true
	}
	kept := outfits[:0]
	for _, outfit := range outfits {
		valid := len(outfit.ItemIDs) > 0
		for _, id := range outfit.ItemIDs {
			if !known[id] {
				valid = false
				break
			}
		}
		if valid {
			kept = append(kept, outfit)
		}
	}
	return kept
}

// AnalyzeGaps suggests up to three missing versatile basics.
func (s *Stylist) AnalyzeGaps(ctx context.Context, items []ItemSummary) []Gap {
	if len(items) == 0 {
		return nil
	}

	manifest, err := json.Marshal(items)
	if err != nil {
		slog.Warn("Failed to marshal wardrobe manifest", "error", err)
		return nil
	}

	prompt := fmt.Sprintf(`Closet data: %s. Identify 3 missing versatile basics that would enhance this specific collection.
Return ONLY a JSON array of objects with fields: itemType, suggestedColor, reasoning, priority (high, medium, or low).
Do not use markdown code blocks.`, manifest)

	text, err := s.generate(ctx, prompt)
	if err != nil {
		slog.Warn("Gap analysis failed", "error", err)
		return nil
	}

	var gaps []Gap
	if err := json.Unmarshal([]byte(extractJSON(text, "[", "]")), &gaps); err != nil {
		slog.Warn("Failed to parse gap response", "error", err)
		return nil
	}
	return gaps
}

// Close closes the underlying client.
func (s *Stylist) Close() error {
	return s.client.Close()
}

func (s *Stylist) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from model")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	return out.String(), nil
}

// extractJSON strips markdown fences and isolates the payload between the
// opening and closing delimiters.
func extractJSON(text, openDelim, closeDelim string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.Index(text, openDelim)
	end := strings.LastIndex(text, closeDelim)
	if start == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}
