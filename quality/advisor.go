package quality

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/drummonds/godocx/render"
	"github.com/drummonds/godocx/vision"
)

// layoutPrompt asks the vision model to describe the formatting of every
// text element on a single source page, before the document is built.
const layoutPrompt = `You are a document layout analysis expert. I am showing you a single page
from a PDF document. Identify every visible text element and report its
formatting so the page can be faithfully reconstructed in a Word document.

Return ONLY valid JSON with one top-level key:

"text_elements": an array of objects, one per distinct text block or
paragraph you can see. Each object must have:
- "text_snippet": the first ~40 characters of the text (verbatim).
- "font_size_pt": estimated font size in points (number).
- "font_color": hex colour string, e.g. "#000000".
- "bold": true or false.
- "italic": true or false.
- "alignment": exactly one of "left", "center", "right", "justify".
- "background_color": hex colour string or null if no highlight/shading.

Guidelines:
- Font sizes must be in points. Colours must be hex (e.g. "#4472C4").
- Only report what you are confident about; omit uncertain elements.
- Do NOT wrap the JSON in markdown code fences.`

// Advisor implements strategy B: a single pre-build layout analysis pass
// whose output the builder consumes as formatting overrides.
type Advisor struct {
	client VisionClient
}

// NewAdvisor creates an Advisor.
func NewAdvisor(client VisionClient) *Advisor {
	return &Advisor{client: client}
}

// Advise issues exactly one request per rendered source page and merges the
// responses into a flat override map keyed by normalized anchor snippet.
// The same snippet appearing on multiple pages with different formatting
// collides; the last write wins (known limitation). Returns the token cost
// alongside the map, and vision.ErrUnavailable when no credential is
// configured.
func (a *Advisor) Advise(ctx context.Context, pages []render.PageImage, budgetRemaining *int) (FormattingOverrides, int, error) {
	if !a.client.Available() {
		return nil, 0, vision.ErrUnavailable
	}

	overrides := make(FormattingOverrides)
	tokensUsed := 0

	for _, page := range pages {
		if budgetRemaining != nil && *budgetRemaining <= 0 {
			if Logger != nil {
				Logger.Warn("Token budget exhausted, skipping layout analysis for remaining pages", "page", page.PageIndex)
			}
			break
		}

		result, err := a.client.Generate(ctx, layoutPrompt, page.Image)
		if err != nil {
			if Logger != nil {
				Logger.Warn("Layout analysis failed for page", "page", page.PageIndex, "error", err)
			}
			continue
		}

		tokensUsed += result.TokensUsed
		if budgetRemaining != nil {
			*budgetRemaining -= result.TokensUsed
			if *budgetRemaining < 0 {
				*budgetRemaining = 0
			}
		}

		mergeLayoutResponse(overrides, result.Text, page.PageIndex)
	}

	return overrides, tokensUsed, nil
}

type layoutElement struct {
	TextSnippet     string   `json:"text_snippet"`
	FontSizePt      *float64 `json:"font_size_pt"`
	FontColor       string   `json:"font_color"`
	Bold            bool     `json:"bold"`
	Italic          bool     `json:"italic"`
	Alignment       string   `json:"alignment"`
	BackgroundColor string   `json:"background_color"`
}

type layoutResponse struct {
	TextElements []json.RawMessage `json:"text_elements"`
}

// mergeLayoutResponse parses one page response and folds its elements into
// the override map, dropping malformed entries with a warning.
func mergeLayoutResponse(overrides FormattingOverrides, text string, pageIndex int) {
	var parsed layoutResponse
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &parsed); err != nil {
		if Logger != nil {
			Logger.Warn("Layout response is not valid JSON", "page", pageIndex, "error", err)
		}
		return
	}

	for idx, raw := range parsed.TextElements {
		var elem layoutElement
		if err := json.Unmarshal(raw, &elem); err != nil {
			if Logger != nil {
				Logger.Warn("Dropping malformed layout element", "page", pageIndex, "index", idx)
			}
			continue
		}
		key := NormalizeAnchor(elem.TextSnippet)
		if key == "" {
			continue
		}

		override := FormattingOverride{
			FontColor:       sanitizeHexColor(elem.FontColor),
			Bold:            elem.Bold,
			Italic:          elem.Italic,
			Alignment:       sanitizeAlignment(elem.Alignment),
			BackgroundColor: sanitizeHexColor(elem.BackgroundColor),
		}
		if elem.FontSizePt != nil && *elem.FontSizePt > 0 {
			override.FontSizePt = *elem.FontSizePt
		}
		overrides[key] = override
	}
}

// sanitizeHexColor keeps plausible hex colour strings and drops everything
// else.
func sanitizeHexColor(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "#") {
		return ""
	}
	switch len(v) {
	case 4, 7, 9:
		return strings.ToUpper(v)
	}
	return ""
}

func sanitizeAlignment(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "left", "center", "right", "justify":
		return strings.ToLower(strings.TrimSpace(v))
	}
	return ""
}
