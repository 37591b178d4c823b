package quality

import (
	"context"
	"encoding/json"
	"image"
	"strings"

	"github.com/drummonds/godocx/render"
	"github.com/drummonds/godocx/vision"
)

// comparisonPrompt asks the vision model for differences between a source
// page and its built counterpart. The response contract requires the anchor
// triple (text_content, expected_value, current_value) because an area label
// alone does not identify which document element to mutate.
const comparisonPrompt = `You are a document layout comparison expert. I am showing you two images
of the same document page.

**Image 1** is the ORIGINAL PDF page.
**Image 2** is a CONVERTED Word (DOCX) page.

Your task: identify every visual difference between them.

Return ONLY a JSON array. Each element must be an object with these keys:
- "area": short description of the location (e.g. "header", "row 3 col 2", "bottom paragraph")
- "issue": what is different (e.g. "missing cell border", "font size smaller")
- "type": exactly one of: "font_size", "font_family", "font_color", "bold", "italic",
  "underline", "alignment", "spacing", "border", "shading", "image", "layout",
  "missing_content", "extra_content"
- "severity": "high", "medium", or "low"
- "text_content": the exact visible text of the affected element (verbatim, first ~40 chars)
- "expected_value": the value seen in the original (e.g. "14pt", "#4472C4", "center")
- "current_value": the value seen in the converted page

If the two images look identical, return an empty array: []

Focus on: fonts, colors, spacing, text alignment, borders, cell shading,
images (position & size), and overall layout. Ignore very minor
anti-aliasing or sub-pixel rendering artifacts.`

// VisionClient is the slice of the vision API the quality loop needs.
type VisionClient interface {
	Available() bool
	Generate(ctx context.Context, prompt string, images ...image.Image) (*vision.Result, error)
}

// Detector obtains structured difference lists from the vision model.
type Detector struct {
	client VisionClient
}

// NewDetector creates a Detector.
func NewDetector(client VisionClient) *Detector {
	return &Detector{client: client}
}

// Detect compares each aligned page pair through the vision model and
// returns all differences found, in page order, plus the total token cost.
//
// The budget is soft: once the remaining budget reaches zero, no further
// requests are issued and whatever was already collected is returned. A
// failed request for one page is logged and skipped; remaining pages are
// still compared. Returns vision.ErrUnavailable only when no credential is
// configured at all.
func (d *Detector) Detect(ctx context.Context, source, built []render.PageImage, budgetRemaining *int) ([]Difference, int, error) {
	if !d.client.Available() {
		return nil, 0, vision.ErrUnavailable
	}

	var differences []Difference
	tokensUsed := 0
	numPages := min(len(source), len(built))

	for i := 0; i < numPages; i++ {
		if budgetRemaining != nil && *budgetRemaining <= 0 {
			if Logger != nil {
				Logger.Warn("Token budget exhausted, skipping remaining pages", "page", i, "totalPages", numPages)
			}
			break
		}

		result, err := d.client.Generate(ctx, comparisonPrompt, source[i].Image, built[i].Image)
		if err != nil {
			// One failed page must not abort the others.
			if Logger != nil {
				Logger.Warn("Vision comparison failed for page", "page", i, "error", err)
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

		differences = append(differences, parseDifferences(result.Text, i)...)
	}

	return differences, tokensUsed, nil
}

// parseDifferences parses the model response. Entries that are not objects,
// lack a recognized type, or carry a type outside the closed enum are
// dropped with a warning rather than aborting the page.
func parseDifferences(text string, pageIndex int) []Difference {
	cleaned := stripCodeFences(text)

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		if Logger != nil {
			Logger.Warn("Vision response is not a JSON array", "page", pageIndex, "error", err)
		}
		return nil
	}

	var out []Difference
	for idx, entry := range raw {
		var diff Difference
		if err := json.Unmarshal(entry, &diff); err != nil {
			if Logger != nil {
				Logger.Warn("Dropping non-object difference entry", "page", pageIndex, "index", idx)
			}
			continue
		}
		if !diff.Type.Valid() {
			if Logger != nil {
				Logger.Warn("Dropping difference with unrecognized type", "page", pageIndex, "type", string(diff.Type))
			}
			continue
		}
		switch diff.Severity {
		case SeverityLow, SeverityMedium, SeverityHigh:
		default:
			diff.Severity = SeverityMedium
		}
		diff.PageIndex = pageIndex
		out = append(out, diff)
	}
	return out
}

// stripCodeFences removes markdown ``` fences some models wrap JSON in.
func stripCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	var kept []string
	for _, line := range strings.Split(cleaned, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
