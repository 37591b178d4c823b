// Package quality closes the visual gap between a source PDF and the DOCX
// built from it. It renders both documents to images, scores structural
// similarity, asks a vision model for a structured list of differences, and
// either patches the built document iteratively (strategy A) or produces
// one pre-build formatting advisory (strategy B).
package quality

import (
	"log/slog"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// DiffType is the closed set of difference categories the vision model may
// report. Anything outside this set is dropped during parsing.
type DiffType string

const (
	DiffFontSize       DiffType = "font_size"
	DiffFontFamily     DiffType = "font_family"
	DiffFontColor      DiffType = "font_color"
	DiffBold           DiffType = "bold"
	DiffItalic         DiffType = "italic"
	DiffUnderline      DiffType = "underline"
	DiffAlignment      DiffType = "alignment"
	DiffSpacing        DiffType = "spacing"
	DiffBorder         DiffType = "border"
	DiffShading        DiffType = "shading"
	DiffImage          DiffType = "image"
	DiffLayout         DiffType = "layout"
	DiffMissingContent DiffType = "missing_content"
	DiffExtraContent   DiffType = "extra_content"
)

var knownDiffTypes = map[DiffType]bool{
	DiffFontSize: true, DiffFontFamily: true, DiffFontColor: true,
	DiffBold: true, DiffItalic: true, DiffUnderline: true,
	DiffAlignment: true, DiffSpacing: true, DiffBorder: true,
	DiffShading: true, DiffImage: true, DiffLayout: true,
	DiffMissingContent: true, DiffExtraContent: true,
}

// Valid reports whether the type is in the closed set.
func (t DiffType) Valid() bool {
	return knownDiffTypes[t]
}

// Severity classifies how visually disruptive a difference is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Difference is one visual difference reported by the vision model. The
// anchor triple (TextContent, ExpectedValue, CurrentValue) is what lets the
// correction engine locate and fix the element; Area alone is only a
// human-readable hint.
type Difference struct {
	Type          DiffType `json:"type"`
	Severity      Severity `json:"severity"`
	PageIndex     int      `json:"page_index"`
	Area          string   `json:"area"`
	TextContent   string   `json:"text_content"`
	ExpectedValue string   `json:"expected_value"`
	CurrentValue  string   `json:"current_value"`
	Issue         string   `json:"issue"`
}

// QualityLevel is the three-tier classification of an overall score.
type QualityLevel string

const (
	QualityGreen  QualityLevel = "green"
	QualityYellow QualityLevel = "yellow"
	QualityRed    QualityLevel = "red"
)

// LevelForScore maps an overall score onto a quality level.
func LevelForScore(score float64) QualityLevel {
	switch {
	case score >= 0.95:
		return QualityGreen
	case score >= 0.85:
		return QualityYellow
	default:
		return QualityRed
	}
}

// SimilarityResult is the outcome of one full visual comparison.
type SimilarityResult struct {
	PageScores     []float64      `json:"pageScores"`
	OverallScore   float64        `json:"overallScore"`
	QualityLevel   QualityLevel   `json:"qualityLevel"`
	PageCountDelta int            `json:"pageCountDelta"` // built pages minus source pages
	DiffImages     map[int]string `json:"diffImages"`     // page index -> overlay path
	SourceImages   []string       `json:"sourceImages"`
	BuiltImages    []string       `json:"builtImages"`
}

// SkipReason explains why a difference produced no fix.
type SkipReason string

const (
	SkipAnchorTooShort  SkipReason = "anchor too short"
	SkipAnchorNotFound  SkipReason = "anchor not found"
	SkipAmbiguousAnchor SkipReason = "ambiguous anchor"
	SkipUnsupportedType SkipReason = "unsupported type"
	SkipNoChange        SkipReason = "no applicable change"
)

// SkippedDifference pairs a difference with the reason it was skipped.
type SkippedDifference struct {
	Difference Difference `json:"difference"`
	Reason     SkipReason `json:"reason"`
}

// CorrectionOutcome reports one correction pass.
type CorrectionOutcome struct {
	FixesApplied int                 `json:"fixesApplied"`
	Skipped      []SkippedDifference `json:"skipped"`
}

// FormattingOverride is one strategy B builder hint, keyed externally by a
// normalized anchor snippet.
type FormattingOverride struct {
	FontSizePt      float64 `json:"fontSizePt,omitempty"`
	FontColor       string  `json:"fontColor,omitempty"`
	Bold            bool    `json:"bold"`
	Italic          bool    `json:"italic"`
	Alignment       string  `json:"alignment,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
}

// FormattingOverrides maps a normalized anchor snippet to its override. The
// map is flat across pages: the same snippet appearing on two pages with
// different formatting collides and the last write wins. This is a known
// limitation, not a bug.
type FormattingOverrides map[string]FormattingOverride

// RoundReport is the record of one strategy A round.
type RoundReport struct {
	Round        int     `json:"round"`
	Score        float64 `json:"score"`
	FixesApplied int     `json:"fixesApplied"`
	TokensUsed   int     `json:"tokensUsed"`
}

// LoopState is the mutable state of a running strategy A loop.
type LoopState struct {
	Round                int
	MaxRounds            int
	BestScore            float64
	TokenBudgetRemaining int
	Terminal             bool
}

// Result is what either strategy returns to the caller: the final score
// plus the full per-round trajectory, so oscillation is visible.
type Result struct {
	FinalScore   float64             `json:"finalScore"`
	QualityLevel QualityLevel        `json:"qualityLevel"`
	Rounds       []RoundReport       `json:"rounds"`
	Similarity   *SimilarityResult   `json:"similarity,omitempty"`
	Overrides    FormattingOverrides `json:"overrides,omitempty"` // strategy B only
	Degraded     bool                `json:"degraded"`            // true when AI or rendering was skipped
}
