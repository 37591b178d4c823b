package quality

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/drummonds/godocx/docx"
)

// minAnchorLength guards against over-matching: anchors shorter than this
// would match unrelated elements and corrupt them.
const minAnchorLength = 3

// fontSizeStepPt is the bounded heuristic adjustment used when the model
// reported a size difference without an expected value.
const fontSizeStepPt = 1.0

var quoteStripper = strings.NewReplacer(
	`"`, "", "'", "", "‘", "", "’", "", "“", "", "”", "",
)
var whitespaceCollapser = regexp.MustCompile(`\s+`)

// NormalizeAnchor canonicalizes anchor text for matching: lower-cased,
// quotes removed, whitespace collapsed.
func NormalizeAnchor(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = quoteStripper.Replace(s)
	return whitespaceCollapser.ReplaceAllString(s, " ")
}

// location is one candidate element for a fix. run is nil when the anchor
// only matched at paragraph scope; para is nil when it only matched a whole
// cell. cell is set whenever the matched element lives inside a table.
type location struct {
	run     *docx.Run
	para    *docx.Paragraph
	cell    *docx.Cell
	textLen int
}

// Corrector maps differences onto in-place document mutations.
type Corrector struct{}

// NewCorrector creates a Corrector.
func NewCorrector() *Corrector {
	return &Corrector{}
}

// Apply attempts one fix per difference, mutating doc in place, and returns
// how many mutations succeeded plus every skipped difference with its
// reason. A correction pass is not idempotent: re-applying the same list
// can re-toggle boolean properties such as bold.
func (c *Corrector) Apply(doc *docx.Document, differences []Difference) CorrectionOutcome {
	outcome := CorrectionOutcome{}

	for _, diff := range differences {
		if !diff.Type.Valid() {
			// Parsing enforces the closed enum; reaching dispatch with an
			// unknown type is a programming error, not a runtime condition.
			panic(fmt.Sprintf("quality: difference type %q outside closed enum reached dispatch", diff.Type))
		}

		if !supportedDiffTypes[diff.Type] {
			if Logger != nil {
				Logger.Info("Unsupported difference type, no-op", "type", string(diff.Type), "area", diff.Area)
			}
			outcome.Skipped = append(outcome.Skipped, SkippedDifference{diff, SkipUnsupportedType})
			continue
		}

		anchor := NormalizeAnchor(diff.TextContent)
		if len(anchor) < minAnchorLength {
			outcome.Skipped = append(outcome.Skipped, SkippedDifference{diff, SkipAnchorTooShort})
			continue
		}

		loc, reason := locateAnchor(doc, anchor)
		if reason != "" {
			outcome.Skipped = append(outcome.Skipped, SkippedDifference{diff, reason})
			continue
		}

		applied, skip := applyFix(loc, diff)
		if applied {
			outcome.FixesApplied++
			if Logger != nil {
				Logger.Debug("Applied fix", "type", string(diff.Type), "anchor", diff.TextContent)
			}
		} else {
			outcome.Skipped = append(outcome.Skipped, SkippedDifference{diff, skip})
		}
	}

	return outcome
}

// supportedDiffTypes are the categories with a real mutation handler. The
// rest are explicit no-ops: image and layout changes need re-extraction,
// missing/extra content needs the builder, font family substitution is too
// destructive to guess, and underline rarely survives rendering reliably.
var supportedDiffTypes = map[DiffType]bool{
	DiffFontSize:  true,
	DiffFontColor: true,
	DiffBold:      true,
	DiffItalic:    true,
	DiffAlignment: true,
	DiffSpacing:   true,
	DiffBorder:    true,
	DiffShading:   true,
}

// locateAnchor finds the smallest set of elements whose text contains the
// normalized anchor, preferring run over paragraph over cell scope. Among
// equal-scope matches the shortest text wins (most specific); a tie is
// ambiguous and skipped.
func locateAnchor(doc *docx.Document, anchor string) (location, SkipReason) {
	var runMatches, paraMatches, cellMatches []location

	collect := func(para *docx.Paragraph, cell *docx.Cell) {
		paraText := NormalizeAnchor(para.Text())
		if !strings.Contains(paraText, anchor) {
			return
		}
		matchedRun := false
		for _, run := range para.Runs {
			runText := NormalizeAnchor(run.Text)
			if strings.Contains(runText, anchor) {
				runMatches = append(runMatches, location{run: run, para: para, cell: cell, textLen: len(runText)})
				matchedRun = true
			}
		}
		if !matchedRun {
			paraMatches = append(paraMatches, location{para: para, cell: cell, textLen: len(paraText)})
		}
	}

	for _, block := range doc.Blocks {
		switch el := block.(type) {
		case *docx.Paragraph:
			collect(el, nil)
		case *docx.Table:
			for _, row := range el.Rows {
				for _, cell := range row.Cells {
					for _, para := range cell.Paragraphs {
						collect(para, cell)
					}
					cellText := NormalizeAnchor(cell.Text())
					if strings.Contains(cellText, anchor) {
						cellMatches = append(cellMatches, location{cell: cell, textLen: len(cellText)})
					}
				}
			}
		}
	}

	for _, tier := range [][]location{runMatches, paraMatches, cellMatches} {
		if len(tier) == 0 {
			continue
		}
		best := tier[0]
		tied := false
		for _, loc := range tier[1:] {
			if loc.textLen < best.textLen {
				best = loc
				tied = false
			} else if loc.textLen == best.textLen && !sameElement(loc, best) {
				tied = true
			}
		}
		if tied {
			return location{}, SkipAmbiguousAnchor
		}
		return best, ""
	}

	return location{}, SkipAnchorNotFound
}

func sameElement(a, b location) bool {
	return a.run == b.run && a.para == b.para && a.cell == b.cell
}

// applyFix dispatches a located difference to its handler.
func applyFix(loc location, diff Difference) (bool, SkipReason) {
	switch diff.Type {
	case DiffFontSize:
		return fixFontSize(loc, diff)
	case DiffFontColor:
		return fixFontColor(loc, diff)
	case DiffBold:
		return fixBoolProperty(loc, diff, func(r *docx.Run, v bool) { r.Bold = v })
	case DiffItalic:
		return fixBoolProperty(loc, diff, func(r *docx.Run, v bool) { r.Italic = v })
	case DiffAlignment:
		return fixAlignment(loc, diff)
	case DiffSpacing:
		return fixSpacing(loc, diff)
	case DiffShading:
		return fixShading(loc, diff)
	case DiffBorder:
		return fixBorder(loc, diff)
	}
	return false, SkipUnsupportedType
}

// targetRuns returns the runs a run-level fix applies to: the matched run,
// or every run of the matched paragraph/cell when no single run contained
// the anchor.
func targetRuns(loc location) []*docx.Run {
	if loc.run != nil {
		return []*docx.Run{loc.run}
	}
	if loc.para != nil {
		return loc.para.Runs
	}
	if loc.cell != nil {
		var runs []*docx.Run
		for _, p := range loc.cell.Paragraphs {
			runs = append(runs, p.Runs...)
		}
		return runs
	}
	return nil
}

// targetParagraphs returns the paragraphs a paragraph-level fix applies to.
func targetParagraphs(loc location) []*docx.Paragraph {
	if loc.para != nil {
		return []*docx.Paragraph{loc.para}
	}
	if loc.cell != nil {
		return loc.cell.Paragraphs
	}
	return nil
}

func fixFontSize(loc location, diff Difference) (bool, SkipReason) {
	runs := targetRuns(loc)
	if len(runs) == 0 {
		return false, SkipNoChange
	}

	if pt, ok := parsePoints(diff.ExpectedValue); ok {
		for _, r := range runs {
			r.SizePt = pt
		}
		return true, ""
	}

	// No expected value: nudge by one point in the direction the issue
	// text implies.
	step := 0.0
	issue := strings.ToLower(diff.Issue)
	switch {
	case strings.Contains(issue, "smaller") || strings.Contains(issue, "too small"):
		step = fontSizeStepPt
	case strings.Contains(issue, "larger") || strings.Contains(issue, "too large") || strings.Contains(issue, "bigger"):
		step = -fontSizeStepPt
	default:
		return false, SkipNoChange
	}
	for _, r := range runs {
		base := r.SizePt
		if base <= 0 {
			base = 11 // Word's default body size
		}
		r.SizePt = base + step
	}
	return true, ""
}

func fixFontColor(loc location, diff Difference) (bool, SkipReason) {
	hex := parseHex(diff.ExpectedValue)
	if hex == "" {
		return false, SkipNoChange
	}
	runs := targetRuns(loc)
	if len(runs) == 0 {
		return false, SkipNoChange
	}
	for _, r := range runs {
		r.Color = hex
	}
	return true, ""
}

func fixBoolProperty(loc location, diff Difference, set func(*docx.Run, bool)) (bool, SkipReason) {
	desired, ok := desiredBool(diff)
	if !ok {
		return false, SkipNoChange
	}
	runs := targetRuns(loc)
	if len(runs) == 0 {
		return false, SkipNoChange
	}
	for _, r := range runs {
		set(r, desired)
	}
	return true, ""
}

func fixAlignment(loc location, diff Difference) (bool, SkipReason) {
	target := docx.ParseAlignment(diff.ExpectedValue)
	if target == docx.AlignNone {
		target = alignmentFromIssue(diff.Issue)
	}
	if target == docx.AlignNone {
		return false, SkipNoChange
	}
	paras := targetParagraphs(loc)
	if len(paras) == 0 {
		return false, SkipNoChange
	}
	for _, p := range paras {
		p.Alignment = target
	}
	return true, ""
}

func fixSpacing(loc location, diff Difference) (bool, SkipReason) {
	paras := targetParagraphs(loc)
	if len(paras) == 0 {
		return false, SkipNoChange
	}
	before := strings.Contains(strings.ToLower(diff.Issue), "before")

	set := func(p *docx.Paragraph, pt float64) {
		if before {
			p.SpaceBeforePt = pt
		} else {
			p.SpaceAfterPt = pt
		}
	}
	get := func(p *docx.Paragraph) float64 {
		if before {
			return p.SpaceBeforePt
		}
		return p.SpaceAfterPt
	}

	if pt, ok := parsePoints(diff.ExpectedValue); ok {
		for _, p := range paras {
			set(p, pt)
		}
		return true, ""
	}

	issue := strings.ToLower(diff.Issue)
	switch {
	case strings.Contains(issue, "too much") || strings.Contains(issue, "extra") || strings.Contains(issue, "large"):
		for _, p := range paras {
			set(p, get(p)*0.7)
		}
		return true, ""
	case strings.Contains(issue, "too little") || strings.Contains(issue, "missing") || strings.Contains(issue, "small"):
		for _, p := range paras {
			set(p, get(p)+2)
		}
		return true, ""
	}
	return false, SkipNoChange
}

func fixShading(loc location, diff Difference) (bool, SkipReason) {
	if loc.cell == nil {
		return false, SkipNoChange
	}
	hex := parseHex(diff.ExpectedValue)
	if hex == "" {
		return false, SkipNoChange
	}
	loc.cell.Shading = hex
	return true, ""
}

func fixBorder(loc location, diff Difference) (bool, SkipReason) {
	if loc.cell == nil {
		return false, SkipNoChange
	}
	issue := strings.ToLower(diff.Issue)
	if strings.Contains(issue, "extra") || strings.Contains(issue, "should not") || strings.Contains(issue, "remove") {
		loc.cell.Borders = false
	} else {
		loc.cell.Borders = true
	}
	return true, ""
}

// desiredBool decides whether a bold/italic property should be on or off,
// from the expected value first and the issue text as fallback.
func desiredBool(diff Difference) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(diff.ExpectedValue)) {
	case "true", "yes", "bold", "italic", "on":
		return true, true
	case "false", "no", "none", "regular", "normal", "off":
		return false, true
	}
	issue := strings.ToLower(diff.Issue)
	switch {
	case strings.Contains(issue, "missing") || strings.Contains(issue, "should be"):
		return true, true
	case strings.Contains(issue, "should not") || strings.Contains(issue, "extra") || strings.Contains(issue, "remove"):
		return false, true
	}
	return false, false
}

func alignmentFromIssue(issue string) docx.Alignment {
	issue = strings.ToLower(issue)
	switch {
	case strings.Contains(issue, "center"):
		return docx.AlignCenter
	case strings.Contains(issue, "right"):
		return docx.AlignRight
	case strings.Contains(issue, "justif"):
		return docx.AlignJustify
	case strings.Contains(issue, "left"):
		return docx.AlignLeft
	}
	return docx.AlignNone
}

var pointsPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:pt|point)?`)

// parsePoints extracts a point value from strings like "14pt", "14 points"
// or "14".
func parsePoints(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	m := pointsPattern.FindStringSubmatch(v)
	if m == nil {
		return 0, false
	}
	pt, err := strconv.ParseFloat(m[1], 64)
	if err != nil || pt <= 0 || pt > 200 {
		return 0, false
	}
	return pt, true
}

var hexPattern = regexp.MustCompile(`#?([0-9a-fA-F]{6})`)

// parseHex extracts a six-digit hex colour, without the leading '#'.
func parseHex(v string) string {
	m := hexPattern.FindStringSubmatch(v)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}
