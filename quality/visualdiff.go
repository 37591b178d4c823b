package quality

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/drummonds/godocx/render"
)

// PageRenderer is the slice of the renderer the diff engine needs.
type PageRenderer interface {
	RenderPDF(path string, dpi int) ([]render.PageImage, error)
	RenderDOCX(ctx context.Context, path string, dpi int) ([]render.PageImage, error)
}

// overflowPenalty is subtracted from the overall score for every page the
// built document has beyond the source page count (content overflow).
const overflowPenalty = 0.05

// DiffEngine renders a source PDF and a built DOCX and scores their visual
// similarity page by page.
type DiffEngine struct {
	renderer PageRenderer
	dpi      int
}

// NewDiffEngine creates a DiffEngine rendering at the given DPI.
func NewDiffEngine(renderer PageRenderer, dpi int) *DiffEngine {
	if dpi <= 0 {
		dpi = 150
	}
	return &DiffEngine{renderer: renderer, dpi: dpi}
}

// Render renders both documents concurrently. A render failure on either
// side fails the whole comparison; scores are never partially produced.
func (e *DiffEngine) Render(ctx context.Context, pdfPath, docxPath string) (source, built []render.PageImage, err error) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		source, err = e.renderer.RenderPDF(pdfPath, e.dpi)
		return err
	})
	g.Go(func() error {
		var err error
		built, err = e.renderer.RenderDOCX(ctx, docxPath, e.dpi)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return source, built, nil
}

// Score compares already-rendered pages and persists per-page renders and
// diff overlays into outDir. Filenames encode the page index. Missing built
// pages score zero; extra built pages apply a fixed penalty per page to the
// overall score only.
func (e *DiffEngine) Score(source, built []render.PageImage, outDir string) (*SimilarityResult, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create artifact directory: %w", err)
	}

	result := &SimilarityResult{
		PageCountDelta: len(built) - len(source),
		DiffImages:     make(map[int]string),
	}

	for _, page := range source {
		path := filepath.Join(outDir, fmt.Sprintf("pdf_page_%d.png", page.PageIndex))
		if err := imaging.Save(page.Image, path); err != nil {
			return nil, fmt.Errorf("unable to save source page render: %w", err)
		}
		result.SourceImages = append(result.SourceImages, path)
	}
	for _, page := range built {
		path := filepath.Join(outDir, fmt.Sprintf("docx_page_%d.png", page.PageIndex))
		if err := imaging.Save(page.Image, path); err != nil {
			return nil, fmt.Errorf("unable to save built page render: %w", err)
		}
		result.BuiltImages = append(result.BuiltImages, path)
	}

	numCompare := min(len(source), len(built))
	for i := 0; i < numCompare; i++ {
		pageScore := CompareImages(source[i].Image, built[i].Image)
		if pageScore.Resized && Logger != nil {
			Logger.Warn("Page dimensions differ between renders", "page", i)
		}
		result.PageScores = append(result.PageScores, pageScore.Score)

		diffPath := filepath.Join(outDir, fmt.Sprintf("diff_page_%d.png", i))
		if err := imaging.Save(pageScore.Overlay, diffPath); err != nil {
			return nil, fmt.Errorf("unable to save diff overlay: %w", err)
		}
		result.DiffImages[i] = diffPath
	}

	if len(source) != len(built) && Logger != nil {
		Logger.Warn("Page count mismatch", "sourcePages", len(source), "builtPages", len(built))
	}

	// The mean runs over max(source, built) conceptual page slots so that
	// missing pages always drag the score down.
	slots := max(len(source), len(built))
	if slots > 0 {
		var sum float64
		for _, s := range result.PageScores {
			sum += s
		}
		result.OverallScore = sum / float64(slots)
	}

	if extra := len(built) - len(source); extra > 0 && len(source) > 0 {
		penalty := overflowPenalty * float64(extra)
		result.OverallScore = clamp01(result.OverallScore - penalty)
		if Logger != nil {
			Logger.Info("Overflow penalty applied", "extraPages", extra, "penalty", penalty)
		}
	}

	result.QualityLevel = LevelForScore(result.OverallScore)
	return result, nil
}

// Compare renders both documents and scores them in one call.
func (e *DiffEngine) Compare(ctx context.Context, pdfPath, docxPath, outDir string) (*SimilarityResult, error) {
	source, built, err := e.Render(ctx, pdfPath, docxPath)
	if err != nil {
		return nil, err
	}
	return e.Score(source, built, outDir)
}
