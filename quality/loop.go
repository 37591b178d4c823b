package quality

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/drummonds/godocx/docx"
	"github.com/drummonds/godocx/render"
	"github.com/drummonds/godocx/vision"
)

// Strategy selects how the quality loop closes the visual gap.
type Strategy string

const (
	// StrategyIterative renders, scores, detects differences and patches
	// the built document in rounds until the score clears the threshold.
	StrategyIterative Strategy = "A"
	// StrategyAdvisory runs one pre-build layout analysis, hands the
	// result to the builder as overrides, then scores once after the build.
	StrategyAdvisory Strategy = "B"
)

// ParseStrategy maps a config string onto a Strategy, defaulting to B.
func ParseStrategy(v string) Strategy {
	switch v {
	case "A", "a", "iterative":
		return StrategyIterative
	}
	return StrategyAdvisory
}

// State is the loop's position in its lifecycle, for logging and the job
// status API.
type State string

const (
	StateIdle       State = "idle"
	StateRendering  State = "rendering"
	StateScoring    State = "scoring"
	StateDetecting  State = "detecting"
	StateCorrecting State = "correcting"
	StateRebuilding State = "rebuilding"
	StateDone       State = "done"
)

// Config carries the tunables of one quality loop run.
type Config struct {
	DPI           int
	SSIMThreshold float64
	MaxRounds     int
	MaxTokens     int
	Strategy      Strategy
	ArtifactDir   string
}

// RebuildFunc persists the (possibly mutated) document back to the DOCX
// path between rounds.
type RebuildFunc func(doc *docx.Document) error

// Loop orchestrates rendering, scoring, detection and correction for one
// conversion.
type Loop struct {
	cfg       Config
	engine    *DiffEngine
	detector  *Detector
	advisor   *Advisor
	corrector *Corrector
	state     State
}

// NewLoop wires a Loop from a renderer and a vision client. Zero or missing
// config fields fall back to working defaults.
func NewLoop(renderer PageRenderer, client VisionClient, cfg Config) *Loop {
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	if cfg.SSIMThreshold <= 0 {
		cfg.SSIMThreshold = 0.95
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 50000
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAdvisory
	}
	return &Loop{
		cfg:       cfg,
		engine:    NewDiffEngine(renderer, cfg.DPI),
		detector:  NewDetector(client),
		advisor:   NewAdvisor(client),
		corrector: NewCorrector(),
		state:     StateIdle,
	}
}

// State returns the loop's current lifecycle state.
func (l *Loop) State() State {
	return l.state
}

func (l *Loop) transition(s State) {
	if Logger != nil && l.state != s {
		Logger.Debug("Quality loop state change", "from", string(l.state), "to", string(s))
	}
	l.state = s
}

// AdviseLayout is the strategy B pre-build pass: render the source PDF and
// obtain one formatting advisory per page from the vision model. A missing
// credential or rendering tool degrades to an empty advisory instead of
// failing the conversion.
func (l *Loop) AdviseLayout(ctx context.Context, pdfPath string) (FormattingOverrides, int, error) {
	l.transition(StateRendering)
	pages, err := l.engine.renderer.RenderPDF(pdfPath, l.cfg.DPI)
	if err != nil {
		l.transition(StateIdle)
		if errors.Is(err, render.ErrUnavailable) {
			if Logger != nil {
				Logger.Warn("Rendering unavailable, skipping layout advisory")
			}
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("unable to render source for layout advisory: %w", err)
	}

	l.transition(StateDetecting)
	budget := l.cfg.MaxTokens
	overrides, tokens, err := l.advisor.Advise(ctx, pages, &budget)
	l.transition(StateIdle)
	if err != nil {
		if errors.Is(err, vision.ErrUnavailable) {
			if Logger != nil {
				Logger.Warn("Vision API unavailable, skipping layout advisory")
			}
			return nil, 0, nil
		}
		return nil, 0, err
	}
	return overrides, tokens, nil
}

// ValidateOnce is the strategy B post-build pass: one render and one
// scoring, no detection and no correction. The result carries a single
// round report so both strategies expose the same trajectory shape.
func (l *Loop) ValidateOnce(ctx context.Context, pdfPath, docxPath string) (*Result, error) {
	l.transition(StateRendering)
	source, built, err := l.engine.Render(ctx, pdfPath, docxPath)
	if err != nil {
		l.transition(StateDone)
		if errors.Is(err, render.ErrUnavailable) {
			if Logger != nil {
				Logger.Warn("Rendering unavailable, skipping visual validation")
			}
			return &Result{Degraded: true}, nil
		}
		return nil, err
	}

	l.transition(StateScoring)
	sim, err := l.engine.Score(source, built, l.roundDir(0))
	l.transition(StateDone)
	if err != nil {
		return nil, err
	}

	return &Result{
		FinalScore:   sim.OverallScore,
		QualityLevel: sim.QualityLevel,
		Rounds:       []RoundReport{{Round: 0, Score: sim.OverallScore}},
		Similarity:   sim,
	}, nil
}

// RunIterative is strategy A. It scores the freshly built document, then
// repeats detect, correct, rebuild, re-render, re-score until the score
// clears the threshold, a round applies zero fixes, or the round cap is
// reached. The returned trajectory includes the initial score as round 0.
//
// The token budget is shared across all rounds and is a soft stop, never an
// error. A missing rendering tool skips visual validation entirely; a
// missing vision credential degrades to similarity-only scoring.
func (l *Loop) RunIterative(ctx context.Context, pdfPath, docxPath string, doc *docx.Document, rebuild RebuildFunc) (*Result, error) {
	l.transition(StateRendering)
	source, built, err := l.engine.Render(ctx, pdfPath, docxPath)
	if err != nil {
		l.transition(StateDone)
		if errors.Is(err, render.ErrUnavailable) {
			if Logger != nil {
				Logger.Warn("Rendering unavailable, skipping visual validation")
			}
			return &Result{Degraded: true}, nil
		}
		return nil, err
	}

	l.transition(StateScoring)
	sim, err := l.engine.Score(source, built, l.roundDir(0))
	if err != nil {
		l.transition(StateDone)
		return nil, err
	}

	result := &Result{
		Rounds:     []RoundReport{{Round: 0, Score: sim.OverallScore}},
		Similarity: sim,
	}
	state := LoopState{
		MaxRounds:            l.cfg.MaxRounds,
		BestScore:            sim.OverallScore,
		TokenBudgetRemaining: l.cfg.MaxTokens,
	}

	for state.Round < state.MaxRounds && !state.Terminal {
		if err := ctx.Err(); err != nil {
			l.transition(StateDone)
			return nil, err
		}
		if sim.OverallScore >= l.cfg.SSIMThreshold {
			if Logger != nil {
				Logger.Info("Score cleared threshold", "score", sim.OverallScore, "threshold", l.cfg.SSIMThreshold)
			}
			break
		}
		state.Round++

		l.transition(StateDetecting)
		differences, tokens, err := l.detector.Detect(ctx, source, built, &state.TokenBudgetRemaining)
		if err != nil {
			l.transition(StateDone)
			if errors.Is(err, vision.ErrUnavailable) {
				if Logger != nil {
					Logger.Warn("Vision API unavailable, reporting similarity only")
				}
				result.Degraded = true
				break
			}
			return nil, err
		}
		if len(differences) == 0 {
			if Logger != nil {
				Logger.Info("No differences detected, stopping", "round", state.Round)
			}
			result.Rounds = append(result.Rounds, RoundReport{Round: state.Round, Score: sim.OverallScore, TokensUsed: tokens})
			break
		}

		l.transition(StateCorrecting)
		outcome := l.corrector.Apply(doc, differences)
		if Logger != nil {
			Logger.Info("Correction round finished",
				"round", state.Round,
				"differences", len(differences),
				"fixesApplied", outcome.FixesApplied,
				"skipped", len(outcome.Skipped))
		}
		if outcome.FixesApplied == 0 {
			// Nothing changed, so re-rendering would only reproduce the
			// same score.
			result.Rounds = append(result.Rounds, RoundReport{Round: state.Round, Score: sim.OverallScore, TokensUsed: tokens})
			state.Terminal = true
			break
		}

		l.transition(StateRebuilding)
		if err := rebuild(doc); err != nil {
			l.transition(StateDone)
			return nil, fmt.Errorf("unable to rebuild document after corrections: %w", err)
		}

		l.transition(StateRendering)
		built, err = l.engine.renderer.RenderDOCX(ctx, docxPath, l.cfg.DPI)
		if err != nil {
			l.transition(StateDone)
			return nil, fmt.Errorf("unable to re-render corrected document: %w", err)
		}

		l.transition(StateScoring)
		sim, err = l.engine.Score(source, built, l.roundDir(state.Round))
		if err != nil {
			l.transition(StateDone)
			return nil, err
		}
		if sim.OverallScore > state.BestScore {
			state.BestScore = sim.OverallScore
		}

		result.Rounds = append(result.Rounds, RoundReport{
			Round:        state.Round,
			Score:        sim.OverallScore,
			FixesApplied: outcome.FixesApplied,
			TokensUsed:   tokens,
		})
		result.Similarity = sim
	}

	l.transition(StateDone)
	result.FinalScore = sim.OverallScore
	result.QualityLevel = sim.QualityLevel
	if result.FinalScore < state.BestScore && Logger != nil {
		// Corrections can oscillate. We keep the last build rather than
		// rolling back so the artifacts on disk match the reported score.
		Logger.Warn("Final score below best observed score",
			"finalScore", result.FinalScore, "bestScore", state.BestScore)
	}
	return result, nil
}

func (l *Loop) roundDir(round int) string {
	return filepath.Join(l.cfg.ArtifactDir, fmt.Sprintf("round_%d", round))
}
