package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/drummonds/godocx/builder"
	"github.com/drummonds/godocx/database"
	"github.com/drummonds/godocx/docx"
	"github.com/drummonds/godocx/extract"
	"github.com/drummonds/godocx/quality"
	"github.com/drummonds/godocx/render"
	"github.com/drummonds/godocx/vision"
	"github.com/oklog/ulid/v2"
)

// convertJobFuncWithTracking runs one conversion end to end with progress
// tracking: extract, build, save, then the visual fidelity loop.
func (serverHandler *ServerHandler) convertJobFuncWithTracking(conv *database.Conversion, db database.Repository, jobID ulid.ULID) {
	// Add panic recovery and update job status on panic
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in conversion job", "panic", r, "jobID", jobID)
			db.UpdateJobError(jobID, fmt.Sprintf("Panic: %v", r))
			db.UpdateConversionStatus(conv.ULID.String(), database.ConversionFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := db.UpdateJobStatus(jobID, database.JobStatusRunning, "Extracting PDF content"); err != nil {
		Logger.Error("Failed to update job status", "error", err)
	}
	db.UpdateConversionStatus(conv.ULID.String(), database.ConversionRunning, "")

	ctx := context.Background()
	result, err := serverHandler.convertDocument(ctx, conv, db, jobID)
	if err != nil {
		Logger.Error("Conversion failed", "source", conv.SourceName, "error", err)
		db.UpdateJobError(jobID, err.Error())
		db.UpdateConversionStatus(conv.ULID.String(), database.ConversionFailed, err.Error())
		return
	}

	rounds := len(result.Rounds)
	if rounds > 0 {
		rounds-- // round 0 is the initial score, not a correction round
	}
	tokens := totalTokens(result)

	if err := db.UpdateConversionResult(conv.ULID.String(), result.FinalScore, string(result.QualityLevel), rounds, tokens, result.Degraded); err != nil {
		Logger.Error("Failed to record conversion result", "error", err)
	}
	if err := db.UpdateConversionStatus(conv.ULID.String(), database.ConversionCompleted, ""); err != nil {
		Logger.Error("Failed to mark conversion as completed", "error", err)
	}

	jobResult := fmt.Sprintf(`{"score": %.4f, "qualityLevel": %q, "rounds": %d, "tokensUsed": %d, "degraded": %t}`,
		result.FinalScore, result.QualityLevel, rounds, tokens, result.Degraded)
	if err := db.CompleteJob(jobID, jobResult); err != nil {
		Logger.Error("Failed to mark job as complete", "error", err)
	}

	Logger.Info("Conversion completed", "source", conv.SourceName,
		"score", result.FinalScore, "qualityLevel", result.QualityLevel,
		"rounds", rounds, "tokensUsed", tokens, "degraded", result.Degraded)
}

// convertDocument is the pipeline body: extract, (optionally advise), build,
// save, validate. The output path and artifact directory are recorded on the
// conversion before the quality loop runs so partial results stay findable.
func (serverHandler *ServerHandler) convertDocument(ctx context.Context, conv *database.Conversion, db database.Repository, jobID ulid.ULID) (*quality.Result, error) {
	db.UpdateJobProgress(jobID, 10, "Extracting PDF content")
	pages, err := extract.Extract(conv.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("unable to extract PDF content: %w", err)
	}
	Logger.Info("Extracted PDF content", "source", conv.SourceName, "pages", len(pages))

	artifactDir := filepath.Join(serverHandler.ServerConfig.ArtifactPath, conv.ULID.String())
	if err := os.MkdirAll(artifactDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("unable to create artifact directory: %w", err)
	}

	outputName := strings.TrimSuffix(conv.SourceName, filepath.Ext(conv.SourceName)) + ".docx"
	outputPath := filepath.Join(serverHandler.ServerConfig.OutputPath, conv.ULID.String()+"_"+outputName)

	conv.OutputPath = outputPath
	conv.ArtifactDir = artifactDir
	if err := db.SaveConversion(conv); err != nil {
		Logger.Error("Failed to record output paths", "error", err)
	}

	loop, err := serverHandler.newQualityLoop(conv.Strategy, artifactDir)
	if err != nil {
		return nil, err
	}

	var overrides quality.FormattingOverrides
	var advisoryTokens int
	if quality.ParseStrategy(conv.Strategy) == quality.StrategyAdvisory {
		db.UpdateJobProgress(jobID, 25, "Analysing source layout")
		overrides, advisoryTokens, err = loop.AdviseLayout(ctx, conv.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("layout advisory failed: %w", err)
		}
		Logger.Info("Layout advisory finished", "overrides", len(overrides), "tokensUsed", advisoryTokens)
	}

	db.UpdateJobProgress(jobID, 40, "Building DOCX document")
	doc := builder.Build(pages, overrides)
	if info, err := extract.ReadInfo(conv.SourcePath); err == nil {
		doc.Title = info.Title
		doc.Creator = info.Author
	} else {
		Logger.Warn("Unable to read PDF metadata", "source", conv.SourceName, "error", err)
	}

	db.UpdateJobProgress(jobID, 50, "Writing DOCX file")
	if err := doc.Save(outputPath); err != nil {
		return nil, fmt.Errorf("unable to write DOCX file: %w", err)
	}

	var result *quality.Result
	if quality.ParseStrategy(conv.Strategy) == quality.StrategyIterative {
		db.UpdateJobProgress(jobID, 60, "Running visual quality loop")
		result, err = loop.RunIterative(ctx, conv.SourcePath, outputPath, doc, func(d *docx.Document) error {
			return d.Save(outputPath)
		})
	} else {
		db.UpdateJobProgress(jobID, 60, "Validating visual similarity")
		result, err = loop.ValidateOnce(ctx, conv.SourcePath, outputPath)
	}
	if err != nil {
		return nil, err
	}
	result.Overrides = overrides
	if advisoryTokens > 0 && len(result.Rounds) > 0 {
		result.Rounds[0].TokensUsed += advisoryTokens
	} else if advisoryTokens > 0 {
		result.Rounds = append(result.Rounds, quality.RoundReport{Round: 0, TokensUsed: advisoryTokens})
	}

	db.UpdateJobProgress(jobID, 90, "Recording results")
	return result, nil
}

// newQualityLoop wires a quality loop from the server configuration.
func (serverHandler *ServerHandler) newQualityLoop(strategy string, artifactDir string) (*quality.Loop, error) {
	renderer, err := render.NewRenderer(serverHandler.ServerConfig.SofficePath)
	if err != nil {
		return nil, fmt.Errorf("unable to create renderer: %w", err)
	}
	client := vision.NewClient(serverHandler.ServerConfig.GeminiAPIKey, Logger)
	return quality.NewLoop(renderer, client, quality.Config{
		DPI:           serverHandler.ServerConfig.DPI,
		SSIMThreshold: serverHandler.ServerConfig.SSIMThreshold,
		MaxRounds:     serverHandler.ServerConfig.MaxRounds,
		MaxTokens:     serverHandler.ServerConfig.MaxTokens,
		Strategy:      quality.ParseStrategy(strategy),
		ArtifactDir:   artifactDir,
	}), nil
}

// totalTokens sums the token spend across the whole trajectory.
func totalTokens(result *quality.Result) int {
	total := 0
	for _, round := range result.Rounds {
		total += round.TokensUsed
	}
	return total
}

// cleanupJobFuncWithTracking deletes conversions past the retention window,
// removes their files from disk, and prunes finished jobs.
func (serverHandler *ServerHandler) cleanupJobFuncWithTracking(db database.Repository, jobID ulid.ULID) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in cleanup job", "panic", r, "jobID", jobID)
			db.UpdateJobError(jobID, fmt.Sprintf("Panic: %v", r))
		}
	}()

	// Mark job as running
	db.UpdateJobStatus(jobID, database.JobStatusRunning, "Finding expired conversions")

	retention := time.Duration(serverHandler.ServerConfig.JobRetentionDays) * 24 * time.Hour
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	expired, err := db.DeleteOldConversions(retention)
	if err != nil {
		Logger.Error("Failed to delete expired conversions", "error", err)
		db.UpdateJobError(jobID, fmt.Sprintf("Failed to delete expired conversions: %v", err))
		return
	}

	removedFiles := 0
	total := len(expired)
	for i, conv := range expired {
		progress := 10 + int((float64(i)/float64(max(total, 1)))*70)
		db.UpdateJobProgress(jobID, progress, fmt.Sprintf("Removing files %d/%d", i+1, total))

		if conv.OutputPath != "" {
			if err := os.Remove(conv.OutputPath); err != nil && !os.IsNotExist(err) {
				Logger.Warn("Unable to remove output file", "path", conv.OutputPath, "error", err)
			} else {
				removedFiles++
			}
		}
		if conv.SourcePath != "" {
			if err := os.Remove(conv.SourcePath); err != nil && !os.IsNotExist(err) {
				Logger.Warn("Unable to remove source file", "path", conv.SourcePath, "error", err)
			}
		}
		if conv.ArtifactDir != "" {
			if err := os.RemoveAll(conv.ArtifactDir); err != nil {
				Logger.Warn("Unable to remove artifact directory", "path", conv.ArtifactDir, "error", err)
			}
		}
	}

	db.UpdateJobProgress(jobID, 85, "Pruning finished jobs")
	prunedJobs, err := db.DeleteOldJobs(retention)
	if err != nil {
		Logger.Error("Failed to prune old jobs", "error", err)
	}

	result := fmt.Sprintf(`{"conversionsDeleted": %d, "filesRemoved": %d, "jobsPruned": %d}`, total, removedFiles, prunedJobs)
	if err := db.CompleteJob(jobID, result); err != nil {
		Logger.Error("Failed to mark cleanup job as complete", "error", err)
	}

	Logger.Info("Cleanup job completed", "jobID", jobID, "conversionsDeleted", total, "jobsPruned", prunedJobs)
}
