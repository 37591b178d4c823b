package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	builder "github.com/drummonds/godocx/builder"
	config "github.com/drummonds/godocx/config"
	docx "github.com/drummonds/godocx/docx"
	extract "github.com/drummonds/godocx/extract"
	quality "github.com/drummonds/godocx/quality"
	render "github.com/drummonds/godocx/render"
	vision "github.com/drummonds/godocx/vision"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	builder.Logger = Logger
	docx.Logger = Logger
	extract.Logger = Logger
	quality.Logger = Logger
	render.Logger = Logger
}

func main() {
	input := flag.String("in", "", "PDF file to convert")
	output := flag.String("out", "", "DOCX output path (defaults to the input name with .docx)")
	strategy := flag.String("strategy", "", "Quality strategy, A (iterative) or B (advisory); defaults to config")
	artifacts := flag.String("artifacts", "", "Directory for rendered pages and diff overlays (defaults to a temp dir)")
	dpi := flag.Int("dpi", 0, "Render DPI for similarity scoring (defaults to config)")
	rounds := flag.Int("rounds", 0, "Maximum correction rounds for strategy A (defaults to config)")
	noAI := flag.Bool("no-ai", false, "Skip vision API calls, similarity scoring only")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: convert -in document.pdf [-out document.docx] [-strategy A|B]")
		os.Exit(2)
	}

	serverConfig, logger := config.SetupServer()
	injectGlobals(logger)

	if *strategy == "" {
		*strategy = serverConfig.Strategy
	}
	if *dpi > 0 {
		serverConfig.DPI = *dpi
	}
	if *rounds > 0 {
		serverConfig.MaxRounds = *rounds
	}
	if *noAI {
		serverConfig.GeminiAPIKey = ""
	}
	if *output == "" {
		*output = strings.TrimSuffix(*input, filepath.Ext(*input)) + ".docx"
	}
	artifactDir := *artifacts
	if artifactDir == "" {
		dir, err := os.MkdirTemp("", "godocx-artifacts-")
		if err != nil {
			Logger.Error("Unable to create artifact directory", "error", err)
			os.Exit(1)
		}
		artifactDir = dir
	} else if err := os.MkdirAll(artifactDir, 0755); err != nil {
		Logger.Error("Unable to create artifact directory", "path", artifactDir, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	Logger.Info("Extracting PDF content", "input", *input)
	pages, err := extract.Extract(*input)
	if err != nil {
		Logger.Error("Unable to extract PDF content", "error", err)
		os.Exit(1)
	}

	renderer, err := render.NewRenderer(serverConfig.SofficePath)
	if err != nil {
		Logger.Error("Unable to create renderer", "error", err)
		os.Exit(1)
	}
	client := vision.NewClient(serverConfig.GeminiAPIKey, Logger)
	loop := quality.NewLoop(renderer, client, quality.Config{
		DPI:           serverConfig.DPI,
		SSIMThreshold: serverConfig.SSIMThreshold,
		MaxRounds:     serverConfig.MaxRounds,
		MaxTokens:     serverConfig.MaxTokens,
		Strategy:      quality.ParseStrategy(*strategy),
		ArtifactDir:   artifactDir,
	})

	var overrides quality.FormattingOverrides
	if quality.ParseStrategy(*strategy) == quality.StrategyAdvisory {
		Logger.Info("Analysing source layout")
		var tokens int
		overrides, tokens, err = loop.AdviseLayout(ctx, *input)
		if err != nil {
			Logger.Error("Layout advisory failed", "error", err)
			os.Exit(1)
		}
		Logger.Info("Layout advisory finished", "overrides", len(overrides), "tokensUsed", tokens)
	}

	Logger.Info("Building DOCX document", "output", *output)
	doc := builder.Build(pages, overrides)
	if info, err := extract.ReadInfo(*input); err == nil {
		doc.Title = info.Title
		doc.Creator = info.Author
	} else {
		Logger.Warn("Unable to read PDF metadata", "error", err)
	}
	if err := doc.Save(*output); err != nil {
		Logger.Error("Unable to write DOCX file", "error", err)
		os.Exit(1)
	}

	var result *quality.Result
	if quality.ParseStrategy(*strategy) == quality.StrategyIterative {
		Logger.Info("Running visual quality loop")
		result, err = loop.RunIterative(ctx, *input, *output, doc, func(d *docx.Document) error {
			return d.Save(*output)
		})
	} else {
		Logger.Info("Validating visual similarity")
		result, err = loop.ValidateOnce(ctx, *input, *output)
	}
	if err != nil {
		Logger.Error("Quality loop failed", "error", err)
		os.Exit(1)
	}

	tokens := 0
	for _, round := range result.Rounds {
		tokens += round.TokensUsed
	}
	roundCount := len(result.Rounds)
	if roundCount > 0 {
		roundCount-- // round 0 is the initial score, not a correction round
	}

	fmt.Printf("\nConverted %s -> %s\n", *input, *output)
	fmt.Printf("Score:       %.4f (%s)\n", result.FinalScore, result.QualityLevel)
	fmt.Printf("Rounds:      %d\n", roundCount)
	fmt.Printf("Tokens used: %d\n", tokens)
	if result.Degraded {
		fmt.Println("Note: vision API unavailable, score is similarity-only")
	}
	fmt.Printf("Artifacts:   %s\n", artifactDir)
}
