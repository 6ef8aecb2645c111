package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/aop-fashion-mockup/internal/cli"
	"github.com/fpang/aop-fashion-mockup/internal/dataurl"
	"github.com/fpang/aop-fashion-mockup/internal/export"
	"github.com/fpang/aop-fashion-mockup/internal/fusion"
	"github.com/fpang/aop-fashion-mockup/internal/garment"
	"github.com/fpang/aop-fashion-mockup/internal/imageutil"
	"github.com/fpang/aop-fashion-mockup/internal/logging"
	"github.com/fpang/aop-fashion-mockup/internal/metrics"
	"github.com/fpang/aop-fashion-mockup/internal/studio"
)

// CLI flags
var (
	patternFlag     string
	personFlag      string
	garmentFlag     string
	descriptionFlag string
	outFlag         string
	modelFlag       string
	backendFlag     string
	concurrentFlag  bool
	maxInputDimFlag int
	timeoutFlag     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "mockup-cli",
	Short: "Generate an all-over-print garment mockup",
	Long: `Mockup CLI renders one mockup from a fabric pattern: a flat product shot
and a worn editorial shot. With --person the garment is placed on that photo;
without it a professional model is synthesized.

When --pattern is omitted a file dialog is shown, or a path is read from stdin.

Examples:
  mockup-cli --pattern paisley.png --garment Hoodie
  mockup-cli --pattern paisley.png --person me.jpg --garment "Polo Shirt" --description "urban editorial"
  mockup-cli --pattern paisley.png --out ./mockups --concurrent`,
	Args: cobra.NoArgs,
	Run:  runMain,
}

func init() {
	// Load .env before flag defaults read the environment. A missing file is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	rootCmd.Flags().StringVarP(&patternFlag, "pattern", "p", "", "Fabric pattern image")
	rootCmd.Flags().StringVar(&personFlag, "person", "", "Photo of the person to dress (optional)")
	rootCmd.Flags().StringVarP(&garmentFlag, "garment", "g", garment.Default.String(), "Garment: T-shirt, Tank top, Polo Shirt or Hoodie")
	rootCmd.Flags().StringVarP(&descriptionFlag, "description", "d", "", "Style or model description")
	rootCmd.Flags().StringVarP(&outFlag, "out", "o", ".", "Output directory")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", fusion.GetModelName(), "Gemini image model to use")
	rootCmd.Flags().StringVar(&backendFlag, "backend", cli.BackendSDK, "Model backend: sdk or rest")
	rootCmd.Flags().BoolVar(&concurrentFlag, "concurrent", os.Getenv("MOCKUP_CONCURRENT_STAGES") == "true", "Issue the flat and worn requests concurrently")
	rootCmd.Flags().IntVar(&maxInputDimFlag, "max-input-dim", imageutil.MaxInputDimensionFromEnv(os.Getenv("MOCKUP_MAX_INPUT_DIM")), "Downscale inputs to this longest side (0 disables)")
	rootCmd.Flags().DurationVar(&timeoutFlag, "timeout", 5*time.Minute, "Overall generation timeout (0 disables)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()
	metrics.SetOutput(io.Discard)

	g, err := garment.Parse(garmentFlag)
	if err != nil {
		log.Fatal().Err(err).Str("garment", garmentFlag).Strs("valid", garmentNames()).Msg("Unknown garment")
	}

	if patternFlag == "" {
		patternFlag = cli.PromptForFile("Pattern image")
		if patternFlag == "" {
			log.Fatal().Msg("A pattern image is required")
		}
	}
	pattern, err := cli.LoadImage(patternFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load pattern image")
	}

	var person *dataurl.Image
	if personFlag != "" {
		person, err = cli.LoadImage(personFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load person image")
		}
	}

	if err := os.MkdirAll(outFlag, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", outFlag).Msg("Failed to create output directory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeoutFlag)
		defer cancel()
	}

	gen := cli.InitGenerator(ctx, backendFlag)
	opts := []fusion.Option{fusion.WithModel(modelFlag)}
	if concurrentFlag {
		opts = append(opts, fusion.WithConcurrentStages())
	}
	st := studio.New(fusion.New(gen, opts...), studio.WithMaxInputDimension(maxInputDimFlag))

	result, err := st.Generate(ctx, studio.Input{
		Pattern:     pattern,
		Person:      person,
		Garment:     g,
		Description: descriptionFlag,
	})
	if err != nil {
		var genErr *studio.GenerationError
		if errors.As(err, &genErr) {
			fmt.Fprintln(os.Stderr, genErr.UserMessage())
		}
		log.Fatal().Err(err).Msg("Mockup generation failed")
	}

	flatPath := filepath.Join(outFlag, export.FlatFilename(result.ID, result.Flat))
	wornPath := filepath.Join(outFlag, export.WornFilename(result.ID, result.Worn))
	for path, img := range map[string]*dataurl.Image{flatPath: result.Flat, wornPath: result.Worn} {
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to write image")
		}
	}

	log.Info().
		Str("mockupId", result.ID).
		Str("flat", flatPath).
		Str("worn", wornPath).
		Msg("Mockup saved")
	fmt.Printf("\n  Product shot:   %s\n  Editorial shot: %s\n\n", flatPath, wornPath)
}

func garmentNames() []string {
	var names []string
	for _, g := range garment.All() {
		names = append(names, g.String())
	}
	return names
}
