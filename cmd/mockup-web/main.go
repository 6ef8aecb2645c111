package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/aop-fashion-mockup/internal/api"
	"github.com/fpang/aop-fashion-mockup/internal/archive"
	"github.com/fpang/aop-fashion-mockup/internal/cli"
	"github.com/fpang/aop-fashion-mockup/internal/fusion"
	"github.com/fpang/aop-fashion-mockup/internal/imageutil"
	"github.com/fpang/aop-fashion-mockup/internal/lambdaboot"
	"github.com/fpang/aop-fashion-mockup/internal/logging"
	"github.com/fpang/aop-fashion-mockup/internal/metrics"
	"github.com/fpang/aop-fashion-mockup/internal/store"
	"github.com/fpang/aop-fashion-mockup/internal/studio"
)

//go:embed all:frontend_dist
var frontendFS embed.FS

// CLI flags
var (
	portFlag         int
	modelFlag        string
	backendFlag      string
	concurrentFlag   bool
	maxInputDimFlag  int
	historyLimitFlag int
)

var rootCmd = &cobra.Command{
	Use:   "mockup-web",
	Short: "Web studio for all-over-print garment mockups",
	Long: `Mockup Web starts a local web server with the mockup studio. Upload a
fabric pattern and, optionally, a photo of a person; the studio renders a flat
product shot and a worn editorial shot of the printed garment.

Examples:
  mockup-web
  mockup-web --port 9090
  mockup-web --model gemini-3-pro-image-preview --concurrent`,
	Run: runMain,
}

func init() {
	// Load .env before flag defaults read the environment. A missing file is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	rootCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", fusion.GetModelName(), "Gemini image model to use")
	rootCmd.Flags().StringVar(&backendFlag, "backend", cli.BackendSDK, "Model backend: sdk or rest")
	rootCmd.Flags().BoolVar(&concurrentFlag, "concurrent", os.Getenv("MOCKUP_CONCURRENT_STAGES") == "true", "Issue the flat and worn requests concurrently")
	rootCmd.Flags().IntVar(&maxInputDimFlag, "max-input-dim", imageutil.MaxInputDimensionFromEnv(os.Getenv("MOCKUP_MAX_INPUT_DIM")), "Downscale uploads to this longest side (0 disables)")
	rootCmd.Flags().IntVar(&historyLimitFlag, "history-limit", 50, "Results kept in memory (0 keeps all)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	initStart := time.Now()
	logging.Init()
	// EMF lines are only collected on Lambda.
	metrics.SetOutput(io.Discard)

	ctx := context.Background()
	gen := cli.InitGenerator(ctx, backendFlag)

	var opts []fusion.Option
	opts = append(opts, fusion.WithModel(modelFlag))
	if concurrentFlag {
		opts = append(opts, fusion.WithConcurrentStages())
	}
	orchestrator := fusion.New(gen, opts...)

	// Local runs keep archive records in memory unless AWS sinks are set.
	var records store.RecordStore = store.NewMemoryStore()
	archiveCfg := archive.Config{Records: records, Model: orchestrator.Model()}
	var sinks lambdaboot.Sinks
	if lambdaboot.AnyConfigured() {
		awsClients := lambdaboot.InitAWS()
		sinks = lambdaboot.InitSinks(awsClients.Config)
		archiveCfg = sinks.ArchiveConfig(orchestrator.Model())
		if rs := sinks.RecordStore(); rs != nil {
			records = rs
		} else {
			archiveCfg.Records = records
		}
	}
	archiver := archive.New(archiveCfg)

	st := studio.New(orchestrator,
		studio.WithArchiver(archiver),
		studio.WithMaxInputDimension(maxInputDimFlag),
		studio.WithHistoryLimit(historyLimitFlag),
	)

	frontendSub, err := fs.Sub(frontendFS, "frontend_dist")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to access embedded frontend")
	}

	serverCfg := api.Config{
		Studio:    st,
		Records:   records,
		Frontend:  frontendSub,
		LocalCORS: true,
		Version:   commitHash,
	}
	if sinks.S3 != nil {
		serverCfg.Presign = sinks.S3.Presigner
		serverCfg.Bucket = sinks.S3.Bucket
	}

	addr := fmt.Sprintf(":%d", portFlag)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.New(serverCfg).Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	sinks.Describe(lambdaboot.StartupLog("mockup-web", initStart).CommitHash(commitHash)).
		Feature("concurrentStages", concurrentFlag).
		Feature("archive", archiver.Enabled()).
		Config("model", orchestrator.Model()).
		Config("backend", backendFlag).
		Config("maxInputDim", strconv.Itoa(maxInputDimFlag)).
		Log()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Info().Int("port", portFlag).Msg("Starting web server")
	fmt.Printf("\n  Mockup Studio: http://localhost:%d\n\n", portFlag)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
