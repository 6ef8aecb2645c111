// Command mockup-mcp exposes mockup generation as an MCP tool over stdio,
// so assistants can render a garment mockup from local image files.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/aop-fashion-mockup/internal/cli"
	"github.com/fpang/aop-fashion-mockup/internal/fusion"
	"github.com/fpang/aop-fashion-mockup/internal/imageutil"
	"github.com/fpang/aop-fashion-mockup/internal/logging"
	"github.com/fpang/aop-fashion-mockup/internal/metrics"
	"github.com/fpang/aop-fashion-mockup/internal/studio"
)

var commitHash = "dev"

// CLI flags
var (
	modelFlag       string
	backendFlag     string
	concurrentFlag  bool
	maxInputDimFlag int
)

var rootCmd = &cobra.Command{
	Use:   "mockup-mcp",
	Short: "MCP stdio server for garment mockups",
	Long: `Mockup MCP serves the generate_mockup tool on stdin/stdout for MCP
clients. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMain,
}

func init() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", fusion.GetModelName(), "Gemini image model to use")
	rootCmd.Flags().StringVar(&backendFlag, "backend", cli.BackendSDK, "Model backend: sdk or rest")
	rootCmd.Flags().BoolVar(&concurrentFlag, "concurrent", os.Getenv("MOCKUP_CONCURRENT_STAGES") == "true", "Issue the flat and worn requests concurrently")
	rootCmd.Flags().IntVar(&maxInputDimFlag, "max-input-dim", imageutil.MaxInputDimensionFromEnv(os.Getenv("MOCKUP_MAX_INPUT_DIM")), "Downscale inputs to this longest side (0 disables)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	logging.Init()
	metrics.SetOutput(io.Discard)

	ctx := cmd.Context()
	gen := cli.InitGenerator(ctx, backendFlag)

	opts := []fusion.Option{fusion.WithModel(modelFlag)}
	if concurrentFlag {
		opts = append(opts, fusion.WithConcurrentStages())
	}
	st := studio.New(fusion.New(gen, opts...),
		studio.WithMaxInputDimension(maxInputDimFlag),
		studio.WithHistoryLimit(20),
	)

	server := newServer(st)
	log.Info().Str("model", modelFlag).Msg("MCP server listening on stdio")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Error().Err(err).Msg("MCP server stopped")
		return err
	}
	return nil
}

func newServer(st *studio.Studio) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "aop-mockup", Version: commitHash}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_mockup",
		Description: "Render an all-over-print garment mockup from a fabric pattern image: a flat product shot and a worn editorial shot. Give personPath to dress a specific person; otherwise a professional model is synthesized.",
	}, generateMockupTool(st))
	return server
}
