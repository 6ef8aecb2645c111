// Command mockup-lambda serves the mockup API behind API Gateway (HTTP API,
// payload v2). The front end is hosted separately on CloudFront, which adds
// the x-origin-verify header checked here.
package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/aop-fashion-mockup/internal/api"
	"github.com/fpang/aop-fashion-mockup/internal/archive"
	"github.com/fpang/aop-fashion-mockup/internal/cli"
	"github.com/fpang/aop-fashion-mockup/internal/fusion"
	"github.com/fpang/aop-fashion-mockup/internal/imageutil"
	"github.com/fpang/aop-fashion-mockup/internal/lambdaboot"
	"github.com/fpang/aop-fashion-mockup/internal/logging"
	"github.com/fpang/aop-fashion-mockup/internal/studio"
)

// historyLimit bounds the per-container history; the archive is the
// durable listing.
const historyLimit = 20

var handler http.Handler

func init() {
	initStart := time.Now()
	logging.InitJSON(os.Stdout)

	awsClients := lambdaboot.InitAWS()
	sinks := lambdaboot.InitSinks(awsClients.Config)
	lambdaboot.LoadGeminiKey(awsClients.SSM)

	originVerifySecret := os.Getenv("ORIGIN_VERIFY_SECRET")
	if originVerifySecret == "" {
		log.Warn().Msg("ORIGIN_VERIFY_SECRET not set, origin verification disabled")
	}

	backend := logging.EnvOrDefault("MOCKUP_BACKEND", cli.BackendREST)
	gen := cli.NewGenerator(context.Background(), os.Getenv("GEMINI_API_KEY"), backend)

	var opts []fusion.Option
	concurrent := os.Getenv("MOCKUP_CONCURRENT_STAGES") == "true"
	if concurrent {
		opts = append(opts, fusion.WithConcurrentStages())
	}
	orchestrator := fusion.New(gen, opts...)
	archiver := archive.New(sinks.ArchiveConfig(orchestrator.Model()))
	maxInputDim := imageutil.MaxInputDimensionFromEnv(os.Getenv("MOCKUP_MAX_INPUT_DIM"))

	st := studio.New(orchestrator,
		studio.WithArchiver(archiver),
		studio.WithMaxInputDimension(maxInputDim),
		studio.WithHistoryLimit(historyLimit),
	)

	serverCfg := api.Config{
		Studio:             st,
		Records:            sinks.RecordStore(),
		OriginVerifySecret: originVerifySecret,
		Version:            commitHash,
	}
	if sinks.S3 != nil {
		serverCfg.Presign = sinks.S3.Presigner
		serverCfg.Bucket = sinks.S3.Bucket
	}
	handler = api.New(serverCfg).Handler()

	sinks.Describe(lambdaboot.StartupLog("mockup-lambda", initStart).CommitHash(commitHash)).
		Feature("originVerify", originVerifySecret != "").
		Feature("concurrentStages", concurrent).
		Feature("archive", archiver.Enabled()).
		Config("model", orchestrator.Model()).
		Config("backend", backend).
		Config("maxInputDim", strconv.Itoa(maxInputDim)).
		Log()
}

func main() {
	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}
