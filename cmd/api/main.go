package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pointguardu/pgu-ai/cmd/mainconfig"
	"github.com/pointguardu/pgu-ai/internal/api/router"
	"github.com/pointguardu/pgu-ai/internal/calls"
	"github.com/pointguardu/pgu-ai/internal/compose"
	appconfig "github.com/pointguardu/pgu-ai/internal/config"
	"github.com/pointguardu/pgu-ai/internal/directory"
	"github.com/pointguardu/pgu-ai/internal/followup"
	"github.com/pointguardu/pgu-ai/internal/http/handlers"
	"github.com/pointguardu/pgu-ai/internal/messaging"
	"github.com/pointguardu/pgu-ai/internal/notify"
	"github.com/pointguardu/pgu-ai/internal/observability/metrics"
	"github.com/pointguardu/pgu-ai/internal/recordings"
	"github.com/pointguardu/pgu-ai/internal/scrape"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting pgu-ai API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	// Client directory with optional Redis read-through cache
	directoryStore := directory.NewStore(dynamoClient, cfg.ClientsTable, logger)
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
	}
	dir := directory.NewCachedDirectory(directoryStore, redisClient, cfg.DirectoryCacheTTL, logger)
	var invalidator *directory.CachedDirectory
	if cached, ok := dir.(*directory.CachedDirectory); ok {
		invalidator = cached
	}

	callStore := calls.NewStore(dynamoClient, cfg.MissedCallsTable, cfg.ConversationTable, logger)

	llm, err := buildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	model := cfg.BedrockModelID
	if model == "" {
		model = cfg.GeminiModelID
	}
	composer := compose.NewComposer(llm, model, cfg.RegistrationURL, logger)

	sender := messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, "", logger)

	orchestrator := followup.NewOrchestrator(dir, callStore, composer, sender, pipelineMetrics, followup.Config{
		LookupRetryAttempts: cfg.LookupRetryAttempts,
		LookupRetryDelay:    cfg.LookupRetryDelay,
		LookupSettleDelay:   cfg.LookupSettleDelay,
		MaxFollowUpDelay:    cfg.MaxFollowUpDelay,
	}, logger)

	// The follow-up path holds its connection or goroutine through the
	// configured send delay, so everything on it needs a budget past
	// the delay cap.
	followUpBudget := 2 * time.Minute
	if cfg.MaxFollowUpDelay > 0 {
		followUpBudget = cfg.MaxFollowUpDelay + time.Minute
	}

	// The status callback posts to a remote follow-up endpoint when one is
	// configured; otherwise it runs the pipeline in this process.
	var trigger followup.Trigger
	if cfg.FollowUpEndpoint != "" {
		trigger = followup.NewHTTPTrigger(cfg.FollowUpEndpoint, followUpBudget, logger)
	} else {
		trigger = followup.NewLocalTrigger(orchestrator)
	}

	var recordingStore *recordings.Store
	if cfg.RecordingsBucket != "" {
		recordingStore = recordings.NewStore(s3.NewFromConfig(awsCfg), cfg.RecordingsBucket, cfg.AWSRegion, cfg.TwilioAccountSID, cfg.TwilioAuthToken, logger)
	}

	notifier := notify.NewVoicemailNotifier(buildEmailSender(cfg, awsCfg, logger), logger)

	webhookHandler := handlers.NewTwilioWebhookHandler(
		cfg.TwilioAuthToken, cfg.PublicBaseURL,
		dir, callStore, trigger, recordingStore, notifier, orchestrator,
		pipelineMetrics, logger,
	)
	followUpHandler := handlers.NewFollowUpHandler(orchestrator, logger)
	clientHandler := handlers.NewClientHandler(directoryStore, invalidator, callStore, scrape.NewScraper(logger), logger)
	dashboardHandler := handlers.NewDashboardHandler(prometheus.DefaultGatherer, logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		TwilioWebhooks:     webhookHandler,
		FollowUps:          followUpHandler,
		Clients:            clientHandler,
		Dashboard:          dashboardHandler,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	// Create HTTP server. The write timeout leaves room for the follow-up
	// endpoint, which composes text and may wait out the send delay.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: followUpBudget,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildLLMClient picks the text provider. Bedrock and Gemini chain into a
// fallback client when both are configured.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (compose.LLMClient, error) {
	var bedrock compose.LLMClient
	if cfg.LLMProvider != "gemini" && cfg.BedrockModelID != "" {
		bedrock = compose.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	}

	var gemini compose.LLMClient
	if cfg.LLMProvider != "bedrock" && cfg.GeminiAPIKey != "" {
		client, err := compose.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, err
		}
		gemini = client
	}

	switch {
	case bedrock != nil && gemini != nil:
		return compose.NewFallbackLLMClient(bedrock, gemini, logger), nil
	case bedrock != nil:
		return bedrock, nil
	case gemini != nil:
		return gemini, nil
	default:
		return nil, errors.New("no LLM provider configured; set BEDROCK_MODEL_ID or GEMINI_API_KEY")
	}
}

// buildEmailSender picks the voicemail email provider, falling back to a
// logging stub when neither is configured.
func buildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if cfg.EmailProvider == "ses" && cfg.SESFromEmail != "" {
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
	}
	if sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sender != nil {
		return sender
	}
	logger.Warn("no email provider configured, voicemail notifications will be logged only")
	return notify.NewStubEmailSender(logger)
}
