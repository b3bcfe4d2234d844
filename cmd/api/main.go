package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cinechat/cinechat/internal/api/router"
	"github.com/cinechat/cinechat/internal/classifier"
	appconfig "github.com/cinechat/cinechat/internal/config"
	"github.com/cinechat/cinechat/internal/conversation"
	"github.com/cinechat/cinechat/internal/dialog"
	"github.com/cinechat/cinechat/internal/messaging"
	"github.com/cinechat/cinechat/internal/moviedb"
	"github.com/cinechat/cinechat/internal/observability/metrics"
	"github.com/cinechat/cinechat/internal/services"
	"github.com/cinechat/cinechat/pkg/logging"
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting cinechat API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	turnMetrics := metrics.NewTurnMetrics(nil)

	dialogClient := dialog.NewClient(cfg.DialogBaseURL, cfg.DialogID, logger)
	classifierClient := classifier.NewClient(cfg.ClassifierBaseURL, cfg.ClassifierID, logger)
	movieClient := moviedb.NewClient(cfg.MovieBaseURL, logger)
	messenger := messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger, turnMetrics)

	sessions := conversation.NewMemoryStore()
	orchestrator := conversation.NewOrchestrator(dialogClient, classifierClient, movieClient, sessions, logger, turnMetrics)

	registry := services.NewRegistry()
	go func() {
		// Classifier/dialog training runs out of process; our contract with
		// it is ready-or-failed. Requests are gated until this completes.
		if err := services.Bootstrap(context.Background(), registry, dialogClient.DialogID(), classifierClient.ClassifierID(), logger); err != nil {
			logger.Error("service bootstrap failed, API requests will be rejected", "error", err)
		}
	}()

	conversationOpts := []conversation.HandlerOption{
		conversation.WithTurnTimeout(cfg.TurnTimeout),
	}
	if cfg.SMSEchoHTTPReplies {
		conversationOpts = append(conversationOpts, conversation.WithSMSEcho(messenger, cfg.SMSEchoToNumber))
	}
	conversationHandler := conversation.NewHandler(orchestrator, registry, logger, conversationOpts...)
	messagingHandler := messaging.NewHandler(orchestrator, messenger, logger, cfg.TurnTimeout)

	r := router.New(&router.Config{
		Logger:              logger,
		Registry:            registry,
		ConversationHandler: conversationHandler,
		MessagingHandler:    messagingHandler,
		MetricsHandler:      promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
