package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itish2003/prompt-relay/chatgpt"
	"github.com/itish2003/prompt-relay/config"
	"github.com/itish2003/prompt-relay/controller"
	"github.com/itish2003/prompt-relay/logging"
	"github.com/itish2003/prompt-relay/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logging.GetLogger()

	cli, flags, err := config.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	if cli.Help {
		flags.PrintDefaults()
		return
	}

	cfg, err := config.LoadConfig(cli)
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	if err := config.WatchLogLevel(cli, logging.SetLevel); err != nil {
		log.Warnf("Live log level changes disabled: %v", err)
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// One connection pool for every upstream call; clients themselves are per request.
	httpClient := &http.Client{
		Timeout: cfg.Upstream.Timeout,
	}
	factory := chatgpt.NewFactory(httpClient, cfg.Upstream.ReverseProxyURL, cfg.Upstream.Model)

	relayService := services.NewRelayService(services.ChatGPTClients(factory))
	relayController := controller.NewRelayController(relayService)
	router := controller.NewRouter(relayController)

	server := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("Server running on %s", cfg.ListenAddress)
		log.Infof("Relaying to %s (model %s)", factory.Endpoint(), cfg.Upstream.Model)
		log.Infof("  POST http://%s/query", cfg.ListenAddress)
		log.Infof("  GET  http://%s/health", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Infoln("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}
}
