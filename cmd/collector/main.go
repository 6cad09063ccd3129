package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.temporal.io/sdk/client"

	"example.com/churnopp/internal/collector"
	"example.com/churnopp/internal/logging"
	"example.com/churnopp/internal/sqliteutil"
)

func main() {
	var (
		dbPath       = flag.String("db", "churnopp.db", "path to the collector sqlite database file")
		addr         = flag.String("addr", ":8080", "HTTP listen address for the collector API")
		temporalAddr = flag.String("temporal", "", "Temporal frontend host:port; empty dispatches alerts in-process")
		alertWebhook = flag.String("alert-webhook", "", "URL to POST churn alerts to; empty logs them instead")
	)
	flag.Parse()

	ctx := context.Background()
	logger := logging.New()

	db, err := sqliteutil.Open(*dbPath)
	if err != nil {
		logger.Error("open collector db failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := collector.NewStore(db)
	if err := store.Init(ctx); err != nil {
		logger.Error("init collector schema failed", "error", err)
		os.Exit(1)
	}

	// Terminal alert delivery: webhook when configured, log otherwise.
	var delivery collector.Dispatcher
	if *alertWebhook != "" {
		delivery = collector.NewWebhookDispatcher(*alertWebhook, logger)
	} else {
		delivery = collector.NewLogDispatcher(logger)
	}

	// With a Temporal endpoint the alert path gains durable retries: the
	// scorer starts a workflow asynchronously and the worker registered
	// here drives the delivery activity.
	dispatcher := delivery
	if *temporalAddr != "" {
		temporalClient, err := client.Dial(client.Options{HostPort: *temporalAddr})
		if err != nil {
			logger.Error("connect temporal failed", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()

		alertWorker := collector.RegisterAlertWorker(temporalClient, delivery, logger)
		if err := alertWorker.Start(); err != nil {
			logger.Error("start alert worker failed", "error", err)
			os.Exit(1)
		}
		defer alertWorker.Stop()
		dispatcher = collector.NewTemporalDispatcher(temporalClient, logger)
		logger.Info("alert dispatch routed through temporal", "task_queue", collector.AlertTaskQueue())
	}

	cache := collector.NewTTLCache(collector.ScoreTTL)
	scorer := collector.NewScorer(store, cache, dispatcher, logger)
	gateway := collector.NewGateway(store, logger)

	serverLogger := logger.With("component", "collector.http")
	server := &http.Server{
		Addr:    *addr,
		Handler: collector.NewServer(store, gateway, scorer, serverLogger).Router(),
	}

	go func() {
		serverLogger.Info("collector API listening", "addr", *addr, "db", *dbPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverLogger.Error("collector server error", "error", err)
		}
	}()

	waitForShutdown(serverLogger, server)
}

func waitForShutdown(logger *slog.Logger, server *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "graceful shutdown failed: %v\n", err)
	}
	logger.Info("collector stopped")
}
