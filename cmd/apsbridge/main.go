package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/config"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/adapter/aps"
	HTTPAdapter "github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/adapter/http"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/adapter/storage/jsonfile"
	sqlitestore "github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/adapter/storage/sqlite"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/infrastructure/logger"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/port"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/service"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Args[2:], os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "hash-password: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		logger.Error.Printf("%v", err)
		os.Exit(1)
	}
}

// hashPassword prints the bcrypt hash for AUTH_PASSWORD_HASH. The password
// comes from the first argument or, when absent, the first line of stdin.
func hashPassword(args []string, in io.Reader, out io.Writer) error {
	var password string
	if len(args) > 0 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		password = strings.TrimRight(line, "\r\n")
	}
	hash, err := service.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Configure(os.Stdout, cfg.LogLevel)

	logger.Info.Printf("starting apsbridge %s on port %d, domain=%s, store=%s", version, cfg.Port, cfg.Domain, cfg.StoreDriver)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	dispatcher := service.NewDispatcher(cfg.SubscriberQueue)
	defer dispatcher.Close()

	store, closeStore, err := openStore(cfg, dispatcher)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer closeStore()

	gateway := aps.NewClient(aps.Config{
		BaseURL:            cfg.APS.BaseURL,
		ClientID:           cfg.APS.ClientID,
		ClientSecret:       cfg.APS.ClientSecret,
		Scopes:             cfg.APS.Scopes,
		Region:             cfg.APS.Region,
		Timeout:            cfg.GatewayTimeout,
		TokenRefreshMargin: cfg.APS.TokenRefreshMargin,
	})

	poller := service.NewStatusPoller(store, gateway, service.PollerConfig{
		Tick:           cfg.Poll.Tick,
		BackoffBase:    cfg.Poll.BackoffBase,
		BackoffMax:     cfg.Poll.BackoffMax,
		MaxAttempts:    cfg.Poll.MaxAttempts,
		Concurrency:    cfg.Poll.Concurrency,
		JobMaxDuration: cfg.Poll.JobMaxDuration,
		CallTimeout:    cfg.GatewayTimeout,
		LeaseTTL:       cfg.Poll.LeaseTTL,
	})
	orchestrator := service.NewOrchestrator(store, gateway, poller, service.WithCallTimeout(cfg.GatewayTimeout))
	receiver := service.NewWebhookReceiver(store, aps.EventDecoder{}, cfg.WebhookSecret)
	sweeper := service.NewOrphanSweeper(store, cfg.OrphanAfter, cfg.OrphanSweepCron)

	authSvc, err := service.NewAuthService(cfg.AuthUsername, cfg.AuthPasswordHash, cfg.AuthSecret)
	if err != nil {
		return fmt.Errorf("failed to configure auth: %w", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(workerCtx)
	}()

	if err := sweeper.Start(workerCtx); err != nil {
		return err
	}

	server := HTTPAdapter.NewServer(authSvc, orchestrator, receiver, dispatcher, HTTPAdapter.ServerConfig{
		AuthSecret:  cfg.AuthSecret,
		BehindProxy: cfg.BehindProxy,
		Version:     version,
	})
	defer server.Close()

	addr := fmt.Sprintf(":%d", cfg.Port)
	// No WriteTimeout: event streams stay open for the life of a job.
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	// Closing every subscription ends open event streams so Shutdown can drain.
	httpServer.RegisterOnShutdown(dispatcher.Close)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info.Printf("server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info.Printf("received %s, shutting down", sig)
	case err := <-serveErr:
		if err != nil {
			workerCancel()
			<-pollerDone
			sweeper.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error.Printf("http shutdown error: %v", err)
	}

	// Let in-flight polls and sweeps finish before the store closes.
	workerCancel()
	<-pollerDone
	sweeper.Stop()

	logger.Info.Printf("shutdown complete")
	return nil
}

// openStore builds the job store selected by STORE_DRIVER with the
// dispatcher observing every update.
func openStore(cfg *config.Config, observer port.JobObserver) (port.JobStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreJSONFile:
		store, err := jsonfile.NewStore(cfg.DataDir, jsonfile.WithObserver(observer))
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		db, err := sqlitestore.NewStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				logger.Error.Printf("close store: %v", err)
			}
		}
		return sqlitestore.NewJobStore(db, sqlitestore.WithObserver(observer)), closeDB, nil
	}
}
