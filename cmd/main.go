package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"redmine-email-connector/internal/api"
	"redmine-email-connector/internal/config"
	"redmine-email-connector/internal/imapclient"
	"redmine-email-connector/internal/logging"
	"redmine-email-connector/internal/notify"
	"redmine-email-connector/internal/redmine"
	"redmine-email-connector/internal/smtpclient"
	syncer "redmine-email-connector/internal/sync"
)

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.Log.Fatalf("Error reading configuration file: %v", err)
	}

	logging.Log.Infof("Starting Redmine e-mail connector, polling every %s", cfg.Email.CheckInterval)

	backend := redmine.NewClient(cfg.Redmine.URL, cfg.Redmine.APIKey)
	dispatcher := notify.NewDispatcher(smtpclient.NewSender(cfg.Email))

	openMailbox := func() (syncer.Mailbox, error) {
		return imapclient.Open(cfg.Email)
	}

	orchestrator := syncer.New(cfg, backend, dispatcher, openMailbox)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go orchestrator.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.HTTP.Listen,
		Handler: api.New(orchestrator).Router(),
	}

	go func() {
		logging.Log.Infof("Webhook server listening on %s", cfg.HTTP.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Log.Info("Shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Log.Errorf("Server forced to shutdown: %v", err)
	}
}
