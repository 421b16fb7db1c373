package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"citystories/internal/downloader"
	"citystories/pkg/auth"
	"citystories/pkg/config"
	errs "citystories/pkg/errors"
	"citystories/pkg/ingest"
	"citystories/pkg/instagram"
	"citystories/pkg/logger"
	"citystories/pkg/pacing"
	"citystories/pkg/retry"
	"citystories/pkg/storage"
)

// openCredentials is replaced in tests
var openCredentials = newCredentialManager

// loadConfig merges every configuration source, fills a missing session
// from the credential store and validates the result
func loadConfig(flags map[string]interface{}, profile string) (*config.Config, error) {
	cfg, err := config.LoadUnvalidated(configFile, flags)
	if err != nil {
		return nil, &errs.ConfigError{Err: err}
	}
	if needsStoredSession(&cfg.Instagram) {
		if creds, err := openCredentials(); err == nil {
			// a missing stored credential surfaces through Validate below
			if used, _ := creds.Apply(&cfg.Instagram, profile); used {
				logger.WithField("profile", profile).Info("using stored session")
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &errs.ConfigError{Err: err}
	}
	return cfg, nil
}

func needsStoredSession(cfg *config.InstagramConfig) bool {
	return cfg.AuthMode == config.AuthModeSession &&
		(cfg.SessionID == "" || cfg.SessionID == config.PlaceholderSessionID)
}

// buildPipeline wires every component of a run from cfg. observer receives
// every event.
func buildPipeline(cfg *config.Config, log logger.Logger, observer ingest.Observer) (*ingest.Pipeline, error) {
	pacer := pacing.New(pacing.Config{
		AssetDelay:        cfg.Pacing.AssetDelay,
		AccountDelay:      cfg.Pacing.AccountDelay,
		MetadataDelay:     cfg.Pacing.MetadataDelay,
		RequestsPerMinute: cfg.Pacing.RequestsPerMinute,
	})
	httpClient := &http.Client{}

	var authenticator instagram.Authenticator
	switch cfg.Instagram.AuthMode {
	case config.AuthModeLogin:
		authenticator = instagram.NewLoginSessionAuth(instagram.LoginOptions{
			Username:   cfg.Instagram.Username,
			Password:   cfg.Instagram.Password,
			BaseURL:    cfg.Instagram.BaseURL,
			UserAgent:  cfg.Instagram.UserAgent,
			AppID:      cfg.Instagram.AppID,
			Timeout:    cfg.Instagram.RequestTimeout,
			HTTPClient: httpClient,
			Pacer:      pacer,
			Logger:     logger.ForComponent(log, "login"),
		})
	default:
		authenticator = instagram.NewSessionTokenAuth(cfg.Instagram.SessionID, cfg.Instagram.CSRFToken)
	}

	client := instagram.NewClient(instagram.Options{
		BaseURL:    cfg.Instagram.BaseURL,
		AppID:      cfg.Instagram.AppID,
		UserAgent:  cfg.Instagram.UserAgent,
		Timeout:    cfg.Instagram.RequestTimeout,
		HTTPClient: httpClient,
		Auth:       authenticator,
		Pacer:      pacer,
		Logger:     logger.ForComponent(log, "instagram"),
	})

	store, err := storage.NewManager(cfg.Output.RootDirectory, cfg.Output.PathPrefix)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeStorage, 0, "%v", err)
	}

	dl := downloader.New(downloader.Options{
		HTTPClient:  httpClient,
		UserAgent:   cfg.Instagram.UserAgent,
		Pacer:       pacer,
		MaxFileSize: cfg.Download.MaxFileSize,
		Logger:      logger.ForComponent(log, "downloader"),
	})
	pool := downloader.NewWorkerPool(cfg.Download.ConcurrentDownloads, dl, log)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Ingest.MetadataAttempts

	ingestor := ingest.NewIngestor(client, pool, store, ingest.Options{
		PostsPerAccount:  cfg.Ingest.PostsPerAccount,
		PrimaryTimeout:   cfg.Download.PrimaryTimeout,
		ThumbnailTimeout: cfg.Download.ThumbnailTimeout,
		Retry:            retryCfg,
		Observer:         observer,
		Logger:           logger.ForComponent(log, "ingest"),
	})

	return ingest.NewPipeline(ingestor, store, ingest.PipelineOptions{
		ManifestFile:           cfg.Output.ManifestFile,
		MaxConsecutiveFailures: cfg.Ingest.MaxConsecutiveFailures,
		Pacer:                  pacer,
		Preparer:               client,
		Logger:                 logger.ForComponent(log, "pipeline"),
	}), nil
}

// newCredentialManager opens the credential stores under the user config dir
func newCredentialManager() (*auth.Manager, error) {
	dir, err := auth.DefaultConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}
	return auth.NewManager(dir)
}

// consoleWriter returns where human-readable progress goes
func consoleWriter(w io.Writer) io.Writer {
	if quiet {
		return io.Discard
	}
	return w
}

func formatInterval(d time.Duration) string {
	if d <= 0 {
		return "once"
	}
	return "every " + d.String()
}
