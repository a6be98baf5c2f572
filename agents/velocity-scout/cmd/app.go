package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	velocityscout "velocity-scout/agents/velocity-scout"
	"velocity-scout/agents/velocity-scout/cloud"
	"velocity-scout/agents/velocity-scout/cloudsync"
	"velocity-scout/agents/velocity-scout/discovery"
	"velocity-scout/agents/velocity-scout/tasks"
	"velocity-scout/agents/velocity-scout/youtube"
	"velocity-scout/shared/config"
	"velocity-scout/shared/monitoring"
	"velocity-scout/shared/storage"
)

// legacyTokenFile is where older versions kept the Drive token.
const legacyTokenFile = "token.json"

// app wires the record store, sync engine and orchestrator for one command.
type app struct {
	cfg      *config.Config
	out      io.Writer
	engine   *cloudsync.Engine
	tasks    *tasks.Orchestrator
	registry *prometheus.Registry
}

func newApp(cfg *config.Config, out io.Writer, authFlow string) (*app, error) {
	removeLegacyToken()

	store, err := storage.Open(cfg.DatabaseFile)
	if err != nil {
		return nil, err
	}

	secretPath, err := clientSecretPath(cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}

	authorizer, err := newAuthorizer(authFlow, out)
	if err != nil {
		store.Close()
		return nil, err
	}

	engine := cloudsync.NewEngine(store, secretPath, authorizer, nil)

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewCollector(registry)

	pipeline := discovery.NewPipeline(func(ctx context.Context, apiKey string) (discovery.Catalog, error) {
		client, err := youtube.NewClient(ctx, apiKey, cfg.YouTube.RequestsPerSecond)
		if err != nil {
			return nil, err
		}
		return client, nil
	})
	pipeline.OnPage(func(int) { metrics.RecordPage() })

	orchestrator := tasks.New(pipeline, engine, func() tasks.Records { return engine.Store() }, metrics)

	log.Debug().Str("database", store.Path()).Msg("Record store opened")
	return &app{
		cfg:      cfg,
		out:      out,
		engine:   engine,
		tasks:    orchestrator,
		registry: registry,
	}, nil
}

// store returns the current record store. It changes after a download.
func (a *app) store() *storage.RecordStore {
	return a.engine.Store()
}

func (a *app) close() {
	a.tasks.Wait()
	if err := a.store().Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close record store")
	}
}

func (a *app) apiKey(alias string) velocityscout.APIKeyFunc {
	return func() (string, error) {
		return velocityscout.ResolveAPIKey(a.store(), a.cfg, alias)
	}
}

func (a *app) syncEnabled() bool {
	enabled, err := velocityscout.SyncEnabled(a.store(), a.cfg.Sync.Enabled)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read sync setting")
		return false
	}
	return enabled
}

// clientSecretPath prefers the configured client secret file over the one
// remembered in settings.
func clientSecretPath(cfg *config.Config, store *storage.RecordStore) (string, error) {
	if cfg.Sync.CredentialsFile != "" {
		return cfg.Sync.CredentialsFile, nil
	}
	path, _, err := store.GetSetting(storage.SettingCredentialsPath)
	return path, err
}

func newAuthorizer(flow string, out io.Writer) (cloud.Authorizer, error) {
	switch flow {
	case "", "device":
		return &cloud.DeviceAuthorizer{Out: out}, nil
	case "browser":
		return &cloud.LoopbackAuthorizer{Out: out}, nil
	default:
		return nil, fmt.Errorf("unknown auth flow %q (use device or browser)", flow)
	}
}

func removeLegacyToken() {
	err := os.Remove(legacyTokenFile)
	switch {
	case err == nil:
		log.Info().Str("file", legacyTokenFile).Msg("Deleted legacy token file, authorization now lives in the database")
	case !errors.Is(err, os.ErrNotExist):
		log.Warn().Err(err).Str("file", legacyTokenFile).Msg("Failed to delete legacy token file")
	}
}
