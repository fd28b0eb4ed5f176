package main

import (
	"github.com/rs/zerolog/log"

	upgrademgr "github.com/iosxe-tools/upgrademgr"
	"github.com/iosxe-tools/upgrademgr/internal/config"
	"github.com/iosxe-tools/upgrademgr/internal/store"
)

// Env overrides for local paths and the image repository URL.
const (
	envDBPath      = "UPGRADEMGR_DB"
	envJobLogDir   = "UPGRADEMGR_JOB_LOG_DIR"
	envRepoBaseURL = "UPGRADEMGR_REPO_URL"
	envCatalogPath = "UPGRADEMGR_MODEL_CATALOG"
)

// app bundles the wiring every subcommand needs: the database, job logs,
// device gateway and the job pipeline built on top of them.
type app struct {
	Store    *store.Store
	Logs     *store.JobLogs
	Gateway  *upgrademgr.Gateway
	Catalog  *upgrademgr.ModelCatalog
	Pipeline *upgrademgr.Pipeline
}

func openApp() (*app, error) {
	db, err := store.Open(config.String(envDBPath, "upgrademgr.db"))
	if err != nil {
		return nil, err
	}
	logs, err := store.NewJobLogs(config.String(envJobLogDir, "job_logs"))
	if err != nil {
		db.Close()
		return nil, err
	}

	// A missing catalog degrades every model to unsupported; discovery still
	// works, so this only warns.
	var catalog *upgrademgr.ModelCatalog
	catalogPath := config.String(envCatalogPath, "supported_models.json")
	if catalog, err = upgrademgr.LoadModelCatalog(catalogPath); err != nil {
		log.Warn().Err(err).Str("path", catalogPath).Msg("model catalog unavailable")
		catalog = nil
	}

	gateway := upgrademgr.NewGateway()
	a := &app{
		Store:   db,
		Logs:    logs,
		Gateway: gateway,
		Catalog: catalog,
		Pipeline: &upgrademgr.Pipeline{
			Store:       db,
			Gateway:     gateway,
			Logs:        logs,
			Events:      upgrademgr.NewEventSink(0),
			RepoBaseURL: config.String(envRepoBaseURL, "http://127.0.0.1:8080/repo"),
		},
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.Store.Close(); err != nil {
		log.Warn().Err(err).Msg("close database failed")
	}
}

func (a *app) discoverer() *upgrademgr.Discoverer {
	return &upgrademgr.Discoverer{Store: a.Store, Gateway: a.Gateway, Catalog: a.Catalog}
}
