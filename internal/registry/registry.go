// Package registry constructs every process-wide singleton this engine
// needs — configuration, logging, storage, and the Channel Catalog,
// Live-Status Poller, Subscriber Hub, Auto-STT Supervisor, Caption
// Refiner, and VOD Batch Worker — and wires them onto the HTTP server.
// This is the one place that knows about every other package; only the
// serve command imports it.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/jihoonkim/legisub/internal/asr"
	"github.com/jihoonkim/legisub/internal/catalog"
	"github.com/jihoonkim/legisub/internal/config"
	"github.com/jihoonkim/legisub/internal/database"
	internalhttp "github.com/jihoonkim/legisub/internal/http"
	"github.com/jihoonkim/legisub/internal/http/handlers"
	"github.com/jihoonkim/legisub/internal/hub"
	"github.com/jihoonkim/legisub/internal/livestatus"
	"github.com/jihoonkim/legisub/internal/observability"
	"github.com/jihoonkim/legisub/internal/refiner"
	"github.com/jihoonkim/legisub/internal/spacing"
	"github.com/jihoonkim/legisub/internal/store"
	"github.com/jihoonkim/legisub/internal/supervisor"
	"github.com/jihoonkim/legisub/internal/terminology"
	"github.com/jihoonkim/legisub/internal/vod"
	"github.com/jihoonkim/legisub/internal/worker"
	"github.com/jihoonkim/legisub/pkg/httpclient"
)

// App bundles every process-wide singleton this engine runs. Construct
// with New; the caller is responsible for starting the long-running
// components (Supervisor, Refiner, the scheduler, and the HTTP server).
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	DB         *database.DB
	Store      store.Store
	Catalog    *catalog.Catalog
	Dictionary *terminology.Dictionary
	Hub        *hub.Hub
	Poller     *livestatus.Poller
	Workers    *worker.Manager
	Supervisor *supervisor.Supervisor
	Refiner    *refiner.Refiner
	VOD        *vod.Tracker
	Server     *internalhttp.Server
}

// New loads configuration, constructs every singleton, and wires the HTTP
// handlers onto a server. It does not start anything — the caller is
// responsible for that.
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return NewFromConfig(cfg)
}

// NewFromConfig builds an App from an already-loaded Config. Exposed
// separately so tests can construct an App against a Config literal
// without touching the filesystem or environment.
func NewFromConfig(cfg *config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.Logging)

	httpClientCfg := httpclient.DefaultConfig()
	httpClientCfg.Logger = logger
	sharedClient := httpclient.New(httpClientCfg)

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	gormStore := store.NewGormStore(db.DB)
	if err := gormStore.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	channels := make([]catalog.Channel, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channels = append(channels, catalog.Channel{
			ID:           ch.ID,
			DisplayName:  ch.DisplayName,
			UpstreamCode: ch.UpstreamCode,
			PlaylistURL:  ch.PlaylistURL,
		})
	}
	cat := catalog.New(channels)

	dict := terminology.New(nil)

	hubInstance := hub.New(logger)

	poller := livestatus.New(sharedClient, livestatus.Config{
		Endpoint:      cfg.LiveStatus.Endpoint,
		CacheTTL:      cfg.LiveStatus.CacheTTL,
		QueueCapacity: cfg.LiveStatus.SubscriberQueueSize,
	}, logger)

	var refinerInstance *refiner.Refiner
	var workerRefiner worker.Refiner
	if cfg.Refiner.RewriterURL != "" {
		refinerInstance = refiner.New(refiner.Config{
			HTTPClient:     sharedClient,
			Hub:            hubInstance,
			RewriterURL:    cfg.Refiner.RewriterURL,
			RewriterAPIKey: cfg.Refiner.RewriterAPIKey,
			RewriterModel:  cfg.Refiner.RewriterModel,
			Roster:         refiner.Roster(cfg.Refiner.Roster),
			BatchSize:      cfg.Refiner.BatchSize,
			BatchInterval:  cfg.Refiner.BatchInterval,
			Logger:         logger,
		})
		workerRefiner = refinerInstance
	}

	workers := worker.NewManager(worker.Config{
		HTTPClient:   sharedClient,
		Hub:          hubInstance,
		Dictionary:   dict,
		Spacing:      spacing.Get(),
		Refiner:      workerRefiner,
		ASRProvider:  cfg.ASR.ProviderURL,
		ASRAPIKey:    cfg.ASR.APIKey,
		ASRLanguage:  cfg.ASR.Language,
		SampleRateHz: cfg.ASR.SampleRateHz,
		Logger:       logger,
	})

	sup := supervisor.New(cat, poller, workers, logger)

	asrClient := asr.NewPrerecordedClient(sharedClient, cfg.ASR.PrerecordedURL, cfg.ASR.APIKey)

	vodTracker := vod.NewTracker(vod.Config{
		HTTPClient:        sharedClient,
		ASR:               asrClient,
		Dictionary:        dict,
		Store:             gormStore,
		Logger:            logger,
		DownloadTimeout:   cfg.VOD.DownloadTimeout,
		TranscribeTimeout: cfg.VOD.TranscribeTimeout,
		DownloadChunkSize: int(cfg.VOD.DownloadChunkSize),
		UploadChunkSize:   int(cfg.VOD.UploadChunkSize),
	})

	serverCfg := internalhttp.DefaultServerConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port
	if cfg.Server.ReadTimeout > 0 {
		serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout > 0 {
		serverCfg.WriteTimeout = cfg.Server.WriteTimeout
	}
	if cfg.Server.ShutdownTimeout > 0 {
		serverCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}

	server := internalhttp.NewServer(serverCfg, logger, "dev")

	app := &App{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Store:      gormStore,
		Catalog:    cat,
		Dictionary: dict,
		Hub:        hubInstance,
		Poller:     poller,
		Workers:    workers,
		Supervisor: sup,
		Refiner:    refinerInstance,
		VOD:        vodTracker,
		Server:     server,
	}
	app.registerHandlers()
	return app, nil
}

// registerHandlers mounts every HTTP handler onto the server's router (raw
// chi for the streaming endpoints) and API (huma for typed JSON).
func (a *App) registerHandlers() {
	handlers.NewHealthHandler("dev").WithDB(a.DB.DB).Register(a.Server.API())
	handlers.NewCircuitBreakerHandler(httpclient.DefaultManager).Register(a.Server.API())
	handlers.NewIntrospectionHandler(a.Catalog, a.Workers, a.VOD).Register(a.Server.API())

	handlers.NewSubscriberHandler(a.Hub, a.Logger).Register(a.Server.Router())
	handlers.NewStatusStreamHandler(a.Poller, a.Logger).Register(a.Server.Router())
}
