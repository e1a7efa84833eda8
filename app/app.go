package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pdv-sorveteria/app/controller"
	"pdv-sorveteria/app/router"
	"pdv-sorveteria/config"
	"pdv-sorveteria/gateway"
	"pdv-sorveteria/ledger"
	"pdv-sorveteria/pricing"
	"pdv-sorveteria/service"
)

const shutdownTimeout = 30 * time.Second

// App is the wired terminal: ledger owner loop, payment coordinator and HTTP server
type App struct {
	cfg         *config.Config
	stores      *Stores
	loop        *service.OwnerLoop
	coordinator *service.SettlementCoordinator
	archiver    *service.ReceiptArchiver
	server      *http.Server
}

// NewGateway builds the payment gateway selected by GATEWAY
func NewGateway(cfg *config.Config) service.PaymentGatewayInterface {
	if cfg.Gateway == config.GatewayPoint {
		return gateway.NewPointClient(gateway.PointConfig{
			BaseURL:     cfg.GatewayBaseURL,
			AccessToken: cfg.GatewayAccessToken,
			DeviceID:    cfg.GatewayDeviceID,
			CollectorID: cfg.GatewayCollectorID,
			POSID:       cfg.GatewayPOSID,
			Timeout:     cfg.GatewayTimeout,
		})
	}
	log.Warn("🧪 Using the payment simulator, no real charges will be made")
	return gateway.NewSimulator(gateway.SimulatorConfig{})
}

// Initialize initializes the application
func Initialize(ctx context.Context, cfg *config.Config) (*App, error) {
	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	methods, err := cfg.PromotionMethods()
	if err != nil {
		stores.Close()
		return nil, err
	}
	loc, err := cfg.TimeLocation()
	if err != nil {
		stores.Close()
		return nil, err
	}
	engine := pricing.NewEngine(methods...)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(registry)

	receipts, err := service.NewReceiptService(engine, cfg.ReceiptTitle, cfg.ChromePath)
	if err != nil {
		stores.Close()
		return nil, err
	}

	board := service.NewStatusBoard()
	events := service.MultiDispatcher{service.LogDispatcher{}, board, metrics}

	var archiver *service.ReceiptArchiver
	if cfg.ReceiptsFolderID != "" {
		drive, err := service.NewDriveService(ctx, cfg.GoogleCredentials)
		if err != nil {
			stores.Close()
			return nil, err
		}
		archiver = service.NewReceiptArchiver(receipts, drive, cfg.ReceiptsFolderID)
		events = append(events, archiver)
	}

	loop := service.NewOwnerLoop(0)
	coordinator := service.NewSettlementCoordinator(
		ledger.New(cfg.Shop, engine),
		NewGateway(cfg),
		stores.History,
		loop,
		events,
		service.SettlementConfig{
			MinimumChargeable: cfg.MinimumCharge,
			PollInterval:      cfg.PollInterval,
			CancelOnSwitch:    cfg.CancelOnSwitch,
			AppendTimeout:     cfg.HistoryAppendTimeout,
			Location:          loc,
		},
	)
	terminal := service.NewTerminalService(loop, coordinator, stores.Catalog, board)

	var syncService *service.SyncService
	if stores.CatalogSource != nil {
		syncService = service.NewSyncService(stores.CatalogSource, stores.Catalog)
	}

	// Create controllers
	controllers := &router.Controllers{
		Terminal: controller.NewTerminalController(terminal),
		Catalog:  controller.NewCatalogController(terminal, syncService),
		History:  controller.NewHistoryController(service.NewHistoryService(stores.History), receipts),
	}

	return &App{
		cfg:         cfg,
		stores:      stores,
		loop:        loop,
		coordinator: coordinator,
		archiver:    archiver,
		server: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router.Router(controllers, registry),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves HTTP until ctx is canceled, then shuts down: running charges are
// canceled, pending history writes are awaited and the owner loop stops last.
func (a *App) Run(ctx context.Context) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.loop.Run(loopCtx)
	})

	g.Go(func() error {
		log.WithField("addr", a.server.Addr).Info("🚀 Server starting")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		defer stopLoop()
		return a.shutdown()
	})

	err := g.Wait()
	if cerr := a.stores.Close(); cerr != nil {
		log.WithError(cerr).Warn("⚠️ Error closing stores")
	}
	return err
}

func (a *App) shutdown() error {
	log.Info("🛑 Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var sessions []*service.PaymentSession
	if err := a.loop.Call(ctx, func() error {
		sessions = a.coordinator.CancelAll()
		return nil
	}); err != nil {
		log.WithError(err).Warn("⚠️ Could not cancel running charges")
	}
	// Pix cleanup runs on the session goroutines
	if err := service.WaitSessions(ctx, sessions); err != nil {
		log.WithError(err).Warn("⚠️ Payment sessions still running at shutdown")
	}

	if err := a.server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("⚠️ HTTP server shutdown")
	}

	if err := a.coordinator.WaitPending(ctx); err != nil {
		log.WithError(err).Error("❌ History writes still pending at shutdown")
	}
	// completions posted by the writes run before this no-op
	if err := a.loop.Call(ctx, func() error { return nil }); err != nil {
		log.WithError(err).Warn("⚠️ Could not drain owner loop")
	}

	if a.archiver != nil {
		if err := a.archiver.Wait(ctx); err != nil {
			log.WithError(err).Warn("⚠️ Receipt uploads still running at shutdown")
		}
	}

	log.Info("👋 Shutdown complete")
	return nil
}
