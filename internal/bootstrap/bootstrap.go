package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	deviceinadapter "uvfleet/internal/modules/device/adapter/in"
	deviceoutadapter "uvfleet/internal/modules/device/adapter/out"
	devicein "uvfleet/internal/modules/device/port/in"
	deviceout "uvfleet/internal/modules/device/port/out"
	deviceservice "uvfleet/internal/modules/device/service"
	deviceusecase "uvfleet/internal/modules/device/usecase"
	outcomeinadapter "uvfleet/internal/modules/outcome/adapter/in"
	outcomeoutadapter "uvfleet/internal/modules/outcome/adapter/out"
	outcomein "uvfleet/internal/modules/outcome/port/in"
	outcomeservice "uvfleet/internal/modules/outcome/service"
	outcomeusecase "uvfleet/internal/modules/outcome/usecase"
	scheduleinadapter "uvfleet/internal/modules/schedule/adapter/in"
	scheduleoutadapter "uvfleet/internal/modules/schedule/adapter/out"
	schedulein "uvfleet/internal/modules/schedule/port/in"
	scheduleservice "uvfleet/internal/modules/schedule/service"
	scheduleusecase "uvfleet/internal/modules/schedule/usecase"
	sessioninadapter "uvfleet/internal/modules/session/adapter/in"
	sessionoutadapter "uvfleet/internal/modules/session/adapter/out"
	sessionin "uvfleet/internal/modules/session/port/in"
	sessionservice "uvfleet/internal/modules/session/service"
	sessionusecase "uvfleet/internal/modules/session/usecase"
	"uvfleet/internal/platform/clock"
	"uvfleet/internal/platform/config"
	"uvfleet/internal/platform/id"
	"uvfleet/internal/platform/logging"
	"uvfleet/internal/platform/metrics"
	"uvfleet/internal/platform/ringlog"
	"uvfleet/internal/platform/store"

	"github.com/rs/zerolog"
)

const ringCapacity = 50

// Options overrides the ambient collaborators. Zero values mean the
// production defaults.
type Options struct {
	Clock     clock.Clock
	IDs       id.Generator
	LogOutput io.Writer
	// Transport replaces the configured driver.
	Transport deviceout.Transport
}

type App struct {
	Config    config.Config
	Logger    zerolog.Logger
	Ring      *ringlog.Buffer
	Metrics   *metrics.Metrics
	StartedAt time.Time

	Devices   devicein.Usecase
	Sessions  sessionin.Usecase
	Schedules schedulein.Usecase
	Logs      outcomein.Usecase

	DeviceCLI   deviceinadapter.CLIHandler
	SessionCLI  sessioninadapter.CLIHandler
	ScheduleCLI scheduleinadapter.CLIHandler
	OutcomeCLI  outcomeinadapter.CLIHandler

	clock      clock.Clock
	store      store.Store
	transport  deviceout.Transport
	controller *sessionservice.Controller
	recorder   *outcomeservice.Recorder
	engine     *scheduleservice.Engine
}

func New(cfg config.Config, opts Options) (*App, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = id.UUID{}
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	ring := ringlog.New(ringCapacity)
	logger := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    opts.LogOutput,
		Ring:   ring,
	})
	m := metrics.New()

	db, err := store.Open(cfg.Storage.Driver, cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		transport, err = newTransport(cfg, clk, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	deviceSvc := deviceservice.NewDeviceService(deviceservice.NewRegistry(), transport, clk, logger, m, deviceservice.Options{
		ConnectTimeout: cfg.Transport.ConnectTimeout,
		PollInterval:   cfg.Monitor.PollInterval,
	})
	deviceUC := deviceusecase.NewInteractor(deviceSvc)

	gateway := sessionoutadapter.NewDeviceGateway(deviceUC)
	controller := sessionservice.NewController(gateway, gateway, clk, ids, logger, m, sessionservice.Options{
		TickInterval:   cfg.Session.TickInterval,
		CommandTimeout: cfg.Transport.CommandTimeout,
	})
	sessionUC := sessionusecase.NewInteractor(controller)

	recorder := outcomeservice.NewRecorder(
		sessionUC,
		outcomeoutadapter.NewStoreLogs(db),
		outcomeoutadapter.NewStoreSchedules(db),
		clk, ids, logger, m,
	)
	outcomeUC := outcomeusecase.NewInteractor(recorder)

	engine := scheduleservice.NewEngine(
		scheduleoutadapter.NewStoreRepository(db),
		scheduleoutadapter.NewDeviceLookup(deviceUC),
		scheduleoutadapter.NewSessionStarter(sessionUC),
		scheduleoutadapter.NewRecorderResolver(outcomeUC),
		clk, ids, logger, m,
		scheduleservice.Options{
			SweepInterval:    cfg.Schedule.SweepInterval,
			PromotionTimeout: cfg.Schedule.PromotionTimeout,
		},
	)
	scheduleUC := scheduleusecase.NewInteractor(engine)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Ring:        ring,
		Metrics:     m,
		StartedAt:   clk.Now(),
		Devices:     deviceUC,
		Sessions:    sessionUC,
		Schedules:   scheduleUC,
		Logs:        outcomeUC,
		DeviceCLI:   deviceinadapter.NewCLIHandler(deviceUC),
		SessionCLI:  sessioninadapter.NewCLIHandler(sessionUC),
		ScheduleCLI: scheduleinadapter.NewCLIHandler(scheduleUC),
		OutcomeCLI:  outcomeinadapter.NewCLIHandler(outcomeUC),
		clock:       clk,
		store:       db,
		transport:   transport,
		controller:  controller,
		recorder:    recorder,
		engine:      engine,
	}, nil
}

func newTransport(cfg config.Config, clk clock.Clock, logger zerolog.Logger) (deviceout.Transport, error) {
	switch cfg.Transport.Driver {
	case "plugin":
		t, err := deviceoutadapter.NewPluginTransport(deviceoutadapter.PluginOptions{
			Binary: cfg.Transport.PluginBinary,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("start plugin transport: %w", err)
		}
		return t, nil
	default:
		return deviceoutadapter.NewSimTransport(deviceoutadapter.SimOptions{
			Seed:               cfg.Simulator.Seed,
			ConnectFailureRate: cfg.Simulator.ConnectFailureRate,
			CommandFailureRate: cfg.Simulator.CommandFailureRate,
			DiscoveryRate:      cfg.Simulator.DiscoveryRate,
			Clock:              clk,
		}), nil
	}
}

// Close releases the controller, the transport and the store in that order.
func (a *App) Close() error {
	a.controller.Close()
	if err := a.transport.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("transport close failed")
	}
	return a.store.Close()
}

// Prime loads the device list once so name lookups work before any scan.
func (a *App) Prime(ctx context.Context) {
	if _, err := a.Devices.Scan(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("initial device scan failed")
	}
}
