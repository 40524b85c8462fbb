package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parking-system/internal/config"
	"parking-system/internal/events"
	"parking-system/internal/logging"
	"parking-system/internal/parking"
	"parking-system/internal/server"
	"parking-system/internal/store/memstore"
	"parking-system/internal/store/mysqlstore"
)

var (
	mode    = flag.String("mode", "", "Mode to run: cli, server, or both (overrides APP_MODE)")
	port    = flag.String("port", "", "Port for HTTP server (overrides APP_PORT)")
	envFile = flag.String("env-file", ".env", "Optional dotenv file")
)

type store interface {
	parking.ParkingSpotStore
	parking.TicketStore
}

type app struct {
	cfg       *config.Config
	telemetry *parking.TelemetryProvider
	metrics   *parking.ParkingMetrics
	store     store
	fare      *parking.FareCalculator
	publisher parking.TicketEventPublisher
	ready     func(ctx context.Context) error
	closers   []func() error
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to load configuration")
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *port != "" {
		cfg.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		logging.Logger().Fatal().Err(err).Msg("invalid configuration")
	}

	if err := logging.Init(logging.Options{
		Development: cfg.IsDevelopment(),
		Level:       cfg.LogLevel,
		Service:     cfg.OTelServiceName,
	}); err != nil {
		logging.Logger().Fatal().Err(err).Msg("invalid log level")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	switch cfg.Mode {
	case "cli":
		a.runCLI(ctx, cancel, sigChan)
	case "server":
		a.runServer(ctx, cancel, sigChan)
	case "both":
		a.runBoth(ctx, cancel, sigChan)
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	telemetry, err := parking.NewTelemetryProvider(ctx, parking.TelemetryConfig{
		ServiceName:  cfg.OTelServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTelEndpoint,
	})
	if err != nil {
		return nil, err
	}

	metrics, err := parking.NewParkingMetrics(telemetry)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		telemetry: telemetry,
		metrics:   metrics,
		fare: parking.NewFareCalculatorWithRates(map[parking.ParkingType]float64{
			parking.ParkingTypeCar:  cfg.CarRatePerHour,
			parking.ParkingTypeBike: cfg.BikeRatePerHour,
		}, cfg.FreeParkingDuration(), cfg.RecurringDiscount),
	}

	if cfg.DatabaseDSN != "" {
		db, err := mysqlstore.Open(ctx, mysqlstore.Config{DSN: cfg.DatabaseDSN, Debug: cfg.IsDevelopment()})
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			return nil, err
		}
		if err := db.Seed(ctx, cfg.CarSpots, cfg.BikeSpots); err != nil {
			return nil, err
		}
		a.store = db
		a.ready = db.Ping
		a.closers = append(a.closers, db.Close)
		logging.Logger().Info().Msg("using MySQL storage")
	} else {
		a.store = memstore.New(cfg.CarSpots, cfg.BikeSpots)
		logging.Logger().Info().
			Int("car_spots", cfg.CarSpots).
			Int("bike_spots", cfg.BikeSpots).
			Msg("using in-memory storage")
	}

	if cfg.AMQPURL != "" {
		publisher, err := events.Dial(ctx, cfg.AMQPURL)
		if err != nil {
			// The facility keeps working without events.
			logging.Logger().Warn().Err(err).Msg("ticket events disabled")
		} else {
			a.publisher = publisher
			a.closers = append(a.closers, publisher.Close)
		}
	}

	return a, nil
}

func (a *app) newShell() *parking.InstrumentedShell {
	input := parking.NewConsoleInputReader(os.Stdin)

	opts := []parking.Option{parking.WithFareCalculator(a.fare), parking.WithOutput(os.Stdout)}
	if a.publisher != nil {
		opts = append(opts, parking.WithPublisher(a.publisher))
	}
	service := parking.NewParkingService(input, a.store, a.store, opts...)
	processor := parking.NewInstrumentedParkingService(service, a.telemetry, a.metrics)

	return parking.NewInstrumentedShell(processor, input, os.Stdout, a.telemetry)
}

func (a *app) newServer() *server.Server {
	return server.NewServer(a.cfg.Port, server.Dependencies{
		ServiceName: a.cfg.OTelServiceName,
		Spots:       a.store,
		Tickets:     a.store,
		Fare:        a.fare,
		Publisher:   a.publisher,
		Telemetry:   a.telemetry,
		Metrics:     a.metrics,
		Ready:       a.ready,
	})
}

func (a *app) runCLI(ctx context.Context, cancel context.CancelFunc, sigChan chan os.Signal) {
	go func() {
		<-sigChan
		logging.Logger().Info().Msg("shutting down")
		cancel()
	}()

	a.newShell().Run(ctx)
}

func (a *app) runServer(ctx context.Context, cancel context.CancelFunc, sigChan chan os.Signal) {
	srv := a.newServer()

	go func() {
		<-sigChan
		logging.Logger().Info().Msg("received shutdown signal")
		shutdownServer(srv)
		cancel()
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error(ctx).Err(err).Msg("server error")
	}
}

func (a *app) runBoth(ctx context.Context, cancel context.CancelFunc, sigChan chan os.Signal) {
	srv := a.newServer()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start()
	}()

	cliDone := make(chan struct{})
	go func() {
		a.newShell().Run(ctx)
		close(cliDone)
	}()

	go func() {
		<-sigChan
		logging.Logger().Info().Msg("received shutdown signal")
		cancel()
	}()

	select {
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx).Err(err).Msg("server error")
		}
	case <-cliDone:
		logging.Logger().Info().Msg("CLI exited")
	case <-ctx.Done():
		logging.Logger().Info().Msg("context cancelled")
	}

	shutdownServer(srv)
}

func shutdownServer(srv *server.Server) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Logger().Error().Err(err).Msg("server shutdown error")
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Logger().Warn().Err(err).Msg("close failed")
		}
	}

	logging.Logger().Info().Msg("shutting down telemetry")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
		logging.Logger().Error().Err(err).Msg("error shutting down telemetry")
	}
}
