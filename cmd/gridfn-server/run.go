package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dukex/gridfn/pkg/cmd"
	"github.com/dukex/gridfn/pkg/command"
	"github.com/dukex/gridfn/pkg/engine"
	"github.com/dukex/gridfn/pkg/eventbus"
	builtins "github.com/dukex/gridfn/pkg/functions"
	"github.com/dukex/gridfn/pkg/log"
	"github.com/dukex/gridfn/pkg/otelhelper"
	"github.com/dukex/gridfn/pkg/registry"
	"github.com/dukex/gridfn/pkg/server"
	"github.com/dukex/gridfn/pkg/web"
	"github.com/dukex/gridfn/pkg/wire"
)

type options struct {
	addr                   string
	memberID               string
	catalog                string
	databaseURL            string
	eventBus               string
	kafkaBrokers           string
	readTimeout            time.Duration
	defaultFunctionTimeout int32
	maxConnections         int
	workers                int
	adminPort              int
	historyRetention       time.Duration
	pruneSchedule          string
	statsSchedule          string
	otel                   bool
}

func run(ctx context.Context, opts options) error {
	logger := log.WithModule("gridfn-server").With("member", opts.memberID)

	logger.InfoContext(ctx, "Initializing gridfn member")

	if opts.otel {
		tp, err := otelhelper.NewTracerProvider(ctx, "gridfn-server")
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := tp.Shutdown(shutdownCtx)
			if err != nil {
				logger.Error("Failed to shut down tracer provider", "error", err)
			}
		}()
	}

	codec, err := command.NewCodec()
	if err != nil {
		return fmt.Errorf("failed to build codec: %w", err)
	}

	functions := registry.NewRegistry(logger)
	functions.MustRegister(builtins.Builtins(logger, nil)...)

	regions, err := cmd.NewCatalog(logger, opts.catalog)
	if err != nil {
		return fmt.Errorf("failed to load region catalog: %w", err)
	}

	history, err := cmd.NewHistory(ctx, logger, opts.databaseURL)
	if err != nil {
		return err
	}

	defer func() {
		err := history.Close(context.Background())
		if err != nil {
			logger.Error("Failed to close history", "error", err)
		}
	}()

	bus, err := cmd.NewEventBus(opts.eventBus, opts.kafkaBrokers, logger)
	if err != nil {
		return err
	}

	defer func() {
		err := bus.Close()
		if err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	err = eventbus.RegisterHistoryRecorder(bus, history, logger)
	if err != nil {
		return fmt.Errorf("failed to register history recorder: %w", err)
	}

	err = bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to execution events: %w", err)
	}

	execute := command.New(command.Config{
		Codec:                codec,
		Functions:            functions,
		Regions:              regions,
		Engine:               engine.NewLocal(opts.memberID, logger, engine.WithWorkers(opts.workers)),
		Observer:             eventbus.NewExecutionPublisher(bus, opts.memberID, logger),
		Tracer:               otelhelper.Tracer("gridfn/command"),
		Logger:               logger,
		DefaultTimeoutMillis: opts.defaultFunctionTimeout,
	})

	srv, err := server.New(server.Config{
		Addr:            opts.addr,
		MemberID:        opts.memberID,
		ReadTimeout:     opts.readTimeout,
		ShutdownTimeout: 10 * time.Second,
		MaxConnections:  opts.maxConnections,
	}, logger)
	if err != nil {
		return err
	}

	srv.Handle(wire.MessageExecuteRegionFunction, server.CommandFunc(
		func(ctx context.Context, msg *wire.Message, conn *server.Connection) {
			execute.Execute(ctx, msg, conn)
		},
	))

	scheduler, err := startJobs(ctx, logger, opts, history, srv)
	if err != nil {
		return err
	}

	defer func() {
		<-scheduler.Stop().Done()
	}()

	if opts.adminPort > 0 {
		app := web.NewApp(web.NewAPIHandlers(functions, regions, history, srv))

		go func() {
			err := app.Listen(":" + strconv.Itoa(opts.adminPort))
			if err != nil {
				logger.Error("Admin API stopped", "error", err)
			}
		}()

		defer func() {
			err := app.Shutdown()
			if err != nil {
				logger.Error("Failed to shut down admin API", "error", err)
			}
		}()
	}

	err = srv.ListenAndServe(ctx)
	if err != nil && !errors.Is(err, server.ErrServerClosed) {
		return err
	}

	logger.Info("gridfn member stopped")

	return nil
}
