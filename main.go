package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/opentracing/opentracing-go"
	"github.com/urfave/cli/v2"

	"github.com/mailflux/mailflux/config"
	"github.com/mailflux/mailflux/internal/cron"
	"github.com/mailflux/mailflux/internal/database"
	"github.com/mailflux/mailflux/internal/logger"
	"github.com/mailflux/mailflux/internal/repository"
	"github.com/mailflux/mailflux/internal/tracing"
	"github.com/mailflux/mailflux/server"
	"github.com/mailflux/mailflux/services"
	"github.com/mailflux/mailflux/services/worker"
)

func main() {
	app := &cli.App{
		Name:  "mailflux",
		Usage: "transactional email delivery service",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "start the HTTP API",
				Action: runServer,
			},
			{
				Name:   "worker",
				Usage:  "start the delivery worker",
				Action: runWorker,
			},
			{
				Name:   "migrate",
				Usage:  "run database migrations",
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(c *cli.Context) error {
	cfg, err := config.InitConfig()
	if err != nil {
		return err
	}

	db, err := database.NewConnection(cfg.DatabaseConfig)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(cfg, db)
	if err != nil {
		return err
	}
	return srv.Run()
}

func runWorker(c *cli.Context) error {
	cfg, err := config.InitConfig()
	if err != nil {
		return err
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return err
	}
	defer closer.Close()
	opentracing.SetGlobalTracer(tracer)

	db, err := database.NewConnection(cfg.DatabaseConfig)
	if err != nil {
		return err
	}

	repos := repository.InitRepositories(db)
	svcs, err := services.InitServices(cfg, appLogger, repos)
	if err != nil {
		return err
	}

	cronManager := cron.NewCronManager(cfg.CronConfig, appLogger, repos)
	if err := cronManager.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		appLogger.Info("Shutting down worker...")
		cancel()
	}()

	deliveryWorker := worker.NewWorker(repos, svcs.RelayService, svcs.JobQueue, svcs.EventsPublisher, appLogger)
	err = deliveryWorker.Run(ctx)

	cronManager.Stop()
	if svcs.EventsPublisher != nil {
		svcs.EventsPublisher.Close()
	}
	if closeErr := svcs.JobQueue.Close(); closeErr != nil {
		appLogger.Errorf("queue shutdown error: %v", closeErr)
	}
	return err
}

func runMigrate(c *cli.Context) error {
	cfg, err := config.InitConfig()
	if err != nil {
		return err
	}

	db, err := database.NewConnection(cfg.DatabaseConfig)
	if err != nil {
		return err
	}

	if err := repository.MigrateDB(db); err != nil {
		return err
	}
	log.Println("Database migration completed successfully")
	return nil
}
