// Package main runs a gridfn member: the function execution listener plus
// its admin API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/gridfn/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultAddr      = ":40404"
	defaultAdminPort = 9091
)

func main() {
	cmd := &cli.Command{
		Name:                  "gridfn-server",
		Usage:                 "Serve execute-region-function requests",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "Address the function listener binds to",
				Value:   defaultAddr,
				Sources: cli.EnvVars("GRIDFN_ADDR"),
			},
			&cli.StringFlag{
				Name:    "member-id",
				Aliases: []string{"id"},
				Usage:   "Member ID (auto-generated if not provided)",
				Sources: cli.EnvVars("GRIDFN_MEMBER_ID"),
			},
			&cli.StringFlag{
				Name:    "catalog",
				Usage:   "Region catalog: a YAML file or a redis:// URL",
				Sources: cli.EnvVars("GRIDFN_CATALOG"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Execution history store (postgres:// URL, in memory otherwise)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "read-timeout",
				Usage:   "Client socket timeout a connection starts with (0 disables)",
				Value:   0,
				Sources: cli.EnvVars("GRIDFN_READ_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "default-function-timeout",
				Usage:   "Function timeout in milliseconds for clients that do not send one",
				Value:   0,
				Sources: cli.EnvVars("GRIDFN_DEFAULT_FUNCTION_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "max-connections",
				Usage:   "Maximum concurrent client connections (0 is unlimited)",
				Value:   0,
				Sources: cli.EnvVars("GRIDFN_MAX_CONNECTIONS"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Buckets executed concurrently per call",
				Value:   8,
				Sources: cli.EnvVars("GRIDFN_WORKERS"),
			},
			&cli.IntFlag{
				Name:    "admin-port",
				Usage:   "Port of the admin API (0 disables it)",
				Value:   defaultAdminPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.DurationFlag{
				Name:    "history-retention",
				Usage:   "How long execution history is kept",
				Value:   7 * 24 * time.Hour,
				Sources: cli.EnvVars("GRIDFN_HISTORY_RETENTION"),
			},
			&cli.StringFlag{
				Name:    "prune-schedule",
				Usage:   "Cron expression of the history prune job",
				Value:   "@hourly",
				Sources: cli.EnvVars("GRIDFN_PRUNE_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "stats-schedule",
				Usage:   "Cron expression of the connection stats job",
				Value:   "@every 1m",
				Sources: cli.EnvVars("GRIDFN_STATS_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("GRIDFN_OTEL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json, tint)",
				Value:   log.FormatText,
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			memberID := command.String("member-id")
			if memberID == "" {
				memberID = "member-" + uuid.New().String()[:8]
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, options{
				addr:                   command.String("addr"),
				memberID:               memberID,
				catalog:                command.String("catalog"),
				databaseURL:            command.String("database-url"),
				eventBus:               command.String("event-bus"),
				kafkaBrokers:           command.String("kafka-brokers"),
				readTimeout:            command.Duration("read-timeout"),
				defaultFunctionTimeout: int32(command.Int("default-function-timeout")),
				maxConnections:         command.Int("max-connections"),
				workers:                command.Int("workers"),
				adminPort:              command.Int("admin-port"),
				historyRetention:       command.Duration("history-retention"),
				pruneSchedule:          command.String("prune-schedule"),
				statsSchedule:          command.String("stats-schedule"),
				otel:                   command.Bool("otel"),
			})
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
