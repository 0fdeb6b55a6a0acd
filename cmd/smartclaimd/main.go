package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SmartClaim/internal/api"
	"SmartClaim/internal/config"
	"SmartClaim/internal/dispatch"
	"SmartClaim/internal/notify"
	"SmartClaim/internal/observability/metrics"
	"SmartClaim/internal/session"
	"SmartClaim/internal/web3/provider"
	"SmartClaim/pkg/logger"

	"github.com/urfave/cli/v2"
)

// main 是 smartclaimd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "smartclaimd",
		Usage: "serve the SmartClaim insurance client, or drive a running instance",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{config.EnvPath},
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "override server.address",
			},
		},
		Action: func(c *cli.Context) error {
			return run(c.Context, c.String("config"), c.String("listen"))
		},
		Commands: clientCommands(),
	}

	if err := app.RunContext(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("smartclaimd 运行失败: %v", err)
	}
}

func run(ctx context.Context, configPath, listen string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.Address = listen
	}

	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()
	lg := logger.Named("smartclaimd")

	wallet, err := provider.Detect(ctx, cfg.Wallet)
	if err != nil {
		return err
	}
	if wallet != nil {
		defer wallet.Close()
		lg.Info("wallet provider ready", slog.String("provider", wallet.Name()))
	} else {
		lg.Warn("no wallet provider configured")
	}

	registry := metrics.New()

	feed := notify.NewFeed(cfg.Server.NoticeHistory)
	notifiers := []notify.Notifier{&notify.LogNotifier{Logger: logger.Named("notify")}, feed}
	if cfg.Notify.Redis.Enabled() {
		redisNotifier, err := notify.NewRedisNotifier(ctx, cfg.Notify.Redis)
		if err != nil {
			return err
		}
		defer redisNotifier.Close()
		notifiers = append(notifiers, redisNotifier)
	}
	if cfg.Notify.RabbitMQ.Enabled() {
		amqpNotifier, err := notify.NewRabbitMQNotifier(cfg.Notify.RabbitMQ)
		if err != nil {
			return err
		}
		defer amqpNotifier.Close()
		notifiers = append(notifiers, amqpNotifier)
	}
	notices := notify.NewFanout(notifiers...)

	sessions := session.NewManager(wallet,
		session.WithNotifier(notices),
		session.WithStateObserver(func(s session.State) { registry.SetSessionState(string(s)) }),
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sessions.Close(closeCtx); err != nil {
			lg.Warn("pending wallet binding did not finish", slog.Any("error", err))
		}
	}()

	dispatcher := dispatch.New(sessions,
		dispatch.WithNotifier(notices),
		dispatch.WithObserver(registry),
	)

	server := api.NewServer(cfg.Server.Address, sessions, dispatcher,
		api.WithNotices(feed),
		api.WithMetrics(registry),
	)
	return server.Start(ctx)
}
