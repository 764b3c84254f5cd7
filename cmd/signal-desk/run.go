package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/kirillm/signal-desk/internal/api"
	"github.com/kirillm/signal-desk/internal/config"
	"github.com/kirillm/signal-desk/internal/discord"
	"github.com/kirillm/signal-desk/internal/domain"
	"github.com/kirillm/signal-desk/internal/policy"
	"github.com/kirillm/signal-desk/internal/session"
	"github.com/kirillm/signal-desk/internal/storage"
	"github.com/kirillm/signal-desk/internal/telegram"
	"github.com/kirillm/signal-desk/internal/validation"
	"github.com/kirillm/signal-desk/internal/workflow"
	"github.com/kirillm/signal-desk/pkg/utils"
)

// runner бот выбранной платформы
type runner interface {
	Run(ctx context.Context) error
}

func runAction(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if p := c.String("platform"); p != "" {
		cfg.Bot.Platform = strings.ToLower(p)
	}
	if c.Bool("register-commands") {
		cfg.Discord.RegisterCommands = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateBot(); err != nil {
		return err
	}

	logger := utils.NewLogger(cfg.Bot.LogLevel, cfg.Bot.LogFormat)
	log := logger.WithField("cmd", "run")
	log.WithFields(logrus.Fields{
		"platform": cfg.Bot.Platform,
		"driver":   cfg.Database.Driver,
		"version":  Version,
	}).Info("Starting signal desk")

	st, err := storage.Open(cfg.Database, logrus.NewEntry(logger))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Warn("Failed to close database")
		}
	}()

	known, err := config.LoadAssets(cfg.Trading.AssetsFile)
	if err != nil {
		return err
	}
	catalog := domain.NewAssetCatalog(cfg.Trading.SupportedAssets, known)

	locks := session.NewManager(session.NewMemoryStore(), cfg.Session.LockTimeout, utils.Component(logger, "sessions"))
	texts := workflow.NewFormatter(policy.ParseLang(cfg.Bot.Language))

	flows := workflow.NewRouter(&workflow.Deps{
		Store:           st,
		Locks:           locks,
		Validator:       validation.NewValidator(catalog),
		Formatter:       texts,
		Footer:          cfg.Bot.Footer,
		PurgeConfirmTTL: cfg.Session.PurgeConfirmTTL,
		Logger:          logrus.NewEntry(logger),
	}, cfg.Session.InteractionMaxAge)

	bot, err := newBot(cfg, flows, texts, logrus.NewEntry(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(ctx)
	})
	if cfg.HTTP.Enabled {
		server := api.NewServer(st, locks, cfg.HTTP.ServiceName, cfg.Bot.Platform, cfg.HTTP.Port, logrus.NewEntry(logger))
		g.Go(func() error {
			return server.Start(ctx)
		})
	}

	err = g.Wait()
	log.Info("Signal desk stopped")
	return err
}

func newBot(cfg *config.Config, flows *workflow.Router, texts *workflow.Formatter, logger *logrus.Entry) (runner, error) {
	switch cfg.Bot.Platform {
	case config.PlatformTelegram:
		auth := telegram.NewAuthManager(cfg.Telegram.Admins, cfg.Telegram.Whitelist, cfg.Telegram.RateLimit)
		formatter := telegram.NewFormatter(texts)
		router := telegram.NewRouter(flows, auth, formatter, logger)
		return telegram.NewBot(cfg.Telegram.BotToken, router, formatter, auth, cfg.Telegram.PublicChatID, logger)
	default:
		return discord.NewBot(cfg.Discord, flows, logger)
	}
}
