package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/hray3182/chime/internal/api"
	"github.com/hray3182/chime/internal/bot"
	"github.com/hray3182/chime/internal/config"
	"github.com/hray3182/chime/internal/database"
	"github.com/hray3182/chime/internal/dispatch"
	"github.com/hray3182/chime/internal/events"
	"github.com/hray3182/chime/internal/localstore"
	"github.com/hray3182/chime/internal/logger"
	"github.com/hray3182/chime/internal/notify"
	"github.com/hray3182/chime/internal/remotesync"
	"github.com/hray3182/chime/internal/repository"
	"github.com/hray3182/chime/internal/scheduler"
	"github.com/hray3182/chime/internal/speech"
	"github.com/hray3182/chime/internal/store"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		logrus.WithError(err).WithField("config_path", flags.configPath).Fatal("Failed to load config")
	}
	if flags.listen != "" {
		cfg.Listen = flags.listen
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		logrus.WithError(err).Warn("Falling back to info logging")
	}

	logrus.WithFields(logrus.Fields{
		"listen":       cfg.Listen,
		"data_path":    cfg.DataPath,
		"lead_minutes": cfg.LeadMinutes,
		"cooldown":     cfg.Cooldown(),
		"speech":       cfg.Speech.Enabled,
		"once":         flags.once,
	}).Info("chime starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logrus.WithField("signal", sig.String()).Info("Shutting down...")
		cancel()
	}()

	db, err := localstore.Open(ctx, cfg.DataPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open local store")
	}
	defer db.Close()

	bus := events.NewBus()
	st := store.New(db, bus, nil)
	st.Load(ctx)

	// Telegram is optional: it mirrors reminders and accepts commands.
	var tgAPI *tgbotapi.BotAPI
	if cfg.TelegramToken != "" && cfg.Notify.TelegramChatID != 0 {
		tgAPI, err = tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			logrus.WithError(err).Warn("Telegram disabled")
			tgAPI = nil
		}
	}

	queue := buildSpeech(cfg)
	var speaker dispatch.Speaker
	if queue != nil {
		speaker = queue
	}
	disp := dispatch.New(buildNotifier(cfg, tgAPI), speaker, dispatch.VoiceOptions{
		Voice: cfg.Speech.Voice,
		Speed: cfg.Speech.Speed,
	})

	sched := scheduler.New(st, disp, scheduler.Options{
		LeadMinutes:     cfg.LeadMinutes,
		Cooldown:        cfg.Cooldown(),
		DispatchTimeout: cfg.DispatchTimeout(),
	}, nil)

	if flags.once {
		tx := sched.Tick(ctx, time.Now())
		if queue != nil {
			queue.Drain(ctx)
		}
		if err := st.Flush(ctx); err != nil {
			logrus.WithError(err).Fatal("Failed to save schedules")
		}
		logrus.WithField("reminders", len(tx.Requests)).Info("Single pass completed")
		return
	}

	var wg sync.WaitGroup
	run := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	run(func() { st.Run(ctx) })
	if queue != nil {
		run(func() { queue.Run(ctx) })
	}

	// User edits are evaluated right away instead of at the next minute.
	changes, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	run(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-changes:
				if !ok {
					return
				}
				if c.Source == events.SourceUser {
					sched.Notify()
				}
			}
		}
	})

	run(func() { sched.Start(ctx) })

	if cfg.DatabaseURI != "" {
		remoteDB, err := database.New(ctx, cfg.DatabaseURI)
		if err != nil {
			logrus.WithError(err).Error("Remote database unavailable, sync disabled")
		} else {
			defer remoteDB.Close()
			if err := remoteDB.Migrate(ctx); err != nil {
				logrus.WithError(err).Fatal("Failed to run migrations")
			}
			syncer := remotesync.New(st, repository.NewScheduleRepository(remoteDB), cfg.DispatchTimeout())
			run(func() {
				if err := syncer.Start(ctx, cfg.Remote.SyncCron); err != nil {
					logrus.WithError(err).Error("Remote sync not started")
				}
			})
		}
	}

	if tgAPI != nil {
		b := bot.New(tgAPI, st, cfg.Notify.TelegramChatID)
		run(func() {
			if err := b.Start(ctx); err != nil && err != context.Canceled {
				logrus.WithError(err).Error("Telegram bot stopped")
			}
		})
	}

	server := api.NewServer(st, cfg.LeadMinutes, nil)
	if err := server.Run(ctx, cfg.Listen); err != nil {
		logrus.WithError(err).Error("HTTP API stopped")
		cancel()
	}

	wg.Wait()
	logrus.Info("chime exiting")
}

func buildNotifier(cfg *config.Config, tgAPI *tgbotapi.BotAPI) dispatch.Notifier {
	var notifiers notify.Multi
	if cfg.Notify.Desktop {
		notifiers = append(notifiers, notify.NewDesktop(cfg.Notify.DesktopCommand))
	}
	if tgAPI != nil {
		notifiers = append(notifiers, notify.NewTelegram(tgAPI, cfg.Notify.TelegramChatID))
		logrus.WithField("chat_id", cfg.Notify.TelegramChatID).Info("Telegram mirror enabled")
	}
	if len(notifiers) == 0 {
		return nil
	}
	return notifiers
}

func buildSpeech(cfg *config.Config) *speech.Queue {
	if !cfg.Speech.Enabled {
		return nil
	}
	var engine speech.Engine
	switch {
	case cfg.Speech.Engine == "openai" && cfg.OpenAIAPIKey != "":
		engine = speech.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Speech.Model, cfg.Speech.Player)
		logrus.WithField("model", cfg.Speech.Model).Info("Speech via OpenAI")
	default:
		if cfg.Speech.Engine == "openai" {
			logrus.Warn("OPENAI_API_KEY not set, falling back to local speech command")
		}
		engine = speech.NewCommand(cfg.Speech.Command)
	}
	return speech.NewQueue(engine, cfg.Speech.QueueSize, 2*time.Minute)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", defaultConfigPath(), "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one evaluation pass and exit")

	flag.Parse()

	return cfg
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "chime", "config.yaml")
}
