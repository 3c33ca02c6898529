package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sportclub/internal/app"
	"sportclub/internal/bot"
	"sportclub/internal/config"
	"sportclub/internal/export"
	"sportclub/internal/logging"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Sheets применяет API-процесс, бот только ставит задачи в очередь
	rt, err := app.Build(ctx, cfg, app.Options{}, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации")
		return err
	}
	defer rt.Close()

	return startBot(ctx, cfg, rt, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	return cfg, logger, closer, nil
}

func startBot(ctx context.Context, cfg *config.Config, rt *app.Runtime, logger *zerolog.Logger) error {
	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Error().Msg("Задайте токен бота в config.yaml")
		return os.ErrInvalid
	}
	if len(cfg.Telegram.StaffChatIDs) == 0 {
		logger.Warn().Msg("staff_chat_ids пуст, команды и уведомления никому не доступны")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}
	botAPI.Debug = cfg.Telegram.Debug

	metrics := bot.NewMetrics(prometheus.DefaultRegisterer)

	notifier := bot.NewNotifier(botAPI, cfg.Telegram.StaffChatIDs, metrics, logging.Component(logger, "notifier"))
	if rt.NATS != nil {
		sub, err := notifier.Subscribe(rt.NATS, cfg.NATS.SubjectPrefix)
		if err != nil {
			logger.Error().Err(err).Msg("Ошибка подписки на события")
			return err
		}
		defer func() { _ = sub.Unsubscribe() }()
	} else {
		logger.Warn().Msg("NATS выключен, уведомления только о событиях этого процесса")
		rt.Bus.SubscribeAll(notifier.HandleEvent)
	}

	telegramBot := bot.NewBot(bot.Deps{
		Sender:      botAPI,
		Telegram:    cfg.Telegram,
		Bookings:    rt.Bookings,
		Fields:      rt.Fields,
		Exporter:    export.NewExporter(cfg.Exports.Path, rt.Location),
		HorizonDays: cfg.Booking.MaxAdvanceDays,
		Location:    rt.Location,
		Clock:       rt.Clock,
		Metrics:     metrics,
		Logger:      logging.Component(logger, "bot"),
	})

	logger.Info().Str("username", botAPI.Self.UserName).Msg("Бот запущен...")
	telegramBot.Start(ctx)
	telegramBot.Stop()

	logger.Info().Msg("Shutdown complete.")
	return nil
}
