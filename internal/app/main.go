package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/Bagi4-source/Mirotok/internal/backend"
	"github.com/Bagi4-source/Mirotok/internal/catalog"
	"github.com/Bagi4-source/Mirotok/internal/config"
	"github.com/Bagi4-source/Mirotok/internal/logging"
	"github.com/Bagi4-source/Mirotok/internal/reading"
	"github.com/Bagi4-source/Mirotok/internal/render"
	"github.com/Bagi4-source/Mirotok/internal/store"
)

// ==========================================
// ЗАВИСИМОСТИ
// ==========================================

// Backend is the part of the REST client used by the bot.
type Backend interface {
	reading.Backend

	Register(ctx context.Context, telegramID int64, username, name string) (*store.User, error)
	User(ctx context.Context, telegramID int64) (*store.User, error)
	CountUsers(ctx context.Context) (int64, error)

	CreateRequest(ctx context.Context, telegramID int64, tariffID string) (*store.PaymentRequest, error)
	Requests(ctx context.Context, telegramID int64, limit, offset int) (*backend.Page[store.PaymentRequest], error)
	PendingRequests(ctx context.Context, limit, offset int) (*backend.Page[store.PaymentRequest], error)
	ResolveRequest(ctx context.Context, id string, approve bool) (*store.Resolution, error)

	Tariffs(ctx context.Context) ([]store.Tariff, error)
	Tariff(ctx context.Context, id string) (*store.Tariff, error)
	CreateTariff(ctx context.Context, days, amount int) (*store.Tariff, error)
	DeleteTariff(ctx context.Context, id string) error

	Message(ctx context.Context, tag string) (*store.Message, error)
	PutMessage(ctx context.Context, tag, text string) error
}

// App holds everything the handlers share.
type App struct {
	cfg      *config.Config
	api      Backend
	readings *reading.Service
	bot      *tele.Bot

	states  *stateStore
	limiter *heavyLimiter
	rate    *rateLimiter

	tablePNG []byte
	now      func() time.Time
}

func New(cfg *config.Config, api Backend, readings *reading.Service) *App {
	return &App{
		cfg:      cfg,
		api:      api,
		readings: readings,
		states:   newStateStore(),
		limiter:  newHeavyLimiter(heavySlots),
		rate:     newRateLimiter(time.Second),
		now:      time.Now,
	}
}

// ==========================================
// MAIN
// ==========================================

func Run() {
	initAppLayout()
	logging.Init(dirLogs, "bot", "MIROTOK ")
	defer logging.Close()

	// 1. Конфигурация
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("❌ Критическая ошибка: поврежден %s: %v", configPath(), err)
	}
	if cfg.Token == "" {
		log.Fatalf("❌ Критическая ошибка: не задан токен бота (token / MIROTOK_BOT_TOKEN)")
	}

	// 2. Каталог карт
	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("❌ Критическая ошибка: каталог карт %s: %v", cfg.CatalogPath, err)
	}
	log.Printf("✅ Каталог загружен: %d карт", cat.Len())

	// 3. Ассеты
	assets := os.DirFS(cfg.AssetsDir)
	font, err := render.LoadFont(assets)
	if err != nil {
		log.Printf("⚠️ Шрифт не загружен, подписи на изображении будут без текста: %v", err)
	}

	// 4. Бэкенд
	client, err := backend.NewClient(backend.ClientConfig{BaseURL: cfg.BackendURL})
	if err != nil {
		log.Fatalf("❌ Критическая ошибка: адрес бэкенда %q: %v", cfg.BackendURL, err)
	}
	log.Printf("✅ Бэкенд: %s", cfg.BackendURL)

	a := New(cfg, client, reading.NewService(cat, render.NewCompositor(assets, font), client))
	a.tablePNG = loadTable(cfg.AssetsDir)

	// 5. Бот
	log.Println("🔄 Попытка подключения к Telegram API...")
	pref := tele.Settings{
		Token: cfg.Token,
		URL:   cfg.BotAPIUrl,
		Poller: &tele.LongPoller{
			Timeout: 10 * time.Second,
		},
		OnError: func(err error, c tele.Context) {
			log.Printf("❌ Ошибка в Bot Poller: %v", err)
			if c != nil && c.Chat() != nil {
				log.Printf("   -> В чате: %v", c.Chat().ID)
			}
		},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("❌ КРИТИЧЕСКАЯ ОШИБКА при создании бота (проверьте токен или доступ к API): %v", err)
	}
	a.RegisterHandlers(b)
	if err := b.SetCommands(botCommands()); err != nil {
		log.Printf("⚠️ Не удалось установить команды: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.SafeGo("housekeeping", func() { a.startHousekeeping(ctx) })
	if cfg.HealthAddr != "" {
		logging.SafeGo("health-server", func() { startHealthServer(ctx, cfg.HealthAddr) })
	}

	log.Printf("✅ Соединение установлено! Бот: @%s (ID: %d)", b.Me.Username, b.Me.ID)
	if cfg.BotAPIUrl != "" {
		log.Printf("🌐 Работа через прокси: %s", cfg.BotAPIUrl)
	}

	log.Println("🧹 Сброс вебхука и удаление старых зависших сообщений...")
	if err := b.RemoveWebhook(true); err != nil {
		log.Printf("⚠️ Предупреждение: Не удалось сбросить вебхук: %v", err)
	} else {
		log.Println("✅ Вебхук удален, очередь очищена. Бот готов к работе.")
	}

	fmt.Printf("🚀 Бот запущен. Admins: %d, Doctors: %d\n", len(cfg.Admins), len(cfg.Doctors))

	logging.SafeGo("bot", b.Start)

	<-ctx.Done()
	log.Println("⏹ Завершение работы...")
	b.Stop()
}

func botCommands() []tele.Command {
	return []tele.Command{
		{Text: "about", Description: "О проекте"},
		{Text: "balance", Description: "Подписка"},
		{Text: "requests", Description: "Мои заявки"},
	}
}

// loadTable reads the card table attached to every reading. It is
// optional.
func loadTable(assetsDir string) []byte {
	data, err := os.ReadFile(tablePath(assetsDir))
	if err != nil {
		log.Printf("⚠️ Таблица картин не найдена: %v", err)
		return nil
	}
	return data
}
