package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crossarb/internal/api"
	"crossarb/internal/bot"
	"crossarb/internal/cache"
	"crossarb/internal/config"
	"crossarb/internal/exchange"
	"crossarb/internal/models"
	"crossarb/internal/repository"
	"crossarb/internal/service"
	"crossarb/internal/websocket"
	"crossarb/pkg/retry"
	"crossarb/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// .env не обязателен: в контейнере переменные приходят из окружения
	_ = godotenv.Load()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("ошибка загрузки конфигурации: %v", err)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.File,
	})
	defer logger.Sync()
	zlog := logger.Logger

	// Контекст живет до SIGINT/SIGTERM, от него запитаны фоновые задачи
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализация базы данных
	db, err := openDatabase(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("не удалось подключиться к базе данных", zap.Error(err))
	}
	defer db.Close()

	if err := repository.InitSchema(db); err != nil {
		zlog.Fatal("не удалось инициализировать схему базы данных", zap.Error(err))
	}

	// Кэш последних котировок в Redis. Без адреса работаем без кэша.
	quoteCache, err := cache.NewQuoteCache(ctx, cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.QuoteTTL,
	}, zlog)
	if err != nil {
		zlog.Fatal("не удалось подключиться к Redis", zap.Error(err))
	}

	// Инициализация репозиториев
	accountRepo := repository.NewAccountRepository(db)
	strategyRepo := repository.NewStrategyRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	blacklistRepo := repository.NewBlacklistRepository(db)

	// Инициализация сервисов
	accountService := service.NewAccountService(accountRepo, strategyRepo, cfg.Security.EncryptionKey, zlog)
	strategyService := service.NewStrategyService(strategyRepo, settingsRepo, accountService)
	statsService := service.NewStatsService(tradeRepo, orderRepo, strategyRepo, zlog)
	notificationService := service.NewNotificationService(notificationRepo, settingsRepo)
	settingsService := service.NewSettingsService(settingsRepo)
	blacklistService := service.NewBlacklistService(blacklistRepo)

	if err := blacklistService.Reload(); err != nil {
		zlog.Warn("не удалось загрузить черный список символов", zap.Error(err))
	}

	// Риск-менеджер: лимиты из окружения, поверх них YAML-файл
	risk := bot.NewRiskManager(zlog)
	limits, err := cfg.Risk.Limits()
	if err != nil {
		zlog.Fatal("не удалось загрузить лимиты риска", zap.Error(err))
	}
	risk.ConfigureDefaultRules(limits)
	if !cfg.Risk.Enabled {
		risk.Disable()
	}

	// Торговый контур: роутер ордеров, движок стратегий, диспетчер площадок
	orderRouter := bot.NewOrderRouter(zlog)
	engine := bot.NewEngine(engineOptions(cfg), risk, orderRouter, zlog)

	dispatcher := exchange.NewDispatcher(engine, zlog)
	if quoteCache != nil {
		dispatcher.SetCache(quoteCache)
	}

	engine.SetScreener(blacklistService)
	engine.SetWatcher(dispatcher)
	engine.SetCallbacks(bot.EngineCallbacks{
		SaveOrder: func(rec *models.OrderRecord) {
			if err := orderRepo.Create(rec); err != nil {
				zlog.Error("не удалось сохранить ордер", zap.Error(err))
			}
		},
		SaveTrade: func(rec *models.TradeRecord) {
			if err := statsService.RecordTradeCompletion(rec); err != nil {
				zlog.Error("не удалось сохранить сделку", zap.Error(err))
			}
		},
		SaveNotification: func(n *models.Notification) {
			if err := notificationService.CreateNotification(n); err != nil {
				zlog.Error("не удалось сохранить уведомление", zap.Error(err))
			}
		},
	})

	// WebSocket hub для трансляции состояния в UI.
	// Уведомления в hub шлет сам движок, сервис только ведет журнал.
	hub := websocket.NewHub(zlog)
	go hub.Run()
	engine.SetHub(hub)
	accountService.SetWebSocketHub(hub)
	statsService.SetWebSocketHub(hub)

	strategyService.SetEngine(engine)
	strategyService.SetScreener(blacklistService)
	accountService.SetEngine(engine)

	// Подключение аккаунта через API сразу включает его в торговый контур
	accountService.SetGatewayHooks(service.GatewayHooks{
		OnAttach: func(name string, gw exchange.Gateway) {
			dispatcher.Attach(name, gw)
			orderRouter.Register(name, gw)
			for _, s := range engine.Strategies() {
				if err := dispatcher.Watch(s.Symbol()); err != nil {
					zlog.Warn("не удалось подписаться на котировки",
						zap.String("exchange", name),
						zap.String("symbol", s.Symbol()),
						zap.Error(err))
				}
			}
			if err := dispatcher.WatchFills(); err != nil {
				zlog.Warn("не удалось подписаться на исполнения",
					zap.String("exchange", name),
					zap.Error(err))
			}
		},
		OnDetach: func(name string) {
			orderRouter.Unregister(name)
			dispatcher.Detach(name)
		},
	})

	// Восстанавливаем подключения к площадкам из БД. Хуки уже стоят,
	// поэтому каждый восстановленный шлюз попадает в роутер и диспетчер.
	connected, err := accountService.GetConnectedAccounts()
	if err != nil {
		zlog.Warn("не удалось прочитать подключенные аккаунты", zap.Error(err))
	}
	for _, account := range connected {
		if _, err := accountService.GetConnection(ctx, account.Name); err != nil {
			zlog.Warn("не удалось восстановить подключение к площадке",
				zap.String("exchange", account.Name),
				zap.Error(err))
		}
	}

	// Регистрируем стратегии из БД
	strategies, err := strategyRepo.GetAll()
	if err != nil {
		zlog.Fatal("не удалось загрузить стратегии", zap.Error(err))
	}
	for _, sc := range strategies {
		if reason, blocked := blacklistService.Blocked(sc.Symbol); blocked {
			zlog.Warn("стратегия пропущена: символ в черном списке",
				zap.Int("strategy_id", sc.ID),
				zap.String("symbol", sc.Symbol),
				zap.String("reason", reason))
			continue
		}
		if err := engine.RegisterStrategy(sc); err != nil {
			zlog.Warn("не удалось зарегистрировать стратегию",
				zap.Int("strategy_id", sc.ID),
				zap.Error(err))
			continue
		}
		if sc.Status != models.StrategyStatusActive {
			continue
		}
		if cfg.Bot.AutoStart {
			if err := engine.StartStrategy(sc.ID); err != nil {
				zlog.Warn("не удалось запустить стратегию",
					zap.Int("strategy_id", sc.ID),
					zap.Error(err))
			}
		} else {
			// Без автозапуска активные стратегии переводим в паузу,
			// чтобы статус в БД не расходился с действительностью
			if err := strategyRepo.UpdateStatus(sc.ID, models.StrategyStatusPaused); err != nil {
				zlog.Warn("не удалось обновить статус стратегии",
					zap.Int("strategy_id", sc.ID),
					zap.Error(err))
			}
		}
	}

	engine.Start()

	// HTTP сервер
	server := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.SetupRoutes(api.Dependencies{
			StrategyService:     strategyService,
			AccountService:      accountService,
			NotificationService: notificationService,
			StatsService:        statsService,
			BlacklistService:    blacklistService,
			SettingsService:     settingsService,
			Risk:                engine.Risk(),
			Hub:                 hub,
			Log:                 zlog,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zlog.Info("HTTP сервер запущен",
			zap.String("addr", server.Addr),
			zap.Bool("https", cfg.Server.UseHTTPS))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// Периодическое обновление балансов. Первый проход сразу: ленивое
	// восстановление шлюзов баланс не запрашивает.
	g.Go(func() error {
		accountService.UpdateAllBalances(gctx)
		ticker := time.NewTicker(cfg.Bot.BalanceUpdateFreq)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				accountService.UpdateAllBalances(gctx)
			}
		}
	})

	// Трансляция статусов стратегий в WebSocket
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Bot.StatsUpdateFreq)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				for _, s := range engine.Strategies() {
					hub.BroadcastStrategyUpdate(s.Runtime())
				}
			}
		}
	})

	// Подрезка журнала уведомлений, чтобы таблица не росла бесконечно
	g.Go(func() error {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				deleted, err := notificationService.CleanupOld(cfg.Bot.NotificationKeep)
				if err != nil {
					zlog.Warn("не удалось подрезать журнал уведомлений", zap.Error(err))
				} else if deleted > 0 {
					zlog.Debug("журнал уведомлений подрезан", zap.Int64("deleted", deleted))
				}
			}
		}
	})

	// Сверка позиций и открытых ордеров после рестарта
	if cfg.Bot.RecoveryScan {
		g.Go(func() error {
			report, err := bot.NewRecoveryScanner(engine, dispatcher, zlog).Scan(gctx)
			if err != nil {
				zlog.Warn("сверка после рестарта завершилась с ошибкой", zap.Error(err))
				return nil
			}
			zlog.Info("сверка после рестарта завершена",
				zap.Int("positions", report.PositionsFound),
				zap.Int("orders", report.OrdersFound),
				zap.Int("orphan_positions", len(report.OrphanPositions)),
				zap.Int("orphan_orders", len(report.OrphanOrders)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		zlog.Error("сервис остановлен с ошибкой", zap.Error(err))
	}

	zlog.Info("остановка сервиса")

	// Сначала движок: стратегии перестают отправлять ордера,
	// затем закрываем подключения к площадкам и потребителей
	engine.Stop()
	if err := accountService.Close(); err != nil {
		zlog.Warn("ошибки при закрытии подключений к площадкам", zap.Error(err))
	}
	hub.Stop()
	if quoteCache != nil {
		if err := quoteCache.Close(); err != nil {
			zlog.Warn("ошибка при закрытии кэша котировок", zap.Error(err))
		}
	}

	zlog.Info("сервис остановлен")
}

// engineOptions переводит настройки движка из конфигурации в опции.
// Нули в конфигурации означают "подобрать под машину".
func engineOptions(cfg *config.Config) bot.EngineOptions {
	opts := bot.DefaultEngineOptions()
	if cfg.Bot.NumShards > 0 {
		opts.NumShards = cfg.Bot.NumShards
	}
	if cfg.Bot.QueueSize > 0 {
		opts.ShardBuffer = cfg.Bot.QueueSize
		opts.FillBuffer = cfg.Bot.QueueSize
	}
	return opts
}

// openDatabase создает подключение к базе данных
func openDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// База может подниматься дольше приложения (docker-compose),
	// поэтому пингуем с повторами
	err = retry.Do(ctx, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}, retry.NetworkConfig())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("подключение к базе данных установлено",
		zap.String("dsn", cfg.Database.DSNWithoutPassword()))
	return db, nil
}
