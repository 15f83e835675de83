package app

import (
	"context"
	"net/http"
	"time"

	"github.com/iwtcode/cncService/internal/adapters/handlers"
	"github.com/iwtcode/cncService/internal/adapters/repositories/memory"
	"github.com/iwtcode/cncService/internal/adapters/repositories/postgres"
	"github.com/iwtcode/cncService/internal/config"
	"github.com/iwtcode/cncService/internal/interfaces"
	"github.com/iwtcode/cncService/internal/metrics"
	"github.com/iwtcode/cncService/internal/middleware/logging"
	"github.com/iwtcode/cncService/internal/middleware/swagger"
	"github.com/iwtcode/cncService/internal/services/eventbus"
	"github.com/iwtcode/cncService/internal/services/kafka"
	"github.com/iwtcode/cncService/internal/services/machine_service"
	"github.com/iwtcode/cncService/internal/services/task_manager"
	"github.com/iwtcode/cncService/internal/usecases"

	"go.uber.org/fx"
)

// New создает новый экземпляр fx.App
func New() *fx.App {
	return fx.New(
		ConfigModule,
		LoggingModule,
		MetricsModule,
		RepositoryModule,
		BusModule,
		ServiceModule,
		ProducerModule,
		UsecaseModule,
		HttpServerModule,
		// Invoke-функции для запуска фоновых задач и хуков жизненного цикла
		fx.Invoke(InvokeRestoreState),
	)
}

// --- Модули FX ---

var ConfigModule = fx.Module("config_module",
	fx.Provide(config.LoadConfiguration),
)

func ProvideLogger(cfg *config.AppConfig) *logging.Logger {
	loggerCfg := &logging.Config{
		Enabled:    cfg.Logging.Enable,
		Level:      cfg.Logging.Level,
		LogsDir:    cfg.Logging.LogsDir,
		SavingDays: uint(cfg.Logging.SavingDays),
	}
	return logging.NewLogger(loggerCfg, "CncServiceApp")
}

var LoggingModule = fx.Module("logging_module",
	fx.Provide(ProvideLogger),
)

var MetricsModule = fx.Module("metrics_module",
	fx.Provide(metrics.NewMetrics),
)

// ProvideRepository выбирает PostgreSQL или хранилище в памяти.
func ProvideRepository(cfg *config.AppConfig, logger *logging.Logger) (interfaces.Repository, error) {
	if !cfg.Database.Enable {
		logger.Warn("Database disabled, history is kept in memory only")
		return memory.NewRepository(), nil
	}
	return postgres.NewRepository(cfg, logger)
}

var RepositoryModule = fx.Module("repository_module",
	fx.Provide(ProvideRepository),
)

func ProvideBus(cfg *config.AppConfig, m *metrics.Metrics, logger *logging.Logger) *eventbus.Bus {
	return eventbus.New(eventbus.Config{
		Retention:   cfg.Bus.Retention,
		ClientQueue: cfg.Bus.ClientQueue,
	}, m, logger)
}

func ProvidePublisher(bus *eventbus.Bus) interfaces.EventPublisher {
	return bus
}

var BusModule = fx.Module("bus_module",
	fx.Provide(ProvideBus, ProvidePublisher),
)

// ProvideTaskService создает пул фоновых задач. Результаты пишутся на
// диск, если задан RESULTS_DIR.
func ProvideTaskService(lc fx.Lifecycle, cfg *config.AppConfig, repo interfaces.Repository, bus interfaces.EventPublisher, m *metrics.Metrics, logger *logging.Logger) (interfaces.TaskService, error) {
	var results task_manager.ResultStore = task_manager.NewMemoryResultStore()
	if cfg.Tasks.ResultsDir != "" {
		store, err := task_manager.NewFileResultStore(cfg.Tasks.ResultsDir)
		if err != nil {
			return nil, err
		}
		results = store
	}

	mgr, err := task_manager.NewManager(task_manager.Config{
		Workers:     cfg.Tasks.Workers,
		CancelGrace: cfg.Tasks.CancelGrace,
	}, repo, results, bus, m, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping task pool...")
			mgr.Close()
			return nil
		},
	})
	return mgr, nil
}

var ServiceModule = fx.Module("service_module",
	fx.Provide(
		machine_service.NewMachineService,
		ProvideTaskService,
	),
)

var ProducerModule = fx.Module("producer_module",
	fx.Invoke(InvokeKafkaRelay),
)

var UsecaseModule = fx.Module("usecases_module",
	fx.Provide(usecases.NewUsecases),
)

func NewSwaggerConfig() *swagger.Config {
	return &swagger.Config{
		Enabled: true,
		Path:    "/swagger",
	}
}

var HttpServerModule = fx.Module("http_server_module",
	fx.Provide(
		NewSwaggerConfig,
		handlers.NewHandler,
		handlers.ProvideRouter,
	),
	fx.Invoke(InvokeHttpServer),
)

// InvokeKafkaRelay зеркалирует события шины в Kafka, если это включено.
func InvokeKafkaRelay(lc fx.Lifecycle, cfg *config.AppConfig, bus *eventbus.Bus, logger *logging.Logger) error {
	if !cfg.Kafka.Enable {
		return nil
	}

	producer, err := kafka.NewKafkaProducer(cfg)
	if err != nil {
		return err
	}
	relay := kafka.NewRelay(bus, producer, logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting Kafka relay", "broker", cfg.Kafka.Broker, "topic", cfg.Kafka.Topic)
			relay.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			relay.Stop()
			return producer.Close()
		},
	})
	return nil
}

// InvokeRestoreState закрывает прерванные перезапуском задания и задачи
// и восстанавливает подключения из БД.
func InvokeRestoreState(lc fx.Lifecycle, machineSvc interfaces.MachineService, taskSvc interfaces.TaskService, dbRepo interfaces.Repository, logger *logging.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if n, err := machineSvc.RecoverUnfinishedJobs(); err != nil {
				logger.Error("Failed to recover unfinished jobs", "error", err)
			} else if n > 0 {
				logger.Warn("Jobs interrupted by restart marked as failed", "count", n)
			}
			if n, err := taskSvc.RecoverUnfinished(); err != nil {
				logger.Error("Failed to recover unfinished tasks", "error", err)
			} else if n > 0 {
				logger.Warn("Tasks interrupted by restart marked as failed", "count", n)
			}

			logger.Info("Restoring connections from the database...")
			machines, err := dbRepo.GetAll()
			if err != nil {
				logger.Error("Failed to get machine list from DB", "error", err)
				return nil // Не фатально, просто продолжаем
			}
			if len(machines) == 0 {
				logger.Info("No saved connections found to restore.")
				return nil
			}

			for _, machine := range machines {
				logger.Info("Attempting to restore connection", "connectionID", machine.ConnectionID, "address", machine.Address)
				if _, err := machineSvc.RestoreConnection(context.Background(), machine); err != nil {
					logger.Warn("Connection restored in pool but is disconnected, use reconnect", "connectionID", machine.ConnectionID, "error", err)
					continue
				}
				logger.Info("Connection restored successfully in pool", "connectionID", machine.ConnectionID)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Closing controller sessions...")
			machineSvc.Close()
			return nil
		},
	})
}

// InvokeHttpServer запускает HTTP-сервер.
func InvokeHttpServer(lc fx.Lifecycle, cfg *config.AppConfig, h http.Handler, logger *logging.Logger) {
	serverAddr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("HTTP Server is starting", "address", serverAddr)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("Failed to start server", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server...")
			return server.Shutdown(ctx)
		},
	})
}
