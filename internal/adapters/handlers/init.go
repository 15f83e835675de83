package handlers

import (
	"net/http"

	"github.com/iwtcode/cncService/internal/config"
	"github.com/iwtcode/cncService/internal/interfaces"
	"github.com/iwtcode/cncService/internal/metrics"
	"github.com/iwtcode/cncService/internal/middleware/logging"
	"github.com/iwtcode/cncService/internal/middleware/swagger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler - структура для обработчиков HTTP-запросов
type Handler struct {
	usecase  interfaces.Usecases
	metrics  *metrics.Metrics
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// NewHandler создает новый экземпляр Handler
func NewHandler(usecase interfaces.Usecases, m *metrics.Metrics, logger *logging.Logger) *Handler {
	return &Handler{
		usecase: usecase,
		metrics: m,
		logger:  logger.WithPrefix("HANDLER"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ProvideRouter настраивает и возвращает HTTP-роутер
func ProvideRouter(h *Handler, cfg *config.AppConfig, swagCfg *swagger.Config) http.Handler {
	gin.SetMode(cfg.GinMode)

	router := gin.New()
	router.Use(gin.Recovery())

	// Logger Middleware. Подключается до регистрации маршрутов: gin
	// применяет middleware только к маршрутам, объявленным после Use.
	router.Use(LoggingMiddleware(h.logger))

	// Swagger
	swagger.Setup(router, swagCfg)

	// Prometheus
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	// Группа API v1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/ports", h.ListPorts)
		v1.GET("/ws", h.Realtime)

		connections := v1.Group("/connections")
		{
			connections.POST("", h.CreateConnection)
			connections.GET("", h.GetConnections)
			connections.GET("/:id", h.GetConnection)
			connections.DELETE("/:id", h.DeleteConnection)
			connections.POST("/:id/reconnect", h.Reconnect)
			connections.POST("/:id/command", h.SendCommand)
			connections.POST("/:id/jobs", h.UploadJob)
			connections.GET("/:id/jobs", h.ListJobs)
		}

		jobs := v1.Group("/jobs")
		{
			jobs.GET("/:id", h.GetJob)
			jobs.POST("/:id/start", h.StartJob)
			jobs.POST("/:id/pause", h.PauseJob)
			jobs.POST("/:id/resume", h.ResumeJob)
			jobs.POST("/:id/cancel", h.CancelJob)
		}

		tasks := v1.Group("/tasks")
		{
			tasks.POST("", h.EnqueueTask)
			tasks.GET("", h.ListTasks)
			tasks.GET("/:id", h.GetTask)
			tasks.POST("/:id/cancel", h.CancelTask)
		}
	}

	return router
}
