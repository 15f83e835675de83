package handlers

import (
	"net/http"

	"github.com/iwtcode/cncService/internal/domain/models"

	"github.com/gin-gonic/gin"
)

// CreateConnection создает новое подключение к контроллеру станка.
// @Summary Создать подключение
// @Description Открывает сессию с контроллером через последовательный порт или TCP и регистрирует ее в пуле.
// @Tags Connection
// @Accept json
// @Produce json
// @Param input body models.ConnectionRequest true "Параметры подключения (e.g., '/dev/ttyUSB0' или '192.168.1.10:23')"
// @Success 200 {object} models.ConnectionResponse "Успешное создание подключения"
// @Failure 400 {object} models.ErrorResponse "Неверный формат запроса"
// @Failure 409 {object} models.ErrorResponse "Адрес уже подключен"
// @Failure 504 {object} models.ErrorResponse "Контроллер не ответил вовремя"
// @Router /connections [post]
func (h *Handler) CreateConnection(c *gin.Context) {
	var req models.ConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err, "Invalid request payload")
		return
	}

	h.logger.Info("Attempting to create a new connection", "kind", req.Kind, "address", req.Address)

	connInfo, err := h.usecase.CreateConnection(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.logger.Info("Successfully created connection", "connectionID", connInfo.ConnectionID)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connection_info": connInfo})
}

// GetConnections возвращает список всех подключений.
// @Summary Получить список подключений
// @Description Возвращает текущий пул подключений к контроллерам с их рабочими состояниями.
// @Tags Connection
// @Produce json
// @Success 200 {object} models.GetConnectionsResponse "Список подключений"
// @Router /connections [get]
func (h *Handler) GetConnections(c *gin.Context) {
	connections := h.usecase.GetAllConnections()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"pool_size":   len(connections),
		"connections": connections,
	})
}

// GetConnection возвращает подключение по ID.
// @Summary Получить подключение
// @Tags Connection
// @Produce json
// @Param id path string true "ID подключения"
// @Success 200 {object} models.ConnectionResponse "Подключение"
// @Failure 404 {object} models.ErrorResponse "Подключение не найдено"
// @Router /connections/{id} [get]
func (h *Handler) GetConnection(c *gin.Context) {
	connInfo, err := h.usecase.GetConnection(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connection_info": connInfo})
}

// DeleteConnection закрывает подключение и удаляет его из пула.
// @Summary Удалить подключение
// @Description Закрывает сессию, отменяет незавершенные задания подключения и удаляет запись из БД.
// @Tags Connection
// @Produce json
// @Param id path string true "ID подключения"
// @Success 200 {object} models.MessageResponse "Сообщение об успешном удалении"
// @Failure 404 {object} models.ErrorResponse "Подключение не найдено"
// @Router /connections/{id} [delete]
func (h *Handler) DeleteConnection(c *gin.Context) {
	connectionID := c.Param("id")
	h.logger.Info("Attempting to delete connection", "connectionID", connectionID)

	if err := h.usecase.DeleteConnection(connectionID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.logger.Info("Successfully deleted connection", "connectionID", connectionID)
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Connection " + connectionID + " disconnected successfully",
	})
}

// Reconnect явно переподключает сессию после сбоя транспорта.
// @Summary Переподключить
// @Description Автоматического переподключения нет: после ошибки транспорта клиент вызывает этот метод.
// @Tags Connection
// @Produce json
// @Param id path string true "ID подключения"
// @Success 200 {object} models.ConnectionResponse "Подключение после переподключения"
// @Failure 404 {object} models.ErrorResponse "Подключение не найдено"
// @Failure 409 {object} models.ErrorResponse "Подключение уже активно"
// @Failure 504 {object} models.ErrorResponse "Контроллер не ответил вовремя"
// @Router /connections/{id}/reconnect [post]
func (h *Handler) Reconnect(c *gin.Context) {
	connectionID := c.Param("id")
	h.logger.Info("Attempting to reconnect", "connectionID", connectionID)

	connInfo, err := h.usecase.Reconnect(c.Request.Context(), connectionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connection_info": connInfo})
}

// SendCommand отправляет одиночную команду простаивающему контроллеру.
// @Summary Отправить команду
// @Description Одна строка G-кода или системная команда диалекта (например, "$X" для GRBL). Недоступно во время задания.
// @Tags Connection
// @Accept json
// @Produce json
// @Param id path string true "ID подключения"
// @Param input body models.CommandRequest true "Команда"
// @Success 200 {object} models.CommandResponse "Ответ контроллера"
// @Failure 400 {object} models.ErrorResponse "Неверный формат запроса"
// @Failure 409 {object} models.ErrorResponse "Сессия занята заданием"
// @Failure 502 {object} models.ErrorResponse "Контроллер отклонил команду"
// @Router /connections/{id}/command [post]
func (h *Handler) SendCommand(c *gin.Context) {
	var req models.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err, "Invalid request payload")
		return
	}

	reply, err := h.usecase.SendCommand(c.Request.Context(), c.Param("id"), req.Line)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "reply": reply})
}

// ListPorts возвращает доступные последовательные порты.
// @Summary Список последовательных портов
// @Tags Connection
// @Produce json
// @Success 200 {object} models.PortsResponse "Порты"
// @Failure 500 {object} models.ErrorResponse "Внутренняя ошибка сервера"
// @Router /ports [get]
func (h *Handler) ListPorts(c *gin.Context) {
	ports, err := h.usecase.ListPorts()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ports": ports})
}
