package handlers

import (
	"net/http"

	"github.com/iwtcode/cncService/internal/domain/models"

	"github.com/gin-gonic/gin"
)

// EnqueueTask ставит фоновую задачу в очередь.
// @Summary Поставить задачу
// @Description Типы: gcode.stats, digest, sleep. Задачи выполняются пулом воркеров в порядке постановки.
// @Tags Task
// @Accept json
// @Produce json
// @Param input body models.TaskSpec true "Тип и параметры задачи"
// @Success 200 {object} models.TaskResponse "Задача в статусе Queued"
// @Failure 400 {object} models.ErrorResponse "Неизвестный тип задачи"
// @Router /tasks [post]
func (h *Handler) EnqueueTask(c *gin.Context) {
	var spec models.TaskSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		h.BadRequest(c, err, "Invalid request payload")
		return
	}

	task, err := h.usecase.EnqueueTask(spec)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.logger.Info("Task enqueued", "taskID", task.ID, "type", task.Type)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "task": task})
}

// ListTasks возвращает все задачи.
// @Summary Список задач
// @Tags Task
// @Produce json
// @Success 200 {object} models.TasksResponse "Задачи в порядке постановки"
// @Router /tasks [get]
func (h *Handler) ListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "tasks": h.usecase.ListTasks()})
}

// GetTask возвращает снимок задачи вместе с результатом.
// @Summary Получить задачу
// @Tags Task
// @Produce json
// @Param id path string true "ID задачи"
// @Success 200 {object} models.TaskResponse "Задача"
// @Failure 404 {object} models.ErrorResponse "Задача не найдена"
// @Router /tasks/{id} [get]
func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.usecase.GetTask(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "task": task})
}

// CancelTask отменяет задачу.
// @Summary Отменить задачу
// @Description Задача в очереди отменяется сразу. Выполняющаяся получает сигнал и по истечении отсрочки завершается с Timeout. Для завершенной задачи ничего не происходит.
// @Tags Task
// @Produce json
// @Param id path string true "ID задачи"
// @Success 200 {object} models.TaskResponse "Задача"
// @Failure 404 {object} models.ErrorResponse "Задача не найдена"
// @Router /tasks/{id}/cancel [post]
func (h *Handler) CancelTask(c *gin.Context) {
	task, err := h.usecase.CancelTask(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "task": task})
}
