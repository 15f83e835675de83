package handlers

import (
	"context"
	"net/http"

	"github.com/iwtcode/cncService/internal/domain/models"

	"github.com/gin-gonic/gin"
)

// UploadJob загружает программу G-кода как новое задание.
// @Summary Загрузить задание
// @Description Принимает программу списком строк или цельным текстом. Комментарии и пустые строки отбрасываются. Задание создается в статусе Queued.
// @Tags Job
// @Accept json
// @Produce json
// @Param id path string true "ID подключения"
// @Param input body models.UploadJobRequest true "Программа"
// @Success 200 {object} models.JobResponse "Созданное задание"
// @Failure 400 {object} models.ErrorResponse "Пустая программа"
// @Failure 404 {object} models.ErrorResponse "Подключение не найдено"
// @Router /connections/{id}/jobs [post]
func (h *Handler) UploadJob(c *gin.Context) {
	var req models.UploadJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err, "Invalid request payload")
		return
	}

	job, err := h.usecase.UploadJob(c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.logger.Info("Job uploaded", "jobID", job.ID, "connectionID", job.ConnectionID, "lines", job.Total)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "job": job})
}

// ListJobs возвращает задания подключения.
// @Summary Список заданий подключения
// @Tags Job
// @Produce json
// @Param id path string true "ID подключения"
// @Success 200 {object} models.JobsResponse "Задания в порядке создания"
// @Failure 404 {object} models.ErrorResponse "Подключение не найдено"
// @Router /connections/{id}/jobs [get]
func (h *Handler) ListJobs(c *gin.Context) {
	jobs, err := h.usecase.ListJobs(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "jobs": jobs})
}

// GetJob возвращает снимок задания.
// @Summary Получить задание
// @Tags Job
// @Produce json
// @Param id path string true "ID задания"
// @Success 200 {object} models.JobResponse "Задание"
// @Failure 404 {object} models.ErrorResponse "Задание не найдено"
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.usecase.GetJob(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "job": job})
}

// StartJob запускает потоковую передачу задания.
// @Summary Запустить задание
// @Tags Job
// @Produce json
// @Param id path string true "ID задания"
// @Success 200 {object} models.JobResponse "Задание"
// @Failure 404 {object} models.ErrorResponse "Задание не найдено"
// @Failure 409 {object} models.ErrorResponse "Недопустимо в текущем состоянии"
// @Router /jobs/{id}/start [post]
func (h *Handler) StartJob(c *gin.Context) {
	h.jobAction(c, "start", h.usecase.StartJob)
}

// PauseJob приостанавливает отправку новых строк.
// @Summary Приостановить задание
// @Description Строки, уже находящиеся в буфере контроллера, дорабатываются.
// @Tags Job
// @Produce json
// @Param id path string true "ID задания"
// @Success 200 {object} models.JobResponse "Задание"
// @Failure 404 {object} models.ErrorResponse "Задание не найдено"
// @Failure 409 {object} models.ErrorResponse "Недопустимо в текущем состоянии"
// @Router /jobs/{id}/pause [post]
func (h *Handler) PauseJob(c *gin.Context) {
	h.jobAction(c, "pause", h.usecase.PauseJob)
}

// ResumeJob возобновляет приостановленное задание.
// @Summary Возобновить задание
// @Tags Job
// @Produce json
// @Param id path string true "ID задания"
// @Success 200 {object} models.JobResponse "Задание"
// @Failure 404 {object} models.ErrorResponse "Задание не найдено"
// @Failure 409 {object} models.ErrorResponse "Недопустимо в текущем состоянии"
// @Router /jobs/{id}/resume [post]
func (h *Handler) ResumeJob(c *gin.Context) {
	h.jobAction(c, "resume", h.usecase.ResumeJob)
}

// CancelJob отменяет задание.
// @Summary Отменить задание
// @Tags Job
// @Produce json
// @Param id path string true "ID задания"
// @Success 200 {object} models.JobResponse "Задание"
// @Failure 404 {object} models.ErrorResponse "Задание не найдено"
// @Failure 409 {object} models.ErrorResponse "Задание уже завершено"
// @Router /jobs/{id}/cancel [post]
func (h *Handler) CancelJob(c *gin.Context) {
	h.jobAction(c, "cancel", h.usecase.CancelJob)
}

func (h *Handler) jobAction(c *gin.Context, action string, fn func(context.Context, string) (*models.Job, error)) {
	jobID := c.Param("id")
	h.logger.Info("Job action requested", "action", action, "jobID", jobID)

	job, err := fn(c.Request.Context(), jobID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "job": job})
}
