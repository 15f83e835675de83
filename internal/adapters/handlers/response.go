package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/iwtcode/cncService/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ErrorResponse возвращает стандартизированный ответ с ошибкой
func (h *Handler) ErrorResponse(c *gin.Context, err error, statusCode int, message string, showError bool) {
	errorMessage := message
	if showError && err != nil {
		errorMessage = message + ": " + err.Error()
	}

	body := gin.H{
		"code":    statusCode,
		"message": errorMessage,
	}
	if err != nil {
		var d errors.Detailer
		if stderrors.As(err, &d) {
			body["detail"] = d.Detail()
		}
	}

	if statusCode >= http.StatusInternalServerError {
		h.logger.Error(message, "error", err, "statusCode", statusCode)
	} else {
		h.logger.Warn(message, "error", err, "statusCode", statusCode)
	}
	c.AbortWithStatusJSON(statusCode, gin.H{
		"status": "error",
		"error":  body,
	})
}

// HandleError подбирает HTTP-статус по типу доменной ошибки
func (h *Handler) HandleError(c *gin.Context, err error) {
	var (
		appErr  *errors.AppError
		connErr *errors.ConnectionError
		protErr *errors.ProtocolError
		taskErr *errors.TaskError
	)

	switch {
	case stderrors.Is(err, errors.ErrDataNotFound):
		h.NotFound(c, err)
	case stderrors.Is(err, errors.ErrInvalidState):
		h.ErrorResponse(c, err, http.StatusConflict, errors.Conflict, true)
	case stderrors.As(err, &connErr):
		switch connErr.Kind {
		case errors.ConnTimeout:
			h.ErrorResponse(c, err, http.StatusGatewayTimeout, errors.GatewayTimeout, true)
		case errors.ConnNotFound:
			h.NotFound(c, err)
		default:
			h.ErrorResponse(c, err, http.StatusBadGateway, "connection_failure", true)
		}
	case stderrors.As(err, &protErr):
		h.ErrorResponse(c, err, http.StatusBadGateway, "protocol_error", true)
	case stderrors.As(err, &taskErr):
		h.ErrorResponse(c, err, http.StatusConflict, "task_error", true)
	case stderrors.As(err, &appErr):
		h.ErrorResponse(c, appErr.Err, appErr.Code, appErr.Message, appErr.IsUserFacing)
	default:
		h.InternalError(c, err)
	}
}

// BadRequest возвращает ошибку 400
func (h *Handler) BadRequest(c *gin.Context, err error, message string) {
	if message == "" {
		message = errors.BadRequest
	}
	h.ErrorResponse(c, err, http.StatusBadRequest, message, true)
}

// InternalError возвращает ошибку 500
func (h *Handler) InternalError(c *gin.Context, err error) {
	h.ErrorResponse(c, err, http.StatusInternalServerError, errors.InternalServerError, false)
}

// NotFound возвращает ошибку 404
func (h *Handler) NotFound(c *gin.Context, err error) {
	h.ErrorResponse(c, err, http.StatusNotFound, errors.NotFound, true)
}
