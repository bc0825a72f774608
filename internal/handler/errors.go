// internal/handler/errors.go
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"digit-service/internal/classifier"
	"digit-service/internal/repository"
	"digit-service/internal/service"
	"digit-service/internal/utils"
)

// statusForKind maps failure kinds to HTTP status codes
var statusForKind = map[classifier.ErrorKind]int{
	classifier.KindInvalidInput:  http.StatusBadRequest,
	classifier.KindConfig:        http.StatusBadRequest,
	classifier.KindConnect:       http.StatusBadGateway,
	classifier.KindBusy:          http.StatusConflict,
	classifier.KindNotConnected:  http.StatusPreconditionFailed,
	classifier.KindDevice:        http.StatusUnprocessableEntity,
	classifier.KindNoDigitFound:  http.StatusUnprocessableEntity,
	classifier.KindTimeout:       http.StatusGatewayTimeout,
	classifier.KindCommunication: http.StatusBadGateway,
}

// respondError writes err using the error kind as the response code
func respondError(c *gin.Context, message string, err error, data interface{}) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, message, err)
		return
	case errors.Is(err, service.ErrShuttingDown):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, message, err)
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		utils.ErrorResponseWithCode(c, http.StatusGatewayTimeout, string(classifier.KindTimeout), message, err, data)
		return
	}

	kind := classifier.KindOf(err)
	status, ok := statusForKind[kind]
	if !ok {
		utils.ErrorResponse(c, http.StatusInternalServerError, message, err)
		return
	}

	var classifierErr *classifier.Error
	if data == nil && errors.As(err, &classifierErr) && len(classifierErr.Lines) > 0 {
		data = gin.H{"lines": classifierErr.Lines}
	}

	utils.ErrorResponseWithCode(c, status, string(kind), message, err, data)
}
