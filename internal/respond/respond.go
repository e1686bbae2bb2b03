// Package respond writes the response envelope shared by every endpoint.
package respond

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tendant/simple-ocr-gateway/internal/apperr"
	"github.com/tendant/simple-ocr-gateway/internal/reqctx"
	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

func OK(c *gin.Context, status int, data any) {
	c.JSON(status, schema.Envelope{
		Success:   true,
		Data:      data,
		RequestID: reqctx.RequestID(c.Request.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// Fail aborts the request with err rendered as an error envelope. Errors
// that are not *apperr.Error become INTERNAL_ERROR without their message.
func Fail(c *gin.Context, err error) {
	e := apperr.As(err)
	c.AbortWithStatusJSON(HTTPStatus(e.Code), schema.Envelope{
		Success:   false,
		Error:     e.Body(),
		RequestID: reqctx.RequestID(c.Request.Context()),
		Timestamp: time.Now().UTC(),
	})
}

func HTTPStatus(code apperr.Code) int {
	switch code.Kind() {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
