package middleware

import (
	"errors"
	"net/http"

	"license-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Error renders the last handler error. BaseError values keep their code and
// message; anything else is reported as an internal error without its text.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if !errors.As(last.Err, &be) {
			be = errutil.BaseError{Code: errutil.StatusInternal, Message: "internal error", Err: last.Err}
		}

		status := be.Code.HTTPStatus()
		if status >= http.StatusInternalServerError {
			span := trace.SpanFromContext(c.Request.Context()).SpanContext()
			zap.L().With(
				zap.String("trace_id", span.TraceID().String()),
				zap.String("span_id", span.SpanID().String()),
			).Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(last.Err),
			)
		}

		c.AbortWithStatusJSON(status, be.JSON())
	}
}
