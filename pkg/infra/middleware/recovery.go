package middleware

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	mwopts "github.com/kart-io/scholar-x/pkg/options/middleware"
	"github.com/kart-io/scholar-x/pkg/utils/errors"
	"github.com/kart-io/scholar-x/pkg/utils/response"
)

// Recovery returns a middleware that converts panics into structured error
// responses. The full stack trace is always written to the log; it is only
// echoed to the client when EnableStackTrace is set and the process is not
// running in a production environment.
func Recovery(opts mwopts.RecoveryOptions) gin.HandlerFunc {
	exposeStack := opts.EnableStackTrace && !isProductionEnvironment()
	if opts.EnableStackTrace && !exposeStack {
		logger.Warn("Stack trace responses are disabled in production; traces are still logged.")
	}

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				logger.Errorw("panic recovered",
					"panic", r,
					"stack_trace", string(stack),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				e := errors.ErrPanic.WithMessage(fmt.Sprintf("panic: %v", r))
				if exposeStack {
					e = errors.ErrPanic.WithMessage(fmt.Sprintf("panic: %v\n%s", r, string(stack)))
				}

				resp := response.Err(e).WithRequestID(GetRequestID(c))
				c.AbortWithStatusJSON(resp.HTTPStatus(), resp)
			}
		}()
		c.Next()
	}
}

// isProductionEnvironment consults APP_ENV, then GO_ENV.
func isProductionEnvironment() bool {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = os.Getenv("GO_ENV")
	}
	switch env {
	case "production", "prod", "PRODUCTION", "PROD":
		return true
	default:
		return false
	}
}
