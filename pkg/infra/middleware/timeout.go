package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	mwopts "github.com/kart-io/scholar-x/pkg/options/middleware"
	"github.com/kart-io/scholar-x/pkg/utils/errors"
	"github.com/kart-io/scholar-x/pkg/utils/response"
)

// Timeout returns a middleware that attaches a deadline to the request
// context. Handlers observe the deadline through ctx.Err(); when a handler
// returns after the deadline without having written a response, a 504
// envelope is written. The handler itself runs on the request goroutine so
// there is no write race between a timed-out handler and this middleware.
func Timeout(opts mwopts.TimeoutOptions) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if opts.Timeout <= 0 {
			c.Next()
			return
		}
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), opts.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() == context.DeadlineExceeded && !c.Writer.Written() {
			resp := response.Err(errors.ErrTimeout).WithRequestID(GetRequestID(c))
			c.AbortWithStatusJSON(resp.HTTPStatus(), resp)
		}
	}
}
