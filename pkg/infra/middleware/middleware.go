// Package middleware provides the HTTP middleware chain for the RAG service.
//
// Middleware are applied in a fixed order so that panics are always caught,
// every request carries an ID before it is logged, and deadlines wrap the
// innermost handler:
//
//	recovery -> request-id -> logger -> cors -> timeout -> handler
//
// Which middleware run is driven by configuration; see
// pkg/options/middleware for the option surface.
package middleware

import (
	"github.com/gin-gonic/gin"

	mwopts "github.com/kart-io/scholar-x/pkg/options/middleware"
)

// Build assembles the middleware chain from configuration.
//
// Only middleware named in the enabled list are included. Nil option
// sub-structs fall back to their defaults so a partially populated config
// file never produces a nil dereference.
func Build(opts *mwopts.Options) []gin.HandlerFunc {
	if opts == nil {
		opts = mwopts.NewOptions()
	}

	chain := make([]gin.HandlerFunc, 0, 5)

	if opts.IsEnabled(mwopts.MiddlewareRecovery) {
		ro := opts.Recovery
		if ro == nil {
			ro = &mwopts.RecoveryOptions{}
		}
		chain = append(chain, Recovery(*ro))
	}

	if opts.IsEnabled(mwopts.MiddlewareRequestID) {
		ro := opts.RequestID
		if ro == nil {
			ro = &mwopts.RequestIDOptions{}
		}
		chain = append(chain, RequestID(*ro))
	}

	if opts.IsEnabled(mwopts.MiddlewareLogger) {
		lo := opts.Logger
		if lo == nil {
			lo = &mwopts.LoggerOptions{}
		}
		chain = append(chain, Logger(*lo))
	}

	if opts.IsEnabled(mwopts.MiddlewareCORS) {
		co := opts.CORS
		if co == nil {
			co = &mwopts.CORSOptions{}
		}
		chain = append(chain, CORS(*co))
	}

	if opts.IsEnabled(mwopts.MiddlewareTimeout) {
		to := opts.Timeout
		if to == nil {
			to = &mwopts.TimeoutOptions{}
		}
		chain = append(chain, Timeout(*to))
	}

	return chain
}
