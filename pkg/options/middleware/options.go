// Package middleware provides middleware configuration options.
//
// The middleware chain is fixed in order (recovery, request-id, logger,
// cors, timeout); each entry can be enabled or disabled by name through
// the Middleware list and tuned through its own sub-options.
package middleware

import (
	"fmt"
	"time"

	"github.com/kart-io/scholar-x/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Middleware name constants.
const (
	MiddlewareRecovery  = "recovery"
	MiddlewareRequestID = "request-id"
	MiddlewareLogger    = "logger"
	MiddlewareCORS      = "cors"
	MiddlewareTimeout   = "timeout"
)

// Options contains the middleware chain configuration.
type Options struct {
	// Middleware lists the enabled middleware by name.
	// Order is fixed by the server; this list only toggles membership.
	Middleware []string `json:"middleware" mapstructure:"middleware"`

	// Recovery configures panic recovery.
	Recovery *RecoveryOptions `json:"recovery" mapstructure:"recovery"`

	// RequestID configures request ID injection.
	RequestID *RequestIDOptions `json:"request-id" mapstructure:"request-id"`

	// Logger configures request logging.
	Logger *LoggerOptions `json:"logger" mapstructure:"logger"`

	// CORS configures cross-origin resource sharing.
	CORS *CORSOptions `json:"cors" mapstructure:"cors"`

	// Timeout configures per-request timeouts.
	Timeout *TimeoutOptions `json:"timeout" mapstructure:"timeout"`
}

// RecoveryOptions defines panic recovery middleware options.
type RecoveryOptions struct {
	// EnableStackTrace includes the stack trace in error responses.
	// Ignored in production environments.
	EnableStackTrace bool `json:"enable-stack-trace" mapstructure:"enable-stack-trace"`
}

// RequestIDOptions defines request ID middleware options.
type RequestIDOptions struct {
	// Header is the request/response header carrying the request ID.
	Header string `json:"header" mapstructure:"header"`
}

// LoggerOptions defines request logging middleware options.
type LoggerOptions struct {
	// SkipPaths lists exact paths excluded from request logging.
	SkipPaths []string `json:"skip-paths" mapstructure:"skip-paths"`
}

// CORSOptions defines CORS middleware options.
type CORSOptions struct {
	AllowOrigins     []string `json:"allow-origins" mapstructure:"allow-origins"`
	AllowMethods     []string `json:"allow-methods" mapstructure:"allow-methods"`
	AllowHeaders     []string `json:"allow-headers" mapstructure:"allow-headers"`
	AllowCredentials bool     `json:"allow-credentials" mapstructure:"allow-credentials"`
	MaxAge           int      `json:"max-age" mapstructure:"max-age"`
}

// TimeoutOptions defines timeout middleware options.
type TimeoutOptions struct {
	// Timeout is the per-request deadline.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// SkipPaths lists exact paths excluded from the deadline.
	SkipPaths []string `json:"skip-paths" mapstructure:"skip-paths"`
}

// NewOptions creates default middleware options.
// Recovery, request-id and logger are enabled by default.
func NewOptions() *Options {
	return &Options{
		Middleware: []string{MiddlewareRecovery, MiddlewareRequestID, MiddlewareLogger},
		Recovery:   &RecoveryOptions{EnableStackTrace: false},
		RequestID:  &RequestIDOptions{Header: "X-Request-ID"},
		Logger:     &LoggerOptions{SkipPaths: []string{"/healthz"}},
		CORS: &CORSOptions{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           86400,
		},
		Timeout: &TimeoutOptions{
			Timeout:   60 * time.Second,
			SkipPaths: []string{"/healthz"},
		},
	}
}

// IsEnabled reports whether the named middleware is in the enabled list.
func (o *Options) IsEnabled(name string) bool {
	for _, m := range o.Middleware {
		if m == name {
			return true
		}
	}
	return false
}

// AddFlags adds flags for middleware options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	join := options.Join(prefixes...)

	fs.StringSliceVar(&o.Middleware, join+"middleware.enabled", o.Middleware, "Enabled middleware by name.")

	if o.Recovery == nil {
		o.Recovery = &RecoveryOptions{}
	}
	fs.BoolVar(&o.Recovery.EnableStackTrace, join+"middleware.recovery.enable-stack-trace", o.Recovery.EnableStackTrace, "Include stack trace in panic responses (non-production only).")

	if o.RequestID == nil {
		o.RequestID = &RequestIDOptions{Header: "X-Request-ID"}
	}
	fs.StringVar(&o.RequestID.Header, join+"middleware.request-id.header", o.RequestID.Header, "Request ID header name.")

	if o.Logger == nil {
		o.Logger = &LoggerOptions{}
	}
	fs.StringSliceVar(&o.Logger.SkipPaths, join+"middleware.logger.skip-paths", o.Logger.SkipPaths, "Paths excluded from request logging.")

	if o.CORS == nil {
		o.CORS = &CORSOptions{}
	}
	fs.StringSliceVar(&o.CORS.AllowOrigins, join+"middleware.cors.allow-origins", o.CORS.AllowOrigins, "CORS allowed origins.")
	fs.StringSliceVar(&o.CORS.AllowMethods, join+"middleware.cors.allow-methods", o.CORS.AllowMethods, "CORS allowed methods.")
	fs.StringSliceVar(&o.CORS.AllowHeaders, join+"middleware.cors.allow-headers", o.CORS.AllowHeaders, "CORS allowed headers.")
	fs.BoolVar(&o.CORS.AllowCredentials, join+"middleware.cors.allow-credentials", o.CORS.AllowCredentials, "CORS allow credentials.")
	fs.IntVar(&o.CORS.MaxAge, join+"middleware.cors.max-age", o.CORS.MaxAge, "CORS preflight max age.")

	if o.Timeout == nil {
		o.Timeout = &TimeoutOptions{}
	}
	fs.DurationVar(&o.Timeout.Timeout, join+"middleware.timeout.duration", o.Timeout.Timeout, "Per-request timeout.")
	fs.StringSliceVar(&o.Timeout.SkipPaths, join+"middleware.timeout.skip-paths", o.Timeout.SkipPaths, "Paths excluded from the request timeout.")
}

// Validate validates the middleware options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	known := map[string]bool{
		MiddlewareRecovery:  true,
		MiddlewareRequestID: true,
		MiddlewareLogger:    true,
		MiddlewareCORS:      true,
		MiddlewareTimeout:   true,
	}
	for _, name := range o.Middleware {
		if !known[name] {
			errs = append(errs, fmt.Errorf("unknown middleware %q", name))
		}
	}
	if o.IsEnabled(MiddlewareCORS) && o.CORS != nil && len(o.CORS.AllowOrigins) == 0 {
		errs = append(errs, fmt.Errorf("cors: allow-origins must not be empty when cors is enabled"))
	}
	if o.IsEnabled(MiddlewareTimeout) && o.Timeout != nil && o.Timeout.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout: duration must be positive when timeout is enabled"))
	}
	return errs
}

// Complete fills nil sub-options with defaults.
func (o *Options) Complete() error {
	defaults := NewOptions()
	if o.Recovery == nil {
		o.Recovery = defaults.Recovery
	}
	if o.RequestID == nil {
		o.RequestID = defaults.RequestID
	}
	if o.RequestID.Header == "" {
		o.RequestID.Header = "X-Request-ID"
	}
	if o.Logger == nil {
		o.Logger = defaults.Logger
	}
	if o.CORS == nil {
		o.CORS = defaults.CORS
	}
	if o.Timeout == nil {
		o.Timeout = defaults.Timeout
	}
	return nil
}
