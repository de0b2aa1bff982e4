// Package options defines the generic options interface and common utilities.
//
// Every configuration section of the server (http, log, milvus, rag,
// cache, ...) lives in its own sub-package implementing IOptions, so the
// command layer can aggregate, flag-bind, and validate them uniformly.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// Join concatenates prefixes with "." and appends a trailing "." when
// the result is non-empty. Flag names are built from it, e.g.
// Join("embedding")+"model" yields "embedding.model".
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}

// IOptions is implemented by every configuration section.
type IOptions interface {
	// Validate checks the section and reports every problem found,
	// not just the first one.
	Validate() []error

	// AddFlags registers the section's flags, optionally under the
	// given prefixes.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}
