package match

import (
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "matching-engine").Logger()

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	logger = l
}
