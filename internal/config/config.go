package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load env vars from .env file directly
func init() {
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist (e.g. in production),
		// but we should log it just in case.
		// However, mostly we want to rely on environment variables being set.
		// If we are in local dev, this helps.
		log.Println("No .env file found or error loading it, using system environment variables")
	}
}

// GetAllowedOrigins returns a slice of allowed origins from the environment variable.
// It defaults to localhost:3000 if not set.
func GetAllowedOrigins() []string {
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr == "" {
		return []string{"http://localhost:3000"}
	}

	// Split by comma and trim spaces
	parts := strings.Split(originsStr, ",")
	var origins []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// ThumbnailerBinary returns the external thumbnailer command the
// Thumbnail Service invokes (spec.md §6). Defaults to "vipsthumbnail",
// the libvips command-line tool.
func ThumbnailerBinary() string {
	if v := os.Getenv("THUMBNAILER_BINARY"); v != "" {
		return v
	}
	return "vipsthumbnail"
}

// ThumbnailerConstraintArgs returns the extra argv tokens appended after
// width on every thumbnailer invocation: the "permissive height
// constraint that preserves aspect ratio" spec.md §4.4 requires. Operators
// set THUMBNAILER_CONSTRAINT_ARGS as a space-separated list to match
// their chosen binary's flag syntax.
func ThumbnailerConstraintArgs() []string {
	raw := os.Getenv("THUMBNAILER_CONSTRAINT_ARGS")
	if raw == "" {
		return defaultThumbnailerConstraintArgs
	}
	return strings.Fields(raw)
}

var defaultThumbnailerConstraintArgs = []string{"100000"}

// SubprocessTimeout bounds a single Executor or Thumbnail Service
// subprocess invocation. Defaults to 60 seconds.
func SubprocessTimeout() time.Duration {
	raw := os.Getenv("EXECUTOR_TIMEOUT_SECONDS")
	if raw == "" {
		return 60 * time.Second
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 60 * time.Second
	}
	return time.Duration(n) * time.Second
}
