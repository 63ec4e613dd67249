package observability

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// LogConfig configures the service logger.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error"
	Level string

	// Format specifies output format: "json" or "text"
	// JSON format is recommended for production; text for development
	Format string

	// Output is the writer for log output (defaults to os.Stdout)
	Output io.Writer

	// AddSource includes file and line number in log records
	AddSource bool
}

// redactPatterns covers provider credentials that must never reach logs.
var redactPatterns = []*regexp.Regexp{
	// Anthropic API keys
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{16,}`),
	// OpenAI API keys
	regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),
	// Google API keys
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),
	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-.]{16,}`),
}

// NewLogger creates the service's structured logger. All records pass
// through credential redaction before reaching the output writer.
//
// If config.Output is nil, logs go to os.Stdout. An empty or invalid level
// defaults to "info"; an empty format defaults to "json".
func NewLogger(config LogConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}

	out := &redactWriter{w: config.Output}
	var handler slog.Handler
	if config.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

// redactWriter masks credential-shaped substrings in each log line. slog
// handlers write one record per Write call, so line-level replacement is
// safe here.
type redactWriter struct {
	w io.Writer
}

func (r *redactWriter) Write(p []byte) (int, error) {
	redacted := p
	for _, re := range redactPatterns {
		redacted = re.ReplaceAll(redacted, []byte("[REDACTED]"))
	}
	if _, err := r.w.Write(redacted); err != nil {
		return 0, err
	}
	// Report the original length so slog does not see a short write.
	return len(p), nil
}
