package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// InstrumentationName is the otelslog scope used for bridged records.
const InstrumentationName = "github.com/coinhunt/roomengine"

// console is where the console handler writes. Tests swap it out.
var console io.Writer = os.Stdout

// SlogManager owns the process logger and the sinks behind it.
type SlogManager struct {
	mu          sync.RWMutex
	logger      *slog.Logger
	level       *slog.LevelVar
	logProvider *sdklog.LoggerProvider
}

func NewSlogManager() *SlogManager {
	return &SlogManager{level: new(slog.LevelVar)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HandlerOptions returns the options shared by every text/JSON sink: the
// manager's level and RFC3339 UTC timestamps.
func (m *SlogManager) HandlerOptions() *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: m.level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key != slog.TimeKey {
				return a
			}
			if t, ok := a.Value.Any().(time.Time); ok {
				a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
			}
			return a
		},
	}
}

// Setup builds the logger: console, file (when non-nil), the otel bridge (when
// provider is non-nil) and any extra handlers such as graylog.
// Calling Setup again replaces the previous logger.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, extra ...slog.Handler) *slog.Logger {
	m.level.Set(parseLevel(level))
	opts := m.HandlerOptions()

	handlers := []slog.Handler{slog.NewTextHandler(console, opts)}
	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, opts))
	}
	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(InstrumentationName, otelslog.WithLoggerProvider(provider)))
	}
	handlers = append(handlers, extra...)

	logger := slog.New(NewFanoutHandler(handlers...))

	m.mu.Lock()
	m.logger = logger
	m.logProvider = provider
	m.mu.Unlock()

	logger.Info("Logging initialized", "level", m.level.Level().String())
	return logger
}

// With wraps the current handler chain in a ContextHandler fed by source.
func (m *SlogManager) With(source AttrSource) *slog.Logger {
	logger := slog.New(NewContextHandler(m.Logger().Handler(), source))
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
	return logger
}

// SetLevel changes the minimum level without rebuilding handlers.
func (m *SlogManager) SetLevel(level string) {
	m.level.Set(parseLevel(level))
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces pending otel records out.
func (m *SlogManager) Flush(ctx context.Context) error {
	m.mu.RLock()
	provider := m.logProvider
	m.mu.RUnlock()
	if provider == nil {
		return nil
	}
	return provider.ForceFlush(ctx)
}
