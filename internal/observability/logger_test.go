package observability

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jobdesk/naukri-refresh/internal/config"
)

// memSink collects console output in memory.
type memSink struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (s *memSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.WriteString(string(p))
}

func (s *memSink) Sync() error { return nil }

func (s *memSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestInitializeJSONFormat(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "naukri-refresh-test",
	}, zapcore.Lock(zapcore.AddSync(sink)))

	logger := GetLogger()
	logger.Info("hello", zap.String("key", "value"))
	require.NoError(t, logger.Sync())

	line := strings.TrimSpace(sink.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, "naukri-refresh-test", entry["logger"])
}

func TestInitializeConsoleColors(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(config.LoggerConfig{
		Level:       "info",
		Format:      "console",
		ServiceName: "t",
		Colors:      config.ColorConfig{Info: "green"},
	}, zapcore.Lock(zapcore.AddSync(sink)))

	GetLogger().Info("colored line")
	out := sink.String()
	assert.Contains(t, out, "colored line")
	assert.Contains(t, out, "\x1b[32m")
}

func TestInitializeRunsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &memSink{}
	second := &memSink{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "one"},
		zapcore.Lock(zapcore.AddSync(first)))
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "two"},
		zapcore.Lock(zapcore.AddSync(second)))

	GetLogger().Info("only one sink")
	assert.Contains(t, first.String(), "only one sink")
	assert.Empty(t, second.String())
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(config.LoggerConfig{Level: "chatty", Format: "json", ServiceName: "t"},
		zapcore.Lock(zapcore.AddSync(sink)))

	GetLogger().Debug("should be suppressed")
	GetLogger().Info("should appear")
	out := sink.String()
	assert.NotContains(t, out, "should be suppressed")
	assert.Contains(t, out, "should appear")
}

func TestFileCoreWritesJSON(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logFile := filepath.Join(t.TempDir(), "run.log")
	sink := &memSink{}
	Initialize(config.LoggerConfig{
		Level:       "info",
		Format:      "console",
		ServiceName: "t",
		LogFile:     logFile,
		MaxSize:     1,
	}, zapcore.Lock(zapcore.AddSync(sink)))

	GetLogger().Info("to file too")
	_ = GetLogger().Sync()

	assert.FileExists(t, logFile)
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
}
