package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		logger, err := NewLogger(NewDefaultConfig())
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.True(t, logger.Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Enabled(zapcore.DebugLevel))
	})

	t.Run("console format", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Format = "console"
		logger, err := NewLogger(cfg)
		require.NoError(t, err)
		require.NotNil(t, logger)
	})

	t.Run("invalid format", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Format = "xml"
		logger, err := NewLogger(cfg)
		assert.Error(t, err)
		assert.Nil(t, logger)
	})

	t.Run("invalid redaction pattern", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Redaction.Patterns = []string{"[invalid("}
		logger, err := NewLogger(cfg)
		assert.Error(t, err)
		assert.Nil(t, logger)
	})
}

func TestContextAwareLogging(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}

	ctx := WithRequestID(context.Background(), "req-42")
	ctx = WithPrincipal(ctx, "ops@example.com")

	logger.Info(ctx, "handling request", zap.Int("status", 200))

	logs := observed.All()
	require.Len(t, logs, 1)

	fields := make(map[string]interface{})
	for _, f := range logs[0].Context {
		switch f.Type {
		case zapcore.StringType:
			fields[f.Key] = f.String
		case zapcore.Int64Type:
			fields[f.Key] = f.Integer
		}
	}
	assert.Equal(t, "req-42", fields["request.id"])
	assert.Equal(t, "ops@example.com", fields["principal"])
	assert.Equal(t, int64(200), fields["status"])
}

func TestNamedAndWith(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}

	child := logger.Named("credential").With(zap.String("component", "manager"))
	child.Info(context.Background(), "ready")

	logs := observed.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "credential", logs[0].LoggerName)
	require.Len(t, logs[0].Context, 1)
	assert.Equal(t, "component", logs[0].Context[0].Key)
}

func TestLevelFromString(t *testing.T) {
	level, err := LevelFromString("debug")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	_, err = LevelFromString("verbose")
	assert.Error(t, err)
}
