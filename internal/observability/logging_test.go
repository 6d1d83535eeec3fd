package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLevel_Invalid(t *testing.T) {
	_, err := ParseLevel("loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestInitLogger(t *testing.T) {
	orig := Logger
	defer func() { Logger = orig }()

	err := InitLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, Logger)
	assert.True(t, Logger.Core().Enabled(zapcore.DebugLevel))
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	orig := Logger
	defer func() { Logger = orig }()

	err := InitLogger("nope")
	require.Error(t, err)
	assert.Same(t, orig, Logger)
}

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	err := InitCLILogger("warn")
	require.NoError(t, err)
	assert.NotNil(t, CLILogger)
	assert.False(t, CLILogger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, CLILogger.Core().Enabled(zapcore.WarnLevel))
}
