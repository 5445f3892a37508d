package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	cfgpkg "github.com/taoyao-code/fdm-driver/internal/config"
)

func TestInitLogger_WritesRollingFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "fdm.log")
	logger, err := InitLogger(cfgpkg.LoggingConfig{
		Level:  "debug",
		Format: "json",
		File:   cfgpkg.LumberjackConfig{Filename: file, MaxSizeMB: 1},
	})
	require.NoError(t, err)

	logger.Named("driver").Info("scan finished")
	_ = logger.Sync()

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"logger":"driver"`)
	assert.Contains(t, string(b), `"msg":"scan finished"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}
