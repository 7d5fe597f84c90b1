package util

import (
	"bytes"
	"github.com/ValentinKolb/dbpool/lib/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

type payload struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func TestWriteOutput(t *testing.T) {
	v := payload{Name: "a", Count: 2}

	tests := []struct {
		format string
		want   string
	}{
		{OutputText, "{a 2}\n"},
		{OutputJSON, "{\n  \"name\": \"a\",\n  \"count\": 2\n}\n"},
		{OutputYAML, "name: a\ncount: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteOutput(&buf, tt.format, v))
			assert.Equal(t, tt.want, buf.String())
		})
	}

	assert.Error(t, WriteOutput(&bytes.Buffer{}, "xml", v))
}

func TestGetConfig(t *testing.T) {
	defer viper.Reset()

	viper.Set("engine", "sqlite")
	viper.Set("path", "/tmp/db.sqlite")
	viper.Set("log-level", "debug")
	viper.Set("pool-workers", 8)
	viper.Set("pool-queues", 2)
	viper.Set("pool-affinity", true)

	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, common.EngineSQLite, cfg.Engine.Type)
	assert.Equal(t, "/tmp/db.sqlite", cfg.Engine.Path)
	assert.Equal(t, 8, cfg.Pool.Workers)
	assert.Equal(t, 2, cfg.Pool.Queues)
	assert.True(t, cfg.Pool.Affinity)
	assert.False(t, cfg.Pool.Diagnostics)

	viper.Set("engine", "rocksdb")
	_, err = GetConfig()
	assert.Error(t, err)

	viper.Set("engine", "maple")
	viper.Set("log-level", "loud")
	_, err = GetConfig()
	assert.Error(t, err)
}
