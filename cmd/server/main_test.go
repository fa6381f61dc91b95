package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOffset(t *testing.T) {
	tests := []struct {
		in         string
		wantOffset int
		wantErr    bool
	}{
		{in: "+00:00", wantOffset: 0},
		{in: "Z", wantOffset: 0},
		{in: "+05:30", wantOffset: 5*3600 + 30*60},
		{in: "-08:00", wantOffset: -8 * 3600},
		{in: "Asia/Dhaka", wantErr: true},
		{in: "+5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			loc, err := parseOffset(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			_, offset := time.Date(2024, 5, 20, 12, 0, 0, 0, loc).Zone()
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("API_SECRET", "s3cret")
		t.Setenv("RELAY_SIGNING_KEY", "0123456789abcdef")
		t.Setenv("INFERENCE_URL", "http://localhost:11434/run")

		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "sqlite", cfg.StoreDriver)
		assert.Equal(t, 60*time.Second, cfg.Inference.Timeout)
		assert.False(t, cfg.SerializeUserWrites)
		assert.Equal(t, 10, cfg.IntakeRatePerMinute)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("API_SECRET", "s3cret")
		t.Setenv("RELAY_SIGNING_KEY", "0123456789abcdef")
		t.Setenv("INFERENCE_URL", "http://localhost:11434/run")
		t.Setenv("INFERENCE_TIMEOUT", "90")
		t.Setenv("SERIALIZE_USER_WRITES", "true")
		t.Setenv("STORE_DRIVER", "redis")
		t.Setenv("RELAY_ALLOWED_ORIGINS", "https://a.example, https://b.example")

		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, cfg.Inference.Timeout)
		assert.True(t, cfg.SerializeUserWrites)
		assert.Equal(t, "redis", cfg.StoreDriver)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.RelayAllowedOrigins)
	})

	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("API_SECRET", "")
		t.Setenv("RELAY_SIGNING_KEY", "0123456789abcdef")
		t.Setenv("INFERENCE_URL", "http://localhost:11434/run")

		_, err := loadConfig()
		assert.ErrorContains(t, err, "API_SECRET")
	})

	t.Run("bad port", func(t *testing.T) {
		t.Setenv("API_SECRET", "s3cret")
		t.Setenv("RELAY_SIGNING_KEY", "0123456789abcdef")
		t.Setenv("INFERENCE_URL", "http://localhost:11434/run")
		t.Setenv("PORT", "eighty")

		_, err := loadConfig()
		assert.ErrorContains(t, err, "PORT")
	})
}
