package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	// 管道节奏参数必须有可用默认值
	assert.Equal(t, 3, cfg.Pipeline.MaxConcurrency)
	assert.Equal(t, 3, cfg.Pipeline.Retries)
	assert.Equal(t, 1000, cfg.Pipeline.ChunkDelayMs)
	assert.Equal(t, 1000, cfg.Pipeline.BackoffBaseMs)
	assert.Equal(t, 1024, cfg.Pipeline.MinAudioBytes)
	assert.NotEmpty(t, cfg.MinIO.BucketName)
	assert.NotEmpty(t, cfg.Speech.Voice)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("MAX_CONCURRENCY", "8")
	t.Setenv("SYNTH_SKIP_EXISTING", "true")
	t.Setenv("QUIZ_AUDIO_BUCKET", "custom-bucket")

	cfg := LoadConfig()

	assert.Equal(t, 8, cfg.Pipeline.MaxConcurrency)
	assert.True(t, cfg.Pipeline.SkipExisting)
	assert.Equal(t, "custom-bucket", cfg.MinIO.BucketName)
}

func TestLoadConfigBadIntFallsBack(t *testing.T) {
	t.Setenv("SYNTH_RETRIES", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 3, cfg.Pipeline.Retries)
}
