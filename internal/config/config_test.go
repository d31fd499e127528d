package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"APP_ENV", "PORT", "STORAGE", "COMMENT_MAX_DEPTH", "COMMENT_DEPTH_POLICY", "NOTIFY_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.Storage)
	assert.Equal(t, 5, cfg.CommentMaxDepth)
	assert.Equal(t, DepthPolicyReject, cfg.CommentDepthPolicy)
	assert.Equal(t, 3*time.Second, cfg.NotifyTimeout)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "Production")
	t.Setenv("COMMENT_MAX_DEPTH", "3")
	t.Setenv("COMMENT_DEPTH_POLICY", "reparent")
	t.Setenv("NOTIFY_TIMEOUT", "750ms")
	t.Setenv("RATE_LIMIT_PER_SEC", "0.5")

	cfg := FromEnv()
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 3, cfg.CommentMaxDepth)
	assert.Equal(t, DepthPolicyReparent, cfg.CommentDepthPolicy)
	assert.Equal(t, 750*time.Millisecond, cfg.NotifyTimeout)
	assert.InDelta(t, 0.5, cfg.RateLimitPerSec, 1e-9)
}

func TestFromEnvRejectsNonsense(t *testing.T) {
	t.Setenv("COMMENT_MAX_DEPTH", "0")
	t.Setenv("COMMENT_DEPTH_POLICY", "flatten")
	t.Setenv("NOTIFY_TIMEOUT", "soon")

	cfg := FromEnv()
	assert.Equal(t, 5, cfg.CommentMaxDepth)
	assert.Equal(t, DepthPolicyReject, cfg.CommentDepthPolicy)
	assert.Equal(t, 3*time.Second, cfg.NotifyTimeout)
}
