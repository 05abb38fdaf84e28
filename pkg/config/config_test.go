package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, ConflictCheckerLocal, cfg.Scheduler.ConflictChecker)
	assert.Equal(t, 10, cfg.Scheduler.RecommendationLimit)
	assert.Equal(t, 3, cfg.Scheduler.NearbyDays)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.ExternalCheckTimeout)
	assert.Equal(t, "dev_secret", cfg.Export.SignSecret)
	assert.Equal(t, 24*time.Hour, cfg.Export.LinkTTL)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONFLICT_CHECKER", "LEGACY")
	t.Setenv("SCHEDULER_EXTERNAL_CHECK_TIMEOUT", "not-a-duration")
	t.Setenv("LEGACY_BASE_URL", "http://legacy.local/api/")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ConflictCheckerLegacy, cfg.Scheduler.ConflictChecker)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.ExternalCheckTimeout)
	assert.Equal(t, "http://legacy.local/api", cfg.Legacy.BaseURL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestSchedulerLocationFallsBack(t *testing.T) {
	assert.Equal(t, time.Local, SchedulerConfig{Timezone: "Nowhere/Invalid"}.Location())
	assert.Equal(t, time.Local, SchedulerConfig{}.Location())
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
