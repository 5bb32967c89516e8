package maincmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.False(t, cfg.StressGC)
	require.Equal(t, 0, cfg.MaxSteps)
	require.Equal(t, 2, cfg.GCGrowFactor)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("LOXVM_STRESS_GC", "true")
	t.Setenv("LOXVM_MAX_STEPS", "5000")
	t.Setenv("LOXVM_GC_GROW_FACTOR", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.StressGC)
	require.Equal(t, 5000, cfg.MaxSteps)
	require.Equal(t, 3, cfg.GCGrowFactor)
}

func TestLoadConfigRejectsInvalidBool(t *testing.T) {
	t.Setenv("LOXVM_STRESS_GC", "not-a-bool")
	_, err := LoadConfig()
	require.Error(t, err)
}
