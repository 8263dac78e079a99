package rslimiter

import (
	"runtime"
	"testing"

	"specwatch/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestAllowCycleDefaultsToTrue(t *testing.T) {
	rl := NewResourceLimiter(config.NewDefaultResourceConfig(), zerolog.Nop())
	assert.True(t, rl.AllowCycle())
}

func TestDisabledLimiterNeverThrottles(t *testing.T) {
	cfg := config.NewDefaultResourceConfig()
	cfg.Enabled = false
	rl := NewResourceLimiter(cfg, zerolog.Nop())
	rl.Start()
	defer rl.Stop()

	assert.True(t, rl.AllowCycle())
}

func TestSampleThrottlesOverLimit(t *testing.T) {
	rl := NewResourceLimiter(config.NewDefaultResourceConfig(), zerolog.Nop())

	// Pin enough live heap that the sampled allocation is safely above the
	// limit regardless of how small the test process otherwise is.
	ballast := make([]byte, 32<<20)
	for i := 0; i < len(ballast); i += 4096 {
		ballast[i] = 1
	}

	rl.limitMB = 8
	rl.sample()
	assert.False(t, rl.AllowCycle())

	rl.limitMB = 1 << 40
	rl.sample()
	assert.True(t, rl.AllowCycle())

	runtime.KeepAlive(ballast)
}
