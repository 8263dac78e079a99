package rslimiter

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"specwatch/internal/config"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceLimiter samples process and system memory on a fixed cadence and
// gates polling work under pressure. The scheduler consults AllowCycle before
// each tick; while over threshold new cycles are skipped, never aborted.
type ResourceLimiter struct {
	cfg      config.ResourceConfig
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	limitMB  int64
	throttle atomic.Bool
	once     sync.Once
}

// NewResourceLimiter creates a limiter from cfg.
func NewResourceLimiter(cfg config.ResourceConfig, logger zerolog.Logger) *ResourceLimiter {
	ctx, cancel := context.WithCancel(context.Background())
	threshold := cfg.MemoryThreshold
	if threshold <= 0 {
		threshold = 0.85
	}
	return &ResourceLimiter{
		cfg:     cfg,
		logger:  logger.With().Str("component", "ResourceLimiter").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		limitMB: int64(float64(cfg.MaxMemoryMB) * threshold),
	}
}

// Start begins the sampling loop. Safe to call once; a disabled limiter
// never throttles and starts nothing.
func (rl *ResourceLimiter) Start() {
	if !rl.cfg.Enabled {
		return
	}
	rl.once.Do(func() {
		rl.wg.Add(1)
		go rl.monitor()
	})
}

// Stop terminates the sampling loop and waits for it to exit.
func (rl *ResourceLimiter) Stop() {
	rl.cancel()
	rl.wg.Wait()
}

// AllowCycle reports whether a new polling cycle may start.
func (rl *ResourceLimiter) AllowCycle() bool {
	return !rl.throttle.Load()
}

func (rl *ResourceLimiter) monitor() {
	defer rl.wg.Done()

	ticker := time.NewTicker(rl.cfg.CheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-rl.ctx.Done():
			return
		case <-ticker.C:
			rl.sample()
		}
	}
}

func (rl *ResourceLimiter) sample() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	allocMB := int64(m.Alloc / 1024 / 1024)

	over := rl.limitMB > 0 && allocMB > rl.limitMB
	var systemPercent float64
	if vmStat, err := mem.VirtualMemory(); err == nil {
		systemPercent = vmStat.UsedPercent
	}

	wasThrottled := rl.throttle.Swap(over)
	switch {
	case over && !wasThrottled:
		rl.logger.Warn().
			Int64("alloc_mb", allocMB).
			Int64("limit_mb", rl.limitMB).
			Float64("system_mem_percent", systemPercent).
			Msg("Memory threshold exceeded, throttling polling cycles")
		// Reclaim what we can before the next sample.
		runtime.GC()
	case !over && wasThrottled:
		rl.logger.Info().
			Int64("alloc_mb", allocMB).
			Int64("limit_mb", rl.limitMB).
			Msg("Memory back under threshold, resuming polling cycles")
	default:
		rl.logger.Debug().
			Int64("alloc_mb", allocMB).
			Int("goroutines", runtime.NumGoroutine()).
			Float64("system_mem_percent", systemPercent).
			Msg("Resource usage sampled")
	}
}
