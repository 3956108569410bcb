package executor

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// SystemStats is a point-in-time sample of host resource usage
type SystemStats struct {
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	CollectedAt time.Time `json:"collected_at"`
}

// StatsCollector periodically samples host CPU and memory so operators can
// correlate promise throughput with resource pressure
type StatsCollector struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	current SystemStats
	stop    chan struct{}
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector(logger *zap.Logger) *StatsCollector {
	return &StatsCollector{
		logger: logger.Named("stats"),
		stop:   make(chan struct{}),
	}
}

// Start starts the sampling loop
func (c *StatsCollector) Start(ctx context.Context) error {
	go c.collectLoop(ctx)
	return nil
}

// Stop stops the sampling loop
func (c *StatsCollector) Stop() {
	close(c.stop)
}

// Current returns the latest sample
func (c *StatsCollector) Current() SystemStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *StatsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *StatsCollector) collect() {
	stats := SystemStats{CollectedAt: time.Now()}

	if percentages, err := cpu.Percent(0, false); err != nil {
		c.logger.Debug("Failed to sample CPU usage", zap.Error(err))
	} else if len(percentages) > 0 {
		stats.CPUUsage = percentages[0]
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		c.logger.Debug("Failed to sample memory usage", zap.Error(err))
	} else {
		stats.MemoryUsage = vm.UsedPercent
	}

	c.mu.Lock()
	c.current = stats
	c.mu.Unlock()
}
