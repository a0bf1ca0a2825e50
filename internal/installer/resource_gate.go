package installer

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// resourceGate bounds concurrent installs and logs when the host is under
// pressure. The headroom check is advisory: an install proceeds regardless,
// the interface must stay responsive either way.
type resourceGate struct {
	logger     *zap.Logger
	slots      chan struct{}
	maxCPU     float64
	minFreeMem uint64
}

func newResourceGate(logger *zap.Logger, maxConcurrent int, maxCPU float64, minFreeMem uint64) *resourceGate {
	return &resourceGate{
		logger:     logger.Named("resource-gate"),
		slots:      make(chan struct{}, maxConcurrent),
		maxCPU:     maxCPU,
		minFreeMem: minFreeMem,
	}
}

// acquire blocks until a slot is free or the context ends.
func (g *resourceGate) acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.checkHeadroom()
	return nil
}

func (g *resourceGate) release() {
	<-g.slots
}

// checkHeadroom samples cpu/mem and logs pressure. Sampling errors are
// ignored.
func (g *resourceGate) checkHeadroom() {
	if g.maxCPU > 0 {
		if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
			if percents[0] > g.maxCPU {
				g.logger.Warn("CPU usage above configured limit, continuing anyway",
					zap.Float64("usage", percents[0]),
					zap.Float64("limit", g.maxCPU))
			}
		}
	}
	if g.minFreeMem > 0 {
		if vm, err := mem.VirtualMemory(); err == nil && vm.Available < g.minFreeMem {
			g.logger.Warn("Available memory below configured minimum, continuing anyway",
				zap.Uint64("available", vm.Available),
				zap.Uint64("minimum", g.minFreeMem))
		}
	}
}
