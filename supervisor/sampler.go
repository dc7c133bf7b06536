package supervisor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/YAMLcase/Heron/internal/metrics"
)

// ResourceSample is one reading of the worker's resource use.
type ResourceSample struct {
	ResidentBytes uint64
	CPUPercent    float64
}

// sample reads the worker's RSS and CPU share every interval until ctx is done.
func (s *Supervisor) sample(ctx context.Context, pid int) {
	if s.cfg.SampleInterval <= 0 {
		return
	}
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		s.logger.Debug("worker process not sampled", zap.Int("pid", pid), zap.Error(err))
		return
	}

	stage := s.identity.Topic()
	t := time.NewTicker(s.cfg.SampleInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		mem, err := proc.MemoryInfoWithContext(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("sampling worker memory failed", zap.Error(err))
			}
			continue
		}
		cpu, err := proc.PercentWithContext(ctx, 0)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("sampling worker cpu failed", zap.Error(err))
			}
			continue
		}

		sample := ResourceSample{ResidentBytes: mem.RSS, CPUPercent: cpu}
		s.lastSample.Store(&sample)
		metrics.WorkerResidentBytes.WithLabelValues(stage).Set(float64(sample.ResidentBytes))
		metrics.WorkerCPUPercent.WithLabelValues(stage).Set(sample.CPUPercent)
	}
}
