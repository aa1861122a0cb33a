package factory

import (
	"fmt"
	"log/slog"
	"time"

	"factory-cell-controller/internal/types"
)

// Sim 是定时仿真工厂：每个任务固定处理 processing 时长
type Sim struct {
	processing time.Duration
	now        func() time.Time
	logger     *slog.Logger

	state     types.FactoryState
	job       *types.Job
	startedAt time.Time
	stopped   bool
}

// NewSim 创建一个仿真工厂
func NewSim(processing time.Duration, logger *slog.Logger, opts ...Option) *Sim {
	s := applyOptions(opts)
	return &Sim{
		processing: processing,
		now:        s.now,
		logger:     logger.With("component", "factory", "mode", "sim"),
		state:      types.StateReady,
	}
}

func (s *Sim) Status() string {
	switch {
	case s.stopped:
		return "Stopped"
	case s.job != nil:
		remaining := s.processing - s.now().Sub(s.startedAt)
		return fmt.Sprintf("Processing job %d (%ds remaining)", s.job.JobID, int(max(remaining, 0).Seconds()))
	}
	return "Ready"
}

func (s *Sim) Update() (types.FactoryState, error) {
	if s.job != nil && s.now().Sub(s.startedAt) >= s.processing {
		s.logger.Debug("仿真任务处理完毕", "job_id", s.job.JobID)
		s.job = nil
		s.state = types.StateReady
	}
	return s.state, nil
}

func (s *Sim) Order(job *types.Job) error {
	if s.stopped {
		return ErrStopped
	}
	if s.job != nil {
		return fmt.Errorf("order job %d: %w", job.JobID, ErrBusy)
	}
	s.job = job
	s.startedAt = s.now()
	s.state = types.StateProcessing
	s.logger.Info("仿真工厂接收任务", "job_id", job.JobID, "color", job.Color, "processing", s.processing)
	return nil
}

func (s *Sim) Stop() error {
	s.stopped = true
	s.logger.Info("仿真工厂已停止")
	return nil
}
