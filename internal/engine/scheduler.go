package engine

import (
	"context"
	"log/slog"
	"time"

	"factory-cell-controller/internal/command"
)

// Cadence 定义控制循环的节拍
// 所有 *Every 都以 tick 为单位
type Cadence struct {
	Tick           time.Duration
	UpdateEvery    int  // 处理命令并轮询工厂
	StatusEvery    int  // 广播状态
	InventoryEvery int  // 广播库存
	ResetAfter     int  // 计数器归零的 tick 数
	ResetInventory bool // 归零时是否重置库存（仅仿真模式）
}

// DefaultCadence 返回默认节拍：1s tick，2/15/60/600
func DefaultCadence() Cadence {
	return Cadence{
		Tick:           time.Second,
		UpdateEvery:    2,
		StatusEvery:    15,
		InventoryEvery: 60,
		ResetAfter:     600,
	}
}

// Scheduler 是单线程协作式控制循环
// 每个 tick 内的设备读写和消息发布严格串行，取消只在 tick 之间生效
type Scheduler struct {
	orch    *Orchestrator
	inbox   *command.Inbox
	cadence Cadence
	logger  *slog.Logger
	count   int
	done    chan struct{}
}

// NewScheduler 创建一个新的 Scheduler 实例
func NewScheduler(orch *Orchestrator, inbox *command.Inbox, cadence Cadence, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		orch:    orch,
		inbox:   inbox,
		cadence: cadence,
		logger:  logger.With("component", "scheduler"),
		done:    make(chan struct{}),
	}
}

// Step 执行一个 tick
func (s *Scheduler) Step() {
	s.count++
	c := s.cadence

	if s.count%c.UpdateEvery == 0 {
		if n := s.inbox.Drain(s.orch.Apply); n > 0 {
			s.logger.Debug("已处理命令", "count", n)
		}
		_ = s.orch.FactoryUpdate() // 错误已在编排器中记录，下个周期重试
	}
	if s.count%c.StatusEvery == 0 {
		s.orch.SendStatus()
	}
	if s.count%c.InventoryEvery == 0 {
		s.orch.SendInventory()
	}
	if s.count > c.ResetAfter {
		if c.ResetInventory {
			s.logger.Info("定期重置库存")
			s.orch.ResetInventory()
		}
		s.count = 0
	}
}

// Start 启动控制循环，直到 ctx 被取消
// 正在执行的 tick 不会被打断
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cadence.Tick)
	defer ticker.Stop()

	s.logger.Info("控制循环启动", "tick", s.cadence.Tick)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("控制循环退出")
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

// WaitForCompletion 等待 Start 返回，用于优雅停机
// Start 只能调用一次
func (s *Scheduler) WaitForCompletion() {
	<-s.done
}
