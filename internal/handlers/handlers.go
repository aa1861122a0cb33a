package handlers

import (
	"context"
	"errors"
	"log/slog"

	"factory-cell-controller/internal/event"
	"factory-cell-controller/internal/metrics"
	"factory-cell-controller/internal/mqtt"
	"factory-cell-controller/internal/types"
	"factory-cell-controller/internal/web"
)

// RegisterEventHandlers 将所有事件处理器注册到事件总线
// 监控、UI、消息总线和审计日志各自订阅，编排器只负责发布
// pub 为 nil 时不向消息总线转发
func RegisterEventHandlers(bus *event.Bus, st *web.StateTracker, pub mqtt.Publisher, logger *slog.Logger) {
	// --- 指标处理器 (Metrics Handler) ---
	// 按结果统计任务通知
	bus.Subscribe(event.JobNotice, func(e event.Event) {
		metrics.JobsTotal.WithLabelValues(e.Outcome).Inc()
		metrics.JobsInQueue.Set(float64(e.QueueLen))
	})
	bus.Subscribe(event.Status, func(e event.Event) {
		metrics.JobsInQueue.Set(float64(e.QueueLen))
	})
	// 库存水位
	bus.Subscribe(event.Inventory, func(e event.Event) {
		for _, c := range types.Colors() {
			metrics.InventoryLevel.WithLabelValues(string(c)).Set(float64(e.Inventory.Inventory[c]))
		}
	})

	// --- Web UI 处理器 (Web UI Handler) ---
	bus.Subscribe(event.JobNotice, func(e event.Event) {
		st.RecordNotice(e.Notice, e.Outcome, e.QueueLen)
	})
	bus.Subscribe(event.Status, func(e event.Event) {
		st.UpdateStatus(e.Status, e.QueueLen)
	})
	bus.Subscribe(event.Inventory, func(e event.Event) {
		st.UpdateInventory(e.Inventory.Inventory)
	})

	// --- 消息总线处理器 (MQTT Handler) ---
	if pub != nil {
		forward := func(e event.Event) {
			if err := mqtt.Forward(pub, e); err != nil {
				level := slog.LevelError
				if errors.Is(err, mqtt.ErrNotConnected) {
					level = slog.LevelWarn
				}
				logger.Log(context.Background(), level, "转发事件失败", "type", e.Type, "error", err)
			}
		}
		bus.Subscribe(event.JobNotice, forward)
		bus.Subscribe(event.Status, forward)
		bus.Subscribe(event.Inventory, forward)
	}

	// --- 日志处理器 (Logging Handler) ---
	// 记录任务生命周期的审计日志
	bus.Subscribe(event.JobNotice, func(e event.Event) {
		n := e.Notice
		if n.MsgType == types.NoticeError || n.JobID == nil {
			logger.Warn("任务通知", "outcome", e.Outcome, "message", n.Message)
			return
		}
		logger.Info("任务通知", "outcome", e.Outcome, "job_id", *n.JobID, "message", n.Message)
	})
}
