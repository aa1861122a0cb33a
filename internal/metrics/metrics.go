package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 定义 Prometheus 监控指标
var (
	// JobsInQueue 仪表盘：当前队列中等待的任务数量
	JobsInQueue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cell_jobs_in_queue",
		Help: "The number of jobs currently waiting in the job queue",
	})

	// JobsTotal 计数器：按结果 (added/started/completed/canceled/rejected) 分类的任务数
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cell_jobs_total",
		Help: "The total number of job lifecycle outcomes",
	}, []string{"outcome"})

	// InventoryLevel 仪表盘：各颜色坯料的可用数量
	InventoryLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cell_inventory_level",
		Help: "Available stock per color",
	}, []string{"color"})

	// FactoryState 仪表盘：当前工厂状态为 1，其余为 0
	FactoryState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cell_factory_state",
		Help: "Current factory facade state (1 = active)",
	}, []string{"state"})

	// FactoryErrorsTotal 计数器：tick 边界捕获的门面错误
	FactoryErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cell_factory_errors_total",
		Help: "Errors returned by the factory facade, caught at the tick boundary",
	}, []string{"op"})

	// DeviceOpDuration 直方图：现场总线原始操作耗时
	DeviceOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "device_op_duration_seconds",
		Help:    "Time spent in each field protocol primitive operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// DeviceErrorsTotal 计数器：连接失败 (connect) 与读写失败 (io)
	DeviceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "device_errors_total",
		Help: "Field protocol connection and I/O failures",
	}, []string{"kind"})

	// CommandsTotal 计数器：按来源 (mqtt/http) 和结果 (accepted/dropped/ignored) 分类的外部命令
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cell_commands_total",
		Help: "External commands received, by source and result",
	}, []string{"source", "result"})
)
