package event

import (
	"sync"

	"factory-cell-controller/internal/types"
)

// EventType 定义事件的类型
type EventType string

// 定义所有业务事件类型，分别对应消息总线上的三个逻辑主题
const (
	JobNotice EventType = "JobNotice" // 任务生命周期通知
	Status    EventType = "Status"    // 工厂状态广播
	Inventory EventType = "Inventory" // 库存广播
)

// 任务通知的结果分类，用于指标和审计
const (
	OutcomeAdded     = "added"
	OutcomeStarted   = "started"
	OutcomeCompleted = "completed"
	OutcomeCanceled  = "canceled"
	OutcomeRejected  = "rejected"
)

// Event 结构体定义了事件的数据负载
type Event struct {
	Type      EventType
	Notice    types.JobNotice       // 仅 JobNotice
	Outcome   string                // 仅 JobNotice
	Status    types.StatusReport    // 仅 Status
	Inventory types.InventoryReport // 仅 Inventory
	QueueLen  int                   // 事件发生时的队列长度
}

// Handler 是事件处理函数的签名
type Handler func(e Event)

// Bus 是一个简单的内存事件总线
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus 创建一个新的事件总线实例
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe 订阅一个特定类型的事件
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish 按订阅顺序同步调用处理器
// 同一个 tick 内发布的事件保持先后顺序，处理器不应阻塞
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := b.handlers[e.Type]
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(e)
	}
}
