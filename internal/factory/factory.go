package factory

import (
	"errors"
	"time"

	"factory-cell-controller/internal/types"
)

var (
	// ErrBusy 表示门面正在处理另一个任务
	ErrBusy = errors.New("factory is busy")
	// ErrStopped 表示门面已停止
	ErrStopped = errors.New("factory is stopped")
	// ErrUnknownColor 表示没有为该颜色配置仓库货位
	ErrUnknownColor = errors.New("no warehouse slot for color")
)

// Factory 是工厂门面，真实设备与定时仿真都实现它
// Update 是唯一改变工厂状态的地方，必须轮询
type Factory interface {
	// Status 返回人类可读的状态描述
	Status() string
	// Update 推进内部状态并返回当前 FactoryState
	Update() (types.FactoryState, error)
	// Order 把任务交给工厂执行，返回错误时任务未被接受
	Order(job *types.Job) error
	// Stop 释放设备资源
	Stop() error
}

// Option 调整门面的可选参数
type Option func(*settings)

type settings struct {
	now func() time.Time
}

// WithClock 替换时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func applyOptions(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
