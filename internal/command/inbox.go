package command

import (
	"errors"
)

// ErrInboxFull 表示收件箱已满，命令被丢弃
var ErrInboxFull = errors.New("command inbox full")

// DefaultInboxSize 是收件箱默认容量
const DefaultInboxSize = 256

// Inbox 把来自其他 goroutine（MQTT 回调、HTTP 处理器）的命令
// 交给控制循环，所有状态修改都在控制循环中进行
type Inbox struct {
	ch chan Command
}

// NewInbox 创建收件箱
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{ch: make(chan Command, size)}
}

// Submit 非阻塞地投递命令
func (i *Inbox) Submit(cmd Command) error {
	select {
	case i.ch <- cmd:
		return nil
	default:
		return ErrInboxFull
	}
}

// Drain 取出调用时已在收件箱中的命令并依次交给 fn，不会阻塞
// 处理期间新到的命令留到下一次
func (i *Inbox) Drain(fn func(Command)) int {
	pending := len(i.ch)
	for n := 0; n < pending; n++ {
		select {
		case cmd := <-i.ch:
			fn(cmd)
		default:
			return n
		}
	}
	return pending
}

// Len 返回待处理命令数
func (i *Inbox) Len() int {
	return len(i.ch)
}
