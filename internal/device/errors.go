package device

import (
	"errors"
	"fmt"
)

// ErrConnection 用于 errors.Is 判断 PLC 连接不可用
var ErrConnection = errors.New("plc connection unavailable")

// ErrValueRange 表示寄存器值超出 16 位无符号范围
var ErrValueRange = errors.New("register value out of range")

// ConnectionError 表示无法（重新）打开到现场控制器的连接
// 原始操作不会在这种情况下静默返回默认值，而是把该错误交给调用方
type ConnectionError struct {
	Addr string // 控制器地址 host:port
	Err  error  // 底层原因
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("unable to connect to PLC controller %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrConnection) 对所有 ConnectionError 成立
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }
