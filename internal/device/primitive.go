package device

import (
	"fmt"
)

// Primitive 是可寻址原始量的最小接口，子设备模块由它组合而成
type Primitive interface {
	// Address 返回声明时的 1 基线地址
	Address() int
	Read() (int, error)
	Write(v int) error
}

// wireAddr 把厂商文档中的 1 基线地址转换为线上的 0 基线地址
// 地址表是静态声明的，越界属于编程错误
func wireAddr(addr int) uint16 {
	if addr < 1 || addr > 0x10000 {
		panic(fmt.Sprintf("device: address %d outside 1..65536", addr))
	}
	return uint16(addr - 1)
}

// Bit 是绑定到连接上的一个线圈
// value 只是最近一次观察到的值，Read 总是重新从设备读取
type Bit struct {
	conn  *Conn
	addr  uint16
	value int
}

// NewBit 用 1 基线地址创建一个线圈
func NewBit(addr int, conn *Conn) *Bit {
	return &Bit{conn: conn, addr: wireAddr(addr)}
}

// Address 返回 1 基线地址
func (b *Bit) Address() int { return int(b.addr) + 1 }

// Value 返回缓存值，不访问设备
func (b *Bit) Value() int { return b.value }

// Read 从设备读取当前值 (0 或 1)
func (b *Bit) Read() (int, error) {
	err := b.conn.Exclusive(b.ReadIn)
	return b.value, err
}

// ReadIn 在已持有的会话中读取
func (b *Bit) ReadIn(s Session) error {
	on, err := s.ReadBit(b.addr)
	if err != nil {
		return err
	}
	b.value = 0
	if on {
		b.value = 1
	}
	return nil
}

// IsSet 读取并返回线圈是否置位
func (b *Bit) IsSet() (bool, error) {
	v, err := b.Read()
	return v == 1, err
}

// Set 写 1
func (b *Bit) Set() error { return b.Write(1) }

// Clear 写 0
func (b *Bit) Clear() error { return b.Write(0) }

// Write 写入任意值，不做范围校验：非 0 即置位
// 缓存中保留调用方给出的原值
func (b *Bit) Write(v int) error {
	return b.conn.Exclusive(func(s Session) error {
		if err := s.WriteBit(b.addr, v != 0); err != nil {
			return err
		}
		b.value = v
		return nil
	})
}

// Trigger 发出一次脉冲：置位后立即清零，整个过程持有连接锁
// 只有 set->clear 的跳变会触发动作，不会读回确认
func (b *Bit) Trigger() error {
	return b.conn.Exclusive(b.TriggerIn)
}

// TriggerIn 在已持有的会话中发出脉冲，供需要先写参数寄存器的多步命令使用
func (b *Bit) TriggerIn(s Session) error {
	if err := s.WriteBit(b.addr, true); err != nil {
		return err
	}
	b.value = 1
	if err := s.WriteBit(b.addr, false); err != nil {
		return fmt.Errorf("pulse left bit %d set: %w", b.Address(), err)
	}
	b.value = 0
	return nil
}

// Register 是绑定到连接上的一个保持寄存器
type Register struct {
	conn  *Conn
	addr  uint16
	value int
}

// NewRegister 用 1 基线地址创建一个寄存器
func NewRegister(addr int, conn *Conn) *Register {
	return &Register{conn: conn, addr: wireAddr(addr)}
}

// Address 返回 1 基线地址
func (r *Register) Address() int { return int(r.addr) + 1 }

// Value 返回缓存值，不访问设备
func (r *Register) Value() int { return r.value }

// Read 从设备读取当前值
func (r *Register) Read() (int, error) {
	err := r.conn.Exclusive(func(s Session) error {
		v, err := s.ReadRegister(r.addr)
		if err != nil {
			return err
		}
		r.value = int(v)
		return nil
	})
	return r.value, err
}

// Write 写入寄存器
func (r *Register) Write(v int) error {
	return r.conn.Exclusive(func(s Session) error { return r.WriteIn(s, v) })
}

// WriteIn 在已持有的会话中写入
func (r *Register) WriteIn(s Session, v int) error {
	if v < 0 || v > 0xFFFF {
		return fmt.Errorf("register %d: %w: %d", r.Address(), ErrValueRange, v)
	}
	if err := s.WriteRegister(r.addr, uint16(v)); err != nil {
		return err
	}
	r.value = v
	return nil
}
