package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"factory-cell-controller/internal/metrics"

	"github.com/goburrow/modbus"
)

const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// Session 是持有连接锁期间可用的原始操作
// 地址为 0 基线的线上地址。只能在 Conn.Exclusive 的回调内使用
type Session interface {
	ReadBit(addr uint16) (bool, error)
	WriteBit(addr uint16, on bool) error
	ReadRegister(addr uint16) (uint16, error)
	WriteRegister(addr, value uint16) error
}

// Conn 拥有到现场控制器的会话
// 每次操作前按需（重新）打开连接；同一时刻最多只有一个原始操作在进行
type Conn struct {
	transport Transport
	addr      string
	logger    *slog.Logger

	mu   sync.Mutex // 串行化所有原始操作，保证脉冲等多步命令不被打断
	open bool
}

// NewConn 创建连接对象，此时不建立连接
func NewConn(t Transport, addr string, logger *slog.Logger) *Conn {
	return &Conn{
		transport: t,
		addr:      addr,
		logger:    logger.With("component", "device", "plc", addr),
	}
}

// EnsureOpen 确保连接已打开，失败时返回 *ConnectionError
func (c *Conn) EnsureOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureOpen()
}

func (c *Conn) ensureOpen() error {
	if c.open {
		return nil
	}
	if err := c.transport.Connect(); err != nil {
		metrics.DeviceErrorsTotal.WithLabelValues("connect").Inc()
		c.logger.Error("无法连接 PLC 控制器", "error", err)
		return &ConnectionError{Addr: c.addr, Err: err}
	}
	c.open = true
	c.logger.Info("已连接 PLC 控制器")
	return nil
}

// Exclusive 在持有连接锁的情况下执行 fn
// fn 内的多个原始操作之间不会插入其他调用方的操作
func (c *Conn) Exclusive(fn func(s Session) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureOpen(); err != nil {
		return err
	}
	return fn(session{c})
}

// ReadBit 读取一个线圈
func (c *Conn) ReadBit(addr uint16) (bool, error) {
	var on bool
	err := c.Exclusive(func(s Session) error {
		var err error
		on, err = s.ReadBit(addr)
		return err
	})
	return on, err
}

// WriteBit 写入一个线圈
func (c *Conn) WriteBit(addr uint16, on bool) error {
	return c.Exclusive(func(s Session) error { return s.WriteBit(addr, on) })
}

// ReadRegister 读取一个保持寄存器
func (c *Conn) ReadRegister(addr uint16) (uint16, error) {
	var v uint16
	err := c.Exclusive(func(s Session) error {
		var err error
		v, err = s.ReadRegister(addr)
		return err
	})
	return v, err
}

// WriteRegister 写入一个保持寄存器
func (c *Conn) WriteRegister(addr, value uint16) error {
	return c.Exclusive(func(s Session) error { return s.WriteRegister(addr, value) })
}

// Close 关闭底层会话
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	c.open = false
	return c.transport.Close()
}

// fail 记录一次读写失败
// 非 Modbus 异常响应的错误视为会话已断开，下一次操作会重新连接
func (c *Conn) fail(op string, addr uint16, err error) error {
	metrics.DeviceErrorsTotal.WithLabelValues("io").Inc()
	var mbErr *modbus.ModbusError
	if !errors.As(err, &mbErr) {
		c.open = false
		_ = c.transport.Close()
		c.logger.Warn("PLC 会话断开，下次操作时重连", "op", op, "addr", addr, "error", err)
	}
	return fmt.Errorf("%s %d: %w", op, addr, err)
}

// session 在 Conn.mu 已加锁的前提下直接访问 transport
type session struct {
	c *Conn
}

func observe(op string, start time.Time) {
	metrics.DeviceOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s session) ReadBit(addr uint16) (bool, error) {
	start := time.Now()
	res, err := s.c.transport.ReadCoils(addr, 1)
	observe("read_bit", start)
	if err != nil {
		return false, s.c.fail("read bit", addr, err)
	}
	if len(res) < 1 {
		return false, fmt.Errorf("read bit %d: empty response", addr)
	}
	return res[0]&0x01 == 0x01, nil
}

func (s session) WriteBit(addr uint16, on bool) error {
	value := coilOff
	if on {
		value = coilOn
	}
	start := time.Now()
	_, err := s.c.transport.WriteSingleCoil(addr, value)
	observe("write_bit", start)
	if err != nil {
		return s.c.fail("write bit", addr, err)
	}
	return nil
}

func (s session) ReadRegister(addr uint16) (uint16, error) {
	start := time.Now()
	res, err := s.c.transport.ReadHoldingRegisters(addr, 1)
	observe("read_register", start)
	if err != nil {
		return 0, s.c.fail("read register", addr, err)
	}
	if len(res) < 2 {
		return 0, fmt.Errorf("read register %d: short response (%d bytes)", addr, len(res))
	}
	return binary.BigEndian.Uint16(res), nil
}

func (s session) WriteRegister(addr, value uint16) error {
	start := time.Now()
	_, err := s.c.transport.WriteSingleRegister(addr, value)
	observe("write_register", start)
	if err != nil {
		return s.c.fail("write register", addr, err)
	}
	return nil
}
