// Package devicetest 提供内存中的现场控制器，用于测试
package devicetest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// ErrNotConnected 表示在未连接时收到了操作
var ErrNotConnected = errors.New("devicetest: not connected")

// Op 是一次被记录的原始操作，地址为 0 基线
type Op struct {
	Kind  string // read_coil, write_coil, read_register, write_register
	Addr  uint16
	Value uint16 // 线圈写入时为 1/0
}

func (o Op) String() string {
	return fmt.Sprintf("%s(%d)=%d", o.Kind, o.Addr, o.Value)
}

// Transport 是一个记录所有操作的内存 PLC
type Transport struct {
	mu        sync.Mutex
	coils     map[uint16]bool
	registers map[uint16]uint16
	ops       []Op
	connected bool

	ConnectErr error // 非 nil 时 Connect 失败
	OpErr      error // 非 nil 时所有读写失败

	Connects int
	Closes   int

	// OnWrite 在每次写入后调用（不持有锁），用于模拟设备对命令的反应
	OnWrite func(t *Transport, op Op)
}

// New 创建一个空的内存 PLC
func New() *Transport {
	return &Transport{
		coils:     make(map[uint16]bool),
		registers: make(map[uint16]uint16),
	}
}

func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.Connects++
	t.connected = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closes++
	t.connected = false
	return nil
}

func (t *Transport) check() error {
	if !t.connected {
		return ErrNotConnected
	}
	return t.OpErr
}

func (t *Transport) ReadCoils(address, quantity uint16) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(); err != nil {
		return nil, err
	}
	out := make([]byte, (quantity+7)/8)
	for i := uint16(0); i < quantity; i++ {
		if t.coils[address+i] {
			out[i/8] |= 1 << (i % 8)
		}
	}
	t.ops = append(t.ops, Op{Kind: "read_coil", Addr: address})
	return out, nil
}

func (t *Transport) WriteSingleCoil(address, value uint16) ([]byte, error) {
	t.mu.Lock()
	if err := t.check(); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	if value != 0xFF00 && value != 0x0000 {
		t.mu.Unlock()
		return nil, fmt.Errorf("devicetest: illegal coil value %#04x", value)
	}
	on := value == 0xFF00
	t.coils[address] = on
	op := Op{Kind: "write_coil", Addr: address}
	if on {
		op.Value = 1
	}
	t.ops = append(t.ops, op)
	hook := t.OnWrite
	t.mu.Unlock()

	if hook != nil {
		hook(t, op)
	}
	return []byte{byte(address >> 8), byte(address), byte(value >> 8), byte(value)}, nil
}

func (t *Transport) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(); err != nil {
		return nil, err
	}
	out := make([]byte, 2*quantity)
	for i := uint16(0); i < quantity; i++ {
		binary.BigEndian.PutUint16(out[2*i:], t.registers[address+i])
	}
	t.ops = append(t.ops, Op{Kind: "read_register", Addr: address})
	return out, nil
}

func (t *Transport) WriteSingleRegister(address, value uint16) ([]byte, error) {
	t.mu.Lock()
	if err := t.check(); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	t.registers[address] = value
	op := Op{Kind: "write_register", Addr: address, Value: value}
	t.ops = append(t.ops, op)
	hook := t.OnWrite
	t.mu.Unlock()

	if hook != nil {
		hook(t, op)
	}
	return []byte{byte(address >> 8), byte(address), byte(value >> 8), byte(value)}, nil
}

// SetCoil 直接修改线圈，模拟设备侧的状态变化（0 基线地址，不记录操作）
func (t *Transport) SetCoil(addr uint16, on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.coils[addr] = on
}

// Coil 返回线圈当前值（0 基线地址）
func (t *Transport) Coil(addr uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.coils[addr]
}

// SetRegister 直接修改寄存器（0 基线地址，不记录操作）
func (t *Transport) SetRegister(addr, value uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registers[addr] = value
}

// Register 返回寄存器当前值（0 基线地址）
func (t *Transport) Register(addr uint16) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.registers[addr]
}

// Ops 返回已记录操作的副本
func (t *Transport) Ops() []Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Op(nil), t.ops...)
}

// Writes 只返回写操作
func (t *Transport) Writes() []Op {
	var out []Op
	for _, op := range t.Ops() {
		if op.Kind == "write_coil" || op.Kind == "write_register" {
			out = append(out, op)
		}
	}
	return out
}

// ResetOps 清空操作记录
func (t *Transport) ResetOps() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops = nil
}

// Fail 让后续读写返回 err，传 nil 恢复
func (t *Transport) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.OpErr = err
}

// FailConnect 让后续 Connect 返回 err，传 nil 恢复
func (t *Transport) FailConnect(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ConnectErr = err
}
