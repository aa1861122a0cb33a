package device

import (
	"time"

	"github.com/goburrow/modbus"
)

// Transport 是到现场控制器的底层会话
// 地址均为 0 基线的线上地址；方法签名与 modbus.Client 一致
type Transport interface {
	Connect() error
	Close() error
	ReadCoils(address, quantity uint16) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
}

// modbusTransport 基于 Modbus/TCP 实现 Transport
type modbusTransport struct {
	handler *modbus.TCPClientHandler
	modbus.Client
}

// NewModbusTransport 创建一个 Modbus/TCP 会话，此时并不建立连接
func NewModbusTransport(addr string, unitID byte, timeout time.Duration) Transport {
	handler := modbus.NewTCPClientHandler(addr)
	handler.SlaveId = unitID
	handler.Timeout = timeout
	return &modbusTransport{handler: handler, Client: modbus.NewClient(handler)}
}

func (t *modbusTransport) Connect() error { return t.handler.Connect() }

func (t *modbusTransport) Close() error { return t.handler.Close() }
