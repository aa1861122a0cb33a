package station

import (
	"factory-cell-controller/internal/device"
	"factory-cell-controller/internal/types"
)

// 信号灯地址表（1 基线）
const (
	sscGreen  = 60
	sscYellow = 61
	sscRed    = 62
)

// Signal 三色信号灯，只写不读，不做回读校验
type Signal struct {
	green  *device.Bit
	yellow *device.Bit
	red    *device.Bit
}

func NewSignal(conn *device.Conn) *Signal {
	return &Signal{
		green:  device.NewBit(sscGreen, conn),
		yellow: device.NewBit(sscYellow, conn),
		red:    device.NewBit(sscRed, conn),
	}
}

func (s *Signal) GetID() types.StationID { return types.StationSignal }

// Set 依次写入绿、黄、红三个通道
func (s *Signal) Set(g, y, r bool) error {
	for _, ch := range []struct {
		bit *device.Bit
		on  bool
	}{{s.green, g}, {s.yellow, y}, {s.red, r}} {
		var err error
		if ch.on {
			err = ch.bit.Set()
		} else {
			err = ch.bit.Clear()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ClearAll 熄灭所有灯
func (s *Signal) ClearAll() error {
	return s.Set(false, false, false)
}

// Indicate 按工厂状态点灯：ready 绿，processing 黄，fault 红
func (s *Signal) Indicate(state types.FactoryState) error {
	switch state {
	case types.StateReady:
		return s.Set(true, false, false)
	case types.StateProcessing:
		return s.Set(false, true, false)
	case types.StateFault:
		return s.Set(false, false, true)
	}
	return s.ClearAll()
}
