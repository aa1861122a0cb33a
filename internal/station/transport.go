package station

import (
	"log/slog"

	"factory-cell-controller/internal/device"
	"factory-cell-controller/internal/types"
)

// 多工序站地址表（1 基线）
const (
	mpoReady = 50
	mpoFlag1 = 51
	mpoFlag2 = 52
	mpoTask1 = 53
	mpoTask2 = 54
)

// Transport 多工序站：把坯料从仓库搬运并加工
type Transport struct {
	ready  *device.Bit
	flag1  *device.Bit
	flag2  *device.Bit
	task1  *device.Bit
	task2  *device.Bit
	logger *slog.Logger
}

func NewTransport(conn *device.Conn, logger *slog.Logger) *Transport {
	return &Transport{
		ready:  device.NewBit(mpoReady, conn),
		flag1:  device.NewBit(mpoFlag1, conn),
		flag2:  device.NewBit(mpoFlag2, conn),
		task1:  device.NewBit(mpoTask1, conn),
		task2:  device.NewBit(mpoTask2, conn),
		logger: logger.With("station_id", types.StationTransport),
	}
}

func (t *Transport) GetID() types.StationID { return types.StationTransport }

func (t *Transport) IsReady() (bool, error) { return t.ready.IsSet() }

// Flags 读取两个状态标志位
func (t *Transport) Flags() (flag1, flag2 bool, err error) {
	if flag1, err = t.flag1.IsSet(); err != nil {
		return false, false, err
	}
	flag2, err = t.flag2.IsSet()
	return flag1, flag2, err
}

// StartTask 发出任务 1 脉冲
func (t *Transport) StartTask() error {
	if err := t.task1.Trigger(); err != nil {
		return err
	}
	t.logger.Debug("已下发任务 1")
	return nil
}

// StartTask2 发出任务 2 脉冲
func (t *Transport) StartTask2() error {
	if err := t.task2.Trigger(); err != nil {
		return err
	}
	t.logger.Debug("已下发任务 2")
	return nil
}
