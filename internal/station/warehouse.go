package station

import (
	"log/slog"

	"factory-cell-controller/internal/device"
	"factory-cell-controller/internal/types"
)

// 高架仓库地址表（1 基线，来自控制器文档）
const (
	hbwTask1     = 101
	hbwSlotX     = 105
	hbwSlotY     = 106
	hbwReady     = 130
	hbwFault     = 180
	hbwFaultCode = 181
)

// Warehouse 高架仓库：按货位坐标取出坯料
type Warehouse struct {
	conn      *device.Conn
	task1     *device.Bit
	slotX     *device.Register
	slotY     *device.Register
	ready     *device.Bit
	fault     *device.Bit
	faultCode *device.Register
	logger    *slog.Logger
}

// NewWarehouse 在连接上创建仓库模块
func NewWarehouse(conn *device.Conn, logger *slog.Logger) *Warehouse {
	return &Warehouse{
		conn:      conn,
		task1:     device.NewBit(hbwTask1, conn),
		slotX:     device.NewRegister(hbwSlotX, conn),
		slotY:     device.NewRegister(hbwSlotY, conn),
		ready:     device.NewBit(hbwReady, conn),
		fault:     device.NewBit(hbwFault, conn),
		faultCode: device.NewRegister(hbwFaultCode, conn),
		logger:    logger.With("station_id", types.StationWarehouse),
	}
}

func (w *Warehouse) GetID() types.StationID { return types.StationWarehouse }

// IsReady 读取就绪位
func (w *Warehouse) IsReady() (bool, error) { return w.ready.IsSet() }

// IsFault 读取故障位
func (w *Warehouse) IsFault() (bool, error) { return w.fault.IsSet() }

// FaultCode 读取故障码寄存器
func (w *Warehouse) FaultCode() (int, error) { return w.faultCode.Read() }

// StartTask 写入货位坐标后发出任务 1 脉冲（相当于按下 HMI 按钮）
// 参数写入与脉冲在同一个连接会话内完成。不读回确认，结果需轮询 IsReady
func (w *Warehouse) StartTask(x, y int) error {
	err := w.conn.Exclusive(func(s device.Session) error {
		if err := w.slotX.WriteIn(s, x); err != nil {
			return err
		}
		if err := w.slotY.WriteIn(s, y); err != nil {
			return err
		}
		return w.task1.TriggerIn(s)
	})
	if err != nil {
		return err
	}
	w.logger.Debug("已下发出库任务", "x", x, "y", y)
	return nil
}
