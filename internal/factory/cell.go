package factory

import (
	"fmt"
	"log/slog"
	"time"

	"factory-cell-controller/internal/device"
	"factory-cell-controller/internal/station"
	"factory-cell-controller/internal/types"
)

// phase 是真实工厂内部的任务阶段
type phase int

const (
	phaseIdle        phase = iota // 没有任务
	phaseRetrieving               // 仓库正在出库
	phaseTransporting             // 多工序站正在搬运/加工
)

func (p phase) String() string {
	switch p {
	case phaseRetrieving:
		return "retrieving"
	case phaseTransporting:
		return "transporting"
	}
	return "idle"
}

// DefaultAckTimeout 是下发脉冲后等待就绪位下降的最长时间
// 超过后即使没有观察到忙碌也视为该阶段已完成
const DefaultAckTimeout = 5 * time.Second

// Cell 是通过 Modbus 驱动的真实工厂
// 一个任务依次经过：仓库出库 -> 多工序站加工，信号灯反映当前状态
type Cell struct {
	conn   *device.Conn
	hbw    *station.Warehouse
	mpo    *station.Transport
	ssc    *station.Signal
	slots  map[types.Color]types.WarehouseSlot
	now    func() time.Time
	logger *slog.Logger

	AckTimeout time.Duration

	state     types.FactoryState
	light     types.FactoryState // 最近一次写入信号灯的状态
	phase     phase
	job       *types.Job
	pulsedAt  time.Time
	sawBusy   bool
	faultCode int
}

// NewCell 在连接上组装仓库、多工序站和信号灯
func NewCell(conn *device.Conn, slots map[types.Color]types.WarehouseSlot, logger *slog.Logger, opts ...Option) *Cell {
	s := applyOptions(opts)
	logger = logger.With("component", "factory", "mode", "modbus")
	return &Cell{
		conn:       conn,
		hbw:        station.NewWarehouse(conn, logger),
		mpo:        station.NewTransport(conn, logger),
		ssc:        station.NewSignal(conn),
		slots:      slots,
		now:        s.now,
		logger:     logger,
		AckTimeout: DefaultAckTimeout,
		state:      types.StateReady,
	}
}

func (c *Cell) Status() string {
	switch {
	case c.state == types.StateFault:
		return fmt.Sprintf("Fault (code %d)", c.faultCode)
	case c.phase == phaseRetrieving:
		return fmt.Sprintf("Retrieving job %d from warehouse", c.job.JobID)
	case c.phase == phaseTransporting:
		return fmt.Sprintf("Processing job %d", c.job.JobID)
	case c.state == types.StateProcessing:
		return "Waiting for stations"
	}
	return "Ready"
}

// Update 轮询设备并推进任务阶段
// 连接错误原样返回给调用方，由调用方在下一个 tick 重试
func (c *Cell) Update() (types.FactoryState, error) {
	fault, err := c.hbw.IsFault()
	if err != nil {
		return c.state, err
	}
	if fault {
		code, err := c.hbw.FaultCode()
		if err != nil {
			return c.state, err
		}
		if c.state != types.StateFault {
			c.logger.Error("仓库报告故障", "fault_code", code, "phase", c.phase)
		}
		c.faultCode = code
		c.state = types.StateFault
		return c.state, c.indicate()
	}

	ready, err := station.ReadyState(c.hbw, c.mpo)
	if err != nil {
		return c.state, err
	}

	switch c.phase {
	case phaseIdle:
		if ready[types.StationWarehouse] && ready[types.StationTransport] {
			c.state = types.StateReady
		} else {
			c.state = types.StateProcessing
		}
	case phaseRetrieving:
		if c.stepDone(ready[types.StationWarehouse]) {
			if err := c.mpo.StartTask(); err != nil {
				return c.state, err
			}
			c.advance(phaseTransporting)
		}
		c.state = types.StateProcessing
	case phaseTransporting:
		if c.stepDone(ready[types.StationTransport]) {
			c.logger.Info("任务下线", "job_id", c.job.JobID)
			c.job = nil
			c.advance(phaseIdle)
			c.state = types.StateReady
		} else {
			c.state = types.StateProcessing
		}
	}
	return c.state, c.indicate()
}

// stepDone 判断当前阶段的设备是否已完成：先忙碌再就绪，或超时仍就绪
func (c *Cell) stepDone(ready bool) bool {
	if !ready {
		c.sawBusy = true
		return false
	}
	if c.sawBusy {
		return true
	}
	if c.now().Sub(c.pulsedAt) >= c.AckTimeout {
		c.logger.Warn("未观察到设备忙碌，按超时视为完成", "phase", c.phase, "ack_timeout", c.AckTimeout)
		return true
	}
	return false
}

func (c *Cell) advance(p phase) {
	c.logger.Debug("阶段切换", "from", c.phase, "to", p)
	c.phase = p
	c.sawBusy = false
	c.pulsedAt = c.now()
}

// indicate 只在状态变化时写信号灯
func (c *Cell) indicate() error {
	if c.light == c.state {
		return nil
	}
	if err := c.ssc.Indicate(c.state); err != nil {
		return err
	}
	c.light = c.state
	return nil
}

// Order 写入货位并触发仓库出库
// 下发失败时不改变任何状态，调用方可以重试
func (c *Cell) Order(job *types.Job) error {
	if c.phase != phaseIdle {
		return fmt.Errorf("order job %d: %w", job.JobID, ErrBusy)
	}
	slot, ok := c.slots[job.Color]
	if !ok {
		return fmt.Errorf("order job %d: %w: %s", job.JobID, ErrUnknownColor, job.Color)
	}
	if err := c.hbw.StartTask(slot.X, slot.Y); err != nil {
		return fmt.Errorf("order job %d: %w", job.JobID, err)
	}
	c.job = job
	c.advance(phaseRetrieving)
	c.state = types.StateProcessing
	c.logger.Info("已下发任务", "job_id", job.JobID, "color", job.Color, "x", slot.X, "y", slot.Y)
	return nil
}

// Stop 熄灭信号灯并关闭连接
func (c *Cell) Stop() error {
	if err := c.ssc.ClearAll(); err != nil {
		c.logger.Warn("熄灭信号灯失败", "error", err)
	}
	return c.conn.Close()
}
