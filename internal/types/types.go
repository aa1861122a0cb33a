package types

import (
	"errors"
	"fmt"
	"time"
)

// Color 定义工件（坯料）颜色，也是库存的属性键
// 使用字符串类型，方便在日志、配置和消息中直接使用
type Color string

const (
	ColorWhite Color = "white" // 白色坯料
	ColorRed   Color = "red"   // 红色坯料
	ColorBlue  Color = "blue"  // 蓝色坯料
)

// Colors 返回所有已知颜色，顺序固定
func Colors() []Color {
	return []Color{ColorWhite, ColorRed, ColorBlue}
}

// Valid 判断颜色是否为已知颜色
func (c Color) Valid() bool {
	switch c {
	case ColorWhite, ColorRed, ColorBlue:
		return true
	}
	return false
}

// StationID 定义工站（子设备模块）ID
type StationID string

const (
	StationWarehouse StationID = "HBW" // 高架仓库：按坐标出库坯料
	StationTransport StationID = "MPO" // 多工序站：搬运/加工
	StationSignal    StationID = "SSC" // 信号灯：绿/黄/红三色指示
)

// WarehouseSlot 是高架仓库中的货位坐标
type WarehouseSlot struct {
	X int `mapstructure:"x" json:"x"`
	Y int `mapstructure:"y" json:"y"`
}

// JobStatus 定义任务状态
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobCanceled  JobStatus = "canceled"
)

// ErrInvalidJob 表示任务字段校验失败
var ErrInvalidJob = errors.New("invalid job")

// Job 表示一个制造任务
// 创建后除 Status 外不可修改
type Job struct {
	JobID    int       `json:"job_id"`    // 任务唯一标识，非负
	OrderID  int       `json:"order_id"`  // 所属订单，非负；订单只是共享此字段的任务分组
	Color    Color     `json:"color"`     // 需要的坯料颜色
	CookTime int       `json:"cook_time"` // 加工时长（秒）
	Sliced   bool      `json:"sliced"`    // 是否切片
	Status   JobStatus `json:"status,omitempty"`
}

// CookDuration 返回加工时长
func (j *Job) CookDuration() time.Duration {
	return time.Duration(j.CookTime) * time.Second
}

// Validate 对任务做基础字段校验
func (j *Job) Validate() error {
	if j == nil {
		return fmt.Errorf("%w: not a job", ErrInvalidJob)
	}
	if j.JobID < 0 {
		return fmt.Errorf("%w: job id %d is negative", ErrInvalidJob, j.JobID)
	}
	if j.OrderID < 0 {
		return fmt.Errorf("%w: order id %d is negative", ErrInvalidJob, j.OrderID)
	}
	if !j.Color.Valid() {
		return fmt.Errorf("%w: unknown color %q", ErrInvalidJob, j.Color)
	}
	if j.CookTime < 0 {
		return fmt.Errorf("%w: cook time %d is negative", ErrInvalidJob, j.CookTime)
	}
	return nil
}

func (j *Job) String() string {
	return fmt.Sprintf("job %d (order %d, %s, cook %ds, sliced=%t)", j.JobID, j.OrderID, j.Color, j.CookTime, j.Sliced)
}

// FactoryState 是工厂门面在每次 update 时报告的状态
type FactoryState string

const (
	StateReady      FactoryState = "ready"
	StateProcessing FactoryState = "processing"
	StateFault      FactoryState = "fault"
)

// 通知消息类型
const (
	NoticeJobStatus = "job_status"
	NoticeError     = "error"
)

// JobNotice 是任务生命周期通知 (Factory/Job_notice)
type JobNotice struct {
	MsgType string `json:"msg_type"`
	JobID   *int   `json:"job_id,omitempty"` // job_id 可以为 0，所以用指针区分"未设置"
	Message string `json:"message"`
}

// NewJobStatusNotice 创建一个带任务 ID 的状态通知
func NewJobStatusNotice(jobID int, message string) JobNotice {
	id := jobID
	return JobNotice{MsgType: NoticeJobStatus, JobID: &id, Message: message}
}

// NewErrorNotice 创建一个错误通知
func NewErrorNotice(message string) JobNotice {
	return JobNotice{MsgType: NoticeError, Message: message}
}

// StatusReport 是工厂状态广播 (Factory/Status)
// 字段均为字符串，保持与现有订阅方的兼容
type StatusReport struct {
	FactoryStatus string `json:"factory_status"`
	CurrentJob    string `json:"current_job"`
	JobQueueLen   string `json:"job_queue_len"`
	CellState     string `json:"cell_state,omitempty"`
}

// InventoryReport 是库存广播 (Factory/Inventory)
type InventoryReport struct {
	Inventory map[Color]int `json:"Inventory"`
}
