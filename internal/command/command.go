package command

import (
	"encoding/json"
	"errors"
	"fmt"

	"factory-cell-controller/internal/types"
	"factory-cell-controller/internal/util"
)

// 命令主题（消息总线输入）
const (
	TopicAddJob      = "Factory/Add_job"
	TopicCancelJob   = "Factory/Cancel_job"
	TopicCancelOrder = "Factory/Cancel_order"
	TopicCommand     = "Factory/Command"
)

// Topics 返回所有命令主题
func Topics() []string {
	return []string{TopicAddJob, TopicCancelJob, TopicCancelOrder, TopicCommand}
}

var (
	// ErrUnknownTopic 表示消息来自未知主题
	ErrUnknownTopic = errors.New("unknown command topic")
	// ErrMalformed 表示负载无法解析
	ErrMalformed = errors.New("malformed command")
)

// Kind 定义命令类型
type Kind string

const (
	KindAddJob      Kind = "add_job"
	KindCancelJob   Kind = "cancel_job"
	KindCancelOrder Kind = "cancel_order"
	KindFactory     Kind = "factory_command"
	KindInvalid     Kind = "invalid" // 解析失败，Err 中记录原因
)

// ResetInventory 是目前唯一识别的工厂命令
const ResetInventory = "reset_inventory"

// Command 是一条已解析的外部命令
type Command struct {
	Kind    Kind
	Job     *types.Job     // KindAddJob
	JobID   int            // KindCancelJob
	OrderID int            // KindCancelOrder
	Name    string         // KindFactory
	Args    map[string]any // KindFactory
	Err     error          // KindInvalid
	TraceID string
}

// AddJob 构造新增任务命令
func AddJob(job *types.Job) Command {
	return Command{Kind: KindAddJob, Job: job, TraceID: util.NewTraceID()}
}

// CancelJob 构造按任务 ID 取消的命令
func CancelJob(jobID int) Command {
	return Command{Kind: KindCancelJob, JobID: jobID, TraceID: util.NewTraceID()}
}

// CancelOrder 构造按订单 ID 取消的命令
func CancelOrder(orderID int) Command {
	return Command{Kind: KindCancelOrder, OrderID: orderID, TraceID: util.NewTraceID()}
}

// Factory 构造工厂命令
func Factory(name string, args map[string]any) Command {
	return Command{Kind: KindFactory, Name: name, Args: args, TraceID: util.NewTraceID()}
}

// Invalid 构造一条解析失败的命令，交给编排器发出错误通知
func Invalid(err error) Command {
	return Command{Kind: KindInvalid, Err: err, TraceID: util.NewTraceID()}
}

type addJobPayload struct {
	JobID    *int        `json:"job_id"`
	OrderID  *int        `json:"order_id"`
	Color    types.Color `json:"color"`
	CookTime int         `json:"cook_time"`
	Sliced   bool        `json:"sliced"`
}

type cancelJobPayload struct {
	JobID *int `json:"job_id"`
}

type cancelOrderPayload struct {
	OrderID *int `json:"order_id"`
}

// FactoryPayload 是 Factory/Command 的负载
type FactoryPayload struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args,omitempty"`
}

// Decode 按主题解析负载
// 解析失败返回的错误同时满足 errors.Is(err, ErrMalformed)
func Decode(topic string, payload []byte) (Command, error) {
	switch topic {
	case TopicAddJob:
		var p addJobPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Command{}, fmt.Errorf("%w: add job: %v", ErrMalformed, err)
		}
		if p.JobID == nil || p.OrderID == nil {
			return Command{}, fmt.Errorf("%w: add job: job_id and order_id are required", ErrMalformed)
		}
		return AddJob(&types.Job{
			JobID:    *p.JobID,
			OrderID:  *p.OrderID,
			Color:    p.Color,
			CookTime: p.CookTime,
			Sliced:   p.Sliced,
		}), nil
	case TopicCancelJob:
		var p cancelJobPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.JobID == nil {
			return Command{}, fmt.Errorf("%w: cancel job: missing or non-integer job_id", ErrMalformed)
		}
		return CancelJob(*p.JobID), nil
	case TopicCancelOrder:
		var p cancelOrderPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.OrderID == nil {
			return Command{}, fmt.Errorf("%w: cancel order: missing or non-integer order_id", ErrMalformed)
		}
		return CancelOrder(*p.OrderID), nil
	case TopicCommand:
		var p FactoryPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.Command == "" {
			return Command{}, fmt.Errorf("%w: factory command: missing command", ErrMalformed)
		}
		return Factory(p.Command, p.Args), nil
	}
	return Command{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
}
