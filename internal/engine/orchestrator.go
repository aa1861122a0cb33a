package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"factory-cell-controller/internal/command"
	"factory-cell-controller/internal/event"
	"factory-cell-controller/internal/factory"
	"factory-cell-controller/internal/fsm"
	"factory-cell-controller/internal/inventory"
	"factory-cell-controller/internal/metrics"
	"factory-cell-controller/internal/types"
)

// Orchestrator 是顶层状态机
// 持有当前任务，轮询工厂门面，决定何时启动下一个任务，并发布通知
// 所有方法都只应在控制循环的 goroutine 中调用
type Orchestrator struct {
	queue     *JobQueue
	inventory *inventory.Inventory
	admission Stock
	factory   factory.Factory
	bus       *event.Bus
	fsm       *fsm.FSM
	logger    *slog.Logger

	current   *types.Job         // 当前任务，已从队列中移除
	lastState types.FactoryState // 上一个 tick 的工厂状态，空字符串表示尚无
}

// NewOrchestrator 创建编排器；rule 为 nil 时只按库存准入
func NewOrchestrator(queue *JobQueue, inv *inventory.Inventory, f factory.Factory, bus *event.Bus, rule *Rule, logger *slog.Logger) (*Orchestrator, error) {
	switch {
	case queue == nil:
		return nil, errors.New("queue not specified")
	case inv == nil:
		return nil, errors.New("inventory not specified")
	case f == nil:
		return nil, errors.New("factory not specified")
	case bus == nil:
		return nil, errors.New("event bus not specified")
	}
	logger = logger.With("component", "orchestrator")
	return &Orchestrator{
		queue:     queue,
		inventory: inv,
		admission: Gate(inv, rule, logger),
		factory:   f,
		bus:       bus,
		fsm:       fsm.NewFSM("cell", logger),
		logger:    logger,
	}, nil
}

// CurrentJob 返回当前任务，没有时为 nil
func (o *Orchestrator) CurrentJob() *types.Job { return o.current }

// State 返回编排器会话状态
func (o *Orchestrator) State() fsm.State { return o.fsm.State() }

// Apply 执行一条外部命令
func (o *Orchestrator) Apply(cmd command.Command) {
	logger := o.logger.With("trace_id", cmd.TraceID, "command", cmd.Kind)
	switch cmd.Kind {
	case command.KindAddJob:
		_ = o.addJob(cmd.Job, logger)
	case command.KindCancelJob:
		o.cancelJob(cmd.JobID, logger)
	case command.KindCancelOrder:
		o.cancelOrder(cmd.OrderID, logger)
	case command.KindFactory:
		o.factoryCommand(cmd.Name, cmd.Args, logger)
	case command.KindInvalid:
		logger.Warn("丢弃无法解析的命令", "error", cmd.Err)
		o.notice(event.OutcomeRejected, types.NewErrorNotice(fmt.Sprintf("Invalid command: %v", cmd.Err)))
	default:
		logger.Warn("未知命令类型")
	}
}

// AddJob 校验任务并加入队列
func (o *Orchestrator) AddJob(job *types.Job) error {
	return o.addJob(job, o.logger)
}

func (o *Orchestrator) addJob(job *types.Job, logger *slog.Logger) error {
	if err := o.queue.Add(job); err != nil {
		logger.Error("无效的新任务", "error", err)
		msg := fmt.Sprintf("Invalid job: %v", err)
		if errors.Is(err, ErrDuplicateJob) {
			msg = fmt.Sprintf("Job id %d already queued", job.JobID)
		}
		o.notice(event.OutcomeRejected, types.NewErrorNotice(msg))
		return err
	}
	logger.Info("任务已加入队列", "job_id", job.JobID, "order_id", job.OrderID,
		"color", job.Color, "cook_time", job.CookTime, "sliced", job.Sliced)
	o.notice(event.OutcomeAdded, types.NewJobStatusNotice(job.JobID, "Added to queue"))
	return nil
}

// CancelJob 按任务 ID 取消，返回被删除的 ID
func (o *Orchestrator) CancelJob(jobID int) []int {
	return o.cancelJob(jobID, o.logger)
}

func (o *Orchestrator) cancelJob(jobID int, logger *slog.Logger) []int {
	if jobID < 0 {
		logger.Error("无效的取消任务 ID", "job_id", jobID)
		o.notice(event.OutcomeRejected, types.NewErrorNotice("Invalid id"))
		return nil
	}
	canceled := o.queue.CancelByID(jobID)
	if len(canceled) == 0 {
		logger.Debug("没有找到匹配的任务", "job_id", jobID)
		o.notice(event.OutcomeRejected, types.NewErrorNotice(fmt.Sprintf("Job id %d not found", jobID)))
		return canceled
	}
	logger.Info("已取消任务", "job_id", jobID)
	o.notice(event.OutcomeCanceled, types.NewJobStatusNotice(jobID, "Canceled"))
	return canceled
}

// CancelOrder 取消订单下的所有任务，返回被删除的 ID
func (o *Orchestrator) CancelOrder(orderID int) []int {
	return o.cancelOrder(orderID, o.logger)
}

func (o *Orchestrator) cancelOrder(orderID int, logger *slog.Logger) []int {
	if orderID < 0 {
		logger.Error("无效的取消订单 ID", "order_id", orderID)
		o.notice(event.OutcomeRejected, types.NewErrorNotice("Invalid id"))
		return nil
	}
	canceled := o.queue.CancelByOrder(orderID)
	if len(canceled) == 0 {
		logger.Debug("没有找到匹配订单的任务", "order_id", orderID)
		o.notice(event.OutcomeRejected, types.NewErrorNotice(fmt.Sprintf("Order id %d not found", orderID)))
		return canceled
	}
	for _, id := range canceled {
		logger.Info("已取消订单中的任务", "job_id", id, "order_id", orderID)
		o.notice(event.OutcomeCanceled, types.NewJobStatusNotice(id, "Canceled"))
	}
	return canceled
}

// FactoryCommand 执行具名工厂命令，目前只识别 reset_inventory
// 未识别的命令不改变任何状态，只记录告警
func (o *Orchestrator) FactoryCommand(name string, args map[string]any) {
	o.factoryCommand(name, args, o.logger)
}

func (o *Orchestrator) factoryCommand(name string, args map[string]any, logger *slog.Logger) {
	logger.Debug("工厂命令", "name", name, "args", args)
	switch name {
	case command.ResetInventory:
		o.inventory.Preset()
		logger.Info("库存已重置")
		o.SendInventory()
	default:
		logger.Warn("忽略未识别的工厂命令", "name", name)
	}
}

// ResetInventory 把库存恢复为预设分布
func (o *Orchestrator) ResetInventory() {
	o.inventory.Preset()
}

// FactoryUpdate 推进一个 tick：轮询工厂并按规则转移状态
// 门面返回的错误在这里记录并返回，状态保持不变，下一个 tick 重试
func (o *Orchestrator) FactoryUpdate() error {
	state, err := o.factory.Update()
	if err != nil {
		metrics.FactoryErrorsTotal.WithLabelValues("update").Inc()
		o.logger.Error("工厂状态更新失败，下个 tick 重试", "error", err)
		return err
	}
	o.logger.Debug("工厂状态", "state", state, "cell_state", o.fsm.State())
	o.observeState(state)

	switch {
	case state == types.StateReady && o.finished():
		o.complete()
	case state == types.StateReady && o.queue.HasJobs():
		err = o.startNext()
	case state == types.StateProcessing:
		if o.fsm.Can(fsm.EventProcess) {
			_ = o.fsm.Fire(fsm.EventProcess)
		}
		o.logger.Debug("工厂处理中...")
	case state == types.StateFault && o.lastState != types.StateFault:
		o.logger.Warn("工厂报告故障", "status", o.factory.Status())
	}

	o.lastState = state
	return err
}

func (o *Orchestrator) observeState(state types.FactoryState) {
	for _, s := range []types.FactoryState{types.StateReady, types.StateProcessing, types.StateFault} {
		v := 0.0
		if s == state {
			v = 1
		}
		metrics.FactoryState.WithLabelValues(string(s)).Set(v)
	}
}

// finished 判断本次 ready 是否意味着一个任务结束
// processing -> ready 总是完成边沿；故障期间任务可能已下线，所以当前任务仍在时
// fault -> ready 或 RUNNING 中出现 ready 也视为完成
func (o *Orchestrator) finished() bool {
	if o.lastState == types.StateProcessing {
		return true
	}
	if o.current == nil {
		return false
	}
	return o.lastState == types.StateFault || o.fsm.State() == fsm.StateRunning
}

// complete 处理任务结束的跳变
func (o *Orchestrator) complete() {
	if o.current == nil {
		o.logger.Warn("工厂完成了一个未知任务")
		o.fsm.Reset()
		return
	}
	job := o.current
	if o.fsm.Can(fsm.EventFinish) {
		_ = o.fsm.Fire(fsm.EventFinish)
		_ = o.fsm.Fire(fsm.EventClear)
	} else {
		o.fsm.Reset()
	}
	job.Status = types.JobCompleted
	o.current = nil
	o.logger.Info("任务已完成", "job_id", job.JobID, "order_id", job.OrderID)
	o.notice(event.OutcomeCompleted, types.NewJobStatusNotice(job.JobID, "Completed"))
	o.SendStatus()
}

// startNext 选出下一个库存可满足的任务并交给工厂
// 只有工厂接受后才从队列移除并消耗库存，失败时下一个 tick 重试
func (o *Orchestrator) startNext() error {
	if o.current != nil {
		o.logger.Debug("等待工厂接收当前任务", "job_id", o.current.JobID)
		return nil
	}
	job := o.queue.NextAvailable(o.admission)
	if job == nil {
		o.logger.Debug("无法用现有库存匹配等待中的任务", "queued", o.queue.Len())
		return nil
	}

	logger := o.logger.With("job_id", job.JobID, "order_id", job.OrderID)
	if err := o.factory.Order(job); err != nil {
		metrics.FactoryErrorsTotal.WithLabelValues("order").Inc()
		if errors.Is(err, factory.ErrUnknownColor) {
			// 重试也无法下发，直接移出队列
			o.queue.Remove(job.JobID)
			logger.Error("任务颜色没有配置货位，已拒绝", "color", job.Color, "error", err)
			o.notice(event.OutcomeRejected, types.NewErrorNotice(fmt.Sprintf("Job id %d rejected: %v", job.JobID, err)))
			return nil
		}
		logger.Error("下发任务失败，下个 tick 重试", "error", err)
		return err
	}

	o.queue.Remove(job.JobID)
	if err := o.inventory.Take(job.Color); err != nil {
		logger.Warn("库存扣减失败", "error", err)
	}
	job.Status = types.JobRunning
	o.current = job
	_ = o.fsm.Fire(fsm.EventDispatch)

	logger.Info("任务已开始", "color", job.Color)
	o.notice(event.OutcomeStarted, types.NewJobStatusNotice(job.JobID, "Started"))
	o.SendStatus()
	o.SendInventory()
	return nil
}

// SendStatus 发布工厂状态
func (o *Orchestrator) SendStatus() {
	report := types.StatusReport{
		FactoryStatus: o.factory.Status(),
		CurrentJob:    "None",
		JobQueueLen:   strconv.Itoa(o.queue.Len()),
		CellState:     string(o.fsm.State()),
	}
	if o.current != nil {
		report.CurrentJob = strconv.Itoa(o.current.JobID)
	}
	o.bus.Publish(event.Event{Type: event.Status, Status: report, QueueLen: o.queue.Len()})
}

// SendInventory 发布库存
func (o *Orchestrator) SendInventory() {
	inv := o.inventory.Snapshot()
	o.logger.Info("库存", "inventory", inv)
	o.bus.Publish(event.Event{
		Type:      event.Inventory,
		Inventory: types.InventoryReport{Inventory: inv},
		QueueLen:  o.queue.Len(),
	})
}

func (o *Orchestrator) notice(outcome string, n types.JobNotice) {
	o.bus.Publish(event.Event{Type: event.JobNotice, Notice: n, Outcome: outcome, QueueLen: o.queue.Len()})
}

// Stop 停止工厂门面
func (o *Orchestrator) Stop() error {
	return o.factory.Stop()
}
