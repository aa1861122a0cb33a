package fsm

import (
	"fmt"
	"log/slog"
	"sync"
)

// State 定义状态类型
type State string

// Event 定义事件类型
type Event string

// 编排器会话状态
const (
	StateIdle       State = "IDLE"       // 没有当前任务
	StateAwaiting   State = "AWAITING"   // 已下发任务，等待工厂进入 processing
	StateRunning    State = "RUNNING"    // 工厂正在处理当前任务
	StateCompleting State = "COMPLETING" // 检测到 processing -> ready，正在收尾
)

const (
	EventDispatch Event = "DISPATCH" // 任务已交给工厂
	EventProcess  Event = "PROCESS"  // 工厂报告 processing
	EventFinish   Event = "FINISH"   // 工厂从 processing 回到 ready
	EventClear    Event = "CLEAR"    // 当前任务已清除
)

// FSM 有限状态机
type FSM struct {
	Current State
	mu      sync.Mutex
	// transitions 定义状态转移表: CurrentState -> Event -> NextState
	transitions map[State]map[Event]State
	// callbacks 定义状态变更后的回调: State -> func()
	callbacks map[State]func(targetID string)
	TargetID  string
	logger    *slog.Logger
}

// NewFSM 创建一个处于 IDLE 的编排器状态机
func NewFSM(targetID string, logger *slog.Logger) *FSM {
	fsm := &FSM{
		Current:     StateIdle,
		TargetID:    targetID,
		transitions: make(map[State]map[Event]State),
		callbacks:   make(map[State]func(string)),
		logger:      logger,
	}
	fsm.initTransitions()
	return fsm
}

func (f *FSM) initTransitions() {
	f.addTransition(StateIdle, EventDispatch, StateAwaiting)
	f.addTransition(StateAwaiting, EventProcess, StateRunning)
	f.addTransition(StateRunning, EventProcess, StateRunning)
	f.addTransition(StateRunning, EventFinish, StateCompleting)
	f.addTransition(StateCompleting, EventClear, StateIdle)
}

func (f *FSM) addTransition(from State, event Event, to State) {
	if _, ok := f.transitions[from]; !ok {
		f.transitions[from] = make(map[Event]State)
	}
	f.transitions[from][event] = to
}

// RegisterCallback 注册状态进入时的回调
func (f *FSM) RegisterCallback(state State, callback func(targetID string)) {
	f.callbacks[state] = callback
}

// State 返回当前状态
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Current
}

// Can 判断事件在当前状态下是否合法
func (f *FSM) Can(event Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.transitions[f.Current][event]
	return ok
}

// Fire 触发事件
func (f *FSM) Fire(event Event) error {
	f.mu.Lock()
	nextState, ok := f.transitions[f.Current][event]
	if !ok {
		cur := f.Current
		f.mu.Unlock()
		return fmt.Errorf("invalid transition: cannot fire event %s from state %s", event, cur)
	}
	prevState := f.Current
	f.Current = nextState
	cb := f.callbacks[nextState]
	f.mu.Unlock()

	if prevState != nextState {
		f.logger.Debug("状态切换", "target", f.TargetID, "from", prevState, "to", nextState, "event", event)
	}
	// 回调在锁外执行，回调中可以再次调用 Fire
	if cb != nil {
		cb(f.TargetID)
	}
	return nil
}

// Reset 强制回到 IDLE，用于异常恢复
func (f *FSM) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Current = StateIdle
}
