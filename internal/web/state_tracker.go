package web

import (
	"maps"
	"slices"
	"sync"
	"time"

	"factory-cell-controller/internal/types"
)

// maxRecentNotices 是快照中保留的最近通知条数
const maxRecentNotices = 50

// NoticeRecord 是带时间戳和分类的任务通知
type NoticeRecord struct {
	types.JobNotice
	Outcome string    `json:"outcome"`
	At      time.Time `json:"at"`
}

// CellState 代表单元的实时状态快照
// 内容全部来自总线事件，追踪器自身不读取设备
type CellState struct {
	Status    types.StatusReport  `json:"status"`
	Inventory map[types.Color]int `json:"inventory"`
	QueueLen  int                 `json:"queue_len"`
	Notices   []NoticeRecord      `json:"notices"` // 最新的在最后
	UpdatedAt time.Time           `json:"updated_at"`
}

// StateTracker 负责追踪单元的实时状态，并通知前端更新
type StateTracker struct {
	mu    sync.RWMutex
	state CellState
	hub   *Hub
	now   func() time.Time
}

// NewStateTracker 创建一个新的 StateTracker 实例，hub 可以为 nil
func NewStateTracker(hub *Hub) *StateTracker {
	return &StateTracker{
		state: CellState{
			Status:    types.StatusReport{FactoryStatus: "Unknown", CurrentJob: "None", JobQueueLen: "0"},
			Inventory: make(map[types.Color]int),
			Notices:   make([]NoticeRecord, 0, maxRecentNotices),
		},
		hub: hub,
		now: time.Now,
	}
}

// RecordNotice 追加一条任务通知，只保留最近 maxRecentNotices 条
func (st *StateTracker) RecordNotice(n types.JobNotice, outcome string, queueLen int) {
	st.update(func(s *CellState) {
		if len(s.Notices) == maxRecentNotices {
			s.Notices = append(s.Notices[:0], s.Notices[1:]...)
		}
		s.Notices = append(s.Notices, NoticeRecord{JobNotice: n, Outcome: outcome, At: st.now()})
		s.QueueLen = queueLen
	})
}

// UpdateStatus 记录最新的状态广播
func (st *StateTracker) UpdateStatus(r types.StatusReport, queueLen int) {
	st.update(func(s *CellState) {
		s.Status = r
		s.QueueLen = queueLen
	})
}

// UpdateInventory 记录最新的库存广播
func (st *StateTracker) UpdateInventory(inv map[types.Color]int) {
	st.update(func(s *CellState) {
		s.Inventory = maps.Clone(inv)
	})
}

// update 修改状态并向所有客户端广播最新快照
func (st *StateTracker) update(fn func(s *CellState)) {
	st.mu.Lock()
	fn(&st.state)
	st.state.UpdatedAt = st.now()
	snapshot := st.copyLocked()
	st.mu.Unlock()

	if st.hub != nil {
		st.hub.BroadcastState(snapshot)
	}
}

// GetStateSnapshot 返回当前状态的一个深拷贝副本
// 用于新客户端连接时获取一次全量数据
func (st *StateTracker) GetStateSnapshot() CellState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.copyLocked()
}

func (st *StateTracker) copyLocked() CellState {
	s := st.state
	s.Inventory = maps.Clone(st.state.Inventory)
	s.Notices = slices.Clone(st.state.Notices)
	return s
}
