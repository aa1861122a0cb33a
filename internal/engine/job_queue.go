package engine

import (
	"fmt"
	"slices"

	"factory-cell-controller/internal/metrics"
	"factory-cell-controller/internal/types"
)

// ErrDuplicateJob 表示队列中已有相同 ID 的任务，它同时也是 ErrInvalidJob
var ErrDuplicateJob = fmt.Errorf("%w: duplicate job id", types.ErrInvalidJob)

// Stock 回答"任务需要的库存属性当前是否满足"
type Stock interface {
	Satisfies(job *types.Job) bool
}

// JobQueue 按插入顺序保存等待中的任务，任务 ID 在队列中唯一
// 只由控制循环所在的 goroutine 访问
type JobQueue struct {
	jobs []*types.Job
	ids  map[int]struct{}
}

// NewJobQueue 创建一个空队列
func NewJobQueue() *JobQueue {
	return &JobQueue{ids: make(map[int]struct{})}
}

// Add 追加任务到队尾
func (q *JobQueue) Add(job *types.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if _, exists := q.ids[job.JobID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateJob, job.JobID)
	}
	job.Status = types.JobQueued
	q.jobs = append(q.jobs, job)
	q.ids[job.JobID] = struct{}{}
	metrics.JobsInQueue.Set(float64(len(q.jobs)))
	return nil
}

// CancelByID 删除至多一个匹配的任务，返回被删除的 ID；空切片表示未找到
func (q *JobQueue) CancelByID(jobID int) []int {
	return q.removeWhere(func(j *types.Job) bool { return j.JobID == jobID })
}

// CancelByOrder 删除订单下的所有任务，返回被删除的 ID；空切片表示未找到
func (q *JobQueue) CancelByOrder(orderID int) []int {
	return q.removeWhere(func(j *types.Job) bool { return j.OrderID == orderID })
}

func (q *JobQueue) removeWhere(match func(*types.Job) bool) []int {
	removed := []int{}
	q.jobs = slices.DeleteFunc(q.jobs, func(j *types.Job) bool {
		if !match(j) {
			return false
		}
		j.Status = types.JobCanceled
		removed = append(removed, j.JobID)
		delete(q.ids, j.JobID)
		return true
	})
	metrics.JobsInQueue.Set(float64(len(q.jobs)))
	return removed
}

// Len 返回队列深度
func (q *JobQueue) Len() int {
	return len(q.jobs)
}

// HasJobs 报告队列是否非空
func (q *JobQueue) HasJobs() bool {
	return len(q.jobs) > 0
}

// NextAvailable 按插入顺序返回第一个库存可满足的任务
// 排在前面但不可满足的任务保持原位。不修改队列，也不修改库存
func (q *JobQueue) NextAvailable(stock Stock) *types.Job {
	for _, j := range q.jobs {
		if stock.Satisfies(j) {
			return j
		}
	}
	return nil
}

// Remove 在任务交给工厂后把它移出队列
func (q *JobQueue) Remove(jobID int) bool {
	i := slices.IndexFunc(q.jobs, func(j *types.Job) bool { return j.JobID == jobID })
	if i < 0 {
		return false
	}
	q.jobs = slices.Delete(q.jobs, i, i+1)
	delete(q.ids, jobID)
	metrics.JobsInQueue.Set(float64(len(q.jobs)))
	return true
}

// Jobs 返回队列内容的副本，顺序与插入顺序一致
func (q *JobQueue) Jobs() []types.Job {
	out := make([]types.Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, *j)
	}
	return out
}
