package engine

import (
	"errors"
	"slices"
	"testing"

	"factory-cell-controller/internal/inventory"
	"factory-cell-controller/internal/types"
)

func newJob(id, order int, color types.Color) *types.Job {
	return &types.Job{JobID: id, OrderID: order, Color: color, CookTime: 12}
}

func queueIDs(q *JobQueue) []int {
	var ids []int
	for _, j := range q.Jobs() {
		ids = append(ids, j.JobID)
	}
	return ids
}

func TestAddRejectsDuplicatesAndInvalid(t *testing.T) {
	q := NewJobQueue()
	if err := q.Add(newJob(1, 10, types.ColorWhite)); err != nil {
		t.Fatalf("Add 失败: %v", err)
	}

	err := q.Add(newJob(1, 11, types.ColorRed))
	if !errors.Is(err, ErrDuplicateJob) || !errors.Is(err, types.ErrInvalidJob) {
		t.Errorf("重复 ID 应返回 ErrDuplicateJob/ErrInvalidJob, 得到 %v", err)
	}

	invalid := []*types.Job{
		nil,
		newJob(-1, 10, types.ColorWhite),
		newJob(2, -10, types.ColorWhite),
		newJob(3, 10, "green"),
	}
	for _, j := range invalid {
		if err := q.Add(j); !errors.Is(err, types.ErrInvalidJob) {
			t.Errorf("Add(%v): 预期 ErrInvalidJob, 得到 %v", j, err)
		}
	}
	if q.Len() != 1 {
		t.Errorf("失败的 Add 不应修改队列, Len=%d", q.Len())
	}
}

func TestUniqueIDsAcrossAddAndCancel(t *testing.T) {
	q := NewJobQueue()
	ops := []struct {
		add    *types.Job
		cancel int
	}{
		{add: newJob(1, 1, types.ColorWhite)},
		{add: newJob(2, 1, types.ColorRed)},
		{add: newJob(1, 2, types.ColorBlue)},
		{cancel: 1},
		{add: newJob(1, 2, types.ColorBlue)},
		{add: newJob(2, 3, types.ColorBlue)},
		{add: newJob(3, 3, types.ColorWhite)},
	}
	for _, op := range ops {
		if op.add != nil {
			_ = q.Add(op.add)
		} else {
			q.CancelByID(op.cancel)
		}
		ids := queueIDs(q)
		sorted := slices.Clone(ids)
		slices.Sort(sorted)
		if len(slices.Compact(sorted)) != len(ids) {
			t.Fatalf("队列出现重复 ID: %v", ids)
		}
	}
	if got := queueIDs(q); !slices.Equal(got, []int{2, 1, 3}) {
		t.Errorf("预期 [2 1 3], 得到 %v", got)
	}
}

func TestCancelByIDAndOrder(t *testing.T) {
	q := NewJobQueue()
	for _, j := range []*types.Job{
		newJob(1, 10, types.ColorWhite),
		newJob(2, 20, types.ColorRed),
		newJob(3, 10, types.ColorBlue),
		newJob(4, 30, types.ColorBlue),
	} {
		if err := q.Add(j); err != nil {
			t.Fatalf("Add 失败: %v", err)
		}
	}

	if got := q.CancelByID(999); got == nil || len(got) != 0 {
		t.Errorf("未找到时应返回空切片, 得到 %#v", got)
	}
	if got := q.CancelByID(2); !slices.Equal(got, []int{2}) {
		t.Errorf("预期 [2], 得到 %v", got)
	}
	if got := q.CancelByOrder(10); !slices.Equal(got, []int{1, 3}) {
		t.Errorf("预期 [1 3], 得到 %v", got)
	}
	if got := q.CancelByOrder(10); len(got) != 0 {
		t.Errorf("再次取消应返回空, 得到 %v", got)
	}
	if got := queueIDs(q); !slices.Equal(got, []int{4}) {
		t.Errorf("剩余应为 [4], 得到 %v", got)
	}
}

func TestNextAvailableSkipsAhead(t *testing.T) {
	q := NewJobQueue()
	inv := inventory.New(map[types.Color]int{types.ColorWhite: 0, types.ColorRed: 1})
	j1 := newJob(1, 10, types.ColorWhite)
	j2 := newJob(2, 10, types.ColorRed)
	_ = q.Add(j1)
	_ = q.Add(j2)

	got := q.NextAvailable(inv)
	if got != j2 {
		t.Fatalf("预期跳过 J1 返回 J2, 得到 %v", got)
	}
	if ids := queueIDs(q); !slices.Equal(ids, []int{1, 2}) {
		t.Errorf("选择不应修改队列, 得到 %v", ids)
	}
	if again := q.NextAvailable(inv); again != got {
		t.Errorf("输入不变时应返回同一个任务, 得到 %v", again)
	}
	if inv.Available(types.ColorRed) != 1 {
		t.Error("选择不应消耗库存")
	}
}

func TestNextAvailableNone(t *testing.T) {
	q := NewJobQueue()
	inv := inventory.New(map[types.Color]int{})
	_ = q.Add(newJob(1, 10, types.ColorBlue))

	if got := q.NextAvailable(inv); got != nil {
		t.Errorf("无可满足任务时应返回 nil, 得到 %v", got)
	}
	if q.Len() != 1 {
		t.Errorf("队列应保持不变, Len=%d", q.Len())
	}
}

func TestRemoveKeepsOrder(t *testing.T) {
	q := NewJobQueue()
	for i := 1; i <= 3; i++ {
		_ = q.Add(newJob(i, 10, types.ColorWhite))
	}
	if !q.Remove(2) {
		t.Fatal("Remove(2) 应成功")
	}
	if q.Remove(2) {
		t.Error("重复 Remove 应返回 false")
	}
	if ids := queueIDs(q); !slices.Equal(ids, []int{1, 3}) {
		t.Errorf("预期 [1 3], 得到 %v", ids)
	}
	if err := q.Add(newJob(2, 10, types.ColorWhite)); err != nil {
		t.Errorf("移除后应可重新加入同 ID: %v", err)
	}
}
