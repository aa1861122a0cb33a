package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"factory-cell-controller/internal/command"
	"factory-cell-controller/internal/event"
	"factory-cell-controller/internal/factory"
	"factory-cell-controller/internal/inventory"
	"factory-cell-controller/internal/types"
)

type simClock struct{ t time.Time }

func (c *simClock) now() time.Time { return c.t }

func newTestScheduler(t *testing.T, f factory.Factory, preset map[types.Color]int, cadence Cadence) (*Scheduler, *command.Inbox, *recorder, *inventory.Inventory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := event.NewBus()
	rec := &recorder{}
	rec.attach(bus)
	inv := inventory.New(preset)
	orch, err := NewOrchestrator(NewJobQueue(), inv, f, bus, nil, logger)
	if err != nil {
		t.Fatalf("NewOrchestrator 失败: %v", err)
	}
	inbox := command.NewInbox(command.DefaultInboxSize)
	return NewScheduler(orch, inbox, cadence, logger), inbox, rec, inv
}

func TestSchedulerCadence(t *testing.T) {
	f := &scriptedFactory{states: []types.FactoryState{types.StateReady}}
	cadence := Cadence{Tick: time.Millisecond, UpdateEvery: 2, StatusEvery: 15, InventoryEvery: 60, ResetAfter: 600}
	s, _, rec, _ := newTestScheduler(t, f, nil, cadence)

	for i := 0; i < 60; i++ {
		s.Step()
	}
	if f.next != 30 {
		t.Errorf("60 个 tick 应轮询 30 次, 得到 %d", f.next)
	}
	if len(rec.statuses) != 4 {
		t.Errorf("60 个 tick 应发布 4 次状态, 得到 %d", len(rec.statuses))
	}
	if len(rec.inventory) != 1 {
		t.Errorf("60 个 tick 应发布 1 次库存, 得到 %d", len(rec.inventory))
	}
}

func TestSchedulerCounterResetRestoresInventory(t *testing.T) {
	f := &scriptedFactory{states: []types.FactoryState{types.StateProcessing}}
	cadence := Cadence{Tick: time.Millisecond, UpdateEvery: 1, StatusEvery: 100, InventoryEvery: 100, ResetAfter: 3, ResetInventory: true}
	s, _, _, inv := newTestScheduler(t, f, map[types.Color]int{types.ColorRed: 2}, cadence)

	_ = inv.Take(types.ColorRed)
	for i := 0; i < 3; i++ {
		s.Step()
	}
	if inv.Available(types.ColorRed) != 1 {
		t.Fatal("计数器未越界前不应重置库存")
	}
	s.Step()
	if inv.Available(types.ColorRed) != 2 {
		t.Errorf("计数器越界后应重置库存, 得到 %d", inv.Available(types.ColorRed))
	}
	if s.count != 0 {
		t.Errorf("计数器应归零, 得到 %d", s.count)
	}
}

func TestSchedulerAppliesCommandsOnUpdateTicks(t *testing.T) {
	f := &scriptedFactory{states: []types.FactoryState{types.StateProcessing}}
	s, inbox, rec, _ := newTestScheduler(t, f, nil, DefaultCadence())

	_ = inbox.Submit(command.AddJob(newJob(1, 1, types.ColorWhite)))
	s.Step()
	if len(rec.notices) != 0 {
		t.Fatal("非更新 tick 不应处理命令")
	}
	s.Step()
	if rec.count("Added to queue") != 1 {
		t.Errorf("更新 tick 应处理命令, 得到 %v", rec.notices)
	}
}

func TestSchedulerRunsSimulatedJob(t *testing.T) {
	clk := &simClock{t: time.Unix(0, 0)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sim := factory.NewSim(30*time.Second, logger, factory.WithClock(clk.now))
	cadence := Cadence{Tick: time.Millisecond, UpdateEvery: 1, StatusEvery: 1000, InventoryEvery: 1000, ResetAfter: 1000}
	s, inbox, rec, inv := newTestScheduler(t, sim, map[types.Color]int{types.ColorWhite: 1}, cadence)

	_ = inbox.Submit(command.AddJob(&types.Job{JobID: 1, OrderID: 10, Color: types.ColorWhite, CookTime: 12, Sliced: true}))
	_ = inbox.Submit(command.AddJob(&types.Job{JobID: 2, OrderID: 10, Color: types.ColorWhite, CookTime: 12}))
	s.Step()
	if rec.count("Started") != 1 || inv.Available(types.ColorWhite) != 0 {
		t.Fatalf("任务 1 应立即开始, 通知: %v", rec.notices)
	}

	clk.t = clk.t.Add(10 * time.Second)
	s.Step()
	if rec.count("Completed") != 0 {
		t.Fatal("处理时间未到不应完成")
	}

	clk.t = clk.t.Add(25 * time.Second)
	s.Step()
	if rec.count("Completed") != 1 {
		t.Fatalf("处理时间到后应完成, 通知: %v", rec.notices)
	}
	s.Step()
	if rec.count("Started") != 1 {
		t.Error("库存耗尽时任务 2 不应开始")
	}

	_ = inbox.Submit(command.Factory(command.ResetInventory, nil))
	s.Step() // 先处理命令再轮询，同一 tick 内即可开始
	if rec.count("Started") != 2 {
		t.Errorf("补充库存后任务 2 应开始, 通知: %v", rec.notices)
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	f := &scriptedFactory{}
	s, _, _, _ := newTestScheduler(t, f, nil, Cadence{Tick: time.Millisecond, UpdateEvery: 1, StatusEvery: 1, InventoryEvery: 1, ResetAfter: 10})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		s.WaitForCompletion()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("取消后控制循环应退出")
	}
}
