package station

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"factory-cell-controller/internal/device"
	"factory-cell-controller/internal/device/devicetest"
	"factory-cell-controller/internal/types"
)

func newTestRig(t *testing.T) (*device.Conn, *devicetest.Transport, *slog.Logger) {
	t.Helper()
	fake := devicetest.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return device.NewConn(fake, "plc.test:502", logger), fake, logger
}

func assertOps(t *testing.T, got, want []devicetest.Op) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("预期操作 %v, 得到 %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("操作 %d: 预期 %v, 得到 %v", i, want[i], got[i])
		}
	}
}

func TestWarehouseStartTaskWritesSlotThenPulses(t *testing.T) {
	conn, fake, logger := newTestRig(t)
	hbw := NewWarehouse(conn, logger)

	if err := hbw.StartTask(1, 2); err != nil {
		t.Fatalf("StartTask 失败: %v", err)
	}
	assertOps(t, fake.Writes(), []devicetest.Op{
		{Kind: "write_register", Addr: 104, Value: 1},
		{Kind: "write_register", Addr: 105, Value: 2},
		{Kind: "write_coil", Addr: 100, Value: 1},
		{Kind: "write_coil", Addr: 100, Value: 0},
	})
}

func TestTransportStartTaskTwiceIssuesTwoPulses(t *testing.T) {
	conn, fake, logger := newTestRig(t)
	mpo := NewTransport(conn, logger)

	for i := 0; i < 2; i++ {
		if err := mpo.StartTask(); err != nil {
			t.Fatalf("StartTask 失败: %v", err)
		}
		if fake.Coil(52) {
			t.Fatalf("第 %d 次调用后任务位仍为 1", i+1)
		}
	}
	assertOps(t, fake.Ops(), []devicetest.Op{
		{Kind: "write_coil", Addr: 52, Value: 1},
		{Kind: "write_coil", Addr: 52, Value: 0},
		{Kind: "write_coil", Addr: 52, Value: 1},
		{Kind: "write_coil", Addr: 52, Value: 0},
	})
}

func TestTransportTask2AndFlags(t *testing.T) {
	conn, fake, logger := newTestRig(t)
	mpo := NewTransport(conn, logger)

	fake.SetCoil(51, true)
	f1, f2, err := mpo.Flags()
	if err != nil || f1 || !f2 {
		t.Fatalf("预期 flag1=false flag2=true, 得到 %v %v (%v)", f1, f2, err)
	}
	fake.ResetOps()
	if err := mpo.StartTask2(); err != nil {
		t.Fatalf("StartTask2 失败: %v", err)
	}
	assertOps(t, fake.Writes(), []devicetest.Op{
		{Kind: "write_coil", Addr: 53, Value: 1},
		{Kind: "write_coil", Addr: 53, Value: 0},
	})
}

func TestWarehouseStatusBits(t *testing.T) {
	conn, fake, logger := newTestRig(t)
	hbw := NewWarehouse(conn, logger)

	fake.SetCoil(129, true)
	fake.SetCoil(179, true)
	fake.SetRegister(180, 17)

	if ready, err := hbw.IsReady(); err != nil || !ready {
		t.Errorf("预期就绪, 得到 %v (%v)", ready, err)
	}
	if fault, err := hbw.IsFault(); err != nil || !fault {
		t.Errorf("预期故障, 得到 %v (%v)", fault, err)
	}
	if code, err := hbw.FaultCode(); err != nil || code != 17 {
		t.Errorf("预期故障码 17, 得到 %d (%v)", code, err)
	}
}

func TestSignalSetAndClear(t *testing.T) {
	conn, fake, _ := newTestRig(t)
	ssc := NewSignal(conn)

	if err := ssc.Set(true, false, true); err != nil {
		t.Fatalf("Set 失败: %v", err)
	}
	if !fake.Coil(59) || fake.Coil(60) || !fake.Coil(61) {
		t.Errorf("灯状态错误: g=%v y=%v r=%v", fake.Coil(59), fake.Coil(60), fake.Coil(61))
	}
	if err := ssc.ClearAll(); err != nil {
		t.Fatalf("ClearAll 失败: %v", err)
	}
	for _, addr := range []uint16{59, 60, 61} {
		if fake.Coil(addr) {
			t.Errorf("线圈 %d 应为 0", addr)
		}
	}
	if n := len(fake.Ops()); n != 6 {
		t.Errorf("信号灯只写不读, 预期 6 次写入, 得到 %d", n)
	}
}

func TestSignalIndicate(t *testing.T) {
	tests := []struct {
		state   types.FactoryState
		g, y, r bool
	}{
		{types.StateReady, true, false, false},
		{types.StateProcessing, false, true, false},
		{types.StateFault, false, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			conn, fake, _ := newTestRig(t)
			if err := NewSignal(conn).Indicate(tt.state); err != nil {
				t.Fatalf("Indicate 失败: %v", err)
			}
			if fake.Coil(59) != tt.g || fake.Coil(60) != tt.y || fake.Coil(61) != tt.r {
				t.Errorf("预期 g=%v y=%v r=%v", tt.g, tt.y, tt.r)
			}
		})
	}
}

func TestConnectionErrorReachesCaller(t *testing.T) {
	conn, fake, logger := newTestRig(t)
	fake.FailConnect(errors.New("no route to host"))
	hbw := NewWarehouse(conn, logger)
	mpo := NewTransport(conn, logger)

	if err := hbw.StartTask(1, 1); !errors.Is(err, device.ErrConnection) {
		t.Errorf("StartTask: 预期连接错误, 得到 %v", err)
	}
	if _, err := ReadyState(hbw, mpo); !errors.Is(err, device.ErrConnection) {
		t.Errorf("ReadyState: 预期连接错误, 得到 %v", err)
	}
}

func TestReadyState(t *testing.T) {
	conn, fake, logger := newTestRig(t)
	fake.SetCoil(129, true)

	got, err := ReadyState(NewWarehouse(conn, logger), NewTransport(conn, logger))
	if err != nil {
		t.Fatalf("ReadyState 失败: %v", err)
	}
	if !got[types.StationWarehouse] || got[types.StationTransport] {
		t.Errorf("就绪状态错误: %v", got)
	}
}
