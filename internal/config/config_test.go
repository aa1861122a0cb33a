package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"factory-cell-controller/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "log_level: debug\n"))
	if err != nil {
		t.Fatalf("LoadConfig 失败: %v", err)
	}
	if !cfg.Factory.Sim || cfg.ProcessingTime() != 30*time.Second {
		t.Errorf("默认应为 30s 仿真, 得到 sim=%v %v", cfg.Factory.Sim, cfg.ProcessingTime())
	}
	l := cfg.Loop
	if cfg.Tick() != time.Second || l.UpdateEvery != 2 || l.StatusEvery != 15 || l.InventoryEvery != 60 || l.ResetAfter != 600 {
		t.Errorf("默认节拍错误: tick=%v %+v", cfg.Tick(), l)
	}
	if cfg.Inventory.Preset[types.ColorWhite] != 3 {
		t.Errorf("默认库存应为每色 3 个, 得到 %v", cfg.Inventory.Preset)
	}
	if slot := cfg.Factory.WarehouseSlots[types.ColorRed]; slot != (types.WarehouseSlot{X: 1, Y: 2}) {
		t.Errorf("默认红色货位应为 (1,2), 得到 %+v", slot)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("应读取文件中的 log_level, 得到 %s", cfg.LogLevel)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
factory:
  sim: true
  ip: 10.0.0.5
  warehouse_slots:
    white: {x: 2, y: 3}
inventory:
  preset:
    white: 1
    red: 0
loop:
  tick_ms: 250
mqtt:
  broker_url: broker.local
`)
	t.Setenv("FACTORY_SIM", "False")
	t.Setenv("FACTORY_PORT", "5020")
	t.Setenv("MQTT_PORT", "8883")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig 失败: %v", err)
	}
	if cfg.Factory.Sim {
		t.Error("FACTORY_SIM 应覆盖配置文件")
	}
	if got := cfg.FactoryAddr(); got != "10.0.0.5:5020" {
		t.Errorf("预期 10.0.0.5:5020, 得到 %s", got)
	}
	if got := cfg.MQTTBroker(); got != "tcp://broker.local:8883" {
		t.Errorf("预期 tcp://broker.local:8883, 得到 %s", got)
	}
	if cfg.Tick() != 250*time.Millisecond {
		t.Errorf("tick 应为 250ms, 得到 %v", cfg.Tick())
	}
	if cfg.Factory.WarehouseSlots[types.ColorWhite] != (types.WarehouseSlot{X: 2, Y: 3}) {
		t.Errorf("白色货位应为 (2,3), 得到 %+v", cfg.Factory.WarehouseSlots)
	}
	if cfg.Inventory.Preset[types.ColorWhite] != 1 {
		t.Errorf("白色库存应为 1, 得到 %v", cfg.Inventory.Preset)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"零节拍", "loop:\n  update_every: 0\n", "loop.update_every"},
		{"负处理时长", "factory:\n  processing_time_s: -1\n", "processing_time_s"},
		{"未知颜色", "inventory:\n  preset:\n    green: 2\n", "unknown color"},
		{"负库存", "inventory:\n  preset:\n    red: -2\n", "negative count"},
		{"日志级别", "log_level: loud\n", "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("预期包含 %q 的错误, 得到 %v", tt.want, err)
			}
		})
	}
}

func TestValidateRequiresSlotForStockedColor(t *testing.T) {
	cfg := Config{
		Factory: FactoryConfig{
			Sim:            false,
			UnitID:         1,
			WarehouseSlots: map[types.Color]types.WarehouseSlot{types.ColorWhite: {X: 1, Y: 1}},
		},
		Inventory: InventoryConfig{Preset: map[types.Color]int{types.ColorWhite: 1, types.ColorRed: 2, types.ColorBlue: 0}},
		Loop:      LoopConfig{TickMs: 1000, UpdateEvery: 2, StatusEvery: 15, InventoryEvery: 60, ResetAfter: 600},
		LogLevel:  "info",
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "no slot for stocked color red") {
		t.Fatalf("预期红色缺少货位的错误, 得到 %v", err)
	}
	if strings.Contains(err.Error(), "blue") {
		t.Errorf("库存为 0 的颜色不需要货位, 得到 %v", err)
	}

	cfg.Factory.Sim = true
	cfg.Factory.ProcessingTimeS = 30
	if err := cfg.Validate(); err != nil {
		t.Errorf("仿真模式不需要货位, 得到 %v", err)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("显式指定的配置文件不存在时应返回错误")
	}
}
