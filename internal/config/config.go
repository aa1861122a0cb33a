package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"factory-cell-controller/internal/types"
)

// FactoryConfig 描述工厂门面：仿真或 Modbus/TCP 现场控制器
type FactoryConfig struct {
	Sim             bool                                `mapstructure:"sim"`               // true 时使用定时仿真
	IP              string                              `mapstructure:"ip"`                // 现场控制器地址
	Port            int                                 `mapstructure:"port"`              // Modbus/TCP 端口
	UnitID          int                                 `mapstructure:"unit_id"`           // Modbus 从站号
	TimeoutMs       int                                 `mapstructure:"timeout_ms"`        // 单次读写超时
	ProcessingTimeS int                                 `mapstructure:"processing_time_s"` // 仿真模式下每个任务的处理时长
	AckTimeoutMs    int                                 `mapstructure:"ack_timeout_ms"`    // 工站确认脉冲的最长等待
	WarehouseSlots  map[types.Color]types.WarehouseSlot `mapstructure:"warehouse_slots"`   // 颜色 -> 仓库货位
}

// LoopConfig 描述控制循环节拍，*_every 以 tick 为单位
type LoopConfig struct {
	TickMs         int `mapstructure:"tick_ms"`
	UpdateEvery    int `mapstructure:"update_every"`
	StatusEvery    int `mapstructure:"status_every"`
	InventoryEvery int `mapstructure:"inventory_every"`
	ResetAfter     int `mapstructure:"reset_after"`
}

// MQTTConfig 描述消息总线连接
type MQTTConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BrokerURL string `mapstructure:"broker_url"`
	Port      int    `mapstructure:"port"`
	ClientID  string `mapstructure:"client_id"`
	Subscribe string `mapstructure:"subscribe"` // 订阅过滤器，为空时订阅全部命令主题
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// Config 定义应用程序的配置结构
// 使用 mapstructure 标签来映射配置文件中的字段
type Config struct {
	Factory       FactoryConfig   `mapstructure:"factory"`
	Inventory     InventoryConfig `mapstructure:"inventory"`
	Loop          LoopConfig      `mapstructure:"loop"`
	AdmissionRule string          `mapstructure:"admission_rule"` // 可选的 expr 准入规则
	MQTT          MQTTConfig      `mapstructure:"mqtt"`
	HTTP          HTTPConfig      `mapstructure:"http"`
	LogLevel      string          `mapstructure:"log_level"`
}

type InventoryConfig struct {
	Preset map[types.Color]int `mapstructure:"preset"` // 初始及重置时的库存分布
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("factory.sim", true)
	v.SetDefault("factory.ip", "127.0.0.1")
	v.SetDefault("factory.port", 502)
	v.SetDefault("factory.unit_id", 1)
	v.SetDefault("factory.timeout_ms", 1000)
	v.SetDefault("factory.processing_time_s", 30)
	v.SetDefault("factory.ack_timeout_ms", 5000)
	v.SetDefault("factory.warehouse_slots", map[string]any{
		"white": map[string]any{"x": 1, "y": 1},
		"red":   map[string]any{"x": 1, "y": 2},
		"blue":  map[string]any{"x": 1, "y": 3},
	})
	v.SetDefault("inventory.preset", map[string]any{"white": 3, "red": 3, "blue": 3})
	v.SetDefault("loop.tick_ms", 1000)
	v.SetDefault("loop.update_every", 2)
	v.SetDefault("loop.status_every", 15)
	v.SetDefault("loop.inventory_every", 60)
	v.SetDefault("loop.reset_after", 600)
	v.SetDefault("admission_rule", "")
	v.SetDefault("mqtt.enabled", true)
	v.SetDefault("mqtt.broker_url", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.subscribe", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log_level", "info")
}

// LoadConfig 加载配置
// 顺序：默认值 < config.yaml < 环境变量 (.env 中的值也算环境变量)
// path 为空时在当前目录查找 config.yaml，找不到则只用默认值和环境变量
// 环境变量名由键转换而来，例如 factory.sim -> FACTORY_SIM，mqtt.broker_url -> MQTT_BROKER_URL
func LoadConfig(path string) (*Config, error) {
	// .env 是可选的，已存在的环境变量不会被覆盖
	if err := godotenv.Load(); err != nil {
		slog.Debug("未加载 .env 文件", "error", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // 配置文件名称 (不带扩展名)
		v.SetConfigType("yaml")   // 配置文件类型
		v.AddConfigPath(".")      // 查找配置文件的路径 (当前目录)
	}

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	// 将配置解析到结构体中
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置的取值范围
func (c *Config) Validate() error {
	var errs []error
	l := c.Loop
	for name, n := range map[string]int{
		"loop.tick_ms":         l.TickMs,
		"loop.update_every":    l.UpdateEvery,
		"loop.status_every":    l.StatusEvery,
		"loop.inventory_every": l.InventoryEvery,
		"loop.reset_after":     l.ResetAfter,
	} {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, n))
		}
	}
	if c.Factory.Sim && c.Factory.ProcessingTimeS <= 0 {
		errs = append(errs, fmt.Errorf("factory.processing_time_s must be positive, got %d", c.Factory.ProcessingTimeS))
	}
	if !c.Factory.Sim {
		if c.Factory.UnitID < 0 || c.Factory.UnitID > 255 {
			errs = append(errs, fmt.Errorf("factory.unit_id out of range: %d", c.Factory.UnitID))
		}
		for color := range c.Factory.WarehouseSlots {
			if !color.Valid() {
				errs = append(errs, fmt.Errorf("factory.warehouse_slots: unknown color %q", color))
			}
		}
		for color, n := range c.Inventory.Preset {
			if _, ok := c.Factory.WarehouseSlots[color]; n > 0 && !ok {
				errs = append(errs, fmt.Errorf("factory.warehouse_slots: no slot for stocked color %s", color))
			}
		}
	}
	for color, n := range c.Inventory.Preset {
		if !color.Valid() {
			errs = append(errs, fmt.Errorf("inventory.preset: unknown color %q", color))
		}
		if n < 0 {
			errs = append(errs, fmt.Errorf("inventory.preset: negative count for %s", color))
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Tick 返回控制循环的 tick 间隔
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Loop.TickMs) * time.Millisecond
}

// ProcessingTime 返回仿真任务的处理时长
func (c *Config) ProcessingTime() time.Duration {
	return time.Duration(c.Factory.ProcessingTimeS) * time.Second
}

// AckTimeout 返回工站确认的最长等待
func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.Factory.AckTimeoutMs) * time.Millisecond
}

// FactoryTimeout 返回 Modbus 单次读写超时
func (c *Config) FactoryTimeout() time.Duration {
	return time.Duration(c.Factory.TimeoutMs) * time.Millisecond
}

// FactoryAddr 返回 Modbus/TCP 地址 host:port
func (c *Config) FactoryAddr() string {
	return fmt.Sprintf("%s:%d", c.Factory.IP, c.Factory.Port)
}

// MQTTBroker 返回 paho 使用的 broker 地址
// broker_url 不带协议时按 tcp 处理
func (c *Config) MQTTBroker() string {
	url := c.MQTT.BrokerURL
	if !strings.Contains(url, "://") {
		url = "tcp://" + url
	}
	return fmt.Sprintf("%s:%d", url, c.MQTT.Port)
}

// ParseLevel 把 log_level 转换为 slog.Level
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
