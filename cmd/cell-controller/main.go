package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"factory-cell-controller/internal/command"
	"factory-cell-controller/internal/config"
	"factory-cell-controller/internal/device"
	"factory-cell-controller/internal/engine"
	"factory-cell-controller/internal/event"
	"factory-cell-controller/internal/factory"
	"factory-cell-controller/internal/handlers"
	"factory-cell-controller/internal/inventory"
	"factory-cell-controller/internal/mqtt"
	"factory-cell-controller/internal/web"
)

// main 是单元控制器的入口
func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "cell-controller",
		Short:         "Factory cell controller: job queue, orchestration and field device control",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default ./config.yaml)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the control loop, MQTT session and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile)
		},
	}
	checkCmd := &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", *cfg)
			return nil
		},
	}
	root.AddCommand(runCmd, checkCmd)
	return root
}

func run(configFile string) error {
	// 1. 配置和日志
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		slog.Error("加载配置失败", "error", err)
		return err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. 事件总线、前端推送和命令收件箱
	hub := web.NewHub(logger)
	go hub.Run(ctx)
	stateTracker := web.NewStateTracker(hub)
	eventBus := event.NewBus()
	inbox := command.NewInbox(command.DefaultInboxSize)

	// 3. 消息总线
	var publisher mqtt.Publisher
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient = mqtt.NewClient(mqtt.Options{
			Broker:    cfg.MQTTBroker(),
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			Subscribe: cfg.MQTT.Subscribe,
		}, inbox, logger)
		if err := mqttClient.Connect(); err != nil {
			logger.Error("连接 MQTT broker 失败", "error", err)
			return err
		}
		publisher = mqttClient
	}
	handlers.RegisterEventHandlers(eventBus, stateTracker, publisher, logger)

	// 4. 工厂门面、库存和编排器
	fac := newFactory(cfg, logger)
	rule, err := engine.NewRule(cfg.AdmissionRule)
	if err != nil {
		logger.Error("准入规则无效", "error", err, "rule", cfg.AdmissionRule)
		return err
	}
	inv := inventory.New(cfg.Inventory.Preset)
	orch, err := engine.NewOrchestrator(engine.NewJobQueue(), inv, fac, eventBus, rule, logger)
	if err != nil {
		return err
	}
	scheduler := engine.NewScheduler(orch, inbox, newCadence(cfg), logger)

	logger.Info("=== 单元控制器启动 ===", "sim", cfg.Factory.Sim, "http", cfg.HTTP.Addr, "mqtt", cfg.MQTT.Enabled)
	orch.SendStatus()
	orch.SendInventory()

	// 5. 启动控制循环和 HTTP 服务
	go scheduler.Start(ctx)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           web.NewAPI(inbox, stateTracker, hub, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("API 服务器启动", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API 服务器启动失败", "error", err)
		}
	}()

	// 6. 优雅停机
	waitForShutdown(logger, cancel, scheduler)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("关闭 API 服务器失败", "error", err)
	}
	if err := orch.Stop(); err != nil {
		logger.Warn("停止工厂失败", "error", err)
	}
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	logger.Info("单元控制器已安全退出")
	return nil
}

// newCadence 按配置构造控制循环节拍，仅仿真模式在计数器归零时重置库存
func newCadence(cfg *config.Config) engine.Cadence {
	return engine.Cadence{
		Tick:           cfg.Tick(),
		UpdateEvery:    cfg.Loop.UpdateEvery,
		StatusEvery:    cfg.Loop.StatusEvery,
		InventoryEvery: cfg.Loop.InventoryEvery,
		ResetAfter:     cfg.Loop.ResetAfter,
		ResetInventory: cfg.Factory.Sim,
	}
}

// newFactory 按配置创建仿真或 Modbus 工厂
func newFactory(cfg *config.Config, logger *slog.Logger) factory.Factory {
	if cfg.Factory.Sim {
		logger.Info("使用仿真工厂", "processing", cfg.ProcessingTime())
		return factory.NewSim(cfg.ProcessingTime(), logger)
	}
	addr := cfg.FactoryAddr()
	logger.Info("使用 Modbus 工厂", "addr", addr, "unit_id", cfg.Factory.UnitID)
	transport := device.NewModbusTransport(addr, byte(cfg.Factory.UnitID), cfg.FactoryTimeout())
	cell := factory.NewCell(device.NewConn(transport, addr, logger), cfg.Factory.WarehouseSlots, logger)
	cell.AckTimeout = cfg.AckTimeout()
	return cell
}

// waitForShutdown 等待系统信号以实现优雅停机
// 正在执行的 tick 会先完成
func waitForShutdown(logger *slog.Logger, cancel context.CancelFunc, scheduler *engine.Scheduler) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("接收到停机信号，正在优雅关闭...")
	cancel()
	scheduler.WaitForCompletion()
}
