package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"factory-cell-controller/internal/command"
	"factory-cell-controller/internal/config"
	"factory-cell-controller/internal/mqtt"
	"factory-cell-controller/internal/types"
)

// cellctl 通过消息总线向单元控制器发送命令
// 结果以任务通知的形式出现在 Factory/Job_notice 上
func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "cellctl",
		Short:         "Send commands to a factory cell controller over MQTT",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default ./config.yaml)")

	var job types.Job
	var color string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			job.Color = types.Color(color)
			if err := job.Validate(); err != nil {
				return err
			}
			return send(configFile, command.TopicAddJob, job)
		},
	}
	addCmd.Flags().IntVar(&job.JobID, "job", 0, "job id")
	addCmd.Flags().IntVar(&job.OrderID, "order", 0, "order id")
	addCmd.Flags().StringVar(&color, "color", string(types.ColorWhite), "blank color: white, red or blue")
	addCmd.Flags().IntVar(&job.CookTime, "cook-time", 0, "cook time in seconds")
	addCmd.Flags().BoolVar(&job.Sliced, "sliced", false, "slice the product")
	_ = addCmd.MarkFlagRequired("job")
	_ = addCmd.MarkFlagRequired("order")

	cancelJobCmd := &cobra.Command{
		Use:   "cancel-job <job_id>",
		Short: "Remove a queued job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("job id must be an integer: %w", err)
			}
			return send(configFile, command.TopicCancelJob, map[string]int{"job_id": id})
		},
	}

	cancelOrderCmd := &cobra.Command{
		Use:   "cancel-order <order_id>",
		Short: "Remove every queued job of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("order id must be an integer: %w", err)
			}
			return send(configFile, command.TopicCancelOrder, map[string]int{"order_id": id})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset-inventory",
		Short: "Restore the preset inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(configFile, command.TopicCommand, command.FactoryPayload{Command: command.ResetInventory, Args: map[string]any{}})
		},
	}

	root.AddCommand(addCmd, cancelJobCmd, cancelOrderCmd, resetCmd)
	return root
}

// send 连接 broker，以 qos 2 发布一条命令后断开
func send(configFile, topic string, payload any) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	client := mqtt.NewClient(mqtt.Options{
		Broker:      cfg.MQTTBroker(),
		ClientID:    "cellctl-" + uuid.NewString(),
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		NoSubscribe: true,
	}, nil, logger)
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Disconnect()

	if err := client.PublishWait(topic, 2, body); err != nil {
		return err
	}
	fmt.Printf("已发送 %s %s\n", topic, body)
	return nil
}
