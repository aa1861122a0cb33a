package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"factory-cell-controller/internal/command"
	"factory-cell-controller/internal/metrics"
)

// ErrNotConnected 表示当前没有到 broker 的连接，消息未发送
var ErrNotConnected = errors.New("mqtt not connected")

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	commandQoS     = 2
)

// Options 描述 broker 连接
type Options struct {
	Broker      string // 例如 tcp://localhost:1883
	ClientID    string // 为空时自动生成
	Username    string
	Password    string
	Subscribe   string // 订阅过滤器，为空时订阅全部命令主题
	NoSubscribe bool   // 只发布不订阅，用于命令行工具
}

// Client 是控制器在消息总线上的会话
// 订阅命令主题并把命令投递到收件箱，同时负责发布通知
type Client struct {
	client paho.Client
	opts   Options
	inbox  *command.Inbox
	logger *slog.Logger
}

// NewClient 创建客户端，此时并不连接
func NewClient(opts Options, inbox *command.Inbox, logger *slog.Logger) *Client {
	if opts.ClientID == "" {
		opts.ClientID = "cell-controller-" + uuid.NewString()
	}
	c := &Client{
		opts:   opts,
		inbox:  inbox,
		logger: logger.With("component", "mqtt", "client_id", opts.ClientID),
	}

	po := paho.NewClientOptions()
	po.AddBroker(opts.Broker)
	po.SetClientID(opts.ClientID)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		po.SetPassword(opts.Password)
	}
	po.SetAutoReconnect(true)
	po.SetOnConnectHandler(c.onConnect)
	po.SetConnectionLostHandler(c.onConnectionLost)
	c.client = paho.NewClient(po)
	return c
}

// Connect 连接 broker，订阅在 onConnect 中完成，断线重连后会重新订阅
func (c *Client) Connect() error {
	c.logger.Info("连接 MQTT broker", "broker", c.opts.Broker)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connect %s: timeout after %s", c.opts.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect %s: %w", c.opts.Broker, err)
	}
	return nil
}

func (c *Client) onConnect(client paho.Client) {
	c.logger.Info("已连接 MQTT broker")
	if c.opts.NoSubscribe {
		return
	}

	var token paho.Token
	if c.opts.Subscribe != "" {
		token = client.Subscribe(c.opts.Subscribe, commandQoS, c.onMessage)
	} else {
		filters := make(map[string]byte)
		for _, topic := range command.Topics() {
			filters[topic] = commandQoS
		}
		token = client.SubscribeMultiple(filters, c.onMessage)
	}
	// 运行在 paho 的回调 goroutine 中
	if err := waitToken(token, connectTimeout); err != nil {
		c.logger.Error("订阅命令主题失败", "error", err)
		return
	}
	c.logger.Info("已订阅命令主题", "filter", c.opts.Subscribe)
}

// waitToken 等待 token 完成，超时也作为错误返回
func waitToken(token paho.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timeout after %s", timeout)
	}
	return token.Error()
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.logger.Warn("MQTT 连接断开，等待自动重连", "error", err)
}

func (c *Client) onMessage(_ paho.Client, msg paho.Message) {
	c.HandleMessage(msg.Topic(), msg.Payload())
}

// HandleMessage 解析一条入站消息并投递到收件箱
// 来自非命令主题的消息被忽略；无法解析的负载作为无效命令投递，由控制循环发出错误通知
func (c *Client) HandleMessage(topic string, payload []byte) {
	cmd, err := command.Decode(topic, payload)
	switch {
	case errors.Is(err, command.ErrUnknownTopic):
		c.logger.Debug("忽略非命令主题的消息", "topic", topic)
		metrics.CommandsTotal.WithLabelValues("mqtt", "ignored").Inc()
		return
	case err != nil:
		c.logger.Warn("命令负载无法解析", "topic", topic, "error", err)
		cmd = command.Invalid(err)
	}

	if err := c.inbox.Submit(cmd); err != nil {
		c.logger.Error("命令被丢弃", "topic", topic, "trace_id", cmd.TraceID, "error", err)
		metrics.CommandsTotal.WithLabelValues("mqtt", "dropped").Inc()
		return
	}
	c.logger.Debug("命令已投递", "topic", topic, "kind", cmd.Kind, "trace_id", cmd.TraceID)
	metrics.CommandsTotal.WithLabelValues("mqtt", "accepted").Inc()
}

// Publish 异步发布一条消息，发送结果在后台记录
// 未连接时立即返回 ErrNotConnected，不会阻塞调用方
func (c *Client) Publish(topic string, qos byte, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			c.logger.Warn("发布超时", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			c.logger.Error("发布失败", "topic", topic, "error", err)
		}
	}()
	return nil
}

// PublishWait 同步发布一条消息，等待 broker 确认
func (c *Client) PublishWait(topic string, qos byte, payload []byte) error {
	token := c.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout after %s", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Disconnect 断开连接，最多等待 250ms 让未完成的消息发出
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	c.logger.Info("已断开 MQTT broker")
}
