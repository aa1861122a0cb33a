package mqtt

import (
	"encoding/json"
	"fmt"

	"factory-cell-controller/internal/event"
)

// 出站主题
const (
	TopicJobNotice = "Factory/Job_notice"
	TopicStatus    = "Factory/Status"
	TopicInventory = "Factory/Inventory"
)

// Publisher 是发布出站消息的最小接口，*Client 实现它
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// Message 是一条待发布的出站消息
type Message struct {
	Topic   string
	QoS     byte
	Payload []byte
}

// Encode 把总线事件转换为出站消息
// 任务通知使用 qos 2，状态和库存为周期性广播，使用 qos 0
func Encode(e event.Event) (Message, error) {
	var (
		msg Message
		v   any
	)
	switch e.Type {
	case event.JobNotice:
		msg.Topic, msg.QoS, v = TopicJobNotice, 2, e.Notice
	case event.Status:
		msg.Topic, msg.QoS, v = TopicStatus, 0, e.Status
	case event.Inventory:
		msg.Topic, msg.QoS, v = TopicInventory, 0, e.Inventory
	default:
		return msg, fmt.Errorf("no topic for event type %s", e.Type)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return msg, fmt.Errorf("encode %s: %w", e.Type, err)
	}
	msg.Payload = payload
	return msg, nil
}

// Forward 编码事件并通过 pub 发布
func Forward(pub Publisher, e event.Event) error {
	msg, err := Encode(e)
	if err != nil {
		return err
	}
	return pub.Publish(msg.Topic, msg.QoS, msg.Payload)
}
