package mqtt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"factory-cell-controller/internal/command"
	"factory-cell-controller/internal/event"
	"factory-cell-controller/internal/types"
)

type capture struct {
	msgs []Message
	err  error
}

func (c *capture) Publish(topic string, qos byte, payload []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, Message{Topic: topic, QoS: qos, Payload: payload})
	return nil
}

func TestEncodeJobNotice(t *testing.T) {
	msg, err := Encode(event.Event{Type: event.JobNotice, Notice: types.NewJobStatusNotice(0, "Started")})
	if err != nil {
		t.Fatalf("Encode 失败: %v", err)
	}
	if msg.Topic != TopicJobNotice || msg.QoS != 2 {
		t.Errorf("任务通知应发往 %s qos 2, 得到 %s qos %d", TopicJobNotice, msg.Topic, msg.QoS)
	}
	want := `{"msg_type":"job_status","job_id":0,"message":"Started"}`
	if string(msg.Payload) != want {
		t.Errorf("预期 %s, 得到 %s", want, msg.Payload)
	}

	msg, _ = Encode(event.Event{Type: event.JobNotice, Notice: types.NewErrorNotice("Job id 999 not found")})
	if strings.Contains(string(msg.Payload), "job_id") {
		t.Errorf("错误通知不应带 job_id, 得到 %s", msg.Payload)
	}
}

func TestEncodeStatusAndInventory(t *testing.T) {
	pub := &capture{}
	status := types.StatusReport{FactoryStatus: "Ready", CurrentJob: "None", JobQueueLen: "0"}
	if err := Forward(pub, event.Event{Type: event.Status, Status: status}); err != nil {
		t.Fatalf("Forward 失败: %v", err)
	}
	inv := types.InventoryReport{Inventory: map[types.Color]int{types.ColorWhite: 1}}
	if err := Forward(pub, event.Event{Type: event.Inventory, Inventory: inv}); err != nil {
		t.Fatalf("Forward 失败: %v", err)
	}

	if len(pub.msgs) != 2 {
		t.Fatalf("预期 2 条消息, 得到 %d", len(pub.msgs))
	}
	if pub.msgs[0].Topic != TopicStatus || pub.msgs[0].QoS != 0 {
		t.Errorf("状态主题错误: %+v", pub.msgs[0])
	}
	var gotStatus map[string]string
	if err := json.Unmarshal(pub.msgs[0].Payload, &gotStatus); err != nil {
		t.Fatalf("状态负载不是 JSON: %v", err)
	}
	if gotStatus["factory_status"] != "Ready" || gotStatus["current_job"] != "None" || gotStatus["job_queue_len"] != "0" {
		t.Errorf("状态负载错误: %s", pub.msgs[0].Payload)
	}
	if pub.msgs[1].Topic != TopicInventory || string(pub.msgs[1].Payload) != `{"Inventory":{"white":1}}` {
		t.Errorf("库存消息错误: %s %s", pub.msgs[1].Topic, pub.msgs[1].Payload)
	}
}

func TestForwardPropagatesPublishError(t *testing.T) {
	pub := &capture{err: ErrNotConnected}
	err := Forward(pub, event.Event{Type: event.Status})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("预期 ErrNotConnected, 得到 %v", err)
	}
	if _, err := Encode(event.Event{Type: "Unknown"}); err == nil {
		t.Error("未知事件类型应返回错误")
	}
}

func newTestClient(inboxSize int) (*Client, *command.Inbox) {
	inbox := command.NewInbox(inboxSize)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(Options{Broker: "tcp://127.0.0.1:1"}, inbox, logger), inbox
}

func TestHandleMessageRoutesCommands(t *testing.T) {
	c, inbox := newTestClient(8)
	if !strings.HasPrefix(c.opts.ClientID, "cell-controller-") {
		t.Errorf("应生成默认 client id, 得到 %s", c.opts.ClientID)
	}

	c.HandleMessage(command.TopicCancelJob, []byte(`{"job_id":3}`))
	c.HandleMessage(command.TopicAddJob, []byte(`{broken`))
	c.HandleMessage(TopicStatus, []byte(`{"factory_status":"Ready"}`))

	var got []command.Command
	inbox.Drain(func(cmd command.Command) { got = append(got, cmd) })
	if len(got) != 2 {
		t.Fatalf("出站主题的回显应被忽略, 预期 2 条命令, 得到 %d", len(got))
	}
	if got[0].Kind != command.KindCancelJob || got[0].JobID != 3 {
		t.Errorf("预期取消任务 3, 得到 %+v", got[0])
	}
	if got[1].Kind != command.KindInvalid || !errors.Is(got[1].Err, command.ErrMalformed) {
		t.Errorf("无法解析的负载应作为无效命令投递, 得到 %+v", got[1])
	}
}

func TestHandleMessageDropsWhenInboxFull(t *testing.T) {
	c, inbox := newTestClient(1)
	c.HandleMessage(command.TopicCancelJob, []byte(`{"job_id":1}`))
	c.HandleMessage(command.TopicCancelJob, []byte(`{"job_id":2}`))
	if inbox.Len() != 1 {
		t.Errorf("收件箱已满时应丢弃命令, Len=%d", inbox.Len())
	}
}

func TestPublishWithoutConnection(t *testing.T) {
	c, _ := newTestClient(1)
	if err := c.Publish(TopicStatus, 0, []byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("未连接时预期 ErrNotConnected, 得到 %v", err)
	}
}

// stubToken 是一个可控的 paho.Token
type stubToken struct {
	done chan struct{}
	err  error
}

func (s *stubToken) Wait() bool { <-s.done; return true }

func (s *stubToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-s.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (s *stubToken) Done() <-chan struct{} { return s.done }

func (s *stubToken) Error() error { return s.err }

func TestWaitTokenTimeoutIsError(t *testing.T) {
	pending := &stubToken{done: make(chan struct{})}
	if err := waitToken(pending, 10*time.Millisecond); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("未完成的 token 应返回超时错误, 得到 %v", err)
	}

	refused := &stubToken{done: make(chan struct{}), err: errors.New("not authorized")}
	close(refused.done)
	if err := waitToken(refused, time.Second); err == nil || err.Error() != "not authorized" {
		t.Errorf("应返回 token 的错误, 得到 %v", err)
	}

	ok := &stubToken{done: make(chan struct{})}
	close(ok.done)
	if err := waitToken(ok, time.Second); err != nil {
		t.Errorf("成功的 token 不应返回错误, 得到 %v", err)
	}
}
