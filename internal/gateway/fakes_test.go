package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
	"github.com/nerrad567/gray-logic-tpuart/internal/tpuart"
)

// fakeEngine implements Engine. Run blocks until cancelled; tests feed
// events through Bridge.handleEvent directly.
type fakeEngine struct {
	mu        sync.Mutex
	addr      knx.IndividualAddress
	listen    []knx.GroupAddress
	broadcast bool
	sent      []*knx.Telegram
	sendErr   error
	stats     tpuart.Stats
	runErr    error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{addr: knx.IndividualAddress{Area: 1, Line: 1, Member: 250}}
}

func (f *fakeEngine) Run(ctx context.Context, _ tpuart.Handler) error {
	if f.runErr != nil {
		return f.runErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeEngine) NewGroupFrame(ga knx.GroupAddress, firstData uint8, cmd knx.Command, payloadLength int) (*knx.Telegram, error) {
	t := knx.NewTelegram()
	t.SetSourceAddress(f.addr)
	t.SetTargetGroupAddress(ga)
	t.SetFirstDataByte(firstData)
	t.SetCommand(cmd)
	if err := t.SetPayloadLength(payloadLength); err != nil {
		return nil, err
	}
	t.CreateChecksum()
	return t, nil
}

func (f *fakeEngine) Send(t *knx.Telegram) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, t.Clone())
	f.stats.TelegramsTx++
	return nil
}

func (f *fakeEngine) sentTelegrams() []*knx.Telegram {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*knx.Telegram(nil), f.sent...)
}

func (f *fakeEngine) Stats() tpuart.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeEngine) Address() knx.IndividualAddress { return f.addr }

func (f *fakeEngine) AddListenGroupAddress(ga knx.GroupAddress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.listen) >= tpuart.MaxListenGroupAddresses {
		return tpuart.ErrListenTableFull
	}
	f.listen = append(f.listen, ga)
	return nil
}

func (f *fakeEngine) ListenGroupAddresses() []knx.GroupAddress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]knx.GroupAddress(nil), f.listen...)
}

func (f *fakeEngine) SetListenToBroadcasts(listen bool) {
	f.mu.Lock()
	f.broadcast = listen
	f.mu.Unlock()
}

func (f *fakeEngine) ListeningToBroadcasts() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.broadcast
}

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// fakePublisher implements Publisher.
type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	messages  []published
	handlers  map[string]mqtt.MessageHandler
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (p *fakePublisher) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[topic] = handler
	return nil
}

func (p *fakePublisher) Unsubscribe(topic string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, topic)
	return nil
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePublisher) onTopic(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (p *fakePublisher) handler(topic string) mqtt.MessageHandler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handlers[topic]
}

// fakeSeries implements TimeSeries.
type fakeSeries struct {
	mu         sync.Mutex
	telegrams  int
	datapoints []any
	stats      []map[string]any
}

func (s *fakeSeries) WriteTelegram(*knx.Telegram, bool, time.Time) {
	s.mu.Lock()
	s.telegrams++
	s.mu.Unlock()
}

func (s *fakeSeries) WriteDatapoint(_ knx.GroupAddress, _ knx.DPT, _ string, value any, _ time.Time) {
	s.mu.Lock()
	s.datapoints = append(s.datapoints, value)
	s.mu.Unlock()
}

func (s *fakeSeries) WriteEngineStats(fields map[string]any, _ time.Time) {
	s.mu.Lock()
	s.stats = append(s.stats, fields)
	s.mu.Unlock()
}

// fakeRecorder implements AddressRecorder.
type fakeRecorder struct {
	mu        sync.Mutex
	telegrams int
	sent      []SentRecord
}

func (r *fakeRecorder) RecordTelegram(*knx.Telegram, time.Time) {
	r.mu.Lock()
	r.telegrams++
	r.mu.Unlock()
}

func (r *fakeRecorder) RecordSent(rec SentRecord) {
	r.mu.Lock()
	r.sent = append(r.sent, rec)
	r.mu.Unlock()
}

// fakeBroadcaster implements Broadcaster.
type fakeBroadcaster struct {
	mu     sync.Mutex
	msgs   []TelegramMessage
	states []StateMessage
}

func (b *fakeBroadcaster) BroadcastTelegram(msg TelegramMessage) {
	b.mu.Lock()
	b.msgs = append(b.msgs, msg)
	b.mu.Unlock()
}

func (b *fakeBroadcaster) BroadcastState(msg StateMessage) {
	b.mu.Lock()
	b.states = append(b.states, msg)
	b.mu.Unlock()
}

// groupTelegram builds a received group telegram from 1.1.5.
func groupTelegram(ga knx.GroupAddress, cmd knx.Command, set func(*knx.Telegram)) *knx.Telegram {
	t := knx.NewTelegram()
	t.SetSourceAddress(knx.IndividualAddress{Area: 1, Line: 1, Member: 5})
	t.SetTargetGroupAddress(ga)
	t.SetCommand(cmd)
	if set != nil {
		set(t)
	}
	t.CreateChecksum()
	return t
}
