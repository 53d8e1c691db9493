package events

import (
	"sync"
	"time"

	"paperbot-go/internal/id"
)

// Sink 消费事件；实现方不得阻塞发布路径太久（日志、指标、落盘都是追加式）。
type Sink interface {
	OnEvent(env Envelope) error
}

// SinkFunc 适配函数为 Sink。
type SinkFunc func(env Envelope) error

func (f SinkFunc) OnEvent(env Envelope) error { return f(env) }

// Bus 顺序扇出事件到各 Sink。发布路径和交易决策在同一 goroutine 串行，
// 所以 mu 只用于保护订阅列表。
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
	seq   uint64

	// 某个 sink 出错时回调（用于计数/日志），事件继续投递给其余 sink。
	OnSinkError func(sinkIdx int, env Envelope, err error)
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe 注册一个 Sink。
func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Publish 校验事件、赋序列号并扇出。校验失败返回错误，事件不投递。
func (b *Bus) Publish(e Event) (Envelope, error) {
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	if err := Validate(e); err != nil {
		return Envelope{}, err
	}

	b.mu.Lock()
	b.seq++
	env := Envelope{
		SchemaVersion: SchemaVersion,
		CorrelationID: id.New(),
		Sequence:      b.seq,
		Event:         e,
	}
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	onErr := b.OnSinkError
	b.mu.Unlock()

	for i, s := range sinks {
		if err := s.OnEvent(env); err != nil && onErr != nil {
			onErr(i, env, err)
		}
	}
	return env, nil
}

// MustPublish 供内部已构造好的事件使用；校验失败不中断交易循环，错误走 OnSinkError。
func (b *Bus) MustPublish(e Event) Envelope {
	env, err := b.Publish(e)
	if err != nil && b.OnSinkError != nil {
		b.OnSinkError(-1, Envelope{Event: e}, err)
	}
	return env
}
