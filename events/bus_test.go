package events

import (
	"errors"
	"testing"
	"time"
)

type captureSink struct {
	got []Envelope
	err error
}

func (c *captureSink) OnEvent(env Envelope) error {
	c.got = append(c.got, env)
	return c.err
}

func validEvent() Event {
	return Event{
		Type: TypeRiskBlocked, Ts: time.Now().UTC(), Symbol: "BTCUSDT",
		Fields: map[string]interface{}{"reason": "daily_stop"},
	}
}

func TestPublishAssignsSequenceAndCorrelation(t *testing.T) {
	bus := NewBus()
	sink := &captureSink{}
	bus.Subscribe(sink)

	env1, err := bus.Publish(validEvent())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	env2, err := bus.Publish(validEvent())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if env1.Sequence != 1 || env2.Sequence != 2 {
		t.Fatalf("sequences = %d, %d", env1.Sequence, env2.Sequence)
	}
	if env1.CorrelationID == "" || env1.CorrelationID == env2.CorrelationID {
		t.Fatalf("correlation ids not unique: %q %q", env1.CorrelationID, env2.CorrelationID)
	}
	if env1.SchemaVersion != SchemaVersion {
		t.Fatalf("schema version = %q", env1.SchemaVersion)
	}
	if len(sink.got) != 2 {
		t.Fatalf("sink received %d events", len(sink.got))
	}
}

func TestPublishRejectsUnknownType(t *testing.T) {
	bus := NewBus()
	sink := &captureSink{}
	bus.Subscribe(sink)

	_, err := bus.Publish(Event{Type: "mystery", Ts: time.Now()})
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
	if len(sink.got) != 0 {
		t.Fatal("invalid event must not reach sinks")
	}
}

func TestPublishRejectsMissingFields(t *testing.T) {
	bus := NewBus()
	_, err := bus.Publish(Event{Type: TypeOrderFilled, Ts: time.Now(), Symbol: "BTCUSDT"})
	if err == nil {
		t.Fatal("expected error for missing required fields")
	}
}

func TestFanOutContinuesAfterSinkError(t *testing.T) {
	bus := NewBus()
	bad := &captureSink{err: errors.New("disk full")}
	good := &captureSink{}
	bus.Subscribe(bad)
	bus.Subscribe(good)

	var gotIdx int
	var gotErr error
	bus.OnSinkError = func(sinkIdx int, env Envelope, err error) {
		gotIdx = sinkIdx
		gotErr = err
	}

	if _, err := bus.Publish(validEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(good.got) != 1 {
		t.Fatal("second sink should still receive event")
	}
	if gotIdx != 0 || gotErr == nil {
		t.Fatalf("sink error callback: idx=%d err=%v", gotIdx, gotErr)
	}
}

func TestMustPublishRoutesValidationError(t *testing.T) {
	bus := NewBus()
	var called bool
	bus.OnSinkError = func(sinkIdx int, env Envelope, err error) {
		called = true
		if sinkIdx != -1 {
			t.Errorf("expected idx -1 for validation failure, got %d", sinkIdx)
		}
	}
	bus.MustPublish(Event{Type: "mystery", Ts: time.Now()})
	if !called {
		t.Fatal("expected OnSinkError callback")
	}
}

func TestSinkFunc(t *testing.T) {
	bus := NewBus()
	n := 0
	bus.Subscribe(SinkFunc(func(env Envelope) error {
		n++
		return nil
	}))
	bus.MustPublish(validEvent())
	if n != 1 {
		t.Fatalf("SinkFunc called %d times", n)
	}
}

func TestValidateAllKnownTypes(t *testing.T) {
	// 每个注册类型补齐必填字段后都应通过校验
	for _, typ := range Known() {
		fields := make(map[string]interface{})
		for _, key := range schemas[typ].Required {
			fields[key] = "x"
		}
		e := Event{Type: typ, Ts: time.Now(), Fields: fields}
		if err := Validate(e); err != nil {
			t.Errorf("type %s: %v", typ, err)
		}
	}
}

func TestValidateRequiresTs(t *testing.T) {
	e := validEvent()
	e.Ts = time.Time{}
	if err := Validate(e); err == nil {
		t.Fatal("expected error for zero ts")
	}
}
