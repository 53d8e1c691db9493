package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"paperbot-go/events"
)

func openTestEventLog(t *testing.T) *EventLog {
	t.Helper()
	l, err := NewEventLog(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func env(seq uint64, typ string) events.Envelope {
	return events.Envelope{
		SchemaVersion: events.SchemaVersion,
		CorrelationID: "01HTEST",
		Sequence:      seq,
		Event: events.Event{
			Type: typ, Ts: time.Now().UTC(), Symbol: "BTCUSDT",
			Fields: map[string]interface{}{"reason": "test"},
		},
	}
}

func TestAppendAndReplayOrdered(t *testing.T) {
	l := openTestEventLog(t)

	// 乱序写入，回放必须按序列号排序
	require.NoError(t, l.Append(env(3, events.TypeOrderFilled)))
	require.NoError(t, l.Append(env(1, events.TypeOrderSubmitted)))
	require.NoError(t, l.Append(env(2, events.TypeRiskBlocked)))

	var seqs []uint64
	require.NoError(t, l.Replay(func(e events.Envelope) error {
		seqs = append(seqs, e.Sequence)
		return nil
	}))
	require.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestAppendIdempotent(t *testing.T) {
	l := openTestEventLog(t)
	e := env(7, events.TypeHeartbeat)
	require.NoError(t, l.Append(e))
	require.NoError(t, l.Append(e))

	n, err := l.Len()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestAppendAssignsSequenceWhenZero(t *testing.T) {
	l := openTestEventLog(t)
	require.NoError(t, l.Append(env(0, events.TypeHeartbeat)))
	require.NoError(t, l.Append(env(0, events.TypeHeartbeat)))

	n, err := l.Len()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestReplaySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	l, err := NewEventLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(env(1, events.TypeOrderSubmitted)))
	require.NoError(t, l.Close())

	l2, err := NewEventLog(path)
	require.NoError(t, err)
	defer l2.Close()

	var got events.Envelope
	require.NoError(t, l2.Replay(func(e events.Envelope) error {
		got = e
		return nil
	}))
	require.Equal(t, events.TypeOrderSubmitted, got.Event.Type)
	require.Equal(t, events.SchemaVersion, got.SchemaVersion)
}

func TestReplayStopsOnCallbackError(t *testing.T) {
	l := openTestEventLog(t)
	require.NoError(t, l.Append(env(1, events.TypeHeartbeat)))
	require.NoError(t, l.Append(env(2, events.TypeHeartbeat)))

	calls := 0
	err := l.Replay(func(e events.Envelope) error {
		calls++
		return errors.New("stop")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
