package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"paperbot-go/events"
)

const bucketEvents = "events"

// EventLog 是 append-only 的决策日志。键为大端序列号，保证按发布顺序遍历，
// Replay 即恢复路径。
type EventLog struct {
	db *bolt.DB
}

func NewEventLog(path string) (*EventLog, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketEvents))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &EventLog{db: db}, nil
}

// Append 落盘一条事件信封。同一序列号重复写入是幂等的（重放场景）。
func (l *EventLog) Append(env events.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketEvents))
		var key [8]byte
		seq := env.Sequence
		if seq == 0 {
			next, err := b.NextSequence()
			if err != nil {
				return err
			}
			seq = next
		}
		binary.BigEndian.PutUint64(key[:], seq)
		return b.Put(key[:], raw)
	})
}

// OnEvent 实现 events.Sink。
func (l *EventLog) OnEvent(env events.Envelope) error {
	return l.Append(env)
}

// Replay 按序列号顺序回放全部事件；fn 返回错误则中止。
func (l *EventLog) Replay(fn func(env events.Envelope) error) error {
	return l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketEvents)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var env events.Envelope
			if err := json.Unmarshal(v, &env); err != nil {
				return fmt.Errorf("decode event %x: %w", k, err)
			}
			if err := fn(env); err != nil {
				return err
			}
		}
		return nil
	})
}

// Len 返回已落盘事件数。
func (l *EventLog) Len() (int, error) {
	n := 0
	err := l.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketEvents)).Stats().KeyN
		return nil
	})
	return n, err
}

func (l *EventLog) Close() error {
	return l.db.Close()
}
