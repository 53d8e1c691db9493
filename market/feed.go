package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Feed 是外部行情生产者与撮合核心之间的有界队列。
// 核心内部不做任何网络 I/O，bar 由外部喂入。
type Feed struct {
	ch chan Kline
}

func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 256
	}
	return &Feed{ch: make(chan Kline, buffer)}
}

// Push 投递一根 bar；队列满时阻塞，由生产者承担背压。
func (f *Feed) Push(k Kline) { f.ch <- k }

// Bars 返回消费通道。
func (f *Feed) Bars() <-chan Kline { return f.ch }

// Close 结束喂入。
func (f *Feed) Close() { close(f.ch) }

// ReadCSV 从 CSV 读取 K 线序列，列为 ts,open,high,low,close,volume，
// ts 为毫秒时间戳。首行若非数字视为表头跳过。
func ReadCSV(path, symbol string) ([]Kline, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candles: %w", err)
	}
	defer fd.Close()

	r := csv.NewReader(fd)
	var out []Kline
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read candles line %d: %w", line+1, err)
		}
		line++
		if len(rec) < 6 {
			return nil, fmt.Errorf("candles line %d: want 6 columns, got %d", line, len(rec))
		}
		ms, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			if line == 1 {
				continue // 表头
			}
			return nil, fmt.Errorf("candles line %d: bad timestamp %q", line, rec[0])
		}
		vals := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("candles line %d: bad field %q", line, rec[i+1])
			}
			vals[i] = v
		}
		out = append(out, Kline{
			Symbol: symbol,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
			Ts:     time.UnixMilli(ms).UTC(),
		})
	}
	return out, nil
}
