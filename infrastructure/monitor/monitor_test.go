package monitor

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperbot-go/events"
)

func envOf(typ, symbol string, fields map[string]interface{}) events.Envelope {
	return events.Envelope{
		SchemaVersion: events.SchemaVersion, Sequence: 1,
		Event: events.Event{Type: typ, Ts: time.Now().UTC(), Symbol: symbol, Fields: fields},
	}
}

func TestOnEventCountsByType(t *testing.T) {
	m := New(DefaultConfig())

	require.NoError(t, m.OnEvent(envOf(events.TypeOrderSubmitted, "BTCUSDT", map[string]interface{}{"order_id": "O1", "qty": 1.0})))
	require.NoError(t, m.OnEvent(envOf(events.TypeRiskBlocked, "BTCUSDT", map[string]interface{}{"reason": "daily_stop"})))
	require.NoError(t, m.OnEvent(envOf(events.TypeExecBlocked, "BTCUSDT", map[string]interface{}{"order_id": "O1", "reason": "min_notional"})))
	require.NoError(t, m.OnEvent(envOf(events.TypeKillswitchTripped, "", map[string]interface{}{"equity": 8900.0, "floor": 9000.0})))
	require.NoError(t, m.OnEvent(envOf(events.TypeFeeConversionDegrade, "BTCUSDT", map[string]interface{}{"order_id": "O1", "fee_currency": "BNB"})))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersSubmitted.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersBlocked.WithLabelValues("daily_stop", "BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersBlocked.WithLabelValues("min_notional", "BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.killswitchTrips))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feesDegraded))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues(events.TypeOrderSubmitted))+
		testutil.ToFloat64(m.eventsTotal.WithLabelValues(events.TypeRiskBlocked))+
		testutil.ToFloat64(m.eventsTotal.WithLabelValues(events.TypeExecBlocked))+
		testutil.ToFloat64(m.eventsTotal.WithLabelValues(events.TypeKillswitchTripped))+
		testutil.ToFloat64(m.eventsTotal.WithLabelValues(events.TypeFeeConversionDegrade)))
}

func TestObserveFillSkipsNegativeRealized(t *testing.T) {
	m := New(DefaultConfig())
	m.ObserveFill("BTCUSDT", "taker", 12.5, -100)
	m.ObserveFill("BTCUSDT", "maker", 2.5, 300)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.fillsTotal.WithLabelValues("taker", "BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fillsTotal.WithLabelValues("maker", "BTCUSDT")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.feesPaid.WithLabelValues("BTCUSDT")))
	// 亏损不进入 counter
	assert.Equal(t, 300.0, testutil.ToFloat64(m.realizedPnL.WithLabelValues("BTCUSDT")))
}

func TestEquityAndHaltGauges(t *testing.T) {
	m := New(DefaultConfig())
	m.SetEquity(99500, 100500, 0.00995)
	assert.Equal(t, 99500.0, testutil.ToFloat64(m.equity))
	assert.Equal(t, 100500.0, testutil.ToFloat64(m.peakEquity))

	m.SetHaltFlag("DAILY_STOP", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.haltFlag.WithLabelValues("DAILY_STOP")))
	m.SetHaltFlag("DAILY_STOP", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.haltFlag.WithLabelValues("DAILY_STOP")))
}

func TestJournalErrorCounter(t *testing.T) {
	m := New(DefaultConfig())
	m.IncJournalError("events")
	m.IncJournalError("events")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.journalErrors.WithLabelValues("events")))
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New(DefaultConfig())
	m.SetEquity(100000, 100000, 0)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "paperbot_exec_equity")
}

func TestBlockedReasonFallsBackToUnknown(t *testing.T) {
	m := New(DefaultConfig())
	require.NoError(t, m.OnEvent(envOf(events.TypeRiskBlocked, "BTCUSDT", map[string]interface{}{"reason": 42})))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersBlocked.WithLabelValues("unknown", "BTCUSDT")))
}
