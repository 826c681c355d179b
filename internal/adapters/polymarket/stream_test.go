package polymarket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/slotbot/internal/domain"
)

func TestHandleFrameSingleMessage(t *testing.T) {
	s := NewStream("ws://unused")
	ch, err := s.Subscribe("111111")
	require.NoError(t, err)

	s.handleFrame([]byte(`{
		"event_type": "best_bid_ask",
		"asset_id": "111111",
		"best_bid": "0.62",
		"best_ask": "0.64",
		"timestamp": "1771581600000"
	}`))

	select {
	case tick := <-ch:
		assert.InDelta(t, 0.62, tick.Bid, 1e-9)
		assert.InDelta(t, 0.64, tick.Ask, 1e-9)
		assert.Equal(t, time.UnixMilli(1771581600000).UTC(), tick.At)
	default:
		t.Fatal("tick not delivered")
	}
}

func TestHandleFrameBatch(t *testing.T) {
	s := NewStream("ws://unused")
	ch, err := s.Subscribe("111111")
	require.NoError(t, err)

	s.handleFrame([]byte(`[
		{"event_type": "best_bid_ask", "asset_id": "111111", "best_bid": "0.60", "best_ask": "0.63", "timestamp": "1"},
		{"event_type": "price_change", "asset_id": "111111", "best_bid": "0.99", "best_ask": "0.99", "timestamp": "2"},
		{"event_type": "best_bid_ask", "asset_id": "111111", "best_bid": "0.61", "best_ask": "0.64", "timestamp": "3"}
	]`))

	require.Len(t, ch, 2, "solo eventos best_bid_ask")
	first := <-ch
	assert.InDelta(t, 0.60, first.Bid, 1e-9)
}

func TestHandleFrameIgnoresGarbage(t *testing.T) {
	s := NewStream("ws://unused")
	ch, err := s.Subscribe("111111")
	require.NoError(t, err)

	s.handleFrame([]byte("PONG"))
	s.handleFrame([]byte(""))
	s.handleFrame([]byte(`{"event_type": "best_bid_ask", "asset_id": "111111", "best_bid": "nan?", "best_ask": "0.64"}`))
	s.handleFrame([]byte(`{broken json`))

	assert.Empty(t, ch)
}

func TestDeliverUnknownTokenDropped(t *testing.T) {
	s := NewStream("ws://unused")

	// Sin suscripción no hay panic ni bloqueo.
	s.handleFrame([]byte(`{"event_type": "best_bid_ask", "asset_id": "999999", "best_bid": "0.5", "best_ask": "0.6", "timestamp": "1"}`))
	assert.Zero(t, s.SubscriptionCount())
}

func TestDeliverDropsWhenBufferFull(t *testing.T) {
	s := NewStream("ws://unused")
	ch, err := s.Subscribe("111111")
	require.NoError(t, err)

	for i := 0; i < tickBuffer+10; i++ {
		s.deliver(marketMessage{
			EventType: "best_bid_ask", AssetID: "111111",
			BestBid: "0.50", BestAsk: "0.52", Timestamp: "1",
		})
	}
	assert.Len(t, ch, tickBuffer, "el buffer lleno descarta en vez de bloquear")
}

func TestSubscribeBookkeeping(t *testing.T) {
	s := NewStream("ws://unused")

	ch1, err := s.Subscribe("111111")
	require.NoError(t, err)
	ch2, err := s.Subscribe("111111")
	require.NoError(t, err)
	assert.Equal(t, 1, s.SubscriptionCount(), "suscripción duplicada reutiliza el canal")

	var c1 <-chan domain.Tick = ch1
	var c2 <-chan domain.Tick = ch2
	assert.Equal(t, c1, c2)

	s.Unsubscribe("111111")
	assert.Zero(t, s.SubscriptionCount())

	_, open := <-ch1
	assert.False(t, open, "unsubscribe cierra el canal")

	// Unsubscribe repetido es inocuo.
	s.Unsubscribe("111111")
}

func TestParseMillisFallback(t *testing.T) {
	at := parseMillis("1771581600000")
	assert.Equal(t, time.UnixMilli(1771581600000).UTC(), at)

	before := time.Now().UTC()
	fallback := parseMillis("not-a-number")
	assert.False(t, fallback.Before(before.Add(-time.Second)))
}
