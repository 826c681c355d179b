package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/slotbot/internal/domain"
)

// --- fakes ---

type fakeFeed struct {
	defs  []domain.SlotDefinition
	pulls int
}

func (f *fakeFeed) Pull(_ context.Context, max int, _ time.Time) ([]domain.SlotDefinition, bool, error) {
	f.pulls++
	if len(f.defs) == 0 {
		return nil, true, nil
	}
	n := max
	if n > len(f.defs) {
		n = len(f.defs)
	}
	out := f.defs[:n]
	f.defs = f.defs[n:]
	return out, len(f.defs) == 0, nil
}

type fakePrices struct {
	prices map[string]float64
	err    error
}

func (f *fakePrices) FetchPrice(_ context.Context, tokenID string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.prices[tokenID], nil
}

type fakeStream struct {
	mu     sync.Mutex
	chans  map[string]chan domain.Tick
	unsubs []string
}

func newFakeStream() *fakeStream {
	return &fakeStream{chans: map[string]chan domain.Tick{}}
}

func (f *fakeStream) Subscribe(tokenID string) (<-chan domain.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan domain.Tick, 16)
	f.chans[tokenID] = ch
	return ch, nil
}

func (f *fakeStream) Unsubscribe(tokenID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs = append(f.unsubs, tokenID)
}

func (f *fakeStream) push(tokenID string, tick domain.Tick) {
	f.mu.Lock()
	ch := f.chans[tokenID]
	f.mu.Unlock()
	ch <- tick
}

type fakeStorage struct {
	mu       sync.Mutex
	created  []*domain.Trade
	ticks    map[string]int
	resolved []domain.TradeResult
	equity   float64
}

func newFakeStorage(equity float64) *fakeStorage {
	return &fakeStorage{ticks: map[string]int{}, equity: equity}
}

func (f *fakeStorage) ApplySchema(context.Context) error { return nil }

func (f *fakeStorage) CreateTrade(_ context.Context, t *domain.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, t)
	return nil
}

func (f *fakeStorage) RecordTick(_ context.Context, tradeID string, _ domain.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks[tradeID]++
	return nil
}

func (f *fakeStorage) ResolveTrade(_ context.Context, res domain.TradeResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, res)
	return nil
}

func (f *fakeStorage) CurrentEquity(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.equity, nil
}

func (f *fakeStorage) Stats(context.Context) (domain.LedgerStats, error) {
	return domain.LedgerStats{}, nil
}

func (f *fakeStorage) Close() error { return nil }

type fakeNotifier struct {
	mu        sync.Mutex
	opened    []*domain.Trade
	limitHits []domain.TradeResult
	expired   []domain.TradeResult
	summaries []string
}

func (f *fakeNotifier) TradeOpened(t *domain.Trade, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, t)
}

func (f *fakeNotifier) LimitHit(res domain.TradeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limitHits = append(f.limitHits, res)
}

func (f *fakeNotifier) SlotExpired(res domain.TradeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, res)
}

func (f *fakeNotifier) SlotSummary(label string, _ []domain.TradeResult, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, label)
}

// --- helpers ---

var testNow = time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		MaxConcurrentSlots: 2,
		WindowSize:         5,
		TradeAmountUSD:     30,
		LimitOffset:        0.05,
		TickInterval:       time.Second,
		DrainTimeout:       time.Second,
	}
}

func defAt(label string, start time.Time, markets ...domain.SlotMarket) domain.SlotDefinition {
	return domain.SlotDefinition{
		Label:   label,
		StartAt: start,
		EndAt:   start.Add(time.Hour),
		Markets: markets,
	}
}

func btcMarket() domain.SlotMarket {
	return domain.SlotMarket{Asset: "BTC", YesTokenID: "yes-btc", NoTokenID: "no-btc"}
}

func newTestEngine(feed *fakeFeed, prices *fakePrices, stream *fakeStream, store *fakeStorage, notify *fakeNotifier) *Engine {
	e := New(testConfig(), feed, prices, stream, store, notify)
	e.clock = func() time.Time { return testNow }
	return e
}

func emptyFixtures() (*fakeFeed, *fakePrices, *fakeStream, *fakeStorage, *fakeNotifier) {
	return &fakeFeed{},
		&fakePrices{prices: map[string]float64{}},
		newFakeStream(),
		newFakeStorage(1000),
		&fakeNotifier{}
}

// waitDone reads one completion report or fails the test.
func waitDone(t *testing.T, e *Engine) tradeDone {
	t.Helper()
	select {
	case done := <-e.doneCh:
		return done
	case <-time.After(3 * time.Second):
		t.Fatal("trade never reported completion")
		return tradeDone{}
	}
}

// --- queue behavior ---

func TestTickActivatesOnlyDueSlots(t *testing.T) {
	_, prices, stream, store, notify := emptyFixtures()
	feed := &fakeFeed{defs: []domain.SlotDefinition{
		defAt("due", testNow.Add(-time.Minute)),
		defAt("later", testNow.Add(time.Hour)),
		defAt("much later", testNow.Add(2*time.Hour)),
	}}
	e := newTestEngine(feed, prices, stream, store, notify)

	e.Tick(context.Background(), testNow)

	assert.Equal(t, 1, e.ActiveSlots())
	assert.Equal(t, 2, e.PendingSlots())
}

func TestTickRespectsConcurrencyCap(t *testing.T) {
	_, prices, stream, store, notify := emptyFixtures()
	feed := &fakeFeed{defs: []domain.SlotDefinition{
		defAt("a", testNow.Add(-3*time.Minute)),
		defAt("b", testNow.Add(-2*time.Minute)),
		defAt("c", testNow.Add(-time.Minute)),
	}}
	e := newTestEngine(feed, prices, stream, store, notify)

	e.Tick(context.Background(), testNow)

	assert.Equal(t, 2, e.ActiveSlots(), "never more than the cap")
	assert.Equal(t, 1, e.PendingSlots())
}

func TestTickDropsAlreadyEndedSlots(t *testing.T) {
	_, prices, stream, store, notify := emptyFixtures()
	feed := &fakeFeed{defs: []domain.SlotDefinition{
		defAt("stale", testNow.Add(-2*time.Hour)), // ended an hour ago
		defAt("due", testNow.Add(-time.Minute)),
	}}
	e := newTestEngine(feed, prices, stream, store, notify)

	e.Tick(context.Background(), testNow)

	require.Equal(t, 1, e.ActiveSlots())
	assert.Equal(t, "due", e.active[0].slot.Definition.Label)
	assert.Equal(t, 0, e.PendingSlots())
}

func TestTickHeadOfLineBlocks(t *testing.T) {
	_, prices, stream, store, notify := emptyFixtures()
	// The head is not due yet; nothing behind it may jump the queue.
	feed := &fakeFeed{defs: []domain.SlotDefinition{
		defAt("head", testNow.Add(30*time.Minute)),
		defAt("behind", testNow.Add(-time.Minute)),
	}}
	e := newTestEngine(feed, prices, stream, store, notify)

	e.Tick(context.Background(), testNow)

	assert.Equal(t, 0, e.ActiveSlots())
	assert.Equal(t, 2, e.PendingSlots())
}

func TestTickRefillsOnlyWhenEmpty(t *testing.T) {
	_, prices, stream, store, notify := emptyFixtures()
	feed := &fakeFeed{defs: []domain.SlotDefinition{
		defAt("later", testNow.Add(time.Hour)),
	}}
	e := newTestEngine(feed, prices, stream, store, notify)

	e.Tick(context.Background(), testNow)
	e.Tick(context.Background(), testNow)
	e.Tick(context.Background(), testNow)

	assert.Equal(t, 1, feed.pulls, "buffered definitions are not re-pulled")
}

// --- trade lifecycle ---

func TestTradeLimitHit(t *testing.T) {
	_, _, stream, store, notify := emptyFixtures()
	prices := &fakePrices{prices: map[string]float64{"yes-btc": 0.62, "no-btc": 0.41}}
	e := newTestEngine(&fakeFeed{}, prices, stream, store, notify)

	def := defAt("slot", testNow)
	slot := domain.NewSlot(def)
	go e.runTrade(context.Background(), slot, btcMarket())

	// Wait for the subscription so pushes land on the live channel.
	require.Eventually(t, func() bool {
		stream.mu.Lock()
		defer stream.mu.Unlock()
		return stream.chans["yes-btc"] != nil
	}, time.Second, 5*time.Millisecond)

	stream.push("yes-btc", domain.Tick{At: testNow, Bid: 0.63, Ask: 0.65})
	stream.push("yes-btc", domain.Tick{At: testNow, Bid: 0.68, Ask: 0.70})

	done := waitDone(t, e)
	require.NotNil(t, done.result)

	tr := done.result.Trade
	assert.Equal(t, domain.SideYes, tr.Side)
	assert.InDelta(t, 0.62, tr.EntryPrice, 1e-9)
	assert.Equal(t, domain.OutcomeLimitHit, tr.Outcome)
	assert.InDelta(t, 0.67, tr.ExitPrice, 1e-9, "exit is the limit, not the bid that crossed it")
	assert.InDelta(t, 30/0.62*0.05, done.result.PnLUSD, 1e-6)

	require.Len(t, store.resolved, 1)
	assert.Equal(t, []string{"yes-btc"}, stream.unsubs)
	assert.Len(t, notify.limitHits, 1)
	assert.Empty(t, notify.expired)
}

func TestTradeSlotExpired(t *testing.T) {
	_, _, stream, store, notify := emptyFixtures()
	prices := &fakePrices{prices: map[string]float64{"yes-btc": 0.44, "no-btc": 0.60}}
	e := newTestEngine(&fakeFeed{}, prices, stream, store, notify)
	e.clock = time.Now // real deadline timer needs a real clock here

	def := domain.SlotDefinition{
		Label:   "short",
		StartAt: time.Now(),
		EndAt:   time.Now().Add(300 * time.Millisecond),
		Markets: []domain.SlotMarket{btcMarket()},
	}
	slot := domain.NewSlot(def)
	go e.runTrade(context.Background(), slot, btcMarket())

	require.Eventually(t, func() bool {
		stream.mu.Lock()
		defer stream.mu.Unlock()
		return stream.chans["no-btc"] != nil
	}, time.Second, 5*time.Millisecond)

	stream.push("no-btc", domain.Tick{At: time.Now(), Bid: 0.58, Ask: 0.61})
	stream.push("no-btc", domain.Tick{At: time.Now(), Bid: 0.53, Ask: 0.57})

	done := waitDone(t, e)
	require.NotNil(t, done.result)

	tr := done.result.Trade
	assert.Equal(t, domain.SideNo, tr.Side)
	assert.Equal(t, domain.OutcomeSlotExpired, tr.Outcome)
	assert.InDelta(t, 0.53, tr.ExitPrice, 1e-9, "exit at the last observed bid")
	assert.Less(t, done.result.PnLUSD, 0.0)
	assert.Len(t, notify.expired, 1)
	assert.Empty(t, notify.limitHits)
}

func TestTradeExpiredWithoutTicks(t *testing.T) {
	_, _, stream, store, notify := emptyFixtures()
	prices := &fakePrices{prices: map[string]float64{"yes-btc": 0.55, "no-btc": 0.45}}
	e := newTestEngine(&fakeFeed{}, prices, stream, store, notify)
	e.clock = time.Now

	def := domain.SlotDefinition{
		Label:   "silent",
		StartAt: time.Now(),
		EndAt:   time.Now().Add(200 * time.Millisecond),
		Markets: []domain.SlotMarket{btcMarket()},
	}
	go e.runTrade(context.Background(), domain.NewSlot(def), btcMarket())

	done := waitDone(t, e)
	require.NotNil(t, done.result)

	tr := done.result.Trade
	assert.Equal(t, domain.OutcomeSlotExpired, tr.Outcome)
	assert.InDelta(t, tr.EntryPrice, tr.ExitPrice, 1e-9, "no ticks means exit at entry")
	assert.InDelta(t, 0.0, done.result.PnLUSD, 1e-9)
	assert.Zero(t, done.result.Metrics.TickCount)
}

func TestTradeOpenFailureNotPersisted(t *testing.T) {
	_, _, stream, store, notify := emptyFixtures()
	prices := &fakePrices{err: errors.New("api down")}
	e := newTestEngine(&fakeFeed{}, prices, stream, store, notify)

	go e.runTrade(context.Background(), domain.NewSlot(defAt("slot", testNow)), btcMarket())

	done := waitDone(t, e)
	assert.Nil(t, done.result)
	assert.Empty(t, store.created, "failed opens never reach the ledger")
	assert.Empty(t, notify.opened)
}

func TestTradeDegeneratePriceRejected(t *testing.T) {
	_, _, stream, store, notify := emptyFixtures()
	prices := &fakePrices{prices: map[string]float64{"yes-btc": 0, "no-btc": 0}}
	e := newTestEngine(&fakeFeed{}, prices, stream, store, notify)

	go e.runTrade(context.Background(), domain.NewSlot(defAt("slot", testNow)), btcMarket())

	done := waitDone(t, e)
	assert.Nil(t, done.result)
	assert.Empty(t, store.created)
}

func TestEquityAfterReflectsPnL(t *testing.T) {
	_, _, stream, _, notify := emptyFixtures()
	store := newFakeStorage(1000)
	prices := &fakePrices{prices: map[string]float64{"yes-btc": 0.60, "no-btc": 0.40}}
	e := newTestEngine(&fakeFeed{}, prices, stream, store, notify)

	slot := domain.NewSlot(defAt("slot", testNow))
	go e.runTrade(context.Background(), slot, btcMarket())

	require.Eventually(t, func() bool {
		stream.mu.Lock()
		defer stream.mu.Unlock()
		return stream.chans["yes-btc"] != nil
	}, time.Second, 5*time.Millisecond)

	stream.push("yes-btc", domain.Tick{At: testNow, Bid: 0.65, Ask: 0.67})

	done := waitDone(t, e)
	require.NotNil(t, done.result)
	// 50 shares * 0.05 = $2.50 on top of the $1000 ledger.
	assert.InDelta(t, 1002.5, done.result.EquityAfter, 1e-6)
}

// --- reap ---

func TestReapEmitsSummaryWhenSlotFinishes(t *testing.T) {
	_, prices, stream, store, notify := emptyFixtures()
	e := newTestEngine(&fakeFeed{}, prices, stream, store, notify)

	def := defAt("done slot", testNow.Add(-2*time.Hour))
	slot := domain.NewSlot(def)
	e.active = append(e.active, &activeSlot{
		slot:      slot,
		remaining: 0,
		results:   []domain.TradeResult{{Trade: &domain.Trade{Asset: "BTC"}, PnLUSD: 2.5}},
	})

	e.Reap(testNow)

	assert.Equal(t, 0, e.ActiveSlots())
	assert.Equal(t, domain.SlotResolved, slot.State)
	assert.Equal(t, []string{"done slot"}, notify.summaries)
}

func TestReapKeepsUnfinishedSlots(t *testing.T) {
	_, prices, stream, store, notify := emptyFixtures()
	e := newTestEngine(&fakeFeed{}, prices, stream, store, notify)

	// Window elapsed but one trade still running.
	stillTrading := &activeSlot{slot: domain.NewSlot(defAt("busy", testNow.Add(-2*time.Hour))), remaining: 1}
	// All trades done but window still open.
	windowOpen := &activeSlot{slot: domain.NewSlot(defAt("open", testNow.Add(-time.Minute))), remaining: 0}
	e.active = append(e.active, stillTrading, windowOpen)

	e.Reap(testNow)

	assert.Equal(t, 2, e.ActiveSlots())
	assert.Empty(t, notify.summaries)
}

func TestRecordDoneDecrementsAndCollects(t *testing.T) {
	_, prices, stream, store, notify := emptyFixtures()
	e := newTestEngine(&fakeFeed{}, prices, stream, store, notify)

	slot := domain.NewSlot(defAt("slot", testNow))
	e.active = append(e.active, &activeSlot{slot: slot, remaining: 2})

	tr := &domain.Trade{Asset: "BTC"}
	e.recordDone(tradeDone{slotID: slot.ID, result: &domain.TradeResult{Trade: tr, PnLUSD: 1}})
	e.recordDone(tradeDone{slotID: slot.ID}) // errored trade, nil result

	as := e.active[0]
	assert.Equal(t, 0, as.remaining)
	assert.Len(t, as.results, 1)
	assert.Equal(t, []*domain.Trade{tr}, slot.Trades)
}
