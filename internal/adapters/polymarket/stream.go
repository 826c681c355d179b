package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/slotbot/internal/domain"
)

const (
	defaultWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

	pingInterval     = 10 * time.Second
	reconnectBase    = 3 * time.Second
	reconnectMax     = 30 * time.Second
	handshakeTimeout = 10 * time.Second

	// Per-token tick buffer. A slow consumer drops ticks rather than
	// blocking the read loop for everyone else.
	tickBuffer = 64
)

// Stream owns the single market-data websocket connection shared by all open
// trades. Subscribe/Unsubscribe mutate the subscription set; the read loop is
// the only reader of the connection, and all writes go through writeJSON.
type Stream struct {
	url string

	mu   sync.RWMutex // guards subs
	subs map[string]chan domain.Tick

	writeMu sync.Mutex // serializes writes on conn
	conn    *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStream creates a Stream for the given websocket URL.
// If url is empty, the production endpoint is used.
func NewStream(url string) *Stream {
	if url == "" {
		url = defaultWSURL
	}
	return &Stream{
		url:  url,
		subs: make(map[string]chan domain.Tick),
		done: make(chan struct{}),
	}
}

// Start connects and launches the read and ping loops. The stream keeps
// reconnecting until ctx is cancelled; connection loss never surfaces to
// subscribers, they simply stop receiving ticks until reconnect succeeds.
func (s *Stream) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.connect(); err != nil {
		return fmt.Errorf("polymarket.Stream: initial connect: %w", err)
	}

	go s.readLoop()
	go s.pingLoop()
	return nil
}

// Stop tears the connection down and stops the loops.
func (s *Stream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.writeMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
		s.conn = nil
	}
	s.writeMu.Unlock()

	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		slog.Warn("stream: shutdown timed out waiting for read loop")
	}
}

// Subscribe adds the token to the subscription set and returns its tick
// channel. If the connection is down, the registration still happens and the
// next reconnect picks it up.
func (s *Stream) Subscribe(tokenID string) (<-chan domain.Tick, error) {
	s.mu.Lock()
	ch, exists := s.subs[tokenID]
	if !exists {
		ch = make(chan domain.Tick, tickBuffer)
		s.subs[tokenID] = ch
	}
	s.mu.Unlock()

	if exists {
		return ch, nil
	}

	if err := s.writeJSON(subscribeOp{Operation: "subscribe", AssetsIDs: []string{tokenID}}); err != nil {
		// Not fatal: the reconnect resubscribes the whole set.
		slog.Warn("stream: subscribe op failed, will resend on reconnect", "err", err)
	}
	return ch, nil
}

// Unsubscribe withdraws interest in the token and closes its channel.
func (s *Stream) Unsubscribe(tokenID string) {
	s.mu.Lock()
	ch, ok := s.subs[tokenID]
	if ok {
		delete(s.subs, tokenID)
		close(ch)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	if err := s.writeJSON(subscribeOp{Operation: "unsubscribe", AssetsIDs: []string{tokenID}}); err != nil {
		slog.Warn("stream: unsubscribe op failed", "token", shortToken(tokenID), "err", err)
	}
}

// SubscriptionCount returns the number of tokens currently subscribed.
func (s *Stream) SubscriptionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// subscribeOp is the incremental subscribe/unsubscribe payload.
type subscribeOp struct {
	Operation string   `json:"operation"`
	AssetsIDs []string `json:"assets_ids"`
}

// initialSub is the payload sent right after (re)connecting.
type initialSub struct {
	AssetsIDs   []string `json:"assets_ids"`
	Type        string   `json:"type"`
	InitialDump bool     `json:"initial_dump"`
}

// marketMessage is an inbound market event. The CLOB sends prices as strings.
type marketMessage struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
	Timestamp string `json:"timestamp"` // epoch millis
}

// connect dials and re-subscribes the current set.
func (s *Stream) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.writeMu.Unlock()

	s.mu.RLock()
	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	if len(ids) > 0 {
		if err := s.writeJSON(initialSub{AssetsIDs: ids, Type: "market", InitialDump: true}); err != nil {
			return fmt.Errorf("initial subscribe: %w", err)
		}
	}
	slog.Info("stream: connected", "subscriptions", len(ids))
	return nil
}

// writeJSON serializes one write on the connection.
func (s *Stream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	return s.conn.WriteJSON(v)
}

// readLoop reads frames until the context is cancelled, reconnecting with
// capped backoff on error.
func (s *Stream) readLoop() {
	defer close(s.done)

	backoff := reconnectBase
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.writeMu.Lock()
		conn := s.conn
		s.writeMu.Unlock()

		if conn == nil {
			if !s.sleepBackoff(&backoff) {
				return
			}
			if err := s.connect(); err != nil {
				slog.Warn("stream: reconnect failed", "err", err, "next_in", backoff)
			}
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			slog.Warn("stream: read error, reconnecting", "err", err)
			s.writeMu.Lock()
			if s.conn != nil {
				s.conn.Close()
				s.conn = nil
			}
			s.writeMu.Unlock()
			continue
		}
		backoff = reconnectBase
		s.handleFrame(data)
	}
}

// sleepBackoff waits for the current backoff, doubling it up to the cap.
// Returns false if the context was cancelled while waiting.
func (s *Stream) sleepBackoff(backoff *time.Duration) bool {
	select {
	case <-s.ctx.Done():
		return false
	case <-time.After(*backoff):
	}
	if *backoff < reconnectMax {
		*backoff *= 2
		if *backoff > reconnectMax {
			*backoff = reconnectMax
		}
	}
	return true
}

// pingLoop keeps the connection alive with the CLOB's json ping.
func (s *Stream) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeJSON(map[string]string{"type": "ping"}); err != nil {
				slog.Debug("stream: ping failed", "err", err)
			}
		}
	}
}

// handleFrame parses one frame (single message or batch) and routes ticks.
func (s *Stream) handleFrame(data []byte) {
	if len(data) == 0 {
		return
	}
	// Non-JSON frames (PONG text) are dropped.
	if data[0] != '{' && data[0] != '[' {
		return
	}

	var msgs []marketMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &msgs); err != nil {
			return
		}
	} else {
		var msg marketMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		msgs = []marketMessage{msg}
	}

	for _, msg := range msgs {
		if msg.EventType != "best_bid_ask" {
			continue
		}
		s.deliver(msg)
	}
}

// deliver routes one best_bid_ask event to its subscriber, if any.
// A full channel drops the tick instead of blocking the read loop.
func (s *Stream) deliver(msg marketMessage) {
	bid, err := strconv.ParseFloat(msg.BestBid, 64)
	if err != nil {
		return
	}
	ask, err := strconv.ParseFloat(msg.BestAsk, 64)
	if err != nil {
		return
	}

	tick := domain.Tick{At: parseMillis(msg.Timestamp), Bid: bid, Ask: ask}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.subs[msg.AssetID]
	if !ok {
		return // nobody listening for this token anymore
	}
	select {
	case ch <- tick:
	default:
		slog.Warn("stream: tick buffer full, dropping", "token", shortToken(msg.AssetID))
	}
}

// parseMillis converts an epoch-millis string to a time, falling back to now.
func parseMillis(ts string) time.Time {
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}

// shortToken truncates a token id for log lines.
func shortToken(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10] + "…"
}
