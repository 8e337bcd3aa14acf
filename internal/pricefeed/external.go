package pricefeed

import (
	"context"
	"encoding/json"
	"time"

	"citadel/internal/common"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Quote is the normalized shape an upstream feed's push message decodes
// into before becoming a PriceTick. Real upstream wire formats (e.g. a
// Binance-style ticker stream) are adapted into this by a small
// per-exchange parser; only the delivery contract matters here (spec.md
// §1 "described only by their interfaces").
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	SourceSeq uint64
}

// Dialer abstracts websocket.DefaultDialer so tests can substitute a fake
// transport without opening real sockets.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader map[string][]string) (*websocket.Conn, error)
}

// External consumes a push stream of Quotes from an upstream source over
// a WebSocket connection (grounded on the pack's use of
// github.com/gorilla/websocket for exchange feeds: DimaJoyti's crypto
// browser and other_examples/limitless). On reconnect, upstream
// source_seq may reset; External always assigns its own monotonic
// internal_seq regardless (spec.md §4.3 Guarantees).
type External struct {
	url    string
	dialer Dialer

	internalSeq uint64
	backoff     time.Duration
}

const (
	backoffInitial = 250 * time.Millisecond
	backoffCap     = 8 * time.Second
)

// NewExternal constructs an adapter pointed at url. Passing a nil dialer
// uses websocket.DefaultDialer.
func NewExternal(url string, dialer Dialer) *External {
	return &External{url: url, dialer: dialer, backoff: backoffInitial}
}

// Run connects, reads Quotes, and emits PriceTicks onto out until ctx is
// canceled. Connection failures trigger reconnection with exponential
// backoff (250ms -> 8s cap, spec.md §5); no in-flight price is lost
// across a reconnect because External never acknowledges anything
// externally — it simply resumes reading and keeps its own internal_seq
// counting up.
func (e *External) Run(ctx context.Context, out chan<- PriceTick) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := e.dial(ctx)
		if err != nil {
			log.Error().Err(err).Dur("backoff", e.backoff).Msg("pricefeed: dial failed, backing off")
			if !sleep(ctx, e.backoff) {
				return
			}
			e.backoff = nextBackoff(e.backoff)
			continue
		}
		e.backoff = backoffInitial

		if err := e.readLoop(ctx, conn, out); err != nil {
			log.Error().Err(err).Msg("pricefeed: connection lost, reconnecting")
		}
		conn.Close()
	}
}

func (e *External) dial(ctx context.Context) (*websocket.Conn, error) {
	if e.dialer != nil {
		return e.dialer.DialContext(ctx, e.url, nil)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, e.url, nil)
	return conn, err
}

func (e *External) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- PriceTick) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var q Quote
		if err := json.Unmarshal(raw, &q); err != nil {
			log.Warn().Err(err).Msg("pricefeed: dropping unparsable quote")
			continue
		}

		e.internalSeq++
		tick := PriceTick{
			Symbol:      common.Symbol(q.Symbol),
			Price:       common.NewPrice(q.Price),
			SourceSeq:   q.SourceSeq,
			InternalSeq: e.internalSeq,
			ReceivedMs:  uint64(time.Now().UnixMilli()),
		}
		select {
		case out <- tick:
		case <-ctx.Done():
			return nil
		}
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > backoffCap {
		return backoffCap
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
