// Package orchestrator wires Oracle, Titan, Sentinel and the price feed
// together, owns every component's lifecycle, and is the single point
// through which events converge on Oracle's serialization (spec.md §2,
// §4.5). It is grounded on the teacher's internal/net/server.go and
// internal/worker.go: a gopkg.in/tomb.v2-supervised goroutine tree with a
// bounded channel as the single inbox, generalized from one TCP server
// loop to the whole component graph.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"citadel/internal/common"
	"citadel/internal/config"
	"citadel/internal/events"
	"citadel/internal/oracle"
	"citadel/internal/pricefeed"
	"citadel/internal/sentinel"
	"citadel/internal/titan"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// FatalError is returned by Run when a component hits a failure that
// spec.md §7 classifies as fatal (store failure, overflow, protocol
// violation at startup). ExitCode matches spec.md §6.
type FatalError struct {
	ExitCode int
	Err      error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// OrderRequest is what a caller (the ingress layer, or a test) submits.
// OrderId is NOT set by the caller: the orchestrator is "the submitter"
// of spec.md §3 and assigns it, guaranteeing process-lifetime uniqueness.
type OrderRequest struct {
	Symbol     common.Symbol
	Side       common.Side
	OrderType  common.OrderType
	Price      common.Price
	Marketable bool
	Quantity   common.Quantity
	Owner      string
}

type appendRequest struct {
	event events.SystemEvent
	wall  uint64
	reply chan appendResult
}

type appendResult struct {
	seq uint64
	err error
}

// Orchestrator owns Oracle, Titan and Sentinel and wires the channels
// between them.
type Orchestrator struct {
	cfg config.Config

	store   *oracle.Oracle
	matcher *titan.Matcher
	risk    *sentinel.Sentinel

	appendCh chan appendRequest
	ticksCh  chan pricefeed.PriceTick

	orderSeq atomic.Uint64

	symbols []common.Symbol

	t *tomb.Tomb

	fatal chan *FatalError
	ready chan struct{}
}

// New wires Oracle and Sentinel and does not start any goroutine yet;
// Titan's matcher and the price feed are started in Run, which owns
// their lifetime end to end.
func New(cfg config.Config, symbols []common.Symbol) (*Orchestrator, error) {
	store, err := oracle.Open(cfg.StorePath)
	if err != nil {
		return nil, &FatalError{ExitCode: 3, Err: err}
	}

	o := &Orchestrator{
		cfg:      cfg,
		symbols:  symbols,
		store:    store,
		appendCh: make(chan appendRequest, 4096),
		ticksCh:  make(chan pricefeed.PriceTick, 1024),
		fatal:    make(chan *FatalError, 1),
		ready:    make(chan struct{}),
	}

	o.risk = sentinel.New(
		sentinel.Config{MaintenanceMarginRatio: cfg.MaintenanceMarginRatio},
		o.onLiquidation,
		o.onAccountUpdate,
		o.onSentinelFatal,
	)
	return o, nil
}

// AddAccount exposes Sentinel.AddAccount to callers that seed accounts
// before Run (account/position seeding is an external collaborator per
// spec.md §1, described only by this call site).
func (o *Orchestrator) AddAccount(acct *sentinel.Account) { o.risk.AddAccount(acct) }

// Ready closes once Titan and the price feed are constructed and running.
// Callers that submit orders or read snapshots concurrently with Run must
// wait on this first.
func (o *Orchestrator) Ready() <-chan struct{} { return o.ready }

// Run starts every component in the order Oracle -> Titan -> Sentinel ->
// PriceFeed (spec.md §4.5), blocks until ctx is canceled, then drains
// in-flight channel contents into Oracle and shuts down in reverse order,
// Oracle last.
func (o *Orchestrator) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)
	o.t = t

	matcherCtx, cancelMatcher := context.WithCancel(context.Background())
	defer cancelMatcher()
	o.matcher = titan.New(matcherCtx, o.symbols, o.onExecution)

	t.Go(func() error { return o.appendLoop(ctx) })
	t.Go(func() error { return o.tickLoop(ctx) })

	feedCh := o.startPriceFeed(ctx)

	// Titan and Sentinel are both constructed and running at this point;
	// callers (the ingress server) must wait on Ready before touching
	// o.matcher, which Run assigns above and nothing synchronizes reads of
	// otherwise (spec.md §4.5 startup order).
	close(o.ready)

	var fatalErr *FatalError
	select {
	case <-ctx.Done():
	case fatalErr = <-o.fatal:
		log.Error().Err(fatalErr.Err).Int("exit_code", fatalErr.ExitCode).Msg("orchestrator: fatal error, shutting down")
		t.Kill(fatalErr)
	}

	grace := time.Duration(o.cfg.ShutdownGraceMs) * time.Millisecond
	o.drain(feedCh, grace)

	cancelMatcher()
	_ = t.Wait() // tomb errors already logged at the call site that raised them

	if err := o.store.Close(); err != nil {
		return &FatalError{ExitCode: 3, Err: fmt.Errorf("closing store: %w", err)}
	}

	if fatalErr != nil {
		return fatalErr
	}
	select {
	case ferr := <-o.fatal:
		return ferr
	default:
	}
	return nil
}

func (o *Orchestrator) startPriceFeed(ctx context.Context) chan pricefeed.PriceTick {
	ch := make(chan pricefeed.PriceTick, 1024)
	var symbol common.Symbol
	if len(o.symbols) > 0 {
		symbol = o.symbols[0]
	}

	switch o.cfg.PriceFeedMode {
	case config.ModeExternal:
		feed := pricefeed.NewExternal(o.cfg.PriceFeedURL, nil)
		o.t.Go(func() error { feed.Run(ctx, ch); return nil })
	default:
		feed := pricefeed.NewSimulation(pricefeed.SimulationConfig{
			Symbol:       symbol,
			InitialPrice: o.cfg.PriceFeedInitial,
			Volatility:   o.cfg.PriceFeedVolatility,
			Seed:         o.cfg.PriceFeedSeed,
			TickInterval: o.cfg.PriceFeedTickInterval,
		})
		o.t.Go(func() error { feed.Run(ctx, ch); return nil })
	}
	o.t.Go(func() error { return o.forwardTicks(ctx, ch) })
	return ch
}

func (o *Orchestrator) forwardTicks(ctx context.Context, ch <-chan pricefeed.PriceTick) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case tick, ok := <-ch:
			if !ok {
				return nil
			}
			select {
			case o.ticksCh <- tick:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// tickLoop is the one place a price tick fans out to both Oracle (via a
// PriceUpdate event) and Sentinel.OnTick, preserving each tick's local
// arrival order into the log (spec.md §5).
func (o *Orchestrator) tickLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case tick := <-o.ticksCh:
			ev := events.SystemEvent{Kind: events.KindPriceUpdate, PriceUpdate: &events.PriceUpdate{
				Symbol:      string(tick.Symbol),
				Price:       tick.Price,
				InternalSeq: tick.InternalSeq,
				TsMs:        tick.ReceivedMs,
			}}
			if _, err := o.appendEvent(ctx, ev, tick.ReceivedMs); err != nil {
				o.raiseFatal(3, fmt.Errorf("appending price update: %w", err))
				continue
			}

			if err := o.risk.OnTick(sentinel.PriceTick{
				Symbol:      tick.Symbol,
				Price:       tick.Price,
				InternalSeq: tick.InternalSeq,
				ReceivedMs:  tick.ReceivedMs,
			}); err != nil {
				o.raiseFatal(4, fmt.Errorf("sentinel tick: %w", err))
			}
		}
	}
}

// appendLoop is Oracle's single writer goroutine: every event in the
// system, regardless of producer, is serialized through this one
// channel.
func (o *Orchestrator) appendLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-o.appendCh:
			seq, err := o.store.Append(req.event, req.wall)
			req.reply <- appendResult{seq: seq, err: err}
		}
	}
}

func (o *Orchestrator) appendEvent(ctx context.Context, ev events.SystemEvent, wallMs uint64) (uint64, error) {
	reply := make(chan appendResult, 1)
	req := appendRequest{event: ev, wall: wallMs, reply: reply}
	select {
	case o.appendCh <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.seq, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// SubmitOrder assigns an OrderId, submits to Titan, and — only once Titan
// has accepted the order and produced its final execution report —
// durably records OrderPlaced followed by every OrderExecuted, in order,
// before returning. This is what spec.md §4.1 Failure semantics means by
// "once emitted, an Execution must be durably recorded before any
// acknowledgement is externally visible": the caller never observes a
// report whose executions are not already in the log.
func (o *Orchestrator) SubmitOrder(ctx context.Context, req OrderRequest) (common.ExecutionReport, error) {
	id := common.OrderId(o.orderSeq.Add(1))
	order := common.Order{
		OrderId:          id,
		Symbol:           req.Symbol,
		Side:             req.Side,
		OrderType:        req.OrderType,
		Price:            req.Price,
		Marketable:       req.Marketable,
		QuantityRemain:   req.Quantity,
		QuantityOriginal: req.Quantity,
		Owner:            req.Owner,
	}

	report, err := o.matcher.Submit(ctx, order)
	if err != nil {
		return common.ExecutionReport{}, err // validation/backpressure: synchronous, no event
	}

	nowMs := uint64(time.Now().UnixMilli())
	placed := events.SystemEvent{Kind: events.KindOrderPlaced, OrderPlaced: &events.OrderPlaced{
		OrderId:   uint64(order.OrderId),
		Symbol:    string(order.Symbol),
		Side:      uint8(order.Side),
		Price:     order.Price,
		Quantity:  order.QuantityOriginal,
		SubmitSeq: report.Order.SubmitSeq,
		TsMs:      nowMs,
	}}
	if _, err := o.appendEvent(ctx, placed, nowMs); err != nil {
		o.raiseFatal(3, fmt.Errorf("appending order placed: %w", err))
		return common.ExecutionReport{}, err
	}

	for _, exec := range report.Executions {
		ev := events.SystemEvent{Kind: events.KindOrderExecuted, OrderExecuted: &events.OrderExecuted{
			ExecId:   exec.ExecId,
			Symbol:   string(exec.Symbol),
			MakerId:  uint64(exec.MakerId),
			TakerId:  uint64(exec.TakerId),
			Price:    exec.Price,
			Quantity: exec.Quantity,
			TsMs:     exec.TimestampMs,
		}}
		if _, err := o.appendEvent(ctx, ev, exec.TimestampMs); err != nil {
			o.raiseFatal(3, fmt.Errorf("appending execution %d: %w", exec.ExecId, err))
			return common.ExecutionReport{}, err
		}
	}

	return report, nil
}

func (o *Orchestrator) onExecution(common.Execution) {
	// Executions are appended synchronously by SubmitOrder after Submit
	// returns, in order, so there is nothing to do on this callback; it
	// exists so Matcher's signature stays generic for callers that do
	// want a fire-and-forget hook (e.g. metrics, explicitly out of scope
	// here).
}

func (o *Orchestrator) onLiquidation(ev sentinel.LiquidationEvent) {
	sysEv := events.SystemEvent{Kind: events.KindPositionLiquidated, PositionLiquidated: &events.PositionLiquidated{
		UserId:       ev.UserId,
		Symbol:       string(ev.Symbol),
		Size:         ev.Size,
		MarkPrice:    ev.MarkPrice,
		RealizedLoss: ev.RealizedLoss,
		TsMs:         ev.TimestampMs,
	}}
	if _, err := o.appendEvent(context.Background(), sysEv, ev.TimestampMs); err != nil {
		o.raiseFatal(3, fmt.Errorf("appending liquidation: %w", err))
	}
}

func (o *Orchestrator) onAccountUpdate(userID uint64, collateral, unrealizedPnl common.Price, tsMs uint64) {
	sysEv := events.SystemEvent{Kind: events.KindAccountUpdated, AccountUpdated: &events.AccountUpdated{
		UserId:        userID,
		Collateral:    collateral,
		UnrealizedPnl: unrealizedPnl,
		TsMs:          tsMs,
	}}
	if _, err := o.appendEvent(context.Background(), sysEv, tsMs); err != nil {
		o.raiseFatal(3, fmt.Errorf("appending account update: %w", err))
	}
}

func (o *Orchestrator) onSentinelFatal(err error) {
	o.raiseFatal(4, err)
}

func (o *Orchestrator) raiseFatal(exitCode int, err error) {
	select {
	case o.fatal <- &FatalError{ExitCode: exitCode, Err: err}:
	default:
	}
}

// drain gives every producer goroutine up to grace to push whatever is
// already in flight into the append channel, then stops waiting. Oracle
// itself is only closed after this and after every tomb goroutine exits.
func (o *Orchestrator) drain(feedCh chan pricefeed.PriceTick, grace time.Duration) {
	deadline := time.After(grace)
	for {
		select {
		case <-deadline:
			return
		case tick, ok := <-feedCh:
			if !ok {
				return
			}
			select {
			case o.ticksCh <- tick:
			default:
			}
		default:
			if len(o.ticksCh) == 0 && len(o.appendCh) == 0 {
				return
			}
		}
	}
}

// Snapshot exposes Titan's book view for symbol.
func (o *Orchestrator) Snapshot(ctx context.Context, symbol common.Symbol) (common.BookView, error) {
	return o.matcher.Snapshot(ctx, symbol)
}

// CancelOrder removes a resting order from Titan's book.
func (o *Orchestrator) CancelOrder(ctx context.Context, symbol common.Symbol, id common.OrderId) (bool, error) {
	return o.matcher.Cancel(ctx, symbol, id)
}

// AccountSnapshot exposes Sentinel's read-only account view.
func (o *Orchestrator) AccountSnapshot() []sentinel.AccountView {
	return o.risk.Snapshot()
}

// StateHash exposes Oracle.ComputeStateHash.
func (o *Orchestrator) StateHash() ([32]byte, error) {
	return o.store.ComputeStateHash()
}

// ReplayAll exposes Oracle.ReplayAll.
func (o *Orchestrator) ReplayAll() ([]oracle.LogRecord, error) {
	return o.store.ReplayAll()
}
