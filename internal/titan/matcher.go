package titan

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"citadel/internal/common"
	"github.com/rs/zerolog/log"
)

// submission is one unit of work handed to the matcher's single inbox.
// The matcher is strictly single-threaded (spec.md §5): no locks inside
// the book, it owns its data and processes submissions to completion
// without ever suspending on I/O.
type submission struct {
	kind    submissionKind
	order   common.Order
	orderID common.OrderId
	symbol  common.Symbol
	reply   chan submissionResult
}

type submissionKind uint8

const (
	kindSubmit submissionKind = iota
	kindCancel
	kindSnapshot
)

type submissionResult struct {
	report   common.ExecutionReport
	canceled bool
	view     common.BookView
	err      error
}

// Matcher is the single-writer owner of every symbol's OrderBook. All book
// mutation happens on Matcher.run's goroutine; everything else is a
// channel round trip.
type Matcher struct {
	books    map[common.Symbol]*OrderBook
	inbox    chan submission
	execSeq  atomic.Uint64
	subSeq   atomic.Uint64
	onExec   func(common.Execution)
}

// New constructs a Matcher for the given symbols and starts its single
// processing goroutine. Cancel ctx to stop it.
func New(ctx context.Context, symbols []common.Symbol, onExec func(common.Execution)) *Matcher {
	m := &Matcher{
		books:  make(map[common.Symbol]*OrderBook),
		inbox:  make(chan submission, 1024),
		onExec: onExec,
	}
	for _, s := range symbols {
		m.books[s] = newOrderBook(s)
	}
	go m.run(ctx)
	return m
}

func (m *Matcher) run(ctx context.Context) {
	log.Info().Msg("titan: matcher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("titan: matcher stopping")
			return
		case sub := <-m.inbox:
			m.handle(sub)
		}
	}
}

func (m *Matcher) handle(sub submission) {
	switch sub.kind {
	case kindSubmit:
		report, err := m.submit(sub.order)
		sub.reply <- submissionResult{report: report, err: err}
	case kindCancel:
		ok := false
		var err error
		if book, exists := m.books[sub.symbol]; exists {
			ok = book.Cancel(sub.orderID)
			if !ok {
				err = fmt.Errorf("%w: order %d on %s", common.ErrUnknownOrder, sub.orderID, sub.symbol)
			}
		} else {
			err = fmt.Errorf("%w: %s", common.ErrUnknownSymbol, sub.symbol)
		}
		sub.reply <- submissionResult{canceled: ok, err: err}
	case kindSnapshot:
		var view common.BookView
		if book, exists := m.books[sub.symbol]; exists {
			view = book.Snapshot()
		}
		sub.reply <- submissionResult{view: view}
	}
}

// submit runs the matching algorithm of spec.md §4.1 to completion. It
// must only ever be called from run's goroutine.
func (m *Matcher) submit(order common.Order) (common.ExecutionReport, error) {
	if err := order.Validate(); err != nil {
		return common.ExecutionReport{}, err
	}
	book, ok := m.books[order.Symbol]
	if !ok {
		return common.ExecutionReport{}, fmt.Errorf("%w: %s", common.ErrUnknownSymbol, order.Symbol)
	}

	order.SubmitSeq = m.subSeq.Add(1)
	working := order

	var executions []common.Execution

	for working.QuantityRemain.IsPositive() {
		level, ok := book.bestOpposite(working.Side)
		if !ok || !marketable(&working, level) {
			break
		}

		oppositeLevels := book.levelsFor(working.Side.Opposite())
		maker := level.Orders[0]
		qty := common.MinQuantity(working.QuantityRemain, maker.QuantityRemain)

		exec := common.Execution{
			ExecId:      m.execSeq.Add(1),
			Symbol:      order.Symbol,
			MakerId:     maker.OrderId,
			TakerId:     working.OrderId,
			Price:       maker.Price,
			Quantity:    qty,
			TimestampMs: uint64(time.Now().UnixMilli()),
		}
		executions = append(executions, exec)
		if m.onExec != nil {
			m.onExec(exec)
		}

		working.QuantityRemain = working.QuantityRemain.Sub(qty)
		maker.QuantityRemain = maker.QuantityRemain.Sub(qty)

		if maker.QuantityRemain.IsZero() {
			book.removeHead(oppositeLevels, level)
		}
	}

	report := common.ExecutionReport{Order: working, Executions: executions}
	switch {
	case working.QuantityRemain.IsZero():
		report.State = common.FullyFilled
	case working.Marketable:
		report.State = common.RemainderCancelled
	case len(executions) == 0:
		book.rest(&working)
		report.State = common.RestedFully
	default:
		book.rest(&working)
		report.State = common.RestedPartial
	}
	return report, nil
}

// Submit hands order to the matcher's inbox and blocks for the result.
// If the inbox is full it does not wait for room: it returns
// common.ErrBackpressure at once, and the caller may retry. It never
// blocks the matcher itself.
func (m *Matcher) Submit(ctx context.Context, order common.Order) (common.ExecutionReport, error) {
	reply := make(chan submissionResult, 1)
	sub := submission{kind: kindSubmit, order: order, reply: reply}
	select {
	case m.inbox <- sub:
	case <-ctx.Done():
		return common.ExecutionReport{}, ctx.Err()
	default:
		return common.ExecutionReport{}, common.ErrBackpressure
	}
	select {
	case res := <-reply:
		return res.report, res.err
	case <-ctx.Done():
		return common.ExecutionReport{}, ctx.Err()
	}
}

// Cancel removes a resting order by id. It returns common.ErrUnknownSymbol
// if symbol has no book and common.ErrUnknownOrder if the book exists but
// holds no order with that id.
func (m *Matcher) Cancel(ctx context.Context, symbol common.Symbol, id common.OrderId) (bool, error) {
	reply := make(chan submissionResult, 1)
	sub := submission{kind: kindCancel, symbol: symbol, orderID: id, reply: reply}
	select {
	case m.inbox <- sub:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.canceled, res.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Snapshot returns a point-in-time book view for symbol.
func (m *Matcher) Snapshot(ctx context.Context, symbol common.Symbol) (common.BookView, error) {
	reply := make(chan submissionResult, 1)
	sub := submission{kind: kindSnapshot, symbol: symbol, reply: reply}
	select {
	case m.inbox <- sub:
	case <-ctx.Done():
		return common.BookView{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.view, nil
	case <-ctx.Done():
		return common.BookView{}, ctx.Err()
	}
}

// BestBidAsk is a convenience read of the best bid and ask for symbol.
// It is safe to call concurrently: it round-trips through the same inbox
// as every other operation, so it never races with matching.
func (m *Matcher) BestBidAsk(ctx context.Context, symbol common.Symbol) (bid, ask common.Price, bidOK, askOK bool, err error) {
	view, err := m.Snapshot(ctx, symbol)
	if err != nil {
		return common.Price{}, common.Price{}, false, false, err
	}
	if len(view.Bids) > 0 {
		bid, bidOK = view.Bids[0].Price, true
	}
	if len(view.Asks) > 0 {
		ask, askOK = view.Asks[0].Price, true
	}
	return bid, ask, bidOK, askOK, nil
}
