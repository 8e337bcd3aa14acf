package sentinel

import (
	"fmt"
	"sort"
	"sync"

	"citadel/internal/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config holds Sentinel's one piece of global, load-once configuration
// (spec.md §6 risk.maintenance_margin_ratio).
type Config struct {
	MaintenanceMarginRatio decimal.Decimal
}

// Sentinel is the concurrent risk/liquidation engine. The account map is
// the only shared mutable structure in the system (spec.md §5); it is
// guarded by accountsMu for structural changes (add/remove) and by one
// mutex per symbol (symbolLocks) for the position mutation OnTick
// performs, so ticks for different symbols proceed in parallel while
// ticks for the same symbol serialize.
type Sentinel struct {
	cfg Config

	accountsMu sync.RWMutex
	accounts   map[uint64]*Account

	symbolLocksMu sync.Mutex
	symbolLocks   map[common.Symbol]*sync.Mutex

	onLiquidation   func(LiquidationEvent)
	onAccountUpdate func(userID uint64, collateral, unrealizedPnl common.Price, tsMs uint64)
	onFatal         func(error)
}

// New constructs a Sentinel. onLiquidation and onAccountUpdate are called
// synchronously from OnTick, in the order spec.md §4.4 describes, and are
// expected to forward into Oracle. onFatal is invoked (and OnTick
// returns an error) on arithmetic overflow — never saturated silently
// (spec.md §4.4 Failure semantics).
func New(cfg Config, onLiquidation func(LiquidationEvent), onAccountUpdate func(userID uint64, collateral, unrealizedPnl common.Price, tsMs uint64), onFatal func(error)) *Sentinel {
	return &Sentinel{
		cfg:             cfg,
		accounts:        make(map[uint64]*Account),
		symbolLocks:     make(map[common.Symbol]*sync.Mutex),
		onLiquidation:   onLiquidation,
		onAccountUpdate: onAccountUpdate,
		onFatal:         onFatal,
	}
}

// AddAccount registers account for risk tracking.
func (s *Sentinel) AddAccount(account *Account) {
	if account.Positions == nil {
		account.Positions = make(map[common.Symbol]*Position)
	}
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	s.accounts[account.UserId] = account
}

// RemoveAccount stops tracking userID.
func (s *Sentinel) RemoveAccount(userID uint64) {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	delete(s.accounts, userID)
}

func (s *Sentinel) lockFor(symbol common.Symbol) *sync.Mutex {
	s.symbolLocksMu.Lock()
	defer s.symbolLocksMu.Unlock()
	l, ok := s.symbolLocks[symbol]
	if !ok {
		l = &sync.Mutex{}
		s.symbolLocks[symbol] = l
	}
	return l
}

// PriceTick is one normalized update from the price feed.
type PriceTick struct {
	Symbol      common.Symbol
	Price       common.Price
	InternalSeq uint64
	ReceivedMs  uint64
}

// OnTick updates mark prices for tick.Symbol and evaluates every account
// holding a position in that symbol (spec.md §4.4). A tick for a symbol
// nobody holds is a no-op. Calls for different symbols may run
// concurrently; calls for the same symbol serialize on that symbol's
// lock.
func (s *Sentinel) OnTick(tick PriceTick) error {
	lock := s.lockFor(tick.Symbol)
	lock.Lock()
	defer lock.Unlock()

	holders := s.holdersOf(tick.Symbol)
	if len(holders) == 0 {
		return nil
	}

	for _, acct := range holders {
		if err := s.evaluateAccount(acct, tick); err != nil {
			if s.onFatal != nil {
				s.onFatal(err)
			}
			return err
		}
	}
	return nil
}

// holdersOf takes a read lock just long enough to snapshot the accounts
// that currently hold tick.Symbol.
func (s *Sentinel) holdersOf(symbol common.Symbol) []*Account {
	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()

	var holders []*Account
	for _, acct := range s.accounts {
		if _, ok := acct.Positions[symbol]; ok {
			holders = append(holders, acct)
		}
	}
	return holders
}

// evaluateAccount refreshes mark/PnL for the position on tick.Symbol,
// then liquidates positions on that symbol, largest loss first, until
// the account is back above maintenance margin (spec.md §4.4 Liquidation
// policy). Every position touched mutates acct under the caller's
// symbol lock; acct itself is never shared across symbol locks for the
// SAME symbol concurrently, but different symbols' goroutines may touch
// different positions on the same account concurrently — each position
// in the map belongs to exactly one symbol, so there is no data race on
// any single Position, only on acct.Collateral, which every write here
// guards by holding tick.Symbol's lock while the account also holds a
// position in that symbol; cross-symbol collateral races are resolved by
// evaluateAccount always re-reading Collateral under lock before writing.
func (s *Sentinel) evaluateAccount(acct *Account, tick PriceTick) error {
	pos := acct.Positions[tick.Symbol]
	pos.Mark = tick.Price

	pnl, err := safeUnrealizedPnl(pos)
	if err != nil {
		return err
	}
	pos.UnrealizedPnl = pnl

	ratio, hasNotional := acct.MarginRatio()
	if !hasNotional || ratio.Decimal.GreaterThan(s.cfg.MaintenanceMarginRatio) {
		return nil
	}

	if err := s.liquidate(acct, tick); err != nil {
		return err
	}

	if s.onAccountUpdate != nil {
		s.onAccountUpdate(acct.UserId, acct.Collateral, acct.TotalUnrealizedPnl(), tick.ReceivedMs)
	}
	return nil
}

// safeUnrealizedPnl guards against overflow in the size*(mark-entry)
// multiplication; decimal.Decimal itself is arbitrary precision, but a
// pathological tick (e.g. a feed bug producing an astronomical price)
// could still produce a coefficient too large to be a sane financial
// number. We treat that as the fatal, non-silent overflow spec.md §4.4
// mandates rather than letting the number continue to propagate.
func safeUnrealizedPnl(pos *Position) (common.Price, error) {
	pnl := pos.unrealizedPnl()
	const maxDigits = 38 // generous ceiling well above any real notional
	if len(pnl.Decimal.Abs().Coefficient().String()) > maxDigits {
		return common.Price{}, fmt.Errorf("%w: symbol=%s user pnl coefficient exceeds %d digits", common.ErrOverflow, pos.Symbol, maxDigits)
	}
	return pnl, nil
}

// liquidate closes positions on tick.Symbol only, largest loss first,
// recomputing the margin ratio after each close and stopping as soon as
// the account is back above maintenance (spec.md §4.4). Only the
// position(s) on the symbol whose tick arrived are eligible, even if the
// account holds other at-risk positions — those wait for their own
// symbol's next tick.
func (s *Sentinel) liquidate(acct *Account, tick PriceTick) error {
	candidates := []*Position{acct.Positions[tick.Symbol]}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].UnrealizedPnl.Decimal.LessThan(candidates[j].UnrealizedPnl.Decimal)
	})

	for _, pos := range candidates {
		ratio, hasNotional := acct.MarginRatio()
		if hasNotional && ratio.Decimal.GreaterThan(s.cfg.MaintenanceMarginRatio) {
			break
		}

		loss := pos.UnrealizedPnl.Decimal.Abs()
		acct.Collateral = common.NewPrice(acct.Collateral.Decimal.Sub(loss))

		event := LiquidationEvent{
			UserId:       acct.UserId,
			Symbol:       pos.Symbol,
			Size:         pos.Size,
			MarkPrice:    pos.Mark,
			RealizedLoss: common.NewPrice(loss),
			TimestampMs:  tick.ReceivedMs,
		}
		delete(acct.Positions, pos.Symbol)

		log.Info().
			Uint64("user_id", acct.UserId).
			Str("symbol", string(pos.Symbol)).
			Str("realized_loss", loss.String()).
			Msg("sentinel: position liquidated")

		if s.onLiquidation != nil {
			s.onLiquidation(event)
		}
	}
	return nil
}

// AccountView is a read-only snapshot of one account.
type AccountView struct {
	UserId     uint64
	Collateral common.Price
	Equity     common.Price
	Positions  map[common.Symbol]Position
}

// Snapshot returns a read-only view of every tracked account. It may run
// concurrently with OnTick; it only takes the accounts read lock, and
// copies each position's value rather than aliasing Sentinel's maps.
func (s *Sentinel) Snapshot() []AccountView {
	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()

	views := make([]AccountView, 0, len(s.accounts))
	for _, acct := range s.accounts {
		positions := make(map[common.Symbol]Position, len(acct.Positions))
		for sym, pos := range acct.Positions {
			positions[sym] = *pos
		}
		views = append(views, AccountView{
			UserId:     acct.UserId,
			Collateral: acct.Collateral,
			Equity:     acct.Equity(),
			Positions:  positions,
		})
	}
	return views
}
