// Package pricefeed normalizes external and simulated price updates into
// a single internal stream of PriceTick values (spec.md §4.3).
package pricefeed

import (
	"context"
	"math/rand/v2"
	"time"

	"citadel/internal/common"
	"github.com/shopspring/decimal"
)

// PriceTick is a normalized update. It carries every field of
// sentinel.PriceTick plus SourceSeq; the orchestrator copies the shared
// fields across when it forwards a tick to Sentinel.
type PriceTick struct {
	Symbol      common.Symbol
	Price       common.Price
	SourceSeq   uint64
	InternalSeq uint64
	ReceivedMs  uint64
}

// SimulationConfig parameterizes the geometric random walk of spec.md
// §4.3. Seed MUST be set explicitly by the caller — this package never
// reads entropy from the environment, so a fixed seed reproduces the
// exact same stream (spec.md §9 Determinism of simulation).
type SimulationConfig struct {
	Symbol        common.Symbol
	InitialPrice  decimal.Decimal
	Volatility    decimal.Decimal // σ
	Seed          uint64
	TickInterval  time.Duration
}

// Simulation emits ticks at a fixed cadence following
// p_{n+1} = p_n * (1 + σ * U(-1, +1)).
type Simulation struct {
	cfg  SimulationConfig
	rng  *rand.Rand
	last decimal.Decimal
	seq  uint64
}

// NewSimulation constructs a deterministic simulated feed.
func NewSimulation(cfg SimulationConfig) *Simulation {
	return &Simulation{
		cfg:  cfg,
		rng:  rand.New(rand.NewPCG(cfg.Seed, cfg.Seed>>32|1)),
		last: cfg.InitialPrice,
	}
}

// Run streams ticks onto out until ctx is canceled. The caller owns out
// and must keep draining it; Run never drops a tick, it only blocks.
func (s *Simulation) Run(ctx context.Context, out chan<- PriceTick) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick := s.next()
			select {
			case out <- tick:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Simulation) next() PriceTick {
	// U(-1, +1)
	u := s.rng.Float64()*2 - 1
	delta := s.cfg.Volatility.Mul(decimal.NewFromFloat(u))
	factor := decimal.NewFromInt(1).Add(delta)
	s.last = s.last.Mul(factor).Truncate(common.Scale)

	s.seq++
	return PriceTick{
		Symbol:      s.cfg.Symbol,
		Price:       common.NewPrice(s.last),
		SourceSeq:   s.seq,
		InternalSeq: s.seq,
		ReceivedMs:  uint64(time.Now().UnixMilli()),
	}
}
