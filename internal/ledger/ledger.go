// Package ledger owns the position set and its open/mark/close state machine.
//
// The in-memory set is authoritative. Every mutation is written through to a
// storage.PositionStore once; a failed write is logged and never rolls back memory.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pair-agent/internal/domain"
	"pair-agent/internal/logging"
	"pair-agent/internal/storage"
)

// Ledger errors.
var (
	ErrNotFound    = errors.New("position not found")
	ErrNoDirection = errors.New("open requires a long or short direction")
	ErrAlreadyOpen = errors.New("pair already has an open position")
)

// OpenRequest describes a qualified, admitted entry.
type OpenRequest struct {
	Pair         domain.Pair
	Direction    domain.Signal // qualified direction, long or short spread
	PriceA       float64       // current price of SymbolA
	PriceB       float64       // current price of SymbolB
	ZScore       float64
	HedgeRatio   float64
	HalfLife     float64
	SizeFraction float64
}

// Quote carries current leg prices and an optional fresh z-score for a pair.
type Quote struct {
	PriceA float64
	PriceB float64
	ZScore *float64 // nil when no fresh analysis is available
}

// ExitResult reports the outcome of CheckExits.
type ExitResult struct {
	Closed  bool
	Reason  domain.CloseReason
	Trigger float64
	PnLPct  float64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock (used by backtests).
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithIDGenerator overrides position id generation.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) {
		l.newID = gen
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(l *Ledger) {
		l.log = logging.Component(logger, "ledger")
	}
}

// WithPersistErrorHook is invoked for every failed store write.
func WithPersistErrorHook(hook func(op string, err error)) Option {
	return func(l *Ledger) {
		l.onPersistErr = hook
	}
}

// Ledger is the sole owner of positions.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position

	store        storage.PositionStore
	exits        ExitConfig
	log          *logrus.Entry
	now          func() time.Time
	newID        func() string
	onPersistErr func(op string, err error)
}

// New creates a ledger backed by store.
func New(store storage.PositionStore, exits ExitConfig, opts ...Option) *Ledger {
	l := &Ledger{
		positions: make(map[string]*domain.Position),
		store:     store,
		exits:     exits,
		log:       logging.Component(nil, "ledger"),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ExitConfig returns the configured exit rules.
func (l *Ledger) ExitConfig() ExitConfig {
	return l.exits
}

// Restore loads persisted positions into memory. Existing in-memory entries are kept.
// Returns the number of open positions restored.
func (l *Ledger) Restore(ctx context.Context) (int, error) {
	all, err := l.store.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: restore positions: %w", domain.ErrPersistence, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	open := 0
	for _, p := range all {
		if _, exists := l.positions[p.ID]; exists {
			continue
		}
		l.positions[p.ID] = p.Clone()
		if p.IsOpen() {
			open++
		}
	}
	l.log.WithFields(logrus.Fields{"total": len(all), "open": open}).Info("positions restored")
	return open, nil
}

// Open creates a position. Long spread buys A and sells B; short spread buys B and sells A.
func (l *Ledger) Open(ctx context.Context, req OpenRequest) (*domain.Position, error) {
	longAsset, shortAsset, ok := domain.LegsFor(req.Pair, req.Direction)
	if !ok {
		return nil, fmt.Errorf("%w: got %q", ErrNoDirection, req.Direction)
	}
	if !validPrice(req.PriceA) || !validPrice(req.PriceB) {
		return nil, fmt.Errorf("%w: %s entry prices %v/%v",
			domain.ErrInvalidPriceData, req.Pair.Key(), req.PriceA, req.PriceB)
	}

	entryLong, entryShort := req.PriceA, req.PriceB
	if longAsset == req.Pair.SymbolB {
		entryLong, entryShort = req.PriceB, req.PriceA
	}

	now := l.now()
	p := &domain.Position{
		ID:              l.newID(),
		Pair:            req.Pair,
		Direction:       req.Direction,
		LongAsset:       longAsset,
		ShortAsset:      shortAsset,
		EntryLongPrice:  entryLong,
		EntryShortPrice: entryShort,
		EntryTime:       now,
		EntryZScore:     req.ZScore,
		HedgeRatio:      req.HedgeRatio,
		HalfLife:        req.HalfLife,
		SizeFraction:    req.SizeFraction,
		Status:          domain.PositionOpen,
		UpdatedAt:       now,
	}

	l.mu.Lock()
	for _, existing := range l.positions {
		if existing.IsOpen() && existing.Pair.SameLegs(req.Pair) {
			l.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, req.Pair.Key())
		}
	}
	l.positions[p.ID] = p
	snapshot := p.Clone()
	l.mu.Unlock()

	l.persist(ctx, "create", snapshot, l.store.Create)

	l.log.WithFields(logrus.Fields{
		"position_id": p.ID,
		"pair":        p.Pair.Key(),
		"direction":   p.Direction,
		"long":        p.LongAsset,
		"short":       p.ShortAsset,
		"entry_z":     req.ZScore,
		"size":        req.SizeFraction,
	}).Info("position opened")

	return snapshot, nil
}

// Mark recomputes PnL from a quote and returns the current PnL%.
// Invalid prices are logged and skipped, preserving the last PnL.
// Closed positions are not marked; their frozen close PnL is returned.
func (l *Ledger) Mark(ctx context.Context, id string, q Quote) (float64, error) {
	l.mu.Lock()
	p, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !p.IsOpen() {
		pnl := p.ClosePnLPct
		l.mu.Unlock()
		return pnl, nil
	}
	changed := l.markLocked(p, q)
	pnl := p.CurrentPnLPct
	snapshot := p.Clone()
	l.mu.Unlock()

	if changed {
		l.persist(ctx, "update", snapshot, l.store.Update)
	}
	return pnl, nil
}

// markLocked applies a quote to p. Caller holds l.mu.
// Returns false if the update was skipped.
func (l *Ledger) markLocked(p *domain.Position, q Quote) bool {
	if q.ZScore != nil {
		z := *q.ZScore
		p.LastZScore = &z
	}

	curLong, curShort := q.PriceA, q.PriceB
	if p.LongAsset == p.Pair.SymbolB {
		curLong, curShort = q.PriceB, q.PriceA
	}

	pnl, ok := ComputePnLPct(p.EntryLongPrice, p.EntryShortPrice, curLong, curShort)
	if !ok {
		l.log.WithFields(logrus.Fields{
			"position_id": p.ID,
			"pair":        p.Pair.Key(),
			"price_a":     q.PriceA,
			"price_b":     q.PriceB,
			"pnl_pct":     p.CurrentPnLPct,
		}).Warn("invalid price data, mark skipped")
		return q.ZScore != nil
	}

	p.CurrentPnLPct = pnl
	p.UpdatedAt = l.now()
	return true
}

// CheckExits marks the position with q, then closes it on the first exit rule that fires.
// The mean-reversion rule only applies when q carries a fresh z-score.
func (l *Ledger) CheckExits(ctx context.Context, id string, q Quote, now time.Time) (ExitResult, error) {
	l.mu.Lock()
	p, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		return ExitResult{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !p.IsOpen() {
		l.mu.Unlock()
		return ExitResult{PnLPct: p.ClosePnLPct}, nil
	}

	l.markLocked(p, q)
	decision, hit := l.exits.evaluateExit(p, q.ZScore, now)
	if !hit {
		snapshot := p.Clone()
		l.mu.Unlock()
		l.persist(ctx, "update", snapshot, l.store.Update)
		return ExitResult{PnLPct: snapshot.CurrentPnLPct}, nil
	}

	closeLocked(p, decision.reason, decision.trigger, now)
	snapshot := p.Clone()
	l.mu.Unlock()

	l.persist(ctx, "close", snapshot, l.store.Close)
	l.logClose(snapshot)

	return ExitResult{
		Closed:  true,
		Reason:  decision.reason,
		Trigger: decision.trigger,
		PnLPct:  snapshot.ClosePnLPct,
	}, nil
}

// Close closes a position with the given reason. Closing an already closed
// position is a no-op and returns false.
func (l *Ledger) Close(ctx context.Context, id string, reason domain.CloseReason, trigger float64, now time.Time) (bool, error) {
	l.mu.Lock()
	p, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !p.IsOpen() {
		l.mu.Unlock()
		return false, nil
	}
	closeLocked(p, reason, trigger, now)
	snapshot := p.Clone()
	l.mu.Unlock()

	l.persist(ctx, "close", snapshot, l.store.Close)
	l.logClose(snapshot)
	return true, nil
}

// closeLocked freezes the close fields from the last mark. Caller holds l.mu.
func closeLocked(p *domain.Position, reason domain.CloseReason, trigger float64, now time.Time) {
	closeTime := now
	p.Status = domain.PositionClosed
	p.CloseTime = &closeTime
	p.CloseReason = reason
	p.CloseTrigger = trigger
	p.ClosePnLPct = p.CurrentPnLPct
	p.UpdatedAt = now
}

func (l *Ledger) logClose(p *domain.Position) {
	l.log.WithFields(logrus.Fields{
		"position_id": p.ID,
		"pair":        p.Pair.Key(),
		"reason":      p.CloseReason,
		"trigger":     p.CloseTrigger,
		"pnl_pct":     p.ClosePnLPct,
	}).Info("position closed")
}

// persist writes through to the store. Failures are logged and reported to the hook only.
func (l *Ledger) persist(ctx context.Context, op string, p *domain.Position, write func(context.Context, *domain.Position) error) {
	if l.store == nil {
		return
	}
	if err := write(ctx, p); err != nil {
		err = fmt.Errorf("%w: %s position %s: %w", domain.ErrPersistence, op, p.ID, err)
		l.log.WithError(err).WithField("position_id", p.ID).Error("persist position failed")
		if l.onPersistErr != nil {
			l.onPersistErr(op, err)
		}
	}
}

// Get returns a copy of a position.
func (l *Ledger) Get(id string) (*domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.positions[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// OpenPositions returns open positions ordered by entry time.
func (l *Ledger) OpenPositions() []*domain.Position {
	return l.collect(func(p *domain.Position) bool { return p.IsOpen() })
}

// ClosedPositions returns closed positions ordered by entry time.
func (l *Ledger) ClosedPositions() []*domain.Position {
	return l.collect(func(p *domain.Position) bool { return !p.IsOpen() })
}

// All returns every position ordered by entry time.
func (l *Ledger) All() []*domain.Position {
	return l.collect(func(*domain.Position) bool { return true })
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, p := range l.positions {
		if p.IsOpen() {
			n++
		}
	}
	return n
}

// HasOpen reports whether an open position exists on the same two symbols.
func (l *Ledger) HasOpen(pair domain.Pair) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, p := range l.positions {
		if p.IsOpen() && p.Pair.SameLegs(pair) {
			return true
		}
	}
	return false
}

func (l *Ledger) collect(keep func(*domain.Position) bool) []*domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.Position
	for _, p := range l.positions {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].EntryTime.Before(out[j].EntryTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
