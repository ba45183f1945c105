package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// OrderBook is a single-symbol limit order book with price-time priority
// matching. One exclusive lock serializes every operation; the atomic
// counters and best-tick caches may be read without it as hints.
type OrderBook struct {
	mu sync.Mutex

	store *orderStore
	bids  *ladder
	asks  *ladder

	fillCb FillHandler
	stp    SelfTradePolicy
	nowNs  func() uint64

	orderCount atomic.Int64

	ordersProcessed     atomic.Uint64
	fillsGenerated      atomic.Uint64
	avgProcessingTimeNs atomic.Uint64
	peakOrdersPerSec    atomic.Uint64
	curSecond           uint64
	curSecondCount      uint64
}

// Option configures an OrderBook.
type Option func(*OrderBook)

// WithSelfTradePolicy overrides the default StopAtOwn self-trade handling.
func WithSelfTradePolicy(p SelfTradePolicy) Option {
	return func(ob *OrderBook) {
		if validPolicy(p) {
			ob.stp = p
		}
	}
}

// WithClock replaces the monotonic nanosecond clock, mainly for tests.
func WithClock(nowNs func() uint64) Option {
	return func(ob *OrderBook) {
		if nowNs != nil {
			ob.nowNs = nowNs
		}
	}
}

// NewOrderBook builds an empty book. maxOrders pre-sizes the resting-order
// index; it is a hint, not a cap. Pass 0 for the default of one million.
func NewOrderBook(maxOrders int, opts ...Option) *OrderBook {
	ob := &OrderBook{
		store: newOrderStore(maxOrders),
		bids:  newLadder(SideBuy),
		asks:  newLadder(SideSell),
		stp:   StopAtOwn,
		nowNs: func() uint64 { return uint64(time.Now().UnixNano()) },
	}
	for _, opt := range opts {
		opt(ob)
	}
	return ob
}

// SetFillHandler installs the single fill callback slot, replacing any prior
// handler. The handler runs while the book lock is held; it must not call
// back into the book. Pass nil to clear.
func (ob *OrderBook) SetFillHandler(fn FillHandler) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.fillCb = fn
}

// Submit runs an incoming order through the match loop and rests any
// residual per its time-in-force. Fills are returned in execution order; a
// registered FillHandler sees each one synchronously before Submit returns.
//
// The only false returns are a failed FOK feasibility pre-check and malformed
// input (zero quantity, unknown enum value, id already resting); both leave
// the book and the counters untouched.
func (ob *OrderBook) Submit(o Order) (bool, []Fill) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.submitLocked(o)
}

func (ob *OrderBook) submitLocked(o Order) (bool, []Fill) {
	if !ob.validOrder(&o) {
		return false, nil
	}

	start := ob.nowNs()

	if o.TIF == TIFFillOrKill && !ob.canFullyFill(&o) {
		return false, nil
	}

	remaining := o.Quantity
	fills, killed := ob.matchLoop(&o, &remaining)

	if remaining > 0 && !killed {
		switch {
		case o.Type == TypeMarket:
			// market residual is never rested
		case o.TIF == TIFImmediate || o.TIF == TIFFillOrKill:
			// discard
		default:
			ob.rest(o, remaining)
		}
	}

	ob.recordSubmit(start)
	return true, fills
}

func (ob *OrderBook) validOrder(o *Order) bool {
	if o.Quantity == 0 {
		return false
	}
	if !validSide(o.Side) || !validType(o.Type) || !validTIF(o.TIF) {
		return false
	}
	// a live id must be fully removed before reuse
	return !ob.store.contains(o.ID)
}

// limitTick is the crossing bound: the order's own limit for limit orders,
// the side's sentinel for market orders.
func limitTick(o *Order) int64 {
	if o.Type == TypeMarket {
		if o.Side == SideBuy {
			return MarketBuyTick
		}
		return MarketSellTick
	}
	return o.PriceTick
}

func crossable(side OrderSide, limit, levelPrice int64) bool {
	if side == SideBuy {
		return levelPrice <= limit
	}
	return levelPrice >= limit
}

func (ob *OrderBook) contra(side OrderSide) *ladder {
	if side == SideBuy {
		return ob.asks
	}
	return ob.bids
}

func (ob *OrderBook) sideOf(side OrderSide) *ladder {
	if side == SideBuy {
		return ob.bids
	}
	return ob.asks
}

// canFullyFill is the read-only FOK feasibility pass: walk crossable contra
// levels best-first, skipping the taker's own resting orders, until the
// needed quantity is covered. Emits nothing and mutates nothing.
func (ob *OrderBook) canFullyFill(o *Order) bool {
	limit := limitTick(o)
	needed := o.Quantity

	ob.contra(o.Side).ascend(func(lvl *priceLevel) bool {
		if !crossable(o.Side, limit, lvl.price) {
			return false
		}
		for _, id := range lvl.queue {
			maker, ok := ob.store.get(id)
			if !ok || maker.OwnerID == o.OwnerID {
				continue
			}
			if maker.Quantity >= needed {
				needed = 0
				return false
			}
			needed -= maker.Quantity
		}
		return true
	})

	return needed == 0
}

// matchLoop walks the contra ladder best price first, FIFO within each
// level, emitting fills against each maker until the taker is exhausted or
// no crossable liquidity remains. killed reports a CancelNewest self-trade
// outcome, which discards the taker's residual unconditionally.
func (ob *OrderBook) matchLoop(taker *Order, remaining *uint32) ([]Fill, bool) {
	contra := ob.contra(taker.Side)
	limit := limitTick(taker)

	// snapshot the crossable levels up front: the walk below removes
	// emptied levels, and the tree must not be mutated mid-iteration
	var levels []*priceLevel
	contra.ascend(func(lvl *priceLevel) bool {
		if !crossable(taker.Side, limit, lvl.price) {
			return false
		}
		levels = append(levels, lvl)
		return true
	})

	var fills []Fill
	killed := false

	for _, lvl := range levels {
		if *remaining == 0 || killed {
			break
		}

		idx := 0
	makers:
		for *remaining > 0 && idx < len(lvl.queue) {
			maker, ok := ob.store.get(lvl.queue[idx])
			if !ok {
				// stale handle, the record is already gone
				lvl.queue = append(lvl.queue[:idx], lvl.queue[idx+1:]...)
				continue
			}

			if maker.OwnerID == taker.OwnerID {
				switch ob.stp {
				case SkipOwn:
					idx++
					continue
				case CancelOldest:
					ob.store.remove(maker.ID)
					ob.orderCount.Add(-1)
					lvl.queue = append(lvl.queue[:idx], lvl.queue[idx+1:]...)
					continue
				case CancelNewest:
					killed = true
					break makers
				default: // StopAtOwn: leave the maker, move to the next level
					break makers
				}
			}

			fillQty := *remaining
			if maker.Quantity < fillQty {
				fillQty = maker.Quantity
			}

			fill := Fill{
				MakerOrderID: maker.ID,
				TakerOrderID: taker.ID,
				Quantity:     fillQty,
				PriceTick:    lvl.price,
				Timestamp:    ob.nowNs(),
			}
			fills = append(fills, fill)
			ob.fillsGenerated.Add(1)
			if ob.fillCb != nil {
				ob.fillCb(fill)
			}

			maker.Quantity -= fillQty
			*remaining -= fillQty

			if maker.Quantity == 0 {
				ob.store.remove(maker.ID)
				ob.orderCount.Add(-1)
				lvl.queue = append(lvl.queue[:idx], lvl.queue[idx+1:]...)
			}
		}

		if len(lvl.queue) == 0 {
			contra.removeLevel(lvl.price)
		}
	}

	return fills, killed
}

// rest books the residual at the tail of its level's FIFO with a fresh
// engine timestamp.
func (ob *OrderBook) rest(o Order, remaining uint32) {
	o.Quantity = remaining
	o.Timestamp = ob.nowNs()

	rec := o
	ob.store.put(&rec)
	ob.sideOf(o.Side).appendOrder(o.PriceTick, o.ID)
	ob.orderCount.Add(1)
}

// Cancel removes a resting order. Returns false for an unknown id.
func (ob *OrderBook) Cancel(orderID uint64) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.cancelLocked(orderID)
}

func (ob *OrderBook) cancelLocked(orderID uint64) bool {
	o, ok := ob.store.get(orderID)
	if !ok {
		return false
	}
	ob.sideOf(o.Side).removeOrder(o.PriceTick, orderID)
	ob.store.remove(orderID)
	ob.orderCount.Add(-1)
	return true
}

// Modify is cancel-then-resubmit with the new price and quantity and the
// original side, type, TIF and owner. Time priority is lost. The whole
// sequence runs under one lock acquisition, so it is atomic with respect to
// concurrent submits and cancels. found is false (and the book untouched)
// for an unknown id or a zero quantity.
//
// The resubmit may cross and fill immediately like any new order. A FOK
// resubmit that fails its feasibility check leaves the order cancelled, the
// same as the underlying cancel-then-submit sequence would.
func (ob *OrderBook) Modify(orderID uint64, newPriceTick int64, newQty uint32) (found bool, fills []Fill) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	o, ok := ob.store.get(orderID)
	if !ok || newQty == 0 {
		return false, nil
	}

	orig := *o
	ob.cancelLocked(orderID)

	mod := orig
	mod.PriceTick = newPriceTick
	mod.Quantity = newQty

	_, fills = ob.submitLocked(mod)
	return true, fills
}

// CancelAll cancels every resting order on one side. Observable as a
// sequence of single cancels; no fills are produced. Returns the number of
// orders removed.
func (ob *OrderBook) CancelAll(side OrderSide) int {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ids := make([]uint64, 0, ob.store.len())
	for id, o := range ob.store.orders {
		if o.Side == side {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		ob.cancelLocked(id)
	}
	return len(ids)
}

// CancelAllGFD is the end-of-session sweep: every resting GFD order on both
// sides is cancelled. The trigger is external.
func (ob *OrderBook) CancelAllGFD() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ids := make([]uint64, 0, ob.store.len())
	for id, o := range ob.store.orders {
		if o.TIF == TIFGoodForDay {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		ob.cancelLocked(id)
	}
	return len(ids)
}

// GetOrder returns a copy of a resting order.
func (ob *OrderBook) GetOrder(orderID uint64) (Order, bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	o, ok := ob.store.get(orderID)
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// GetOrderCount reports the number of resting orders. Readable without the
// lock; the value is eventually consistent.
func (ob *OrderBook) GetOrderCount() int {
	return int(ob.orderCount.Load())
}

func (ob *OrderBook) recordSubmit(startNs uint64) {
	now := ob.nowNs()
	ob.ordersProcessed.Add(1)
	if now >= startNs {
		ob.avgProcessingTimeNs.Store(now - startNs)
	}

	sec := now / uint64(time.Second)
	if sec != ob.curSecond {
		ob.curSecond = sec
		ob.curSecondCount = 0
	}
	ob.curSecondCount++
	if ob.curSecondCount > ob.peakOrdersPerSec.Load() {
		ob.peakOrdersPerSec.Store(ob.curSecondCount)
	}
}

// GetStats snapshots the counters.
func (ob *OrderBook) GetStats() Stats {
	return Stats{
		OrdersProcessed:     ob.ordersProcessed.Load(),
		FillsGenerated:      ob.fillsGenerated.Load(),
		AvgProcessingTimeNs: ob.avgProcessingTimeNs.Load(),
		PeakOrdersPerSecond: ob.peakOrdersPerSec.Load(),
	}
}

// ResetStats zeros every counter and the per-second bucket.
func (ob *OrderBook) ResetStats() {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.ordersProcessed.Store(0)
	ob.fillsGenerated.Store(0)
	ob.avgProcessingTimeNs.Store(0)
	ob.peakOrdersPerSec.Store(0)
	ob.curSecond = 0
	ob.curSecondCount = 0
}
