package engine

// Market-data reads. Prices leave the tick domain here and nowhere else;
// every accessor except the lock-free tick hints takes the book lock for a
// consistent view.

// levelVolume sums resting quantity at a level by resolving each queued id
// through the store.
func (ob *OrderBook) levelVolume(lvl *priceLevel) uint64 {
	var total uint64
	for _, id := range lvl.queue {
		if o, ok := ob.store.get(id); ok {
			total += uint64(o.Quantity)
		}
	}
	return total
}

// BestBid returns the top-of-book bid price, or -1.0 when the bid side is
// empty.
func (ob *OrderBook) BestBid() float64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	lvl := ob.bids.best()
	if lvl == nil {
		return -1.0
	}
	return PriceFromTick(lvl.price)
}

// BestAsk returns the top-of-book ask price, or -1.0 when the ask side is
// empty.
func (ob *OrderBook) BestAsk() float64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	lvl := ob.asks.best()
	if lvl == nil {
		return -1.0
	}
	return PriceFromTick(lvl.price)
}

// GetTopLevels returns up to depth aggregated levels for one side, best
// price first.
func (ob *OrderBook) GetTopLevels(side OrderSide, depth int) []LevelInfo {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if depth <= 0 {
		return []LevelInfo{}
	}
	result := make([]LevelInfo, 0, depth)

	ob.sideOf(side).ascend(func(lvl *priceLevel) bool {
		result = append(result, LevelInfo{
			PriceTick:     lvl.price,
			TotalQuantity: ob.levelVolume(lvl),
			OrderCount:    uint32(len(lvl.queue)),
		})
		return len(result) < depth
	})
	return result
}

// GetTotalVolume sums all resting quantity on one side.
func (ob *OrderBook) GetTotalVolume(side OrderSide) uint64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var total uint64
	ob.sideOf(side).ascend(func(lvl *priceLevel) bool {
		total += ob.levelVolume(lvl)
		return true
	})
	return total
}

// GetWeightedMidPrice returns the cross-weighted mid: each best price is
// weighted by the opposite side's top-level volume, pulling the mid toward
// the price of the side with less top-level volume. -1.0 when either side is
// empty; plain mid when both top
// levels are empty of volume.
func (ob *OrderBook) GetWeightedMidPrice() float64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	bidLvl := ob.bids.best()
	askLvl := ob.asks.best()
	if bidLvl == nil || askLvl == nil {
		return -1.0
	}

	bid := PriceFromTick(bidLvl.price)
	ask := PriceFromTick(askLvl.price)
	bidVol := ob.levelVolume(bidLvl)
	askVol := ob.levelVolume(askLvl)

	if bidVol+askVol == 0 {
		return (bid + ask) / 2.0
	}
	return (bid*float64(askVol) + ask*float64(bidVol)) / float64(bidVol+askVol)
}

// BestBidTickHint and BestAskTickHint expose the lock-free best-tick caches.
// They are maintained on rest and refreshed on top-level removal, but a
// reader that needs strict accuracy should use BestBid/BestAsk.
func (ob *OrderBook) BestBidTickHint() (int64, bool) {
	tick := ob.bids.bestTick.Load()
	return tick, tick != ob.bids.emptyTick
}

func (ob *OrderBook) BestAskTickHint() (int64, bool) {
	tick := ob.asks.bestTick.Load()
	return tick, tick != ob.asks.emptyTick
}
