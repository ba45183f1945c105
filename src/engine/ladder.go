package engine

import (
	"math"
	"sync/atomic"

	"github.com/google/btree"
)

// priceLevel is all resting quantity at one tick on one side. The queue holds
// order ids in arrival order; resolve through the store on every access.
type priceLevel struct {
	price int64
	queue []uint64
}

// bidLevelItem sorts descending so that tree.Min() is the highest bid and
// Ascend walks best to worst.
type bidLevelItem struct {
	level *priceLevel
}

func (b *bidLevelItem) Less(than btree.Item) bool {
	return b.level.price > than.(*bidLevelItem).level.price
}

// askLevelItem sorts ascending so that tree.Min() is the lowest ask.
type askLevelItem struct {
	level *priceLevel
}

func (a *askLevelItem) Less(than btree.Item) bool {
	return a.level.price < than.(*askLevelItem).level.price
}

// ladder is one side of the book: an ordered set of price levels plus a
// cached best tick. The cache improves monotonically on insert and is
// recomputed whenever the top level is removed, so it always names a live
// level while the side is non-empty.
type ladder struct {
	side      OrderSide
	tree      *btree.BTree
	bestTick  atomic.Int64
	emptyTick int64
}

func newLadder(side OrderSide) *ladder {
	l := &ladder{
		side: side,
		tree: btree.New(32),
	}
	if side == SideBuy {
		l.emptyTick = math.MinInt64
	} else {
		l.emptyTick = math.MaxInt64
	}
	l.bestTick.Store(l.emptyTick)
	return l
}

func (l *ladder) probe(price int64) btree.Item {
	if l.side == SideBuy {
		return &bidLevelItem{level: &priceLevel{price: price}}
	}
	return &askLevelItem{level: &priceLevel{price: price}}
}

func (l *ladder) wrap(level *priceLevel) btree.Item {
	if l.side == SideBuy {
		return &bidLevelItem{level: level}
	}
	return &askLevelItem{level: level}
}

func (l *ladder) unwrap(item btree.Item) *priceLevel {
	if l.side == SideBuy {
		return item.(*bidLevelItem).level
	}
	return item.(*askLevelItem).level
}

func (l *ladder) level(price int64) *priceLevel {
	item := l.tree.Get(l.probe(price))
	if item == nil {
		return nil
	}
	return l.unwrap(item)
}

func (l *ladder) getOrCreate(price int64) *priceLevel {
	if existing := l.level(price); existing != nil {
		return existing
	}
	level := &priceLevel{price: price}
	l.tree.ReplaceOrInsert(l.wrap(level))
	return level
}

// appendOrder queues an order id at the tail of its level, creating the level
// if needed, and advances the best-tick cache when the price improves on it.
func (l *ladder) appendOrder(price int64, orderID uint64) {
	level := l.getOrCreate(price)
	level.queue = append(level.queue, orderID)

	best := l.bestTick.Load()
	if l.side == SideBuy {
		if price > best {
			l.bestTick.Store(price)
		}
	} else {
		if price < best {
			l.bestTick.Store(price)
		}
	}
}

// removeOrder drops an order id from its level's queue. The level is removed
// the moment it empties.
func (l *ladder) removeOrder(price int64, orderID uint64) bool {
	level := l.level(price)
	if level == nil {
		return false
	}
	for i, id := range level.queue {
		if id == orderID {
			level.queue = append(level.queue[:i], level.queue[i+1:]...)
			if len(level.queue) == 0 {
				l.removeLevel(price)
			}
			return true
		}
	}
	return false
}

// removeLevel erases a level and refreshes the best-tick cache if the erased
// level was the cached top.
func (l *ladder) removeLevel(price int64) {
	l.tree.Delete(l.probe(price))
	if l.bestTick.Load() == price {
		l.refreshBest()
	}
}

func (l *ladder) refreshBest() {
	item := l.tree.Min()
	if item == nil {
		l.bestTick.Store(l.emptyTick)
		return
	}
	l.bestTick.Store(l.unwrap(item).price)
}

// best returns the top level, or nil for an empty side.
func (l *ladder) best() *priceLevel {
	item := l.tree.Min()
	if item == nil {
		return nil
	}
	return l.unwrap(item)
}

// ascend walks levels best to worst until fn returns false. The tree must not
// be mutated during the walk.
func (l *ladder) ascend(fn func(*priceLevel) bool) {
	l.tree.Ascend(func(item btree.Item) bool {
		return fn(l.unwrap(item))
	})
}

func (l *ladder) levelCount() int {
	return l.tree.Len()
}

func (l *ladder) empty() bool {
	return l.tree.Len() == 0
}
