package book

// The matching core. An incoming order walks the opposite side's
// regular and AON levels in price order; at each price the AON chain is
// hit first (its orders are older than anything on the regular chain at
// that price, and only ever fill completely), then the regular FIFO
// chain. Resting AON orders that become fillable through the incoming
// order are swept before and after the walk.

func (b *Book) insertLimitElem(e *queueElem) fillKind {
	isAON := e.cond == CondAON

	rmndr := b.sweepAONPreTrade(e, e.limit)
	if rmndr == 0 {
		return fillFull
	}

	if b.crosses(e.side, e.limit) {
		// an AON taker needs a full fill to be available before it may
		// touch the book at all
		if !isAON || b.limitFillable(e.side, e.limit, rmndr, false).ok {
			rmndr = b.trade(e.side, e.limit, e.id, rmndr, e.cb)
			if rmndr == 0 {
				return fillFull
			}
		}
	}

	o := b.newOrder(e, rmndr)
	if isAON {
		o.where = chainAON
		b.aonTree(e.side).upsert(e.limit).push(o)
	} else {
		o.where = chainLimit
		b.limitTree(e.side).upsert(e.limit).push(o)
	}
	b.cache[o.ID] = o

	b.sweepAONPostTrade(e, e.limit)

	// the post-trade sweep may have consumed the resting remainder
	if rest, ok := b.cache[e.id]; !ok {
		return fillFull
	} else if rest.Size != e.size {
		return fillPartial
	}
	return fillNone
}

func (b *Book) insertMarketElem(e *queueElem) (fillKind, error) {
	bound := b.marketBound(e.side)
	rmndr := b.sweepAONPreTrade(e, bound)
	if rmndr > 0 {
		rmndr = b.trade(e.side, bound, e.id, rmndr, e.cb)
	}
	if rmndr == 0 {
		return fillFull, nil
	}
	b.emit(e.cb, Event{Type: EventKill, ID1: e.id, ID2: e.id, Size: rmndr})
	if rmndr == e.size {
		return fillNone, ErrInsufficientLiquidity
	}
	return fillPartial, ErrInsufficientLiquidity
}

// insertStopElem parks the order on its stop tree; a stop needs an
// actual trade at or through its price, regardless of where the market
// already stands.
func (b *Book) insertStopElem(e *queueElem) {
	o := b.newOrder(e, e.size)
	o.where = chainStop
	b.stopTree(e.side).upsert(e.stop).push(o)
	b.cache[o.ID] = o
}

func (b *Book) marketBound(s Side) int64 {
	if s == Buy {
		return b.ladder.MaxTicks()
	}
	return b.ladder.MinTicks()
}

// crosses reports whether the best opposite regular level trades with a
// limit at the given price.
func (b *Book) crosses(s Side, limit int64) bool {
	if s == Buy {
		lv := b.asks.min()
		return lv != nil && lv.price <= limit
	}
	lv := b.bids.max()
	return lv != nil && lv.price >= limit
}

// nextCrossing finds the best opposite price within limit across the
// regular and AON trees, strictly beyond the previous cursor.
func (b *Book) nextCrossing(taker Side, limit int64, reg, aon *tree, after int64, started bool) (int64, bool) {
	pick := func(t *tree) *level {
		if taker == Buy {
			if !started {
				return t.min()
			}
			return t.successor(after)
		}
		if !started {
			return t.max()
		}
		return t.predecessor(after)
	}
	l1, l2 := pick(reg), pick(aon)

	var p int64
	switch {
	case l1 == nil && l2 == nil:
		return 0, false
	case l1 == nil:
		p = l2.price
	case l2 == nil:
		p = l1.price
	case taker == Buy:
		p = min(l1.price, l2.price)
	default:
		p = max(l1.price, l2.price)
	}
	if taker == Buy && p > limit {
		return 0, false
	}
	if taker == Sell && p < limit {
		return 0, false
	}
	return p, true
}

// trade matches size against the opposite side up to (and including)
// limit and returns what could not be filled.
func (b *Book) trade(taker Side, limit int64, id uint64, size uint64, cb Callback) uint64 {
	reg := b.limitTree(taker.Opposite())
	aon := b.aonTree(taker.Opposite())

	cur, started := int64(0), false
	for size > 0 {
		p, ok := b.nextCrossing(taker, limit, reg, aon, cur, started)
		if !ok {
			break
		}
		cur, started = p, true

		if al := aon.find(p); al != nil {
			size = b.hitAONChain(al, id, size, cb)
			if al.empty() {
				aon.remove(p)
			}
		}
		if size > 0 {
			if rl := reg.find(p); rl != nil {
				size = b.hitChain(rl, reg, id, size, cb)
			}
		}
	}
	return size
}

// hitChain consumes a regular FIFO chain from the head. Advanced
// trigger conditions are evaluated before the resting size is reduced,
// so a full-fill trigger can compare against the pre-trade size.
func (b *Book) hitChain(lv *level, t *tree, takerID uint64, size uint64, takerCB Callback) uint64 {
	for size > 0 {
		o := lv.head
		if o == nil {
			break
		}
		amount := min(size, o.Size)

		b.tradeOccurred(lv.price, amount, takerID, o.ID, takerCB, o.cb)
		size -= amount

		if o.cond != CondNone && o.trigger != TriggerNone {
			if o.trigger != TriggerFillFull || o.Size == amount {
				if !b.handleAdvancedCancel(o, o.ID) {
					b.handleAdvancedTrigger(o, o.ID)
				}
			}
		}

		lv.reduce(o, amount)
		if o.Size == 0 {
			lv.unlink(o)
			delete(b.cache, o.ID)
			b.retire(o)
		}
	}
	if lv.empty() {
		t.remove(lv.price)
	}
	return size
}

// hitAONChain fills whole resting AON orders; anything larger than the
// remaining taker size is skipped and left resting.
func (b *Book) hitAONChain(lv *level, takerID uint64, size uint64, takerCB Callback) uint64 {
	o := lv.head
	for o != nil && size > 0 {
		next := o.next
		if size >= o.Size {
			b.tradeOccurred(lv.price, o.Size, takerID, o.ID, takerCB, o.cb)
			size -= o.Size
			lv.unlink(o)
			delete(b.cache, o.ID)
			b.retire(o)
		}
		o = next
	}
	return size
}

func (b *Book) tradeOccurred(price int64, size uint64, id1, id2 uint64, cb1, cb2 Callback) {
	b.emit(cb1, Event{Type: EventFill, ID1: id1, ID2: id1, Price: price, Size: size})
	b.emit(cb2, Event{Type: EventFill, ID1: id2, ID2: id2, Price: price, Size: size})

	b.sales = append(b.sales, Trade{At: b.now(), Price: price, Size: size})
	b.traded = true
	b.last = price
	b.lastSize = size
	b.lastID = id1
	b.volume += size
	b.needCheckStops = true
}

type fillable struct {
	ok    bool
	total uint64
}

// limitFillable simulates matching sz at limit against the current
// book, in exact match order, and reports whether it would fill
// completely along with how much would fill. AON makers only count when
// the simulated remainder covers them entirely.
func (b *Book) limitFillable(s Side, limit int64, sz uint64, allowPartial bool) fillable {
	reg := b.limitTree(s.Opposite())
	aon := b.aonTree(s.Opposite())

	var tot uint64
	check := func(elemSz uint64, isAON bool) bool {
		if isAON {
			if tot <= sz && sz-tot >= elemSz {
				tot += elemSz
				if allowPartial {
					return true
				}
			}
		} else {
			tot += elemSz
			if allowPartial {
				return true
			}
		}
		return tot >= sz
	}

	cur, started := int64(0), false
	for {
		p, ok := b.nextCrossing(s, limit, reg, aon, cur, started)
		if !ok {
			break
		}
		cur, started = p, true

		if al := aon.find(p); al != nil {
			for o := al.head; o != nil; o = o.next {
				if check(o.Size, true) {
					return fillable{ok: true, total: tot}
				}
			}
		}
		if rl := reg.find(p); rl != nil {
			for o := rl.head; o != nil; o = o.next {
				if check(o.Size, false) {
					return fillable{ok: true, total: tot}
				}
			}
		}
	}
	return fillable{ok: false, total: tot}
}

/* ---------------- AON sweeps ---------------- */

// overlappingAONs returns resting opposite AON ids whose price crosses
// bound, farthest from the bound first (an AON at a better price takes
// priority over standard limits on the other side).
func (b *Book) overlappingAONs(taker Side, bound int64) []uint64 {
	t := b.aonTree(taker.Opposite())
	var ids []uint64
	walk := func(lv *level) bool {
		if taker == Buy && lv.price > bound {
			return false
		}
		if taker == Sell && lv.price < bound {
			return false
		}
		for o := lv.head; o != nil; o = o.next {
			ids = append(ids, o.ID)
		}
		return true
	}
	if taker == Buy {
		t.ascend(walk)
	} else {
		t.descend(walk)
	}
	return ids
}

func (b *Book) popAON(o *Order) {
	lv := o.lvl
	lv.unlink(o)
	if lv.empty() {
		b.aonTree(o.Side).remove(lv.price)
	}
	delete(b.cache, o.ID)
	o.where = chainNone
}

// sweepAONPreTrade executes resting opposite AON orders that become
// fillable once the incoming order's size is available, before the
// incoming order itself touches the book. Each executed AON trades
// against its own book first; whatever it has left trades directly with
// the incoming order.
func (b *Book) sweepAONPreTrade(e *queueElem, bound int64) uint64 {
	rmndr := e.size
	isAON := e.cond == CondAON

	for _, id := range b.overlappingAONs(e.side, bound) {
		o := b.cache[id]
		if o == nil || o.where != chainAON {
			continue
		}
		f := b.limitFillable(o.Side, o.Price, o.Size, false)
		available := rmndr + f.total

		if f.ok || (isAON && o.Size == available) || (!isAON && o.Size < available) {
			b.popAON(o)
			r := b.trade(o.Side, o.Price, o.ID, o.Size, o.cb)
			if r > rmndr {
				panic("book: aon remainder exceeds incoming size")
			}
			if r > 0 {
				// price the direct cross at the incoming limit; a market
				// taker has no limit, so use the AON's own price
				p := bound
				if e.otype == Market {
					p = o.Price
				}
				b.tradeOccurred(p, r, o.ID, e.id, o.cb, e.cb)
				rmndr -= r
			}
			b.retire(o)
			if rmndr == 0 {
				break
			}
		}
	}
	return rmndr
}

// sweepAONPostTrade executes resting opposite AON orders that the
// incoming order's resting remainder has made fillable.
func (b *Book) sweepAONPostTrade(e *queueElem, bound int64) {
	for _, id := range b.overlappingAONs(e.side, bound) {
		o := b.cache[id]
		if o == nil || o.where != chainAON {
			continue
		}
		if !b.limitFillable(o.Side, o.Price, o.Size, false).ok {
			continue
		}
		b.popAON(o)
		if r := b.trade(o.Side, o.Price, o.ID, o.Size, o.cb); r != 0 {
			panic("book: aon fill left a remainder")
		}
		b.retire(o)
	}
}
