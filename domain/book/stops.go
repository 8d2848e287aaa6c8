package book

// Stop triggering and trailing stop maintenance. Both run after each
// queue element finishes, never in the middle of a matching walk, so
// the book a triggered order sees is exactly the book its conversion
// was priced against.

// checkStops triggers every stop the last trade price has reached: buy
// stops at or below last, nearest first, then sell stops at or above
// last. Converted orders go onto the internal queue.
func (b *Book) checkStops() {
	b.needCheckStops = false
	if !b.traded {
		return
	}
	last := b.last

	var buys, sells []int64
	b.buyStops.ascend(func(lv *level) bool {
		if lv.price > last {
			return false
		}
		buys = append(buys, lv.price)
		return true
	})
	b.sellStops.descend(func(lv *level) bool {
		if lv.price < last {
			return false
		}
		sells = append(sells, lv.price)
		return true
	})

	for _, p := range buys {
		b.triggerStopLevel(b.buyStops, p)
	}
	for _, p := range sells {
		b.triggerStopLevel(b.sellStops, p)
	}
}

// triggerStopLevel converts every stop on one level. Iteration is over
// an id snapshot: converting one stop can pull an OCO sibling out of
// this same chain.
func (b *Book) triggerStopLevel(t *tree, price int64) {
	lv := t.find(price)
	if lv == nil {
		return
	}
	ids := make([]uint64, 0, lv.count)
	for o := lv.head; o != nil; o = o.next {
		ids = append(ids, o.ID)
	}
	for _, id := range ids {
		o := b.cache[id]
		if o == nil || o.lvl != lv || o.where != chainStop {
			continue
		}
		lv.unlink(o)
		b.convertStop(o)
	}
	if lv.empty() && t.find(price) == lv {
		t.remove(price)
	}
}

// convertStop turns a triggered stop into a market or limit element on
// the internal queue under a fresh id. A trailing condition that has
// not fired yet transfers to the converted order; every other condition
// resolves here.
func (b *Book) convertStop(o *Order) {
	b.trailingErase(o.ID, o.Side)

	if o.cond != CondNone {
		b.handleAdvancedCancel(o, o.ID)
	}

	idNew := b.genID()
	msg, ot := EventStopToMarket, Market
	if o.Type == StopLimit {
		msg, ot = EventStopToLimit, Limit
	}
	b.emit(o.cb, Event{Type: msg, ID1: o.ID, ID2: idNew, Price: o.Price, Size: o.Size})

	e := queueElem{otype: ot, side: o.Side, limit: o.Price, size: o.Size, cb: o.cb, id: idNew}
	switch o.cond {
	case CondTrailingStop:
		e.cond, e.trigger = o.cond, o.trigger
		cp := *o.contingent
		e.params1 = &cp
	case CondTrailingBracket:
		e.cond, e.trigger = o.cond, o.trigger
		loss, target := o.bracket.loss, o.bracket.target
		e.params1, e.params2 = &loss, &target
	}
	b.enqueue(e)

	switch o.cond {
	case CondNone, CondTrailingStop, CondTrailingBracket:
	default:
		b.handleAdvancedTrigger(o, o.ID)
	}

	delete(b.cache, o.ID)
	b.retire(o)
}

/* ---------------- trailing stops ---------------- */

func (b *Book) trailingInsert(id uint64, s Side) {
	if s == Buy {
		b.trailingBuy = append(b.trailingBuy, id)
	} else {
		b.trailingSell = append(b.trailingSell, id)
	}
}

func (b *Book) trailingErase(id uint64, s Side) {
	sl := &b.trailingBuy
	if s == Sell {
		sl = &b.trailingSell
	}
	for i, v := range *sl {
		if v == id {
			*sl = append((*sl)[:i], (*sl)[i+1:]...)
			return
		}
	}
}

// adjustTrailingStops re-anchors trailing stops after the last trade
// price moved. Buy stops chase the market down, sell stops chase it up;
// the other side never loosens.
func (b *Book) adjustTrailingStops(down bool) {
	ids, s := b.trailingSell, Sell
	if down {
		ids, s = b.trailingBuy, Buy
	}
	for _, id := range append([]uint64(nil), ids...) {
		b.adjustTrailingStop(id, s)
	}
}

func (b *Book) adjustTrailingStop(id uint64, s Side) {
	o := b.cache[id]
	if o == nil || o.where != chainStop || o.nticks == 0 {
		return
	}
	want := b.trailingStopPrice(s == Buy, o.nticks)
	// ratchet only: a buy stop moves down, a sell stop moves up
	if s == Buy && want >= o.Stop {
		return
	}
	if s == Sell && want <= o.Stop {
		return
	}

	lv := o.lvl
	lv.unlink(o)
	if lv.empty() {
		b.stopTree(s).remove(lv.price)
	}
	o.Stop = want
	b.stopTree(s).upsert(want).push(o)

	b.emit(o.cb, Event{Type: EventAdjustTrailingStop, ID1: id, ID2: id, Price: want, Size: o.Size})
}

/* ---------------- trailing price generation ---------------- */

func (b *Book) clampTick(t int64) int64 {
	if t < b.ladder.MinTicks() {
		return b.ladder.MinTicks()
	}
	if t > b.ladder.MaxTicks() {
		return b.ladder.MaxTicks()
	}
	return t
}

// trailingStopPrice anchors a trailing stop n ticks away from the last
// trade, on the losing side.
func (b *Book) trailingStopPrice(buy bool, n int64) int64 {
	if buy {
		return b.clampTick(b.last + n)
	}
	return b.clampTick(b.last - n)
}

// trailingLimitPrice anchors a trailing bracket target n ticks away
// from the last trade, on the winning side.
func (b *Book) trailingLimitPrice(buy bool, n int64) int64 {
	if buy {
		return b.clampTick(b.last - n)
	}
	return b.clampTick(b.last + n)
}
