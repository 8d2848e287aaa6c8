package book

// Advanced order routing and the per-condition state machines.
//
// A condition lives in one of two phases. Before its trigger fires it
// rides on the primary order (OCO legs, OTO/bracket/trailing params).
// When the trigger fires the handler runs, emits its trigger event, and
// either finishes (OCO pulls the sibling) or spawns follow-on orders
// through the internal queue under an Active condition.

func (b *Book) routeAdvanced(e *queueElem) error {
	switch e.cond {
	case CondOCO, CondBracketActive:
		return b.insertOCO(e)
	case CondOTO:
		return b.insertOTO(e)
	case CondFOK:
		b.insertFOK(e)
		return nil
	case CondBracket:
		return b.insertBracket(e)
	case CondTrailingStop:
		return b.insertTrailingStop(e)
	case CondTrailingBracket:
		return b.insertTrailingBracket(e)
	case CondTrailingStopActive:
		b.insertTrailingStopActive(e)
		return nil
	case CondTrailingBracketActive:
		return b.insertTrailingBracketActive(e)
	}
	panic("book: invalid advanced condition on queue")
}

// handleAdvancedCancel runs conditions that cancel other orders when
// their trigger fires. It reports whether a handler ran.
func (b *Book) handleAdvancedCancel(o *Order, id uint64) bool {
	switch o.cond {
	case CondOCO, CondBracketActive, CondTrailingBracketActive:
		// a leg consumed before its sibling is linked fills as a plain
		// order; the insert path sees the fill and resolves the pair
		if o.linked == nil {
			return false
		}
		b.handleOCO(o, id)
		return true
	}
	return false
}

// handleAdvancedTrigger runs conditions that create other orders when
// their trigger fires. It reports whether a handler ran.
func (b *Book) handleAdvancedTrigger(o *Order, id uint64) bool {
	switch o.cond {
	case CondOTO:
		if o.contingent == nil {
			return false
		}
		b.handleOTO(o, id)
	case CondBracket:
		if o.bracket == nil {
			return false
		}
		b.handleBracket(o, id)
	case CondTrailingBracket:
		if o.bracket == nil {
			return false
		}
		b.handleTrailingBracket(o, id)
	case CondTrailingStop:
		if o.contingent == nil {
			return false
		}
		b.handleTrailingStop(o, id)
	default:
		return false
	}
	return true
}

/* ---------------- trigger handlers (resting order fired) ---------------- */

func (b *Book) handleOCO(o *Order, id uint64) {
	loc := o.linked
	if loc == nil {
		panic("book: oco trigger without a linked sibling")
	}
	idOld := id
	if loc.primary {
		idOld = loc.id
	}
	b.execOCO(o.cond, o.cb, idOld, id, loc.id)
	o.linked = nil
	o.cond = CondNone
	o.trigger = TriggerNone
}

func (b *Book) handleOTO(o *Order, id uint64) {
	if o.contingent == nil {
		panic("book: oto trigger without contingent params")
	}
	b.execOTO(*o.contingent, o.cb, id)
	o.contingent = nil
	o.cond = CondNone
	o.trigger = TriggerNone
}

func (b *Book) handleBracket(o *Order, id uint64) {
	if o.bracket == nil {
		panic("book: bracket trigger without leg params")
	}
	b.execBracket(o.bracket.loss, o.bracket.target, o.cb, o.trigger, id)
	o.bracket = nil
	o.cond = CondNone
	o.trigger = TriggerNone
}

func (b *Book) handleTrailingBracket(o *Order, id uint64) {
	if o.bracket == nil {
		panic("book: trailing bracket trigger without leg params")
	}
	b.execTrailingBracket(o.bracket.loss, o.bracket.target, o.cb, o.trigger, id)
	o.bracket = nil
	o.cond = CondNone
	o.trigger = TriggerNone
}

func (b *Book) handleTrailingStop(o *Order, id uint64) {
	if o.contingent == nil {
		panic("book: trailing stop trigger without params")
	}
	b.execTrailingStop(*o.contingent, o.cb, o.trigger, id)
	o.contingent = nil
	o.cond = CondNone
	o.trigger = TriggerNone
}

/* ---------------- exec helpers ---------------- */

func (b *Book) execOCO(c Condition, cb Callback, idOld, idNew, idPull uint64) {
	msg := EventTriggerOCO
	if c != CondOCO {
		msg = EventBracketClose
	}
	b.emit(cb, Event{Type: msg, ID1: idOld, ID2: idNew})
	if idPull != 0 {
		b.pullOrder(idPull, false)
	}
}

func (b *Book) execOTO(op leg, cb Callback, id uint64) {
	idNew := b.genID()
	b.emit(cb, Event{Type: EventTriggerOTO, ID1: id, ID2: idNew})
	b.enqueue(queueElem{
		otype: op.orderType(), side: op.side, limit: op.limit,
		stop: op.stop, size: op.size, cb: cb, id: idNew,
	})
}

// execBracket opens a filled bracket: the target limit leg goes onto
// the queue carrying the loss leg's params, and the resulting pair
// behaves as an OCO.
func (b *Book) execBracket(loss, target leg, cb Callback, tr Trigger, id uint64) {
	idNew := b.genID()
	b.emit(cb, Event{Type: EventBracketOpen, ID1: id, ID2: idNew})
	lossCopy := loss
	b.enqueue(queueElem{
		otype: Limit, side: target.side, limit: target.limit,
		size: target.size, cb: cb, cond: CondBracketActive, trigger: tr,
		params1: &lossCopy, id: idNew,
	})
}

func (b *Book) execTrailingBracket(loss, target leg, cb Callback, tr Trigger, id uint64) {
	idNew := b.genID()
	b.emit(cb, Event{Type: EventBracketOpen, ID1: id, ID2: idNew})
	lossCopy := loss
	b.enqueue(queueElem{
		otype: Limit, side: target.side,
		limit: b.trailingLimitPrice(target.side == Buy, target.limit),
		size: target.size, cb: cb, cond: CondTrailingBracketActive,
		trigger: tr, params1: &lossCopy, id: idNew,
	})
}

func (b *Book) execTrailingStop(op leg, cb Callback, tr Trigger, id uint64) {
	idNew := b.genID()
	b.emit(cb, Event{Type: EventTriggerTrailingStop, ID1: id, ID2: idNew})
	opCopy := op
	b.enqueue(queueElem{
		otype: Stop, side: op.side,
		stop: b.trailingStopPrice(op.side == Buy, op.stop),
		size: op.size, cb: cb, cond: CondTrailingStopActive,
		trigger: tr, params1: &opCopy, id: idNew,
	})
}

/* ---------------- inserts ---------------- */

// stripIfResting turns an immediate-trigger remainder into a plain
// order; the condition has been consumed.
func (b *Book) stripIfResting(id uint64) {
	o := b.cache[id]
	if o == nil {
		return
	}
	o.cond = CondNone
	o.trigger = TriggerNone
	o.contingent = nil
	o.bracket = nil
	o.linked = nil
}

// primaryAfterInsert looks up a primary that did not trigger. A market
// primary killed for lack of liquidity never rests; the ticket dies
// with it.
func (b *Book) primaryAfterInsert(e *queueElem) *Order {
	o := b.cache[e.id]
	if o == nil && e.otype != Market {
		panic("book: advanced primary missing after insert")
	}
	return o
}

func (b *Book) insertOCO(e *queueElem) error {
	op := e.params1
	partialOK := e.trigger == TriggerFillPartial

	// if the primary fills immediately there is no need for the second
	filled, err := b.inject(e, partialOK)
	if filled {
		b.execOCO(e.cond, e.cb, e.id, e.id, 0)
		b.stripIfResting(e.id)
		return err
	}

	id2 := b.genID()
	e2 := queueElem{
		otype: op.orderType(), side: op.side, limit: op.limit,
		stop: op.stop, size: op.size, cb: e.cb, cond: e.cond,
		trigger: e.trigger, id: id2,
	}

	// if the second fills immediately, the first is pulled
	filled2, err2 := b.inject(&e2, partialOK)
	if filled2 {
		b.execOCO(e.cond, e.cb, e.id, id2, e.id)
		b.stripIfResting(id2)
		if err != nil {
			return err
		}
		return err2
	}

	o1, o2 := b.cache[e.id], b.cache[id2]
	if o1 == nil || o2 == nil {
		panic("book: oco leg missing after insert")
	}
	o1.linked = &linkRef{id: id2, primary: false}
	o2.linked = &linkRef{id: e.id, primary: true}
	o1.cond, o2.cond = e.cond, e.cond
	o1.trigger, o2.trigger = e.trigger, e.trigger
	return err
}

func (b *Book) insertOTO(e *queueElem) error {
	op := e.params1
	filled, err := b.inject(e, e.trigger == TriggerFillPartial)
	if filled {
		b.execOTO(*op, e.cb, e.id)
		b.stripIfResting(e.id)
		return err
	}
	o := b.primaryAfterInsert(e)
	if o == nil {
		return err
	}
	cp := *op
	o.contingent = &cp
	o.cond, o.trigger = e.cond, e.trigger
	return err
}

func (b *Book) insertBracket(e *queueElem) error {
	filled, err := b.inject(e, e.trigger == TriggerFillPartial)
	if filled {
		b.execBracket(*e.params1, *e.params2, e.cb, e.trigger, e.id)
		b.stripIfResting(e.id)
		return err
	}
	o := b.primaryAfterInsert(e)
	if o == nil {
		return err
	}
	o.bracket = &brackets{loss: *e.params1, target: *e.params2}
	o.cond, o.trigger = e.cond, e.trigger
	return err
}

func (b *Book) insertTrailingBracket(e *queueElem) error {
	filled, err := b.inject(e, e.trigger == TriggerFillPartial)
	if filled {
		b.execTrailingBracket(*e.params1, *e.params2, e.cb, e.trigger, e.id)
		b.stripIfResting(e.id)
		return err
	}
	o := b.primaryAfterInsert(e)
	if o == nil {
		return err
	}
	o.bracket = &brackets{loss: *e.params1, target: *e.params2}
	o.cond, o.trigger = e.cond, e.trigger
	return err
}

func (b *Book) insertTrailingStop(e *queueElem) error {
	op := e.params1
	filled, err := b.inject(e, e.trigger == TriggerFillPartial)
	if filled {
		b.execTrailingStop(*op, e.cb, e.trigger, e.id)
		b.stripIfResting(e.id)
		return err
	}
	o := b.primaryAfterInsert(e)
	if o == nil {
		return err
	}
	cp := *op
	o.contingent = &cp
	o.cond, o.trigger = e.cond, e.trigger
	return err
}

// insertTrailingStopActive rests the generated stop, regenerated from
// the current last trade price, and registers it for trailing.
func (b *Book) insertTrailingStopActive(e *queueElem) {
	nticks := e.params1.stop
	e.stop = b.trailingStopPrice(e.side == Buy, nticks)
	o := b.newOrder(e, e.size)
	o.nticks = nticks
	o.where = chainStop
	b.stopTree(e.side).upsert(e.stop).push(o)
	b.cache[o.ID] = o
	b.trailingInsert(e.id, e.side)
}

// insertTrailingBracketActive injects the target limit leg; if it
// rests, the trailing loss stop is created and the pair linked as an
// OCO.
func (b *Book) insertTrailingBracketActive(e *queueElem) error {
	filled, err := b.inject(e, e.trigger == TriggerFillPartial)
	if filled {
		b.emit(e.cb, Event{Type: EventBracketClose, ID1: e.id, ID2: e.id})
		b.stripIfResting(e.id)
		return err
	}
	o1 := b.cache[e.id]
	if o1 == nil {
		panic("book: trailing bracket target missing after insert")
	}

	loss := e.params1
	nticks := loss.stop
	id2 := b.genID()
	stopAt := b.trailingStopPrice(loss.side == Buy, nticks)

	o2 := b.pool.Get()
	*o2 = Order{
		ID:      id2,
		Side:    loss.side,
		Type:    Stop,
		Stop:    stopAt,
		Size:    loss.size,
		cond:    CondTrailingBracketActive,
		trigger: e.trigger,
		cb:      e.cb,
		nticks:  nticks,
		where:   chainStop,
	}
	b.stopTree(loss.side).upsert(stopAt).push(o2)
	b.cache[id2] = o2
	b.trailingInsert(id2, loss.side)

	o1.linked = &linkRef{id: id2, primary: false}
	o2.linked = &linkRef{id: e.id, primary: true}
	o1.cond, o1.trigger = e.cond, e.trigger
	return err
}

// insertFOK checks that the limit can fill immediately before routing
// it; with a full-fill trigger the whole size must be available, with a
// partial trigger one crossing order suffices. Nothing ever rests: any
// remainder after matching is killed.
func (b *Book) insertFOK(e *queueElem) {
	need := e.size
	if e.trigger == TriggerFillPartial {
		need = 0
	}
	if !b.limitFillable(e.side, e.limit, need, false).ok {
		b.emit(e.cb, Event{Type: EventKill, ID1: e.id, ID2: e.id, Price: e.limit, Size: e.size})
		return
	}
	rmndr := b.trade(e.side, e.limit, e.id, e.size, e.cb)
	if rmndr > 0 {
		b.emit(e.cb, Event{Type: EventKill, ID1: e.id, ID2: e.id, Price: e.limit, Size: rmndr})
	}
}
