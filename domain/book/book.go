// Package book implements a single-instrument limit order book with
// price-time-priority matching, stop and stop-limit orders, an
// all-or-nothing sub-book, and advanced order tickets (OCO, OTO, FOK,
// AON, brackets, trailing stops).
//
// The book is not safe for concurrent use; callers serialize access
// (the service layer holds one mutex around every command). All prices
// are int64 tick indices on the book's tick.Ladder.
package book

import (
	"fmt"
	"time"

	"odin/domain/tick"
	"odin/infra/memory"
)

// queueElem is one unit of work on the internal order queue. External
// commands enter as a single elem; triggered conditions and converted
// stops append further elems, which drain before the command returns.
type queueElem struct {
	otype   OrderType
	side    Side
	limit   int64
	stop    int64
	size    uint64
	cb      Callback
	cond    Condition
	trigger Trigger
	params1 *leg
	params2 *leg
	id      uint64
}

type deferred struct {
	cb Callback
	ev Event
}

type fillKind uint8

const (
	fillNone fillKind = iota
	fillPartial
	fillFull
)

type Book struct {
	ladder tick.Ladder

	bids      *tree
	asks      *tree
	buyStops  *tree
	sellStops *tree
	aonBids   *tree
	aonAsks   *tree

	cache map[uint64]*Order

	trailingBuy  []uint64
	trailingSell []uint64

	queue  []queueElem
	events []deferred

	pool    *memory.Pool[Order]
	retired *memory.RetireRing[Order]

	nextID uint64

	traded   bool
	last     int64
	lastSize uint64
	lastID   uint64
	volume   uint64
	sales    []Trade

	needCheckStops bool

	now func() time.Time
}

func New(l tick.Ladder) *Book {
	return &Book{
		ladder:    l,
		bids:      newTree(),
		asks:      newTree(),
		buyStops:  newTree(),
		sellStops: newTree(),
		aonBids:   newTree(),
		aonAsks:   newTree(),
		cache:     make(map[uint64]*Order),
		pool:      memory.NewPool(func() *Order { return new(Order) }),
		retired:   memory.NewRetireRing[Order](1024),
		now:       time.Now,
	}
}

func (b *Book) Ladder() tick.Ladder { return b.ladder }

// InsertLimit submits a limit order for size at the given tick price.
// It returns the assigned order id; events produced by the insertion
// have been delivered through cb by the time it returns.
func (b *Book) InsertLimit(s Side, limit int64, size uint64, cb Callback, t Ticket) (uint64, error) {
	e, err := b.prepLimit(s, limit, size, cb, t)
	if err != nil {
		return 0, err
	}
	return b.submit(e)
}

// InsertMarket submits a market order. If the book cannot fill it
// completely, the fills that occurred stand, the remainder is killed,
// and ErrInsufficientLiquidity is returned along with the order id.
func (b *Book) InsertMarket(s Side, size uint64, cb Callback, t Ticket) (uint64, error) {
	e, err := b.prepMarket(s, size, cb, t)
	if err != nil {
		return 0, err
	}
	return b.submit(e)
}

// InsertStop submits a stop order that converts to a market order when
// the book trades at or through the stop price.
func (b *Book) InsertStop(s Side, stop int64, size uint64, cb Callback, t Ticket) (uint64, error) {
	return b.InsertStopLimit(s, stop, 0, size, cb, t)
}

// InsertStopLimit submits a stop order that converts to a limit order
// at the given limit price. A limit of 0 makes it a plain stop.
func (b *Book) InsertStopLimit(s Side, stop, limit int64, size uint64, cb Callback, t Ticket) (uint64, error) {
	e, err := b.prepStop(s, stop, limit, size, cb, t)
	if err != nil {
		return 0, err
	}
	return b.submit(e)
}

// Pull removes a resting order. A pulled OCO or bracket leg does not
// take its sibling with it; the sibling stays in the book as a plain
// order with its condition stripped.
func (b *Book) Pull(id uint64) bool {
	ok := b.pullOrder(id, true)
	b.drain()
	b.flush()
	b.recycle()
	return ok
}

// ReplaceWithLimit pulls id and inserts a new limit order, returning
// the new id. The new order is validated before the old one is pulled.
func (b *Book) ReplaceWithLimit(id uint64, s Side, limit int64, size uint64, cb Callback, t Ticket) (uint64, error) {
	e, err := b.prepLimit(s, limit, size, cb, t)
	if err != nil {
		return 0, err
	}
	if !b.Pull(id) {
		return 0, fmt.Errorf("replace %d: %w", id, ErrOrderNotFound)
	}
	return b.submit(e)
}

func (b *Book) ReplaceWithMarket(id uint64, s Side, size uint64, cb Callback, t Ticket) (uint64, error) {
	e, err := b.prepMarket(s, size, cb, t)
	if err != nil {
		return 0, err
	}
	if !b.Pull(id) {
		return 0, fmt.Errorf("replace %d: %w", id, ErrOrderNotFound)
	}
	return b.submit(e)
}

func (b *Book) ReplaceWithStop(id uint64, s Side, stop int64, size uint64, cb Callback, t Ticket) (uint64, error) {
	return b.ReplaceWithStopLimit(id, s, stop, 0, size, cb, t)
}

func (b *Book) ReplaceWithStopLimit(id uint64, s Side, stop, limit int64, size uint64, cb Callback, t Ticket) (uint64, error) {
	e, err := b.prepStop(s, stop, limit, size, cb, t)
	if err != nil {
		return 0, err
	}
	if !b.Pull(id) {
		return 0, fmt.Errorf("replace %d: %w", id, ErrOrderNotFound)
	}
	return b.submit(e)
}

/* ---------------- validation ---------------- */

func (b *Book) prepLimit(s Side, limit int64, size uint64, cb Callback, t Ticket) (queueElem, error) {
	if size == 0 {
		return queueElem{}, ErrInvalidSize
	}
	if !b.ladder.Contains(limit) {
		return queueElem{}, fmt.Errorf("limit %d: %w", limit, ErrInvalidPrice)
	}
	p1, p2, err := b.buildTicketParams(s, size, t)
	if err != nil {
		return queueElem{}, err
	}
	switch t.cond {
	case CondOCO:
		if err := b.checkLimitLeg(s, limit, p1, t.cond); err != nil {
			return queueElem{}, err
		}
	case CondBracket:
		if err := b.checkLimitLeg(s, limit, p2, t.cond); err != nil {
			return queueElem{}, err
		}
	}
	return queueElem{
		otype: Limit, side: s, limit: limit, size: size, cb: cb,
		cond: t.cond, trigger: t.trigger, params1: p1, params2: p2,
	}, nil
}

func (b *Book) prepMarket(s Side, size uint64, cb Callback, t Ticket) (queueElem, error) {
	if size == 0 {
		return queueElem{}, ErrInvalidSize
	}
	switch t.cond {
	case CondOCO, CondFOK, CondAON:
		return queueElem{}, fmt.Errorf("%s invalid for market order: %w", t.cond, ErrInvalidTicket)
	}
	p1, p2, err := b.buildTicketParams(s, size, t)
	if err != nil {
		return queueElem{}, err
	}
	return queueElem{
		otype: Market, side: s, size: size, cb: cb,
		cond: t.cond, trigger: t.trigger, params1: p1, params2: p2,
	}, nil
}

func (b *Book) prepStop(s Side, stop, limit int64, size uint64, cb Callback, t Ticket) (queueElem, error) {
	if size == 0 {
		return queueElem{}, ErrInvalidSize
	}
	if !b.ladder.Contains(stop) {
		return queueElem{}, fmt.Errorf("stop %d: %w", stop, ErrInvalidPrice)
	}
	ot := Stop
	if limit != 0 {
		if !b.ladder.Contains(limit) {
			return queueElem{}, fmt.Errorf("limit %d: %w", limit, ErrInvalidPrice)
		}
		ot = StopLimit
	}
	switch t.cond {
	case CondFOK, CondAON:
		return queueElem{}, fmt.Errorf("%s invalid for stop order: %w", t.cond, ErrInvalidTicket)
	}
	p1, p2, err := b.buildTicketParams(s, size, t)
	if err != nil {
		return queueElem{}, err
	}
	if t.cond == CondOCO && p1.stop == stop {
		return queueElem{}, fmt.Errorf("one-cancels-other stop legs at the same price: %w", ErrInvalidTicket)
	}
	return queueElem{
		otype: ot, side: s, limit: limit, stop: stop, size: size, cb: cb,
		cond: t.cond, trigger: t.trigger, params1: p1, params2: p2,
	}, nil
}

// buildTicketParams resolves a ticket's legs against the primary order,
// validating prices and sizes. Bracket and trailing legs take the
// opposite side and the primary's size.
func (b *Book) buildTicketParams(s Side, size uint64, t Ticket) (*leg, *leg, error) {
	switch t.cond {
	case CondNone, CondFOK, CondAON:
		return nil, nil, nil

	case CondOCO, CondOTO:
		l := t.leg1
		if l.size == 0 {
			return nil, nil, fmt.Errorf("%s leg size 0: %w", t.cond, ErrInvalidTicket)
		}
		if err := b.checkLegPrices(t.cond, l); err != nil {
			return nil, nil, err
		}
		if t.cond == CondOCO && l.orderType() == Market {
			return nil, nil, fmt.Errorf("one-cancels-other leg cannot be a market order: %w", ErrInvalidTicket)
		}
		return &l, nil, nil

	case CondBracket:
		loss, target := t.leg1, t.leg2
		loss.side, target.side = s.Opposite(), s.Opposite()
		loss.size, target.size = size, size
		if loss.stop == 0 || target.limit == 0 {
			return nil, nil, fmt.Errorf("bracket needs a loss stop and a target limit: %w", ErrInvalidTicket)
		}
		if err := b.checkLegPrices(t.cond, loss); err != nil {
			return nil, nil, err
		}
		if err := b.checkLegPrices(t.cond, target); err != nil {
			return nil, nil, err
		}
		return &loss, &target, nil

	case CondTrailingStop:
		l := t.leg1
		l.side, l.size = s.Opposite(), size
		if err := b.checkNticks(l.stop); err != nil {
			return nil, nil, err
		}
		return &l, nil, nil

	case CondTrailingBracket:
		loss, target := t.leg1, t.leg2
		loss.side, target.side = s.Opposite(), s.Opposite()
		loss.size, target.size = size, size
		if err := b.checkNticks(loss.stop); err != nil {
			return nil, nil, err
		}
		if err := b.checkNticks(target.limit); err != nil {
			return nil, nil, err
		}
		return &loss, &target, nil
	}
	return nil, nil, fmt.Errorf("condition %s: %w", t.cond, ErrInvalidTicket)
}

func (b *Book) checkLegPrices(c Condition, l leg) error {
	if l.limit != 0 && !b.ladder.Contains(l.limit) {
		return fmt.Errorf("%s leg limit %d: %w", c, l.limit, ErrInvalidPrice)
	}
	if l.stop != 0 && !b.ladder.Contains(l.stop) {
		return fmt.Errorf("%s leg stop %d: %w", c, l.stop, ErrInvalidPrice)
	}
	return nil
}

func (b *Book) checkNticks(n int64) error {
	if n <= 0 || n > b.ladder.TicksInRange() {
		return fmt.Errorf("trailing offset %d ticks: %w", n, ErrInvalidTicket)
	}
	return nil
}

// checkLimitLeg rejects limit/limit pairs that cross or coincide with
// the primary limit; such a pair would trade against itself.
func (b *Book) checkLimitLeg(s Side, limit int64, l *leg, c Condition) error {
	ot := l.orderType()
	if ot == Market {
		return fmt.Errorf("%s limit/market pair: %w", c, ErrInvalidTicket)
	}
	if ot != Limit {
		return nil
	}
	switch {
	case s == Buy && l.side == Sell && limit >= l.limit:
		return fmt.Errorf("%s buy limit %d at or above sell leg %d: %w", c, limit, l.limit, ErrInvalidTicket)
	case s == Sell && l.side == Buy && limit <= l.limit:
		return fmt.Errorf("%s sell limit %d at or below buy leg %d: %w", c, limit, l.limit, ErrInvalidTicket)
	case l.limit == limit:
		return fmt.Errorf("%s limit legs at the same price: %w", c, ErrInvalidTicket)
	}
	return nil
}

/* ---------------- execution driver ---------------- */

func (b *Book) genID() uint64 {
	b.nextID++
	return b.nextID
}

func (b *Book) enqueue(e queueElem) {
	b.queue = append(b.queue, e)
}

// submit runs one external command, drains everything it spawned, and
// delivers the deferred events before returning.
func (b *Book) submit(e queueElem) (uint64, error) {
	e.id = b.genID()
	err := b.insertElem(&e)
	b.drain()
	b.flush()
	b.recycle()
	return e.id, err
}

func (b *Book) drain() {
	for len(b.queue) > 0 {
		e := b.queue[0]
		b.queue = b.queue[1:]
		// a liquidity shortfall on an internally spawned market order
		// surfaces as a kill event only
		_ = b.insertElem(&e)
	}
}

func (b *Book) insertElem(e *queueElem) error {
	prevLast := b.last
	var err error
	if e.cond == CondNone || e.cond == CondAON {
		_, err = b.routeBasic(e)
	} else {
		err = b.routeAdvanced(e)
	}
	if b.traded && b.last != prevLast {
		b.adjustTrailingStops(b.last < prevLast)
	}
	if b.needCheckStops {
		b.checkStops()
	}
	return err
}

func (b *Book) routeBasic(e *queueElem) (fillKind, error) {
	switch e.otype {
	case Limit:
		return b.insertLimitElem(e), nil
	case Market:
		return b.insertMarketElem(e)
	case Stop, StopLimit:
		b.insertStopElem(e)
		return fillNone, nil
	}
	panic("book: invalid order type on queue")
}

// inject runs a basic order for an advanced handler and reports whether
// it filled enough to count as triggered.
func (b *Book) inject(e *queueElem, partialOK bool) (bool, error) {
	fk, err := b.routeBasic(e)
	switch fk {
	case fillFull:
		return true, err
	case fillPartial:
		return partialOK, err
	}
	return false, err
}

func (b *Book) emit(cb Callback, ev Event) {
	if cb == nil {
		return
	}
	b.events = append(b.events, deferred{cb: cb, ev: ev})
}

func (b *Book) flush() {
	for len(b.events) > 0 {
		d := b.events[0]
		b.events = b.events[1:]
		d.cb(d.ev)
	}
}

func (b *Book) newOrder(e *queueElem, size uint64) *Order {
	o := b.pool.Get()
	*o = Order{
		ID:      e.id,
		Side:    e.side,
		Type:    e.otype,
		Price:   e.limit,
		Stop:    e.stop,
		Size:    size,
		cond:    e.cond,
		trigger: e.trigger,
		cb:      e.cb,
	}
	return o
}

func (b *Book) retire(o *Order) {
	// ring full means the bundle is left for the GC
	_ = b.retired.Enqueue(o)
}

func (b *Book) recycle() {
	for {
		o := b.retired.Dequeue()
		if o == nil {
			return
		}
		o.reset()
		b.pool.Put(o)
	}
}

/* ---------------- tree selection ---------------- */

func (b *Book) limitTree(s Side) *tree {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) stopTree(s Side) *tree {
	if s == Buy {
		return b.buyStops
	}
	return b.sellStops
}

func (b *Book) aonTree(s Side) *tree {
	if s == Buy {
		return b.aonBids
	}
	return b.aonAsks
}

/* ---------------- pull ---------------- */

// pullOrder removes a resting order and emits a cancel event. With
// stripLinked set (explicit pulls), an OCO/bracket sibling is released
// as a plain order rather than pulled.
func (b *Book) pullOrder(id uint64, stripLinked bool) bool {
	o := b.cache[id]
	if o == nil {
		return false
	}
	lv := o.lvl
	lv.unlink(o)
	if lv.empty() {
		switch o.where {
		case chainLimit:
			b.limitTree(o.Side).remove(lv.price)
		case chainStop:
			b.stopTree(o.Side).remove(lv.price)
		case chainAON:
			b.aonTree(o.Side).remove(lv.price)
		default:
			panic("book: resting order without a chain")
		}
	}
	delete(b.cache, id)
	b.emit(o.cb, Event{Type: EventCancel, ID1: id, ID2: id})
	if o.where == chainStop {
		b.trailingErase(id, o.Side)
	}
	if stripLinked {
		b.stripSibling(o)
	}
	b.retire(o)
	return true
}

func (b *Book) stripSibling(o *Order) {
	if o.linked == nil {
		return
	}
	switch o.cond {
	case CondOCO, CondBracketActive, CondTrailingBracketActive:
	default:
		return
	}
	sib := b.cache[o.linked.id]
	if sib == nil {
		return
	}
	sib.linked = nil
	sib.cond = CondNone
	sib.trigger = TriggerNone
	if sib.where == chainStop {
		b.trailingErase(sib.ID, sib.Side)
		sib.nticks = 0
	}
}
