package book

import "time"

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

type OrderType uint8

const (
	Limit OrderType = iota
	Market
	Stop
	StopLimit
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	case Stop:
		return "stop"
	case StopLimit:
		return "stop-limit"
	}
	return "unknown"
}

// EventType identifies an execution event delivered through an order's
// callback.
type EventType uint8

const (
	EventFill EventType = iota
	EventCancel
	EventKill
	EventStopToLimit
	EventStopToMarket
	EventTriggerOCO
	EventTriggerOTO
	EventBracketOpen
	EventBracketClose
	EventTriggerTrailingStop
	EventAdjustTrailingStop
)

func (t EventType) String() string {
	switch t {
	case EventFill:
		return "fill"
	case EventCancel:
		return "cancel"
	case EventKill:
		return "kill"
	case EventStopToLimit:
		return "stop-to-limit"
	case EventStopToMarket:
		return "stop-to-market"
	case EventTriggerOCO:
		return "trigger-oco"
	case EventTriggerOTO:
		return "trigger-oto"
	case EventBracketOpen:
		return "bracket-open"
	case EventBracketClose:
		return "bracket-close"
	case EventTriggerTrailingStop:
		return "trigger-trailing-stop"
	case EventAdjustTrailingStop:
		return "adjust-trailing-stop"
	}
	return "unknown"
}

// Event is the record delivered to order callbacks. Price is in ticks;
// it is zero for events that carry no price. ID2 differs from ID1 when
// an event hands off to a new order id (stop conversion, OCO/OTO/bracket
// triggers).
type Event struct {
	Type  EventType
	ID1   uint64
	ID2   uint64
	Price int64
	Size  uint64
}

// Callback receives execution events for an order. Callbacks are never
// invoked re-entrantly; the book queues events during execution and
// flushes them, in causal order, before the public call returns.
type Callback func(Event)

// chainKind records which structure an order currently rests in.
type chainKind uint8

const (
	chainNone chainKind = iota
	chainLimit
	chainStop
	chainAON
)

// Order is a resting order bundle. Bundles are pooled; everything
// outside the book sees only ids and OrderInfo snapshots.
type Order struct {
	ID    uint64
	Side  Side
	Type  OrderType
	Price int64  // limit price in ticks, 0 if none
	Stop  int64  // stop price in ticks, 0 if none
	Size  uint64 // remaining size

	cond    Condition
	trigger Trigger

	// advanced-order state; which fields are live depends on cond
	contingent *leg      // OTO, TrailingStop
	bracket    *brackets // Bracket, TrailingBracket
	linked     *linkRef  // OCO and active bracket pairs
	nticks     int64     // active trailing offset

	cb Callback

	where chainKind
	lvl   *level
	next  *Order
	prev  *Order
}

func (o *Order) reset() {
	*o = Order{}
}

// linkRef points one OCO (or active bracket) leg at its sibling. The
// sibling is found through the id cache; primary marks which leg carries
// the original user-facing id.
type linkRef struct {
	id      uint64
	primary bool
}

// OrderInfo is a read-only snapshot of a resting order.
type OrderInfo struct {
	ID        uint64
	Side      Side
	Type      OrderType
	Limit     int64
	Stop      int64
	Size      uint64
	Condition Condition
	Trigger   Trigger
}

// Trade is a time-and-sales entry.
type Trade struct {
	At    time.Time
	Price int64
	Size  uint64
}

// Quote is one price level of a depth snapshot.
type Quote struct {
	Price int64
	Size  uint64
}

// AONQuote is one price level of the all-or-nothing depth view. The AON
// book can hold both sides at one price without crossing.
type AONQuote struct {
	Price    int64
	BuySize  uint64
	SellSize uint64
}
