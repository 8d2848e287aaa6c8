package book

// Condition is the advanced behavior attached to an order. The Active
// variants are internal phases: a bracket that has opened, or a trailing
// stop that has been generated, lives on as an order with the
// corresponding Active condition.
type Condition uint8

const (
	CondNone Condition = iota
	CondOCO
	CondOTO
	CondFOK
	CondAON
	CondBracket
	CondTrailingStop
	CondTrailingBracket
	CondBracketActive
	CondTrailingStopActive
	CondTrailingBracketActive
)

func (c Condition) String() string {
	switch c {
	case CondNone:
		return "none"
	case CondOCO:
		return "one-cancels-other"
	case CondOTO:
		return "one-triggers-other"
	case CondFOK:
		return "fill-or-kill"
	case CondAON:
		return "all-or-nothing"
	case CondBracket:
		return "bracket"
	case CondTrailingStop:
		return "trailing-stop"
	case CondTrailingBracket:
		return "trailing-bracket"
	case CondBracketActive:
		return "bracket-active"
	case CondTrailingStopActive:
		return "trailing-stop-active"
	case CondTrailingBracketActive:
		return "trailing-bracket-active"
	}
	return "unknown"
}

// Trigger decides when a condition fires against fills of its order.
type Trigger uint8

const (
	TriggerNone Trigger = iota
	// TriggerFillPartial fires on the first fill of any size.
	TriggerFillPartial
	// TriggerFillFull fires only when the order fills completely.
	TriggerFillFull
)

func (t Trigger) String() string {
	switch t {
	case TriggerNone:
		return "none"
	case TriggerFillPartial:
		return "fill-partial"
	case TriggerFillFull:
		return "fill-full"
	}
	return "unknown"
}

// leg holds the parameters of a contingent or linked order before it
// becomes live. For trailing legs, limit/stop are tick offsets from the
// last trade price rather than absolute prices.
type leg struct {
	side    Side
	size    uint64
	limit   int64
	stop    int64
	byTicks bool
}

func (l leg) orderType() OrderType {
	switch {
	case l.limit != 0 && l.stop != 0:
		return StopLimit
	case l.stop != 0:
		return Stop
	case l.limit != 0:
		return Limit
	}
	return Market
}

// brackets holds a bracket's protective legs: a loss stop (or
// stop-limit) and a profit target limit.
type brackets struct {
	loss   leg
	target leg
}

// Ticket attaches an advanced condition to an order at submission.
// The zero Ticket is a plain order; construct the others with the
// package-level builders. WithTrigger overrides the builder's default
// trigger policy.
type Ticket struct {
	cond    Condition
	trigger Trigger
	leg1    leg
	leg2    leg
}

func (t Ticket) Condition() Condition { return t.cond }
func (t Ticket) Trigger() Trigger     { return t.trigger }

func (t Ticket) WithTrigger(tr Trigger) Ticket {
	t.trigger = tr
	return t
}

// OCO pairs the order with a second order; when either fills, the
// other is pulled. The leg may be a limit, stop, or stop-limit.
func OCO(s Side, size uint64, limit, stop int64) Ticket {
	return Ticket{
		cond:    CondOCO,
		trigger: TriggerFillPartial,
		leg1:    leg{side: s, size: size, limit: limit, stop: stop},
	}
}

// OTO submits a second order once the primary fills.
func OTO(s Side, size uint64, limit, stop int64) Ticket {
	return Ticket{
		cond:    CondOTO,
		trigger: TriggerFillPartial,
		leg1:    leg{side: s, size: size, limit: limit, stop: stop},
	}
}

// FOK kills a limit order that cannot fill immediately. With the
// default full-fill trigger the order fills completely or not at all;
// with TriggerFillPartial it behaves as immediate-or-cancel.
func FOK() Ticket {
	return Ticket{cond: CondFOK, trigger: TriggerFillFull}
}

// AON makes a limit order rest in the all-or-nothing book, where it
// only ever fills for its complete size.
func AON() Ticket {
	return Ticket{cond: CondAON, trigger: TriggerFillPartial}
}

// Bracket surrounds the primary's fill with a protective stop at
// lossStop and a profit-taking limit at targetLimit, as an OCO pair on
// the opposite side. Pass lossLimit 0 for a plain stop loss leg.
func Bracket(lossStop, lossLimit, targetLimit int64) Ticket {
	return Ticket{
		cond:    CondBracket,
		trigger: TriggerFillPartial,
		leg1:    leg{stop: lossStop, limit: lossLimit},
		leg2:    leg{limit: targetLimit},
	}
}

// TrailingStop generates, once the primary fills, a stop nticks away
// from the last trade price that follows the market as it moves
// favorably.
func TrailingStop(nticks int64) Ticket {
	return Ticket{
		cond:    CondTrailingStop,
		trigger: TriggerFillFull,
		leg1:    leg{stop: nticks, byTicks: true},
	}
}

// TrailingBracket is a bracket whose legs are placed stopTicks and
// targetTicks from the last trade price; the stop leg trails.
func TrailingBracket(stopTicks, targetTicks int64) Ticket {
	return Ticket{
		cond:    CondTrailingBracket,
		trigger: TriggerFillFull,
		leg1:    leg{stop: stopTicks, byTicks: true},
		leg2:    leg{limit: targetTicks, byTicks: true},
	}
}
