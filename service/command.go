package service

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"odin/domain/book"
)

// Op is the journaled command kind.
type Op uint8

const (
	OpLimit Op = iota + 1
	OpMarket
	OpStop
	OpStopLimit
	OpPull
	OpReplaceLimit
	OpReplaceMarket
	OpReplaceStop
	OpReplaceStopLimit
)

// TicketSpec is the wire form of an advanced order ticket. The builder
// in domain/book re-derives everything else (leg sides and sizes for
// brackets, trigger defaults).
type TicketSpec struct {
	Cond    book.Condition
	Trigger book.Trigger // zero keeps the condition's default
	LegSide book.Side
	LegSize uint64
	// LegStop doubles as the trailing stop offset in ticks; Limit2 as
	// the bracket target limit or the trailing target offset.
	LegLimit int64
	LegStop  int64
	Limit2   int64
}

func (t TicketSpec) build() (book.Ticket, error) {
	var tk book.Ticket
	switch t.Cond {
	case book.CondNone:
	case book.CondOCO:
		tk = book.OCO(t.LegSide, t.LegSize, t.LegLimit, t.LegStop)
	case book.CondOTO:
		tk = book.OTO(t.LegSide, t.LegSize, t.LegLimit, t.LegStop)
	case book.CondFOK:
		tk = book.FOK()
	case book.CondAON:
		tk = book.AON()
	case book.CondBracket:
		tk = book.Bracket(t.LegStop, t.LegLimit, t.Limit2)
	case book.CondTrailingStop:
		tk = book.TrailingStop(t.LegStop)
	case book.CondTrailingBracket:
		tk = book.TrailingBracket(t.LegStop, t.Limit2)
	default:
		return book.Ticket{}, fmt.Errorf("ticket condition %s: %w", t.Cond, book.ErrInvalidTicket)
	}
	if t.Trigger != book.TriggerNone {
		tk = tk.WithTrigger(t.Trigger)
	}
	return tk, nil
}

// Command is one write operation against the engine, as journaled in
// the entry WAL.
type Command struct {
	Op     Op
	Side   book.Side
	Limit  int64
	Stop   int64
	Size   uint64
	Target uint64 // pull and replace
	Ticket TicketSpec
}

const (
	cmdOp        = 1
	cmdSide      = 2
	cmdLimit     = 3
	cmdStop      = 4
	cmdSize      = 5
	cmdTarget    = 6
	cmdCond      = 7
	cmdTrigger   = 8
	cmdLegSide   = 9
	cmdLegSize   = 10
	cmdLegLimit  = 11
	cmdLegStop   = 12
	cmdLegLimit2 = 13
)

func appendField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// Marshal encodes the command as a protowire message. All numeric
// fields are non-negative (prices are tick indices), so plain varints
// suffice; zero fields are omitted.
func (c Command) Marshal() []byte {
	b := make([]byte, 0, 48)
	b = appendField(b, cmdOp, uint64(c.Op))
	b = appendField(b, cmdSide, uint64(c.Side))
	b = appendField(b, cmdLimit, uint64(c.Limit))
	b = appendField(b, cmdStop, uint64(c.Stop))
	b = appendField(b, cmdSize, c.Size)
	b = appendField(b, cmdTarget, c.Target)
	b = appendField(b, cmdCond, uint64(c.Ticket.Cond))
	b = appendField(b, cmdTrigger, uint64(c.Ticket.Trigger))
	b = appendField(b, cmdLegSide, uint64(c.Ticket.LegSide))
	b = appendField(b, cmdLegSize, c.Ticket.LegSize)
	b = appendField(b, cmdLegLimit, uint64(c.Ticket.LegLimit))
	b = appendField(b, cmdLegStop, uint64(c.Ticket.LegStop))
	b = appendField(b, cmdLegLimit2, uint64(c.Ticket.Limit2))
	return b
}

func UnmarshalCommand(data []byte) (Command, error) {
	var c Command
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Command{}, protowire.ParseError(n)
		}
		data = data[n:]

		if typ != protowire.VarintType {
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return Command{}, protowire.ParseError(m)
			}
			data = data[m:]
			continue
		}

		v, m := protowire.ConsumeVarint(data)
		if m < 0 {
			return Command{}, protowire.ParseError(m)
		}
		data = data[m:]

		switch num {
		case cmdOp:
			c.Op = Op(v)
		case cmdSide:
			c.Side = book.Side(v)
		case cmdLimit:
			c.Limit = int64(v)
		case cmdStop:
			c.Stop = int64(v)
		case cmdSize:
			c.Size = v
		case cmdTarget:
			c.Target = v
		case cmdCond:
			c.Ticket.Cond = book.Condition(v)
		case cmdTrigger:
			c.Ticket.Trigger = book.Trigger(v)
		case cmdLegSide:
			c.Ticket.LegSide = book.Side(v)
		case cmdLegSize:
			c.Ticket.LegSize = v
		case cmdLegLimit:
			c.Ticket.LegLimit = int64(v)
		case cmdLegStop:
			c.Ticket.LegStop = int64(v)
		case cmdLegLimit2:
			c.Ticket.Limit2 = int64(v)
		}
	}
	if c.Op == 0 {
		return Command{}, fmt.Errorf("command without an op")
	}
	return c, nil
}
