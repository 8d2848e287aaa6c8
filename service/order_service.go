package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"odin/domain/book"
	"odin/domain/tick"
	"odin/infra/sequence"
	entrywal "odin/infra/wal/entry"
	exitwal "odin/infra/wal/exit"
)

// Stream is a live event sink (kafka producer, websocket hub). Delivery
// is best effort; the exit journal is the durable path.
type Stream interface {
	Publish(ctx context.Context, key, value []byte) error
}

// OrderService is the only write entry point. One mutex serializes
// every command and query against the single-writer engine; each
// command is journaled to the entry WAL before it executes, and every
// engine event it produces is journaled to the exit WAL before being
// streamed.
type OrderService struct {
	mu sync.Mutex

	book   *book.Book
	ladder tick.Ladder

	seq      *sequence.Sequencer
	eventSeq *sequence.Sequencer

	entry *entrywal.WAL
	exit  *exitwal.WAL

	streams []Stream
	log     *zap.Logger

	pending   []book.Event
	replaying bool
}

func NewOrderService(
	b *book.Book,
	seq *sequence.Sequencer,
	entry *entrywal.WAL,
	exit *exitwal.WAL,
	log *zap.Logger,
	streams ...Stream,
) (*OrderService, error) {
	s := &OrderService{
		book:    b,
		ladder:  b.Ladder(),
		seq:     seq,
		entry:   entry,
		exit:    exit,
		streams: streams,
		log:     log,
	}

	last, err := exit.MaxSeq()
	if err != nil {
		return nil, fmt.Errorf("read exit journal: %w", err)
	}
	s.eventSeq = sequence.New(last)
	return s, nil
}

// collect is the callback handed to every engine call. The engine
// flushes events before each public call returns, so everything in
// pending belongs to the command being executed.
func (s *OrderService) collect(ev book.Event) {
	s.pending = append(s.pending, ev)
}

// Submit journals and executes one command. The returned id is the
// engine order id; validation errors come back synchronously and are
// journaled too, so replay stays an exact rerun.
func (s *OrderService) Submit(c Command) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.seq.Next()
	if err := s.entry.Append(entrywal.NewRecord(entrywal.RecordCommand, seq, c.Marshal())); err != nil {
		return 0, fmt.Errorf("journal command %d: %w", seq, err)
	}

	id, err := s.apply(c)

	events := s.pending
	s.pending = nil
	s.dispatch(seq, events)

	if err != nil {
		s.log.Debug("command rejected",
			zap.Uint64("seq", seq),
			zap.Uint64("id", id),
			zap.Error(err))
		return id, err
	}
	s.log.Debug("command applied",
		zap.Uint64("seq", seq),
		zap.Uint64("id", id),
		zap.Int("events", len(events)))
	return id, nil
}

func (s *OrderService) apply(c Command) (uint64, error) {
	tk, err := c.Ticket.build()
	if err != nil {
		return 0, err
	}
	switch c.Op {
	case OpLimit:
		return s.book.InsertLimit(c.Side, c.Limit, c.Size, s.collect, tk)
	case OpMarket:
		return s.book.InsertMarket(c.Side, c.Size, s.collect, tk)
	case OpStop:
		return s.book.InsertStop(c.Side, c.Stop, c.Size, s.collect, tk)
	case OpStopLimit:
		return s.book.InsertStopLimit(c.Side, c.Stop, c.Limit, c.Size, s.collect, tk)
	case OpPull:
		if !s.book.Pull(c.Target) {
			return 0, fmt.Errorf("pull %d: %w", c.Target, book.ErrOrderNotFound)
		}
		return c.Target, nil
	case OpReplaceLimit:
		return s.book.ReplaceWithLimit(c.Target, c.Side, c.Limit, c.Size, s.collect, tk)
	case OpReplaceMarket:
		return s.book.ReplaceWithMarket(c.Target, c.Side, c.Size, s.collect, tk)
	case OpReplaceStop:
		return s.book.ReplaceWithStop(c.Target, c.Side, c.Stop, c.Size, s.collect, tk)
	case OpReplaceStopLimit:
		return s.book.ReplaceWithStopLimit(c.Target, c.Side, c.Stop, c.Limit, c.Size, s.collect, tk)
	}
	return 0, fmt.Errorf("unknown op %d", c.Op)
}

// EventMessage is the published form of one engine event.
type EventMessage struct {
	Seq    uint64 `json:"seq"`
	CmdSeq uint64 `json:"cmd_seq"`
	Type   string `json:"type"`
	ID1    uint64 `json:"id1"`
	ID2    uint64 `json:"id2"`
	Price  string `json:"price,omitempty"`
	Size   uint64 `json:"size,omitempty"`
}

func (s *OrderService) dispatch(cmdSeq uint64, events []book.Event) {
	if s.replaying {
		return
	}
	for _, ev := range events {
		seq := s.eventSeq.Next()
		msg := EventMessage{
			Seq:    seq,
			CmdSeq: cmdSeq,
			Type:   ev.Type.String(),
			ID1:    ev.ID1,
			ID2:    ev.ID2,
			Size:   ev.Size,
		}
		if ev.Price != 0 {
			msg.Price = s.ladder.Price(ev.Price).String()
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			s.log.Error("encode event", zap.Uint64("seq", seq), zap.Error(err))
			continue
		}
		if err := s.exit.Append(seq, payload); err != nil {
			s.log.Error("journal event", zap.Uint64("seq", seq), zap.Error(err))
		}

		key := []byte(strconv.FormatUint(ev.ID1, 10))
		for _, st := range s.streams {
			if err := st.Publish(context.Background(), key, payload); err != nil {
				s.log.Warn("publish event", zap.Uint64("seq", seq), zap.Error(err))
			}
		}
	}
}

/* ---------------- queries ---------------- */

type Quote struct {
	Price decimal.Decimal `json:"price"`
	Size  uint64          `json:"size"`
}

type AONQuote struct {
	Price    decimal.Decimal `json:"price"`
	BuySize  uint64          `json:"buy_size"`
	SellSize uint64          `json:"sell_size"`
}

type Stats struct {
	BestBid         *decimal.Decimal `json:"best_bid,omitempty"`
	BestAsk         *decimal.Decimal `json:"best_ask,omitempty"`
	LastPrice       *decimal.Decimal `json:"last_price,omitempty"`
	LastSize        uint64           `json:"last_size"`
	Volume          uint64           `json:"volume"`
	TotalBidSize    uint64           `json:"total_bid_size"`
	TotalAskSize    uint64           `json:"total_ask_size"`
	TotalAONBidSize uint64           `json:"total_aon_bid_size"`
	TotalAONAskSize uint64           `json:"total_aon_ask_size"`
}

type OrderView struct {
	ID        uint64           `json:"id"`
	Side      string           `json:"side"`
	Type      string           `json:"type"`
	Limit     *decimal.Decimal `json:"limit,omitempty"`
	Stop      *decimal.Decimal `json:"stop,omitempty"`
	Size      uint64           `json:"size"`
	Condition string           `json:"condition"`
}

type TradeView struct {
	At    time.Time       `json:"at"`
	Price decimal.Decimal `json:"price"`
	Size  uint64          `json:"size"`
}

func (s *OrderService) price(t int64) *decimal.Decimal {
	d := s.ladder.Price(t)
	return &d
}

// Ladder exposes the tick domain for request-side price conversion.
func (s *OrderService) Ladder() tick.Ladder { return s.ladder }

func (s *OrderService) Depth(levels int) (bids, asks []Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tb, ta := s.book.MarketDepth(levels)
	for _, q := range tb {
		bids = append(bids, Quote{Price: s.ladder.Price(q.Price), Size: q.Size})
	}
	for _, q := range ta {
		asks = append(asks, Quote{Price: s.ladder.Price(q.Price), Size: q.Size})
	}
	return bids, asks
}

func (s *OrderService) AONDepth() []AONQuote {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []AONQuote
	for _, q := range s.book.AONMarketDepth() {
		out = append(out, AONQuote{
			Price:    s.ladder.Price(q.Price),
			BuySize:  q.BuySize,
			SellSize: q.SellSize,
		})
	}
	return out
}

func (s *OrderService) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		LastSize:        s.book.LastSize(),
		Volume:          s.book.Volume(),
		TotalBidSize:    s.book.TotalBidSize(),
		TotalAskSize:    s.book.TotalAskSize(),
		TotalAONBidSize: s.book.TotalAONBidSize(),
		TotalAONAskSize: s.book.TotalAONAskSize(),
	}
	if p, ok := s.book.BidPrice(); ok {
		st.BestBid = s.price(p)
	}
	if p, ok := s.book.AskPrice(); ok {
		st.BestAsk = s.price(p)
	}
	if p, ok := s.book.LastPrice(); ok {
		st.LastPrice = s.price(p)
	}
	return st
}

func (s *OrderService) OrderInfo(id uint64) (OrderView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.book.OrderInfo(id)
	if !ok {
		return OrderView{}, false
	}
	v := OrderView{
		ID:        info.ID,
		Side:      info.Side.String(),
		Type:      info.Type.String(),
		Size:      info.Size,
		Condition: info.Condition.String(),
	}
	if info.Limit != 0 {
		v.Limit = s.price(info.Limit)
	}
	if info.Stop != 0 {
		v.Stop = s.price(info.Stop)
	}
	return v, true
}

func (s *OrderService) TimeAndSales() []TradeView {
	s.mu.Lock()
	defer s.mu.Unlock()

	tape := s.book.TimeAndSales()
	out := make([]TradeView, 0, len(tape))
	for _, tr := range tape {
		out = append(out, TradeView{
			At:    tr.At,
			Price: s.ladder.Price(tr.Price),
			Size:  tr.Size,
		})
	}
	return out
}
