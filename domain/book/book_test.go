package book_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odin/domain/book"
	"odin/domain/tick"
)

// testLadder is a whole-number ladder: tick 1, prices 1..100.
func testLadder() tick.Ladder {
	return tick.MustNew("1", "1", "100")
}

type eventLog struct {
	events []book.Event
}

func (l *eventLog) cb(ev book.Event) {
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(t book.EventType) []book.Event {
	var out []book.Event
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func TestInsertLimitRests(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	id, err := b.InsertLimit(book.Buy, 50, 10, log.cb, book.Ticket{})
	require.NoError(t, err)
	require.NotZero(t, id)
	require.Empty(t, log.events)

	p, ok := b.BidPrice()
	require.True(t, ok)
	assert.Equal(t, int64(50), p)
	assert.Equal(t, uint64(10), b.BidSize())

	_, ok = b.AskPrice()
	assert.False(t, ok)

	info, ok := b.OrderInfo(id)
	require.True(t, ok)
	assert.Equal(t, book.Buy, info.Side)
	assert.Equal(t, book.Limit, info.Type)
	assert.Equal(t, int64(50), info.Limit)
	assert.Equal(t, uint64(10), info.Size)
}

func TestLimitCrossFillsBoth(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	buyID, err := b.InsertLimit(book.Buy, 50, 10, log.cb, book.Ticket{})
	require.NoError(t, err)
	sellID, err := b.InsertLimit(book.Sell, 50, 4, log.cb, book.Ticket{})
	require.NoError(t, err)

	fills := log.ofType(book.EventFill)
	require.Len(t, fills, 2)
	assert.Equal(t, sellID, fills[0].ID1)
	assert.Equal(t, buyID, fills[1].ID1)
	for _, f := range fills {
		assert.Equal(t, int64(50), f.Price)
		assert.Equal(t, uint64(4), f.Size)
	}

	assert.Equal(t, uint64(6), b.BidSize())
	_, ok := b.OrderInfo(sellID)
	assert.False(t, ok, "aggressor filled completely, nothing rests")

	last, traded := b.LastPrice()
	require.True(t, traded)
	assert.Equal(t, int64(50), last)
	assert.Equal(t, uint64(4), b.LastSize())
	assert.Equal(t, sellID, b.LastID())
	assert.Equal(t, uint64(4), b.Volume())
}

func TestPriceTimePriority(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	first, err := b.InsertLimit(book.Buy, 50, 10, log.cb, book.Ticket{})
	require.NoError(t, err)
	second, err := b.InsertLimit(book.Buy, 50, 10, log.cb, book.Ticket{})
	require.NoError(t, err)
	best, err := b.InsertLimit(book.Buy, 51, 10, log.cb, book.Ticket{})
	require.NoError(t, err)

	_, err = b.InsertMarket(book.Sell, 15, log.cb, book.Ticket{})
	require.NoError(t, err)

	var makers []uint64
	for _, f := range log.ofType(book.EventFill) {
		if f.ID1 != best && f.ID1 != first && f.ID1 != second {
			continue
		}
		makers = append(makers, f.ID1)
	}
	require.Equal(t, []uint64{best, first}, makers,
		"better price first, then oldest at the next level")

	info, ok := b.OrderInfo(first)
	require.True(t, ok)
	assert.Equal(t, uint64(5), info.Size)
	_, ok = b.OrderInfo(second)
	assert.True(t, ok, "younger order untouched")
}

func TestMarketInsufficientLiquidity(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	_, err := b.InsertLimit(book.Sell, 50, 3, log.cb, book.Ticket{})
	require.NoError(t, err)

	id, err := b.InsertMarket(book.Buy, 10, log.cb, book.Ticket{})
	require.ErrorIs(t, err, book.ErrInsufficientLiquidity)

	fills := log.ofType(book.EventFill)
	require.Len(t, fills, 2, "partial fills stand")
	kills := log.ofType(book.EventKill)
	require.Len(t, kills, 1)
	assert.Equal(t, id, kills[0].ID1)
	assert.Equal(t, uint64(7), kills[0].Size)

	assert.Equal(t, uint64(3), b.Volume())
}

func TestStopConvertsToMarket(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	stopID, err := b.InsertStop(book.Buy, 55, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	// liquidity for the converted order
	_, err = b.InsertLimit(book.Sell, 61, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	// trade at 60 reaches the stop
	_, err = b.InsertLimit(book.Sell, 60, 5, log.cb, book.Ticket{})
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Buy, 60, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	convs := log.ofType(book.EventStopToMarket)
	require.Len(t, convs, 1)
	assert.Equal(t, stopID, convs[0].ID1)
	assert.NotEqual(t, stopID, convs[0].ID2)

	// converted market order lifted the 61 offer
	assert.Equal(t, uint64(10), b.Volume())
	last, _ := b.LastPrice()
	assert.Equal(t, int64(61), last)
	_, ok := b.OrderInfo(stopID)
	assert.False(t, ok)
}

func TestStopLimitConvertsAndRests(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	stopID, err := b.InsertStopLimit(book.Buy, 55, 56, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	_, err = b.InsertLimit(book.Sell, 55, 5, log.cb, book.Ticket{})
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Buy, 55, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	convs := log.ofType(book.EventStopToLimit)
	require.Len(t, convs, 1)
	assert.Equal(t, stopID, convs[0].ID1)
	assert.Equal(t, int64(56), convs[0].Price)

	p, ok := b.BidPrice()
	require.True(t, ok)
	assert.Equal(t, int64(56), p)
	assert.Equal(t, uint64(5), b.BidSize())

	info, ok := b.OrderInfo(convs[0].ID2)
	require.True(t, ok)
	assert.Equal(t, book.Limit, info.Type)
}

func TestStopNeedsAnActualTrade(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	// quotes alone never trigger a stop
	_, err := b.InsertLimit(book.Sell, 40, 5, log.cb, book.Ticket{})
	require.NoError(t, err)
	stopID, err := b.InsertStop(book.Buy, 55, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	_, ok := b.OrderInfo(stopID)
	assert.True(t, ok)
	assert.Empty(t, log.ofType(book.EventStopToMarket))
}

func TestPull(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	id, err := b.InsertLimit(book.Buy, 50, 10, log.cb, book.Ticket{})
	require.NoError(t, err)

	require.True(t, b.Pull(id))
	cancels := log.ofType(book.EventCancel)
	require.Len(t, cancels, 1)
	assert.Equal(t, id, cancels[0].ID1)

	_, ok := b.BidPrice()
	assert.False(t, ok)
	assert.False(t, b.Pull(id), "second pull finds nothing")
	assert.False(t, b.Pull(9999))
}

func TestReplace(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	id, err := b.InsertLimit(book.Buy, 50, 10, log.cb, book.Ticket{})
	require.NoError(t, err)

	newID, err := b.ReplaceWithLimit(id, book.Buy, 51, 8, log.cb, book.Ticket{})
	require.NoError(t, err)
	require.NotEqual(t, id, newID)

	p, ok := b.BidPrice()
	require.True(t, ok)
	assert.Equal(t, int64(51), p)
	assert.Equal(t, uint64(8), b.BidSize())
	_, ok = b.OrderInfo(id)
	assert.False(t, ok)

	_, err = b.ReplaceWithLimit(9999, book.Buy, 51, 8, log.cb, book.Ticket{})
	assert.ErrorIs(t, err, book.ErrOrderNotFound)
}

func TestReplaceValidatesBeforePulling(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	id, err := b.InsertLimit(book.Buy, 50, 10, log.cb, book.Ticket{})
	require.NoError(t, err)

	_, err = b.ReplaceWithLimit(id, book.Buy, 51, 0, log.cb, book.Ticket{})
	require.ErrorIs(t, err, book.ErrInvalidSize)

	_, ok := b.OrderInfo(id)
	assert.True(t, ok, "original stays when the replacement is invalid")
}

func TestValidation(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	_, err := b.InsertLimit(book.Buy, 50, 0, log.cb, book.Ticket{})
	assert.ErrorIs(t, err, book.ErrInvalidSize)

	_, err = b.InsertLimit(book.Buy, 0, 10, log.cb, book.Ticket{})
	assert.ErrorIs(t, err, book.ErrInvalidPrice)
	_, err = b.InsertLimit(book.Buy, 101, 10, log.cb, book.Ticket{})
	assert.ErrorIs(t, err, book.ErrInvalidPrice)

	_, err = b.InsertStopLimit(book.Buy, 55, 101, 10, log.cb, book.Ticket{})
	assert.ErrorIs(t, err, book.ErrInvalidPrice)

	_, err = b.InsertMarket(book.Buy, 10, log.cb, book.FOK())
	assert.ErrorIs(t, err, book.ErrInvalidTicket)
	_, err = b.InsertMarket(book.Buy, 10, log.cb, book.AON())
	assert.ErrorIs(t, err, book.ErrInvalidTicket)
	_, err = b.InsertMarket(book.Buy, 10, log.cb, book.OCO(book.Buy, 10, 40, 0))
	assert.ErrorIs(t, err, book.ErrInvalidTicket)

	_, err = b.InsertStop(book.Buy, 55, 10, log.cb, book.FOK())
	assert.ErrorIs(t, err, book.ErrInvalidTicket)
	_, err = b.InsertStop(book.Buy, 55, 10, log.cb, book.AON())
	assert.ErrorIs(t, err, book.ErrInvalidTicket)

	// oco stop legs at the same price
	_, err = b.InsertStop(book.Buy, 55, 10, log.cb, book.OCO(book.Buy, 10, 0, 55))
	assert.ErrorIs(t, err, book.ErrInvalidTicket)

	// oco limit legs that would trade against each other
	_, err = b.InsertLimit(book.Buy, 50, 10, log.cb, book.OCO(book.Sell, 10, 48, 0))
	assert.ErrorIs(t, err, book.ErrInvalidTicket)

	// an order book cannot host a market leg waiting on nothing
	_, err = b.InsertLimit(book.Buy, 50, 10, log.cb, book.OCO(book.Sell, 10, 0, 0))
	assert.ErrorIs(t, err, book.ErrInvalidTicket)

	// trailing offsets must stay inside the ladder
	_, err = b.InsertLimit(book.Buy, 50, 10, log.cb, book.TrailingStop(0))
	assert.ErrorIs(t, err, book.ErrInvalidTicket)
	_, err = b.InsertLimit(book.Buy, 50, 10, log.cb, book.TrailingStop(101))
	assert.ErrorIs(t, err, book.ErrInvalidTicket)
}

func TestMarketDepth(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	for _, q := range []struct {
		s  book.Side
		p  int64
		sz uint64
	}{
		{book.Buy, 50, 10},
		{book.Buy, 49, 5},
		{book.Buy, 48, 2},
		{book.Sell, 52, 7},
		{book.Sell, 53, 3},
	} {
		_, err := b.InsertLimit(q.s, q.p, q.sz, log.cb, book.Ticket{})
		require.NoError(t, err)
	}

	bids, asks := b.MarketDepth(2)
	require.Equal(t, []book.Quote{{Price: 50, Size: 10}, {Price: 49, Size: 5}}, bids)
	require.Equal(t, []book.Quote{{Price: 52, Size: 7}, {Price: 53, Size: 3}}, asks)

	bids, _ = b.MarketDepth(0)
	assert.Len(t, bids, 3)

	assert.Equal(t, uint64(17), b.TotalBidSize())
	assert.Equal(t, uint64(10), b.TotalAskSize())
	assert.Equal(t, uint64(27), b.TotalSize())
}

func TestTimeAndSales(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	_, err := b.InsertLimit(book.Sell, 50, 5, log.cb, book.Ticket{})
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Buy, 50, 3, log.cb, book.Ticket{})
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Buy, 50, 2, log.cb, book.Ticket{})
	require.NoError(t, err)

	tape := b.TimeAndSales()
	require.Len(t, tape, 2)
	assert.Equal(t, int64(50), tape[0].Price)
	assert.Equal(t, uint64(3), tape[0].Size)
	assert.Equal(t, uint64(2), tape[1].Size)
	assert.False(t, tape[1].At.Before(tape[0].At))

	// the returned tape is a copy
	tape[0].Size = 999
	assert.Equal(t, uint64(3), b.TimeAndSales()[0].Size)
}

func TestCallbacksNeverReenter(t *testing.T) {
	b := book.New(testLadder())

	inCB := false
	cb := func(book.Event) {
		require.False(t, inCB, "callback invoked re-entrantly")
		inCB = true
		defer func() { inCB = false }()
	}

	_, err := b.InsertLimit(book.Sell, 50, 5, cb, book.Ticket{})
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Buy, 50, 5, cb, book.Ticket{})
	require.NoError(t, err)
}
