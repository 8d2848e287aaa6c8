package book_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odin/domain/book"
)

func TestOCOLimitLegFills(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	// sell limit at 55 paired with a protective sell stop at 45
	primary, err := b.InsertLimit(book.Sell, 55, 10, log.cb, book.OCO(book.Sell, 10, 0, 45))
	require.NoError(t, err)
	stopLeg := primary + 1

	_, ok := b.OrderInfo(primary)
	require.True(t, ok)
	info, ok := b.OrderInfo(stopLeg)
	require.True(t, ok)
	assert.Equal(t, book.Stop, info.Type)
	assert.Equal(t, book.CondOCO, info.Condition)

	// fill the limit leg; the stop leg must go
	_, err = b.InsertLimit(book.Buy, 55, 10, log.cb, book.Ticket{})
	require.NoError(t, err)

	trig := log.ofType(book.EventTriggerOCO)
	require.Len(t, trig, 1)
	assert.Equal(t, primary, trig[0].ID1)

	cancels := log.ofType(book.EventCancel)
	require.Len(t, cancels, 1)
	assert.Equal(t, stopLeg, cancels[0].ID1)
	_, ok = b.OrderInfo(stopLeg)
	assert.False(t, ok)
}

func TestOCOStopLegFires(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	primary, err := b.InsertLimit(book.Sell, 55, 10, log.cb, book.OCO(book.Sell, 10, 0, 45))
	require.NoError(t, err)
	stopLeg := primary + 1

	// trade at 45 fires the stop leg; the limit leg is pulled and the
	// converted market order finds no liquidity
	_, err = b.InsertLimit(book.Buy, 45, 5, log.cb, book.Ticket{})
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Sell, 45, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	trig := log.ofType(book.EventTriggerOCO)
	require.Len(t, trig, 1)
	assert.Equal(t, primary, trig[0].ID1)
	assert.Equal(t, stopLeg, trig[0].ID2)

	cancels := log.ofType(book.EventCancel)
	require.Len(t, cancels, 1)
	assert.Equal(t, primary, cancels[0].ID1)

	convs := log.ofType(book.EventStopToMarket)
	require.Len(t, convs, 1)
	assert.Equal(t, stopLeg, convs[0].ID1)
}

func TestOCOPullReleasesSibling(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	primary, err := b.InsertLimit(book.Sell, 55, 10, log.cb, book.OCO(book.Sell, 10, 0, 45))
	require.NoError(t, err)
	stopLeg := primary + 1

	require.True(t, b.Pull(primary))

	info, ok := b.OrderInfo(stopLeg)
	require.True(t, ok, "sibling survives an explicit pull")
	assert.Equal(t, book.CondNone, info.Condition)

	// the released stop now behaves as a plain order: firing it emits
	// no oco trigger
	_, err = b.InsertLimit(book.Buy, 45, 5, log.cb, book.Ticket{})
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Sell, 45, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	assert.Empty(t, log.ofType(book.EventTriggerOCO))
	assert.Len(t, log.ofType(book.EventStopToMarket), 1)
}

func TestOTOSpawnsOnFill(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	primary, err := b.InsertLimit(book.Buy, 50, 5, log.cb, book.OTO(book.Sell, 5, 60, 0))
	require.NoError(t, err)
	assert.Empty(t, log.ofType(book.EventTriggerOTO), "contingent waits for the fill")

	_, err = b.InsertLimit(book.Sell, 50, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	trig := log.ofType(book.EventTriggerOTO)
	require.Len(t, trig, 1)
	assert.Equal(t, primary, trig[0].ID1)

	info, ok := b.OrderInfo(trig[0].ID2)
	require.True(t, ok)
	assert.Equal(t, book.Sell, info.Side)
	assert.Equal(t, int64(60), info.Limit)
	assert.Equal(t, uint64(5), info.Size)
}

func TestOTOImmediateFill(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	_, err := b.InsertLimit(book.Sell, 50, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	primary, err := b.InsertLimit(book.Buy, 50, 5, log.cb, book.OTO(book.Sell, 5, 60, 0))
	require.NoError(t, err)

	trig := log.ofType(book.EventTriggerOTO)
	require.Len(t, trig, 1)
	assert.Equal(t, primary, trig[0].ID1)
	p, ok := b.AskPrice()
	require.True(t, ok)
	assert.Equal(t, int64(60), p)
}

func TestFOKKillsWhenNotFillable(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	_, err := b.InsertLimit(book.Sell, 50, 100, log.cb, book.Ticket{})
	require.NoError(t, err)

	id, err := b.InsertLimit(book.Buy, 50, 200, log.cb, book.FOK())
	require.NoError(t, err)

	kills := log.ofType(book.EventKill)
	require.Len(t, kills, 1)
	assert.Equal(t, id, kills[0].ID1)
	assert.Equal(t, uint64(200), kills[0].Size)

	assert.Empty(t, log.ofType(book.EventFill), "book untouched")
	assert.Equal(t, uint64(100), b.AskSize())
	assert.Zero(t, b.Volume())
}

func TestFOKFillsCompletely(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	_, err := b.InsertLimit(book.Sell, 50, 60, log.cb, book.Ticket{})
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Sell, 51, 60, log.cb, book.Ticket{})
	require.NoError(t, err)

	id, err := b.InsertLimit(book.Buy, 51, 100, log.cb, book.FOK())
	require.NoError(t, err)

	assert.Empty(t, log.ofType(book.EventKill))
	assert.Equal(t, uint64(100), b.Volume())
	_, ok := b.OrderInfo(id)
	assert.False(t, ok, "fill-or-kill never rests")
	assert.Equal(t, uint64(20), b.AskSize())
}

func TestFOKPartialTriggerIsImmediateOrCancel(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	_, err := b.InsertLimit(book.Sell, 50, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	id, err := b.InsertLimit(book.Buy, 50, 10, log.cb,
		book.FOK().WithTrigger(book.TriggerFillPartial))
	require.NoError(t, err)

	fills := log.ofType(book.EventFill)
	require.Len(t, fills, 2)
	kills := log.ofType(book.EventKill)
	require.Len(t, kills, 1)
	assert.Equal(t, id, kills[0].ID1)
	assert.Equal(t, uint64(5), kills[0].Size)
	_, ok := b.OrderInfo(id)
	assert.False(t, ok)
}

func TestBracketLifecycle(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	primary, err := b.InsertLimit(book.Buy, 50, 10, log.cb, book.Bracket(45, 0, 55))
	require.NoError(t, err)

	// entry fills; the bracket opens as a sell target limit and a sell
	// loss stop
	_, err = b.InsertLimit(book.Sell, 50, 10, log.cb, book.Ticket{})
	require.NoError(t, err)

	opens := log.ofType(book.EventBracketOpen)
	require.Len(t, opens, 1)
	assert.Equal(t, primary, opens[0].ID1)
	targetID := opens[0].ID2
	lossID := targetID + 1

	target, ok := b.OrderInfo(targetID)
	require.True(t, ok)
	assert.Equal(t, book.Sell, target.Side)
	assert.Equal(t, int64(55), target.Limit)
	loss, ok := b.OrderInfo(lossID)
	require.True(t, ok)
	assert.Equal(t, book.Stop, loss.Type)
	assert.Equal(t, int64(45), loss.Stop)

	// hitting the target closes the bracket and pulls the stop
	_, err = b.InsertLimit(book.Buy, 55, 10, log.cb, book.Ticket{})
	require.NoError(t, err)

	closes := log.ofType(book.EventBracketClose)
	require.Len(t, closes, 1)
	assert.Equal(t, targetID, closes[0].ID1)

	cancels := log.ofType(book.EventCancel)
	require.Len(t, cancels, 1)
	assert.Equal(t, lossID, cancels[0].ID1)

	_, ok = b.OrderInfo(lossID)
	assert.False(t, ok)
	assert.Equal(t, uint64(20), b.Volume())
}

func TestBracketStopSideCloses(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	_, err := b.InsertLimit(book.Buy, 50, 10, log.cb, book.Bracket(45, 0, 55))
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Sell, 50, 10, log.cb, book.Ticket{})
	require.NoError(t, err)

	opens := log.ofType(book.EventBracketOpen)
	require.Len(t, opens, 1)
	targetID := opens[0].ID2

	// market trades down through the loss stop
	_, err = b.InsertLimit(book.Buy, 45, 5, log.cb, book.Ticket{})
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Sell, 45, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	closes := log.ofType(book.EventBracketClose)
	require.Len(t, closes, 1)

	cancels := log.ofType(book.EventCancel)
	require.Len(t, cancels, 1)
	assert.Equal(t, targetID, cancels[0].ID1, "target limit pulled when the stop fires")

	require.Len(t, log.ofType(book.EventStopToMarket), 1)
}

func TestTrailingStopFollowsTheMarket(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	primary, err := b.InsertLimit(book.Buy, 50, 10, log.cb, book.TrailingStop(5))
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Sell, 50, 10, log.cb, book.Ticket{})
	require.NoError(t, err)

	trig := log.ofType(book.EventTriggerTrailingStop)
	require.Len(t, trig, 1)
	assert.Equal(t, primary, trig[0].ID1)
	stopID := trig[0].ID2

	info, ok := b.OrderInfo(stopID)
	require.True(t, ok)
	assert.Equal(t, book.Sell, info.Side)
	assert.Equal(t, int64(45), info.Stop)

	// market trades up; the stop ratchets with it
	_, err = b.InsertLimit(book.Sell, 52, 5, log.cb, book.Ticket{})
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Buy, 52, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	adjusts := log.ofType(book.EventAdjustTrailingStop)
	require.Len(t, adjusts, 1)
	assert.Equal(t, stopID, adjusts[0].ID1)
	assert.Equal(t, int64(47), adjusts[0].Price)

	info, ok = b.OrderInfo(stopID)
	require.True(t, ok)
	assert.Equal(t, int64(47), info.Stop)

	// trading back down never loosens it
	_, err = b.InsertLimit(book.Buy, 48, 5, log.cb, book.Ticket{})
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Sell, 48, 5, log.cb, book.Ticket{})
	require.NoError(t, err)
	require.Len(t, log.ofType(book.EventAdjustTrailingStop), 1)

	// reaching 47 fires it
	_, err = b.InsertLimit(book.Buy, 47, 5, log.cb, book.Ticket{})
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Sell, 47, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	convs := log.ofType(book.EventStopToMarket)
	require.Len(t, convs, 1)
	assert.Equal(t, stopID, convs[0].ID1)
	_, ok = b.OrderInfo(stopID)
	assert.False(t, ok)
}

func TestTrailingBracketLifecycle(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	primary, err := b.InsertLimit(book.Buy, 50, 10, log.cb, book.TrailingBracket(5, 5))
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Sell, 50, 10, log.cb, book.Ticket{})
	require.NoError(t, err)

	opens := log.ofType(book.EventBracketOpen)
	require.Len(t, opens, 1)
	assert.Equal(t, primary, opens[0].ID1)
	targetID := opens[0].ID2
	stopID := targetID + 1

	target, ok := b.OrderInfo(targetID)
	require.True(t, ok)
	assert.Equal(t, int64(55), target.Limit)
	stop, ok := b.OrderInfo(stopID)
	require.True(t, ok)
	assert.Equal(t, int64(45), stop.Stop)

	// the loss stop trails an up-move
	_, err = b.InsertLimit(book.Sell, 52, 5, log.cb, book.Ticket{})
	require.NoError(t, err)
	_, err = b.InsertLimit(book.Buy, 52, 5, log.cb, book.Ticket{})
	require.NoError(t, err)

	adjusts := log.ofType(book.EventAdjustTrailingStop)
	require.Len(t, adjusts, 1)
	assert.Equal(t, stopID, adjusts[0].ID1)
	assert.Equal(t, int64(47), adjusts[0].Price)

	// hitting the target closes the pair
	_, err = b.InsertLimit(book.Buy, 55, 10, log.cb, book.Ticket{})
	require.NoError(t, err)

	closes := log.ofType(book.EventBracketClose)
	require.Len(t, closes, 1)
	assert.Equal(t, targetID, closes[0].ID1)
	cancels := log.ofType(book.EventCancel)
	require.Len(t, cancels, 1)
	assert.Equal(t, stopID, cancels[0].ID1)
	_, ok = b.OrderInfo(stopID)
	assert.False(t, ok)
}

func TestTrailingStopFullFillTriggerWaits(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	_, err := b.InsertLimit(book.Sell, 50, 4, log.cb, book.Ticket{})
	require.NoError(t, err)

	// partial fill must not generate the stop under the full-fill default
	primary, err := b.InsertLimit(book.Buy, 50, 10, log.cb, book.TrailingStop(5))
	require.NoError(t, err)
	assert.Empty(t, log.ofType(book.EventTriggerTrailingStop))

	info, ok := b.OrderInfo(primary)
	require.True(t, ok)
	assert.Equal(t, uint64(6), info.Size)

	// completing the fill fires it
	_, err = b.InsertLimit(book.Sell, 50, 6, log.cb, book.Ticket{})
	require.NoError(t, err)
	require.Len(t, log.ofType(book.EventTriggerTrailingStop), 1)
}

func TestMarketOTOKilledWithoutFill(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	// an empty book kills the market primary outright; the contingent
	// never exists
	_, err := b.InsertMarket(book.Buy, 10, log.cb, book.OTO(book.Sell, 5, 60, 0))
	require.ErrorIs(t, err, book.ErrInsufficientLiquidity)

	kills := log.ofType(book.EventKill)
	require.Len(t, kills, 1)
	assert.Equal(t, uint64(10), kills[0].Size)
	assert.Empty(t, log.ofType(book.EventTriggerOTO))
	assert.Zero(t, b.TotalSize())
	assert.Zero(t, b.Volume())
}

func TestMarketBracketKilledWithoutFill(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	_, err := b.InsertMarket(book.Buy, 10, log.cb, book.Bracket(45, 0, 60))
	require.ErrorIs(t, err, book.ErrInsufficientLiquidity)

	assert.Empty(t, log.ofType(book.EventBracketOpen))
	bids, asks := b.MarketDepth(0)
	assert.Empty(t, bids)
	assert.Empty(t, asks)
}

func TestMarketOTOPartialFillTriggers(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	_, err := b.InsertLimit(book.Sell, 50, 4, log.cb, book.Ticket{})
	require.NoError(t, err)

	// the partial fill activates the contingent even though the
	// remainder is killed
	_, err = b.InsertMarket(book.Buy, 10, log.cb, book.OTO(book.Sell, 5, 60, 0))
	require.ErrorIs(t, err, book.ErrInsufficientLiquidity)

	kills := log.ofType(book.EventKill)
	require.Len(t, kills, 1)
	assert.Equal(t, uint64(6), kills[0].Size)

	trig := log.ofType(book.EventTriggerOTO)
	require.Len(t, trig, 1)
	info, ok := b.OrderInfo(trig[0].ID2)
	require.True(t, ok)
	assert.Equal(t, int64(60), info.Limit)
	assert.Equal(t, uint64(5), info.Size)
}

func TestMarketOTOFullFillTriggerNeedsTheWholeSize(t *testing.T) {
	b := book.New(testLadder())
	log := &eventLog{}

	_, err := b.InsertLimit(book.Sell, 50, 4, log.cb, book.Ticket{})
	require.NoError(t, err)

	oto := book.OTO(book.Sell, 5, 60, 0).WithTrigger(book.TriggerFillFull)
	_, err = b.InsertMarket(book.Buy, 10, log.cb, oto)
	require.ErrorIs(t, err, book.ErrInsufficientLiquidity)

	assert.Empty(t, log.ofType(book.EventTriggerOTO))
	assert.Equal(t, uint64(4), b.Volume())
	assert.Zero(t, b.TotalSize())
}
