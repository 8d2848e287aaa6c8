package book

// Read-only market data queries. None of them mutate the book or
// deliver events, so the service layer can serve them under the same
// mutex without journaling.

// BidPrice returns the best regular bid in ticks. AON orders do not
// participate in the quote.
func (b *Book) BidPrice() (int64, bool) {
	lv := b.bids.max()
	if lv == nil {
		return 0, false
	}
	return lv.price, true
}

// AskPrice returns the best regular ask in ticks.
func (b *Book) AskPrice() (int64, bool) {
	lv := b.asks.min()
	if lv == nil {
		return 0, false
	}
	return lv.price, true
}

// BidSize returns the total resting size at the best bid.
func (b *Book) BidSize() uint64 {
	lv := b.bids.max()
	if lv == nil {
		return 0
	}
	return lv.size
}

// AskSize returns the total resting size at the best ask.
func (b *Book) AskSize() uint64 {
	lv := b.asks.min()
	if lv == nil {
		return 0
	}
	return lv.size
}

// LastPrice returns the last trade price; ok is false until the book
// has traded at least once.
func (b *Book) LastPrice() (int64, bool) { return b.last, b.traded }

// LastSize returns the size of the last trade.
func (b *Book) LastSize() uint64 { return b.lastSize }

// LastID returns the aggressor order id of the last trade.
func (b *Book) LastID() uint64 { return b.lastID }

// Volume returns the total size traded over the book's lifetime.
func (b *Book) Volume() uint64 { return b.volume }

func sumTree(t *tree) uint64 {
	var tot uint64
	t.ascend(func(lv *level) bool {
		tot += lv.size
		return true
	})
	return tot
}

func (b *Book) TotalBidSize() uint64 { return sumTree(b.bids) }
func (b *Book) TotalAskSize() uint64 { return sumTree(b.asks) }
func (b *Book) TotalSize() uint64    { return sumTree(b.bids) + sumTree(b.asks) }

func (b *Book) TotalAONBidSize() uint64 { return sumTree(b.aonBids) }
func (b *Book) TotalAONAskSize() uint64 { return sumTree(b.aonAsks) }
func (b *Book) TotalAONSize() uint64    { return sumTree(b.aonBids) + sumTree(b.aonAsks) }

// MarketDepth returns up to depth regular levels per side, best first.
// A depth of 0 returns every level.
func (b *Book) MarketDepth(depth int) (bids, asks []Quote) {
	take := func(q *[]Quote) func(*level) bool {
		return func(lv *level) bool {
			*q = append(*q, Quote{Price: lv.price, Size: lv.size})
			return depth == 0 || len(*q) < depth
		}
	}
	b.bids.descend(take(&bids))
	b.asks.ascend(take(&asks))
	return bids, asks
}

// AONMarketDepth returns the all-or-nothing book merged across sides,
// ascending by price.
func (b *Book) AONMarketDepth() []AONQuote {
	m := make(map[int64]*AONQuote)
	var prices []int64
	collect := func(t *tree, buy bool) {
		t.ascend(func(lv *level) bool {
			q := m[lv.price]
			if q == nil {
				q = &AONQuote{Price: lv.price}
				m[lv.price] = q
				prices = append(prices, lv.price)
			}
			if buy {
				q.BuySize += lv.size
			} else {
				q.SellSize += lv.size
			}
			return true
		})
	}
	collect(b.aonBids, true)
	collect(b.aonAsks, false)

	// the bid pass emitted its prices in order; merge the ask prices in
	for i := 1; i < len(prices); i++ {
		for j := i; j > 0 && prices[j] < prices[j-1]; j-- {
			prices[j], prices[j-1] = prices[j-1], prices[j]
		}
	}
	out := make([]AONQuote, 0, len(prices))
	for _, p := range prices {
		out = append(out, *m[p])
	}
	return out
}

// TimeAndSales returns a copy of the trade tape.
func (b *Book) TimeAndSales() []Trade {
	return append([]Trade(nil), b.sales...)
}

// OrderInfo snapshots a resting order by id.
func (b *Book) OrderInfo(id uint64) (OrderInfo, bool) {
	o := b.cache[id]
	if o == nil {
		return OrderInfo{}, false
	}
	return OrderInfo{
		ID:        o.ID,
		Side:      o.Side,
		Type:      o.Type,
		Limit:     o.Price,
		Stop:      o.Stop,
		Size:      o.Size,
		Condition: o.cond,
		Trigger:   o.trigger,
	}, true
}
