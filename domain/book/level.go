package book

// level is a FIFO order chain at a single price. Orders link
// intrusively; aggregates are maintained on every mutation.
type level struct {
	price int64

	head *Order
	tail *Order

	size  uint64
	count int
}

func (l *level) push(o *Order) {
	if l.head == nil {
		l.head = o
		l.tail = o
	} else {
		l.tail.next = o
		o.prev = l.tail
		l.tail = o
	}
	o.lvl = l
	l.size += o.Size
	l.count++
}

// unlink removes o from anywhere in the chain.
func (l *level) unlink(o *Order) {
	if o.lvl != l {
		panic("book: order unlinked from wrong level")
	}
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		l.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		l.tail = o.prev
	}
	o.next = nil
	o.prev = nil
	o.lvl = nil
	l.size -= o.Size
	l.count--
}

// reduce lowers o's remaining size in place, keeping aggregates exact.
func (l *level) reduce(o *Order, by uint64) {
	if by > o.Size || by > l.size {
		panic("book: level size underflow")
	}
	o.Size -= by
	l.size -= by
}

func (l *level) empty() bool { return l.head == nil }
