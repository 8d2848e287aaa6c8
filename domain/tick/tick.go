// Package tick defines the bounded, tick-aligned price domain the engine
// operates on. All engine-facing prices are int64 tick indices; decimal
// prices exist only at the edges.
package tick

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Ladder is a fixed tick size over a closed price range [Min, Max].
// The zero value is not usable; construct with New.
type Ladder struct {
	size decimal.Decimal
	min  decimal.Decimal
	max  decimal.Decimal

	minTicks int64
	maxTicks int64
}

func New(size, min, max decimal.Decimal) (Ladder, error) {
	if size.Sign() <= 0 {
		return Ladder{}, fmt.Errorf("tick size %s: must be positive", size)
	}
	if min.Sign() <= 0 {
		return Ladder{}, fmt.Errorf("min price %s: must be positive", min)
	}
	if max.LessThanOrEqual(min) {
		return Ladder{}, fmt.Errorf("price range [%s, %s]: max must exceed min", min, max)
	}
	if !min.Mod(size).IsZero() || !max.Mod(size).IsZero() {
		return Ladder{}, fmt.Errorf("price range [%s, %s]: bounds not aligned to tick %s", min, max, size)
	}
	return Ladder{
		size:     size,
		min:      min,
		max:      max,
		minTicks: min.Div(size).IntPart(),
		maxTicks: max.Div(size).IntPart(),
	}, nil
}

// MustNew is New for static configuration; it panics on invalid input.
func MustNew(size, min, max string) Ladder {
	l, err := New(
		decimal.RequireFromString(size),
		decimal.RequireFromString(min),
		decimal.RequireFromString(max),
	)
	if err != nil {
		panic(err)
	}
	return l
}

func (l Ladder) Size() decimal.Decimal { return l.size }
func (l Ladder) Min() decimal.Decimal  { return l.min }
func (l Ladder) Max() decimal.Decimal  { return l.max }

// MinTicks and MaxTicks bound the valid tick indices, inclusive.
func (l Ladder) MinTicks() int64 { return l.minTicks }
func (l Ladder) MaxTicks() int64 { return l.maxTicks }

// TicksInRange is the number of valid price levels.
func (l Ladder) TicksInRange() int64 { return l.maxTicks - l.minTicks + 1 }

// Contains reports whether t is a valid tick index on this ladder.
func (l Ladder) Contains(t int64) bool { return t >= l.minTicks && t <= l.maxTicks }

// ToTicks converts a decimal price to its tick index. The price must be
// exactly tick-aligned and inside [Min, Max].
func (l Ladder) ToTicks(price decimal.Decimal) (int64, error) {
	if price.LessThan(l.min) || price.GreaterThan(l.max) {
		return 0, fmt.Errorf("price %s: outside [%s, %s]", price, l.min, l.max)
	}
	q := price.Div(l.size)
	if !q.IsInteger() {
		return 0, fmt.Errorf("price %s: not aligned to tick %s", price, l.size)
	}
	return q.IntPart(), nil
}

// Price converts a tick index back to its decimal price.
func (l Ladder) Price(t int64) decimal.Decimal {
	return l.size.Mul(decimal.NewFromInt(t))
}
