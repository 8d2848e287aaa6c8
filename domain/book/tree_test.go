package book

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeOrdering(t *testing.T) {
	tr := newTree()
	keys := []int64{50, 10, 90, 30, 70, 20, 80}
	for _, k := range keys {
		tr.upsert(k)
	}
	require.Equal(t, len(keys), tr.len())

	assert.Equal(t, int64(10), tr.min().price)
	assert.Equal(t, int64(90), tr.max().price)

	var got []int64
	tr.ascend(func(lv *level) bool {
		got = append(got, lv.price)
		return true
	})
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	assert.Equal(t, keys, got)

	got = got[:0]
	tr.descend(func(lv *level) bool {
		got = append(got, lv.price)
		return true
	})
	for i, k := range keys {
		assert.Equal(t, k, got[len(got)-1-i])
	}
}

func TestTreeUpsertIsIdempotent(t *testing.T) {
	tr := newTree()
	a := tr.upsert(42)
	b := tr.upsert(42)
	require.Same(t, a, b)
	require.Equal(t, 1, tr.len())
}

func TestTreeNeighbors(t *testing.T) {
	tr := newTree()
	for _, k := range []int64{10, 20, 30} {
		tr.upsert(k)
	}

	require.Nil(t, tr.find(15))
	require.NotNil(t, tr.find(20))

	assert.Equal(t, int64(20), tr.successor(10).price)
	assert.Equal(t, int64(20), tr.successor(15).price)
	assert.Nil(t, tr.successor(30))

	assert.Equal(t, int64(20), tr.predecessor(30).price)
	assert.Equal(t, int64(20), tr.predecessor(25).price)
	assert.Nil(t, tr.predecessor(10))
}

// Removing a black leaf whose sibling holds a single red inner child
// forces the double-rotation rebalance on each side.
func TestTreeRemoveRebalances(t *testing.T) {
	tr := newTree()
	for _, k := range []int64{10, 5, 15, 7} {
		tr.upsert(k)
	}
	require.True(t, tr.remove(15))

	var got []int64
	tr.ascend(func(lv *level) bool {
		got = append(got, lv.price)
		return true
	})
	require.Equal(t, []int64{5, 7, 10}, got)
	assert.Equal(t, int64(5), tr.min().price)
	assert.Equal(t, int64(10), tr.max().price)
	require.NotNil(t, tr.find(7))

	// mirrored shape
	tr = newTree()
	for _, k := range []int64{10, 15, 5, 12} {
		tr.upsert(k)
	}
	require.True(t, tr.remove(5))

	got = got[:0]
	tr.ascend(func(lv *level) bool {
		got = append(got, lv.price)
		return true
	})
	require.Equal(t, []int64{10, 12, 15}, got)
	assert.Equal(t, int64(12), tr.predecessor(15).price)
}

func TestTreeRandomInsertRemove(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tr := newTree()
	ref := map[int64]bool{}

	for i := 0; i < 2000; i++ {
		k := int64(rng.Intn(500) + 1)
		if ref[k] && rng.Intn(2) == 0 {
			tr.remove(k)
			delete(ref, k)
		} else {
			tr.upsert(k)
			ref[k] = true
		}
	}
	require.Equal(t, len(ref), tr.len())

	want := make([]int64, 0, len(ref))
	for k := range ref {
		want = append(want, k)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	var got []int64
	tr.ascend(func(lv *level) bool {
		got = append(got, lv.price)
		return true
	})
	require.Equal(t, want, got)
}
