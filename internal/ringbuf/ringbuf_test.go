package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferPushAndGrow(t *testing.T) {
	b := New[int](2)

	for i := 0; i < 10; i++ {
		b.PushBack(i)
	}

	assert.Equal(t, 10, b.Len())
	for i := 0; i < 10; i++ {
		assert.Equal(t, i, b.At(i))
	}
}

func TestBufferTruncFront(t *testing.T) {
	b := New[int](4)
	for i := 0; i < 6; i++ {
		b.PushBack(i)
	}

	b.TruncFront(3)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 3, b.At(0))
	assert.Equal(t, 5, b.At(2))
}

func TestBufferSet(t *testing.T) {
	b := New[string](2)
	b.PushBack("a")
	b.PushBack("b")
	b.Set(1, "z")
	assert.Equal(t, "z", b.At(1))
}

func TestFixedRingWrapsByKey(t *testing.T) {
	r := NewFixedRing[int](4)

	*r.Slot(0) = 10
	*r.Slot(4) = 20 // same slot as key 0

	assert.Equal(t, 20, *r.Slot(0))
	assert.Equal(t, 4, r.Cap())
}

func TestFixedRingNegativeKey(t *testing.T) {
	r := NewFixedRing[int](4)
	*r.Slot(-1) = 99
	assert.Equal(t, 99, *r.Slot(3))
}

func TestFixedRingAllReturnsEverySlot(t *testing.T) {
	r := NewFixedRing[int](3)
	*r.Slot(0) = 1
	*r.Slot(1) = 2
	*r.Slot(2) = 3
	assert.ElementsMatch(t, []int{1, 2, 3}, r.All())
}
