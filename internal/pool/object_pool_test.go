package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolReusesObjectsAndResets(t *testing.T) {
	type counter struct{ n int }
	p := NewPool(
		func() *counter { return &counter{} },
		func(c **counter) { (*c).n = 0 },
	)

	c1 := p.Get()
	c1.n = 5
	p.Put(c1)

	c2 := p.Get()
	assert.Equal(t, 0, c2.n, "Put must reset state before returning to the pool")

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Gets)
	assert.Equal(t, int64(1), stats.Puts)
}

func TestByteBufferPoolResetsOnPut(t *testing.T) {
	buf := ByteBufferPool.Get()
	buf.WriteString("hello")
	ByteBufferPool.Put(buf)

	buf2 := ByteBufferPool.Get()
	assert.Equal(t, 0, buf2.Len())
}

func TestSlicePoolResetsLengthKeepsCapacity(t *testing.T) {
	sp := NewSlicePool[int](8)
	s := sp.Get()
	s = append(s, 1, 2, 3)
	cap0 := cap(s)
	sp.Put(s)

	s2 := sp.Get()
	assert.Equal(t, 0, len(s2))
	assert.GreaterOrEqual(t, cap(s2), cap0)
}

func TestMapPoolClearsOnPut(t *testing.T) {
	mp := NewMapPool[string, int](4)
	m := mp.Get()
	m["a"] = 1
	mp.Put(m)

	m2 := mp.Get()
	assert.Empty(t, m2)
}

func TestPoolStatsHitRate(t *testing.T) {
	stats := PoolStats{Gets: 10, News: 2}
	assert.InDelta(t, 0.8, stats.HitRate(), 0.0001)

	empty := PoolStats{}
	assert.Equal(t, float64(0), empty.HitRate())
}
