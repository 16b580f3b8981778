package testutil

import (
	"strconv"
	"sync/atomic"
	"time"
)

// StubClock is a manually driven clock for run timestamps and cache ages.
type StubClock struct {
	nanos atomic.Int64
}

func NewStubClock(t time.Time) *StubClock {
	c := &StubClock{}
	c.Set(t)
	return c
}

// FixedClock starts at Epoch, the same instant MemFS stamps files with.
func FixedClock() *StubClock { return NewStubClock(Epoch) }

func (c *StubClock) Now() time.Time { return time.Unix(0, c.nanos.Load()).UTC() }

func (c *StubClock) Set(t time.Time) { c.nanos.Store(t.UnixNano()) }

func (c *StubClock) Advance(d time.Duration) { c.nanos.Add(int64(d)) }

// StubIDGenerator hands out run-1, run-2, ...
type StubIDGenerator struct {
	n atomic.Int64
}

func NewStubIDGenerator() *StubIDGenerator { return &StubIDGenerator{} }

func (g *StubIDGenerator) New() string {
	return "run-" + strconv.FormatInt(g.n.Add(1), 10)
}
