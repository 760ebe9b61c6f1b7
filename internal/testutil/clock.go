package testutil

import (
	"fmt"
	"sync"
	"time"
)

// fixtureEpoch is the instant every test fixture starts at. Tests that care
// about ordering call Advance rather than hardcoding later instants.
var fixtureEpoch = time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC)

// StubClock hands out a controlled time to code that takes an hl.Clock.
// Safe for concurrent use; timestamps only move when a test calls Advance.
type StubClock struct {
	mu     sync.Mutex
	base   time.Time
	offset time.Duration
}

// NewStubClock creates a StubClock pinned to t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{base: t}
}

// FixedClock returns a StubClock pinned to the fixture epoch,
// 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(fixtureEpoch)
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.Add(c.offset)
}

// Advance moves the clock forward by d. Use between inserts when a test
// depends on created_at ordering.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// StubIDGenerator hands out sequential IDs ("id-0001", "id-0002", ...) so
// records created in a test are identifiable by insertion order.
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("id-%04d", g.next)
}
