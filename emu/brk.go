// Package emu provides the ARM64 guest state and semantic primitives.
package emu

// BreakSegment emulates the program break. It owns one growable region,
// allocated through a Mapper.
type BreakSegment struct {
	mapper Mapper
	start  uint64
	cur    uint64
	limit  uint64
	mapped uint64
}

// NewBreakSegment creates a break segment starting at start that may grow
// up to limit.
func NewBreakSegment(mapper Mapper, start, limit uint64) *BreakSegment {
	return &BreakSegment{mapper: mapper, start: start, cur: start, limit: limit}
}

// Current returns the current program break.
func (b *BreakSegment) Current() uint64 {
	return b.cur
}

// Set moves the program break to addr and returns the new break. Requests
// outside [start, limit] or that the mapper refuses leave the break
// unchanged, as brk(2) does.
func (b *BreakSegment) Set(addr uint64) uint64 {
	if addr < b.start || addr > b.limit {
		return b.cur
	}

	want := pageAlign(addr - b.start)
	if want > b.mapped {
		var err error
		if b.mapped == 0 {
			err = b.mapper.Map(b.start, want, ProtRead|ProtWrite)
		} else {
			err = b.mapper.Extend(b.start, b.mapped, want)
		}
		if err != nil {
			return b.cur
		}
		b.mapped = want
	}

	b.cur = addr
	return b.cur
}

func pageAlign(n uint64) uint64 {
	return (n + PageSize - 1) &^ (PageSize - 1)
}
