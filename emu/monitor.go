// Package emu provides the ARM64 guest state and semantic primitives.
package emu

// Monitor is the exclusive-access reservation of one execution context. It
// holds at most one (address, size) reservation together with the values
// observed by the exclusive load, so a store can detect a write that slipped
// in between.
type Monitor struct {
	valid bool
	addr  uint64
	size  int
	data  [2]uint64
}

// Reserve records a reservation for size bytes at addr. data holds the
// loaded value(s); pairs use both slots.
func (m *Monitor) Reserve(addr uint64, size int, data ...uint64) {
	m.valid = true
	m.addr = addr
	m.size = size
	m.data = [2]uint64{}
	copy(m.data[:], data)
}

// Check reports whether a reservation for exactly (addr, size) is held and
// returns the values observed when it was made. The reservation is consumed
// whatever the outcome.
func (m *Monitor) Check(addr uint64, size int) ([2]uint64, bool) {
	ok := m.valid && m.addr == addr && m.size == size
	data := m.data
	m.Clear()
	return data, ok
}

// Clear drops any reservation (CLREX).
func (m *Monitor) Clear() {
	*m = Monitor{}
}

// Held reports the current reservation, if any.
func (m *Monitor) Held() (addr uint64, size int, ok bool) {
	return m.addr, m.size, m.valid
}
