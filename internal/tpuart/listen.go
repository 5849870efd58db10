package tpuart

import (
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

// MaxListenGroupAddresses is the capacity of the listen table.
const MaxListenGroupAddresses = 15

// ListenTable is the ordered, append-only set of group addresses the
// engine acknowledges.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type ListenTable struct {
	mu      sync.RWMutex
	entries []knx.GroupAddress
}

// NewListenTable returns an empty table.
func NewListenTable() *ListenTable {
	return &ListenTable{entries: make([]knx.GroupAddress, 0, MaxListenGroupAddresses)}
}

// Add appends ga. Adding an address already present is a no-op; adding
// beyond capacity returns ErrListenTableFull and leaves the table unchanged.
func (l *ListenTable) Add(ga knx.GroupAddress) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if slices.Contains(l.entries, ga) {
		return nil
	}
	if len(l.entries) >= MaxListenGroupAddresses {
		return fmt.Errorf("%w: cannot add %s (capacity %d)", ErrListenTableFull, ga, MaxListenGroupAddresses)
	}
	l.entries = append(l.entries, ga)
	return nil
}

// Contains reports whether ga is in the table.
func (l *ListenTable) Contains(ga knx.GroupAddress) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Contains(l.entries, ga)
}

// Len returns the number of entries.
func (l *ListenTable) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of the table in insertion order.
func (l *ListenTable) Entries() []knx.GroupAddress {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.entries)
}
