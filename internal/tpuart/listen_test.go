package tpuart

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

func TestListenTable(t *testing.T) {
	l := NewListenTable()

	if l.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", l.Len())
	}

	order := []knx.GroupAddress{{Main: 5}, {Main: 1, Sub: 1}, {Main: 3, Middle: 2, Sub: 1}}
	for _, ga := range order {
		if err := l.Add(ga); err != nil {
			t.Fatalf("Add(%v) error = %v", ga, err)
		}
	}
	if err := l.Add(order[0]); err != nil {
		t.Errorf("Add(duplicate) error = %v, want nil", err)
	}
	if l.Len() != len(order) {
		t.Errorf("Len() = %d after duplicate, want %d", l.Len(), len(order))
	}

	got := l.Entries()
	for i := range order {
		if got[i] != order[i] {
			t.Errorf("Entries()[%d] = %v, want %v", i, got[i], order[i])
		}
	}

	// Entries is a copy.
	got[0] = knx.GroupAddress{Main: 15}
	if l.Contains(knx.GroupAddress{Main: 15}) {
		t.Error("mutating Entries() result changed the table")
	}
}

func TestListenTableCapacity(t *testing.T) {
	l := NewListenTable()
	for i := range MaxListenGroupAddresses {
		if err := l.Add(knx.GroupAddress{Main: 0, Middle: 0, Sub: uint8(i) + 1}); err != nil {
			t.Fatalf("Add #%d error = %v", i, err)
		}
	}

	err := l.Add(knx.GroupAddress{Main: 9, Middle: 1, Sub: 9})
	if !errors.Is(err, ErrListenTableFull) {
		t.Errorf("Add beyond capacity error = %v, want ErrListenTableFull", err)
	}
	if l.Len() != MaxListenGroupAddresses {
		t.Errorf("Len() = %d, want %d", l.Len(), MaxListenGroupAddresses)
	}
}
