package tpuart

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

// fakeDuplex is a scripted in-memory Duplex.
type fakeDuplex struct {
	mu         sync.Mutex
	in         []byte
	written    []byte
	writes     [][]byte
	configured []LineSettings
	writeErr   error
	timeouts   []time.Duration
}

func (f *fakeDuplex) feed(b ...byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in = append(f.in, b...)
}

func (f *fakeDuplex) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.in) > 0
}

func (f *fakeDuplex) ReceiveByte(timeout time.Duration) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts = append(f.timeouts, timeout)
	if len(f.in) == 0 {
		return 0, ErrReadTimeout
	}
	b := f.in[0]
	f.in = f.in[1:]
	return b, nil
}

func (f *fakeDuplex) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, p...)
	f.writes = append(f.writes, append([]byte(nil), p...))
	return nil
}

func (f *fakeDuplex) Configure(s LineSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = append(f.configured, s)
	return nil
}

func (f *fakeDuplex) output() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.written...)
}

func (f *fakeDuplex) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.in)
}

// newTestEngine returns an engine at 1.1.1 on a fake line with the settle
// delay recorded instead of slept.
func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeDuplex, *[]time.Duration) {
	t.Helper()
	if cfg.Address == (knx.IndividualAddress{}) {
		cfg.Address = knx.IndividualAddress{Area: 1, Line: 1, Member: 1}
	}
	port := &fakeDuplex{}
	eng, err := New(port, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var sleeps []time.Duration
	eng.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return eng, port, &sleeps
}

// decodeUnits reverses the frame unit encoding, checking markers.
func decodeUnits(t *testing.T, units []byte) []byte {
	t.Helper()
	if len(units)%2 != 0 {
		t.Fatalf("odd unit stream length %d", len(units))
	}
	n := len(units) / 2
	out := make([]byte, 0, n)
	for i := range n {
		marker := units[2*i]
		want := byte(0x80 | i)
		if i == n-1 {
			want = byte(0x40 | i)
		}
		if marker != want {
			t.Fatalf("unit %d marker = 0x%02X, want 0x%02X", i, marker, want)
		}
		out = append(out, units[2*i+1])
	}
	return out
}
