package tpuart

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

const (
	// rxQueueSize buffers bytes between the reader goroutine and the engine.
	// A full telegram is 23 bytes; the queue holds several back-to-back.
	rxQueueSize = 512

	// readSliceTimeout bounds each blocking read in the reader goroutine
	// so that Close is noticed promptly.
	readSliceTimeout = 50 * time.Millisecond

	// Backoff applied after a read error.
	minReadBackoff = 10 * time.Millisecond
	maxReadBackoff = 2 * time.Second

	// maxConsecutiveReadErrors marks the device as lost. An unplugged USB
	// adapter fails every read; a glitch recovers well before this.
	maxConsecutiveReadErrors = 5
)

// Ensure SerialPort implements Duplex.
var _ Duplex = (*SerialPort)(nil)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// SerialPort is a Duplex over a local serial device.
//
// A reader goroutine drains the device into a buffered channel, which is
// what lets Available answer without blocking.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type SerialPort struct {
	name string
	port serial.Port

	modeMu  sync.Mutex
	current LineSettings

	writeMu sync.Mutex

	rx   chan byte
	done *closeOnce
	wg   sync.WaitGroup

	lostMu  sync.Mutex
	lostErr error

	logger Logger

	bytesRx    atomic.Uint64
	dropped    atomic.Uint64
	readErrors atomic.Uint64
}

// OpenSerial opens a serial device with the given line settings and starts
// the reader goroutine.
//
// Parameters:
//   - name: Device path, e.g. "/dev/ttyAMA0" or "/dev/ttyUSB0"
//   - settings: Line framing (use DefaultLineSettings for TP-UART)
//   - logger: Optional logger (nil disables logging)
//
// Returns:
//   - *SerialPort: Open port ready for use
//   - error: ErrOpenFailed if the device cannot be opened
func OpenSerial(name string, settings LineSettings, logger Logger) (*SerialPort, error) {
	mode, err := toMode(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, name, err)
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, name, err)
	}
	if err := port.SetReadTimeout(readSliceTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: %s: set read timeout: %w", ErrOpenFailed, name, err)
	}
	// Discard whatever the transceiver emitted before we were listening.
	_ = port.ResetInputBuffer()

	p := newSerialPort(name, port, settings, logger)
	p.logger.Info("serial port opened", "port", name, "settings", settings.String())
	return p, nil
}

// newSerialPort wraps an open device and starts the reader goroutine.
func newSerialPort(name string, port serial.Port, settings LineSettings, logger Logger) *SerialPort {
	if logger == nil {
		logger = noopLogger{}
	}

	p := &SerialPort{
		name:    name,
		port:    port,
		current: settings,
		rx:      make(chan byte, rxQueueSize),
		done:    newCloseOnce(),
		logger:  logger,
	}

	p.wg.Add(1)
	go p.readLoop()

	return p
}

// Name returns the device path.
func (p *SerialPort) Name() string {
	return p.name
}

// Available reports whether at least one received byte is queued. It also
// reports true once the port is closed or lost, so the next ReceiveByte
// surfaces ErrPortClosed.
func (p *SerialPort) Available() bool {
	if len(p.rx) > 0 {
		return true
	}
	select {
	case <-p.done.Done():
		return true
	default:
		return false
	}
}

// ReceiveByte returns the next received byte, waiting at most timeout.
func (p *SerialPort) ReceiveByte(timeout time.Duration) (byte, error) {
	select {
	case b := <-p.rx:
		return b, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b := <-p.rx:
		return b, nil
	case <-timer.C:
		return 0, ErrReadTimeout
	case <-p.done.Done():
		return 0, p.closedErr()
	}
}

// Write sends all of b to the device.
func (p *SerialPort) Write(b []byte) error {
	select {
	case <-p.done.Done():
		return p.closedErr()
	default:
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	for len(b) > 0 {
		n, err := p.port.Write(b)
		if err != nil {
			return fmt.Errorf("tpuart: write %s: %w", p.name, err)
		}
		b = b[n:]
	}
	return nil
}

// Configure applies line settings. Unchanged settings are a no-op.
func (p *SerialPort) Configure(settings LineSettings) error {
	p.modeMu.Lock()
	defer p.modeMu.Unlock()

	if settings == p.current {
		return nil
	}

	mode, err := toMode(settings)
	if err != nil {
		return err
	}
	if err := p.port.SetMode(mode); err != nil {
		return fmt.Errorf("tpuart: set mode %s on %s: %w", settings, p.name, err)
	}

	p.logger.Warn("serial line settings corrected", "port", p.name, "from", p.current.String(), "to", settings.String())
	p.current = settings
	return nil
}

// Close stops the reader goroutine and closes the device.
func (p *SerialPort) Close() error {
	p.done.Close()
	err := p.port.Close()
	p.wg.Wait()
	return err
}

// Lost returns the read error that took the device away, or nil while the
// port is healthy or was closed by its owner.
func (p *SerialPort) Lost() error {
	p.lostMu.Lock()
	defer p.lostMu.Unlock()
	return p.lostErr
}

// closedErr is ErrPortClosed, carrying the cause when the device was lost.
func (p *SerialPort) closedErr() error {
	if cause := p.Lost(); cause != nil {
		return fmt.Errorf("%w: %s: %w", ErrPortClosed, p.name, cause)
	}
	return ErrPortClosed
}

// markLost records cause and wakes every waiter as if the port had closed.
func (p *SerialPort) markLost(cause error) {
	p.lostMu.Lock()
	if p.lostErr == nil {
		p.lostErr = cause
	}
	p.lostMu.Unlock()

	p.logger.Error("serial device lost", "port", p.name, "error", cause)
	p.done.Close()
}

// Counters returns received, dropped and read-error counts.
func (p *SerialPort) Counters() (received, dropped, readErrors uint64) {
	return p.bytesRx.Load(), p.dropped.Load(), p.readErrors.Load()
}

// readLoop moves bytes from the device into the receive queue.
func (p *SerialPort) readLoop() {
	defer p.wg.Done()

	buf := make([]byte, 64) //nolint:mnd // read chunk
	backoff := minReadBackoff
	failures := 0

	for {
		select {
		case <-p.done.Done():
			return
		default:
		}

		n, err := p.port.Read(buf)
		if err != nil {
			select {
			case <-p.done.Done():
				return
			default:
			}
			p.readErrors.Add(1)
			failures++
			if failures >= maxConsecutiveReadErrors {
				p.markLost(err)
				return
			}
			if !errors.Is(err, io.EOF) {
				p.logger.Warn("serial read failed", "port", p.name, "error", err, "attempt", failures)
			}
			select {
			case <-time.After(backoff):
			case <-p.done.Done():
				return
			}
			backoff = min(backoff*2, maxReadBackoff)
			continue
		}
		failures = 0
		backoff = minReadBackoff

		// n == 0 is the read timeout slice expiring.
		for _, b := range buf[:n] {
			select {
			case p.rx <- b:
				p.bytesRx.Add(1)
			default:
				p.dropped.Add(1)
				p.logger.Warn("serial receive queue full, byte dropped", "port", p.name)
			}
		}
	}
}

// toMode converts LineSettings to the serial library's mode.
func toMode(s LineSettings) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: s.BaudRate,
		DataBits: s.DataBits,
	}

	switch s.Parity {
	case ParityNone:
		mode.Parity = serial.NoParity
	case ParityEven:
		mode.Parity = serial.EvenParity
	case ParityOdd:
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("tpuart: unsupported parity %s", s.Parity)
	}

	switch s.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2: //nolint:mnd // two stop bits
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("tpuart: unsupported stop bits %d", s.StopBits)
	}

	return mode, nil
}
