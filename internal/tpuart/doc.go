// Package tpuart implements the KNX TP-UART line protocol.
//
// The engine talks to a TP-UART transceiver over a byte-oriented serial
// link (Duplex). It classifies incoming bytes, reassembles telegrams,
// decides which telegrams concern this device and acknowledges them, and
// frames outgoing telegrams for transmission.
//
// # Reception
//
// Poll takes one step: nothing pending (EventNone), a reset indication
// (0x03), a telegram (first byte matches 10R1PP00), or an unknown byte
// that is discarded. Telegrams are acknowledged with 0x11 when they target
// a listened group address, our individual address, or 0/0/0 in
// programming mode; everything else gets 0x10 (not addressed). Numbered
// control telegrams addressed to us are confirmed with a point-to-point
// positive confirmation built on a separate buffer.
//
// # Transmission
//
// Send writes each telegram byte as a two-byte unit (0x80|i, byte), the
// last one marked 0x40|i, then waits for 0x8B (sent) or 0x0B (not
// acknowledged). There is no retry.
//
// # Usage
//
//	port, err := tpuart.OpenSerial("/dev/ttyAMA0", tpuart.DefaultLineSettings, logger)
//	if err != nil {
//	    return err
//	}
//	defer port.Close()
//
//	eng, err := tpuart.New(port, tpuart.Config{Address: knx.MustParseIndividualAddress("1.1.250")})
//	if err != nil {
//	    return err
//	}
//	_ = eng.AddListenGroupAddress(knx.MustParseGroupAddress("1/2/3"))
//	_ = eng.Reset()
//
//	go eng.Run(ctx, func(ev tpuart.Event) {
//	    if ev.Type == tpuart.EventTelegram {
//	        // handle ev.Telegram
//	    }
//	})
//
//	err = eng.GroupWriteBool(knx.MustParseGroupAddress("1/2/4"), true)
//
// # Thread Safety
//
// One mutex serialises every exchange on the line, so Send from an HTTP or
// MQTT handler is safe while Run is polling.
package tpuart
