// Package knx implements the KNX TP-UART telegram codec.
//
// A Telegram is a fixed 23-byte buffer. Every field (addresses, priority,
// command, transport type, payload) is a bit view over that buffer, so a
// telegram received from the line and one built for sending are the same
// value: there is no separate decoded form.
//
// # Wire Layout
//
//	byte   0       1-2      3-4      5        6        7       8..      len+6
//	     ┌───────┬────────┬────────┬────────┬────────┬───────┬───────┬──────────┐
//	     │control│ source │ target │G|RRR|L │TT|SSSS|│CC|data│payload│ checksum │
//	     │       │        │        │        │  CC    │       │       │          │
//	     └───────┴────────┴────────┴────────┴────────┴───────┴───────┴──────────┘
//
// The 4-bit command is split across bytes 6 and 7. The checksum is 0xFF
// XORed with every byte before it.
//
// # Typed Payloads
//
// Typed setters fix the payload length for their encoding; typed getters
// check it and return ErrWrongPayloadLength on a mismatch:
//
//	t := knx.NewTelegram()
//	t.SetSourceAddress(knx.MustParseIndividualAddress("1.1.1"))
//	t.SetTargetGroupAddress(knx.MustParseGroupAddress("1/2/3"))
//	t.SetCommand(knx.CommandWrite)
//	if err := t.SetTwoByteFloat(21.5); err != nil {
//	    return err
//	}
//	t.CreateChecksum()
//
// # Datapoint Types
//
// EncodeValue and DecodeValue map DPT identifiers ("1.001", "9.001",
// "16.000", ...) onto the typed accessors so JSON values from MQTT or HTTP
// can be written to the bus without callers knowing payload lengths.
//
// # Addresses
//
// GroupAddress (main/middle/sub) and IndividualAddress (area.line.member)
// are validated triples. String parsing lives here, outside the line
// protocol engine, which only ever handles parsed addresses.
//
// # Thread Safety
//
// Telegram is a plain value type and is not safe for concurrent mutation.
// Use Clone to hand a telegram to another goroutine.
package knx
