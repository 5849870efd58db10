package tpuart

import (
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

// NewGroupFrame builds a telegram from us to a group address.
//
// Each call returns a new telegram owned by the caller; only the receive
// and confirm buffers are reused by the engine. Source, target, first data
// byte, command and payload length are set and the checksum computed.
// Typed payloads are applied afterwards by the caller, which must
// recompute the checksum.
func (e *Engine) NewGroupFrame(ga knx.GroupAddress, firstData uint8, cmd knx.Command, payloadLength int) (*knx.Telegram, error) {
	t := knx.NewTelegram()
	t.SetSourceAddress(e.cfg.Address)
	t.SetTargetGroupAddress(ga)
	t.SetFirstDataByte(firstData)
	t.SetCommand(cmd)
	if err := t.SetPayloadLength(payloadLength); err != nil {
		return nil, err
	}
	t.CreateChecksum()
	return t, nil
}

// NewIndividualFrame builds a telegram from us to an individual address.
func (e *Engine) NewIndividualFrame(ia knx.IndividualAddress, firstData uint8, cmd knx.Command, payloadLength int) (*knx.Telegram, error) {
	t := knx.NewTelegram()
	t.SetSourceAddress(e.cfg.Address)
	t.SetTargetIndividualAddress(ia)
	t.SetFirstDataByte(firstData)
	t.SetCommand(cmd)
	if err := t.SetPayloadLength(payloadLength); err != nil {
		return nil, err
	}
	t.CreateChecksum()
	return t, nil
}

// sendGroup builds a short frame, applies set (if any), recomputes the
// checksum and sends it.
func (e *Engine) sendGroup(ga knx.GroupAddress, cmd knx.Command, firstData uint8, set func(*knx.Telegram) error) error {
	t, err := e.NewGroupFrame(ga, firstData, cmd, knx.LengthSmall)
	if err != nil {
		return err
	}
	if set != nil {
		if err := set(t); err != nil {
			return err
		}
		t.CreateChecksum()
	}
	return e.Send(t)
}

func boolData(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// ─── Group Write ───────────────────────────────────────────────

// GroupWriteBool writes a 1-bit value.
func (e *Engine) GroupWriteBool(ga knx.GroupAddress, v bool) error {
	return e.sendGroup(ga, knx.CommandWrite, boolData(v), nil)
}

// GroupWrite4BitInt writes a 4-bit value.
func (e *Engine) GroupWrite4BitInt(ga knx.GroupAddress, v uint8) error {
	return e.sendGroup(ga, knx.CommandWrite, v&0x0F, nil) //nolint:mnd // 4-bit mask
}

// GroupWrite4BitDim writes a dimming or blind step.
func (e *Engine) GroupWrite4BitDim(ga knx.GroupAddress, increase bool, steps uint8) error {
	return e.sendGroup(ga, knx.CommandWrite, 0, func(t *knx.Telegram) error {
		t.SetFourBitDim(increase, steps)
		return nil
	})
}

// GroupWrite1ByteInt writes a 1-byte value.
func (e *Engine) GroupWrite1ByteInt(ga knx.GroupAddress, v uint8) error {
	return e.sendGroup(ga, knx.CommandWrite, 0, func(t *knx.Telegram) error {
		t.SetOneByteInt(v)
		return nil
	})
}

// GroupWrite2ByteInt writes a 2-byte value.
func (e *Engine) GroupWrite2ByteInt(ga knx.GroupAddress, v uint16) error {
	return e.sendGroup(ga, knx.CommandWrite, 0, func(t *knx.Telegram) error {
		t.SetTwoByteInt(v)
		return nil
	})
}

// GroupWrite2ByteFloat writes a KNX 2-byte float.
func (e *Engine) GroupWrite2ByteFloat(ga knx.GroupAddress, v float64) error {
	return e.sendGroup(ga, knx.CommandWrite, 0, func(t *knx.Telegram) error {
		return t.SetTwoByteFloat(v)
	})
}

// GroupWrite3ByteTime writes a time of day.
func (e *Engine) GroupWrite3ByteTime(ga knx.GroupAddress, tod knx.TimeOfDay) error {
	return e.sendGroup(ga, knx.CommandWrite, 0, func(t *knx.Telegram) error {
		t.SetTime(tod)
		return nil
	})
}

// GroupWrite3ByteDate writes a calendar date.
func (e *Engine) GroupWrite3ByteDate(ga knx.GroupAddress, d knx.CalendarDate) error {
	return e.sendGroup(ga, knx.CommandWrite, 0, func(t *knx.Telegram) error {
		t.SetDate(d)
		return nil
	})
}

// GroupWrite4ByteFloat writes an IEEE-754 single.
func (e *Engine) GroupWrite4ByteFloat(ga knx.GroupAddress, v float32) error {
	return e.sendGroup(ga, knx.CommandWrite, 0, func(t *knx.Telegram) error {
		t.SetFourByteFloat(v)
		return nil
	})
}

// GroupWrite14ByteText writes up to 14 bytes of text.
func (e *Engine) GroupWrite14ByteText(ga knx.GroupAddress, s string) error {
	return e.sendGroup(ga, knx.CommandWrite, 0, func(t *knx.Telegram) error {
		t.SetText(s)
		return nil
	})
}

// ─── Group Answer ──────────────────────────────────────────────

// GroupAnswerBool answers a read with a 1-bit value.
func (e *Engine) GroupAnswerBool(ga knx.GroupAddress, v bool) error {
	return e.sendGroup(ga, knx.CommandAnswer, boolData(v), nil)
}

// GroupAnswer1ByteInt answers with a 1-byte value.
func (e *Engine) GroupAnswer1ByteInt(ga knx.GroupAddress, v uint8) error {
	return e.sendGroup(ga, knx.CommandAnswer, 0, func(t *knx.Telegram) error {
		t.SetOneByteInt(v)
		return nil
	})
}

// GroupAnswer2ByteInt answers with a 2-byte value.
func (e *Engine) GroupAnswer2ByteInt(ga knx.GroupAddress, v uint16) error {
	return e.sendGroup(ga, knx.CommandAnswer, 0, func(t *knx.Telegram) error {
		t.SetTwoByteInt(v)
		return nil
	})
}

// GroupAnswer2ByteFloat answers with a KNX 2-byte float.
func (e *Engine) GroupAnswer2ByteFloat(ga knx.GroupAddress, v float64) error {
	return e.sendGroup(ga, knx.CommandAnswer, 0, func(t *knx.Telegram) error {
		return t.SetTwoByteFloat(v)
	})
}

// GroupAnswer3ByteTime answers with a time of day.
func (e *Engine) GroupAnswer3ByteTime(ga knx.GroupAddress, tod knx.TimeOfDay) error {
	return e.sendGroup(ga, knx.CommandAnswer, 0, func(t *knx.Telegram) error {
		t.SetTime(tod)
		return nil
	})
}

// GroupAnswer3ByteDate answers with a calendar date.
func (e *Engine) GroupAnswer3ByteDate(ga knx.GroupAddress, d knx.CalendarDate) error {
	return e.sendGroup(ga, knx.CommandAnswer, 0, func(t *knx.Telegram) error {
		t.SetDate(d)
		return nil
	})
}

// GroupAnswer4ByteFloat answers with an IEEE-754 single.
func (e *Engine) GroupAnswer4ByteFloat(ga knx.GroupAddress, v float32) error {
	return e.sendGroup(ga, knx.CommandAnswer, 0, func(t *knx.Telegram) error {
		t.SetFourByteFloat(v)
		return nil
	})
}

// GroupAnswer14ByteText answers with up to 14 bytes of text.
func (e *Engine) GroupAnswer14ByteText(ga knx.GroupAddress, s string) error {
	return e.sendGroup(ga, knx.CommandAnswer, 0, func(t *knx.Telegram) error {
		t.SetText(s)
		return nil
	})
}

// ─── Read and datapoint helpers ────────────────────────────────

// GroupRead sends a read request for ga. Answers arrive through Poll.
func (e *Engine) GroupRead(ga knx.GroupAddress) error {
	return e.sendGroup(ga, knx.CommandRead, 0, nil)
}

// GroupSendValue sends value to ga encoded as dpt. cmd is normally
// CommandWrite or CommandAnswer.
func (e *Engine) GroupSendValue(ga knx.GroupAddress, cmd knx.Command, dpt knx.DPT, value any) error {
	return e.sendGroup(ga, cmd, 0, func(t *knx.Telegram) error {
		return knx.EncodeValue(t, dpt, value)
	})
}

// ─── Individual (management) answers ───────────────────────────

func (e *Engine) individualAddressFrame() (*knx.Telegram, error) {
	return e.NewGroupFrame(knx.BroadcastAddress, 0, knx.CommandIndividualAddrResponse, knx.LengthSmall)
}

func (e *Engine) maskVersionFrame(ia knx.IndividualAddress) (*knx.Telegram, error) {
	t, err := e.NewIndividualFrame(ia, 0, knx.CommandMaskVersionResponse, knx.LengthTwoByte)
	if err != nil {
		return nil, err
	}
	t.SetCommunicationType(knx.CommNDP)
	t.SetTwoByteInt(MaskVersion)
	t.CreateChecksum()
	return t, nil
}

// IndividualAnswerAddress announces our individual address to 0/0/0, the
// reply to an individual address request in programming mode.
func (e *Engine) IndividualAnswerAddress() error {
	t, err := e.individualAddressFrame()
	if err != nil {
		return err
	}
	return e.Send(t)
}

// IndividualAnswerMaskVersion answers a mask version read from ia.
func (e *Engine) IndividualAnswerMaskVersion(ia knx.IndividualAddress) error {
	t, err := e.maskVersionFrame(ia)
	if err != nil {
		return err
	}
	return e.Send(t)
}

// IndividualAnswerAuth answers an authorize request from ia with the
// granted access level, echoing the request's sequence number.
func (e *Engine) IndividualAnswerAuth(ia knx.IndividualAddress, accessLevel, seq uint8) error {
	t, err := e.NewIndividualFrame(ia, knx.ExtCommandAuthResponse, knx.CommandEscape, knx.LengthOneByte)
	if err != nil {
		return err
	}
	t.SetCommunicationType(knx.CommNDP)
	t.SetSequenceNumber(seq)
	t.SetOneByteInt(accessLevel)
	t.CreateChecksum()
	return e.Send(t)
}
