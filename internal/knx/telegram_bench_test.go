package knx

import "testing"

func BenchmarkBuildGroupWrite(b *testing.B) {
	src := IndividualAddress{Area: 1, Line: 1, Member: 1}
	ga := GroupAddress{Main: 1, Middle: 2, Sub: 3}
	tg := NewTelegram()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		tg.Clear()
		tg.SetSourceAddress(src)
		tg.SetTargetGroupAddress(ga)
		tg.SetCommand(CommandWrite)
		if err := tg.SetTwoByteFloat(21.5); err != nil {
			b.Fatal(err)
		}
		tg.CreateChecksum()
	}
}

func BenchmarkVerifyChecksum(b *testing.B) {
	tg := NewTelegram()
	tg.SetText("benchmark text")
	tg.CreateChecksum()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if !tg.VerifyChecksum() {
			b.Fatal("checksum mismatch")
		}
	}
}

func BenchmarkDecodeValue(b *testing.B) {
	tg := NewTelegram()
	if err := EncodeValue(tg, DPTTemperature, 21.5); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := DecodeValue(tg, DPTTemperature); err != nil {
			b.Fatal(err)
		}
	}
}
