package rawaudio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Magic:          Magic,
		Version:        Version,
		SampleRate:     SampleRate,
		TotalSamples:   2,
		StartTimestamp: 1000,
		EndTimestamp:   1050,
	}
	buf := AppendHeader(nil, h)
	if len(buf) != HeaderSize {
		t.Fatalf("header size: want %d, got %d", HeaderSize, len(buf))
	}
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Errorf("round trip: want %+v, got %+v", h, got)
	}
}

func TestHeaderWireLayout(t *testing.T) {
	buf := AppendHeader(nil, Header{Magic: Magic})
	// "RAWA" as little-endian uint32 means 'A','W','A','R' on the wire.
	if !bytes.Equal(buf[:4], []byte{'A', 'W', 'A', 'R'}) {
		t.Errorf("magic bytes: got %q", buf[:4])
	}
	if binary.LittleEndian.Uint32(buf[:4]) != 0x52415741 {
		t.Errorf("magic value: got %08X", binary.LittleEndian.Uint32(buf[:4]))
	}
}

func TestDecodeHeaderShort(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, HeaderSize-1)); err == nil {
		t.Error("want error for short header")
	}
}

func TestSampleRoundTrip(t *testing.T) {
	s := Sample{MicSample: 2048, Timestamp: 1234, SequenceCount: 7}
	buf := AppendSample(nil, s)
	if len(buf) != SampleSize {
		t.Fatalf("sample size: want %d, got %d", SampleSize, len(buf))
	}
	got, err := DecodeSample(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Errorf("round trip: want %+v, got %+v", s, got)
	}
}

func TestEncode(t *testing.T) {
	samples := []Sample{
		{MicSample: 2000, Timestamp: 1000, SequenceCount: 0},
		{MicSample: 2100, Timestamp: 1020, SequenceCount: 1},
	}
	data := Encode(Header{Magic: Magic, TotalSamples: 2}, samples)
	if len(data) != HeaderSize+2*SampleSize {
		t.Fatalf("container size: got %d", len(data))
	}
	s, err := DecodeSample(data[HeaderSize+SampleSize:])
	if err != nil {
		t.Fatal(err)
	}
	if s != samples[1] {
		t.Errorf("second sample: want %+v, got %+v", samples[1], s)
	}
}
