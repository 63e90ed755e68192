// Package rawaudio defines the on-wire container format for SalesTag
// recordings: a fixed 24-byte header followed by 12-byte sample records,
// all fields little-endian uint32.
package rawaudio

import (
	"encoding/binary"
	"fmt"
)

const (
	// Magic is "RAWA" read as a little-endian uint32.
	Magic = 0x52415741

	Version    = 1
	SampleRate = 16000

	HeaderSize = 24
	SampleSize = 12

	// ADCMax is the largest value a 12-bit mic reading can hold.
	ADCMax = 4095
)

// Header is the fixed-size container prefix. TotalSamples is advisory;
// the real record count comes from the payload length.
type Header struct {
	Magic          uint32
	Version        uint32
	SampleRate     uint32
	TotalSamples   uint32
	StartTimestamp uint32 // device clock, ms
	EndTimestamp   uint32 // device clock, ms
}

// Sample is one mic reading. MicSample is a 12-bit quantity stored in 32.
type Sample struct {
	MicSample     uint32
	Timestamp     uint32 // device clock, ms
	SequenceCount uint32
}

// DecodeHeader parses the 24-byte prefix.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("header too short: %d bytes", len(data))
	}
	return Header{
		Magic:          binary.LittleEndian.Uint32(data[0:4]),
		Version:        binary.LittleEndian.Uint32(data[4:8]),
		SampleRate:     binary.LittleEndian.Uint32(data[8:12]),
		TotalSamples:   binary.LittleEndian.Uint32(data[12:16]),
		StartTimestamp: binary.LittleEndian.Uint32(data[16:20]),
		EndTimestamp:   binary.LittleEndian.Uint32(data[20:24]),
	}, nil
}

// AppendHeader appends the wire encoding of h to buf.
func AppendHeader(buf []byte, h Header) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, h.Magic)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = binary.LittleEndian.AppendUint32(buf, h.SampleRate)
	buf = binary.LittleEndian.AppendUint32(buf, h.TotalSamples)
	buf = binary.LittleEndian.AppendUint32(buf, h.StartTimestamp)
	return binary.LittleEndian.AppendUint32(buf, h.EndTimestamp)
}

// DecodeSample parses one 12-byte record.
func DecodeSample(data []byte) (Sample, error) {
	if len(data) < SampleSize {
		return Sample{}, fmt.Errorf("sample too short: %d bytes", len(data))
	}
	return Sample{
		MicSample:     binary.LittleEndian.Uint32(data[0:4]),
		Timestamp:     binary.LittleEndian.Uint32(data[4:8]),
		SequenceCount: binary.LittleEndian.Uint32(data[8:12]),
	}, nil
}

// AppendSample appends the wire encoding of s to buf.
func AppendSample(buf []byte, s Sample) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, s.MicSample)
	buf = binary.LittleEndian.AppendUint32(buf, s.Timestamp)
	return binary.LittleEndian.AppendUint32(buf, s.SequenceCount)
}

// Encode builds a complete container from a header and its samples.
// TotalSamples in the header is written as given, not recomputed.
func Encode(h Header, samples []Sample) []byte {
	buf := make([]byte, 0, HeaderSize+len(samples)*SampleSize)
	buf = AppendHeader(buf, h)
	for _, s := range samples {
		buf = AppendSample(buf, s)
	}
	return buf
}
