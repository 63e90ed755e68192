// Package integrity parses a received container and localizes corruption
// introduced by the wireless link. Analysis is a pure function of the
// bytes: every check is additive, all findings are co-reported, and a
// failure is always returned inside the report rather than as an error.
package integrity

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/salestag/stag/internal/rawaudio"
)

const (
	// Device clocks count milliseconds from boot; anything past this is
	// garbage read out of a shifted or overwritten header.
	maxPlausibleStartMs = 1_000_000_000_000

	// Recordings are short; a count past this means the field holds junk.
	maxPlausibleSamples = 1_000_000

	// FFFFSentinel is a known corruption signature, distinct from
	// ordinary out-of-range readings.
	FFFFSentinel = 0xFFFF

	// Deltas between consecutive capture timestamps past this look like
	// dropped or spliced records.
	maxTimestampDeltaMs = 1000

	maxReportedValues = 10
	maxReportedDeltas = 5
)

// Report is the full analysis of one container.
type Report struct {
	FileSize     int           `json:"file_size"`
	Header       *HeaderReport `json:"header_analysis"`
	Samples      *SampleReport `json:"sample_analysis,omitempty"`
	OverallValid bool          `json:"overall_valid"`
	IssueCount   int           `json:"issues_found"`
}

// HeaderReport is the header-stage verdict.
type HeaderReport struct {
	Valid       bool            `json:"valid"`
	MagicValid  bool            `json:"magic_valid"`
	MagicBytes  string          `json:"magic_bytes"`  // hex of first 4 bytes
	MagicString string          `json:"magic_string"` // printable rendering, '?' elsewhere
	Header      rawaudio.Header `json:"header"`
	DurationMs  uint32          `json:"duration_ms"`
	Issues      []string        `json:"issues"`
}

// SampleReport is the sample-stage verdict and statistics.
type SampleReport struct {
	Valid       bool     `json:"valid"`
	SampleCount int      `json:"sample_count"`
	Issues      []string `json:"issues"`

	ExtremeValues   []uint32 `json:"extreme_values,omitempty"`
	FFFFPositions   []int    `json:"ffff_positions,omitempty"`
	TimestampIssues []int64  `json:"timestamp_issues,omitempty"`
	SequenceErrors  []int    `json:"sequence_errors,omitempty"`

	Stats *ADCStats `json:"adc_stats,omitempty"`
}

// ADCStats aggregates the mic readings of a fully decoded container.
type ADCStats struct {
	Min          uint32  `json:"min"`
	Max          uint32  `json:"max"`
	Mean         float64 `json:"mean"`
	UniqueValues int     `json:"unique_values"`
}

// AnalyzeFile reads path and analyzes its contents. The error covers I/O
// only; corruption always comes back inside the report.
func AnalyzeFile(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Analyze(data), nil
}

// Analyze inspects a complete container. The input must be fully owned by
// the caller; never pass a session's live accumulator.
func Analyze(data []byte) *Report {
	r := &Report{FileSize: len(data)}

	r.Header = analyzeHeader(data)
	if r.Header.Valid {
		r.Samples = analyzeSamples(data[rawaudio.HeaderSize:])
	}

	r.IssueCount = len(r.Header.Issues)
	if r.Samples != nil {
		r.IssueCount += len(r.Samples.Issues)
	}
	// Sample stage is vacuously absent, not passing, when the header failed.
	r.OverallValid = r.Header.Valid && r.Samples != nil && r.Samples.Valid
	return r
}

func analyzeHeader(data []byte) *HeaderReport {
	hr := &HeaderReport{Issues: []string{}}
	if len(data) < rawaudio.HeaderSize {
		hr.Issues = append(hr.Issues,
			fmt.Sprintf("file too short for header: %d bytes (need %d)", len(data), rawaudio.HeaderSize))
		return hr
	}

	h, err := rawaudio.DecodeHeader(data)
	if err != nil {
		hr.Issues = append(hr.Issues, fmt.Sprintf("header parse error: %v", err))
		return hr
	}
	hr.Header = h
	hr.MagicBytes = hex.EncodeToString(data[:4])
	hr.MagicString = printable(data[:4])
	hr.MagicValid = h.Magic == rawaudio.Magic

	if !hr.MagicValid {
		hr.Issues = append(hr.Issues,
			fmt.Sprintf("invalid magic number: %08X (expected: %08X)", h.Magic, uint32(rawaudio.Magic)))
	}
	if h.Version != rawaudio.Version {
		hr.Issues = append(hr.Issues,
			fmt.Sprintf("unexpected version: %d (expected: %d)", h.Version, rawaudio.Version))
	}
	if h.SampleRate != rawaudio.SampleRate {
		hr.Issues = append(hr.Issues,
			fmt.Sprintf("unexpected sample rate: %d (expected: %d)", h.SampleRate, rawaudio.SampleRate))
	}
	if uint64(h.StartTimestamp) > maxPlausibleStartMs {
		hr.Issues = append(hr.Issues,
			fmt.Sprintf("suspicious start timestamp: %d", h.StartTimestamp))
	}
	if h.TotalSamples > maxPlausibleSamples {
		hr.Issues = append(hr.Issues,
			fmt.Sprintf("suspicious total samples: %d", h.TotalSamples))
	}

	if h.EndTimestamp > h.StartTimestamp {
		hr.DurationMs = h.EndTimestamp - h.StartTimestamp
	}
	hr.Valid = len(hr.Issues) == 0
	return hr
}

func analyzeSamples(payload []byte) *SampleReport {
	sr := &SampleReport{Issues: []string{}}
	if len(payload)%rawaudio.SampleSize != 0 {
		sr.Issues = append(sr.Issues,
			fmt.Sprintf("sample payload length %d not divisible by record size %d", len(payload), rawaudio.SampleSize))
		return sr
	}

	count := len(payload) / rawaudio.SampleSize
	sr.SampleCount = count
	samples := make([]rawaudio.Sample, 0, count)
	for i := 0; i < count; i++ {
		s, err := rawaudio.DecodeSample(payload[i*rawaudio.SampleSize:])
		if err != nil {
			// A corrupt tail yields no partial statistics.
			sr.Issues = append(sr.Issues, fmt.Sprintf("sample parsing error at index %d: %v", i, err))
			return sr
		}
		samples = append(samples, s)
	}
	if count == 0 {
		sr.Valid = true
		return sr
	}

	checkExtremes(sr, samples)
	checkTimestamps(sr, samples)
	checkSequence(sr, samples)
	sr.Stats = adcStats(samples)

	sr.Valid = len(sr.Issues) == 0
	return sr
}

func checkExtremes(sr *SampleReport, samples []rawaudio.Sample) {
	var extreme []uint32
	var ffff []int
	for i, s := range samples {
		if s.MicSample > rawaudio.ADCMax {
			extreme = append(extreme, s.MicSample)
		}
		if s.MicSample == FFFFSentinel {
			ffff = append(ffff, i)
		}
	}
	if len(extreme) > 0 {
		sr.Issues = append(sr.Issues,
			fmt.Sprintf("found %d extreme ADC values > %d", len(extreme), rawaudio.ADCMax))
		sr.ExtremeValues = head(extreme, maxReportedValues)
	}
	if len(ffff) > 0 {
		sr.Issues = append(sr.Issues,
			fmt.Sprintf("found %d samples with 0xFFFF value", len(ffff)))
		sr.FFFFPositions = head(ffff, maxReportedValues)
	}
}

func checkTimestamps(sr *SampleReport, samples []rawaudio.Sample) {
	var bad []int64
	for i := 1; i < len(samples); i++ {
		d := int64(samples[i].Timestamp) - int64(samples[i-1].Timestamp)
		if d < 0 || d > maxTimestampDeltaMs {
			bad = append(bad, d)
		}
	}
	if len(bad) > 0 {
		sr.Issues = append(sr.Issues,
			fmt.Sprintf("found %d invalid timestamp differences", len(bad)))
		sr.TimestampIssues = head(bad, maxReportedDeltas)
	}
}

// checkSequence takes the first record's counter as the baseline and
// expects +1 per record after it. A corrupted first record skews every
// later finding; that matches the device-side contract and stays as-is.
func checkSequence(sr *SampleReport, samples []rawaudio.Sample) {
	var errs []int
	base := samples[0].SequenceCount
	for i, s := range samples {
		if s.SequenceCount != base+uint32(i) {
			errs = append(errs, i)
		}
	}
	if len(errs) > 0 {
		sr.Issues = append(sr.Issues,
			fmt.Sprintf("found %d sample count sequence errors", len(errs)))
		sr.SequenceErrors = head(errs, maxReportedValues)
	}
}

func adcStats(samples []rawaudio.Sample) *ADCStats {
	st := &ADCStats{Min: samples[0].MicSample, Max: samples[0].MicSample}
	var sum uint64
	seen := make(map[uint32]struct{}, len(samples))
	for _, s := range samples {
		v := s.MicSample
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
		sum += uint64(v)
		seen[v] = struct{}{}
	}
	st.Mean = float64(sum) / float64(len(samples))
	st.UniqueValues = len(seen)
	return st
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func printable(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 32 && c <= 126 {
			out[i] = c
		} else {
			out[i] = '?'
		}
	}
	return string(out)
}
